package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/viatel/triagebot/internal/api"
	"github.com/viatel/triagebot/internal/flow"
	"github.com/viatel/triagebot/internal/messaging"
	"github.com/viatel/triagebot/internal/session"
	"github.com/viatel/triagebot/internal/store"
	"github.com/viatel/triagebot/internal/telegram"
	"github.com/viatel/triagebot/internal/twiliowhatsapp"
	"github.com/viatel/triagebot/internal/util"
)

// notifyPollInterval is how often the outbox is drained.
const notifyPollInterval = 5 * time.Second

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := run(flags); err != nil {
		slog.Error("triagebot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("triagebot exited successfully")
}

// Config holds environment configuration.
type Config struct {
	TelegramToken  string
	OperatorChatID string
	BusinessName   string
	APIAddr        string
	DatabaseURL    string
	SessionDriver  string
	RedisAddr      string
	WebhookURL     string
	TwilioSID      string
	TwilioToken    string
	TwilioFrom     string
}

// Flags holds command line flag values. Secrets stay environment-only.
type Flags struct {
	config        Config
	apiAddr       *string
	dbDSN         *string
	sessionDriver *string
	redisAddr     *string
	webhookURL    *string
	businessName  *string
}

// initializeLogger sets up structured logging; TRIAGEBOT_DEBUG enables debug level.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("TRIAGEBOT_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and a
// .env file when present.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		OperatorChatID: os.Getenv("OPERATOR_CHAT_ID"),
		BusinessName:   os.Getenv("BUSINESS_NAME"),
		APIAddr:        os.Getenv("API_ADDR"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SessionDriver:  util.GetenvDefault("SESSION_DRIVER", string(session.DriverMemory)),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		WebhookURL:     os.Getenv("WEBHOOK_URL"),
		TwilioSID:      os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:     os.Getenv("TWILIO_FROM_NUMBER"),
	}

	slog.Debug("environment variables loaded",
		"TELEGRAM_BOT_TOKEN_SET", config.TelegramToken != "",
		"OPERATOR_CHAT_ID_SET", config.OperatorChatID != "",
		"BUSINESS_NAME", config.BusinessName,
		"API_ADDR", config.APIAddr,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"SESSION_DRIVER", config.SessionDriver,
		"REDIS_ADDR_SET", config.RedisAddr != "",
		"WEBHOOK_URL_SET", config.WebhookURL != "",
		"TWILIO_CONFIGURED", config.TwilioSID != "" && config.TwilioToken != "" && config.TwilioFrom != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults.
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		config:        config,
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN for the lead store (overrides $DATABASE_URL)"),
		sessionDriver: flag.String("session-driver", config.SessionDriver, "session store driver: memory or redis (overrides $SESSION_DRIVER)"),
		redisAddr:     flag.String("redis-addr", config.RedisAddr, "redis address for the redis session driver (overrides $REDIS_ADDR)"),
		webhookURL:    flag.String("webhook-url", config.WebhookURL, "public base URL to register as the Telegram webhook (overrides $WEBHOOK_URL)"),
		businessName:  flag.String("business-name", config.BusinessName, "business name used in templated text (overrides $BUSINESS_NAME)"),
	}
	flag.Parse()

	slog.Debug("flags parsed",
		"apiAddr", *flags.apiAddr,
		"dbDSN_set", *flags.dbDSN != "",
		"sessionDriver", *flags.sessionDriver,
		"redisAddr_set", *flags.redisAddr != "",
		"webhookURL_set", *flags.webhookURL != "",
		"businessName", *flags.businessName)

	return flags
}

// buildStore selects the lead/notification store backend from the DSN.
func buildStore(dsn string) (store.Store, error) {
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// buildSessionStore selects the session store driver.
func buildSessionStore(driver, redisAddr string) (session.Store, error) {
	switch session.Driver(driver) {
	case session.DriverRedis:
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		return session.NewStore(session.DriverRedis, session.WithRedisClient(client))
	default:
		return session.NewStore(session.Driver(driver))
	}
}

func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := buildSessionStore(*flags.sessionDriver, *flags.redisAddr)
	if err != nil {
		return err
	}
	defer sessions.Close()

	tgClient, err := telegram.NewClient(telegram.WithToken(flags.config.TelegramToken))
	if err != nil {
		return err
	}

	// A missing operator destination fails here, loudly, before any webhook
	// is accepted.
	questionnaire := flow.DefaultQuestionnaire(*flags.businessName)
	engine, err := flow.NewEngine(questionnaire, flow.NewComposer(*flags.businessName), flags.config.OperatorChatID)
	if err != nil {
		return err
	}

	telegramSvc := messaging.NewTelegramService(tgClient)
	defer telegramSvc.Stop()
	if err := telegramSvc.Start(ctx); err != nil {
		return err
	}
	messaging.NewHandler(telegramSvc, sessions, engine, st).Start(ctx)

	var twilioSvc *messaging.TwilioService
	if flags.config.TwilioSID != "" && flags.config.TwilioToken != "" && flags.config.TwilioFrom != "" {
		twClient, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(flags.config.TwilioSID),
			twiliowhatsapp.WithAuthToken(flags.config.TwilioToken),
			twiliowhatsapp.WithFromNumber(flags.config.TwilioFrom),
		)
		if err != nil {
			return err
		}
		twilioSvc = messaging.NewTwilioService(twClient)
		defer twilioSvc.Stop()
		if err := twilioSvc.Start(ctx); err != nil {
			return err
		}
		messaging.NewHandler(twilioSvc, sessions, engine, st).Start(ctx)
		slog.Info("WhatsApp channel enabled")
	}

	// Operator notifications always leave through the Telegram channel.
	notifySender := store.NewNotifySender(st, func(ctx context.Context, n store.Notification) error {
		return telegramSvc.SendConfirmation(ctx, n.Destination, n.Body)
	}, notifyPollInterval)
	if err := notifySender.RecoverStale(); err != nil {
		slog.Error("failed to recover stale notifications", "error", err)
	}
	go notifySender.Run(ctx)

	if *flags.webhookURL != "" {
		webhookURL := strings.TrimRight(*flags.webhookURL, "/") + "/webhook/telegram"
		if err := tgClient.SetWebhook(ctx, webhookURL); err != nil {
			slog.Error("failed to register telegram webhook", "error", err, "url", webhookURL)
		} else {
			slog.Info("telegram webhook registered", "url", webhookURL)
		}
	}

	server := api.NewServer(telegramSvc, twilioSvc, st, api.WithAddr(*flags.apiAddr))
	slog.Info("Bootstrapping triagebot", "business", *flags.businessName)
	return server.Run(ctx)
}
