package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/viatel/triagebot/internal/models"
	"github.com/viatel/triagebot/internal/telegram"
)

// chatIDRegex matches Telegram chat identifiers (negative for groups).
var chatIDRegex = regexp.MustCompile(`^-?[0-9]+$`)

// TelegramService implements Service over the Telegram Bot API client.
// Inbound updates arrive via webhook and are normalized by HandleUpdate.
type TelegramService struct {
	client  telegram.Sender
	events  chan models.InboundEvent
	done    chan struct{}
	mu      sync.RWMutex
	stopped bool
}

// NewTelegramService creates a TelegramService around the given client.
func NewTelegramService(client telegram.Sender) *TelegramService {
	return &TelegramService{
		client: client,
		events: make(chan models.InboundEvent, DefaultChannelBufferSize),
		done:   make(chan struct{}),
	}
}

// ValidateAndCanonicalizeRecipient validates a Telegram chat ID.
func (s *TelegramService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical := strings.TrimSpace(recipient)
	if canonical == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	if !chatIDRegex.MatchString(canonical) {
		return "", fmt.Errorf("invalid telegram chat id %q", recipient)
	}
	return canonical, nil
}

// SendConfirmation implements Service.
func (s *TelegramService) SendConfirmation(ctx context.Context, to, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TelegramService SendConfirmation validation error", "error", err, "to", to)
		return err
	}
	return s.client.SendMessage(ctx, canonical, body)
}

// SendPrompt implements Service.
func (s *TelegramService) SendPrompt(ctx context.Context, to, body string, choices []string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TelegramService SendPrompt validation error", "error", err, "to", to)
		return err
	}
	return s.client.SendKeyboard(ctx, canonical, body, choices)
}

// HandleUpdate normalizes one webhook update into an InboundEvent and emits
// it on the events channel. Updates without a usable message are rejected
// here so the conversation engine never sees a partially-formed event.
func (s *TelegramService) HandleUpdate(u telegram.Update) error {
	ev, err := normalizeUpdate(u)
	if err != nil {
		slog.Debug("TelegramService discarding update", "error", err, "updateID", u.UpdateID)
		return err
	}
	if err := ev.Validate(); err != nil {
		slog.Debug("TelegramService discarding invalid event", "error", err, "updateID", u.UpdateID)
		return err
	}

	slog.Debug("TelegramService event normalized", "userID", ev.UserID, "kind", ev.Kind, "isCommand", ev.IsCommand)
	return s.emit(ev)
}

// normalizeUpdate maps the Bot API payload onto the engine's event shape.
func normalizeUpdate(u telegram.Update) (models.InboundEvent, error) {
	switch {
	case u.CallbackQuery != nil && u.CallbackQuery.From != nil && u.CallbackQuery.Data != "":
		cb := u.CallbackQuery
		return models.InboundEvent{
			UserID:      strconv.FormatInt(cb.From.ID, 10),
			DisplayName: displayName(cb.From),
			Username:    cb.From.Username,
			Kind:        models.EventKindButton,
			Payload:     cb.Data,
			Channel:     models.ChannelTelegram,
			Time:        time.Now().Unix(),
		}, nil
	case u.Message != nil && u.Message.From != nil && u.Message.Text != "":
		msg := u.Message
		ts := msg.Date
		if ts == 0 {
			ts = time.Now().Unix()
		}
		return models.InboundEvent{
			UserID:      strconv.FormatInt(msg.Chat.ID, 10),
			DisplayName: displayName(msg.From),
			Username:    msg.From.Username,
			Kind:        models.EventKindText,
			Payload:     msg.Text,
			IsCommand:   strings.HasPrefix(msg.Text, "/"),
			Channel:     models.ChannelTelegram,
			Time:        ts,
		}, nil
	default:
		return models.InboundEvent{}, models.ErrMalformedUpdate
	}
}

func displayName(u *telegram.User) string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// Events implements Service.
func (s *TelegramService) Events() <-chan models.InboundEvent {
	return s.events
}

// Start is a no-op: updates are pushed by the webhook, not polled.
func (s *TelegramService) Start(ctx context.Context) error {
	slog.Debug("TelegramService started")
	return nil
}

// Stop implements Service.
func (s *TelegramService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)

	// Let in-flight emits observe done before the channel closes.
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.events)
	}()
	return nil
}

func (s *TelegramService) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

func (s *TelegramService) emit(ev models.InboundEvent) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return ErrServiceStopped
	}
}
