package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/viatel/triagebot/internal/models"
	"github.com/viatel/triagebot/internal/twiliowhatsapp"
)

// phoneNumberRegex strips everything that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// TwilioService implements Service over the Twilio WhatsApp API. WhatsApp has
// no reply keyboards, so prompts render their choices as a numbered list.
type TwilioService struct {
	client  twiliowhatsapp.Sender
	events  chan models.InboundEvent
	done    chan struct{}
	mu      sync.RWMutex
	stopped bool
}

// NewTwilioService creates a TwilioService around the given client.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{
		client: client,
		events: make(chan models.InboundEvent, DefaultChannelBufferSize),
		done:   make(chan struct{}),
	}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp
// phone number by removing all non-numeric characters.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	if recipient != canonical {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// SendConfirmation implements Service.
func (s *TwilioService) SendConfirmation(ctx context.Context, to, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendConfirmation validation error", "error", err, "to", to)
		return err
	}
	return s.client.SendMessage(ctx, canonical, body)
}

// SendPrompt implements Service.
func (s *TwilioService) SendPrompt(ctx context.Context, to, body string, choices []string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendPrompt validation error", "error", err, "to", to)
		return err
	}
	return s.client.SendMessage(ctx, canonical, formatPromptWithChoices(body, choices))
}

// formatPromptWithChoices appends the choice list to the prompt body.
func formatPromptWithChoices(body string, choices []string) string {
	if len(choices) == 0 {
		return body
	}
	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n")
	for _, choice := range choices {
		b.WriteString("\n")
		b.WriteString(choice)
	}
	b.WriteString("\n\nResponda com o número da opção desejada.")
	return b.String()
}

// HandleIncoming normalizes one inbound Twilio webhook message and emits it
// on the events channel.
func (s *TwilioService) HandleIncoming(from, profileName, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		slog.Debug("TwilioService discarding inbound message", "error", err, "from", from)
		return err
	}

	ev := models.InboundEvent{
		UserID:      canonical,
		DisplayName: strings.TrimSpace(profileName),
		Kind:        models.EventKindText,
		Payload:     body,
		IsCommand:   strings.HasPrefix(body, "/"),
		Channel:     models.ChannelWhatsApp,
		Time:        time.Now().Unix(),
	}
	if err := ev.Validate(); err != nil {
		slog.Debug("TwilioService discarding invalid event", "error", err, "from", canonical)
		return err
	}

	slog.Debug("TwilioService event normalized", "userID", ev.UserID, "isCommand", ev.IsCommand)
	return s.emit(ev)
}

// Events implements Service.
func (s *TwilioService) Events() <-chan models.InboundEvent {
	return s.events
}

// Start is a no-op: messages are pushed by the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	slog.Debug("TwilioService started")
	return nil
}

// Stop implements Service.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.events)
	}()
	return nil
}

func (s *TwilioService) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

func (s *TwilioService) emit(ev models.InboundEvent) error {
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
