package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/viatel/triagebot/internal/flow"
	"github.com/viatel/triagebot/internal/models"
	"github.com/viatel/triagebot/internal/session"
	"github.com/viatel/triagebot/internal/store"
	"github.com/viatel/triagebot/internal/telegram"
)

const testOperatorID = "777000"

type handlerFixture struct {
	handler  *Handler
	svc      *TelegramService
	client   *telegram.MockClient
	sessions *session.MemoryStore
	store    *store.InMemoryStore
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	client := telegram.NewMockClient()
	svc := NewTelegramService(client)
	t.Cleanup(func() { svc.Stop() })

	sessions := session.NewMemoryStore()
	st := store.NewInMemoryStore()
	engine, err := flow.NewEngine(flow.DefaultQuestionnaire("Via Telecom"), flow.NewComposer("Via Telecom"), testOperatorID)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	return &handlerFixture{
		handler:  NewHandler(svc, sessions, engine, st),
		svc:      svc,
		client:   client,
		sessions: sessions,
		store:    st,
	}
}

func (f *handlerFixture) event(payload string) models.InboundEvent {
	return models.InboundEvent{
		UserID:      "42",
		DisplayName: "Ana",
		Username:    "ana",
		Kind:        models.EventKindText,
		Payload:     payload,
		IsCommand:   strings.HasPrefix(payload, "/"),
		Channel:     models.ChannelTelegram,
		Time:        time.Now().Unix(),
	}
}

func (f *handlerFixture) handle(t *testing.T, payload string) {
	t.Helper()
	if err := f.handler.HandleEvent(context.Background(), f.event(payload)); err != nil {
		t.Fatalf("HandleEvent(%q) failed: %v", payload, err)
	}
}

func TestHandlerFullConversation(t *testing.T) {
	f := newHandlerFixture(t)

	f.handle(t, "/start")
	f.handle(t, "internet")
	f.handle(t, "residencial")

	sent := f.client.Sent()
	if len(sent) != 3 {
		t.Fatalf("expected 3 outbound messages, got %d: %+v", len(sent), sent)
	}
	if sent[0].Choices == nil || sent[1].Choices == nil {
		t.Error("prompts must carry keyboards")
	}
	if sent[2].Choices != nil {
		t.Error("final confirmation must not carry a keyboard")
	}
	if !strings.Contains(sent[2].Text, "App de Internet") {
		t.Errorf("confirmation missing chosen service: %q", sent[2].Text)
	}
	for _, m := range sent {
		if m.ChatID != "42" {
			t.Errorf("message sent to %q, want 42", m.ChatID)
		}
	}

	// Lead persisted.
	leads, err := f.store.GetLeads()
	if err != nil {
		t.Fatalf("GetLeads failed: %v", err)
	}
	if len(leads) != 1 {
		t.Fatalf("expected 1 stored lead, got %d", len(leads))
	}
	if leads[0].DisplayName != "Ana" || leads[0].Answers["GET_PROFILE"] != "Residencial" {
		t.Errorf("stored lead mismatch: %+v", leads[0])
	}

	// Operator notification queued for the outbox, addressed to the operator.
	claimed, err := f.store.ClaimDueNotifications(time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("ClaimDueNotifications failed: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected 1 queued notification, got %d", len(claimed))
	}
	if claimed[0].Destination != testOperatorID {
		t.Errorf("notification destination = %q, want %q", claimed[0].Destination, testOperatorID)
	}
	if !strings.Contains(claimed[0].Body, "Novo Lead Qualificado") {
		t.Errorf("notification body missing lead header: %q", claimed[0].Body)
	}

	// Session discarded after completion.
	if f.sessions.Len() != 0 {
		t.Errorf("expected session cleared after completion, %d remain", f.sessions.Len())
	}
}

func TestHandlerCancelClearsSessionWithoutLead(t *testing.T) {
	f := newHandlerFixture(t)

	f.handle(t, "/start")
	f.handle(t, "internet")
	f.handle(t, "/cancel")

	leads, _ := f.store.GetLeads()
	if len(leads) != 0 {
		t.Errorf("cancel stored a lead: %+v", leads)
	}
	claimed, _ := f.store.ClaimDueNotifications(time.Now().UTC(), 10)
	if len(claimed) != 0 {
		t.Errorf("cancel queued an operator notification: %+v", claimed)
	}
	if f.sessions.Len() != 0 {
		t.Errorf("expected session cleared after cancel, %d remain", f.sessions.Len())
	}

	sent := f.client.Sent()
	last := sent[len(sent)-1]
	if last.Text != flow.CancelConfirmation {
		t.Errorf("cancel confirmation = %q, want %q", last.Text, flow.CancelConfirmation)
	}
}

func TestHandlerUnrecognizedInputKeepsSession(t *testing.T) {
	f := newHandlerFixture(t)

	f.handle(t, "/start")
	f.handle(t, "quero falar com gente")

	if f.sessions.Len() != 1 {
		t.Fatalf("expected 1 live session, got %d", f.sessions.Len())
	}

	sent := f.client.Sent()
	last := sent[len(sent)-1]
	if !strings.Contains(last.Text, flow.CorrectionNotice) {
		t.Errorf("re-prompt missing correction notice: %q", last.Text)
	}
	if len(last.Choices) != len(sent[0].Choices) {
		t.Errorf("re-prompt keyboard changed: %v vs %v", last.Choices, sent[0].Choices)
	}

	// Conversation remains answerable afterwards.
	f.handle(t, "streaming")
	f.handle(t, "comercial")
	leads, _ := f.store.GetLeads()
	if len(leads) != 1 {
		t.Fatalf("expected recovery into a complete lead, got %d", len(leads))
	}
	if leads[0].Answers["CHOOSE_SERVICE"] != "App de Streaming" {
		t.Errorf("recorded answer mismatch: %v", leads[0].Answers)
	}
}

func TestHandlerDowngradesConfirmationWhenEnqueueFails(t *testing.T) {
	f := newHandlerFixture(t)

	f.handle(t, "/start")
	f.handle(t, "internet")

	// Closing the store makes the outbox enqueue fail.
	broken := &failingStore{Store: f.store}
	f.handler.store = broken

	err := f.handler.HandleEvent(context.Background(), f.event("residencial"))
	if err == nil {
		t.Fatal("expected enqueue failure to surface")
	}

	sent := f.client.Sent()
	last := sent[len(sent)-1]
	if last.Text != flow.SnagConfirmation {
		t.Errorf("expected snag confirmation, got %q", last.Text)
	}
	// The user is never left mid-conversation.
	if f.sessions.Len() != 0 {
		t.Errorf("expected session cleared even on enqueue failure, %d remain", f.sessions.Len())
	}
}

func TestHandlerRejectsInvalidRecipient(t *testing.T) {
	f := newHandlerFixture(t)

	ev := f.event("/start")
	ev.UserID = "not-a-chat-id"
	if err := f.handler.HandleEvent(context.Background(), ev); err == nil {
		t.Fatal("expected error for invalid telegram chat id")
	}
	if len(f.client.Sent()) != 0 {
		t.Errorf("invalid sender still produced outbound messages: %+v", f.client.Sent())
	}
}

func TestHandlerConsumesEventsFromService(t *testing.T) {
	f := newHandlerFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.handler.Start(ctx)

	update := telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			MessageID: 10,
			From:      &telegram.User{ID: 42, FirstName: "Ana", Username: "ana"},
			Chat:      telegram.Chat{ID: 42},
			Text:      "/start",
		},
	}
	if err := f.svc.HandleUpdate(update); err != nil {
		t.Fatalf("HandleUpdate failed: %v", err)
	}

	// The consumer loop runs asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(f.client.Sent()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	sent := f.client.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 outbound message, got %d", len(sent))
	}
	if sent[0].ChatID != "42" || len(sent[0].Choices) == 0 {
		t.Errorf("unexpected first prompt: %+v", sent[0])
	}
}

// failingStore wraps a Store and fails every notification enqueue.
type failingStore struct {
	store.Store
}

func (f *failingStore) EnqueueNotification(destination, body string) (string, error) {
	return "", errors.New("outbox unavailable")
}
