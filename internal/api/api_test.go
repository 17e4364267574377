package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/viatel/triagebot/internal/messaging"
	"github.com/viatel/triagebot/internal/models"
	"github.com/viatel/triagebot/internal/store"
	"github.com/viatel/triagebot/internal/telegram"
)

type apiFixture struct {
	server *Server
	mux    http.Handler
	svc    *messaging.TelegramService
	store  *store.InMemoryStore
}

func newAPIFixture(t *testing.T, withTwilio bool) *apiFixture {
	t.Helper()

	svc := messaging.NewTelegramService(telegram.NewMockClient())
	t.Cleanup(func() { svc.Stop() })

	var twilioSvc *messaging.TwilioService
	if withTwilio {
		twilioSvc = messaging.NewTwilioService(nopWhatsAppSender{})
		t.Cleanup(func() { twilioSvc.Stop() })
	}

	st := store.NewInMemoryStore()
	server := NewServer(svc, twilioSvc, st)
	return &apiFixture{server: server, mux: server.routes(), svc: svc, store: st}
}

type nopWhatsAppSender struct{}

func (nopWhatsAppSender) SendMessage(ctx context.Context, to, body string) error {
	return nil
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t, false)

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Status != string(models.APIStatusOK) {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if !strings.Contains(resp.Message, "vivo") {
		t.Errorf("unexpected health message: %q", resp.Message)
	}
}

func TestHealthEndpointUnknownPath(t *testing.T) {
	f := newAPIFixture(t, false)

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestTelegramWebhookAcceptsUpdate(t *testing.T) {
	f := newAPIFixture(t, false)

	body := `{"update_id":1,"message":{"message_id":10,"from":{"id":42,"first_name":"Ana","username":"ana"},"chat":{"id":42},"date":1700000000,"text":"/start"}}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	f.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	select {
	case ev := <-f.svc.Events():
		if ev.UserID != "42" || ev.Payload != "/start" {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an event emitted from the webhook")
	}
}

func TestTelegramWebhookRejectsBadJSON(t *testing.T) {
	f := newAPIFixture(t, false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader("{not json"))
	f.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTelegramWebhookIgnoresUnusableUpdate(t *testing.T) {
	f := newAPIFixture(t, false)

	// Well-formed JSON without a usable message still gets a 200 so Telegram
	// does not redeliver it forever.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(`{"update_id":2}`))
	f.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	select {
	case ev := <-f.svc.Events():
		t.Errorf("unusable update produced an event: %+v", ev)
	default:
	}
}

func TestTelegramWebhookMethodNotAllowed(t *testing.T) {
	f := newAPIFixture(t, false)

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook/telegram", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestTwilioWebhookNotConfigured(t *testing.T) {
	f := newAPIFixture(t, false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", nil)
	f.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when whatsapp channel is disabled", rec.Code)
	}
}

func TestLeadsEndpoint(t *testing.T) {
	f := newAPIFixture(t, false)

	lead := models.Lead{
		ID:          "lead-1",
		UserID:      "42",
		DisplayName: "Ana",
		Channel:     models.ChannelTelegram,
		Answers:     map[string]string{"CHOOSE_SERVICE": "App de Internet"},
		CreatedAt:   time.Now().UTC(),
	}
	if err := f.store.AddLead(lead); err != nil {
		t.Fatalf("AddLead failed: %v", err)
	}

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leads", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Status != string(models.APIStatusOK) {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	leads, ok := resp.Result.([]any)
	if !ok || len(leads) != 1 {
		t.Fatalf("expected 1 lead in result, got %v", resp.Result)
	}
	first, ok := leads[0].(map[string]any)
	if !ok || first["id"] != "lead-1" {
		t.Errorf("unexpected lead payload: %v", leads[0])
	}
}

func TestTwilioWebhookForm(t *testing.T) {
	f := newAPIFixture(t, true)

	form := url.Values{}
	form.Set("From", "whatsapp:+5511999998888")
	form.Set("ProfileName", "Ana")
	form.Set("Body", "/start")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	f.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}
