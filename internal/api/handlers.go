package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/viatel/triagebot/internal/models"
	"github.com/viatel/triagebot/internal/telegram"
)

// maxWebhookBodySize bounds webhook payload reads.
const maxWebhookBodySize = 1 << 20

// healthHandler answers the hosting platform's liveness probe.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("not found"))
		return
	}
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Bot está vivo e pronto para conversar!", nil))
}

// telegramWebhookHandler decodes one Bot API update and hands it to the
// Telegram service. Updates the service rejects as unusable still get a 200
// so Telegram does not redeliver them forever.
func (s *Server) telegramWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}

	var update telegram.Update
	body := http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	if err := json.NewDecoder(body).Decode(&update); err != nil {
		slog.Error("Server telegram webhook decode failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid update payload"))
		return
	}

	if err := s.telegramSvc.HandleUpdate(update); err != nil {
		if errors.Is(err, models.ErrMalformedUpdate) {
			slog.Debug("Server ignoring unusable telegram update", "updateID", update.UpdateID)
		} else {
			slog.Error("Server telegram update handling failed", "error", err, "updateID", update.UpdateID)
		}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// twilioWebhookHandler accepts Twilio's form-encoded inbound message webhook.
func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	if s.twilioSvc == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("whatsapp channel not configured"))
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Error("Server twilio webhook parse failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid webhook payload"))
		return
	}

	from := r.PostFormValue("From")
	profileName := r.PostFormValue("ProfileName")
	msgBody := r.PostFormValue("Body")
	if err := s.twilioSvc.HandleIncoming(from, profileName, msgBody); err != nil {
		slog.Debug("Server ignoring unusable twilio message", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// leadsHandler lists the stored qualified leads.
func (s *Server) leadsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	leads, err := s.store.GetLeads()
	if err != nil {
		slog.Error("Server failed to list leads", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to list leads"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(leads))
}
