package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/viatel/triagebot/internal/flow"
	"github.com/viatel/triagebot/internal/models"
	"github.com/viatel/triagebot/internal/session"
	"github.com/viatel/triagebot/internal/store"
)

// Handler consumes a channel's inbound events, resolves the user's session,
// runs the conversation engine, and executes the resulting outbound actions.
//
// Events for one service are processed by a single loop, so events for the
// same user are always applied in arrival order and a session is never
// mutated by two transitions at once.
type Handler struct {
	svc      Service
	sessions session.Store
	engine   *flow.Engine
	store    store.Store
}

// NewHandler creates a Handler wiring a channel service to the engine and
// the stores.
func NewHandler(svc Service, sessions session.Store, engine *flow.Engine, st store.Store) *Handler {
	return &Handler{svc: svc, sessions: sessions, engine: engine, store: st}
}

// Start begins consuming events from the service. It returns immediately;
// processing continues until the context is cancelled or the service's
// events channel closes.
func (h *Handler) Start(ctx context.Context) {
	slog.Info("Handler starting event processing")

	go func() {
		defer slog.Info("Handler stopped event processing")

		for {
			select {
			case ev, ok := <-h.svc.Events():
				if !ok {
					slog.Debug("Handler events channel closed")
					return
				}
				if err := h.HandleEvent(ctx, ev); err != nil {
					slog.Error("Handler failed to process event", "error", err, "userID", ev.UserID)
				}
			case <-ctx.Done():
				slog.Debug("Handler stopping due to context cancellation")
				return
			}
		}
	}()
}

// HandleEvent applies one inbound event end to end: session lookup,
// transition, persistence, and outbound sends. Send failures are logged and
// surfaced but never leave the user-facing flow hung mid-conversation.
func (h *Handler) HandleEvent(ctx context.Context, ev models.InboundEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	canonical, err := h.svc.ValidateAndCanonicalizeRecipient(ev.UserID)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	ev.UserID = canonical

	key := sessionKey(ev)
	sess, err := h.sessions.GetOrCreate(ctx, key)
	if err != nil {
		return fmt.Errorf("session lookup for %s failed: %w", key, err)
	}
	refreshSession(sess, ev)

	result, err := h.engine.Transition(sess, ev)
	if err != nil {
		return fmt.Errorf("transition failed: %w", err)
	}

	// Persist the state change before any side effect goes out.
	if result.Discard {
		if err := h.sessions.Clear(ctx, key); err != nil {
			slog.Error("Handler failed to clear session", "error", err, "key", key)
		}
	} else {
		if err := h.sessions.Save(ctx, key, sess); err != nil {
			slog.Error("Handler failed to save session", "error", err, "key", key)
		}
	}

	if result.Lead != nil {
		if err := h.store.AddLead(*result.Lead); err != nil {
			// The lead still reaches the operator through the outbox.
			slog.Error("Handler failed to persist lead", "error", err, "leadID", result.Lead.ID)
		}
	}

	return h.execute(ctx, ev, result.Actions)
}

// execute performs the engine's outbound actions in order. A failed operator
// enqueue downgrades the user confirmation to the retry notice so the user
// never gets a success message for a lead that was lost.
func (h *Handler) execute(ctx context.Context, ev models.InboundEvent, actions []models.OutboundAction) error {
	var firstErr error
	notifyFailed := false

	for _, action := range actions {
		switch a := action.(type) {
		case models.NotifyOperator:
			id, err := h.store.EnqueueNotification(a.DestinationID, a.Text)
			if err != nil {
				notifyFailed = true
				slog.Error("Handler failed to enqueue operator notification", "error", err, "destination", a.DestinationID)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			slog.Info("Handler operator notification queued", "notificationID", id, "userID", ev.UserID)
		case models.ShowPrompt:
			if err := h.svc.SendPrompt(ctx, ev.UserID, a.Text, a.Choices); err != nil {
				slog.Error("Handler failed to send prompt", "error", err, "userID", ev.UserID)
				if firstErr == nil {
					firstErr = err
				}
			}
		case models.ShowConfirmation:
			text := a.Text
			if notifyFailed {
				text = flow.SnagConfirmation
			}
			if err := h.svc.SendConfirmation(ctx, ev.UserID, text); err != nil {
				slog.Error("Handler failed to send confirmation", "error", err, "userID", ev.UserID)
				if firstErr == nil {
					firstErr = err
				}
			}
		default:
			slog.Error("Handler received unknown action type", "action", fmt.Sprintf("%T", action))
		}
	}
	return firstErr
}

// sessionKey namespaces session storage by channel so a Telegram chat id can
// never collide with a WhatsApp number.
func sessionKey(ev models.InboundEvent) string {
	return ev.Channel + ":" + ev.UserID
}

// refreshSession updates the denormalized user fields on every event; the
// freshest values feed the operator notification.
func refreshSession(sess *models.Session, ev models.InboundEvent) {
	sess.UserID = ev.UserID
	sess.Channel = ev.Channel
	if ev.DisplayName != "" {
		sess.DisplayName = ev.DisplayName
	}
	if ev.Username != "" {
		sess.Username = ev.Username
	}
}
