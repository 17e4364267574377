// Package models defines the core data structures for triagebot.
//
// It includes the normalized inbound event consumed by the conversation engine,
// the outbound actions the engine produces, and the qualified lead record that
// is shared across modules.
package models

import (
	"errors"
	"time"
)

// EventKind identifies how the user produced an inbound event.
type EventKind string

const (
	// EventKindText is a freeform text message.
	EventKindText EventKind = "text"
	// EventKindButton is a button or quick-reply selection.
	EventKindButton EventKind = "button"
)

// Channel identifiers for the supported messaging platforms.
const (
	ChannelTelegram = "telegram"
	ChannelWhatsApp = "whatsapp"
)

// Validation constants for inbound payloads.
const (
	// MaxPayloadLength defines the maximum accepted length for an inbound payload.
	MaxPayloadLength = 4096
)

// Error variables for better error handling and testability.
var (
	ErrEmptyUserID       = errors.New("event user id cannot be empty")
	ErrEmptyPayload      = errors.New("event payload cannot be empty")
	ErrPayloadTooLong    = errors.New("event payload exceeds maximum length")
	ErrInvalidEventKind  = errors.New("invalid event kind")
	ErrMalformedUpdate   = errors.New("update does not contain a usable message")
	ErrNoOperator        = errors.New("operator destination is not configured")
	ErrEmptyDestination  = errors.New("notification destination cannot be empty")
	ErrEmptyNotification = errors.New("notification body cannot be empty")
)

// IsValidEventKind checks if the given event kind is supported.
func IsValidEventKind(k EventKind) bool {
	switch k {
	case EventKindText, EventKindButton:
		return true
	default:
		return false
	}
}

// InboundEvent is the normalized representation of one user action, produced
// by a channel service from the platform's wire payload. It always reflects
// exactly one action by one user.
type InboundEvent struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Username    string    `json:"username,omitempty"`
	Kind        EventKind `json:"kind"`
	Payload     string    `json:"payload"`
	IsCommand   bool      `json:"is_command"`
	Channel     string    `json:"channel"`
	Time        int64     `json:"time"`
}

// Validate checks that the event is well formed enough to reach the engine.
func (e *InboundEvent) Validate() error {
	if e.UserID == "" {
		return ErrEmptyUserID
	}
	if !IsValidEventKind(e.Kind) {
		return ErrInvalidEventKind
	}
	if e.Payload == "" {
		return ErrEmptyPayload
	}
	if len(e.Payload) > MaxPayloadLength {
		return ErrPayloadTooLong
	}
	return nil
}

// OutboundAction is a closed set of actions the conversation engine can ask
// the transport layer to perform. The concrete types are ShowPrompt,
// ShowConfirmation and NotifyOperator.
type OutboundAction interface {
	isOutboundAction()
}

// ShowPrompt asks the transport to send a question with a choice keyboard.
// Text may contain simple rich-text markup (bold/italic).
type ShowPrompt struct {
	Text    string   `json:"text"`
	Choices []string `json:"choices"`
}

// ShowConfirmation acknowledges a terminal or cancelled conversation to the
// user and removes any active keyboard.
type ShowConfirmation struct {
	Text string `json:"text"`
}

// NotifyOperator carries the qualified-lead summary to the configured
// operator destination.
type NotifyOperator struct {
	DestinationID string `json:"destination_id"`
	Text          string `json:"text"`
}

func (ShowPrompt) isOutboundAction()       {}
func (ShowConfirmation) isOutboundAction() {}
func (NotifyOperator) isOutboundAction()   {}

// Lead represents a prospective customer who completed the questionnaire and
// is ready for human follow-up.
type Lead struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	DisplayName string            `json:"display_name,omitempty"`
	Username    string            `json:"username,omitempty"`
	Channel     string            `json:"channel"`
	Answers     map[string]string `json:"answers"`
	CreatedAt   time.Time         `json:"created_at"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Result  any    `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result any) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message.
func SuccessWithMessage(message string, result any) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
