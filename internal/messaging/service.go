// Package messaging provides the channel services that normalize platform
// webhooks into inbound events, and the handler that drives the conversation
// engine from those events.
package messaging

import (
	"context"
	"errors"

	"github.com/viatel/triagebot/internal/models"
)

// DefaultChannelBufferSize is the buffer size for event channels.
const DefaultChannelBufferSize = 100

// ErrServiceStopped is returned when a send is attempted on a stopped service.
var ErrServiceStopped = errors.New("messaging service is stopped")

// Service defines a pluggable message channel. Each service validates its own
// recipient format, delivers the engine's outbound actions natively, and
// exposes the stream of normalized inbound events for its platform.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier, returning the canonical form.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendConfirmation sends plain text and clears any active choice keyboard.
	SendConfirmation(ctx context.Context, to, body string) error

	// SendPrompt sends a question together with its selectable choices.
	SendPrompt(ctx context.Context, to, body string, choices []string) error

	// Events returns the channel of normalized inbound events. The channel is
	// closed when the service stops.
	Events() <-chan models.InboundEvent

	// Start begins any background processing.
	Start(ctx context.Context) error

	// Stop stops the service and closes the events channel.
	Stop() error
}
