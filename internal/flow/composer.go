// Package flow provides the notification composer for qualified leads.
package flow

import (
	"fmt"
	"strings"

	"github.com/viatel/triagebot/internal/models"
)

// User-facing copy. The bot speaks pt-BR like the business it fronts.
const (
	// CorrectionNotice precedes a re-sent prompt after unrecognized input.
	CorrectionNotice = "Desculpe, não entendi. Por favor, escolha uma das opções usando os botões."
	// CancelConfirmation acknowledges an explicit /cancel.
	CancelConfirmation = "Atendimento cancelado. Se precisar de algo, é só mandar um /start."
	// SnagConfirmation replaces the success confirmation when the lead could
	// not be handed to the operator; the user is asked to retry rather than
	// being left in silence.
	SnagConfirmation = "Tivemos um problema ao registrar seu atendimento. Por favor, tente novamente em alguns instantes enviando /start."
)

// Composer formats the qualified-lead summary and the user confirmation.
// It is a pure formatter: it never mutates the session and missing optional
// fields degrade to omitted text, never to a failure.
type Composer struct {
	businessName string
}

// NewComposer creates a Composer. businessName is optional.
func NewComposer(businessName string) *Composer {
	return &Composer{businessName: businessName}
}

// ComposeLead builds the operator notification for a fully answered session.
// Every answered step appears in questionnaire order, and the text always
// carries a back-reference to the user: the @username when known, otherwise a
// Telegram deep link for that user id.
func (c *Composer) ComposeLead(sess *models.Session, q Questionnaire) string {
	var b strings.Builder
	b.WriteString("✅ Novo Lead Qualificado!")
	if c.businessName != "" {
		fmt.Fprintf(&b, " (%s)", c.businessName)
	}
	b.WriteString("\n\n")

	name := sess.DisplayName
	if name == "" {
		name = "Cliente"
	}
	fmt.Fprintf(&b, "De: %s", name)
	switch {
	case sess.Username != "":
		fmt.Fprintf(&b, " (@%s)", sess.Username)
	case sess.Channel == models.ChannelTelegram:
		fmt.Fprintf(&b, " (tg://user?id=%s)", sess.UserID)
	default:
		fmt.Fprintf(&b, " (%s)", sess.UserID)
	}

	for _, id := range q.Order {
		answer, ok := sess.Answers[id]
		if !ok {
			continue
		}
		step, ok := q.Step(id)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n%s: *%s*", step.Summary, answer)
	}
	return b.String()
}

// ComposeUserConfirmation builds the closing message sent to the user after
// the questionnaire completes.
func (c *Composer) ComposeUserConfirmation(sess *models.Session, q Questionnaire) string {
	var b strings.Builder
	if service, ok := sess.Answers[q.First]; ok {
		fmt.Fprintf(&b, "Entendido, seu interesse é em *%s*.\n\n", service)
	}
	b.WriteString("Um de nossos especialistas humanos entrará em contato com você em breve aqui mesmo neste chat. Obrigado!")
	return b.String()
}
