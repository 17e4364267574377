package flow

import (
	"strings"
	"testing"

	"github.com/viatel/triagebot/internal/models"
)

func qualifiedSession() *models.Session {
	return &models.Session{
		UserID:      "42",
		Channel:     models.ChannelTelegram,
		DisplayName: "Ana Souza",
		Username:    "anasouza",
		CurrentStep: models.StepTerminated,
		Answers: map[models.StepID]string{
			models.StepChooseService: "App de Internet",
			models.StepGetProfile:    "Residencial",
		},
	}
}

func TestComposeLead(t *testing.T) {
	c := NewComposer("Via Telecom")
	q := DefaultQuestionnaire("Via Telecom")

	text := c.ComposeLead(qualifiedSession(), q)

	for _, want := range []string{
		"✅ Novo Lead Qualificado!",
		"Via Telecom",
		"De: Ana Souza (@anasouza)",
		"Serviço de Interesse: *App de Internet*",
		"Perfil de Uso: *Residencial*",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("notification missing %q:\n%s", want, text)
		}
	}

	// Answers must appear in questionnaire order regardless of map iteration.
	if strings.Index(text, "Serviço de Interesse") > strings.Index(text, "Perfil de Uso") {
		t.Errorf("answers out of questionnaire order:\n%s", text)
	}
}

func TestComposeLeadWithoutUsernameUsesDeepLink(t *testing.T) {
	c := NewComposer("")
	q := DefaultQuestionnaire("")

	sess := qualifiedSession()
	sess.Username = ""
	text := c.ComposeLead(sess, q)

	if !strings.Contains(text, "tg://user?id=42") {
		t.Errorf("expected telegram deep link for user without username:\n%s", text)
	}
	if strings.Contains(text, "@") {
		t.Errorf("expected no @username reference:\n%s", text)
	}
}

func TestComposeLeadWhatsAppFallsBackToNumber(t *testing.T) {
	c := NewComposer("")
	q := DefaultQuestionnaire("")

	sess := qualifiedSession()
	sess.Channel = models.ChannelWhatsApp
	sess.Username = ""
	sess.UserID = "5511999998888"
	text := c.ComposeLead(sess, q)

	if !strings.Contains(text, "(5511999998888)") {
		t.Errorf("expected phone number reference:\n%s", text)
	}
	if strings.Contains(text, "tg://") {
		t.Errorf("telegram deep link leaked into whatsapp lead:\n%s", text)
	}
}

func TestComposeLeadAnonymousUser(t *testing.T) {
	c := NewComposer("")
	q := DefaultQuestionnaire("")

	sess := qualifiedSession()
	sess.DisplayName = ""
	sess.Username = ""
	text := c.ComposeLead(sess, q)

	if !strings.Contains(text, "De: Cliente") {
		t.Errorf("expected placeholder name for anonymous user:\n%s", text)
	}
}

func TestComposeUserConfirmation(t *testing.T) {
	c := NewComposer("Via Telecom")
	q := DefaultQuestionnaire("Via Telecom")

	text := c.ComposeUserConfirmation(qualifiedSession(), q)
	if !strings.Contains(text, "*App de Internet*") {
		t.Errorf("confirmation missing chosen service:\n%s", text)
	}
	if !strings.Contains(text, "especialistas humanos") {
		t.Errorf("confirmation missing handoff notice:\n%s", text)
	}
}
