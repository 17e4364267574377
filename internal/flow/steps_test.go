package flow

import (
	"testing"

	"github.com/viatel/triagebot/internal/models"
)

func TestDefaultQuestionnaireValidates(t *testing.T) {
	q := DefaultQuestionnaire("Via Telecom")
	if err := q.Validate(); err != nil {
		t.Fatalf("expected default questionnaire to validate, got %v", err)
	}
	if q.First != models.StepChooseService {
		t.Errorf("expected first step %q, got %q", models.StepChooseService, q.First)
	}
}

func TestQuestionnaireValidateRejectsBrokenTables(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(q *Questionnaire)
	}{
		{
			name:   "missing first step",
			mutate: func(q *Questionnaire) { q.First = models.StepNone },
		},
		{
			name:   "first step undefined",
			mutate: func(q *Questionnaire) { q.First = "BOGUS" },
		},
		{
			name: "order lists unknown step",
			mutate: func(q *Questionnaire) {
				q.Order = []models.StepID{models.StepChooseService, "BOGUS"}
			},
		},
		{
			name: "order and table disagree",
			mutate: func(q *Questionnaire) {
				q.Order = []models.StepID{models.StepChooseService}
			},
		},
		{
			name: "choice points to unknown step",
			mutate: func(q *Questionnaire) {
				step := q.Steps[models.StepChooseService]
				step.Choices = []Choice{{Tokens: []string{"internet"}, Label: "App de Internet", Next: "NOWHERE"}}
				q.Steps[models.StepChooseService] = step
			},
		},
		{
			name: "choice without tokens",
			mutate: func(q *Questionnaire) {
				step := q.Steps[models.StepGetProfile]
				step.Choices = []Choice{{Label: "Residencial", Next: models.StepTerminated}}
				q.Steps[models.StepGetProfile] = step
			},
		},
		{
			name: "uppercase token",
			mutate: func(q *Questionnaire) {
				step := q.Steps[models.StepGetProfile]
				step.Choices = []Choice{{Tokens: []string{"Residencial"}, Label: "Residencial", Next: models.StepTerminated}}
				q.Steps[models.StepGetProfile] = step
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := DefaultQuestionnaire("")
			tt.mutate(&q)
			if err := q.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestStepMatch(t *testing.T) {
	q := DefaultQuestionnaire("")
	service := q.Steps[models.StepChooseService]
	profile := q.Steps[models.StepGetProfile]

	tests := []struct {
		name      string
		step      Step
		payload   string
		wantLabel string
		wantOK    bool
	}{
		{name: "token match", step: service, payload: "internet", wantLabel: "App de Internet", wantOK: true},
		{name: "token inside sentence", step: service, payload: "quero o app de streaming", wantLabel: "App de Streaming", wantOK: true},
		{name: "case insensitive", step: service, payload: "INTERNET", wantLabel: "App de Internet", wantOK: true},
		{name: "surrounding whitespace", step: profile, payload: "  residencial  ", wantLabel: "Residencial", wantOK: true},
		{name: "bare option number", step: service, payload: "2", wantLabel: "App de Streaming", wantOK: true},
		{name: "full keyboard label", step: service, payload: "1. App de Internet", wantLabel: "App de Internet", wantOK: true},
		{name: "number then text", step: profile, payload: "2 comercial", wantLabel: "Comercial", wantOK: true},
		{name: "unrecognized text", step: service, payload: "quero falar com humano", wantOK: false},
		{name: "empty payload", step: service, payload: "   ", wantOK: false},
		{name: "out of range number", step: profile, payload: "3", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			choice, ok := tt.step.Match(tt.payload)
			if ok != tt.wantOK {
				t.Fatalf("Match(%q) ok = %v, want %v", tt.payload, ok, tt.wantOK)
			}
			if ok && choice.Label != tt.wantLabel {
				t.Errorf("Match(%q) label = %q, want %q", tt.payload, choice.Label, tt.wantLabel)
			}
		})
	}
}

func TestStepKeyboardNumbersChoices(t *testing.T) {
	q := DefaultQuestionnaire("")
	keys := q.Steps[models.StepChooseService].Keyboard()
	want := []string{"1. App de Internet", "2. App de Streaming"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d = %q, want %q", i, keys[i], want[i])
		}
	}
}
