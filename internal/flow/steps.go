// Package flow implements the conversation state machine that qualifies
// inbound leads.
//
// The questionnaire is a declarative table of steps. Each step carries its
// prompt, the set of accepted input tokens, and the next-step mapping, so
// adding a step is a data change rather than a control-flow change.
package flow

import (
	"fmt"
	"strings"

	"github.com/viatel/triagebot/internal/models"
)

// Choice is one selectable answer within a step. Tokens are lowercase input
// aliases matched against the inbound payload; Label is the human answer
// recorded into the session and rendered on the keyboard.
type Choice struct {
	Tokens []string
	Label  string
	Next   models.StepID
}

// Step is one stage of the questionnaire.
type Step struct {
	ID      models.StepID
	Prompt  string
	Summary string // label used for this step's answer in the operator notification
	Choices []Choice
}

// Keyboard returns the numbered labels rendered as the step's button set.
func (s Step) Keyboard() []string {
	keys := make([]string, 0, len(s.Choices))
	for i, c := range s.Choices {
		keys = append(keys, fmt.Sprintf("%d. %s", i+1, c.Label))
	}
	return keys
}

// Match finds the first choice whose tokens match the inbound payload.
// Matching is case-insensitive and accepts either the option number or any
// token contained in the input, so "2", "2. App de Streaming" and "streaming"
// all select the same choice.
func (s Step) Match(payload string) (Choice, bool) {
	norm := strings.ToLower(strings.TrimSpace(payload))
	if norm == "" {
		return Choice{}, false
	}
	for i, c := range s.Choices {
		number := fmt.Sprintf("%d", i+1)
		if norm == number || strings.HasPrefix(norm, number+".") || strings.HasPrefix(norm, number+" ") {
			return c, true
		}
		for _, tok := range c.Tokens {
			if tok != "" && strings.Contains(norm, tok) {
				return c, true
			}
		}
	}
	return Choice{}, false
}

// Questionnaire is the closed step table walked by the engine. Order lists
// the steps in traversal order and drives deterministic notification text.
type Questionnaire struct {
	First models.StepID
	Order []models.StepID
	Steps map[models.StepID]Step
}

// Step looks up a step definition by ID.
func (q Questionnaire) Step(id models.StepID) (Step, bool) {
	s, ok := q.Steps[id]
	return s, ok
}

// Validate checks the structural invariants of the table: the first step
// exists, every step has at least one choice with tokens and a label, and
// every next-step reference resolves to a defined step or the terminal marker.
func (q Questionnaire) Validate() error {
	if q.First == models.StepNone {
		return fmt.Errorf("questionnaire has no first step")
	}
	if _, ok := q.Steps[q.First]; !ok {
		return fmt.Errorf("first step %q is not defined", q.First)
	}
	if len(q.Order) != len(q.Steps) {
		return fmt.Errorf("step order lists %d steps, table defines %d", len(q.Order), len(q.Steps))
	}
	for _, id := range q.Order {
		step, ok := q.Steps[id]
		if !ok {
			return fmt.Errorf("ordered step %q is not defined", id)
		}
		if step.ID != id {
			return fmt.Errorf("step %q is registered under key %q", step.ID, id)
		}
		if step.Prompt == "" {
			return fmt.Errorf("step %q has no prompt", id)
		}
		if len(step.Choices) == 0 {
			return fmt.Errorf("step %q has no choices", id)
		}
		for _, c := range step.Choices {
			if c.Label == "" {
				return fmt.Errorf("step %q has a choice without a label", id)
			}
			if len(c.Tokens) == 0 {
				return fmt.Errorf("step %q choice %q has no tokens", id, c.Label)
			}
			for _, tok := range c.Tokens {
				if tok != strings.ToLower(strings.TrimSpace(tok)) || tok == "" {
					return fmt.Errorf("step %q choice %q has invalid token %q", id, c.Label, tok)
				}
			}
			if c.Next != models.StepTerminated {
				if _, ok := q.Steps[c.Next]; !ok {
					return fmt.Errorf("step %q choice %q points to unknown step %q", id, c.Label, c.Next)
				}
			}
		}
	}
	return nil
}

// DefaultQuestionnaire builds the lead-qualification flow: service interest
// followed by usage profile. businessName is woven into the greeting when set.
func DefaultQuestionnaire(businessName string) Questionnaire {
	greeting := "Olá! Seja bem-vindo(a). Sou seu assistente virtual."
	if businessName != "" {
		greeting = fmt.Sprintf("Olá! Seja bem-vindo(a) à *%s*. Sou seu assistente virtual.", businessName)
	}
	return Questionnaire{
		First: models.StepChooseService,
		Order: []models.StepID{models.StepChooseService, models.StepGetProfile},
		Steps: map[models.StepID]Step{
			models.StepChooseService: {
				ID:      models.StepChooseService,
				Prompt:  greeting + "\n\nPara começarmos, qual dos nossos serviços você tem interesse?",
				Summary: "Serviço de Interesse",
				Choices: []Choice{
					{Tokens: []string{"internet"}, Label: "App de Internet", Next: models.StepGetProfile},
					{Tokens: []string{"streaming"}, Label: "App de Streaming", Next: models.StepGetProfile},
				},
			},
			models.StepGetProfile: {
				ID:      models.StepGetProfile,
				Prompt:  "Perfeito! E qual será o perfil de uso?",
				Summary: "Perfil de Uso",
				Choices: []Choice{
					{Tokens: []string{"residencial"}, Label: "Residencial", Next: models.StepTerminated},
					{Tokens: []string{"comercial"}, Label: "Comercial", Next: models.StepTerminated},
				},
			},
		},
	}
}
