// Package flow provides the conversation engine driving the questionnaire.
package flow

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viatel/triagebot/internal/models"
)

// Recognized commands, matched without the leading slash or bot suffix.
const (
	startCommand  = "start"
	cancelCommand = "cancel"
)

// Result is the structured outcome of one transition. Actions are executed in
// order by the caller; Discard signals the session must be removed from the
// store; Lead is set exactly once, when the terminal step is reached.
type Result struct {
	Actions []models.OutboundAction
	Discard bool
	Lead    *models.Lead
}

// Engine applies inbound events to sessions. It is stateless and safe to
// share across channels; all conversation state lives in the session.
type Engine struct {
	questionnaire Questionnaire
	composer      *Composer
	operatorID    string
}

// NewEngine validates the questionnaire table and the operator destination.
// A missing operator destination is a permanent misconfiguration and refuses
// to construct rather than silently dropping leads later.
func NewEngine(q Questionnaire, composer *Composer, operatorID string) (*Engine, error) {
	if operatorID == "" {
		return nil, models.ErrNoOperator
	}
	if composer == nil {
		composer = NewComposer("")
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("invalid questionnaire: %w", err)
	}
	slog.Debug("Engine created", "firstStep", q.First, "steps", len(q.Steps))
	return &Engine{questionnaire: q, composer: composer, operatorID: operatorID}, nil
}

// Transition applies one inbound event to the session and returns the
// outbound actions to perform. Invalid input for the current step leaves the
// session untouched and yields a re-prompt, so repeated bad input can never
// corrupt answers or advance the step.
func (e *Engine) Transition(sess *models.Session, ev models.InboundEvent) (Result, error) {
	if err := ev.Validate(); err != nil {
		slog.Error("Engine.Transition rejected event", "error", err, "userID", ev.UserID)
		return Result{}, err
	}

	cmd := ""
	if ev.IsCommand {
		cmd = commandName(ev.Payload)
	}

	switch {
	case cmd == cancelCommand:
		return e.cancel(sess), nil
	case cmd == startCommand || !sess.Started():
		return e.start(sess), nil
	case cmd != "":
		// Unknown command mid-conversation: treat like unrecognized input.
		return e.reprompt(sess), nil
	default:
		return e.answer(sess, ev), nil
	}
}

// start resets the session and enters the first step. It also serves as the
// explicit restart path when /start arrives mid-conversation.
func (e *Engine) start(sess *models.Session) Result {
	sess.Answers = make(map[models.StepID]string)
	sess.CurrentStep = e.questionnaire.First
	step := e.questionnaire.Steps[e.questionnaire.First]
	slog.Info("Engine conversation started", "userID", sess.UserID, "step", step.ID)
	return Result{Actions: []models.OutboundAction{promptFor(step)}}
}

// cancel terminates the conversation without emitting a lead notification.
func (e *Engine) cancel(sess *models.Session) Result {
	slog.Info("Engine conversation cancelled", "userID", sess.UserID, "step", sess.CurrentStep)
	sess.CurrentStep = models.StepTerminated
	return Result{
		Actions: []models.OutboundAction{models.ShowConfirmation{Text: CancelConfirmation}},
		Discard: true,
	}
}

func (e *Engine) answer(sess *models.Session, ev models.InboundEvent) Result {
	step, ok := e.questionnaire.Step(sess.CurrentStep)
	if !ok {
		// Session points at a step that no longer exists; restart cleanly.
		slog.Error("Engine session in unknown step, restarting", "userID", sess.UserID, "step", sess.CurrentStep)
		return e.start(sess)
	}

	choice, ok := step.Match(ev.Payload)
	if !ok {
		slog.Debug("Engine unrecognized input", "userID", sess.UserID, "step", step.ID)
		return e.reprompt(sess)
	}

	if sess.Answers == nil {
		sess.Answers = make(map[models.StepID]string)
	}
	sess.Answers[step.ID] = choice.Label
	slog.Info("Engine answer recorded", "userID", sess.UserID, "step", step.ID, "answer", choice.Label)

	if choice.Next == models.StepTerminated {
		return e.finish(sess)
	}

	next := e.questionnaire.Steps[choice.Next]
	sess.CurrentStep = next.ID
	return Result{Actions: []models.OutboundAction{promptFor(next)}}
}

// finish reaches the terminal step: exactly one operator notification and one
// user confirmation are emitted, and the session is marked for discard.
func (e *Engine) finish(sess *models.Session) Result {
	sess.CurrentStep = models.StepTerminated
	lead := e.buildLead(sess)
	slog.Info("Engine conversation completed", "userID", sess.UserID, "leadID", lead.ID)
	return Result{
		Actions: []models.OutboundAction{
			models.NotifyOperator{DestinationID: e.operatorID, Text: e.composer.ComposeLead(sess, e.questionnaire)},
			models.ShowConfirmation{Text: e.composer.ComposeUserConfirmation(sess, e.questionnaire)},
		},
		Discard: true,
		Lead:    &lead,
	}
}

// reprompt re-sends the current step without mutating the session.
func (e *Engine) reprompt(sess *models.Session) Result {
	step := e.questionnaire.Steps[sess.CurrentStep]
	prompt := promptFor(step)
	prompt.Text = CorrectionNotice + "\n\n" + step.Prompt
	return Result{Actions: []models.OutboundAction{prompt}}
}

func (e *Engine) buildLead(sess *models.Session) models.Lead {
	answers := make(map[string]string, len(sess.Answers))
	for id, label := range sess.Answers {
		answers[string(id)] = label
	}
	return models.Lead{
		ID:          uuid.New().String(),
		UserID:      sess.UserID,
		DisplayName: sess.DisplayName,
		Username:    sess.Username,
		Channel:     sess.Channel,
		Answers:     answers,
		CreatedAt:   time.Now().UTC(),
	}
}

func promptFor(step Step) models.ShowPrompt {
	return models.ShowPrompt{Text: step.Prompt, Choices: step.Keyboard()}
}

// commandName extracts the bare command from payloads like "/start",
// "/start@triagebot" or "/cancel now".
func commandName(payload string) string {
	fields := strings.Fields(strings.TrimSpace(payload))
	if len(fields) == 0 {
		return ""
	}
	cmd := strings.TrimPrefix(strings.ToLower(fields[0]), "/")
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	return cmd
}
