// Package models defines session state structures for triagebot conversations.
package models

import "time"

// StepID identifies one stage of the questionnaire. The empty value means the
// user has no active conversation.
type StepID string

// Step constants for the lead-qualification questionnaire.
const (
	// StepNone marks a user with no active conversation.
	StepNone StepID = ""
	// StepChooseService asks which service the user is interested in.
	StepChooseService StepID = "CHOOSE_SERVICE"
	// StepGetProfile asks about the usage profile.
	StepGetProfile StepID = "GET_PROFILE"
	// StepTerminated is the only terminal marker; sessions that reach it are discarded.
	StepTerminated StepID = "TERMINATED"
)

// Session holds the per-user conversation progress. It is created on the
// first inbound event from a user, mutated only by the conversation engine,
// and removed from the session store once the conversation terminates.
type Session struct {
	UserID      string            `json:"user_id"`
	Channel     string            `json:"channel"`
	DisplayName string            `json:"display_name,omitempty"`
	Username    string            `json:"username,omitempty"`
	CurrentStep StepID            `json:"current_step"`
	Answers     map[StepID]string `json:"answers,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Started reports whether the session is in the middle of a questionnaire.
func (s *Session) Started() bool {
	return s.CurrentStep != StepNone && s.CurrentStep != StepTerminated
}
