package websocket

import (
	"github.com/examind/examind-backend/internal/model"
	"github.com/examind/examind-backend/internal/session"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionNavigate Action = "navigate"
	ActionSignal   Action = "signal"
	ActionAck      Action = "ack"
	ActionSubmit   Action = "submit"
	ActionHint     Action = "hint"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest records or overwrites one answer. Exactly one of Value and
// Marks is set, matching the question family.
type AnswerRequest struct {
	Action     Action          `json:"action"`
	QuestionID string          `json:"question_id"`
	Value      string          `json:"value,omitempty"`
	Marks      map[string]bool `json:"marks,omitempty"`
}

// NavigateRequest moves the bookmark to another question.
type NavigateRequest struct {
	Action Action `json:"action"`
	Index  int    `json:"index"`
}

// SignalRequest reports one proctoring environment signal.
type SignalRequest struct {
	Action Action `json:"action"`
	Signal string `json:"signal"`
}

// AckRequest clears the blocked sub-state after a violation warning.
type AckRequest struct {
	Action Action `json:"action"`
}

// SubmitRequest finishes and grades the exam.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// HintRequest asks for an AI hint on one question.
type HintRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState   Event = "state"
	EventSaved   Event = "saved"
	EventWarning Event = "warning"
	EventGraded  Event = "graded"
	EventHint    Event = "hint"
	EventError   Event = "error"
	EventPong    Event = "pong"
)

// StateResponse pushes the full live view, sent on attach and after
// navigation so a reloading client can resync.
type StateResponse struct {
	Event Event        `json:"event"`
	State session.View `json:"state"`
}

// SavedResponse acknowledges a persisted answer.
type SavedResponse struct {
	Event         Event  `json:"event"`
	QuestionID    string `json:"question_id"`
	AnsweredCount int    `json:"answered_count"`
}

// WarningResponse is pushed when a violation blocks the session. The client
// must show the overlay and send ack to resume.
type WarningResponse struct {
	Event          Event  `json:"event"`
	Signal         string `json:"signal"`
	ViolationCount int    `json:"violation_count"`
	MaxViolations  int    `json:"max_violations"`
}

// GradedResponse carries the locally computed score the moment the session
// finalizes, regardless of trigger. PersistWarning is set only when the
// result hand-off to storage failed after the fact.
type GradedResponse struct {
	Event          Event               `json:"event"`
	Trigger        string              `json:"trigger"`
	Record         *model.ResultRecord `json:"record"`
	PersistWarning string              `json:"persist_warning,omitempty"`
}

// HintResponse carries the AI-generated hint text.
type HintResponse struct {
	Event      Event  `json:"event"`
	QuestionID string `json:"question_id"`
	Hint       string `json:"hint"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
