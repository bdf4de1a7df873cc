package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Answer holds a student's answer to one question. It is a tagged union
// resolved through the owning question's type: Value carries the selected
// option text (choice) or the free-text answer (text); Marks carries the
// recorded sub-item booleans (group). Exactly one side is populated.
type Answer struct {
	Value string          `json:"value,omitempty"`
	Marks map[string]bool `json:"marks,omitempty"`
}

// AnswerMap maps question id (UUID string) to the student's answer.
type AnswerMap map[string]Answer

// Answered reports whether the map holds a non-empty answer for the given
// question. A group question counts as answered once at least one sub-item
// has a recorded boolean; a text answer must survive whitespace trimming.
func (m AnswerMap) Answered(q *Question) bool {
	a, ok := m[q.ID.String()]
	if !ok {
		return false
	}
	switch q.Type {
	case QuestionTypeGroup:
		return len(a.Marks) > 0
	case QuestionTypeText:
		return strings.TrimSpace(a.Value) != ""
	default:
		return a.Value != ""
	}
}

// SessionKey identifies one session's durable snapshot. Exam id plus the
// student-supplied name and class text; there is no account identity behind
// it, so identical name+class entries collide (see session tests).
type SessionKey struct {
	ExamID      uuid.UUID `json:"exam_id"`
	StudentName string    `json:"student_name"`
	ClassName   string    `json:"class_name"`
}

// Snapshot is the durable serialization of in-progress session state. The
// shuffled question order is an explicit field so restoring is pure
// deserialization; it is never recomputed on reload.
type Snapshot struct {
	Key              SessionKey `json:"key"`
	OrderedQuestions []Question `json:"ordered_questions"`
	Answers          AnswerMap  `json:"answers"`
	CurrentIndex     int        `json:"current_index"`
	RemainingSeconds int        `json:"remaining_seconds"`
	ViolationCount   int        `json:"violation_count"`
	StartedAt        time.Time  `json:"started_at"`
	SavedAt          time.Time  `json:"saved_at"`
}
