package model

import (
	"time"

	"github.com/google/uuid"
)

// FinalizeTrigger records which of the three triggers won the race to
// finalize a session.
type FinalizeTrigger string

const (
	TriggerSubmit     FinalizeTrigger = "submit"
	TriggerTimeout    FinalizeTrigger = "timeout"
	TriggerViolations FinalizeTrigger = "violations"
)

// Counts tallies question outcomes. Empty is derived as
// total - correct - wrong, never summed independently.
type Counts struct {
	Correct int `json:"correct"`
	Wrong   int `json:"wrong"`
	Empty   int `json:"empty"`
}

// FamilyBreakdown carries per-family counts and awarded points, rendered in
// teacher-side result review.
type FamilyBreakdown struct {
	Questions int     `json:"questions"`
	Counts    Counts  `json:"counts"`
	Points    float64 `json:"points"`
}

// ScoreReport is the output of the scoring engine.
type ScoreReport struct {
	Score  float64 `json:"score"`
	Total  int     `json:"total"`
	Counts Counts  `json:"counts"`

	Choice FamilyBreakdown `json:"choice"`
	Group  FamilyBreakdown `json:"group"`
	Text   FamilyBreakdown `json:"text"`
}

// ResultRecord is produced exactly once per finalized session and handed to
// the persistence sink. Raw answers ride along for teacher review.
type ResultRecord struct {
	ExamID           uuid.UUID       `json:"exam_id"`
	StudentName      string          `json:"student_name"`
	ClassName        string          `json:"class_name"`
	Score            float64         `json:"score"`
	TotalQuestions   int             `json:"total_questions"`
	Counts           Counts          `json:"counts"`
	Choice           FamilyBreakdown `json:"choice"`
	Group            FamilyBreakdown `json:"group"`
	Text             FamilyBreakdown `json:"text"`
	TimeSpentSeconds int             `json:"time_spent_seconds"`
	ViolationCount   int             `json:"violation_count"`
	Answers          AnswerMap       `json:"answers"`
	Trigger          FinalizeTrigger `json:"trigger"`
	FinishedAt       time.Time       `json:"finished_at"`
}
