package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// GroupGradingMethod selects how partially-correct group questions score.
type GroupGradingMethod string

const (
	// GroupGradingProgressive awards a stepped multiplier per correct
	// sub-item count: 1→0.10, 2→0.25, 3→0.50, 4→1.00.
	GroupGradingProgressive GroupGradingMethod = "progressive"
	// GroupGradingEqual awards k/4 of the question's points.
	GroupGradingEqual GroupGradingMethod = "equal"
)

// GradingConfig distributes point pools evenly across the questions of each
// family. A family absent from the exam contributes 0; the division is
// guarded so a zero count never faults.
type GradingConfig struct {
	ChoiceSectionTotal      float64            `json:"choice_section_total"`
	GroupSectionTotal       float64            `json:"group_section_total"`
	ShortAnswerSectionTotal float64            `json:"short_answer_section_total"`
	EssaySectionTotal       float64            `json:"essay_section_total"`
	GroupGradingMethod      GroupGradingMethod `json:"group_grading_method"`
	AvailableFrom           *time.Time         `json:"available_from,omitempty"`
	AvailableUntil          *time.Time         `json:"available_until,omitempty"`
}

// Exam is the full exam definition, immutable for a session's lifetime.
type Exam struct {
	ID              uuid.UUID     `json:"id"`
	Code            string        `json:"code"`
	SecurityHash    string        `json:"-"`
	Title           string        `json:"title"`
	ClassName       string        `json:"class_name"`
	DurationMinutes int           `json:"duration_minutes"`
	MaxViolations   int           `json:"max_violations"`
	AllowHints      bool          `json:"allow_hints"`
	AllowReview     bool          `json:"allow_review"`
	MixQuestions    bool          `json:"mix_questions"`
	Grading         GradingConfig `json:"grading"`
	Questions       []Question    `json:"questions,omitempty"`
	Status          ExamStatus    `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// AvailabilityStatus describes where "now" falls in the exam's window.
type AvailabilityStatus string

const (
	AvailabilityUpcoming AvailabilityStatus = "UPCOMING"
	AvailabilityOpen     AvailabilityStatus = "OPEN"
	AvailabilityClosed   AvailabilityStatus = "CLOSED"
)

// Availability evaluates the exam's optional time window at the given instant.
// An exam with no window is always open once published.
func (e *Exam) Availability(now time.Time) AvailabilityStatus {
	if e.Grading.AvailableFrom != nil && now.Before(*e.Grading.AvailableFrom) {
		return AvailabilityUpcoming
	}
	if e.Grading.AvailableUntil != nil && now.After(*e.Grading.AvailableUntil) {
		return AvailabilityClosed
	}
	return AvailabilityOpen
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Code            string               `json:"code" binding:"required,min=4,max=20,alphanum"`
	SecurityCode    string               `json:"security_code" binding:"required,min=4,max=40"`
	Title           string               `json:"title" binding:"required,min=3,max=255"`
	ClassName       string               `json:"class_name" binding:"omitempty,max=60"`
	DurationMinutes int                  `json:"duration_minutes" binding:"required,min=1,max=480"`
	MaxViolations   int                  `json:"max_violations" binding:"min=0,max=50"`
	AllowHints      bool                 `json:"allow_hints"`
	AllowReview     bool                 `json:"allow_review"`
	MixQuestions    bool                 `json:"mix_questions"`
	Grading         GradingConfig        `json:"grading"`
	Questions       []AddQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}

// UpdateExamRequest is the payload for updating a DRAFT exam.
type UpdateExamRequest struct {
	Title           string               `json:"title" binding:"omitempty,min=3,max=255"`
	ClassName       string               `json:"class_name" binding:"omitempty,max=60"`
	DurationMinutes int                  `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	MaxViolations   *int                 `json:"max_violations" binding:"omitempty,min=0,max=50"`
	AllowHints      *bool                `json:"allow_hints" binding:"omitempty"`
	AllowReview     *bool                `json:"allow_review" binding:"omitempty"`
	MixQuestions    *bool                `json:"mix_questions" binding:"omitempty"`
	Grading         *GradingConfig       `json:"grading" binding:"omitempty"`
	Questions       []AddQuestionRequest `json:"questions" binding:"omitempty,min=1,dive"`
}

// ExamPayload is the Redis-cached, student-facing exam (no correct answers).
type ExamPayload struct {
	ExamID          uuid.UUID            `json:"exam_id"`
	Title           string               `json:"title"`
	DurationMinutes int                  `json:"duration_minutes"`
	MaxViolations   int                  `json:"max_violations"`
	AllowHints      bool                 `json:"allow_hints"`
	Questions       []QuestionForStudent `json:"questions"`
}

// QuestionForStudent is a question stripped of its answer key.
type QuestionForStudent struct {
	ID           uuid.UUID           `json:"id"`
	Type         QuestionType        `json:"type"`
	Prompt       string              `json:"prompt"`
	Section      string              `json:"section,omitempty"`
	Image        string              `json:"image,omitempty"`
	Options      []string            `json:"options,omitempty"`
	OptionImages []string            `json:"option_images,omitempty"`
	SubItems     []SubItemForStudent `json:"sub_items,omitempty"`
}

// SubItemForStudent is a group sub-statement without its truth value.
type SubItemForStudent struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Image   string `json:"image,omitempty"`
}

// JoinExamRequest is the payload for a student entering an exam.
type JoinExamRequest struct {
	Code         string `json:"code" binding:"required,min=4,max=20"`
	SecurityCode string `json:"security_code" binding:"required,min=4,max=40"`
	StudentName  string `json:"student_name" binding:"required,min=2,max=120"`
	ClassName    string `json:"class_name" binding:"required,min=1,max=60"`
}
