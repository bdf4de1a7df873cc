package model

import (
	"github.com/google/uuid"
)

// QuestionType enumerates the three question families.
type QuestionType string

const (
	// QuestionTypeChoice is a single-correct-answer multiple-choice item.
	QuestionTypeChoice QuestionType = "choice"
	// QuestionTypeGroup is a set of exactly four true/false sub-statements
	// graded together as one question.
	QuestionTypeGroup QuestionType = "group"
	// QuestionTypeText is a short free-text answer graded by exact
	// normalized string match.
	QuestionTypeText QuestionType = "text"
)

// GroupSize is the fixed number of sub-items in a group question.
// Authoring pads or truncates to this size before an exam is published.
const GroupSize = 4

// SubItem is one true/false statement inside a group question.
type SubItem struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Image   string `json:"image,omitempty"`
	IsTrue  bool   `json:"is_true"`
}

// Question is one immutable exam question. It is a tagged union over
// QuestionType: Options/CorrectOption are meaningful only for choice,
// SubItems only for group, ReferenceAnswer only for text. Never assume a
// variant field is populated without checking Type first.
type Question struct {
	ID      uuid.UUID    `json:"id"`
	Type    QuestionType `json:"type"`
	Prompt  string       `json:"prompt"`
	Section string       `json:"section,omitempty"`
	Image   string       `json:"image,omitempty"`

	// Choice only. CorrectOption holds the correct option's TEXT and is the
	// equality key for grading, which keeps option shuffling from moving the
	// answer key. Two options with identical text are indistinguishable.
	Options       []string `json:"options,omitempty"`
	OptionImages  []string `json:"option_images,omitempty"`
	CorrectOption string   `json:"correct_option,omitempty"`
	MixOptions    bool     `json:"mix_options,omitempty"`

	// Group only.
	SubItems []SubItem `json:"sub_items,omitempty"`

	// Text only.
	ReferenceAnswer string `json:"reference_answer,omitempty"`
}

// AddQuestionRequest is the authoring payload for one question.
type AddQuestionRequest struct {
	Type            string            `json:"type" binding:"required,oneof=choice group text"`
	Prompt          string            `json:"prompt" binding:"required,min=1,max=4000"`
	Section         string            `json:"section" binding:"omitempty,max=120"`
	Image           string            `json:"image" binding:"omitempty"`
	Options         []string          `json:"options" binding:"omitempty,min=2,dive,min=1"`
	OptionImages    []string          `json:"option_images" binding:"omitempty"`
	CorrectOption   string            `json:"correct_option" binding:"omitempty,max=2000"`
	MixOptions      bool              `json:"mix_options"`
	SubItems        []SubItemRequest  `json:"sub_items" binding:"omitempty,dive"`
	ReferenceAnswer string            `json:"reference_answer" binding:"omitempty,max=500"`
}

// SubItemRequest is the authoring payload for one group sub-statement.
type SubItemRequest struct {
	Content string `json:"content" binding:"required,min=1,max=2000"`
	Image   string `json:"image" binding:"omitempty"`
	IsTrue  bool   `json:"is_true"`
}
