package service

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"

	"github.com/examind/examind-backend/internal/model"
	"github.com/examind/examind-backend/internal/shuffle"
)

func mixExam() *model.Exam {
	return &model.Exam{
		ID:              uuid.New(),
		Title:           "payload exam",
		DurationMinutes: 30,
		MixQuestions:    true,
		Questions: []model.Question{
			{
				ID:            uuid.New(),
				Type:          model.QuestionTypeChoice,
				Prompt:        "mixed",
				Options:       []string{"A", "B", "C", "D", "E", "F"},
				CorrectOption: "A",
				MixOptions:    true,
			},
			{
				ID:              uuid.New(),
				Type:            model.QuestionTypeText,
				Prompt:          "plain",
				ReferenceAnswer: "hanoi",
			},
		},
		Status: model.ExamStatusPublished,
	}
}

func TestSessionPayloadServesSessionOptionOrder(t *testing.T) {
	exam := mixExam()

	permuted := false
	for seed := int64(0); seed < 20; seed++ {
		ordered := shuffle.Order(exam.Questions, exam.MixQuestions, rand.New(rand.NewSource(seed)))
		payload := SessionPayload(exam, ordered)

		if len(payload.Questions) != len(ordered) {
			t.Fatalf("seed %d: payload has %d questions, want %d", seed, len(payload.Questions), len(ordered))
		}
		for i, q := range payload.Questions {
			if q.ID != ordered[i].ID {
				t.Fatalf("seed %d: question %d is %s, session order has %s", seed, i, q.ID, ordered[i].ID)
			}
			for j, opt := range q.Options {
				if opt != ordered[i].Options[j] {
					t.Fatalf("seed %d: served options %v diverge from session order %v",
						seed, q.Options, ordered[i].Options)
				}
			}
		}

		// The choice bucket always leads, so index 0 is the mixed question.
		for i, opt := range payload.Questions[0].Options {
			if opt != exam.Questions[0].Options[i] {
				permuted = true
			}
		}
	}

	if !permuted {
		t.Error("no seed ever served a permuted option order; option mixing is not reaching the payload")
	}
}

func TestSanitizeQuestionsStripsAnswerKeys(t *testing.T) {
	questions := []model.Question{
		{ID: uuid.New(), Type: model.QuestionTypeChoice, Prompt: "c",
			Options: []string{"x", "y"}, CorrectOption: "y"},
		{ID: uuid.New(), Type: model.QuestionTypeGroup, Prompt: "g",
			SubItems: []model.SubItem{{ID: "s1", Content: "one", IsTrue: true}}},
	}

	sanitized := SanitizeQuestions(questions)

	if got := sanitized[0].Options; len(got) != 2 {
		t.Fatalf("options lost in sanitization: %v", got)
	}
	if len(sanitized[1].SubItems) != 1 || sanitized[1].SubItems[0].Content != "one" {
		t.Fatalf("sub-items lost in sanitization: %+v", sanitized[1].SubItems)
	}
}
