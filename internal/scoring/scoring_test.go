package scoring

import (
	"fmt"
	"testing"

	"github.com/examind/examind-backend/internal/model"
	"github.com/google/uuid"
)

func newChoice(correct string, options ...string) model.Question {
	return model.Question{
		ID:            uuid.New(),
		Type:          model.QuestionTypeChoice,
		Options:       options,
		CorrectOption: correct,
	}
}

func newGroup(truths ...bool) model.Question {
	q := model.Question{ID: uuid.New(), Type: model.QuestionTypeGroup}
	for i, isTrue := range truths {
		q.SubItems = append(q.SubItems, model.SubItem{
			ID:      fmt.Sprintf("s%d", i+1),
			Content: fmt.Sprintf("statement %d", i+1),
			IsTrue:  isTrue,
		})
	}
	return q
}

func newText(reference string) model.Question {
	return model.Question{ID: uuid.New(), Type: model.QuestionTypeText, ReferenceAnswer: reference}
}

func defaultConfig() model.GradingConfig {
	return model.GradingConfig{
		ChoiceSectionTotal:      6,
		GroupSectionTotal:       4,
		ShortAnswerSectionTotal: 0,
		GroupGradingMethod:      model.GroupGradingProgressive,
	}
}

// Scenario from the product handoff: 2 choice questions worth 6 points total,
// 1 progressive group question worth 4, student nails both choices and gets
// 2 of 4 sub-items. The group question counts wrong even though it scored.
func TestScoreMixedExam(t *testing.T) {
	c1 := newChoice("B", "A", "B", "C", "D")
	c2 := newChoice("D", "A", "B", "C", "D")
	g := newGroup(true, false, true, false)

	answers := model.AnswerMap{
		c1.ID.String(): {Value: "B"},
		c2.ID.String(): {Value: "D"},
		g.ID.String(): {Marks: map[string]bool{
			"s1": true,  // correct
			"s2": true,  // wrong
			"s3": false, // wrong
			"s4": false, // correct
		}},
	}

	report := Score([]model.Question{c1, c2, g}, answers, defaultConfig())

	if report.Score != 7.00 {
		t.Errorf("score = %.2f, want 7.00", report.Score)
	}
	if report.Counts != (model.Counts{Correct: 2, Wrong: 1, Empty: 0}) {
		t.Errorf("counts = %+v, want {2 1 0}", report.Counts)
	}
	if report.Total != 3 {
		t.Errorf("total = %d, want 3", report.Total)
	}
}

func TestProgressiveMultiplierTable(t *testing.T) {
	// One group question owning the whole 10-point pool, so awarded points
	// equal 10 × multiplier.
	tests := []struct {
		k      int
		points float64
	}{
		{0, 0},
		{1, 1.0},
		{2, 2.5},
		{3, 5.0},
		{4, 10.0},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("k=%d", tc.k), func(t *testing.T) {
			g := newGroup(true, true, true, true)
			marks := make(map[string]bool, model.GroupSize)
			for i := 0; i < model.GroupSize; i++ {
				// First k recorded booleans match IsTrue, the rest contradict.
				marks[fmt.Sprintf("s%d", i+1)] = i < tc.k
			}
			answers := model.AnswerMap{g.ID.String(): {Marks: marks}}

			cfg := model.GradingConfig{GroupSectionTotal: 10, GroupGradingMethod: model.GroupGradingProgressive}
			report := Score([]model.Question{g}, answers, cfg)

			if report.Score != tc.points {
				t.Errorf("score = %.2f, want %.2f", report.Score, tc.points)
			}
			wantCorrect := 0
			if tc.k == model.GroupSize {
				wantCorrect = 1
			}
			if report.Counts.Correct != wantCorrect {
				t.Errorf("correct = %d, want %d", report.Counts.Correct, wantCorrect)
			}
			// Answered groups are never empty, even at k=0.
			if report.Counts.Empty != 0 {
				t.Errorf("empty = %d, want 0", report.Counts.Empty)
			}
		})
	}
}

func TestEqualMethodAwardsProportionally(t *testing.T) {
	for k := 0; k <= model.GroupSize; k++ {
		g := newGroup(true, true, true, true)
		marks := make(map[string]bool, model.GroupSize)
		for i := 0; i < model.GroupSize; i++ {
			marks[fmt.Sprintf("s%d", i+1)] = i < k
		}
		answers := model.AnswerMap{g.ID.String(): {Marks: marks}}

		cfg := model.GradingConfig{GroupSectionTotal: 10, GroupGradingMethod: model.GroupGradingEqual}
		report := Score([]model.Question{g}, answers, cfg)

		want := 10 * float64(k) / float64(model.GroupSize)
		if report.Score != want {
			t.Errorf("k=%d: score = %.2f, want %.2f", k, report.Score, want)
		}
	}
}

func TestTextNormalization(t *testing.T) {
	tests := []struct {
		name    string
		given   string
		outcome string // correct | wrong | empty
	}{
		{"exact", "Hanoi", "correct"},
		{"case folded", "hAnOi", "correct"},
		{"surrounding whitespace", "  Hanoi\t", "correct"},
		{"wrong answer", "Saigon", "wrong"},
		{"empty", "", "empty"},
		{"whitespace only", "   ", "empty"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := newText("hanoi")
			answers := model.AnswerMap{q.ID.String(): {Value: tc.given}}
			cfg := model.GradingConfig{ShortAnswerSectionTotal: 5}

			report := Score([]model.Question{q}, answers, cfg)

			got := "empty"
			switch {
			case report.Counts.Correct == 1:
				got = "correct"
			case report.Counts.Wrong == 1:
				got = "wrong"
			}
			if got != tc.outcome {
				t.Errorf("outcome = %s, want %s", got, tc.outcome)
			}
			if tc.outcome == "correct" && report.Score != 5 {
				t.Errorf("score = %.2f, want 5", report.Score)
			}
		})
	}
}

func TestZeroQuestionFamilyContributesNothing(t *testing.T) {
	// Pools configured for families that are absent must not divide by zero
	// or leak points.
	q := newChoice("A", "A", "B")
	answers := model.AnswerMap{q.ID.String(): {Value: "A"}}

	cfg := model.GradingConfig{
		ChoiceSectionTotal:      4,
		GroupSectionTotal:       3,
		ShortAnswerSectionTotal: 3,
		GroupGradingMethod:      model.GroupGradingProgressive,
	}

	report := Score([]model.Question{q}, answers, cfg)

	if report.Score != 4 {
		t.Errorf("score = %.2f, want 4", report.Score)
	}
	if report.Group.Questions != 0 || report.Group.Points != 0 {
		t.Errorf("group breakdown = %+v, want zero", report.Group)
	}
	if report.Text.Questions != 0 || report.Text.Points != 0 {
		t.Errorf("text breakdown = %+v, want zero", report.Text)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	c := newChoice("B", "A", "B")
	g := newGroup(true, false, false, true)
	x := newText("mekong")

	answers := model.AnswerMap{
		c.ID.String(): {Value: "A"},
		g.ID.String(): {Marks: map[string]bool{"s1": true, "s3": true}},
		x.ID.String(): {Value: " MEKONG "},
	}
	cfg := model.GradingConfig{
		ChoiceSectionTotal:      3,
		GroupSectionTotal:       4,
		ShortAnswerSectionTotal: 3,
		GroupGradingMethod:      model.GroupGradingEqual,
	}
	questions := []model.Question{c, g, x}

	first := Score(questions, answers, cfg)
	for i := 0; i < 10; i++ {
		if got := Score(questions, answers, cfg); got != first {
			t.Fatalf("run %d: report %+v differs from first %+v", i, got, first)
		}
	}
}

func TestCountConsistency(t *testing.T) {
	c1 := newChoice("A", "A", "B")
	c2 := newChoice("B", "A", "B")
	g := newGroup(true, true, false, false)
	x1 := newText("alpha")
	x2 := newText("beta")

	answers := model.AnswerMap{
		c1.ID.String(): {Value: "A"},
		// c2 unanswered
		g.ID.String():  {Marks: map[string]bool{"s1": false}},
		x1.ID.String(): {Value: "gamma"},
		// x2 unanswered
	}
	cfg := defaultConfig()
	cfg.ShortAnswerSectionTotal = 2

	questions := []model.Question{c1, c2, g, x1, x2}
	report := Score(questions, answers, cfg)

	sum := report.Counts.Correct + report.Counts.Wrong + report.Counts.Empty
	if sum != report.Total {
		t.Errorf("correct+wrong+empty = %d, want total %d", sum, report.Total)
	}

	// Aggregate empty must agree with the per-family tallies.
	familyEmpty := report.Choice.Counts.Empty + report.Group.Counts.Empty + report.Text.Counts.Empty
	if familyEmpty != report.Counts.Empty {
		t.Errorf("per-family empty = %d, aggregate = %d", familyEmpty, report.Counts.Empty)
	}
}

// Duplicate option text makes the equality key ambiguous. The engine keeps
// text-based matching on purpose; this pins the behavior down so a future
// switch to index-based correctness shows up as a test change.
func TestDuplicateOptionTextMatchesByText(t *testing.T) {
	q := newChoice("same", "same", "same", "other")
	answers := model.AnswerMap{q.ID.String(): {Value: "same"}}
	cfg := model.GradingConfig{ChoiceSectionTotal: 2}

	report := Score([]model.Question{q}, answers, cfg)

	if report.Counts.Correct != 1 {
		t.Errorf("correct = %d, want 1 (text equality, position ignored)", report.Counts.Correct)
	}
}

func TestScoreRounding(t *testing.T) {
	// 3 choice questions sharing a 10-point pool: one correct answer awards
	// 3.333... which must round to 3.33.
	c1 := newChoice("A", "A", "B")
	c2 := newChoice("A", "A", "B")
	c3 := newChoice("A", "A", "B")

	answers := model.AnswerMap{c1.ID.String(): {Value: "A"}}
	cfg := model.GradingConfig{ChoiceSectionTotal: 10}

	report := Score([]model.Question{c1, c2, c3}, answers, cfg)

	if report.Score != 3.33 {
		t.Errorf("score = %v, want 3.33", report.Score)
	}
}
