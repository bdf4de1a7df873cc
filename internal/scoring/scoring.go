// Package scoring grades a finished session. Score is a pure function of
// (ordered questions, answer map, grading config): no clocks, no IO, no
// randomness. Identical inputs always yield identical reports.
package scoring

import (
	"math"
	"strings"

	"github.com/examind/examind-backend/internal/model"
)

// progressiveMultipliers maps the number of correct sub-items in a group
// question to the awarded fraction under the progressive method. k=0 maps to
// nothing and scores zero.
var progressiveMultipliers = map[int]float64{
	1: 0.10,
	2: 0.25,
	3: 0.50,
	4: 1.00,
}

// Score grades every question and returns the total score (rounded half-up
// to 2 decimals) with per-family and aggregate outcome counts. Each family's
// point pool is split evenly across that family's questions; a family with
// zero questions contributes nothing and the division is skipped outright.
func Score(questions []model.Question, answers model.AnswerMap, cfg model.GradingConfig) model.ScoreReport {
	var report model.ScoreReport
	report.Total = len(questions)

	var choice, group, text []model.Question
	for _, q := range questions {
		switch q.Type {
		case model.QuestionTypeChoice:
			choice = append(choice, q)
		case model.QuestionTypeGroup:
			group = append(group, q)
		case model.QuestionTypeText:
			text = append(text, q)
		}
	}

	report.Choice = scoreChoice(choice, answers, cfg.ChoiceSectionTotal)
	report.Group = scoreGroup(group, answers, cfg.GroupSectionTotal, cfg.GroupGradingMethod)
	report.Text = scoreText(text, answers, cfg.ShortAnswerSectionTotal)

	total := report.Choice.Points + report.Group.Points + report.Text.Points
	report.Score = math.Round(total*100) / 100

	report.Counts.Correct = report.Choice.Counts.Correct + report.Group.Counts.Correct + report.Text.Counts.Correct
	report.Counts.Wrong = report.Choice.Counts.Wrong + report.Group.Counts.Wrong + report.Text.Counts.Wrong
	report.Counts.Empty = report.Total - report.Counts.Correct - report.Counts.Wrong

	return report
}

func scoreChoice(qs []model.Question, answers model.AnswerMap, pool float64) model.FamilyBreakdown {
	b := model.FamilyBreakdown{Questions: len(qs)}
	if len(qs) == 0 {
		return b
	}
	perQuestion := pool / float64(len(qs))

	for _, q := range qs {
		ans := answers[q.ID.String()]
		if ans.Value == "" {
			b.Counts.Empty++
			continue
		}
		if ans.Value == q.CorrectOption {
			b.Counts.Correct++
			b.Points += perQuestion
		} else {
			b.Counts.Wrong++
		}
	}
	return b
}

func scoreGroup(qs []model.Question, answers model.AnswerMap, pool float64, method model.GroupGradingMethod) model.FamilyBreakdown {
	b := model.FamilyBreakdown{Questions: len(qs)}
	if len(qs) == 0 {
		return b
	}
	perQuestion := pool / float64(len(qs))

	for _, q := range qs {
		if len(q.SubItems) == 0 {
			b.Counts.Empty++
			continue
		}

		marks := answers[q.ID.String()].Marks
		if len(marks) == 0 {
			b.Counts.Empty++
			continue
		}

		correct := 0
		for _, sub := range q.SubItems {
			if recorded, ok := marks[sub.ID]; ok && recorded == sub.IsTrue {
				correct++
			}
		}

		// An answered group question is never empty: all sub-items right is
		// correct, anything less is wrong, regardless of points awarded.
		if correct == len(q.SubItems) {
			b.Counts.Correct++
		} else {
			b.Counts.Wrong++
		}

		switch method {
		case model.GroupGradingEqual:
			b.Points += perQuestion * float64(correct) / float64(len(q.SubItems))
		default:
			b.Points += perQuestion * progressiveMultipliers[correct]
		}
	}
	return b
}

func scoreText(qs []model.Question, answers model.AnswerMap, pool float64) model.FamilyBreakdown {
	b := model.FamilyBreakdown{Questions: len(qs)}
	if len(qs) == 0 {
		return b
	}
	perQuestion := pool / float64(len(qs))

	for _, q := range qs {
		given := normalize(answers[q.ID.String()].Value)
		if given == "" {
			b.Counts.Empty++
			continue
		}
		if given == normalize(q.ReferenceAnswer) {
			b.Counts.Correct++
			b.Points += perQuestion
		} else {
			b.Counts.Wrong++
		}
	}
	return b
}

// normalize trims surrounding whitespace and casefolds for the text-family
// equality check.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
