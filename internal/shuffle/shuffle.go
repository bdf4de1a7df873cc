// Package shuffle derives a per-session presentation order for an exam's
// questions. It is a pure, total function over its inputs: given the same
// question list and random source it always yields the same permutation, and
// it never fails. The order is computed once per session and persisted with
// the snapshot; restores must never call back into this package.
package shuffle

import (
	"math/rand"

	"github.com/examind/examind-backend/internal/model"
)

// Order partitions questions by family and concatenates the buckets in fixed
// family order: choice, group, text. The fixed bucket order is a
// display-grouping decision and is never randomized. When mix is true each
// bucket is independently shuffled; when false the authored order within each
// bucket is kept. Choice questions flagged MixOptions additionally get their
// options permuted (see mixOptions) regardless of mix.
func Order(questions []model.Question, mix bool, rng *rand.Rand) []model.Question {
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

	if mix {
		shuffleBucket(choice, rng)
		shuffleBucket(group, rng)
		shuffleBucket(text, rng)
	}

	ordered := make([]model.Question, 0, len(choice)+len(group)+len(text))
	for i := range choice {
		ordered = append(ordered, mixOptions(choice[i], rng))
	}
	ordered = append(ordered, group...)
	ordered = append(ordered, text...)
	return ordered
}

// shuffleBucket is an in-place Fisher–Yates shuffle.
func shuffleBucket(qs []model.Question, rng *rand.Rand) {
	rng.Shuffle(len(qs), func(i, j int) {
		qs[i], qs[j] = qs[j], qs[i]
	})
}

// mixOptions permutes a choice question's options (and the parallel per-option
// image slice with the same permutation) when the question is flagged for it.
// CorrectOption is left untouched: correctness is keyed on option text, so the
// permutation never invalidates scoring.
func mixOptions(q model.Question, rng *rand.Rand) model.Question {
	if !q.MixOptions || len(q.Options) == 0 {
		return q
	}

	perm := rng.Perm(len(q.Options))

	options := make([]string, len(q.Options))
	for i, p := range perm {
		options[i] = q.Options[p]
	}
	q.Options = options

	if len(q.OptionImages) == len(perm) {
		images := make([]string, len(q.OptionImages))
		for i, p := range perm {
			images[i] = q.OptionImages[p]
		}
		q.OptionImages = images
	}

	return q
}
