package shuffle

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/examind/examind-backend/internal/model"
	"github.com/google/uuid"
)

func choiceQ(mix bool, options ...string) model.Question {
	return model.Question{
		ID:            uuid.New(),
		Type:          model.QuestionTypeChoice,
		Prompt:        "choice",
		Options:       options,
		CorrectOption: options[0],
		MixOptions:    mix,
	}
}

func groupQ() model.Question {
	return model.Question{ID: uuid.New(), Type: model.QuestionTypeGroup, Prompt: "group"}
}

func textQ() model.Question {
	return model.Question{ID: uuid.New(), Type: model.QuestionTypeText, Prompt: "text"}
}

func TestOrderIsPermutation(t *testing.T) {
	questions := []model.Question{
		textQ(), choiceQ(false, "a", "b"), groupQ(),
		choiceQ(false, "c", "d"), textQ(), groupQ(), choiceQ(false, "e", "f"),
	}

	for seed := int64(0); seed < 50; seed++ {
		ordered := Order(questions, true, rand.New(rand.NewSource(seed)))

		if len(ordered) != len(questions) {
			t.Fatalf("seed %d: got %d questions, want %d", seed, len(ordered), len(questions))
		}

		want := idSet(questions)
		got := idSet(ordered)
		for id := range want {
			if !got[id] {
				t.Fatalf("seed %d: question %s missing from order", seed, id)
			}
		}
	}
}

func TestOrderKeepsFamilyBuckets(t *testing.T) {
	questions := []model.Question{
		textQ(), groupQ(), choiceQ(false, "a", "b"), textQ(), choiceQ(false, "c", "d"), groupQ(),
	}

	rank := map[model.QuestionType]int{
		model.QuestionTypeChoice: 0,
		model.QuestionTypeGroup:  1,
		model.QuestionTypeText:   2,
	}

	for seed := int64(0); seed < 50; seed++ {
		ordered := Order(questions, true, rand.New(rand.NewSource(seed)))
		for i := 1; i < len(ordered); i++ {
			if rank[ordered[i].Type] < rank[ordered[i-1].Type] {
				t.Fatalf("seed %d: %s appears after %s", seed, ordered[i-1].Type, ordered[i].Type)
			}
		}
	}
}

func TestMixOptionsPreservesCorrectnessKey(t *testing.T) {
	q := choiceQ(true, "alpha", "beta", "gamma", "delta")
	q.OptionImages = []string{"img-alpha", "img-beta", "img-gamma", "img-delta"}

	for seed := int64(0); seed < 50; seed++ {
		ordered := Order([]model.Question{q}, true, rand.New(rand.NewSource(seed)))
		got := ordered[0]

		if got.CorrectOption != "alpha" {
			t.Fatalf("seed %d: correct option changed to %q", seed, got.CorrectOption)
		}

		// Same multiset of options.
		wantOpts := append([]string(nil), q.Options...)
		gotOpts := append([]string(nil), got.Options...)
		sort.Strings(wantOpts)
		sort.Strings(gotOpts)
		for i := range wantOpts {
			if wantOpts[i] != gotOpts[i] {
				t.Fatalf("seed %d: options no longer a permutation: %v", seed, got.Options)
			}
		}

		// Images must follow their option through the permutation.
		for i, opt := range got.Options {
			if got.OptionImages[i] != "img-"+opt {
				t.Fatalf("seed %d: image %q detached from option %q", seed, got.OptionImages[i], opt)
			}
		}
	}
}

func TestMixOptionsOffLeavesOptionsAlone(t *testing.T) {
	q := choiceQ(false, "alpha", "beta", "gamma")
	ordered := Order([]model.Question{q}, true, rand.New(rand.NewSource(7)))
	for i, opt := range ordered[0].Options {
		if opt != q.Options[i] {
			t.Fatalf("options reordered despite mix_options=false: %v", ordered[0].Options)
		}
	}
}

func TestMixDisabledKeepsAuthoredOrderWithinBuckets(t *testing.T) {
	c1, c2 := choiceQ(false, "a", "b"), choiceQ(false, "c", "d")
	g1, g2 := groupQ(), groupQ()
	t1, t2 := textQ(), textQ()
	questions := []model.Question{t1, g1, c1, t2, c2, g2}

	for seed := int64(0); seed < 20; seed++ {
		ordered := Order(questions, false, rand.New(rand.NewSource(seed)))
		want := []uuid.UUID{c1.ID, c2.ID, g1.ID, g2.ID, t1.ID, t2.ID}
		for i, q := range ordered {
			if q.ID != want[i] {
				t.Fatalf("seed %d: position %d holds %s, want %s", seed, i, q.ID, want[i])
			}
		}
	}
}

func TestOrderDoesNotMutateInput(t *testing.T) {
	questions := []model.Question{
		choiceQ(true, "a", "b", "c"), choiceQ(false, "d", "e"),
	}
	original := questions[0].Options[0]

	_ = Order(questions, true, rand.New(rand.NewSource(3)))

	if questions[0].Options[0] != original {
		t.Fatal("input question options were mutated")
	}
}

func idSet(qs []model.Question) map[string]bool {
	set := make(map[string]bool, len(qs))
	for _, q := range qs {
		set[q.ID.String()] = true
	}
	return set
}
