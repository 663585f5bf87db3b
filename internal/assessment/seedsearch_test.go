package assessment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/course-lab/courselab-lms/internal/rng"
)

func searchFixture() *Assessment {
	return &Assessment{
		ID: "asm-search",
		QuestionSets: []QuestionSet{
			{Number: 1, Weight: 1, Questions: []Question{{ID: "a1"}, {ID: "a2"}, {ID: "a3"}}},
			{Number: 2, Weight: 1, Questions: []Question{{ID: "b1"}, {ID: "b2"}}},
		},
	}
}

func chosenQuestions(a *Assessment, seed string) map[string]bool {
	out := map[string]bool{}
	for _, e := range SelectQuestions(a, rng.New(seed), a.FixedOrder, true) {
		out[e.Question.ID] = true
	}
	return out
}

func TestSearchSeedDeterministic(t *testing.T) {
	a := searchFixture()
	p := SeedSearchParams{Avoid: map[string]int{"a1": 1}, StartSeed: "start"}
	assert.Equal(t, SearchSeed(a, p), SearchSeed(a, p))
}

func TestSearchSeedAvoids(t *testing.T) {
	a := searchFixture()
	seed := SearchSeed(a, SeedSearchParams{
		Avoid:     map[string]int{"a1": 1, "b2": 1},
		StartSeed: "start",
	})
	require.NotEmpty(t, seed)
	chosen := chosenQuestions(a, seed)
	assert.False(t, chosen["a1"])
	assert.False(t, chosen["b2"])
}

func TestSearchSeedIncludes(t *testing.T) {
	a := searchFixture()
	seed := SearchSeed(a, SeedSearchParams{
		Include:   map[string]int{"a3": 1, "b1": 1},
		StartSeed: "other",
	})
	require.NotEmpty(t, seed)
	chosen := chosenQuestions(a, seed)
	assert.True(t, chosen["a3"])
	assert.True(t, chosen["b1"])
}

func TestSearchSeedBudgetReturnsBest(t *testing.T) {
	a := searchFixture()
	// a1, a2 and a3 cannot all be dodged; the lowest-penalty seed wins.
	seed := SearchSeed(a, SeedSearchParams{
		Avoid:         map[string]int{"a1": 10, "a2": 1, "a3": 1},
		StartSeed:     "start",
		MaxIterations: 50,
	})
	require.NotEmpty(t, seed)
	chosen := chosenQuestions(a, seed)
	assert.False(t, chosen["a1"], "the heaviest penalty should be dodged")
}
