package assessment

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/course-lab/courselab-lms/internal/rng"
)

// quizFixture is a six-set assessment with two labelled groups, enough
// entropy to exercise ordering and weighting.
func quizFixture() *Assessment {
	return &Assessment{
		ID:   "asm-quiz",
		Code: "quiz",
		QuestionSets: []QuestionSet{
			{Number: 1, Weight: 2, Questions: []Question{{ID: "q1a", Points: 5}, {ID: "q1b", Points: 5}, {ID: "q1c", Points: 5}}},
			{Number: 2, Weight: 1, Group: "circuits", Questions: []Question{{ID: "q2a"}, {ID: "q2b"}}},
			{Number: 3, Weight: 1, Group: "circuits", Questions: []Question{{ID: "q3a"}}},
			{Number: 4, Weight: 3, Questions: []Question{{ID: "q4a"}, {ID: "q4b"}}},
			{Number: 5, Weight: 2, Group: "fields", Questions: []Question{{ID: "q5a"}, {ID: "q5b"}}},
			{Number: 6, Weight: 1, Group: "fields", Questions: []Question{{ID: "q6a"}}},
		},
	}
}

func setOrder(list []QuestionListEntry) []int {
	out := make([]int, len(list))
	for i, e := range list {
		out[i] = e.QuestionSetNumber
	}
	return out
}

func TestSelectQuestionsDeterministic(t *testing.T) {
	a := quizFixture()
	first := SelectQuestions(a, rng.New("seed-1"), false, false)
	second := SelectQuestions(a, rng.New("seed-1"), false, false)
	require.Equal(t, first, second)
}

func TestSelectQuestionsSeedsVaryOrder(t *testing.T) {
	a := quizFixture()
	orders := map[string]bool{}
	for i := 0; i < 50; i++ {
		list := SelectQuestions(a, rng.New(fmt.Sprintf("s%d", i)), false, false)
		orders[fmt.Sprint(setOrder(list))] = true
	}
	assert.Greater(t, len(orders), 1, "shuffled selection should produce more than one ordering")
}

func TestFixedOrderKeepsDefinitionOrder(t *testing.T) {
	a := quizFixture()
	for i := 0; i < 20; i++ {
		list := SelectQuestions(a, rng.New(fmt.Sprintf("s%d", i)), true, false)
		require.Equal(t, []int{1, 2, 3, 4, 5, 6}, setOrder(list))
	}
}

func TestRelativeWeightsNormalize(t *testing.T) {
	list := SelectQuestions(quizFixture(), rng.New("w"), true, false)
	sum := 0.0
	for _, e := range list {
		sum += e.RelativeWeight
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.InDelta(t, 0.2, list[0].RelativeWeight, 1e-9) // weight 2 of 10
}

func TestZeroTotalWeightKeepsRawWeights(t *testing.T) {
	a := &Assessment{
		ID: "asm-zero",
		QuestionSets: []QuestionSet{
			{Number: 1, Weight: 0, Questions: []Question{{ID: "a"}}},
			{Number: 2, Weight: 0, Questions: []Question{{ID: "b"}}},
		},
	}
	list := SelectQuestions(a, rng.New("z"), true, false)
	require.Len(t, list, 2)
	assert.Zero(t, list[0].RelativeWeight)
	assert.Zero(t, list[1].RelativeWeight)
}

func TestGroupedSetsStayAdjacent(t *testing.T) {
	a := quizFixture()
	groupOf := map[int]string{}
	for _, qs := range a.QuestionSets {
		groupOf[qs.Number] = qs.Group
	}
	for i := 0; i < 200; i++ {
		list := SelectQuestions(a, rng.New(fmt.Sprintf("adj-%d", i)), false, false)
		require.Len(t, list, 6)

		// Each labelled group must occupy one contiguous run.
		seen := map[string]bool{}
		for j := 0; j < len(list); {
			grp := list[j].Group
			k := j
			for k < len(list) && list[k].Group == grp {
				k++
			}
			if grp != "" {
				require.False(t, seen[grp], "seed adj-%d: group %q split across runs", i, grp)
				seen[grp] = true
			}
			j = k
		}

		for j, e := range list {
			wantAdj := j > 0 && e.Group != "" && list[j-1].Group == e.Group
			require.Equal(t, wantAdj, e.PreviousSameGroup, "seed adj-%d slot %d", i, j)
		}
	}
}

func TestQuestionsOnlyMatchesFullSelection(t *testing.T) {
	a := quizFixture()
	full := SelectQuestions(a, rng.New("qo"), false, false)
	questionsOnly := SelectQuestions(a, rng.New("qo"), false, true)
	require.Len(t, questionsOnly, len(full))
	for i := range full {
		assert.Equal(t, full[i].QuestionSetNumber, questionsOnly[i].QuestionSetNumber)
		assert.Equal(t, full[i].Question.ID, questionsOnly[i].Question.ID)
		assert.Equal(t, full[i].Seed, questionsOnly[i].Seed)
	}
}

func TestEmptyAssessmentSelectsNothing(t *testing.T) {
	assert.Nil(t, SelectQuestions(nil, rng.New("x"), false, false))
	assert.Nil(t, SelectQuestions(&Assessment{ID: "empty"}, rng.New("x"), false, false))
}

func TestEmptyQuestionSetStillDrawsSeed(t *testing.T) {
	a := &Assessment{
		ID: "asm-gap",
		QuestionSets: []QuestionSet{
			{Number: 1, Weight: 1},
			{Number: 2, Weight: 1, Questions: []Question{{ID: "only"}}},
		},
	}
	list := SelectQuestions(a, rng.New("gap"), true, false)
	require.Len(t, list, 2)
	assert.Empty(t, list[0].Question.ID)
	assert.NotEmpty(t, list[0].Seed)
	assert.Equal(t, "only", list[1].Question.ID)

	again := SelectQuestions(a, rng.New("gap"), true, false)
	assert.Equal(t, list, again)
}

func TestQuestionListFromAttempt(t *testing.T) {
	a := quizFixture()
	att := &ContentAttempt{ID: "att-1", Seed: "s"}
	sets := []AttemptQuestionSet{
		{ID: "aqs-1", AttemptID: "att-1", QuestionSetNumber: 4, QuestionNumber: 1},
		{ID: "aqs-2", AttemptID: "att-1", QuestionSetNumber: 1, QuestionNumber: 2},
	}
	latest := []QuestionAttempt{
		{ID: "qa-1", AttemptID: "att-1", QuestionSetNumber: 1, QuestionID: "q1b", Seed: "11"},
		{ID: "qa-2", AttemptID: "att-1", QuestionSetNumber: 4, QuestionID: "q4a", Seed: "44"},
	}

	list := QuestionListFromAttempt(a, att, sets, latest, nil)
	require.Len(t, list, 2)
	assert.Equal(t, 4, list[0].QuestionSetNumber) // ordered by stored question number
	assert.Equal(t, "q4a", list[0].Question.ID)
	assert.Equal(t, "44", list[0].Seed)
	assert.Equal(t, "q1b", list[1].Question.ID)
	assert.InDelta(t, 0.3, list[0].RelativeWeight, 1e-9)

	t.Run("explicit list must cover exactly", func(t *testing.T) {
		foreign := []QuestionAttempt{
			{ID: "qa-x", AttemptID: "other", QuestionSetNumber: 1, QuestionID: "q1a"},
		}
		// Foreign explicit attempts are discarded; latest still reconstructs.
		list := QuestionListFromAttempt(a, att, sets, latest, foreign)
		require.Len(t, list, 2)

		partial := []QuestionAttempt{latest[0]}
		list = QuestionListFromAttempt(a, att, sets, partial[:0], partial)
		assert.Nil(t, list, "partial coverage with no latest fallback yields nothing")
	})

	t.Run("removed question keeps id stub", func(t *testing.T) {
		gone := []QuestionAttempt{
			{ID: "qa-3", AttemptID: "att-1", QuestionSetNumber: 1, QuestionID: "deleted", Seed: "9"},
			{ID: "qa-4", AttemptID: "att-1", QuestionSetNumber: 4, QuestionID: "q4b", Seed: "8"},
		}
		list := QuestionListFromAttempt(a, att, sets, gone, nil)
		require.Len(t, list, 2)
		assert.Equal(t, "deleted", list[1].Question.ID)
		assert.Zero(t, list[1].Question.Points)
	})

	t.Run("unknown question-set definition", func(t *testing.T) {
		badSets := []AttemptQuestionSet{
			{ID: "aqs-9", AttemptID: "att-1", QuestionSetNumber: 99, QuestionNumber: 1},
		}
		badQAs := []QuestionAttempt{
			{ID: "qa-9", AttemptID: "att-1", QuestionSetNumber: 99, QuestionID: "q"},
		}
		assert.Nil(t, QuestionListFromAttempt(a, att, badSets, badQAs, nil))
	})
}
