package assessment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fptr(v float64) *float64 { return &v }

func resp(credit float64, valid bool, submitted time.Time) QuestionResponse {
	return QuestionResponse{ID: uuid.NewString(), Credit: credit, Valid: valid, Submitted: submitted}
}

func TestQuestionAttemptCreditModes(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	responses := []QuestionResponse{
		resp(0.2, true, base),
		resp(0.8, true, base.Add(time.Minute)),
		resp(1.0, false, base.Add(2*time.Minute)), // invalid never counts
		resp(0.5, true, base.Add(3*time.Minute)),
	}

	assert.Equal(t, 0.8, *questionAttemptCredit(responses, AggregateMax))
	assert.InDelta(t, 0.5, *questionAttemptCredit(responses, AggregateAvg), 1e-9)
	assert.Equal(t, 0.5, *questionAttemptCredit(responses, AggregateLast))
	assert.Nil(t, questionAttemptCredit(nil, AggregateMax))
	assert.Nil(t, questionAttemptCredit([]QuestionResponse{resp(1, false, base)}, AggregateMax))
}

func TestQuestionSetCredit(t *testing.T) {
	store := NewInMemoryStore()
	agg := NewAggregator(store)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	aqs := &AttemptQuestionSet{ID: "aqs-1", AttemptID: "att-1", QuestionSetNumber: 1, QuestionNumber: 1}
	require.NoError(t, store.SaveAttemptQuestionSet(ctx, aqs))
	for i, qa := range []QuestionAttempt{
		{ID: "qa-1", AttemptQuestionSetID: "aqs-1", AttemptID: "att-1", Valid: true, Credit: fptr(0.4), Created: base},
		{ID: "qa-2", AttemptQuestionSetID: "aqs-1", AttemptID: "att-1", Valid: true, Credit: fptr(0.9), Created: base.Add(time.Minute)},
		{ID: "qa-3", AttemptQuestionSetID: "aqs-1", AttemptID: "att-1", Valid: false, Credit: fptr(1.0), Created: base.Add(2 * time.Minute)},
	} {
		qa := qa
		require.NoError(t, store.SaveQuestionAttempt(ctx, &qa), "qa %d", i)
	}

	credit, err := agg.QuestionSetCredit(ctx, aqs, AggregateMax)
	require.NoError(t, err)
	assert.Equal(t, 0.9, *credit)

	credit, err = agg.QuestionSetCredit(ctx, aqs, AggregateAvg)
	require.NoError(t, err)
	assert.InDelta(t, 0.65, *credit, 1e-9)

	credit, err = agg.QuestionSetCredit(ctx, aqs, AggregateLast)
	require.NoError(t, err)
	assert.Equal(t, 0.9, *credit)

	t.Run("override wins, zero included", func(t *testing.T) {
		withOverride := &AttemptQuestionSet{ID: "aqs-1", AttemptID: "att-1", QuestionSetNumber: 1, CreditOverride: fptr(0)}
		credit, err := agg.QuestionSetCredit(ctx, withOverride, AggregateMax)
		require.NoError(t, err)
		assert.Equal(t, 0.0, *credit)
	})

	t.Run("attempted with no credit coerces to zero", func(t *testing.T) {
		bare := &AttemptQuestionSet{ID: "aqs-2", AttemptID: "att-1", QuestionSetNumber: 2}
		require.NoError(t, store.SaveAttemptQuestionSet(ctx, bare))
		require.NoError(t, store.SaveQuestionAttempt(ctx, &QuestionAttempt{
			ID: "qa-bare", AttemptQuestionSetID: "aqs-2", AttemptID: "att-1", Valid: true, Created: base,
		}))
		credit, err := agg.QuestionSetCredit(ctx, bare, AggregateMax)
		require.NoError(t, err)
		require.NotNil(t, credit)
		assert.Equal(t, 0.0, *credit)
	})

	t.Run("never attempted stays nil", func(t *testing.T) {
		empty := &AttemptQuestionSet{ID: "aqs-3", AttemptID: "att-1", QuestionSetNumber: 3}
		credit, err := agg.QuestionSetCredit(ctx, empty, AggregateMax)
		require.NoError(t, err)
		assert.Nil(t, credit)
	})
}

func TestAttemptScoreWeighting(t *testing.T) {
	store := NewInMemoryStore()
	agg := NewAggregator(store)
	ctx := context.Background()

	a := &Assessment{
		ID: "asm-w",
		QuestionSets: []QuestionSet{
			{Number: 1, Weight: 2, Questions: []Question{{ID: "a"}}},
			{Number: 2, Weight: 1, Questions: []Question{{ID: "b"}}},
		},
	}
	c := &Content{ID: "c-w", Object: a, Points: 30, AttemptAggregation: AggregateMax, RecordScores: true}
	att := &ContentAttempt{ID: "att-w", RecordID: "rec-w", Number: 1, Valid: true}
	require.NoError(t, store.SaveAttempt(ctx, att))
	require.NoError(t, store.SaveAttemptQuestionSet(ctx, &AttemptQuestionSet{
		ID: "aqs-w1", AttemptID: "att-w", QuestionSetNumber: 1, QuestionNumber: 1, CreditOverride: fptr(1.0),
	}))
	require.NoError(t, store.SaveAttemptQuestionSet(ctx, &AttemptQuestionSet{
		ID: "aqs-w2", AttemptID: "att-w", QuestionSetNumber: 2, QuestionNumber: 2, CreditOverride: fptr(0.5),
	}))

	score, err := agg.AttemptScore(ctx, c, att)
	require.NoError(t, err)
	require.NotNil(t, score)
	assert.InDelta(t, 25.0, *score, 1e-9) // (2*1.0 + 1*0.5) / 3 * 30

	t.Run("score override wins", func(t *testing.T) {
		withOverride := *att
		withOverride.ScoreOverride = fptr(3)
		score, err := agg.AttemptScore(ctx, c, &withOverride)
		require.NoError(t, err)
		assert.Equal(t, 3.0, *score)
	})

	t.Run("non-assessment content scores nil", func(t *testing.T) {
		page := &Content{ID: "c-p", Object: &Page{ID: "p"}, Points: 30}
		score, err := agg.AttemptScore(ctx, page, att)
		require.NoError(t, err)
		assert.Nil(t, score)
	})

	t.Run("unattempted scores nil", func(t *testing.T) {
		bare := &ContentAttempt{ID: "att-none", RecordID: "rec-w", Number: 2, Valid: true}
		require.NoError(t, store.SaveAttempt(ctx, bare))
		score, err := agg.AttemptScore(ctx, c, bare)
		require.NoError(t, err)
		assert.Nil(t, score)
	})
}

func TestRecordScoreModes(t *testing.T) {
	store := NewInMemoryStore()
	agg := NewAggregator(store)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	a := &Assessment{ID: "asm-r", QuestionSets: []QuestionSet{{Number: 1, Weight: 1, Questions: []Question{{ID: "q"}}}}}
	c := &Content{ID: "c-r", Object: a, Points: 10, RecordScores: true}
	rec := &ContentRecord{ID: "rec-r", ContentID: "c-r", EnrollmentID: "enr-1"}
	require.NoError(t, store.SaveRecord(ctx, rec))

	for _, att := range []ContentAttempt{
		{ID: "a1", RecordID: "rec-r", Number: 1, AttemptBegan: tp(base), Valid: true, Score: fptr(4)},
		{ID: "a2", RecordID: "rec-r", Number: 2, AttemptBegan: tp(base.Add(time.Hour)), Valid: true, Score: fptr(8)},
		{ID: "a3", RecordID: "rec-r", Number: 3, AttemptBegan: tp(base.Add(2 * time.Hour)), Valid: true, Score: fptr(6)},
		{ID: "a4", RecordID: "rec-r", Number: 4, AttemptBegan: tp(base.Add(3 * time.Hour)), Valid: false, Score: fptr(10)}, // invalid
		{ID: "a5", RecordID: "rec-r", Number: 5, AttemptBegan: tp(base.Add(4 * time.Hour)), Valid: true},                   // unscored
	} {
		att := att
		require.NoError(t, store.SaveAttempt(ctx, &att))
	}

	c.AttemptAggregation = AggregateMax
	score, err := agg.RecordScore(ctx, c, rec)
	require.NoError(t, err)
	assert.Equal(t, 8.0, *score)

	c.AttemptAggregation = AggregateAvg
	score, err = agg.RecordScore(ctx, c, rec)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, *score, 1e-9)

	c.AttemptAggregation = AggregateLast
	score, err = agg.RecordScore(ctx, c, rec)
	require.NoError(t, err)
	assert.Equal(t, 6.0, *score)

	t.Run("override wins", func(t *testing.T) {
		withOverride := *rec
		withOverride.ScoreOverride = fptr(9.5)
		score, err := agg.RecordScore(ctx, c, &withOverride)
		require.NoError(t, err)
		assert.Equal(t, 9.5, *score)
	})

	t.Run("no valid scored attempts", func(t *testing.T) {
		other := &ContentRecord{ID: "rec-empty", ContentID: "c-r", EnrollmentID: "enr-2"}
		require.NoError(t, store.SaveRecord(ctx, other))
		score, err := agg.RecordScore(ctx, c, other)
		require.NoError(t, err)
		assert.Nil(t, score)
	})
}

func TestSetRecordScoreOverrideAudited(t *testing.T) {
	store := NewInMemoryStore()
	agg := NewAggregator(store)
	ctx := context.Background()

	a := &Assessment{ID: "asm-o", QuestionSets: []QuestionSet{{Number: 1, Weight: 1, Questions: []Question{{ID: "q"}}}}}
	c := &Content{ID: "c-o", Object: a, Points: 10, AttemptAggregation: AggregateMax, RecordScores: true}
	require.NoError(t, store.PutContent(ctx, c))
	rec, err := store.GetOrCreateRecord(ctx, "c-o", "enr-1")
	require.NoError(t, err)

	require.NoError(t, agg.SetRecordScoreOverride(ctx, rec.ID, fptr(5.5)))
	saved, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.5, *saved.Score)
	assert.Equal(t, 5.5, *saved.ScoreOverride)

	changes, err := store.ChangesForRef(ctx, "record", rec.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, ActionChangeScore, changes[0].Action)
	assert.NotEqual(t, changes[0].OldState, changes[0].NewState)

	// Saving the value already held is a no-op: no second audit entry.
	require.NoError(t, agg.SetRecordScoreOverride(ctx, rec.ID, fptr(5.5)))
	changes, err = store.ChangesForRef(ctx, "record", rec.ID)
	require.NoError(t, err)
	assert.Len(t, changes, 1)

	// Clearing restores the derived score (nil here: nothing attempted).
	require.NoError(t, agg.SetRecordScoreOverride(ctx, rec.ID, nil))
	saved, err = store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, saved.ScoreOverride)
	assert.Nil(t, saved.Score)
	changes, err = store.ChangesForRef(ctx, "record", rec.ID)
	require.NoError(t, err)
	assert.Len(t, changes, 2)
}

func TestSetAttemptScoreOverrideCascades(t *testing.T) {
	store := NewInMemoryStore()
	agg := NewAggregator(store)
	ctx := context.Background()

	a := &Assessment{ID: "asm-c", QuestionSets: []QuestionSet{{Number: 1, Weight: 1, Questions: []Question{{ID: "q"}}}}}
	c := &Content{ID: "c-c", Object: a, Points: 10, AttemptAggregation: AggregateMax, RecordScores: true}
	require.NoError(t, store.PutContent(ctx, c))
	rec, err := store.GetOrCreateRecord(ctx, "c-c", "enr-1")
	require.NoError(t, err)
	began := time.Now()
	att := &ContentAttempt{ID: "att-c", RecordID: rec.ID, Number: 1, AttemptBegan: &began, Valid: true}
	require.NoError(t, store.SaveAttempt(ctx, att))

	require.NoError(t, agg.SetAttemptScoreOverride(ctx, att.ID, fptr(7)))

	savedAtt, err := store.GetAttempt(ctx, att.ID)
	require.NoError(t, err)
	assert.Equal(t, 7.0, *savedAtt.Score)
	savedRec, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 7.0, *savedRec.Score)

	changes, err := store.ChangesForRef(ctx, "attempt", att.ID)
	require.NoError(t, err)
	assert.Len(t, changes, 1)
}

func TestSetQuestionSetCreditOverrideCascades(t *testing.T) {
	store := NewInMemoryStore()
	agg := NewAggregator(store)
	ctx := context.Background()

	a := &Assessment{ID: "asm-q", QuestionSets: []QuestionSet{{Number: 1, Weight: 1, Questions: []Question{{ID: "q"}}}}}
	c := &Content{ID: "c-q", Object: a, Points: 10, AttemptAggregation: AggregateMax, RecordScores: true}
	require.NoError(t, store.PutContent(ctx, c))
	rec, err := store.GetOrCreateRecord(ctx, "c-q", "enr-1")
	require.NoError(t, err)
	began := time.Now()
	att := &ContentAttempt{ID: "att-q", RecordID: rec.ID, Number: 1, AttemptBegan: &began, Valid: true}
	require.NoError(t, store.SaveAttempt(ctx, att))
	aqs := &AttemptQuestionSet{ID: "aqs-q", AttemptID: att.ID, QuestionSetNumber: 1, QuestionNumber: 1}
	require.NoError(t, store.SaveAttemptQuestionSet(ctx, aqs))

	require.NoError(t, agg.SetQuestionSetCreditOverride(ctx, aqs.ID, fptr(0.8)))

	savedAtt, err := store.GetAttempt(ctx, att.ID)
	require.NoError(t, err)
	require.NotNil(t, savedAtt.Score)
	assert.InDelta(t, 8.0, *savedAtt.Score, 1e-9)
	savedRec, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, *savedRec.Score, 1e-9)
}

func TestSetRecordDateAdjustments(t *testing.T) {
	store := NewInMemoryStore()
	agg := NewAggregator(store)
	ctx := context.Background()

	rec := &ContentRecord{ID: "rec-d", ContentID: "c-d", EnrollmentID: "enr-1"}
	require.NoError(t, store.SaveRecord(ctx, rec))

	due := time.Date(2026, 4, 1, 23, 59, 0, 0, time.UTC)
	require.NoError(t, agg.SetRecordDateAdjustments(ctx, rec.ID, nil, nil, &due))

	saved, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, saved.FinalDueAdjustment)
	assert.True(t, due.Equal(*saved.FinalDueAdjustment))

	changes, err := store.ChangesForRef(ctx, "record", rec.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, ActionChangeDate, changes[0].Action)

	// Same dates again: no new entry.
	require.NoError(t, agg.SetRecordDateAdjustments(ctx, rec.ID, nil, nil, &due))
	changes, err = store.ChangesForRef(ctx, "record", rec.ID)
	require.NoError(t, err)
	assert.Len(t, changes, 1)
}
