package assessment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startAttempt resolves a fresh student attempt on a one-question assessment
// and returns everything the response tests need.
func startAttempt(t *testing.T, store Store, r *Resolver, contentID string, now time.Time) (*Content, *Resolution) {
	t.Helper()
	ctx := context.Background()
	a := &Assessment{
		ID:           "asm-" + contentID,
		QuestionSets: []QuestionSet{{Number: 1, Weight: 1, Questions: []Question{{ID: "q1"}}}},
	}
	c := openContent(contentID, a)
	require.NoError(t, store.PutContent(ctx, c))

	res, err := r.ResolveAttempt(ctx, ResolveParams{
		Content: c, Enrollment: studentEnrollment("enr-1", "u1"), Role: RoleStudent, Now: now,
	})
	require.NoError(t, err)
	require.Len(t, res.QuestionList, 1)
	require.NotNil(t, res.QuestionList[0].QuestionAttempt)
	return c, res
}

func TestRecordResponseScoresCascade(t *testing.T) {
	store, _, r := newTestResolver()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	_, res := startAttempt(t, store, r, "c-resp", now)
	qaID := res.QuestionList[0].QuestionAttempt.ID

	resp, reason, err := r.RecordResponse(ctx, RecordResponseParams{
		QuestionAttemptID: qaID, Payload: `{"answer":"42"}`, Credit: 0.6, Now: now.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Empty(t, reason)
	assert.True(t, resp.Valid)

	rec, err := store.GetRecord(ctx, res.Record.ID)
	require.NoError(t, err)
	require.NotNil(t, rec.Score)
	assert.InDelta(t, 6.0, *rec.Score, 1e-9) // 0.6 of 10 points

	// A better second answer raises the max-aggregated score.
	_, reason, err = r.RecordResponse(ctx, RecordResponseParams{
		QuestionAttemptID: qaID, Payload: `{"answer":"43"}`, Credit: 0.9, Now: now.Add(2 * time.Minute),
	})
	require.NoError(t, err)
	assert.Empty(t, reason)
	rec, err = store.GetRecord(ctx, res.Record.ID)
	require.NoError(t, err)
	assert.InDelta(t, 9.0, *rec.Score, 1e-9)

	// A worse one does not lower it.
	_, _, err = r.RecordResponse(ctx, RecordResponseParams{
		QuestionAttemptID: qaID, Payload: `{"answer":"41"}`, Credit: 0.1, Now: now.Add(3 * time.Minute),
	})
	require.NoError(t, err)
	rec, err = store.GetRecord(ctx, res.Record.ID)
	require.NoError(t, err)
	assert.InDelta(t, 9.0, *rec.Score, 1e-9)
}

func TestRecordResponsePastDue(t *testing.T) {
	store, _, r := newTestResolver()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	c, res := startAttempt(t, store, r, "c-due", now)
	qaID := res.QuestionList[0].QuestionAttempt.ID

	c.Due = tp(now.Add(time.Hour))
	require.NoError(t, store.PutContent(ctx, c))

	resp, reason, err := r.RecordResponse(ctx, RecordResponseParams{
		QuestionAttemptID: qaID, Credit: 1.0, Now: now.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	assert.Contains(t, reason, "due date")
	assert.False(t, resp.Valid)

	// The late response is stored for audit but never scores.
	stored, err := store.ResponsesForQuestionAttempt(ctx, qaID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.False(t, stored[0].Valid)

	rec, err := store.GetRecord(ctx, res.Record.ID)
	require.NoError(t, err)
	assert.Nil(t, rec.Score)
}

func TestRecordResponseAfterSolutionViewed(t *testing.T) {
	store, _, r := newTestResolver()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	_, res := startAttempt(t, store, r, "c-sol", now)
	qaID := res.QuestionList[0].QuestionAttempt.ID

	// Scoring works before the solution is opened.
	_, reason, err := r.RecordResponse(ctx, RecordResponseParams{
		QuestionAttemptID: qaID, Credit: 0.4, Now: now.Add(time.Minute),
	})
	require.NoError(t, err)
	require.Empty(t, reason)

	require.NoError(t, r.MarkSolutionViewed(ctx, qaID))
	require.NoError(t, r.MarkSolutionViewed(ctx, qaID), "second view is a no-op")

	resp, reason, err := r.RecordResponse(ctx, RecordResponseParams{
		QuestionAttemptID: qaID, Credit: 1.0, Now: now.Add(2 * time.Minute),
	})
	require.NoError(t, err)
	assert.Contains(t, reason, "solution")
	assert.False(t, resp.Valid)

	rec, err := store.GetRecord(ctx, res.Record.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, *rec.Score, 1e-9, "post-solution answer must not move the score")
}

func TestRecordResponseNotYetAvailable(t *testing.T) {
	store, _, r := newTestResolver()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	c, res := startAttempt(t, store, r, "c-nya", now)
	qaID := res.QuestionList[0].QuestionAttempt.ID

	c.AvailableBeforeAssigned = false
	c.Assigned = tp(now.Add(24 * time.Hour))
	require.NoError(t, store.PutContent(ctx, c))

	resp, reason, err := r.RecordResponse(ctx, RecordResponseParams{
		QuestionAttemptID: qaID, Credit: 1.0, Now: now.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Contains(t, reason, "not yet available")
	assert.False(t, resp.Valid)
}

func TestRecordResponseInvalidAttempt(t *testing.T) {
	store, _, r := newTestResolver()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	_, res := startAttempt(t, store, r, "c-inv", now)
	qaID := res.QuestionList[0].QuestionAttempt.ID

	res.Attempt.Valid = false
	require.NoError(t, store.SaveAttempt(ctx, res.Attempt))

	resp, reason, err := r.RecordResponse(ctx, RecordResponseParams{
		QuestionAttemptID: qaID, Credit: 1.0, Now: now.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Contains(t, reason, "no longer valid")
	assert.False(t, resp.Valid)
}

func TestRecordResponseUnknownQuestionAttempt(t *testing.T) {
	_, _, r := newTestResolver()
	_, _, err := r.RecordResponse(context.Background(), RecordResponseParams{QuestionAttemptID: "missing"})
	assert.ErrorIs(t, err, ErrInvalidAttempt)
}
