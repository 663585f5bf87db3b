package assessment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordResponseParams is one submitted answer. Credit arrives pre-computed
// from the rendering/grading layer as a 0..1 fraction.
type RecordResponseParams struct {
	QuestionAttemptID string
	Payload           string
	Credit            float64
	Now               time.Time // zero means wall clock
}

// RecordResponse stores a submitted answer and decides whether it counts.
// A response is recordable iff the owning attempt is valid, the solution has
// not been viewed, and the window is open at submission time. Violations do
// not drop the response: it is stored flagged invalid, and the returned
// reason tells the caller why the score did not change.
func (r *Resolver) RecordResponse(ctx context.Context, p RecordResponseParams) (*QuestionResponse, string, error) {
	now := p.Now
	if now.IsZero() {
		now = r.now()
	}

	qa, err := r.store.GetQuestionAttempt(ctx, p.QuestionAttemptID)
	if err != nil {
		return nil, "", err
	}
	if qa == nil {
		return nil, "", fmt.Errorf("question attempt %s: %w", p.QuestionAttemptID, ErrInvalidAttempt)
	}
	att, rec, c, err := r.agg.chain(ctx, qa.AttemptID)
	if err != nil {
		return nil, "", err
	}
	avail := AvailabilityAt(now, c, rec, r.dueFn)

	reason := ""
	switch {
	case avail == NotYetAvailable:
		reason = "assessment is not yet available; response not counted toward score"
	case avail == PastDue:
		reason = "the due date for this assessment has passed; response not counted toward score"
	case qa.SolutionViewed != nil:
		reason = "solution already viewed for this question; response not counted toward score"
	case !att.Valid:
		reason = "attempt is no longer valid; generate a new attempt to resume scoring"
	}

	resp := &QuestionResponse{
		ID:                uuid.NewString(),
		QuestionAttemptID: qa.ID,
		Payload:           p.Payload,
		Credit:            p.Credit,
		Valid:             reason == "",
		Submitted:         now,
	}
	if err := r.store.InsertResponse(ctx, resp); err != nil {
		return nil, "", err
	}
	if resp.Valid {
		if err := r.agg.RecomputeQuestionAttempt(ctx, qa.ID); err != nil {
			return nil, "", err
		}
	}
	return resp, reason, nil
}

// MarkSolutionViewed stamps the moment a student opens the solution. Later
// responses on the same question attempt stop counting.
func (r *Resolver) MarkSolutionViewed(ctx context.Context, questionAttemptID string) error {
	qa, err := r.store.GetQuestionAttempt(ctx, questionAttemptID)
	if err != nil {
		return err
	}
	if qa == nil {
		return fmt.Errorf("question attempt %s: %w", questionAttemptID, ErrInvalidAttempt)
	}
	if qa.SolutionViewed != nil {
		return nil
	}
	t := r.now()
	qa.SolutionViewed = &t
	return r.store.SaveQuestionAttempt(ctx, qa)
}
