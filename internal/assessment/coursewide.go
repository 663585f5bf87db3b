package assessment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/course-lab/courselab-lms/internal/rng"
)

// CreateCoursewideAttempt generates a shared, enrollment-less attempt for a
// paper/offline exam. The whole attempt with all of its question-sets is
// created in one transaction, retried bounded times on conflict.
func (r *Resolver) CreateCoursewideAttempt(ctx context.Context, c *Content, seed string) (*ContentAttempt, []QuestionListEntry, error) {
	a := c.AssessmentObject()
	if a == nil {
		return nil, nil, ErrContentNotFound
	}
	rec, err := r.store.GetOrCreateRecord(ctx, c.ID, "")
	if err != nil {
		return nil, nil, err
	}

	now := r.now()
	var lastErr error
	for try := 0; try < createRetries; try++ {
		n, err := r.store.AttemptCount(ctx, rec.ID)
		if err != nil {
			return nil, nil, err
		}
		number := n + 1
		s := seed
		if s == "" {
			s = fmt.Sprintf("%s_cw_%d", c.ID, number)
		}
		att := &ContentAttempt{
			ID:       uuid.NewString(),
			RecordID: rec.ID,
			Number:   number,
			Seed:     s,
			Version:  versionLabel(s),
			Valid:    true,
		}
		list := SelectQuestions(a, rng.New(s), a.FixedOrder, false)
		sets, qas := bindQuestionList(att, list, now)
		if err := r.store.CreateAttempt(ctx, att, sets, qas); err != nil {
			lastErr = err
			continue
		}
		for i := range list {
			list[i].QuestionAttempt = &qas[i]
		}
		return att, list, nil
	}
	return nil, nil, fmt.Errorf("create coursewide attempt after %d tries: %w", createRetries, lastErr)
}

// ForkCoursewideAttempt derives a personal attempt from a coursewide one,
// carrying over the seed and question bindings so a student's online record
// matches the paper version they took.
func (r *Resolver) ForkCoursewideAttempt(ctx context.Context, c *Content, base *ContentAttempt, e *Enrollment, began time.Time) (*ContentAttempt, error) {
	a := c.AssessmentObject()
	if a == nil {
		return nil, ErrContentNotFound
	}
	baseRec, err := r.store.GetRecord(ctx, base.RecordID)
	if err != nil {
		return nil, err
	}
	if baseRec == nil || !baseRec.Coursewide() || baseRec.ContentID != c.ID {
		return nil, fmt.Errorf("base attempt is not coursewide for this content: %w", ErrInvalidAttempt)
	}
	baseSets, err := r.store.AttemptQuestionSets(ctx, base.ID)
	if err != nil {
		return nil, err
	}
	baseQAs, err := r.store.LatestQuestionAttempts(ctx, base.ID)
	if err != nil {
		return nil, err
	}
	bySet := map[int]QuestionAttempt{}
	for _, qa := range baseQAs {
		bySet[qa.QuestionSetNumber] = qa
	}

	rec, err := r.store.GetOrCreateRecord(ctx, c.ID, e.ID)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for try := 0; try < createRetries; try++ {
		n, err := r.store.AttemptCount(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		att := &ContentAttempt{
			ID:            uuid.NewString(),
			RecordID:      rec.ID,
			Number:        n + 1,
			AttemptBegan:  &began,
			Seed:          base.Seed,
			Version:       base.Version,
			Valid:         true,
			BaseAttemptID: base.ID,
		}
		sets := make([]AttemptQuestionSet, len(baseSets))
		qas := make([]QuestionAttempt, 0, len(baseSets))
		for i, bs := range baseSets {
			sets[i] = AttemptQuestionSet{
				ID:                uuid.NewString(),
				AttemptID:         att.ID,
				QuestionSetNumber: bs.QuestionSetNumber,
				QuestionNumber:    bs.QuestionNumber,
			}
			bqa, ok := bySet[bs.QuestionSetNumber]
			if !ok {
				return nil, fmt.Errorf("coursewide attempt missing question attempt for set %d: %w", bs.QuestionSetNumber, ErrInvalidAttempt)
			}
			qas = append(qas, QuestionAttempt{
				ID:                   uuid.NewString(),
				AttemptQuestionSetID: sets[i].ID,
				AttemptID:            att.ID,
				QuestionSetNumber:    bs.QuestionSetNumber,
				QuestionID:           bqa.QuestionID,
				Seed:                 bqa.Seed,
				Valid:                true,
				Created:              r.now(),
			})
		}
		if err := r.store.CreateAttempt(ctx, att, sets, qas); err != nil {
			lastErr = err
			continue
		}
		return att, nil
	}
	return nil, fmt.Errorf("fork coursewide attempt after %d tries: %w", createRetries, lastErr)
}
