package assessment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/course-lab/courselab-lms/internal/rng"
)

const createRetries = 5

// Resolver decides, per request, which content attempt an actor sees:
// an untracked fresh selection, a reconstructed existing attempt, or a newly
// generated one. Every resolution seeds its own generator; no RNG state is
// shared across requests.
type Resolver struct {
	store Store
	agg   *Aggregator
	dueFn DueDateFn
	now   func() time.Time
}

func NewResolver(store Store, agg *Aggregator, dueFn DueDateFn) *Resolver {
	return &Resolver{store: store, agg: agg, dueFn: dueFn, now: time.Now}
}

// ResolveParams carries one request's inputs. ContentAttemptID and
// QuestionAttemptIDs are administrator-only preview overrides.
type ResolveParams struct {
	Content    *Content    // nil when the assessment stands outside a course thread
	Assessment *Assessment // used when Content is nil
	Enrollment *Enrollment // nil for anonymous / external logged-in actors
	Role       Role

	Seed               string
	ContentAttemptID   string
	QuestionAttemptIDs []string

	Now time.Time // zero means wall clock
}

// Resolution is the resolver's output contract toward the rendering layer.
type Resolution struct {
	Enrollment   *Enrollment         `json:"course_enrollment,omitempty"`
	Record       *ContentRecord      `json:"record,omitempty"`
	Attempt      *ContentAttempt     `json:"current_attempt,omitempty"`
	Seed         string              `json:"assessment_seed"`
	Version      string              `json:"version"`
	QuestionList []QuestionListEntry `json:"question_list"`
	Role         Role                `json:"current_role"`
	Availability Availability        `json:"availability,omitempty"`

	// RecordResponses is false on every untracked path: responses submitted
	// against such a resolution are never persisted.
	RecordResponses bool `json:"record_responses"`
}

func (r *Resolver) ResolveAttempt(ctx context.Context, p ResolveParams) (*Resolution, error) {
	now := p.Now
	if now.IsZero() {
		now = r.now()
	}
	a := p.Content.AssessmentObject()
	if a == nil {
		a = p.Assessment
	}
	if a == nil {
		return nil, ErrContentNotFound
	}

	admin := p.Role.IsAdministrator()
	enrolled := p.Enrollment != nil

	// Anonymous and external visitors, and anyone outside a course thread,
	// get a fresh untracked selection.
	if p.Content == nil || (!admin && !enrolled) {
		if a.AccessOnlyOpenAttempts && p.Content == nil {
			return nil, ErrAssessmentUnavailable
		}
		seed := "1"
		if !a.SingleVersion && p.Seed != "" {
			seed = p.Seed
		}
		return &Resolution{
			Seed:         seed,
			Version:      versionLabel(seed),
			QuestionList: SelectQuestions(a, rng.New(seed), a.FixedOrder, false),
			Role:         p.Role,
		}, nil
	}

	if admin && p.ContentAttemptID != "" {
		return r.resolveAdminAttempt(ctx, p, a)
	}
	if admin && p.Seed != "" {
		// Read-only preview of an arbitrary version.
		return &Resolution{
			Enrollment:   p.Enrollment,
			Seed:         p.Seed,
			Version:      p.Seed,
			QuestionList: SelectQuestions(a, rng.New(p.Seed), a.FixedOrder, false),
			Role:         p.Role,
		}, nil
	}

	return r.resolveStudent(ctx, p, a, now)
}

// resolveAdminAttempt reconstructs a specific attempt for read-only preview.
func (r *Resolver) resolveAdminAttempt(ctx context.Context, p ResolveParams, a *Assessment) (*Resolution, error) {
	att, err := r.store.GetAttempt(ctx, p.ContentAttemptID)
	if err != nil {
		return nil, err
	}
	if att == nil {
		return nil, fmt.Errorf("content attempt %s: %w", p.ContentAttemptID, ErrInvalidAttempt)
	}
	rec, err := r.store.GetRecord(ctx, att.RecordID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.ContentID != p.Content.ID {
		return nil, fmt.Errorf("attempt belongs to different content: %w", ErrInvalidAttempt)
	}

	sets, err := r.store.AttemptQuestionSets(ctx, att.ID)
	if err != nil {
		return nil, err
	}
	latest, err := r.store.LatestQuestionAttempts(ctx, att.ID)
	if err != nil {
		return nil, err
	}
	var explicit []QuestionAttempt
	if len(p.QuestionAttemptIDs) > 0 {
		explicit, err = r.store.QuestionAttemptsByID(ctx, p.QuestionAttemptIDs)
		if err != nil {
			return nil, err
		}
	}

	list := QuestionListFromAttempt(a, att, sets, latest, explicit)
	if len(list) == 0 {
		return nil, fmt.Errorf("question attempts don't match: %w", ErrInvalidAttempt)
	}
	return &Resolution{
		Enrollment:   p.Enrollment,
		Record:       rec,
		Attempt:      att,
		Seed:         att.Seed,
		Version:      att.Version,
		QuestionList: list,
		Role:         p.Role,
	}, nil
}

// resolveStudent is the tracked path: get-or-create the record, reuse the
// latest attempt when its validity matches the window, otherwise generate a
// new one. Administrators without preview overrides land here too.
func (r *Resolver) resolveStudent(ctx context.Context, p ResolveParams, a *Assessment, now time.Time) (*Resolution, error) {
	admin := p.Role.IsAdministrator()
	enrollmentID := ""
	if p.Enrollment != nil {
		enrollmentID = p.Enrollment.ID
	}

	rec, err := r.store.GetOrCreateRecord(ctx, p.Content.ID, enrollmentID)
	if err != nil {
		return nil, err
	}
	avail := AvailabilityAt(now, p.Content, rec, r.dueFn)

	latest, err := r.store.LatestAttempt(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	// Validity matching: a valid attempt must not serve free practice while
	// the window reads not-yet-available, and an early invalid attempt must
	// not silently become the scored one once the window opens. Past due,
	// the latest attempt is used as is. (Known not to be foolproof.)
	if latest != nil {
		switch {
		case avail == NotYetAvailable && latest.Valid:
			latest = nil
		case avail == Available && !latest.Valid:
			latest = nil
		}
	}

	if latest != nil {
		if a.AccessOnlyOpenAttempts && !admin {
			if !latest.Valid || latest.Closed {
				return nil, ErrNoOpenAttempt
			}
			if p.Content.TimeLimit > 0 && latest.AttemptBegan != nil &&
				now.After(latest.AttemptBegan.Add(p.Content.TimeLimit)) {
				return nil, ErrAttemptExpired
			}
		}

		sets, err := r.store.AttemptQuestionSets(ctx, latest.ID)
		if err != nil {
			return nil, err
		}
		qas, err := r.store.LatestQuestionAttempts(ctx, latest.ID)
		if err != nil {
			return nil, err
		}
		if list := QuestionListFromAttempt(a, latest, sets, qas, nil); len(list) > 0 {
			if latest.AttemptBegan == nil {
				latest.AttemptBegan = &now
				if err := r.store.SaveAttempt(ctx, latest); err != nil {
					return nil, err
				}
			}
			return &Resolution{
				Enrollment:      p.Enrollment,
				Record:          rec,
				Attempt:         latest,
				Seed:            latest.Seed,
				Version:         latest.Version,
				QuestionList:    list,
				Role:            p.Role,
				Availability:    avail,
				RecordResponses: true,
			}, nil
		}
	}

	if a.AccessOnlyOpenAttempts && !admin {
		return nil, ErrNoAttemptAvailable
	}
	att, list, err := r.createAttempt(ctx, p, a, rec, avail, now)
	if err != nil {
		return nil, err
	}
	return &Resolution{
		Enrollment:      p.Enrollment,
		Record:          rec,
		Attempt:         att,
		Seed:            att.Seed,
		Version:         att.Version,
		QuestionList:    list,
		Role:            p.Role,
		Availability:    avail,
		RecordResponses: true,
	}, nil
}

func (r *Resolver) createAttempt(ctx context.Context, p ResolveParams, a *Assessment, rec *ContentRecord, avail Availability, now time.Time) (*ContentAttempt, []QuestionListEntry, error) {
	var lastErr error
	for try := 0; try < createRetries; try++ {
		n, err := r.store.AttemptCount(ctx, rec.ID)
		if err != nil {
			return nil, nil, err
		}
		number := n + 1
		seed := attemptSeed(a, p.Content, p.Enrollment, avail, number)

		att := &ContentAttempt{
			ID:           uuid.NewString(),
			RecordID:     rec.ID,
			Number:       number,
			AttemptBegan: &now,
			Seed:         seed,
			Version:      versionLabel(seed),
			Valid:        avail == Available,
		}
		list := SelectQuestions(a, rng.New(seed), a.FixedOrder, false)
		sets, qas := bindQuestionList(att, list, now)

		if err := r.store.CreateAttempt(ctx, att, sets, qas); err != nil {
			lastErr = err
			continue // whole-transaction retry; nothing partial persists
		}
		for i := range list {
			list[i].QuestionAttempt = &qas[i]
		}
		return att, list, nil
	}
	return nil, nil, fmt.Errorf("create attempt after %d tries: %w", createRetries, lastErr)
}

// bindQuestionList materializes one question-set binding and one question
// attempt per selected slot, in selection order.
func bindQuestionList(att *ContentAttempt, list []QuestionListEntry, now time.Time) ([]AttemptQuestionSet, []QuestionAttempt) {
	sets := make([]AttemptQuestionSet, len(list))
	qas := make([]QuestionAttempt, len(list))
	for i, e := range list {
		sets[i] = AttemptQuestionSet{
			ID:                uuid.NewString(),
			AttemptID:         att.ID,
			QuestionSetNumber: e.QuestionSetNumber,
			QuestionNumber:    i + 1,
		}
		qas[i] = QuestionAttempt{
			ID:                   uuid.NewString(),
			AttemptQuestionSetID: sets[i].ID,
			AttemptID:            att.ID,
			QuestionSetNumber:    e.QuestionSetNumber,
			QuestionID:           e.Question.ID,
			Seed:                 e.Seed,
			Valid:                att.Valid,
			Created:              now,
		}
	}
	return sets, qas
}

// attemptSeed fixes the master seed for a new attempt. Before release the
// seed is just the ordinal, so re-requesting is stable and enumerable.
// Otherwise the seed is deterministic for the (content, number) pair, plus
// the student when the assessment individualizes.
func attemptSeed(a *Assessment, c *Content, e *Enrollment, avail Availability, number int) string {
	switch {
	case a.SingleVersion:
		return "1"
	case avail == NotYetAvailable:
		return fmt.Sprintf("%d", number)
	case a.IndividualizeByStudent && e != nil:
		return fmt.Sprintf("%s_%d_%s", c.ID, number, e.UserID)
	default:
		return fmt.Sprintf("%s_%d", c.ID, number)
	}
}

// versionLabel derives the short display label shown to identify a variant.
func versionLabel(seed string) string {
	if len(seed) <= 4 {
		return seed
	}
	return seed[len(seed)-4:]
}
