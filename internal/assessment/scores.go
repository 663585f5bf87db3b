package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Aggregator owns the bottom-up score cascade: response → question attempt →
// question-set credit → attempt score → record score. Missing data degrades
// to nil at every level rather than erroring, so "never attempted" stays
// distinguishable from "attempted for zero".
type Aggregator struct {
	store Store
	now   func() time.Time
}

func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store, now: time.Now}
}

// --- pure level computations ---

// questionAttemptCredit collapses the valid responses of one question attempt.
func questionAttemptCredit(responses []QuestionResponse, mode AggregationMode) *float64 {
	var valid []QuestionResponse
	for _, r := range responses {
		if r.Valid {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	switch mode {
	case AggregateAvg:
		sum := 0.0
		for _, r := range valid {
			sum += r.Credit
		}
		v := sum / float64(len(valid))
		return &v
	case AggregateLast:
		last := valid[0]
		for _, r := range valid[1:] {
			if r.Submitted.After(last.Submitted) {
				last = r
			}
		}
		v := last.Credit
		return &v
	default: // Max
		v := valid[0].Credit
		for _, r := range valid[1:] {
			if r.Credit > v {
				v = r.Credit
			}
		}
		return &v
	}
}

// QuestionSetCredit returns the credit of one question-set slot. A set credit
// override wins outright, zero included. With valid question attempts but no
// computable credit the result coerces to 0: attempted, earned nothing.
func (ag *Aggregator) QuestionSetCredit(ctx context.Context, aqs *AttemptQuestionSet, mode AggregationMode) (*float64, error) {
	if aqs.CreditOverride != nil {
		v := *aqs.CreditOverride
		return &v, nil
	}
	qas, err := ag.store.QuestionAttemptsForSet(ctx, aqs.ID)
	if err != nil {
		return nil, err
	}
	var valid []QuestionAttempt
	for _, qa := range qas {
		if qa.Valid {
			valid = append(valid, qa)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}

	var credit *float64
	switch mode {
	case AggregateAvg:
		sum, n := 0.0, 0
		for _, qa := range valid {
			if qa.Credit != nil {
				sum += *qa.Credit
				n++
			}
		}
		if n > 0 {
			v := sum / float64(n)
			credit = &v
		}
	case AggregateLast:
		var last *QuestionAttempt
		for i := range valid {
			if valid[i].Credit == nil {
				continue
			}
			if last == nil || valid[i].Created.After(last.Created) {
				last = &valid[i]
			}
		}
		if last != nil {
			v := *last.Credit
			credit = &v
		}
	default: // Max
		for _, qa := range valid {
			if qa.Credit == nil {
				continue
			}
			if credit == nil || *qa.Credit > *credit {
				v := *qa.Credit
				credit = &v
			}
		}
	}
	if credit == nil {
		zero := 0.0
		credit = &zero
	}
	return credit, nil
}

// AttemptScore computes a content attempt's score: weighted question-set
// credits normalized by total weight and scaled to the content's points. The
// attempt's score override wins when set. Nil when nothing was attempted or
// the content is not an assessment.
func (ag *Aggregator) AttemptScore(ctx context.Context, c *Content, att *ContentAttempt) (*float64, error) {
	if att.ScoreOverride != nil {
		v := *att.ScoreOverride
		return &v, nil
	}
	a := c.AssessmentObject()
	if a == nil {
		return nil, nil
	}
	sets, err := ag.store.AttemptQuestionSets(ctx, att.ID)
	if err != nil {
		return nil, err
	}

	sum := 0.0
	attempted := false
	for i := range sets {
		credit, err := ag.QuestionSetCredit(ctx, &sets[i], c.AttemptAggregation)
		if err != nil {
			return nil, err
		}
		if credit == nil {
			continue
		}
		attempted = true
		if def := a.QuestionSetByNumber(sets[i].QuestionSetNumber); def != nil {
			sum += *credit * def.Weight
		}
	}
	if !attempted {
		return nil, nil
	}
	score := 0.0
	if total := a.TotalWeight(); total != 0 {
		score = sum / total * c.Points
	}
	return &score, nil
}

// RecordScore aggregates the valid attempts of a record. The record's score
// override wins when set.
func (ag *Aggregator) RecordScore(ctx context.Context, c *Content, rec *ContentRecord) (*float64, error) {
	if rec.ScoreOverride != nil {
		v := *rec.ScoreOverride
		return &v, nil
	}
	if c.AssessmentObject() == nil {
		return nil, nil
	}
	attempts, err := ag.store.AttemptsForRecord(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	var scored []ContentAttempt
	for _, att := range attempts {
		if att.Valid && att.Score != nil {
			scored = append(scored, att)
		}
	}
	if len(scored) == 0 {
		return nil, nil
	}
	switch c.AttemptAggregation {
	case AggregateAvg:
		sum := 0.0
		for _, att := range scored {
			sum += *att.Score
		}
		v := sum / float64(len(scored))
		return &v, nil
	case AggregateLast:
		last := scored[0]
		for _, att := range scored[1:] {
			if began(att).After(began(last)) {
				last = att
			}
		}
		v := *last.Score
		return &v, nil
	default: // Max
		v := *scored[0].Score
		for _, att := range scored[1:] {
			if *att.Score > v {
				v = *att.Score
			}
		}
		return &v, nil
	}
}

func began(att ContentAttempt) time.Time {
	if att.AttemptBegan == nil {
		return time.Time{}
	}
	return *att.AttemptBegan
}

// --- cascading recompute ---

// RecomputeQuestionAttempt refreshes one question attempt's credit from its
// responses and cascades the change up to the record.
func (ag *Aggregator) RecomputeQuestionAttempt(ctx context.Context, questionAttemptID string) error {
	qa, err := ag.store.GetQuestionAttempt(ctx, questionAttemptID)
	if err != nil {
		return err
	}
	if qa == nil {
		return fmt.Errorf("question attempt %s: %w", questionAttemptID, ErrInvalidAttempt)
	}
	att, rec, c, err := ag.chain(ctx, qa.AttemptID)
	if err != nil {
		return err
	}

	responses, err := ag.store.ResponsesForQuestionAttempt(ctx, qa.ID)
	if err != nil {
		return err
	}
	credit := questionAttemptCredit(responses, c.AttemptAggregation)
	if !floatPtrEq(qa.Credit, credit) {
		qa.Credit = credit
		if err := ag.store.SaveQuestionAttempt(ctx, qa); err != nil {
			return err
		}
	}
	return ag.recomputeAttempt(ctx, c, rec, att)
}

// RecomputeAttempt refreshes an attempt's score and the record above it.
func (ag *Aggregator) RecomputeAttempt(ctx context.Context, attemptID string) error {
	att, rec, c, err := ag.chain(ctx, attemptID)
	if err != nil {
		return err
	}
	return ag.recomputeAttempt(ctx, c, rec, att)
}

func (ag *Aggregator) recomputeAttempt(ctx context.Context, c *Content, rec *ContentRecord, att *ContentAttempt) error {
	score, err := ag.AttemptScore(ctx, c, att)
	if err != nil {
		return err
	}
	if !floatPtrEq(att.Score, score) {
		att.Score = score
		if err := ag.store.SaveAttempt(ctx, att); err != nil {
			return err
		}
	}
	return ag.recomputeRecord(ctx, c, rec)
}

func (ag *Aggregator) recomputeRecord(ctx context.Context, c *Content, rec *ContentRecord) error {
	score, err := ag.RecordScore(ctx, c, rec)
	if err != nil {
		return err
	}
	if floatPtrEq(rec.Score, score) {
		return nil
	}
	rec.Score = score
	return ag.store.SaveRecord(ctx, rec)
}

func (ag *Aggregator) chain(ctx context.Context, attemptID string) (*ContentAttempt, *ContentRecord, *Content, error) {
	att, err := ag.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, nil, nil, err
	}
	if att == nil {
		return nil, nil, nil, fmt.Errorf("attempt %s: %w", attemptID, ErrInvalidAttempt)
	}
	rec, err := ag.store.GetRecord(ctx, att.RecordID)
	if err != nil {
		return nil, nil, nil, err
	}
	if rec == nil {
		return nil, nil, nil, fmt.Errorf("record %s: %w", att.RecordID, ErrContentNotFound)
	}
	c, err := ag.store.GetContent(ctx, rec.ContentID)
	if err != nil {
		return nil, nil, nil, err
	}
	if c == nil {
		return nil, nil, nil, fmt.Errorf("content %s: %w", rec.ContentID, ErrContentNotFound)
	}
	return att, rec, c, nil
}

// --- override saves ---

// SetRecordScoreOverride writes a record's manual score. Setting the value it
// already holds is a no-op: no recompute and no audit entry. A nil value
// removes the override and restores the derived score.
func (ag *Aggregator) SetRecordScoreOverride(ctx context.Context, recordID string, v *float64) error {
	rec, err := ag.store.GetRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("record %s: %w", recordID, ErrContentNotFound)
	}
	if floatPtrEq(rec.ScoreOverride, v) {
		return nil
	}
	old := serialize(rec)
	rec.ScoreOverride = copyFloat(v)

	c, err := ag.store.GetContent(ctx, rec.ContentID)
	if err != nil {
		return err
	}
	rec.Score, err = ag.RecordScore(ctx, c, rec)
	if err != nil {
		return err
	}
	if err := ag.store.SaveRecord(ctx, rec); err != nil {
		return err
	}
	return ag.audit(ctx, "record", rec.ID, ActionChangeScore, old, serialize(rec))
}

// SetAttemptScoreOverride writes an attempt's manual score and cascades to
// the record. Idempotent like the record-level setter.
func (ag *Aggregator) SetAttemptScoreOverride(ctx context.Context, attemptID string, v *float64) error {
	att, rec, c, err := ag.chain(ctx, attemptID)
	if err != nil {
		return err
	}
	if floatPtrEq(att.ScoreOverride, v) {
		return nil
	}
	old := serialize(att)
	att.ScoreOverride = copyFloat(v)
	att.Score, err = ag.AttemptScore(ctx, c, att)
	if err != nil {
		return err
	}
	if err := ag.store.SaveAttempt(ctx, att); err != nil {
		return err
	}
	if err := ag.recomputeRecord(ctx, c, rec); err != nil {
		return err
	}
	return ag.audit(ctx, "attempt", att.ID, ActionChangeScore, old, serialize(att))
}

// SetQuestionSetCreditOverride writes a question-set credit override and
// cascades through the attempt to the record.
func (ag *Aggregator) SetQuestionSetCreditOverride(ctx context.Context, attemptQuestionSetID string, v *float64) error {
	aqs, err := ag.store.GetAttemptQuestionSet(ctx, attemptQuestionSetID)
	if err != nil {
		return err
	}
	if aqs == nil {
		return fmt.Errorf("attempt question set %s: %w", attemptQuestionSetID, ErrInvalidAttempt)
	}
	if floatPtrEq(aqs.CreditOverride, v) {
		return nil
	}
	old := serialize(aqs)
	aqs.CreditOverride = copyFloat(v)
	if err := ag.store.SaveAttemptQuestionSet(ctx, aqs); err != nil {
		return err
	}
	if err := ag.RecomputeAttempt(ctx, aqs.AttemptID); err != nil {
		return err
	}
	return ag.audit(ctx, "question_set", aqs.ID, ActionChangeScore, old, serialize(aqs))
}

// SetRecordDateAdjustments writes the per-student date overrides. Dates do
// not feed the score cascade, so only the record itself is saved.
func (ag *Aggregator) SetRecordDateAdjustments(ctx context.Context, recordID string, assigned, initialDue, finalDue *time.Time) error {
	rec, err := ag.store.GetRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("record %s: %w", recordID, ErrContentNotFound)
	}
	if timePtrEq(rec.AssignedAdjustment, assigned) &&
		timePtrEq(rec.InitialDueAdjustment, initialDue) &&
		timePtrEq(rec.FinalDueAdjustment, finalDue) {
		return nil
	}
	old := serialize(rec)
	rec.AssignedAdjustment = copyTime(assigned)
	rec.InitialDueAdjustment = copyTime(initialDue)
	rec.FinalDueAdjustment = copyTime(finalDue)
	if err := ag.store.SaveRecord(ctx, rec); err != nil {
		return err
	}
	return ag.audit(ctx, "record", rec.ID, ActionChangeDate, old, serialize(rec))
}

func (ag *Aggregator) audit(ctx context.Context, level, refID string, action ChangeAction, oldState, newState string) error {
	return ag.store.AppendChange(ctx, &ChangeEntry{
		ID:       uuid.NewString(),
		Level:    level,
		RefID:    refID,
		Action:   action,
		OldState: oldState,
		NewState: newState,
		At:       ag.now(),
	})
}

// --- small helpers ---

func floatPtrEq(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEq(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func serialize(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}
