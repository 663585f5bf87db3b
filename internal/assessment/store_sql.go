package assessment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func newID() string { return uuid.NewString() }

// SQLStore implements Store over database/sql. Works against both the sqlite
// and postgres drivers; $1-style placeholders are accepted by both.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

// contentObjectJSON is the tagged serialization of the ContentObject variant.
type contentObjectJSON struct {
	Type       string      `json:"type"`
	Assessment *Assessment `json:"assessment,omitempty"`
	Page       *Page       `json:"page,omitempty"`
}

func encodeObject(o ContentObject) (string, error) {
	var v contentObjectJSON
	switch t := o.(type) {
	case *Assessment:
		v = contentObjectJSON{Type: "assessment", Assessment: t}
	case *Page:
		v = contentObjectJSON{Type: "page", Page: t}
	case nil:
		v = contentObjectJSON{}
	default:
		return "", fmt.Errorf("unknown content object type %T", o)
	}
	b, err := json.Marshal(v)
	return string(b), err
}

func decodeObject(raw string) (ContentObject, error) {
	var v contentObjectJSON
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	switch v.Type {
	case "assessment":
		return v.Assessment, nil
	case "page":
		return v.Page, nil
	default:
		return nil, nil
	}
}

func isConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || // sqlite: UNIQUE constraint failed
		strings.Contains(msg, "duplicate key") // postgres
}

func (s *SQLStore) GetContent(ctx context.Context, id string) (*Content, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,course_id,object_json,points,aggregation,record_scores,
		available_before_assigned,assigned,due,time_limit_sec FROM contents WHERE id=$1`, id)
	var c Content
	var objJSON, agg string
	var assigned, due sql.NullInt64
	var timeLimitSec int64
	if err := row.Scan(&c.ID, &c.CourseID, &objJSON, &c.Points, &agg, &c.RecordScores,
		&c.AvailableBeforeAssigned, &assigned, &due, &timeLimitSec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	obj, err := decodeObject(objJSON)
	if err != nil {
		return nil, err
	}
	c.Object = obj
	c.AttemptAggregation = AggregationMode(agg)
	c.Assigned = nullUnix(assigned)
	c.Due = nullUnix(due)
	c.TimeLimit = time.Duration(timeLimitSec) * time.Second
	return &c, nil
}

func (s *SQLStore) PutContent(ctx context.Context, c *Content) error {
	objJSON, err := encodeObject(c.Object)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO contents
		(id,course_id,object_json,points,aggregation,record_scores,available_before_assigned,assigned,due,time_limit_sec)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET object_json=EXCLUDED.object_json, points=EXCLUDED.points,
		aggregation=EXCLUDED.aggregation, record_scores=EXCLUDED.record_scores,
		available_before_assigned=EXCLUDED.available_before_assigned,
		assigned=EXCLUDED.assigned, due=EXCLUDED.due, time_limit_sec=EXCLUDED.time_limit_sec`,
		c.ID, c.CourseID, objJSON, c.Points, string(c.AttemptAggregation), c.RecordScores,
		c.AvailableBeforeAssigned, unixNull(c.Assigned), unixNull(c.Due), int64(c.TimeLimit/time.Second))
	return err
}

func (s *SQLStore) GetEnrollment(ctx context.Context, courseID, userID string) (*Enrollment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,course_id,user_id,role,withdrawn FROM enrollments WHERE course_id=$1 AND user_id=$2`,
		courseID, userID)
	var e Enrollment
	var role string
	if err := row.Scan(&e.ID, &e.CourseID, &e.UserID, &role, &e.Withdrawn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	e.Role = Role(role)
	return &e, nil
}

func (s *SQLStore) PutEnrollment(ctx context.Context, e *Enrollment) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO enrollments (id,course_id,user_id,role,withdrawn)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET role=EXCLUDED.role, withdrawn=EXCLUDED.withdrawn`,
		e.ID, e.CourseID, e.UserID, string(e.Role), e.Withdrawn)
	return err
}

func (s *SQLStore) GetOrCreateRecord(ctx context.Context, contentID, enrollmentID string) (*ContentRecord, error) {
	rec, err := s.findRecord(ctx, contentID, enrollmentID)
	if err != nil || rec != nil {
		return rec, err
	}
	id := newID()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO content_records (id,content_id,enrollment_id) VALUES ($1,$2,$3)`,
		id, contentID, enrollmentID)
	if err != nil {
		if isConflict(err) {
			// A concurrent request created it first; the unique constraint
			// on (content_id, enrollment_id) is the race-breaker.
			return s.findRecord(ctx, contentID, enrollmentID)
		}
		return nil, err
	}
	return &ContentRecord{ID: id, ContentID: contentID, EnrollmentID: enrollmentID}, nil
}

func (s *SQLStore) findRecord(ctx context.Context, contentID, enrollmentID string) (*ContentRecord, error) {
	row := s.db.QueryRowContext(ctx, recordSelect+` WHERE content_id=$1 AND enrollment_id=$2`,
		contentID, enrollmentID)
	return scanRecord(row)
}

const recordSelect = `SELECT id,content_id,enrollment_id,score,score_override,
	assigned_adjustment,initial_due_adjustment,final_due_adjustment FROM content_records`

type rowScanner interface{ Scan(dest ...any) error }

func scanRecord(row rowScanner) (*ContentRecord, error) {
	var rec ContentRecord
	var score, override sql.NullFloat64
	var adjAssigned, adjInitial, adjFinal sql.NullInt64
	if err := row.Scan(&rec.ID, &rec.ContentID, &rec.EnrollmentID, &score, &override,
		&adjAssigned, &adjInitial, &adjFinal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.Score = nullFloat(score)
	rec.ScoreOverride = nullFloat(override)
	rec.AssignedAdjustment = nullUnix(adjAssigned)
	rec.InitialDueAdjustment = nullUnix(adjInitial)
	rec.FinalDueAdjustment = nullUnix(adjFinal)
	return &rec, nil
}

func (s *SQLStore) GetRecord(ctx context.Context, id string) (*ContentRecord, error) {
	return scanRecord(s.db.QueryRowContext(ctx, recordSelect+` WHERE id=$1`, id))
}

func (s *SQLStore) SaveRecord(ctx context.Context, rec *ContentRecord) error {
	_, err := s.db.ExecContext(ctx, `UPDATE content_records SET score=$1, score_override=$2,
		assigned_adjustment=$3, initial_due_adjustment=$4, final_due_adjustment=$5 WHERE id=$6`,
		floatNull(rec.Score), floatNull(rec.ScoreOverride),
		unixNull(rec.AssignedAdjustment), unixNull(rec.InitialDueAdjustment), unixNull(rec.FinalDueAdjustment),
		rec.ID)
	return err
}

const attemptSelect = `SELECT id,record_id,number,attempt_began,seed,version,valid,closed,
	score,score_override,base_attempt_id FROM content_attempts`

func scanAttempt(row rowScanner) (*ContentAttempt, error) {
	var att ContentAttempt
	var beganAt sql.NullInt64
	var score, override sql.NullFloat64
	var base sql.NullString
	if err := row.Scan(&att.ID, &att.RecordID, &att.Number, &beganAt, &att.Seed, &att.Version,
		&att.Valid, &att.Closed, &score, &override, &base); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	att.AttemptBegan = nullUnix(beganAt)
	att.Score = nullFloat(score)
	att.ScoreOverride = nullFloat(override)
	att.BaseAttemptID = base.String
	return &att, nil
}

func (s *SQLStore) LatestAttempt(ctx context.Context, recordID string) (*ContentAttempt, error) {
	// "attempt_began IS NULL" sorts unbegun attempts last on both drivers.
	row := s.db.QueryRowContext(ctx, attemptSelect+
		` WHERE record_id=$1 ORDER BY attempt_began IS NULL, attempt_began DESC, number DESC LIMIT 1`, recordID)
	return scanAttempt(row)
}

func (s *SQLStore) AttemptsForRecord(ctx context.Context, recordID string) ([]ContentAttempt, error) {
	rows, err := s.db.QueryContext(ctx, attemptSelect+` WHERE record_id=$1 ORDER BY number`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ContentAttempt
	for rows.Next() {
		att, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *att)
	}
	return out, rows.Err()
}

func (s *SQLStore) AttemptCount(ctx context.Context, recordID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM content_attempts WHERE record_id=$1`, recordID).Scan(&n)
	return n, err
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (*ContentAttempt, error) {
	return scanAttempt(s.db.QueryRowContext(ctx, attemptSelect+` WHERE id=$1`, id))
}

func (s *SQLStore) SaveAttempt(ctx context.Context, att *ContentAttempt) error {
	_, err := s.db.ExecContext(ctx, `UPDATE content_attempts SET attempt_began=$1, valid=$2, closed=$3,
		score=$4, score_override=$5 WHERE id=$6`,
		unixNull(att.AttemptBegan), att.Valid, att.Closed,
		floatNull(att.Score), floatNull(att.ScoreOverride), att.ID)
	return err
}

// CreateAttempt persists the attempt and all its bindings in one transaction.
// A constraint violation anywhere rolls the whole thing back and surfaces as
// ErrConflict so the caller can retry with a fresh attempt number.
func (s *SQLStore) CreateAttempt(ctx context.Context, att *ContentAttempt, sets []AttemptQuestionSet, qas []QuestionAttempt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO content_attempts
		(id,record_id,number,attempt_began,seed,version,valid,closed,score,score_override,base_attempt_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		att.ID, att.RecordID, att.Number, unixNull(att.AttemptBegan), att.Seed, att.Version,
		att.Valid, att.Closed, floatNull(att.Score), floatNull(att.ScoreOverride), strNull(att.BaseAttemptID))
	if err != nil {
		if isConflict(err) {
			return ErrConflict
		}
		return err
	}
	for _, aqs := range sets {
		_, err = tx.ExecContext(ctx, `INSERT INTO attempt_question_sets
			(id,attempt_id,question_set,question_number,credit_override) VALUES ($1,$2,$3,$4,$5)`,
			aqs.ID, aqs.AttemptID, aqs.QuestionSetNumber, aqs.QuestionNumber, floatNull(aqs.CreditOverride))
		if err != nil {
			if isConflict(err) {
				return ErrConflict
			}
			return err
		}
	}
	for _, qa := range qas {
		_, err = tx.ExecContext(ctx, `INSERT INTO question_attempts
			(id,attempt_question_set_id,attempt_id,question_set,question_id,seed,valid,credit,solution_viewed,created)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			qa.ID, qa.AttemptQuestionSetID, qa.AttemptID, qa.QuestionSetNumber, qa.QuestionID,
			qa.Seed, qa.Valid, floatNull(qa.Credit), unixNull(qa.SolutionViewed), qa.Created.Unix())
		if err != nil {
			if isConflict(err) {
				return ErrConflict
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) AttemptQuestionSets(ctx context.Context, attemptID string) ([]AttemptQuestionSet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,attempt_id,question_set,question_number,credit_override
		FROM attempt_question_sets WHERE attempt_id=$1 ORDER BY question_number`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AttemptQuestionSet
	for rows.Next() {
		var aqs AttemptQuestionSet
		var override sql.NullFloat64
		if err := rows.Scan(&aqs.ID, &aqs.AttemptID, &aqs.QuestionSetNumber, &aqs.QuestionNumber, &override); err != nil {
			return nil, err
		}
		aqs.CreditOverride = nullFloat(override)
		out = append(out, aqs)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetAttemptQuestionSet(ctx context.Context, id string) (*AttemptQuestionSet, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,attempt_id,question_set,question_number,credit_override
		FROM attempt_question_sets WHERE id=$1`, id)
	var aqs AttemptQuestionSet
	var override sql.NullFloat64
	if err := row.Scan(&aqs.ID, &aqs.AttemptID, &aqs.QuestionSetNumber, &aqs.QuestionNumber, &override); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	aqs.CreditOverride = nullFloat(override)
	return &aqs, nil
}

func (s *SQLStore) SaveAttemptQuestionSet(ctx context.Context, aqs *AttemptQuestionSet) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE attempt_question_sets SET credit_override=$1 WHERE id=$2`,
		floatNull(aqs.CreditOverride), aqs.ID)
	return err
}

const questionAttemptSelect = `SELECT id,attempt_question_set_id,attempt_id,question_set,question_id,
	seed,valid,credit,solution_viewed,created FROM question_attempts`

func scanQuestionAttempt(row rowScanner) (*QuestionAttempt, error) {
	var qa QuestionAttempt
	var credit sql.NullFloat64
	var viewed sql.NullInt64
	var created int64
	if err := row.Scan(&qa.ID, &qa.AttemptQuestionSetID, &qa.AttemptID, &qa.QuestionSetNumber,
		&qa.QuestionID, &qa.Seed, &qa.Valid, &credit, &viewed, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	qa.Credit = nullFloat(credit)
	qa.SolutionViewed = nullUnix(viewed)
	qa.Created = time.Unix(created, 0).UTC()
	return &qa, nil
}

func (s *SQLStore) LatestQuestionAttempts(ctx context.Context, attemptID string) ([]QuestionAttempt, error) {
	rows, err := s.db.QueryContext(ctx, questionAttemptSelect+
		` WHERE attempt_id=$1 ORDER BY question_set, created`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	latest := map[int]QuestionAttempt{}
	var order []int
	for rows.Next() {
		qa, err := scanQuestionAttempt(rows)
		if err != nil {
			return nil, err
		}
		if _, seen := latest[qa.QuestionSetNumber]; !seen {
			order = append(order, qa.QuestionSetNumber)
		}
		latest[qa.QuestionSetNumber] = *qa // rows come oldest first; last wins
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]QuestionAttempt, 0, len(order))
	for _, n := range order {
		out = append(out, latest[n])
	}
	return out, nil
}

func (s *SQLStore) QuestionAttemptsForSet(ctx context.Context, attemptQuestionSetID string) ([]QuestionAttempt, error) {
	rows, err := s.db.QueryContext(ctx, questionAttemptSelect+
		` WHERE attempt_question_set_id=$1 ORDER BY created`, attemptQuestionSetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []QuestionAttempt
	for rows.Next() {
		qa, err := scanQuestionAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *qa)
	}
	return out, rows.Err()
}

func (s *SQLStore) QuestionAttemptsByID(ctx context.Context, ids []string) ([]QuestionAttempt, error) {
	out := make([]QuestionAttempt, 0, len(ids))
	for _, id := range ids {
		qa, err := s.GetQuestionAttempt(ctx, id)
		if err != nil {
			return nil, err
		}
		if qa != nil {
			out = append(out, *qa)
		}
	}
	return out, nil
}

func (s *SQLStore) GetQuestionAttempt(ctx context.Context, id string) (*QuestionAttempt, error) {
	return scanQuestionAttempt(s.db.QueryRowContext(ctx, questionAttemptSelect+` WHERE id=$1`, id))
}

func (s *SQLStore) SaveQuestionAttempt(ctx context.Context, qa *QuestionAttempt) error {
	_, err := s.db.ExecContext(ctx, `UPDATE question_attempts SET valid=$1, credit=$2, solution_viewed=$3 WHERE id=$4`,
		qa.Valid, floatNull(qa.Credit), unixNull(qa.SolutionViewed), qa.ID)
	return err
}

func (s *SQLStore) InsertResponse(ctx context.Context, resp *QuestionResponse) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO question_responses
		(id,question_attempt_id,payload,credit,valid,submitted) VALUES ($1,$2,$3,$4,$5,$6)`,
		resp.ID, resp.QuestionAttemptID, resp.Payload, resp.Credit, resp.Valid, resp.Submitted.Unix())
	return err
}

func (s *SQLStore) ResponsesForQuestionAttempt(ctx context.Context, questionAttemptID string) ([]QuestionResponse, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,question_attempt_id,payload,credit,valid,submitted
		FROM question_responses WHERE question_attempt_id=$1 ORDER BY submitted`, questionAttemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []QuestionResponse
	for rows.Next() {
		var r QuestionResponse
		var submitted int64
		if err := rows.Scan(&r.ID, &r.QuestionAttemptID, &r.Payload, &r.Credit, &r.Valid, &submitted); err != nil {
			return nil, err
		}
		r.Submitted = time.Unix(submitted, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) AppendChange(ctx context.Context, entry *ChangeEntry) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO change_log
		(id,level,ref_id,action,old_state,new_state,at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		entry.ID, entry.Level, entry.RefID, string(entry.Action), entry.OldState, entry.NewState, entry.At.Unix())
	return err
}

func (s *SQLStore) ChangesForRef(ctx context.Context, level, refID string) ([]ChangeEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,level,ref_id,action,old_state,new_state,at
		FROM change_log WHERE level=$1 AND ref_id=$2 ORDER BY at`, level, refID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChangeEntry
	for rows.Next() {
		var e ChangeEntry
		var action string
		var at int64
		if err := rows.Scan(&e.ID, &e.Level, &e.RefID, &action, &e.OldState, &e.NewState, &at); err != nil {
			return nil, err
		}
		e.Action = ChangeAction(action)
		e.At = time.Unix(at, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- null helpers ---

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func floatNull(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func unixNull(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func strNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
