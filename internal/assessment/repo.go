package assessment

import "context"

// Store is the persistence boundary of the attempt engine. Absent rows come
// back as (nil, nil); errors are reserved for infrastructure failures and
// ErrConflict on uniqueness violations.
type Store interface {
	// Catalog.
	GetContent(ctx context.Context, id string) (*Content, error)
	PutContent(ctx context.Context, c *Content) error
	GetEnrollment(ctx context.Context, courseID, userID string) (*Enrollment, error)
	PutEnrollment(ctx context.Context, e *Enrollment) error

	// Records. GetOrCreateRecord must fetch the winner instead of failing
	// when a concurrent insert beats it. An empty enrollmentID addresses
	// the coursewide record.
	GetOrCreateRecord(ctx context.Context, contentID, enrollmentID string) (*ContentRecord, error)
	GetRecord(ctx context.Context, id string) (*ContentRecord, error)
	SaveRecord(ctx context.Context, rec *ContentRecord) error

	// Attempts. CreateAttempt persists the attempt with all of its
	// question-set bindings and question attempts in one transaction; it
	// never leaves a half-built attempt behind.
	LatestAttempt(ctx context.Context, recordID string) (*ContentAttempt, error)
	AttemptsForRecord(ctx context.Context, recordID string) ([]ContentAttempt, error)
	AttemptCount(ctx context.Context, recordID string) (int, error)
	GetAttempt(ctx context.Context, id string) (*ContentAttempt, error)
	SaveAttempt(ctx context.Context, att *ContentAttempt) error
	CreateAttempt(ctx context.Context, att *ContentAttempt, sets []AttemptQuestionSet, qas []QuestionAttempt) error

	// Question-set bindings and question attempts.
	AttemptQuestionSets(ctx context.Context, attemptID string) ([]AttemptQuestionSet, error)
	GetAttemptQuestionSet(ctx context.Context, id string) (*AttemptQuestionSet, error)
	SaveAttemptQuestionSet(ctx context.Context, aqs *AttemptQuestionSet) error
	LatestQuestionAttempts(ctx context.Context, attemptID string) ([]QuestionAttempt, error)
	QuestionAttemptsForSet(ctx context.Context, attemptQuestionSetID string) ([]QuestionAttempt, error)
	QuestionAttemptsByID(ctx context.Context, ids []string) ([]QuestionAttempt, error)
	GetQuestionAttempt(ctx context.Context, id string) (*QuestionAttempt, error)
	SaveQuestionAttempt(ctx context.Context, qa *QuestionAttempt) error

	// Responses are append-only.
	InsertResponse(ctx context.Context, resp *QuestionResponse) error
	ResponsesForQuestionAttempt(ctx context.Context, questionAttemptID string) ([]QuestionResponse, error)

	// Audit log.
	AppendChange(ctx context.Context, entry *ChangeEntry) error
	ChangesForRef(ctx context.Context, level, refID string) ([]ChangeEntry, error)
}
