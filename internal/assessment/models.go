package assessment

import "time"

// Role is the actor class a request runs as. The empty role is an anonymous
// or external visitor with no enrollment in the course.
type Role string

const (
	RoleNone       Role = ""
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleDesigner   Role = "designer"
)

// IsAdministrator reports whether the role may preview arbitrary attempts and
// seeds without being tracked.
func (r Role) IsAdministrator() bool {
	return r == RoleInstructor || r == RoleDesigner
}

// Availability is the state of a content's attempt window for one record.
type Availability string

const (
	NotYetAvailable Availability = "not_yet_available"
	Available       Availability = "available"
	PastDue         Availability = "past_due"
)

// AggregationMode selects how multiple credits/scores collapse into one.
type AggregationMode string

const (
	AggregateMax  AggregationMode = "Max"
	AggregateAvg  AggregationMode = "Avg"
	AggregateLast AggregationMode = "Las"
)

// ContentObject is the sealed set of things a course thread entry can point
// at. The attempt engine only acts on the Assessment variant; everything else
// scores as nil.
type ContentObject interface {
	ContentType() string
	GetTitle() string
}

type Question struct {
	ID     string  `json:"id"`
	Code   string  `json:"code,omitempty"`
	Points float64 `json:"points,omitempty"`
}

// QuestionSet is one slot of an assessment, filled at attempt time by one of
// its candidate questions.
type QuestionSet struct {
	Number    int        `json:"number"`
	Weight    float64    `json:"weight"`
	Group     string     `json:"group,omitempty"`
	Questions []Question `json:"questions"`
}

type Assessment struct {
	ID                     string        `json:"id"`
	Code                   string        `json:"code"`
	Title                  string        `json:"title,omitempty"`
	FixedOrder             bool          `json:"fixed_order,omitempty"`
	SingleVersion          bool          `json:"single_version,omitempty"`
	ResampleQuestionSets   bool          `json:"resample_question_sets,omitempty"`
	IndividualizeByStudent bool          `json:"individualize_by_student,omitempty"`
	AccessOnlyOpenAttempts bool          `json:"access_only_open_attempts,omitempty"`
	QuestionSets           []QuestionSet `json:"question_sets"`
}

func (a *Assessment) ContentType() string { return "assessment" }
func (a *Assessment) GetTitle() string    { return a.Title }

// TotalWeight sums the raw question-set weights.
func (a *Assessment) TotalWeight() float64 {
	var total float64
	for _, qs := range a.QuestionSets {
		total += qs.Weight
	}
	return total
}

// QuestionSetByNumber returns the definition for a question-set number, or nil.
func (a *Assessment) QuestionSetByNumber(n int) *QuestionSet {
	for i := range a.QuestionSets {
		if a.QuestionSets[i].Number == n {
			return &a.QuestionSets[i]
		}
	}
	return nil
}

// Page is a non-gradable content object. It exists so that "not an
// assessment" is a representable state, not a nil dereference.
type Page struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

func (p *Page) ContentType() string { return "page" }
func (p *Page) GetTitle() string    { return p.Title }

// Content is one entry in a course thread. A nil Content means the assessment
// is being viewed outside any course context.
type Content struct {
	ID                      string          `json:"id"`
	CourseID                string          `json:"course_id"`
	Object                  ContentObject   `json:"-"`
	Points                  float64         `json:"points"`
	AttemptAggregation      AggregationMode `json:"attempt_aggregation"`
	RecordScores            bool            `json:"record_scores"`
	AvailableBeforeAssigned bool            `json:"available_before_assigned,omitempty"`
	Assigned                *time.Time      `json:"assigned,omitempty"`
	Due                     *time.Time      `json:"due,omitempty"`
	TimeLimit               time.Duration   `json:"time_limit,omitempty"`
}

// AssessmentObject returns the content's assessment, or nil for non-gradable
// content types.
func (c *Content) AssessmentObject() *Assessment {
	if c == nil {
		return nil
	}
	a, _ := c.Object.(*Assessment)
	return a
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Enrollment ties a user to a course. Withdrawn students keep their records
// and attempt history; the flag rides alongside the student role.
type Enrollment struct {
	ID        string `json:"id"`
	CourseID  string `json:"course_id"`
	UserID    string `json:"user_id"`
	Role      Role   `json:"role"`
	Withdrawn bool   `json:"withdrawn,omitempty"`
}

// ContentRecord is the per-student score holder for one content. An empty
// EnrollmentID marks the coursewide record used for paper/offline exams.
type ContentRecord struct {
	ID           string `json:"id"`
	ContentID    string `json:"content_id"`
	EnrollmentID string `json:"enrollment_id,omitempty"`

	Score         *float64 `json:"score,omitempty"`
	ScoreOverride *float64 `json:"score_override,omitempty"`

	AssignedAdjustment   *time.Time `json:"assigned_adjustment,omitempty"`
	InitialDueAdjustment *time.Time `json:"initial_due_adjustment,omitempty"`
	FinalDueAdjustment   *time.Time `json:"final_due_adjustment,omitempty"`
}

// Coursewide reports whether the record is the shared enrollment-less record.
func (r *ContentRecord) Coursewide() bool { return r.EnrollmentID == "" }

// ContentAttempt is one generated version of an assessment for a record. The
// seed fixes the question-set ordering and question choices for its lifetime.
type ContentAttempt struct {
	ID            string     `json:"id"`
	RecordID      string     `json:"record_id"`
	Number        int        `json:"number"`
	AttemptBegan  *time.Time `json:"attempt_began,omitempty"`
	Seed          string     `json:"seed"`
	Version       string     `json:"version"`
	Valid         bool       `json:"valid"`
	Closed        bool       `json:"closed,omitempty"`
	Score         *float64   `json:"score,omitempty"`
	ScoreOverride *float64   `json:"score_override,omitempty"`
	BaseAttemptID string     `json:"base_attempt_id,omitempty"`
}

// AttemptQuestionSet binds a content attempt to one question-set slot and its
// position in the attempt's ordering.
type AttemptQuestionSet struct {
	ID                string   `json:"id"`
	AttemptID         string   `json:"attempt_id"`
	QuestionSetNumber int      `json:"question_set"`
	QuestionNumber    int      `json:"question_number"` // 1-based position
	CreditOverride    *float64 `json:"credit_override,omitempty"`
}

// QuestionAttempt is the chosen question plus its render seed for one
// question-set slot. Several may accumulate over regenerations; the newest
// one is current.
type QuestionAttempt struct {
	ID                   string     `json:"id"`
	AttemptQuestionSetID string     `json:"attempt_question_set_id"`
	AttemptID            string     `json:"attempt_id"`
	QuestionSetNumber    int        `json:"question_set"`
	QuestionID           string     `json:"question_id"`
	Seed                 string     `json:"seed"`
	Valid                bool       `json:"valid"`
	Credit               *float64   `json:"credit,omitempty"`
	SolutionViewed       *time.Time `json:"solution_viewed,omitempty"`
	Created              time.Time  `json:"created"`
}

// QuestionResponse is one submitted answer. Rows are append-only; invalid
// responses stay for audit but never count toward credit.
type QuestionResponse struct {
	ID                string    `json:"id"`
	QuestionAttemptID string    `json:"question_attempt_id"`
	Payload           string    `json:"payload"`
	Credit            float64   `json:"credit"`
	Valid             bool      `json:"valid"`
	Submitted         time.Time `json:"submitted"`
}

// ChangeAction tags an audit entry with what kind of save produced it.
type ChangeAction string

const (
	ActionCreate      ChangeAction = "create"
	ActionChangeScore ChangeAction = "change score"
	ActionChangeDate  ChangeAction = "change date"
	ActionChange      ChangeAction = "change"
)

// ChangeEntry records the before/after state of an override save.
type ChangeEntry struct {
	ID       string       `json:"id"`
	Level    string       `json:"level"` // record|attempt|question_set
	RefID    string       `json:"ref_id"`
	Action   ChangeAction `json:"action"`
	OldState string       `json:"old_state"`
	NewState string       `json:"new_state"`
	At       time.Time    `json:"at"`
}
