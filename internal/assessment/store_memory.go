package assessment

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// memoryStore backs dev mode and tests. Same contract as the SQL store,
// including fetch-existing semantics on concurrent record creation.
type memoryStore struct {
	mu          sync.RWMutex
	contents    map[string]*Content
	enrollments map[string]*Enrollment
	records     map[string]*ContentRecord
	attempts    map[string]*ContentAttempt
	attemptSets map[string]*AttemptQuestionSet
	qAttempts   map[string]*QuestionAttempt
	responses   map[string]*QuestionResponse
	changes     []ChangeEntry
}

func NewInMemoryStore() Store {
	return &memoryStore{
		contents:    map[string]*Content{},
		enrollments: map[string]*Enrollment{},
		records:     map[string]*ContentRecord{},
		attempts:    map[string]*ContentAttempt{},
		attemptSets: map[string]*AttemptQuestionSet{},
		qAttempts:   map[string]*QuestionAttempt{},
		responses:   map[string]*QuestionResponse{},
	}
}

func (m *memoryStore) GetContent(_ context.Context, id string) (*Content, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.contents[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *memoryStore) PutContent(_ context.Context, c *Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.contents[c.ID] = &cp
	return nil
}

func (m *memoryStore) GetEnrollment(_ context.Context, courseID, userID string) (*Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.enrollments {
		if e.CourseID == courseID && e.UserID == userID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) PutEnrollment(_ context.Context, e *Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.enrollments[e.ID] = &cp
	return nil
}

func (m *memoryStore) GetOrCreateRecord(_ context.Context, contentID, enrollmentID string) (*ContentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ContentID == contentID && r.EnrollmentID == enrollmentID {
			cp := *r
			return &cp, nil
		}
	}
	rec := &ContentRecord{ID: uuid.NewString(), ContentID: contentID, EnrollmentID: enrollmentID}
	m.records[rec.ID] = rec
	cp := *rec
	return &cp, nil
}

func (m *memoryStore) GetRecord(_ context.Context, id string) (*ContentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.records[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (m *memoryStore) SaveRecord(_ context.Context, rec *ContentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *memoryStore) attemptsLocked(recordID string) []*ContentAttempt {
	var out []*ContentAttempt
	for _, a := range m.attempts {
		if a.RecordID == recordID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (m *memoryStore) LatestAttempt(_ context.Context, recordID string) (*ContentAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	atts := m.attemptsLocked(recordID)
	if len(atts) == 0 {
		return nil, nil
	}
	// attempt_began orders started attempts; unbegun ones sort by number.
	latest := atts[0]
	for _, a := range atts[1:] {
		if began(*a).After(began(*latest)) || (began(*a).Equal(began(*latest)) && a.Number > latest.Number) {
			latest = a
		}
	}
	cp := *latest
	return &cp, nil
}

func (m *memoryStore) AttemptsForRecord(_ context.Context, recordID string) ([]ContentAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ContentAttempt
	for _, a := range m.attemptsLocked(recordID) {
		out = append(out, *a)
	}
	return out, nil
}

func (m *memoryStore) AttemptCount(_ context.Context, recordID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.attemptsLocked(recordID)), nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (*ContentAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.attempts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (m *memoryStore) SaveAttempt(_ context.Context, att *ContentAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *att
	m.attempts[att.ID] = &cp
	return nil
}

func (m *memoryStore) CreateAttempt(_ context.Context, att *ContentAttempt, sets []AttemptQuestionSet, qas []QuestionAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.attempts {
		if existing.RecordID == att.RecordID && existing.Number == att.Number {
			return ErrConflict
		}
	}
	cp := *att
	m.attempts[att.ID] = &cp
	for _, s := range sets {
		sc := s
		m.attemptSets[s.ID] = &sc
	}
	for _, qa := range qas {
		qc := qa
		m.qAttempts[qa.ID] = &qc
	}
	return nil
}

func (m *memoryStore) AttemptQuestionSets(_ context.Context, attemptID string) ([]AttemptQuestionSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []AttemptQuestionSet
	for _, s := range m.attemptSets {
		if s.AttemptID == attemptID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionNumber < out[j].QuestionNumber })
	return out, nil
}

func (m *memoryStore) GetAttemptQuestionSet(_ context.Context, id string) (*AttemptQuestionSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.attemptSets[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (m *memoryStore) SaveAttemptQuestionSet(_ context.Context, aqs *AttemptQuestionSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *aqs
	m.attemptSets[aqs.ID] = &cp
	return nil
}

func (m *memoryStore) LatestQuestionAttempts(_ context.Context, attemptID string) ([]QuestionAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	latest := map[int]QuestionAttempt{}
	for _, qa := range m.qAttempts {
		if qa.AttemptID != attemptID {
			continue
		}
		cur, ok := latest[qa.QuestionSetNumber]
		if !ok || qa.Created.After(cur.Created) {
			latest[qa.QuestionSetNumber] = *qa
		}
	}
	out := make([]QuestionAttempt, 0, len(latest))
	for _, qa := range latest {
		out = append(out, qa)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionSetNumber < out[j].QuestionSetNumber })
	return out, nil
}

func (m *memoryStore) QuestionAttemptsForSet(_ context.Context, attemptQuestionSetID string) ([]QuestionAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []QuestionAttempt
	for _, qa := range m.qAttempts {
		if qa.AttemptQuestionSetID == attemptQuestionSetID {
			out = append(out, *qa)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out, nil
}

func (m *memoryStore) QuestionAttemptsByID(_ context.Context, ids []string) ([]QuestionAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []QuestionAttempt
	for _, id := range ids {
		if qa, ok := m.qAttempts[id]; ok {
			out = append(out, *qa)
		}
	}
	return out, nil
}

func (m *memoryStore) GetQuestionAttempt(_ context.Context, id string) (*QuestionAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if qa, ok := m.qAttempts[id]; ok {
		cp := *qa
		return &cp, nil
	}
	return nil, nil
}

func (m *memoryStore) SaveQuestionAttempt(_ context.Context, qa *QuestionAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *qa
	m.qAttempts[qa.ID] = &cp
	return nil
}

func (m *memoryStore) InsertResponse(_ context.Context, resp *QuestionResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *resp
	m.responses[resp.ID] = &cp
	return nil
}

func (m *memoryStore) ResponsesForQuestionAttempt(_ context.Context, questionAttemptID string) ([]QuestionResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []QuestionResponse
	for _, r := range m.responses {
		if r.QuestionAttemptID == questionAttemptID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Submitted.Before(out[j].Submitted) })
	return out, nil
}

func (m *memoryStore) AppendChange(_ context.Context, entry *ChangeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, *entry)
	return nil
}

func (m *memoryStore) ChangesForRef(_ context.Context, level, refID string) ([]ChangeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ChangeEntry
	for _, e := range m.changes {
		if e.Level == level && e.RefID == refID {
			out = append(out, e)
		}
	}
	return out, nil
}
