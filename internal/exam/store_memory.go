package exam

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mind-engage/mindengage-exams/internal/grading"
)

type memoryStore struct {
	mu       sync.RWMutex
	exams    map[string]Exam
	attempts map[string]Attempt
}

// NewInMemoryStore returns a Store kept in process memory.
func NewInMemoryStore() Store {
	return &memoryStore{
		exams:    map[string]Exam{},
		attempts: map[string]Attempt{},
	}
}

func (m *memoryStore) PutExam(_ context.Context, e Exam) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.exams[e.ID]; ok && !old.CreatedAt.IsZero() {
		e.CreatedAt = old.CreatedAt
	}
	e.Questions = append([]Question(nil), e.Questions...)
	e.QuestionIDs = questionIDs(e.Questions)
	m.exams[e.ID] = e
	return nil
}

func (m *memoryStore) GetExam(_ context.Context, id string) (Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.exams[id]
	if !ok {
		return Exam{}, ErrExamNotFound
	}
	e.Questions = append([]Question(nil), e.Questions...)
	return e, nil
}

func (m *memoryStore) ListExams(_ context.Context, opts ListOpts) ([]ExamSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(opts.Q))
	var out []ExamSummary
	for _, e := range m.exams {
		if opts.PublishedOnly && (!e.IsPublished || !e.IsActive) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(e.Title), q) {
			continue
		}
		out = append(out, e.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt > out[j].UpdatedAt
		}
		return out[i].ID < out[j].ID
	})
	return page(out, opts.Offset, opts.Limit), nil
}

func (m *memoryStore) FindOrCreateAttempt(_ context.Context, a Attempt) (Attempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[a.ExamID]; !ok {
		return Attempt{}, false, ErrExamNotFound
	}
	for _, cur := range m.attempts {
		if cur.ExamID == a.ExamID && cur.StudentID == a.StudentID && cur.Status == StatusInProgress {
			return cloneAttempt(cur), false, nil
		}
	}
	a.Status = StatusInProgress
	m.attempts[a.ID] = cloneAttempt(a)
	return a, true, nil
}

func (m *memoryStore) OpenAttempt(_ context.Context, examID, studentID string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, cur := range m.attempts {
		if cur.ExamID == examID && cur.StudentID == studentID && cur.Status == StatusInProgress {
			return cloneAttempt(cur), nil
		}
	}
	return Attempt{}, ErrAttemptNotFound
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return cloneAttempt(a), nil
}

func (m *memoryStore) SaveProgress(_ context.Context, id string, p ProgressUpdate) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	if a.Status != StatusInProgress {
		return Attempt{}, ErrAttemptClosed
	}
	a = cloneAttempt(a)
	mergeProgress(&a, p)
	if !p.At.IsZero() {
		a.UpdatedAt = p.At
	}
	m.attempts[id] = a
	return cloneAttempt(a), nil
}

func (m *memoryStore) Finalize(_ context.Context, a Attempt) (Attempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.attempts[a.ID]
	if !ok {
		return Attempt{}, false, ErrAttemptNotFound
	}
	if cur.Status != StatusInProgress {
		return cloneAttempt(cur), false, nil
	}
	a.StartedAt = cur.StartedAt
	m.attempts[a.ID] = cloneAttempt(a)
	return a, true, nil
}

func (m *memoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Attempt
	for _, a := range m.attempts {
		if opts.ExamID != "" && a.ExamID != opts.ExamID {
			continue
		}
		if opts.StudentID != "" && a.StudentID != opts.StudentID {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		out = append(out, cloneAttempt(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, opts.Offset, opts.Limit), nil
}

func (m *memoryStore) ListOpenAttempts(_ context.Context, limit int) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Attempt
	for _, a := range m.attempts {
		if a.Status == StatusInProgress {
			out = append(out, cloneAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return page(out, 0, limit), nil
}

func page[T any](in []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(in) {
		return []T{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

func cloneAttempt(a Attempt) Attempt {
	if a.Answers != nil {
		answers := make(map[string]Answer, len(a.Answers))
		for k, v := range a.Answers {
			v.Values = append([]string(nil), v.Values...)
			answers[k] = v
		}
		a.Answers = answers
	}
	flagged := make([]string, len(a.Flagged))
	copy(flagged, a.Flagged)
	a.Flagged = flagged
	if a.Grades != nil {
		grades := make(map[string]grading.ItemResult, len(a.Grades))
		for k, v := range a.Grades {
			grades[k] = v
		}
		a.Grades = grades
	}
	return a
}
