package exam

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/db/dbtest"
)

var (
	admin   = Viewer{ID: "admin", Role: "admin"}
	student = Viewer{ID: "stu-1", Role: "student"}
	other   = Viewer{ID: "stu-2", Role: "student"}
	t0      = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) Record(_ context.Context, typ, _ string, _ any) error {
	r.mu.Lock()
	r.events = append(r.events, typ)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == typ {
			n++
		}
	}
	return n
}

// storeFactories runs a test against every Store implementation.
var storeFactories = map[string]func(t *testing.T) Store{
	"memory": func(*testing.T) Store { return NewInMemoryStore() },
	"sqlite": func(t *testing.T) Store { return NewSQLStore(dbtest.Open(t), db.DriverSQLite) },
}

type harness struct {
	svc   *Service
	store Store
	clock *fakeClock
	sink  *recordingSink
}

func newHarness(t *testing.T, store Store, opts ...ServiceOption) *harness {
	t.Helper()
	h := &harness{store: store, clock: &fakeClock{t: t0}, sink: &recordingSink{}}
	base := []ServiceOption{WithClock(h.clock.Now), WithEvents(h.sink), WithSubmitGrace(10 * time.Second)}
	h.svc = NewService(store, append(base, opts...)...)
	return h
}

func (h *harness) put(t *testing.T, e Exam) Exam {
	t.Helper()
	out, err := h.svc.PutExam(context.Background(), admin, e)
	require.NoError(t, err)
	return out
}

// scenarioExam is a 30 minute exam with one 10 mark MCQ whose answer is B.
func scenarioExam() Exam {
	return Exam{
		ID:           "scenario",
		Title:        "Scenario",
		DurationMin:  30,
		TotalMarks:   10,
		PassingMarks: 6,
		TimeLimit:    true,
		IsActive:     true,
		IsPublished:  true,
		Questions: []Question{{
			ID: "q1", Prompt: "Pick B", Type: TypeMultipleChoice, Marks: 10,
			Options: []Option{
				{ID: "A", Text: "alpha"},
				{ID: "B", Text: "bravo", IsCorrect: true},
				{ID: "C", Text: "charlie"},
				{ID: "D", Text: "delta"},
			},
		}},
	}
}
