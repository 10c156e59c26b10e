package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

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

// fakeBackend answers like the server would for a 30 minute exam.
type fakeBackend struct {
	mu       sync.Mutex
	clock    *fakeClock
	attempt  exam.Attempt
	saves    []exam.ProgressUpdate
	submits  []exam.SubmitRequest
	saveErr  error
	block    chan struct{} // when set, Submit waits on it
	duration int
}

func (b *fakeBackend) view() exam.AttemptView {
	v := exam.AttemptView{Attempt: b.attempt}
	if b.duration > 0 {
		left := b.duration - b.attempt.TimeSpent
		if b.attempt.Status.Terminal() || left < 0 {
			left = 0
		}
		v.RemainingSeconds = &left
	}
	return v
}

func (b *fakeBackend) SaveProgress(_ context.Context, _ string, p exam.ProgressUpdate) (exam.AttemptView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saveErr != nil {
		return exam.AttemptView{}, b.saveErr
	}
	b.saves = append(b.saves, p)
	if p.TimeSpent != nil {
		b.attempt.TimeSpent = *p.TimeSpent
	}
	return b.view(), nil
}

func (b *fakeBackend) Submit(_ context.Context, _ string, req exam.SubmitRequest) (exam.AttemptView, error) {
	if b.block != nil {
		<-b.block
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submits = append(b.submits, req)
	b.attempt.Status = exam.StatusCompleted
	b.attempt.Answers = req.Answers
	score := 0.0
	if a, ok := req.Answers["q1"]; ok && a.String() == "B" {
		score = 10
	}
	b.attempt.Score = &score
	return b.view(), nil
}

func (b *fakeBackend) counts() (saves, submits int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.saves), len(b.submits)
}

func testExam(timed bool) exam.Exam {
	return exam.Exam{
		ID: "e1", Title: "Exam", DurationMin: 30, TimeLimit: timed,
		Questions: []exam.Question{
			{ID: "q1", Type: exam.TypeMultipleChoice, Options: []exam.Option{{ID: "A"}, {ID: "B"}}},
			{ID: "q2", Type: exam.TypeTrueFalse, Options: []exam.Option{{ID: "t"}, {ID: "f"}}},
			{ID: "q3", Type: exam.TypeEssay},
		},
	}
}

func newSession(t *testing.T, timed bool, spent int, remaining *int) (*Session, *fakeBackend, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: t0}
	b := &fakeBackend{clock: clock, attempt: exam.Attempt{
		ID: "att-1", ExamID: "e1", StudentID: "stu-1", Status: exam.StatusInProgress, TimeSpent: spent,
	}}
	if timed {
		b.duration = 1800
	}
	view := exam.AttemptView{
		Attempt:          b.attempt,
		Exam:             testExam(timed),
		RemainingSeconds: remaining,
		SaveIntervalSec:  15,
	}
	return New(view, b, WithClock(clock.Now)), b, clock
}

func intp(v int) *int { return &v }

func TestNavigationClamps(t *testing.T) {
	s, _, _ := newSession(t, false, 0, nil)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 0, s.Prev())
	assert.Equal(t, 1, s.Next())
	assert.Equal(t, 2, s.Next())
	assert.Equal(t, 2, s.Next())
	assert.Equal(t, 0, s.Jump(-5))
	assert.Equal(t, 2, s.Jump(99))
	q, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "q3", q.ID)
}

func TestNavigationOnEmptyExam(t *testing.T) {
	s := New(exam.AttemptView{Attempt: exam.Attempt{ID: "a"}}, &fakeBackend{})
	assert.Equal(t, 0, s.Next())
	_, ok := s.Current()
	assert.False(t, ok)
}

func TestQuestionStates(t *testing.T) {
	s, _, _ := newSession(t, false, 0, nil)
	require.NoError(t, s.Answer("q1", exam.Text("B")))
	require.NoError(t, s.Flag("q2", true))
	require.NoError(t, s.Answer("q3", exam.Text("essay")))
	require.NoError(t, s.Flag("q3", true))

	assert.Equal(t, []QuestionState{StateAnswered, StateFlagged, StateFlagged}, s.States())

	require.NoError(t, s.Flag("q3", false))
	assert.Equal(t, StateAnswered, s.State("q3"))
	require.NoError(t, s.Answer("q1", exam.Text("  ")))
	assert.Equal(t, StateUnanswered, s.State("q1"))

	assert.Error(t, s.Answer("q9", exam.Text("x")))
}

func TestRemainingPrefersServerValue(t *testing.T) {
	s, _, clock := newSession(t, true, 100, intp(600))
	secs, ok := s.Remaining()
	require.True(t, ok)
	assert.Equal(t, 600, secs)

	clock.Advance(10 * time.Second)
	secs, _ = s.Remaining()
	assert.Equal(t, 590, secs)
}

func TestRemainingFallback(t *testing.T) {
	s, _, clock := newSession(t, true, 100, nil)
	secs, ok := s.Remaining()
	require.True(t, ok)
	assert.Equal(t, 1700, secs)

	clock.Advance(2000 * time.Second)
	secs, _ = s.Remaining()
	assert.Equal(t, 0, secs)
}

func TestUntimedNeverCountsDownOrSubmits(t *testing.T) {
	s, b, clock := newSession(t, false, 0, nil)
	_, ok := s.Remaining()
	assert.False(t, ok)

	for i := 0; i < 7200; i++ {
		clock.Advance(time.Second)
		assert.False(t, s.Tick(context.Background()))
	}
	saves, submits := b.counts()
	assert.Equal(t, 0, submits)
	assert.Equal(t, 7200/15, saves)
	assert.Equal(t, 7200, s.TimeSpent())
}

func TestTickFlushesEverySaveInterval(t *testing.T) {
	s, b, clock := newSession(t, true, 0, intp(1800))
	require.NoError(t, s.Answer("q1", exam.Text("A")))
	require.NoError(t, s.Flag("q3", true))

	for i := 0; i < 14; i++ {
		clock.Advance(time.Second)
		s.Tick(context.Background())
	}
	saves, _ := b.counts()
	assert.Equal(t, 0, saves)

	clock.Advance(time.Second)
	s.Tick(context.Background())
	require.Len(t, b.saves, 1)
	p := b.saves[0]
	assert.Equal(t, 15, *p.TimeSpent)
	assert.Equal(t, []string{"q3"}, *p.Flagged)
	assert.Equal(t, "A", p.Answers["q1"].String())

	secs, _ := s.Remaining()
	assert.Equal(t, 1785, secs, "server value replaces the snapshot")
}

func TestFlushFailureIsSwallowed(t *testing.T) {
	s, b, clock := newSession(t, true, 0, intp(1800))
	b.saveErr = errors.New("network down")
	clock.Advance(15 * time.Second)
	assert.False(t, s.Tick(context.Background()))
	assert.Equal(t, 15, s.TimeSpent(), "local time keeps counting")
}

func TestTimerExpiryAutoSubmitsOnce(t *testing.T) {
	s, b, clock := newSession(t, true, 0, intp(1800))
	require.NoError(t, s.Answer("q1", exam.Text("B")))

	clock.Advance(1800 * time.Second)
	assert.True(t, s.Tick(context.Background()))
	assert.True(t, s.Tick(context.Background()))

	_, submits := b.counts()
	assert.Equal(t, 1, submits)
	res, ok := s.Result()
	require.True(t, ok)
	assert.Equal(t, exam.StatusCompleted, res.Attempt.Status)
	assert.Equal(t, 1800, *b.submits[0].TimeSpent)

	secs, _ := s.Remaining()
	assert.Equal(t, 0, secs)
	assert.ErrorIs(t, s.Answer("q1", exam.Text("A")), ErrClosed)
}

func TestExplicitSubmitRacingAutoSubmit(t *testing.T) {
	s, b, clock := newSession(t, true, 0, intp(1800))
	b.block = make(chan struct{})
	clock.Advance(1800 * time.Second)

	var wg sync.WaitGroup
	var explicitErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, explicitErr = s.Submit(context.Background())
	}()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.submitting
	}, time.Second, time.Millisecond)

	assert.False(t, s.Tick(context.Background()), "auto submit waits on the in-flight one")
	_, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmitInFlight)

	close(b.block)
	wg.Wait()
	require.NoError(t, explicitErr)

	_, submits := b.counts()
	assert.Equal(t, 1, submits)
	again, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, exam.StatusCompleted, again.Attempt.Status)
}

func TestSaveAfterSubmitIsNoop(t *testing.T) {
	s, b, _ := newSession(t, false, 0, nil)
	require.NoError(t, s.Answer("q1", exam.Text("B")))
	res, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10.0, *res.Attempt.Score)

	require.NoError(t, s.Save(context.Background()))
	saves, _ := b.counts()
	assert.Equal(t, 0, saves)
}

func TestResumedTerminalAttempt(t *testing.T) {
	score := 0.0
	view := exam.AttemptView{
		Attempt: exam.Attempt{ID: "a", Status: exam.StatusCompleted, Score: &score},
		Exam:    testExam(true),
	}
	s := New(view, &fakeBackend{})
	assert.True(t, s.Done())
	assert.True(t, s.Tick(context.Background()))
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	s, _, _ := newSession(t, false, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Run(ctx, nil), context.Canceled)
}

// serviceBackend runs the session against a real attempt service.
type serviceBackend struct {
	svc *exam.Service
	v   exam.Viewer
}

func (b serviceBackend) SaveProgress(ctx context.Context, id string, p exam.ProgressUpdate) (exam.AttemptView, error) {
	return b.svc.SaveProgress(ctx, b.v, id, p)
}

func (b serviceBackend) Submit(ctx context.Context, id string, req exam.SubmitRequest) (exam.AttemptView, error) {
	return b.svc.Submit(ctx, b.v, id, req)
}

func TestClearedAnswerReachesServer(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: t0}
	svc := exam.NewService(exam.NewInMemoryStore(), exam.WithClock(clock.Now))
	e := testExam(true)
	e.TotalMarks, e.PassingMarks, e.IsActive, e.IsPublished = 10, 5, true, true
	e.Questions = []exam.Question{{
		ID: "q1", Prompt: "Pick B", Type: exam.TypeMultipleChoice, Marks: 10,
		Options: []exam.Option{{ID: "A", Text: "a"}, {ID: "B", Text: "b", IsCorrect: true}},
	}}
	_, err := svc.PutExam(ctx, exam.Viewer{ID: "admin", Role: "admin"}, e)
	require.NoError(t, err)

	stu := exam.Viewer{ID: "stu-1", Role: "student"}
	view, _, err := svc.Start(ctx, stu, e.ID)
	require.NoError(t, err)
	s := New(view, serviceBackend{svc: svc, v: stu}, WithClock(clock.Now))

	require.NoError(t, s.Answer("q1", exam.Text("B")))
	require.NoError(t, s.Save(ctx))
	require.NoError(t, s.Answer("q1", exam.Answer{}))
	_, ok := s.AnswerFor("q1")
	assert.False(t, ok)
	assert.Equal(t, StateUnanswered, s.State("q1"))

	clock.Advance(time.Minute)
	res, err := s.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, *res.Attempt.Score)
	assert.NotContains(t, res.Attempt.Answers, "q1")
}
