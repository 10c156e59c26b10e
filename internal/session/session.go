// Package session is the exam-taking client's local cache of an attempt.
// It owns question navigation, the countdown, periodic progress flushes and
// the single final submission. The server wins on read: every response
// replaces the cached timer snapshot. Local answers win on flush.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mind-engage/mindengage-exams/internal/apperrors"
	"github.com/mind-engage/mindengage-exams/internal/exam"
)

// Backend is the part of the API the session talks to. *client.Client
// implements it.
type Backend interface {
	SaveProgress(ctx context.Context, id string, p exam.ProgressUpdate) (exam.AttemptView, error)
	Submit(ctx context.Context, id string, req exam.SubmitRequest) (exam.AttemptView, error)
}

var (
	ErrClosed          = apperrors.NewConflict("attempt is no longer in progress")
	ErrSubmitInFlight  = errors.New("submission already in flight")
	errUnknownQuestion = errors.New("unknown question")
)

const DefaultSaveInterval = 15 * time.Second

type Session struct {
	backend Backend
	now     func() time.Time
	log     zerolog.Logger

	// io serializes calls to the backend so a flush never races the submit.
	io sync.Mutex

	mu      sync.Mutex
	exam    exam.Exam
	attempt exam.Attempt
	answers map[string]exam.Answer
	flagged map[string]bool
	index   int

	saveInterval time.Duration
	lastSave     time.Time

	// timer snapshot taken from the last server response
	snapshotAt      time.Time
	serverRemaining *int
	storedSpent     int

	submitting bool
	result     *exam.AttemptView
}

type Option func(*Session)

func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }
func WithLogger(l zerolog.Logger) Option     { return func(s *Session) { s.log = l } }

// WithSaveInterval overrides the flush interval the server suggested.
func WithSaveInterval(d time.Duration) Option {
	return func(s *Session) { s.saveInterval = d }
}

// New builds a session from the view returned when the attempt was started
// or resumed.
func New(view exam.AttemptView, b Backend, opts ...Option) *Session {
	s := &Session{
		backend: b,
		now:     time.Now,
		log:     zerolog.Nop(),
	}
	if view.SaveIntervalSec > 0 {
		s.saveInterval = time.Duration(view.SaveIntervalSec) * time.Second
	}
	for _, o := range opts {
		o(s)
	}
	if s.saveInterval <= 0 {
		s.saveInterval = DefaultSaveInterval
	}

	s.exam = view.Exam
	s.answers = make(map[string]exam.Answer, len(view.Attempt.Answers))
	for k, v := range view.Attempt.Answers {
		s.answers[k] = v
	}
	s.flagged = make(map[string]bool, len(view.Attempt.Flagged))
	for _, id := range view.Attempt.Flagged {
		s.flagged[id] = true
	}
	s.reconcile(view)
	s.lastSave = s.snapshotAt
	return s
}

// reconcile applies a server response. Caller holds mu.
func (s *Session) reconcile(view exam.AttemptView) {
	s.attempt = view.Attempt
	s.snapshotAt = s.now()
	s.serverRemaining = view.RemainingSeconds
	s.storedSpent = view.Attempt.TimeSpent
	if view.Attempt.Status.Terminal() {
		v := view
		s.result = &v
	}
}

func (s *Session) AttemptID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt.ID
}

func (s *Session) Exam() exam.Exam {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exam
}

// Done reports whether the attempt has been finalized.
func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result != nil
}

// Result is the finalized attempt, or false while still in progress.
func (s *Session) Result() (exam.AttemptView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return exam.AttemptView{}, false
	}
	return *s.result, true
}

// Answer records a response locally. It is sent on the next flush or on
// submit. An empty answer stays in the map so the clear reaches the server.
func (s *Session) Answer(questionID string, a exam.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(questionID); err != nil {
		return err
	}
	if a.Empty() {
		a = exam.Answer{List: a.List}
	}
	s.answers[questionID] = a
	return nil
}

// Flag marks or unmarks a question for review.
func (s *Session) Flag(questionID string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(questionID); err != nil {
		return err
	}
	if on {
		s.flagged[questionID] = true
	} else {
		delete(s.flagged, questionID)
	}
	return nil
}

func (s *Session) writable(questionID string) error {
	if s.result != nil || s.submitting {
		return ErrClosed
	}
	if _, ok := s.exam.Question(questionID); !ok {
		return fmt.Errorf("%w: %s", errUnknownQuestion, questionID)
	}
	return nil
}

// Save flushes answers, flags and time spent.
func (s *Session) Save(ctx context.Context) error {
	s.io.Lock()
	defer s.io.Unlock()

	s.mu.Lock()
	if s.result != nil || s.submitting {
		s.mu.Unlock()
		return nil
	}
	spent := s.timeSpentLocked()
	flags := s.flagList()
	p := exam.ProgressUpdate{
		Answers:   s.answerCopy(),
		Flagged:   &flags,
		TimeSpent: &spent,
	}
	id := s.attempt.ID
	s.lastSave = s.now()
	s.mu.Unlock()

	view, err := s.backend.SaveProgress(ctx, id, p)
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			s.log.Info().Str("attempt_id", id).Msg("attempt closed by the server")
		}
		return err
	}
	s.mu.Lock()
	s.reconcile(view)
	s.mu.Unlock()
	return nil
}

// Submit sends the final answers once. Later calls return the stored result.
// While a submission is in flight other callers get ErrSubmitInFlight.
func (s *Session) Submit(ctx context.Context) (exam.AttemptView, error) {
	s.mu.Lock()
	if s.result != nil {
		out := *s.result
		s.mu.Unlock()
		return out, nil
	}
	if s.submitting {
		s.mu.Unlock()
		return exam.AttemptView{}, ErrSubmitInFlight
	}
	s.submitting = true
	spent := s.timeSpentLocked()
	req := exam.SubmitRequest{Answers: s.answerCopy(), TimeSpent: &spent}
	id := s.attempt.ID
	s.mu.Unlock()

	s.io.Lock()
	view, err := s.backend.Submit(ctx, id, req)
	s.io.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	if err != nil {
		return exam.AttemptView{}, err
	}
	s.reconcile(view)
	if s.result == nil {
		// a submit response is always terminal; keep the latch closed anyway
		v := view
		s.result = &v
	}
	return view, nil
}

func (s *Session) answerCopy() map[string]exam.Answer {
	out := make(map[string]exam.Answer, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

func (s *Session) flagList() []string {
	out := make([]string, 0, len(s.flagged))
	for id := range s.flagged {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
