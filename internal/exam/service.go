package exam

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/remeh/sizedwaitgroup"
	"github.com/rs/zerolog"

	"github.com/mind-engage/mindengage-exams/internal/apperrors"
	"github.com/mind-engage/mindengage-exams/internal/grading"
)

// Event types recorded for attempt transitions.
const (
	EventExamSaved        = "exam.saved"
	EventAttemptStarted   = "attempt.started"
	EventAttemptResumed   = "attempt.resumed"
	EventAttemptSubmitted = "attempt.submitted"
	EventAttemptExpired   = "attempt.expired"
	EventAttemptAbandoned = "attempt.abandoned"
)

// EventSink receives attempt lifecycle events.
type EventSink interface {
	Record(ctx context.Context, typ, key string, data any) error
}

// Service implements the attempt lifecycle on top of a Store.
type Service struct {
	store        Store
	grader       grading.Grader
	events       EventSink
	now          func() time.Time
	newID        func() string
	grace        time.Duration
	saveInterval time.Duration
	log          zerolog.Logger
}

type ServiceOption func(*Service)

func WithGrader(g grading.Grader) ServiceOption     { return func(s *Service) { s.grader = g } }
func WithEvents(e EventSink) ServiceOption          { return func(s *Service) { s.events = e } }
func WithClock(now func() time.Time) ServiceOption  { return func(s *Service) { s.now = now } }
func WithIDGenerator(f func() string) ServiceOption { return func(s *Service) { s.newID = f } }
func WithLogger(l zerolog.Logger) ServiceOption     { return func(s *Service) { s.log = l } }

// WithSubmitGrace sets how long after the deadline saves and submits are
// still accepted.
func WithSubmitGrace(d time.Duration) ServiceOption { return func(s *Service) { s.grace = d } }

// WithSaveInterval sets the persistence period advertised to clients.
func WithSaveInterval(d time.Duration) ServiceOption {
	return func(s *Service) { s.saveInterval = d }
}

func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:        store,
		grader:       grading.NewDefaultGrader(),
		now:          time.Now,
		newID:        uuid.NewString,
		grace:        10 * time.Second,
		saveInterval: 15 * time.Second,
		log:          zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Store exposes the underlying store.
func (s *Service) Store() Store { return s.store }

// PutExam validates and stores an exam, returning the stored version.
func (s *Service) PutExam(ctx context.Context, v Viewer, e Exam) (Exam, error) {
	if !v.Privileged() {
		return Exam{}, apperrors.NewForbidden("only instructors can edit exams")
	}
	if err := ValidateExam(e); err != nil {
		return Exam{}, err
	}
	if e.CreatedBy == "" {
		e.CreatedBy = v.ID
	}
	e.UpdatedAt = s.now().UTC().Truncate(time.Second)
	if err := s.store.PutExam(ctx, e); err != nil {
		return Exam{}, fmt.Errorf("put exam %s: %w", e.ID, err)
	}
	s.record(ctx, EventExamSaved, e.ID, map[string]any{"by": v.ID, "questions": len(e.Questions)})
	return s.store.GetExam(ctx, e.ID)
}

// GetExam returns the exam as the viewer may see it. Students get the
// answer-free view of published, active exams only.
func (s *Service) GetExam(ctx context.Context, v Viewer, id string) (Exam, error) {
	e, err := s.visibleExam(ctx, v, id)
	if err != nil {
		return Exam{}, err
	}
	if v.Privileged() {
		return e, nil
	}
	return StudentView(e), nil
}

func (s *Service) ListExams(ctx context.Context, v Viewer, opts ListOpts) ([]ExamSummary, error) {
	if !v.Privileged() {
		opts.PublishedOnly = true
	}
	return s.store.ListExams(ctx, opts)
}

// Start creates the viewer's attempt on examID or resumes the open one.
// created is false on resume. An open attempt is resumed even after the
// exam window closed or the exam was withdrawn; those checks only gate new
// attempts. A resumed attempt that ran out of time is finalized first and
// returned completed.
func (s *Service) Start(ctx context.Context, v Viewer, examID string) (AttemptView, bool, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return AttemptView{}, false, err
	}
	now := s.now().UTC()
	cur, err := s.store.OpenAttempt(ctx, e.ID, v.ID)
	switch {
	case err == nil:
		return s.resume(ctx, e, cur, now)
	case !errors.Is(err, ErrAttemptNotFound):
		return AttemptView{}, false, fmt.Errorf("look up attempt: %w", err)
	}

	if !visibleTo(v, e) {
		return AttemptView{}, false, ErrExamNotFound
	}
	if !e.Open(now) {
		return AttemptView{}, false, ErrExamNotOpen
	}

	fresh := Attempt{
		ID:        s.newID(),
		ExamID:    e.ID,
		StudentID: v.ID,
		Status:    StatusInProgress,
		Answers:   map[string]Answer{},
		Flagged:   []string{},
		StartedAt: now.Truncate(time.Second),
		UpdatedAt: now.Truncate(time.Second),
	}
	a, created, err := s.store.FindOrCreateAttempt(ctx, fresh)
	if err != nil {
		return AttemptView{}, false, fmt.Errorf("start attempt: %w", err)
	}
	if !created {
		// a concurrent start won the slot
		return s.resume(ctx, e, a, now)
	}
	s.log.Info().Str("attempt_id", a.ID).Str("exam_id", e.ID).Str("student_id", v.ID).Msg("attempt started")
	s.record(ctx, EventAttemptStarted, a.ID, map[string]any{"exam_id": e.ID, "student_id": v.ID})
	return s.view(e, a, false), true, nil
}

func (s *Service) resume(ctx context.Context, e Exam, a Attempt, now time.Time) (AttemptView, bool, error) {
	s.record(ctx, EventAttemptResumed, a.ID, map[string]any{"exam_id": e.ID, "student_id": a.StudentID})
	if Overdue(e, a, now, s.grace) {
		var err error
		if a, err = s.finalize(ctx, e, a, EndTimeExpired); err != nil {
			return AttemptView{}, false, err
		}
	}
	return s.view(e, a, true), false, nil
}

// GetAttempt returns the attempt view. Overdue attempts are expired on read.
func (s *Service) GetAttempt(ctx context.Context, v Viewer, id string) (AttemptView, error) {
	a, e, err := s.load(ctx, id)
	if err != nil {
		return AttemptView{}, err
	}
	if a.StudentID != v.ID && !v.Privileged() {
		return AttemptView{}, ErrNotOwner
	}
	if a.Status == StatusInProgress && Overdue(e, a, s.now(), s.grace) {
		if a, err = s.finalize(ctx, e, a, EndTimeExpired); err != nil {
			return AttemptView{}, err
		}
	}
	return s.view(e, a, false), nil
}

// SaveProgress stores answers, flags and time spent without grading.
func (s *Service) SaveProgress(ctx context.Context, v Viewer, id string, p ProgressUpdate) (AttemptView, error) {
	a, e, err := s.load(ctx, id)
	if err != nil {
		return AttemptView{}, err
	}
	if a.StudentID != v.ID {
		return AttemptView{}, ErrNotOwner
	}
	if a.Status != StatusInProgress {
		return AttemptView{}, ErrAttemptClosed
	}
	now := s.now()
	if Overdue(e, a, now, s.grace) {
		if _, err := s.finalize(ctx, e, a, EndTimeExpired); err != nil {
			return AttemptView{}, err
		}
		return AttemptView{}, ErrAttemptClosed
	}
	if err := checkQuestionIDs(e, p.Answers, p.Flagged); err != nil {
		return AttemptView{}, err
	}
	if p.TimeSpent != nil {
		ts := clampTimeSpent(e, a, *p.TimeSpent, now, s.grace)
		p.TimeSpent = &ts
	}
	p.At = now.UTC().Truncate(time.Second)

	a, err = s.store.SaveProgress(ctx, id, p)
	if err != nil {
		return AttemptView{}, err
	}
	return s.view(e, a, false), nil
}

// Submit finalizes the attempt and scores it. Submitting a terminal attempt
// returns the stored result unchanged. Answers that arrive after the
// deadline plus grace are discarded and the stored ones are graded.
func (s *Service) Submit(ctx context.Context, v Viewer, id string, req SubmitRequest) (AttemptView, error) {
	a, e, err := s.load(ctx, id)
	if err != nil {
		return AttemptView{}, err
	}
	if a.StudentID != v.ID {
		return AttemptView{}, ErrNotOwner
	}
	if a.Status.Terminal() {
		return s.view(e, a, false), nil
	}

	now := s.now()
	reason := EndSubmitted
	if Overdue(e, a, now, s.grace) {
		reason = EndTimeExpired
		if len(req.Answers) > 0 {
			s.log.Warn().Str("attempt_id", a.ID).Int("answers", len(req.Answers)).Msg("late answers discarded")
		}
	} else {
		if err := checkQuestionIDs(e, req.Answers, nil); err != nil {
			return AttemptView{}, err
		}
		mergeProgress(&a, ProgressUpdate{Answers: req.Answers})
		if req.TimeSpent != nil {
			a.TimeSpent = clampTimeSpent(e, a, *req.TimeSpent, now, s.grace)
		}
	}

	a, err = s.finalize(ctx, e, a, reason)
	if err != nil {
		return AttemptView{}, err
	}
	return s.view(e, a, false), nil
}

// Abandon ends an in-progress attempt without scoring it.
func (s *Service) Abandon(ctx context.Context, v Viewer, id string) (AttemptView, error) {
	a, e, err := s.load(ctx, id)
	if err != nil {
		return AttemptView{}, err
	}
	if a.StudentID != v.ID {
		return AttemptView{}, ErrNotOwner
	}
	if a.Status.Terminal() {
		return AttemptView{}, ErrAttemptClosed
	}
	a, err = s.finalize(ctx, e, a, EndAbandoned)
	if err != nil {
		return AttemptView{}, err
	}
	return s.view(e, a, false), nil
}

// ListAttempts lists attempts. Students only ever see their own.
func (s *Service) ListAttempts(ctx context.Context, v Viewer, opts AttemptListOpts) ([]Attempt, error) {
	if !v.Privileged() {
		opts.StudentID = v.ID
	}
	return s.store.ListAttempts(ctx, opts)
}

// ExpireOverdue finalizes up to batch in-progress attempts whose deadline
// plus grace has passed, using at most parallel workers. It returns how many
// attempts it expired.
func (s *Service) ExpireOverdue(ctx context.Context, batch, parallel int) (int, error) {
	open, err := s.store.ListOpenAttempts(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("list open attempts: %w", err)
	}
	if parallel < 1 {
		parallel = 1
	}
	now := s.now()
	exams := map[string]Exam{}
	var due []Attempt
	for _, a := range open {
		e, ok := exams[a.ExamID]
		if !ok {
			if e, err = s.store.GetExam(ctx, a.ExamID); err != nil {
				s.log.Warn().Err(err).Str("exam_id", a.ExamID).Msg("sweeper: load exam")
				continue
			}
			exams[a.ExamID] = e
		}
		if Overdue(e, a, now, s.grace) {
			due = append(due, a)
		}
	}

	var expired atomic.Int64
	swg := sizedwaitgroup.New(parallel)
	for _, a := range due {
		if ctx.Err() != nil {
			break
		}
		swg.Add()
		go func(a Attempt) {
			defer swg.Done()
			_, applied, err := s.finalizeCAS(ctx, exams[a.ExamID], a, EndTimeExpired)
			if err != nil {
				s.log.Error().Err(err).Str("attempt_id", a.ID).Msg("sweeper: expire attempt")
				return
			}
			if applied {
				expired.Add(1)
			}
		}(a)
	}
	swg.Wait()
	return int(expired.Load()), ctx.Err()
}

func (s *Service) visibleExam(ctx context.Context, v Viewer, id string) (Exam, error) {
	e, err := s.store.GetExam(ctx, id)
	if err != nil {
		return Exam{}, err
	}
	if !visibleTo(v, e) {
		return Exam{}, ErrExamNotFound
	}
	return e, nil
}

func visibleTo(v Viewer, e Exam) bool {
	return v.Privileged() || (e.IsPublished && e.IsActive)
}

func (s *Service) load(ctx context.Context, id string) (Attempt, Exam, error) {
	a, err := s.store.GetAttempt(ctx, id)
	if err != nil {
		return Attempt{}, Exam{}, err
	}
	e, err := s.store.GetExam(ctx, a.ExamID)
	if err != nil {
		return Attempt{}, Exam{}, fmt.Errorf("exam of attempt %s: %w", id, err)
	}
	return a, e, nil
}

// finalize moves a to its terminal state. When another caller finalized it
// first, the stored result is returned instead.
func (s *Service) finalize(ctx context.Context, e Exam, a Attempt, reason string) (Attempt, error) {
	out, _, err := s.finalizeCAS(ctx, e, a, reason)
	return out, err
}

func (s *Service) finalizeCAS(ctx context.Context, e Exam, a Attempt, reason string) (Attempt, bool, error) {
	now := s.now().UTC().Truncate(time.Second)
	a.CompletedAt = &now
	a.UpdatedAt = now
	a.EndReason = reason

	if reason == EndAbandoned {
		a.Status = StatusAbandoned
	} else {
		a.Status = StatusCompleted
		if reason == EndTimeExpired && e.Timed() {
			if total := int(e.Duration() / time.Second); a.TimeSpent < total {
				a.TimeSpent = total
			}
		}
		out := grading.Evaluate(ctx, s.grader, gradingItems(e, a), float64(e.TotalMarks), float64(e.PassingMarks))
		a.Score = &out.Score
		a.MaxScore = &out.MaxScore
		a.Percentage = &out.Percentage
		a.Passed = &out.Passed
		a.NeedsManual = out.NeedsManual
		a.Grades = out.Items
	}

	stored, applied, err := s.store.Finalize(ctx, a)
	if err != nil {
		return Attempt{}, false, fmt.Errorf("finalize attempt %s: %w", a.ID, err)
	}
	if !applied {
		s.log.Debug().Str("attempt_id", a.ID).Str("status", string(stored.Status)).Msg("attempt already finalized")
		return stored, false, nil
	}

	ev := EventAttemptSubmitted
	switch reason {
	case EndTimeExpired:
		ev = EventAttemptExpired
	case EndAbandoned:
		ev = EventAttemptAbandoned
	}
	data := map[string]any{"exam_id": stored.ExamID, "student_id": stored.StudentID}
	if stored.Score != nil {
		data["score"] = *stored.Score
	}
	s.record(ctx, ev, stored.ID, data)
	s.log.Info().Str("attempt_id", stored.ID).Str("reason", reason).Msg("attempt finalized")
	return stored, true, nil
}

func (s *Service) view(e Exam, a Attempt, resumed bool) AttemptView {
	return AttemptView{
		Attempt:          a,
		Exam:             StudentView(OrderFor(e, a.ID)),
		RemainingSeconds: RemainingSeconds(e, a, s.now()),
		SaveIntervalSec:  int(s.saveInterval / time.Second),
		Resumed:          resumed,
	}
}

func (s *Service) record(ctx context.Context, typ, key string, data any) {
	if s.events == nil {
		return
	}
	if err := s.events.Record(ctx, typ, key, data); err != nil {
		s.log.Warn().Err(err).Str("event", typ).Str("key", key).Msg("record event")
	}
}

func gradingItems(e Exam, a Attempt) []grading.Item {
	items := make([]grading.Item, 0, len(e.Questions))
	for _, q := range e.Questions {
		gq := grading.Q{Type: string(q.Type), Points: float64(q.Marks)}
		if q.Type.HasOptions() {
			for _, o := range q.Options {
				if o.IsCorrect {
					gq.AnswerKey = append(gq.AnswerKey, o.ID)
					gq.Aliases = append(gq.Aliases, o.Text)
				}
			}
		} else if q.CorrectAnswer != "" {
			gq.AnswerKey = []string{q.CorrectAnswer}
		}
		it := grading.Item{QuestionID: q.ID, Q: gq}
		if ans, ok := a.Answers[q.ID]; ok && !ans.Empty() {
			it.Values = ans.Values
		}
		items = append(items, it)
	}
	return items
}

var errUnknownQuestion = errors.New("unknown question")

func checkQuestionIDs(e Exam, answers map[string]Answer, flagged *[]string) error {
	details := map[string]string{}
	for id := range answers {
		if _, ok := e.Question(id); !ok {
			details["answers."+id] = errUnknownQuestion.Error()
		}
	}
	if flagged != nil {
		for _, id := range *flagged {
			if _, ok := e.Question(id); !ok {
				details["flagged."+id] = errUnknownQuestion.Error()
			}
		}
	}
	if len(details) == 0 {
		return nil
	}
	return apperrors.NewValidation("answers reference questions outside the exam").WithDetails(details)
}
