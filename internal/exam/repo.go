package exam

import "context"

type ListOpts struct {
	Q             string // title substring
	PublishedOnly bool
	Limit         int
	Offset        int
}

type AttemptListOpts struct {
	ExamID    string
	StudentID string
	Status    Status // optional
	Limit     int
	Offset    int
}

// Store persists exams and attempts. Implementations must make
// FindOrCreateAttempt and Finalize atomic with respect to each other.
type Store interface {
	// PutExam upserts the exam and its questions.
	PutExam(ctx context.Context, e Exam) error
	// GetExam returns the full exam, answer keys included.
	GetExam(ctx context.Context, id string) (Exam, error)
	ListExams(ctx context.Context, opts ListOpts) ([]ExamSummary, error)

	// FindOrCreateAttempt returns the in-progress attempt of (a.ExamID,
	// a.StudentID) if there is one, otherwise stores a. created reports
	// which happened.
	FindOrCreateAttempt(ctx context.Context, a Attempt) (out Attempt, created bool, err error)
	// OpenAttempt returns the in-progress attempt of (examID, studentID),
	// ErrAttemptNotFound when there is none.
	OpenAttempt(ctx context.Context, examID, studentID string) (Attempt, error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	// SaveProgress merges answers, replaces flags and raises time spent.
	// ErrAttemptClosed once the attempt is terminal.
	SaveProgress(ctx context.Context, id string, p ProgressUpdate) (Attempt, error)
	// Finalize moves an in-progress attempt to a.Status with a's answers and
	// results. applied is false when the attempt was already terminal, in
	// which case the stored attempt is returned unchanged.
	Finalize(ctx context.Context, a Attempt) (out Attempt, applied bool, err error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)
	// ListOpenAttempts returns in-progress attempts, oldest first.
	ListOpenAttempts(ctx context.Context, limit int) ([]Attempt, error)
}

// mergeProgress applies p to a. An empty answer clears the stored one.
// Time spent never decreases.
func mergeProgress(a *Attempt, p ProgressUpdate) {
	if len(p.Answers) > 0 && a.Answers == nil {
		a.Answers = make(map[string]Answer, len(p.Answers))
	}
	for k, v := range p.Answers {
		if v.Empty() {
			delete(a.Answers, k)
			continue
		}
		a.Answers[k] = v
	}
	if p.Flagged != nil {
		a.Flagged = dedupe(*p.Flagged)
	}
	if p.TimeSpent != nil && *p.TimeSpent > a.TimeSpent {
		a.TimeSpent = *p.TimeSpent
	}
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
