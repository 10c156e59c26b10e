package session

import "github.com/mind-engage/mindengage-exams/internal/exam"

type QuestionState string

const (
	StateUnanswered QuestionState = "unanswered"
	StateAnswered   QuestionState = "answered"
	StateFlagged    QuestionState = "flagged" // shown over answered
)

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.exam.Questions)
}

// Index is the position of the current question.
func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Current returns the question under the cursor.
func (s *Session) Current() (exam.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.exam.Questions) == 0 {
		return exam.Question{}, false
	}
	return s.exam.Questions[s.index], true
}

func (s *Session) Next() int { return s.Jump(s.Index() + 1) }
func (s *Session) Prev() int { return s.Jump(s.Index() - 1) }

// Jump moves to question i, clamped to the valid range.
func (s *Session) Jump(i int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = clamp(i, 0, len(s.exam.Questions)-1)
	return s.index
}

// State is the display state of a question.
func (s *Session) State(questionID string) QuestionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(questionID)
}

// States lists the display state of every question in order.
func (s *Session) States() []QuestionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]QuestionState, len(s.exam.Questions))
	for i, q := range s.exam.Questions {
		out[i] = s.stateLocked(q.ID)
	}
	return out
}

func (s *Session) stateLocked(id string) QuestionState {
	if s.flagged[id] {
		return StateFlagged
	}
	if a, ok := s.answers[id]; ok && !a.Empty() {
		return StateAnswered
	}
	return StateUnanswered
}

// AnswerFor returns the local answer to a question. Cleared answers report
// false.
func (s *Session) AnswerFor(questionID string) (exam.Answer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[questionID]
	if !ok || a.Empty() {
		return exam.Answer{}, false
	}
	return a, true
}

func clamp(i, lo, hi int) int {
	if hi < lo {
		return 0
	}
	if i < lo {
		return lo
	}
	if i > hi {
		return hi
	}
	return i
}
