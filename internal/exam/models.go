package exam

import (
	"time"

	"github.com/mind-engage/mindengage-exams/internal/grading"
)

type QuestionType string

const (
	TypeMultipleChoice QuestionType = grading.TypeMultipleChoice
	TypeTrueFalse      QuestionType = grading.TypeTrueFalse
	TypeWritten        QuestionType = grading.TypeWritten
	TypeFillBlank      QuestionType = grading.TypeFillBlank
	TypeEssay          QuestionType = grading.TypeEssay
)

// HasOptions reports whether the type is answered by picking options.
func (t QuestionType) HasOptions() bool {
	return t == TypeMultipleChoice || t == TypeTrueFalse
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

type Option struct {
	ID        string `json:"id" yaml:"id" validate:"required"`
	Text      string `json:"text" yaml:"text" validate:"required"`
	IsCorrect bool   `json:"is_correct,omitempty" yaml:"is_correct"`
}

type Question struct {
	ID            string       `json:"id" yaml:"id" validate:"required"`
	Prompt        string       `json:"prompt" yaml:"prompt" validate:"required"`
	Type          QuestionType `json:"type" yaml:"type" validate:"required,oneof=multiple_choice true_false written fill_blank essay"`
	Marks         int          `json:"marks" yaml:"marks" validate:"gte=0"`
	Difficulty    Difficulty   `json:"difficulty,omitempty" yaml:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Options       []Option     `json:"options,omitempty" yaml:"options" validate:"dive"`
	CorrectAnswer string       `json:"correct_answer,omitempty" yaml:"correct_answer"` // reference text for written/essay/fill_blank
	Explanation   string       `json:"explanation,omitempty" yaml:"explanation"`
	Hints         []string     `json:"hints,omitempty" yaml:"hints"`
	Tags          []string     `json:"tags,omitempty" yaml:"tags"`
	Category      string       `json:"category,omitempty" yaml:"category"`
	TimeLimitSec  int          `json:"time_limit_sec,omitempty" yaml:"time_limit_sec" validate:"gte=0"`
}

type Exam struct {
	ID          string `json:"id" yaml:"id" validate:"required"`
	Title       string `json:"title" yaml:"title" validate:"required"`
	Description string `json:"description,omitempty" yaml:"description"`

	// QuestionIDs is the stored order; Questions is filled on load.
	QuestionIDs []string   `json:"question_ids,omitempty" yaml:"question_ids"`
	Questions   []Question `json:"questions" yaml:"questions" validate:"dive"`

	DurationMin  int `json:"duration_min" yaml:"duration_min" validate:"gte=0"`
	TotalMarks   int `json:"total_marks" yaml:"total_marks" validate:"gte=0"`
	PassingMarks int `json:"passing_marks" yaml:"passing_marks" validate:"gte=0"`

	ShuffleQuestions bool `json:"shuffle_questions" yaml:"shuffle_questions"`
	ShuffleOptions   bool `json:"shuffle_options" yaml:"shuffle_options"`
	TimeLimit        bool `json:"time_limit" yaml:"time_limit"` // whether DurationMin is enforced

	StartsAt    *time.Time `json:"starts_at,omitempty" yaml:"starts_at"`
	EndsAt      *time.Time `json:"ends_at,omitempty" yaml:"ends_at"`
	IsActive    bool       `json:"is_active" yaml:"is_active"`
	IsPublished bool       `json:"is_published" yaml:"is_published"`

	CreatedBy string    `json:"created_by,omitempty" yaml:"-"`
	CreatedAt time.Time `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// MaxMarks is TotalMarks, or the sum of question marks when it is unset.
func (e Exam) MaxMarks() int {
	if e.TotalMarks > 0 {
		return e.TotalMarks
	}
	sum := 0
	for _, q := range e.Questions {
		sum += q.Marks
	}
	return sum
}

// Question returns the question with the given id.
func (e Exam) Question(id string) (Question, bool) {
	for _, q := range e.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Open reports whether students may start the exam at t.
func (e Exam) Open(t time.Time) bool {
	if !e.IsPublished || !e.IsActive {
		return false
	}
	if e.StartsAt != nil && t.Before(*e.StartsAt) {
		return false
	}
	if e.EndsAt != nil && !t.Before(*e.EndsAt) {
		return false
	}
	return true
}

type ExamSummary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	QuestionCount int    `json:"question_count"`
	DurationMin   int    `json:"duration_min"`
	TimeLimit     bool   `json:"time_limit"`
	TotalMarks    int    `json:"total_marks"`
	PassingMarks  int    `json:"passing_marks"`
	IsPublished   bool   `json:"is_published"`
	IsActive      bool   `json:"is_active"`
	UpdatedAt     int64  `json:"updated_at"`
}

func (e Exam) Summary() ExamSummary {
	return ExamSummary{
		ID:            e.ID,
		Title:         e.Title,
		Description:   e.Description,
		QuestionCount: len(e.Questions),
		DurationMin:   e.DurationMin,
		TimeLimit:     e.TimeLimit,
		TotalMarks:    e.MaxMarks(),
		PassingMarks:  e.PassingMarks,
		IsPublished:   e.IsPublished,
		IsActive:      e.IsActive,
		UpdatedAt:     e.UpdatedAt.Unix(),
	}
}

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusAbandoned }

const (
	EndSubmitted   = "submitted"
	EndTimeExpired = "time_expired"
	EndAbandoned   = "abandoned"
)

type Attempt struct {
	ID        string            `json:"id"`
	ExamID    string            `json:"exam_id"`
	StudentID string            `json:"student_id"`
	Status    Status            `json:"status"`
	Answers   map[string]Answer `json:"answers"`
	Flagged   []string          `json:"flagged"`
	TimeSpent int               `json:"time_spent"` // seconds

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	EndReason   string     `json:"end_reason,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Populated at completion only.
	Score       *float64                       `json:"score,omitempty"`
	MaxScore    *float64                       `json:"max_score,omitempty"`
	Percentage  *float64                       `json:"percentage,omitempty"`
	Passed      *bool                          `json:"passed,omitempty"`
	NeedsManual bool                           `json:"needs_manual_grading,omitempty"`
	Grades      map[string]grading.ItemResult `json:"grades,omitempty"`
}

// AttemptView is what the exam-taking client works from.
type AttemptView struct {
	Attempt          Attempt `json:"attempt"`
	Exam             Exam    `json:"exam"`
	RemainingSeconds *int    `json:"remaining_seconds,omitempty"` // nil when untimed
	SaveIntervalSec  int     `json:"save_interval_sec"`
	Resumed          bool    `json:"resumed"`
}

// ProgressUpdate is a partial save from the client. Nil fields are untouched.
type ProgressUpdate struct {
	Answers   map[string]Answer `json:"answers,omitempty"`
	Flagged   *[]string         `json:"flagged,omitempty"`
	TimeSpent *int              `json:"time_spent,omitempty"`

	At time.Time `json:"-"` // set by the service
}

// SubmitRequest carries the final answers of an attempt.
type SubmitRequest struct {
	Answers   map[string]Answer `json:"answers,omitempty"`
	TimeSpent *int              `json:"time_spent,omitempty"`
}

// Viewer identifies the caller of a service operation.
type Viewer struct {
	ID   string
	Role string
}

// Privileged viewers may read any attempt and unpublished exams.
func (v Viewer) Privileged() bool { return v.Role == "admin" || v.Role == "instructor" }
