package exam

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/apperrors"
)

func validExam() Exam {
	return Exam{
		ID:           "bio-101",
		Title:        "Biology basics",
		DurationMin:  30,
		TotalMarks:   10,
		PassingMarks: 6,
		TimeLimit:    true,
		IsActive:     true,
		IsPublished:  true,
		Questions: []Question{
			{
				ID: "q1", Prompt: "Pick B", Type: TypeMultipleChoice, Marks: 5,
				Options: []Option{{ID: "A", Text: "a"}, {ID: "B", Text: "b", IsCorrect: true}},
			},
			{
				ID: "q2", Prompt: "Sky is blue", Type: TypeTrueFalse, Marks: 3,
				Options: []Option{{ID: "t", Text: "True", IsCorrect: true}, {ID: "f", Text: "False"}},
			},
			{ID: "q3", Prompt: "Explain", Type: TypeEssay, Marks: 2},
		},
	}
}

func TestValidateExamOK(t *testing.T) {
	require.NoError(t, ValidateExam(validExam()))
}

func TestValidateExamRules(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Exam)
		field  string
	}{
		"missing title": {func(e *Exam) { e.Title = "" }, "title"},
		"bad type":      {func(e *Exam) { e.Questions[2].Type = "matching" }, "questions[2].type"},
		"one option": {func(e *Exam) {
			e.Questions[0].Options = e.Questions[0].Options[1:]
		}, "questions[0].options"},
		"no correct option": {func(e *Exam) {
			e.Questions[0].Options[1].IsCorrect = false
		}, "questions[0].options"},
		"true/false with three options": {func(e *Exam) {
			e.Questions[1].Options = append(e.Questions[1].Options, Option{ID: "m", Text: "Maybe"})
		}, "questions[1].options"},
		"duplicate option ids": {func(e *Exam) {
			e.Questions[0].Options[0].ID = "B"
		}, "questions[0].options"},
		"duplicate question ids": {func(e *Exam) { e.Questions[2].ID = "q1" }, "questions"},
		"passing above total":    {func(e *Exam) { e.PassingMarks = 11 }, "passing_marks"},
		"timed without duration": {func(e *Exam) { e.DurationMin = 0 }, "duration_min"},
		"negative marks":         {func(e *Exam) { e.Questions[0].Marks = -1 }, "questions[0].marks"},
		"window reversed": {func(e *Exam) {
			now := time.Now()
			before := now.Add(-time.Hour)
			e.StartsAt, e.EndsAt = &now, &before
		}, "ends_at"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e := validExam()
			tc.mutate(&e)
			err := ValidateExam(e)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrValidationFailed))
			assert.Contains(t, apperrors.Details(err), tc.field)
		})
	}
}

func TestExamOpen(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := validExam()
	assert.True(t, e.Open(now))

	e.IsPublished = false
	assert.False(t, e.Open(now))

	e = validExam()
	later := now.Add(time.Hour)
	e.StartsAt = &later
	assert.False(t, e.Open(now))

	e = validExam()
	e.EndsAt = &now
	assert.False(t, e.Open(now), "window end is exclusive")
}

func TestMaxMarksFallsBackToQuestionSum(t *testing.T) {
	e := validExam()
	e.TotalMarks = 0
	assert.Equal(t, 10, e.MaxMarks())
}
