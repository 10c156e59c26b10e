package client

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	api "github.com/mind-engage/mindengage-exams/internal/api/http"
	"github.com/mind-engage/mindengage-exams/internal/apperrors"
	authmw "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/db/dbtest"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/logger"
	"github.com/mind-engage/mindengage-exams/internal/users"
)

func newTestServer(t *testing.T) string {
	t.Helper()
	us := users.NewStore(dbtest.Open(t))
	us.Cost = bcrypt.MinCost
	_, _, err := us.BulkUpsert(context.Background(), []users.Input{
		{ID: "teach-1", Username: "teacher", Role: users.RoleInstructor, Password: "teachpw"},
		{ID: "stu-1", Username: "alice", Role: users.RoleStudent, Password: "alicepw"},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewRouter(api.Deps{
		Service:         exam.NewService(exam.NewInMemoryStore()),
		Auth:            authmw.NewAuthService("client-test", time.Hour),
		Users:           us,
		EnableLocalAuth: true,
		Logger:          logger.Nop(),
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func quiz() exam.Exam {
	return exam.Exam{
		ID: "quiz", Title: "Quiz", DurationMin: 10, TimeLimit: true,
		TotalMarks: 4, PassingMarks: 2, IsActive: true, IsPublished: true,
		Questions: []exam.Question{
			{ID: "q1", Prompt: "2+2", Type: exam.TypeMultipleChoice, Marks: 2, Options: []exam.Option{
				{ID: "a", Text: "3"}, {ID: "b", Text: "4", IsCorrect: true},
			}},
			{ID: "q2", Prompt: "Go is compiled", Type: exam.TypeTrueFalse, Marks: 2, Options: []exam.Option{
				{ID: "t", Text: "True", IsCorrect: true}, {ID: "f", Text: "False"},
			}},
		},
	}
}

func TestClientAttemptFlow(t *testing.T) {
	ctx := context.Background()
	base := newTestServer(t)

	teacher := New(Config{BaseURL: base})
	_, err := teacher.Login(ctx, "teacher", "teachpw")
	require.NoError(t, err)
	_, err = teacher.PutExam(ctx, quiz())
	require.NoError(t, err)

	alice := New(Config{BaseURL: base + "/"})
	res, err := alice.Login(ctx, "alice", "alicepw")
	require.NoError(t, err)
	assert.Equal(t, "stu-1", res.UserID)
	assert.Equal(t, users.RoleStudent, res.Role)

	list, err := alice.ListExams(ctx, "qu", 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].QuestionCount)

	view, created, err := alice.StartAttempt(ctx, "quiz")
	require.NoError(t, err)
	assert.True(t, created)
	again, created, err := alice.StartAttempt(ctx, "quiz")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, view.Attempt.ID, again.Attempt.ID)

	flags := []string{"q2"}
	_, err = alice.SaveProgress(ctx, view.Attempt.ID, exam.ProgressUpdate{
		Answers: map[string]exam.Answer{"q1": exam.Text("b")},
		Flagged: &flags,
	})
	require.NoError(t, err)

	got, err := alice.GetAttempt(ctx, view.Attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"q2"}, got.Attempt.Flagged)

	done, err := alice.Submit(ctx, view.Attempt.ID, exam.SubmitRequest{
		Answers: map[string]exam.Answer{"q2": exam.Text("t")},
	})
	require.NoError(t, err)
	require.NotNil(t, done.Attempt.Score)
	assert.Equal(t, 4.0, *done.Attempt.Score)

	_, err = alice.SaveProgress(ctx, view.Attempt.ID, exam.ProgressUpdate{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "conflict", apiErr.Code)
	assert.Contains(t, apiErr.Message, "no longer in progress")
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	attempts, err := teacher.ListAttempts(ctx, exam.AttemptListOpts{ExamID: "quiz", Status: exam.StatusCompleted})
	require.NoError(t, err)
	assert.Len(t, attempts, 1)
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	base := newTestServer(t)

	c := New(Config{BaseURL: base})
	_, err := c.Login(ctx, "alice", "nope")
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
	assert.Empty(t, c.Token())

	_, err = c.GetExam(ctx, "quiz")
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)

	_, err = c.Login(ctx, "alice", "alicepw")
	require.NoError(t, err)
	_, err = c.GetExam(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrResourceNotFound)
	_, err = c.PutExam(ctx, quiz())
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
}
