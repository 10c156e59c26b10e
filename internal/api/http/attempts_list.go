package http

import (
	"net/http"
	"strings"

	"github.com/mind-engage/mindengage-exams/internal/apperrors"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/httpx"
)

// GET /attempts?exam_id=&student_id=&status=&limit=&offset=
// Students always get their own attempts regardless of student_id.
func ListAttemptsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		status := exam.Status(strings.TrimSpace(q.Get("status")))
		switch status {
		case "", exam.StatusInProgress, exam.StatusCompleted, exam.StatusAbandoned:
		default:
			httpx.Error(w, r, apperrors.NewValidation("status must be in_progress, completed or abandoned"))
			return
		}
		list, err := svc.ListAttempts(r.Context(), viewerFrom(r), exam.AttemptListOpts{
			ExamID:    strings.TrimSpace(q.Get("exam_id")),
			StudentID: strings.TrimSpace(q.Get("student_id")),
			Status:    status,
			Limit:     clampLimit(parseIntDefault(q.Get("limit"), 50)),
			Offset:    parseIntDefault(q.Get("offset"), 0),
		})
		if err != nil {
			httpx.Error(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, list)
	}
}
