package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-exams/internal/apperrors"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/httpx"
)

// StartAttemptHandler creates or resumes the caller's attempt. The exam id
// comes from the route, or from {"exam_id": ...} on POST /attempts.
// Responds 201 when a new attempt was created and 200 on resume.
func StartAttemptHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		examID := chi.URLParam(r, "examID")
		if examID == "" {
			var req struct {
				ExamID string `json:"exam_id"`
			}
			if err := httpx.Decode(r, &req); err != nil {
				httpx.Error(w, r, err)
				return
			}
			examID = req.ExamID
		}
		if examID == "" {
			httpx.Error(w, r, apperrors.NewValidation("exam_id required"))
			return
		}
		view, created, err := svc.Start(r.Context(), viewerFrom(r), examID)
		if err != nil {
			httpx.Error(w, r, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		httpx.JSON(w, status, view)
	}
}

// PUT /attempts/{attemptID}  {answers?, flagged?, time_spent?}
func SaveProgressHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p exam.ProgressUpdate
		if err := httpx.Decode(r, &p); err != nil {
			httpx.Error(w, r, err)
			return
		}
		view, err := svc.SaveProgress(r.Context(), viewerFrom(r), chi.URLParam(r, "attemptID"), p)
		if err != nil {
			httpx.Error(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, view)
	}
}

// POST /attempts/{attemptID}/submit  {answers?, time_spent?}; the body may be empty.
func SubmitAttemptHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req exam.SubmitRequest
		if err := httpx.DecodeOptional(r, &req); err != nil {
			httpx.Error(w, r, err)
			return
		}
		view, err := svc.Submit(r.Context(), viewerFrom(r), chi.URLParam(r, "attemptID"), req)
		if err != nil {
			httpx.Error(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, view)
	}
}

// POST /attempts/{attemptID}/abandon
func AbandonAttemptHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.Abandon(r.Context(), viewerFrom(r), chi.URLParam(r, "attemptID"))
		if err != nil {
			httpx.Error(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, view)
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.GetAttempt(r.Context(), viewerFrom(r), chi.URLParam(r, "attemptID"))
		if err != nil {
			httpx.Error(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, view)
	}
}
