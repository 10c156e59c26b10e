package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/httpx"
)

// POST /exams  (exam document with inline questions; upsert by id)
func PutExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var e exam.Exam
		if err := httpx.Decode(r, &e); err != nil {
			httpx.Error(w, r, err)
			return
		}
		out, err := svc.PutExam(r.Context(), viewerFrom(r), e)
		if err != nil {
			httpx.Error(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, out)
	}
}

// GET /exams/{examID}
func GetExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := svc.GetExam(r.Context(), viewerFrom(r), chi.URLParam(r, "examID"))
		if err != nil {
			httpx.Error(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, e)
	}
}
