package http

import (
	"net/http"
	"strings"

	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/httpx"
)

// GET /exams?q=&limit=&offset=
func ListExamsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		list, err := svc.ListExams(r.Context(), viewerFrom(r), exam.ListOpts{
			Q:      strings.TrimSpace(q.Get("q")),
			Limit:  clampLimit(parseIntDefault(q.Get("limit"), 50)),
			Offset: parseIntDefault(q.Get("offset"), 0),
		})
		if err != nil {
			httpx.Error(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, list)
	}
}
