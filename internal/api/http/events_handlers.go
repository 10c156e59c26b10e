package http

import (
	"context"
	"net/http"

	"github.com/mind-engage/mindengage-exams/internal/httpx"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
)

type EventFeed interface {
	Since(ctx context.Context, after int64, limit int) ([]syncx.Event, error)
}

// GET /events?after=&limit=  replication feed of attempt transitions.
func ListEventsHandler(feed EventFeed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		after := int64(parseIntDefault(q.Get("after"), 0))
		list, err := feed.Since(r.Context(), after, clampLimit(parseIntDefault(q.Get("limit"), 100)))
		if err != nil {
			httpx.Error(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, list)
	}
}
