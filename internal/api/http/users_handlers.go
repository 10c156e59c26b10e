package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/mind-engage/mindengage-exams/internal/apperrors"
	authmw "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/httpx"
	"github.com/mind-engage/mindengage-exams/internal/users"
)

// UserStore is the account store used by the user endpoints.
type UserStore interface {
	BulkUpsert(ctx context.Context, rows []users.Input) (inserted, updated int, err error)
	List(ctx context.Context, role string) ([]users.User, error)
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	SetRole(ctx context.Context, target, role string) error
}

// UserDirectory is everything the router needs from the user store.
type UserDirectory interface {
	UserStore
	authmw.Authenticator
	authmw.RoleLookup
}

// POST /users/bulk  JSON array in the body, or a multipart file= (CSV or JSON).
func BulkUpsertUsersHandler(store UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []users.Input
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			f, _, err := r.FormFile("file")
			if err != nil {
				httpx.Error(w, r, apperrors.NewValidation("file required"))
				return
			}
			defer f.Close()
			body, err := io.ReadAll(io.LimitReader(f, 8<<20))
			if err != nil {
				httpx.Error(w, r, err)
				return
			}
			// sniff CSV vs JSON by the first non-space byte
			trimmed := strings.TrimSpace(string(body))
			if strings.HasPrefix(trimmed, "[") {
				if err := json.Unmarshal(body, &rows); err != nil {
					httpx.Error(w, r, apperrors.NewValidation("bad json: "+err.Error()))
					return
				}
			} else if rows, err = users.ParseCSV(strings.NewReader(trimmed)); err != nil {
				httpx.Error(w, r, apperrors.NewValidation("bad csv: "+err.Error()))
				return
			}
		} else if err := httpx.Decode(r, &rows); err != nil {
			httpx.Error(w, r, err)
			return
		}

		if len(rows) == 0 {
			httpx.JSON(w, http.StatusOK, map[string]int{"inserted": 0, "updated": 0})
			return
		}
		ins, upd, err := store.BulkUpsert(r.Context(), rows)
		if err != nil {
			httpx.Error(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]int{"inserted": ins, "updated": upd})
	}
}

// GET /users?role=
func ListUsersHandler(store UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.List(r.Context(), r.URL.Query().Get("role"))
		if err != nil {
			httpx.Error(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, list)
	}
}
