package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-exams/internal/apperrors"
	"github.com/mind-engage/mindengage-exams/internal/httpx"
)

type updateUserRoleReq struct {
	Role string `json:"role"`
}

// PATCH /users/{userID}/role  userID may be an id or a username.
func AdminUpdateUserRoleHandler(store UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := chi.URLParam(r, "userID")
		if target == "" {
			httpx.Error(w, r, apperrors.NewValidation("missing userID"))
			return
		}
		var req updateUserRoleReq
		if err := httpx.Decode(r, &req); err != nil {
			httpx.Error(w, r, err)
			return
		}
		if err := store.SetRole(r.Context(), target, req.Role); err != nil {
			httpx.Error(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
