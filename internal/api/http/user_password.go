package http

import (
	"net/http"

	"github.com/mind-engage/mindengage-exams/internal/httpx"
)

type changePasswordReq struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// POST /users/change-password
func ChangePasswordHandler(store UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := viewerFrom(r)
		if v.ID == "" {
			httpx.Fail(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		var req changePasswordReq
		if err := httpx.Decode(r, &req); err != nil {
			httpx.Error(w, r, err)
			return
		}
		if err := store.ChangePassword(r.Context(), v.ID, req.OldPassword, req.NewPassword); err != nil {
			httpx.Error(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
