package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicyAllows(t *testing.T) {
	p := DefaultPolicy
	assert.True(t, p.Allows("student", "attempt:submit"))
	assert.False(t, p.Allows("student", "exam:create"))
	assert.False(t, p.Allows("student", "attempt:view-all"))
	assert.True(t, p.Allows("instructor", "attempt:view-all"))
	assert.False(t, p.Allows("instructor", "users:manage"))
	assert.True(t, p.Allows("admin", "anything:at-all"))
	assert.False(t, p.Allows("ghost", "exam:view"))

	wild := Policy{"auditor": {"attempt:*"}}
	assert.True(t, wild.Allows("auditor", "attempt:view-all"))
	assert.False(t, wild.Allows("auditor", "exam:view"))
	assert.True(t, wild.AllowsAny("auditor", "exam:view", "attempt:save"))
	assert.False(t, wild.AllowsAny("auditor"))
}

func TestRoleContext(t *testing.T) {
	assert.Equal(t, "", RoleFromContext(context.Background()))
	assert.Equal(t, "student", RoleFromContext(WithRole(context.Background(), "student")))
}

func TestRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := Require("exam:create")(ok)

	cases := map[string]int{"": 401, "student": 403, "instructor": 204, "admin": 204}
	for role, want := range cases {
		req := httptest.NewRequest(http.MethodPost, "/exams", nil)
		if role != "" {
			req = req.WithContext(WithRole(context.Background(), role))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, role)
	}

	either := RequireAny("attempt:view-own", "attempt:view-all")(ok)
	rec := httptest.NewRecorder()
	either.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/attempts", nil).WithContext(WithRole(context.Background(), "student")))
	assert.Equal(t, 204, rec.Code)
}
