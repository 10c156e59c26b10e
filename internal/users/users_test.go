package users

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-exams/internal/apperrors"
	"github.com/mind-engage/mindengage-exams/internal/db/dbtest"
)

func newStore(t *testing.T) *Store {
	s := NewStore(dbtest.Open(t))
	s.Cost = bcrypt.MinCost
	return s
}

func TestBulkUpsertAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	ins, upd, err := s.BulkUpsert(ctx, []Input{
		{ID: "u1", Username: "ada", Password: "secret1"},
		{ID: "u2", Username: "grace", Role: RoleInstructor, Password: "secret2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, ins)
	assert.Equal(t, 0, upd)

	u, err := s.Authenticate(ctx, "ada", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, RoleStudent, u.Role)

	_, err = s.Authenticate(ctx, "ada", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate(ctx, "nobody", "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// update without password keeps the hash
	ins, upd, err = s.BulkUpsert(ctx, []Input{{ID: "u1", Username: "ada", Role: RoleInstructor}})
	require.NoError(t, err)
	assert.Equal(t, 0, ins)
	assert.Equal(t, 1, upd)
	u, err = s.Authenticate(ctx, "ada", "secret1")
	require.NoError(t, err)
	assert.Equal(t, RoleInstructor, u.Role)

	list, err := s.List(ctx, RoleInstructor)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "ada", all[0].Username)
}

func TestBulkUpsertRejectsBadRows(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, _, err := s.BulkUpsert(ctx, []Input{{ID: "u1", Username: "x", Role: "teacher", Password: "secret1"}})
	assert.True(t, errors.Is(err, apperrors.ErrValidationFailed))

	_, _, err = s.BulkUpsert(ctx, []Input{{ID: "u1", Username: "x"}})
	assert.True(t, errors.Is(err, apperrors.ErrValidationFailed), "new users need a password")

	// nothing from the failed batch is kept
	_, _, err = s.BulkUpsert(ctx, []Input{
		{ID: "u1", Username: "ok", Password: "secret1"},
		{ID: "u2", Username: "bad"},
	})
	require.Error(t, err)
	list, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, _, err := s.BulkUpsert(ctx, []Input{{ID: "u1", Username: "ada", Password: "secret1"}})
	require.NoError(t, err)

	assert.ErrorIs(t, s.ChangePassword(ctx, "u1", "nope", "secret2"), ErrWrongPassword)
	assert.ErrorIs(t, s.ChangePassword(ctx, "ghost", "x", "secret2"), ErrUserNotFound)
	assert.Error(t, s.ChangePassword(ctx, "u1", "secret1", "123"))

	require.NoError(t, s.ChangePassword(ctx, "u1", "secret1", "secret2"))
	_, err = s.Authenticate(ctx, "ada", "secret2")
	assert.NoError(t, err)
}

func TestParseCSV(t *testing.T) {
	rows, err := ParseCSV(strings.NewReader("id, username, role, password\nu1,ada,STUDENT,pw1234\nu2,bob,instructor,\n"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Input{ID: "u1", Username: "ada", Role: "student", Password: "pw1234"}, rows[0])
	assert.Empty(t, rows[1].Password)

	_, err = ParseCSV(strings.NewReader("id,username\nu1,ada\n"))
	assert.Error(t, err)
}

func TestSetRole(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, _, err := s.BulkUpsert(ctx, []Input{
		{ID: "a1", Username: "root", Role: RoleAdmin, Password: "secret1"},
		{ID: "u1", Username: "ada", Password: "secret1"},
	})
	require.NoError(t, err)

	require.NoError(t, s.SetRole(ctx, "ada", "Instructor"))
	role, err := s.Role(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, RoleInstructor, role)

	err = s.SetRole(ctx, "a1", RoleStudent)
	assert.ErrorIs(t, err, ErrLastAdmin)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	require.NoError(t, s.SetRole(ctx, "u1", RoleAdmin))
	require.NoError(t, s.SetRole(ctx, "a1", RoleStudent), "another admin remains")

	assert.ErrorIs(t, s.SetRole(ctx, "ghost", RoleStudent), ErrUserNotFound)
	assert.ErrorIs(t, s.SetRole(ctx, "u1", "teacher"), apperrors.ErrValidationFailed)
}
