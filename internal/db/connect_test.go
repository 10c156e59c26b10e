package db_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/db/dbtest"
)

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	h := dbtest.Open(t)
	require.NoError(t, db.EnsureSchema(context.Background(), h, db.DriverSQLite))
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	h := dbtest.Open(t)

	created, err := db.EnsureAdmin(ctx, h, "root", "$2a$12$hash")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = db.EnsureAdmin(ctx, h, "root", "$2a$12$other")
	require.NoError(t, err)
	assert.False(t, created)

	var role string
	require.NoError(t, h.QueryRow(`SELECT role FROM users WHERE username=$1`, "root").Scan(&role))
	assert.Equal(t, "admin", role)

	created, err = db.EnsureAdmin(ctx, h, "nobody", "")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestOneOpenAttemptPerStudentAndExam(t *testing.T) {
	h := dbtest.Open(t)
	_, err := h.Exec(`INSERT INTO exams (id,title,doc_json,created_at,updated_at) VALUES ('e1','E','{}',0,0)`)
	require.NoError(t, err)

	insert := `INSERT INTO attempts (id,exam_id,student_id,status,started_at,updated_at) VALUES ($1,'e1','s1',$2,0,0)`
	_, err = h.Exec(insert, "a1", "in_progress")
	require.NoError(t, err)

	_, err = h.Exec(insert, "a2", "in_progress")
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err))

	// terminal attempts do not count against the open slot
	_, err = h.Exec(insert, "a3", "completed")
	require.NoError(t, err)
}

func TestIsUniqueViolationIgnoresOtherErrors(t *testing.T) {
	assert.False(t, db.IsUniqueViolation(nil))
	h := dbtest.Open(t)
	_, err := h.Exec(`SELECT * FROM missing_table`)
	require.Error(t, err)
	assert.False(t, db.IsUniqueViolation(err))
}
