package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/grading"
)

type SQLStore struct {
	conn   *sql.DB
	driver db.Driver
	sb     sq.StatementBuilderType
}

func NewSQLStore(conn *sql.DB, driver db.Driver) *SQLStore {
	return &SQLStore{
		conn:   conn,
		driver: driver,
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

var attemptColumns = []string{
	"id", "exam_id", "student_id", "status", "answers_json", "flagged_json", "time_spent",
	"started_at", "completed_at", "end_reason", "score", "max_score", "percentage", "passed",
	"needs_manual", "grades_json", "updated_at",
}

func (s *SQLStore) PutExam(ctx context.Context, e Exam) error {
	now := time.Now()
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = e.UpdatedAt
	}
	questions := e.Questions
	e.QuestionIDs = questionIDs(questions)
	e.Questions = nil
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal exam: %w", err)
	}
	maxMarks := Exam{TotalMarks: e.TotalMarks, Questions: questions}.MaxMarks()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query, args, err := s.sb.Insert("exams").
		Columns("id", "title", "is_published", "is_active", "max_marks", "doc_json", "created_by", "created_at", "updated_at").
		Values(e.ID, e.Title, e.IsPublished, e.IsActive, maxMarks, string(doc), e.CreatedBy, e.CreatedAt.Unix(), e.UpdatedAt.Unix()).
		Suffix(`ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, is_published=EXCLUDED.is_published,
			is_active=EXCLUDED.is_active, max_marks=EXCLUDED.max_marks, doc_json=EXCLUDED.doc_json,
			updated_at=EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build exam upsert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert exam: %w", err)
	}

	query, args, err = s.sb.Delete("questions").Where(sq.Eq{"exam_id": e.ID}).ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}
	if len(questions) > 0 {
		ins := s.sb.Insert("questions").Columns("exam_id", "id", "position", "doc_json", "updated_at")
		for i, q := range questions {
			qd, err := json.Marshal(q)
			if err != nil {
				return fmt.Errorf("marshal question %s: %w", q.ID, err)
			}
			ins = ins.Values(e.ID, q.ID, i, string(qd), e.UpdatedAt.Unix())
		}
		query, args, err = ins.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert questions: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) GetExam(ctx context.Context, id string) (Exam, error) {
	query, args, err := s.sb.Select("doc_json", "created_at", "updated_at").
		From("exams").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return Exam{}, err
	}
	var (
		doc              string
		created, updated int64
	)
	if err := s.conn.QueryRowContext(ctx, query, args...).Scan(&doc, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Exam{}, ErrExamNotFound
		}
		return Exam{}, err
	}
	var e Exam
	if err := json.Unmarshal([]byte(doc), &e); err != nil {
		return Exam{}, fmt.Errorf("decode exam %s: %w", id, err)
	}
	e.CreatedAt = time.Unix(created, 0).UTC()
	e.UpdatedAt = time.Unix(updated, 0).UTC()

	query, args, err = s.sb.Select("doc_json").From("questions").
		Where(sq.Eq{"exam_id": id}).OrderBy("position").ToSql()
	if err != nil {
		return Exam{}, err
	}
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return Exam{}, err
	}
	defer rows.Close()
	e.Questions = make([]Question, 0, len(e.QuestionIDs))
	for rows.Next() {
		var qd string
		if err := rows.Scan(&qd); err != nil {
			return Exam{}, err
		}
		var q Question
		if err := json.Unmarshal([]byte(qd), &q); err != nil {
			return Exam{}, fmt.Errorf("decode question of %s: %w", id, err)
		}
		e.Questions = append(e.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return Exam{}, err
	}
	e.QuestionIDs = questionIDs(e.Questions)
	return e, nil
}

func (s *SQLStore) ListExams(ctx context.Context, opts ListOpts) ([]ExamSummary, error) {
	qb := s.sb.Select("doc_json", "max_marks", "updated_at").From("exams").
		OrderBy("updated_at DESC", "id")
	if opts.PublishedOnly {
		qb = qb.Where(sq.Eq{"is_published": true, "is_active": true})
	}
	if q := strings.TrimSpace(opts.Q); q != "" {
		qb = qb.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(q)+"%")
	}
	if opts.Limit > 0 {
		qb = qb.Limit(uint64(opts.Limit))
	}
	if opts.Offset > 0 {
		qb = qb.Offset(uint64(opts.Offset))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ExamSummary{}
	for rows.Next() {
		var (
			doc      string
			maxMarks int
			updated  int64
		)
		if err := rows.Scan(&doc, &maxMarks, &updated); err != nil {
			return nil, err
		}
		var e Exam
		if err := json.Unmarshal([]byte(doc), &e); err != nil {
			return nil, err
		}
		e.UpdatedAt = time.Unix(updated, 0).UTC()
		sum := e.Summary()
		sum.QuestionCount = len(e.QuestionIDs)
		sum.TotalMarks = maxMarks
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLStore) FindOrCreateAttempt(ctx context.Context, a Attempt) (Attempt, bool, error) {
	if err := s.examExists(ctx, a.ExamID); err != nil {
		return Attempt{}, false, err
	}
	if cur, err := s.OpenAttempt(ctx, a.ExamID, a.StudentID); err == nil {
		return cur, false, nil
	} else if !errors.Is(err, ErrAttemptNotFound) {
		return Attempt{}, false, err
	}

	a.Status = StatusInProgress
	row, err := attemptRow(a)
	if err != nil {
		return Attempt{}, false, err
	}
	query, args, err := s.sb.Insert("attempts").Columns(attemptColumns...).Values(row...).ToSql()
	if err != nil {
		return Attempt{}, false, err
	}
	if _, err := s.conn.ExecContext(ctx, query, args...); err != nil {
		if db.IsUniqueViolation(err) {
			// a concurrent start won the slot
			cur, err := s.OpenAttempt(ctx, a.ExamID, a.StudentID)
			return cur, false, err
		}
		return Attempt{}, false, fmt.Errorf("insert attempt: %w", err)
	}
	return a, true, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return s.getAttempt(ctx, s.conn, id, false)
}

func (s *SQLStore) SaveProgress(ctx context.Context, id string, p ProgressUpdate) (Attempt, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, err
	}
	defer tx.Rollback()

	a, err := s.getAttempt(ctx, tx, id, s.driver == db.DriverPostgres)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status != StatusInProgress {
		return Attempt{}, ErrAttemptClosed
	}
	mergeProgress(&a, p)
	if !p.At.IsZero() {
		a.UpdatedAt = p.At
	}
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return Attempt{}, err
	}
	flagged, err := json.Marshal(a.Flagged)
	if err != nil {
		return Attempt{}, err
	}
	query, args, err := s.sb.Update("attempts").
		Set("answers_json", string(answers)).
		Set("flagged_json", string(flagged)).
		Set("time_spent", a.TimeSpent).
		Set("updated_at", a.UpdatedAt.Unix()).
		Where(sq.Eq{"id": id, "status": string(StatusInProgress)}).
		ToSql()
	if err != nil {
		return Attempt{}, err
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return Attempt{}, fmt.Errorf("save progress: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return Attempt{}, err
	} else if n != 1 {
		// finalized between the read and the write
		return Attempt{}, ErrAttemptClosed
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, err
	}
	return a, nil
}

func (s *SQLStore) Finalize(ctx context.Context, a Attempt) (Attempt, bool, error) {
	answers, err := json.Marshal(nonNilAnswers(a.Answers))
	if err != nil {
		return Attempt{}, false, err
	}
	flagged, err := json.Marshal(nonNilStrings(a.Flagged))
	if err != nil {
		return Attempt{}, false, err
	}
	grades, err := json.Marshal(a.Grades)
	if err != nil {
		return Attempt{}, false, err
	}
	var completed any
	if a.CompletedAt != nil {
		completed = a.CompletedAt.Unix()
	}
	query, args, err := s.sb.Update("attempts").
		Set("status", string(a.Status)).
		Set("answers_json", string(answers)).
		Set("flagged_json", string(flagged)).
		Set("time_spent", a.TimeSpent).
		Set("completed_at", completed).
		Set("end_reason", a.EndReason).
		Set("score", a.Score).
		Set("max_score", a.MaxScore).
		Set("percentage", a.Percentage).
		Set("passed", a.Passed).
		Set("needs_manual", a.NeedsManual).
		Set("grades_json", string(grades)).
		Set("updated_at", a.UpdatedAt.Unix()).
		Where(sq.Eq{"id": a.ID, "status": string(StatusInProgress)}).
		ToSql()
	if err != nil {
		return Attempt{}, false, err
	}
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return Attempt{}, false, fmt.Errorf("finalize attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Attempt{}, false, err
	}
	cur, err := s.GetAttempt(ctx, a.ID)
	if err != nil {
		return Attempt{}, false, err
	}
	return cur, n == 1, nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	qb := s.sb.Select(attemptColumns...).From("attempts").OrderBy("started_at DESC", "id")
	if opts.ExamID != "" {
		qb = qb.Where(sq.Eq{"exam_id": opts.ExamID})
	}
	if opts.StudentID != "" {
		qb = qb.Where(sq.Eq{"student_id": opts.StudentID})
	}
	if opts.Status != "" {
		qb = qb.Where(sq.Eq{"status": string(opts.Status)})
	}
	if opts.Limit > 0 {
		qb = qb.Limit(uint64(opts.Limit))
	}
	if opts.Offset > 0 {
		qb = qb.Offset(uint64(opts.Offset))
	}
	return s.queryAttempts(ctx, qb)
}

func (s *SQLStore) ListOpenAttempts(ctx context.Context, limit int) ([]Attempt, error) {
	qb := s.sb.Select(attemptColumns...).From("attempts").
		Where(sq.Eq{"status": string(StatusInProgress)}).
		OrderBy("started_at", "id")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}
	return s.queryAttempts(ctx, qb)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) examExists(ctx context.Context, id string) error {
	query, args, err := s.sb.Select("1").From("exams").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	var one int
	if err := s.conn.QueryRowContext(ctx, query, args...).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrExamNotFound
		}
		return err
	}
	return nil
}

func (s *SQLStore) OpenAttempt(ctx context.Context, examID, studentID string) (Attempt, error) {
	query, args, err := s.sb.Select(attemptColumns...).From("attempts").
		Where(sq.Eq{"exam_id": examID, "student_id": studentID, "status": string(StatusInProgress)}).
		ToSql()
	if err != nil {
		return Attempt{}, err
	}
	return scanAttempt(s.conn.QueryRowContext(ctx, query, args...))
}

func (s *SQLStore) getAttempt(ctx context.Context, q querier, id string, forUpdate bool) (Attempt, error) {
	qb := s.sb.Select(attemptColumns...).From("attempts").Where(sq.Eq{"id": id})
	if forUpdate {
		qb = qb.Suffix("FOR UPDATE")
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return Attempt{}, err
	}
	return scanAttempt(q.QueryRowContext(ctx, query, args...))
}

func (s *SQLStore) queryAttempts(ctx context.Context, qb sq.SelectBuilder) ([]Attempt, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(r rowScanner) (Attempt, error) {
	var (
		a                           Attempt
		status                      string
		answers, flagged, grades    string
		started, updated            int64
		completed                   sql.NullInt64
		score, maxScore, percentage sql.NullFloat64
		passed                      sql.NullBool
	)
	err := r.Scan(&a.ID, &a.ExamID, &a.StudentID, &status, &answers, &flagged, &a.TimeSpent,
		&started, &completed, &a.EndReason, &score, &maxScore, &percentage, &passed,
		&a.NeedsManual, &grades, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrAttemptNotFound
		}
		return Attempt{}, err
	}
	a.Status = Status(status)
	a.StartedAt = time.Unix(started, 0).UTC()
	a.UpdatedAt = time.Unix(updated, 0).UTC()
	if completed.Valid {
		t := time.Unix(completed.Int64, 0).UTC()
		a.CompletedAt = &t
	}
	if score.Valid {
		a.Score = &score.Float64
	}
	if maxScore.Valid {
		a.MaxScore = &maxScore.Float64
	}
	if percentage.Valid {
		a.Percentage = &percentage.Float64
	}
	if passed.Valid {
		a.Passed = &passed.Bool
	}
	if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil {
		return Attempt{}, fmt.Errorf("decode answers of %s: %w", a.ID, err)
	}
	if a.Answers == nil {
		a.Answers = map[string]Answer{}
	}
	if err := json.Unmarshal([]byte(flagged), &a.Flagged); err != nil {
		return Attempt{}, fmt.Errorf("decode flags of %s: %w", a.ID, err)
	}
	a.Flagged = nonNilStrings(a.Flagged)
	if grades != "" && grades != "null" && grades != "{}" {
		a.Grades = map[string]grading.ItemResult{}
		if err := json.Unmarshal([]byte(grades), &a.Grades); err != nil {
			return Attempt{}, fmt.Errorf("decode grades of %s: %w", a.ID, err)
		}
	}
	return a, nil
}

func attemptRow(a Attempt) ([]any, error) {
	answers, err := json.Marshal(nonNilAnswers(a.Answers))
	if err != nil {
		return nil, err
	}
	flagged, err := json.Marshal(nonNilStrings(a.Flagged))
	if err != nil {
		return nil, err
	}
	return []any{
		a.ID, a.ExamID, a.StudentID, string(a.Status), string(answers), string(flagged), a.TimeSpent,
		a.StartedAt.Unix(), nil, "", nil, nil, nil, nil,
		false, "{}", a.UpdatedAt.Unix(),
	}, nil
}

func nonNilAnswers(m map[string]Answer) map[string]Answer {
	if m == nil {
		return map[string]Answer{}
	}
	return m
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
