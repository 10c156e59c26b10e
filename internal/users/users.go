// Package users stores accounts and their bcrypt password hashes.
package users

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-exams/internal/apperrors"
)

const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// DefaultCost is the bcrypt cost used for new hashes.
const DefaultCost = 12

type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	CreatedAt int64  `json:"created_at"`
}

// Input is one row of a bulk upsert. Password is plaintext and optional for
// existing users.
type Input struct {
	ID       string `json:"id" validate:"required"`
	Username string `json:"username" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=student instructor admin"`
	Password string `json:"password,omitempty" validate:"omitempty,min=6"`
}

var (
	ErrInvalidCredentials = apperrors.NewUnauthenticated("invalid credentials")
	ErrWrongPassword      = apperrors.NewForbidden("incorrect old password")
	ErrUserNotFound       = apperrors.NewNotFound("user not found")
)

var validate = validator.New()

type Store struct {
	db   *sql.DB
	sb   sq.StatementBuilderType
	now  func() time.Time
	Cost int
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:   db,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now:  time.Now,
		Cost: DefaultCost,
	}
}

// Authenticate checks a username/password pair.
func (s *Store) Authenticate(ctx context.Context, username, password string) (User, error) {
	query, args, err := s.sb.Select("id", "username", "role", "password_hash", "created_at").
		From("users").Where(sq.Eq{"username": username}).ToSql()
	if err != nil {
		return User{}, err
	}
	var (
		u    User
		hash string
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&u.ID, &u.Username, &u.Role, &hash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// List returns users ordered by username, optionally filtered by role.
func (s *Store) List(ctx context.Context, role string) ([]User, error) {
	qb := s.sb.Select("id", "username", "role", "created_at").From("users").OrderBy("username")
	if role != "" {
		qb = qb.Where(sq.Eq{"role": role})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// BulkUpsert creates or updates users in one transaction. New users need a
// password; existing ones keep their hash when none is given.
func (s *Store) BulkUpsert(ctx context.Context, rows []Input) (inserted, updated int, err error) {
	for i, r := range rows {
		if err := validate.Struct(r); err != nil {
			return 0, 0, apperrors.NewValidation(fmt.Sprintf("row %d: %v", i+1, err))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	now := s.now().Unix()
	for _, r := range rows {
		if r.Role == "" {
			r.Role = RoleStudent
		}
		var hash string
		if r.Password != "" {
			b, herr := bcrypt.GenerateFromPassword([]byte(r.Password), s.Cost)
			if herr != nil {
				return inserted, updated, herr
			}
			hash = string(b)
		}

		var query string
		var args []any
		query, args, err = s.sb.Select("1").From("users").
			Where(sq.Or{sq.Eq{"id": r.ID}, sq.Eq{"username": r.Username}}).ToSql()
		if err != nil {
			return inserted, updated, err
		}
		exists := true
		if err = tx.QueryRowContext(ctx, query, args...).Scan(new(int)); errors.Is(err, sql.ErrNoRows) {
			exists, err = false, nil
		}
		if err != nil {
			return inserted, updated, err
		}

		if exists {
			ub := s.sb.Update("users").Set("username", r.Username).Set("role", r.Role).Where(sq.Eq{"id": r.ID})
			if hash != "" {
				ub = ub.Set("password_hash", hash)
			}
			if query, args, err = ub.ToSql(); err != nil {
				return inserted, updated, err
			}
			if _, err = tx.ExecContext(ctx, query, args...); err != nil {
				return inserted, updated, err
			}
			updated++
			continue
		}
		if hash == "" {
			err = apperrors.NewValidation("password required for new user: " + r.Username)
			return inserted, updated, err
		}
		query, args, err = s.sb.Insert("users").
			Columns("id", "username", "password_hash", "role", "created_at").
			Values(r.ID, r.Username, hash, r.Role, now).ToSql()
		if err != nil {
			return inserted, updated, err
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return inserted, updated, err
		}
		inserted++
	}
	return inserted, updated, nil
}

// ChangePassword replaces the user's password after checking the old one.
func (s *Store) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if len(newPassword) < 6 {
		return apperrors.NewValidation("new password must be at least 6 characters")
	}
	query, args, err := s.sb.Select("password_hash").From("users").
		Where(sq.Or{sq.Eq{"id": userID}, sq.Eq{"username": userID}}).ToSql()
	if err != nil {
		return err
	}
	var stored string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&stored); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(stored), []byte(oldPassword)) != nil {
		return ErrWrongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.Cost)
	if err != nil {
		return err
	}
	query, args, err = s.sb.Update("users").Set("password_hash", string(hash)).
		Where(sq.Or{sq.Eq{"id": userID}, sq.Eq{"username": userID}}).ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// ParseCSV reads rows with an id,username,role[,password] header.
func ParseCSV(r io.Reader) ([]Input, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	hdr, err := cr.Read()
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, k := range []string{"id", "username", "role"} {
		if _, ok := idx[k]; !ok {
			return nil, errors.New("missing column: " + k)
		}
	}
	var rows []Input
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := Input{
			ID:       rec[idx["id"]],
			Username: rec[idx["username"]],
			Role:     strings.ToLower(rec[idx["role"]]),
		}
		if i, ok := idx["password"]; ok {
			row.Password = rec[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// HashPassword hashes a password at DefaultCost.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), DefaultCost)
	return string(b), err
}

// Role returns the stored role of the user with the given id or username.
func (s *Store) Role(ctx context.Context, userID string) (string, error) {
	query, args, err := s.sb.Select("role").From("users").
		Where(sq.Or{sq.Eq{"id": userID}, sq.Eq{"username": userID}}).ToSql()
	if err != nil {
		return "", err
	}
	var role string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return role, nil
}

// ErrLastAdmin is returned when a role change would leave no admin.
var ErrLastAdmin = apperrors.NewConflict("cannot demote the last admin")

// SetRole changes the role of the user with the given id or username.
func (s *Store) SetRole(ctx context.Context, target, role string) (err error) {
	role = strings.ToLower(strings.TrimSpace(role))
	switch role {
	case RoleStudent, RoleInstructor, RoleAdmin:
	default:
		return apperrors.NewValidation("invalid role: " + role)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	query, args, err := s.sb.Select("id", "role").From("users").
		Where(sq.Or{sq.Eq{"id": target}, sq.Eq{"username": target}}).ToSql()
	if err != nil {
		return err
	}
	var id, current string
	if err = tx.QueryRowContext(ctx, query, args...).Scan(&id, &current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrUserNotFound
		}
		return err
	}
	if current == RoleAdmin && role != RoleAdmin {
		if query, args, err = s.sb.Select("COUNT(1)").From("users").Where(sq.Eq{"role": RoleAdmin}).ToSql(); err != nil {
			return err
		}
		var admins int
		if err = tx.QueryRowContext(ctx, query, args...).Scan(&admins); err != nil {
			return err
		}
		if admins <= 1 {
			err = ErrLastAdmin
			return err
		}
	}
	if query, args, err = s.sb.Update("users").Set("role", role).Where(sq.Eq{"id": id}).ToSql(); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}
