package exam

import "github.com/mind-engage/mindengage-exams/internal/apperrors"

var (
	ErrExamNotFound    = apperrors.NewNotFound("exam not found")
	ErrAttemptNotFound = apperrors.NewNotFound("attempt not found")
	ErrExamNotOpen     = apperrors.NewValidation("exam is not open for attempts")
	ErrAttemptClosed   = apperrors.NewConflict("attempt is no longer in progress")
	ErrNotOwner        = apperrors.NewForbidden("attempt belongs to another student")
)
