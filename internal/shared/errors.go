package shared

import "errors"

var (
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates a failed login attempt. Callers must
	// surface it uniformly so the response never reveals which field was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrConflict indicates a deletion blocked by a referential or invariant
	// rule, for example deleting a category that still has assets.
	ErrConflict = errors.New("conflict")
	// ErrForbidden indicates the actor lacks the role for the action.
	ErrForbidden = errors.New("forbidden")
	// ErrCSRFTokenMissing occurs when the CSRF token is absent.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// ValidationError carries a user-facing message for a rejected field. The
// services surface the first failed rule, so one error is enough.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Invalid constructs a ValidationError for the given field.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ConflictError carries the user-facing message for a deletion blocked by a
// referential or invariant rule. errors.Is(err, ErrConflict) matches it.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Conflict constructs a ConflictError.
func Conflict(message string) *ConflictError {
	return &ConflictError{Message: message}
}

// UserSafeMessage converts an internal error into text suitable for a flash
// message. Unexpected store errors are collapsed to a generic message so
// internals never leak into a rendered page.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid username or password."
	case errors.Is(err, ErrForbidden):
		return "You do not have permission to perform this action."
	case errors.Is(err, ErrConflict):
		return "The operation conflicts with existing records."
	default:
		return "An unexpected error occurred. Please try again."
	}
}
