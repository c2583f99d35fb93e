package accesslinks

import "errors"

// ErrInvalidInput wraps every IssueLink input failure.
var ErrInvalidInput = errors.New("invalid access link request")

// ErrLinkNotFound is returned by admin operations on an unknown link id.
var ErrLinkNotFound = errors.New("access link not found")

// Code classifies a failed token validation.
type Code string

const (
	CodeNoToken     Code = "NO_TOKEN"
	CodeNotFound    Code = "NOT_FOUND"
	CodeDeactivated Code = "DEACTIVATED"
	CodeExpired     Code = "EXPIRED"
	CodeTimedOut    Code = "TIMED_OUT"
	CodeUnavailable Code = "UNAVAILABLE"
)

// Message is the user-facing text for a code.
func (c Code) Message() string {
	switch c {
	case CodeNoToken:
		return "no access token was provided"
	case CodeNotFound:
		return "access link not found"
	case CodeDeactivated:
		return "this access link has been deactivated"
	case CodeExpired:
		return "this access link has expired"
	case CodeTimedOut:
		return "validating the access link timed out"
	case CodeUnavailable:
		return "the access link service is unavailable"
	default:
		return "access link validation failed"
	}
}

// Retryable reports whether trying again with the same token could succeed.
func (c Code) Retryable() bool {
	return c == CodeTimedOut || c == CodeUnavailable
}

// ValidationError is returned by ValidateToken for every failure.
type ValidationError struct {
	Code Code
	Err  error // underlying backend error, if any
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Code.Message() + ": " + e.Err.Error()
	}
	return e.Code.Message()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is matches another *ValidationError with the same code, so
// errors.Is(err, ErrExpired) works regardless of the wrapped cause.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrNoToken     = &ValidationError{Code: CodeNoToken}
	ErrNotFound    = &ValidationError{Code: CodeNotFound}
	ErrDeactivated = &ValidationError{Code: CodeDeactivated}
	ErrExpired     = &ValidationError{Code: CodeExpired}
	ErrTimedOut    = &ValidationError{Code: CodeTimedOut}
	ErrUnavailable = &ValidationError{Code: CodeUnavailable}
)

// CodeOf extracts the validation code from err, or "" if err is not a
// validation failure.
func CodeOf(err error) Code {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

func fail(code Code, cause error) *ValidationError {
	return &ValidationError{Code: code, Err: cause}
}
