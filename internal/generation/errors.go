package generation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MimeLyc/bioreel/internal/llm"
)

// ErrorType tags a failed artifact. The zero value means no error.
type ErrorType int

const (
	ErrNone ErrorType = iota
	ErrValidation
	ErrRateLimit
	ErrAuthentication
	ErrModelAccess
	ErrTimeout
	ErrParse
	ErrPersistence
	ErrUnknown
)

var errorTypeNames = map[ErrorType]string{
	ErrNone:           "",
	ErrValidation:     "validation",
	ErrRateLimit:      "rate_limit",
	ErrAuthentication: "authentication",
	ErrModelAccess:    "model_access",
	ErrTimeout:        "timeout",
	ErrParse:          "parse",
	ErrPersistence:    "persistence",
	ErrUnknown:        "unknown",
}

func (t ErrorType) String() string {
	if name, ok := errorTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

func (t ErrorType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ErrorType) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	for k, name := range errorTypeNames {
		if name == s {
			*t = k
			return nil
		}
	}
	*t = ErrUnknown
	return nil
}

// Advice returns the tip shown to the operator for a failure of type t.
func (t ErrorType) Advice() string {
	switch t {
	case ErrValidation:
		return "Check the input: actor names may contain letters, spaces, hyphens, apostrophes and periods (2-100 characters)."
	case ErrRateLimit:
		return "Wait a few minutes before trying again."
	case ErrAuthentication:
		return "Check your API key in the .env file."
	case ErrModelAccess:
		return "Your account may not have access to this model. Try the fallback model or check your plan."
	case ErrTimeout:
		return "The request timed out. Try again, or raise LLM_TIMEOUT."
	case ErrParse:
		return "The model returned malformed output. Regenerating usually fixes this."
	case ErrPersistence:
		return "Check that the output directory exists and is writable."
	default:
		return "Review the error details and the log file, then retry."
	}
}

// StageError is the error carried by a failed stage run.
type StageError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func NewError(errorType ErrorType, message string) *StageError {
	return &StageError{Type: errorType, Message: message}
}

func WrapError(err error, errorType ErrorType, message string) *StageError {
	return &StageError{Type: errorType, Message: message, Cause: err}
}

func (e *StageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

func IsErrorType(err error, errorType ErrorType) bool {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Type == errorType
	}
	return false
}

// TypeOf classifies err. Completion failures are mapped from their
// llm.ErrorKind.
func TypeOf(err error) ErrorType {
	if err == nil {
		return ErrNone
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Type
	}
	switch llm.KindOf(err) {
	case llm.KindRateLimited:
		return ErrRateLimit
	case llm.KindUnauthenticated:
		return ErrAuthentication
	case llm.KindModelUnavailable:
		return ErrModelAccess
	case llm.KindTimeout:
		return ErrTimeout
	default:
		return ErrUnknown
	}
}
