package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind is the structured classification of a completion failure.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindRateLimited
	KindUnauthenticated
	KindModelUnavailable
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindModelUnavailable:
		return "model_unavailable"
	case KindTimeout:
		return "timeout"
	default:
		return "other"
	}
}

// APIError is returned by every Client call that fails.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Type       string
	Code       string
	Message    string
	Cause      error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "LLM API error [%s]: %s", e.Kind, e.Message)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status: %d", e.StatusCode)
		if e.Type != "" {
			fmt.Fprintf(&b, ", type: %s", e.Type)
		}
		if e.Code != "" {
			fmt.Fprintf(&b, ", code: %s", e.Code)
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// KindOf extracts the ErrorKind from err. Context deadlines count as timeouts.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindOther
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindOther
}

// classify maps an HTTP status plus the provider's error code/type to a kind.
func classify(status int, code, errType string) ErrorKind {
	code = strings.ToLower(code)
	errType = strings.ToLower(errType)

	switch {
	case status == http.StatusTooManyRequests,
		strings.HasPrefix(code, "rate_limit"), strings.HasPrefix(errType, "rate_limit"),
		code == "insufficient_quota":
		return KindRateLimited
	case status == http.StatusUnauthorized, status == http.StatusForbidden,
		code == "invalid_api_key", errType == "authentication_error":
		return KindUnauthenticated
	case code == "model_not_found", errType == "model_not_found",
		status == http.StatusNotFound:
		return KindModelUnavailable
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return KindTimeout
	default:
		return KindOther
	}
}
