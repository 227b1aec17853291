package generation

import (
	"time"

	"github.com/MimeLyc/bioreel/internal/llm"
	"github.com/MimeLyc/bioreel/pkg/file"
)

// Artifact is the result of one stage run. A failed artifact never carries
// a payload, and an invalid one always lists at least one issue.
type Artifact[T any] struct {
	Success          bool           `json:"success"`
	Payload          *T             `json:"payload,omitempty"`
	ModelUsed        string         `json:"model_used,omitempty"`
	Usage            llm.TokenUsage `json:"token_usage"`
	GenerationTime   float64        `json:"generation_time"`
	Timestamp        time.Time      `json:"timestamp"`
	Valid            bool           `json:"valid"`
	ValidationIssues []string       `json:"validation_issues"`
	Attempts         int            `json:"attempts"`
	Error            string         `json:"error,omitempty"`
	ErrorType        ErrorType      `json:"error_type,omitempty"`
	CostUSD          float64        `json:"cost_usd"`
	Warnings         []string       `json:"warnings,omitempty"`
}

// Succeeded wraps a parsed payload. The artifact is valid when issues is empty.
func Succeeded[T any](payload T, issues []string) Artifact[T] {
	if issues == nil {
		issues = []string{}
	}
	return Artifact[T]{
		Success:          true,
		Payload:          &payload,
		Timestamp:        time.Now(),
		Valid:            len(issues) == 0,
		ValidationIssues: issues,
	}
}

// Failed builds a failure without payload. A nil err still yields a
// non-empty issue list.
func Failed[T any](errorType ErrorType, err error) Artifact[T] {
	if errorType == ErrNone {
		errorType = ErrUnknown
	}
	msg := errorType.String() + " error"
	if err != nil {
		msg = err.Error()
	}
	return Artifact[T]{
		Success:          false,
		Timestamp:        time.Now(),
		Valid:            false,
		ValidationIssues: []string{msg},
		Error:            msg,
		ErrorType:        errorType,
	}
}

// OK reports a successful and valid artifact.
func (a Artifact[T]) OK() bool {
	return a.Success && a.Valid && a.Payload != nil
}

// Value returns the payload or the zero value.
func (a Artifact[T]) Value() T {
	var zero T
	if a.Payload == nil {
		return zero
	}
	return *a.Payload
}

func SaveArtifact[T any](path string, a Artifact[T]) error {
	return file.WriteJSON(path, a)
}

func LoadArtifact[T any](path string) (Artifact[T], error) {
	var a Artifact[T]
	if err := file.ReadJSON(path, &a); err != nil {
		return Artifact[T]{}, err
	}
	if a.ValidationIssues == nil {
		a.ValidationIssues = []string{}
	}
	return a, nil
}
