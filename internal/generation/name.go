package generation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minNameLength = 2
	maxNameLength = 100
)

// ValidateActorName collapses whitespace and checks length and character
// class. It returns the cleaned name.
func ValidateActorName(name string) (string, error) {
	cleaned := strings.Join(strings.Fields(name), " ")
	if cleaned == "" {
		return "", NewError(ErrValidation, "actor name cannot be empty")
	}
	n := utf8.RuneCountInString(cleaned)
	if n < minNameLength {
		return "", NewError(ErrValidation, fmt.Sprintf("actor name too short: %d < %d", n, minNameLength))
	}
	if n > maxNameLength {
		return "", NewError(ErrValidation, fmt.Sprintf("actor name too long: %d > %d", n, maxNameLength))
	}
	for _, r := range cleaned {
		switch {
		case unicode.IsLetter(r), r == ' ', r == '-', r == '\'', r == '.':
		default:
			return "", NewError(ErrValidation, fmt.Sprintf("actor name contains invalid character %q", r))
		}
	}
	return cleaned, nil
}
