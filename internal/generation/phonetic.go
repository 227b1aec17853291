package generation

import (
	"fmt"
	"strings"

	"github.com/MimeLyc/bioreel/internal/llm"
)

const (
	maxScriptInputChars = 50000
	phoneticMinRatio    = 0.5
	phoneticMaxRatio    = 1.5
)

// PhoneticStage respells hard proper nouns of a script for text-to-speech.
type PhoneticStage struct{}

func (PhoneticStage) Name() string { return "phonetic_conversion" }

func (PhoneticStage) ValidateInput(script string) error {
	return validateScriptInput(script)
}

func (PhoneticStage) Prompt(script string) (string, string) {
	return phoneticSystemPrompt, renderWithScript(phoneticPromptTemplate, script)
}

func (PhoneticStage) Parse(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", NewError(ErrParse, "empty completion")
	}
	return text, nil
}

func (PhoneticStage) Validate(source, out string) []string {
	if strings.TrimSpace(out) == "" {
		return []string{"Phonetic script is empty"}
	}
	ratio := float64(len(out)) / float64(len(source))
	if ratio < phoneticMinRatio {
		return []string{fmt.Sprintf("Phonetic script too short: %.0f%% of original", ratio*100)}
	}
	if ratio > phoneticMaxRatio {
		return []string{fmt.Sprintf("Phonetic script too long: %.0f%% of original", ratio*100)}
	}
	return nil
}

func (PhoneticStage) EstimateTokens(source, text string) llm.TokenUsage {
	return llm.TokenUsage{
		InputTokens:  300 + len(strings.Fields(source))*4/3,
		OutputTokens: len(strings.Fields(text)) * 4 / 3,
	}
}

func (PhoneticStage) Extras(source, out string) map[string]any {
	return map[string]any{"conversions": EstimateConversions(source, out)}
}

// EstimateConversions counts words that differ between the original and
// the phonetic script. It returns -1 when the word counts differ.
func EstimateConversions(original, phonetic string) int {
	a, b := strings.Fields(original), strings.Fields(phonetic)
	if len(a) != len(b) {
		return -1
	}
	n := 0
	for i := range a {
		if a[i] != b[i] {
			n++
		}
	}
	return n
}

func validateScriptInput(script string) error {
	if strings.TrimSpace(script) == "" {
		return NewError(ErrValidation, "script text cannot be empty")
	}
	if len(script) > maxScriptInputChars {
		return NewError(ErrValidation, fmt.Sprintf("script text too long: %d > %d characters", len(script), maxScriptInputChars))
	}
	return nil
}
