package generation

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/MimeLyc/bioreel/internal/llm"
)

const (
	MinScriptWords = 780
	MaxScriptWords = 830
	MinYearStamps  = 6
	MaxYearStamps  = 9

	scriptInputTokens     = 285
	scriptTokensPerWord   = 1.5
	languageCheckMinWords = 50
)

var (
	yearPattern  = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	titlePattern = regexp.MustCompile(`\*\*(.+?)\s*—\s*5-MINUTE BIO SCRIPT[^*]*\*\*`)
)

var requiredSections = []string{"HOOK", "BIO"}

// Script is a parsed narration script.
type Script struct {
	Title      string `json:"title,omitempty"`
	Hook       string `json:"hook,omitempty"`
	Bio        string `json:"bio,omitempty"`
	Full       string `json:"script"`
	WordCount  int    `json:"word_count"`
	YearStamps int    `json:"year_stamps"`
}

// ScriptStage writes the narration script for an actor name.
type ScriptStage struct{}

func (ScriptStage) Name() string { return "script_generation" }

func (ScriptStage) ValidateInput(actor string) error {
	_, err := ValidateActorName(actor)
	return err
}

func (ScriptStage) Prompt(actor string) (string, string) {
	return scriptSystemPrompt, renderScriptPrompt(actor)
}

func (ScriptStage) Parse(text string) (Script, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Script{}, NewError(ErrParse, "empty completion")
	}
	s := Script{
		Full:       text,
		WordCount:  len(strings.Fields(text)),
		YearStamps: len(yearPattern.FindAllString(text, -1)),
	}
	if m := titlePattern.FindString(text); m != "" {
		s.Title = m
	}
	hookIdx := strings.Index(text, "**HOOK**")
	bioIdx := strings.Index(text, "**BIO**")
	if hookIdx >= 0 && bioIdx > hookIdx {
		s.Hook = strings.TrimSpace(text[hookIdx+len("**HOOK**") : bioIdx])
		s.Bio = strings.TrimSpace(text[bioIdx+len("**BIO**"):])
	}
	return s, nil
}

func (ScriptStage) Validate(actor string, s Script) []string {
	var issues []string
	if s.WordCount < MinScriptWords {
		issues = append(issues, fmt.Sprintf("Word count too low: %d < %d", s.WordCount, MinScriptWords))
	} else if s.WordCount > MaxScriptWords {
		issues = append(issues, fmt.Sprintf("Word count too high: %d > %d", s.WordCount, MaxScriptWords))
	}
	for _, section := range requiredSections {
		if !strings.Contains(s.Full, "**"+section+"**") {
			issues = append(issues, "Missing required section: "+section)
		}
	}
	if !strings.Contains(s.Full, strings.Join(strings.Fields(actor), " ")) {
		issues = append(issues, "Actor name not found in script")
	}
	if s.YearStamps < MinYearStamps {
		issues = append(issues, fmt.Sprintf("Insufficient year stamps: %d < %d", s.YearStamps, MinYearStamps))
	} else if s.YearStamps > MaxYearStamps {
		issues = append(issues, fmt.Sprintf("Too many year stamps: %d > %d", s.YearStamps, MaxYearStamps))
	}
	if s.WordCount >= languageCheckMinWords {
		info := whatlanggo.Detect(s.Full)
		if info.IsReliable() && info.Lang != whatlanggo.Eng {
			issues = append(issues, "Script does not appear to be English")
		}
	}
	return issues
}

func (ScriptStage) EstimateTokens(_ string, text string) llm.TokenUsage {
	words := len(strings.Fields(text))
	return llm.TokenUsage{
		InputTokens:  scriptInputTokens,
		OutputTokens: int(math.Round(float64(words) * scriptTokensPerWord)),
	}
}
