package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MimeLyc/bioreel/internal/llm"
)

const (
	musicPromptCount   = 3
	minMusicComponents = 4
	musicInputTokens   = 2000
	musicOutputTokens  = 500
)

// MusicPrompt is one Suno custom-mode prompt.
type MusicPrompt struct {
	SunoPrompt string `json:"suno_prompt"`

	hasKey bool
}

func (m *MusicPrompt) UnmarshalJSON(data []byte) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	*m = MusicPrompt{}
	raw, ok := keys["suno_prompt"]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, &m.SunoPrompt); err != nil {
		return err
	}
	m.hasKey = true
	return nil
}

// MusicPlanStage proposes three soundtrack prompts for a script.
type MusicPlanStage struct{}

func (MusicPlanStage) Name() string { return "music_plan_generation" }

func (MusicPlanStage) ValidateInput(script string) error {
	return validateScriptInput(script)
}

func (MusicPlanStage) Prompt(script string) (string, string) {
	return musicSystemPrompt, renderWithScript(musicPromptTemplate, script)
}

func (MusicPlanStage) Parse(text string) ([]MusicPrompt, error) {
	return ParseJSONArray[MusicPrompt](text)
}

func (MusicPlanStage) Validate(_ string, prompts []MusicPrompt) []string {
	var issues []string
	if len(prompts) != musicPromptCount {
		issues = append(issues, fmt.Sprintf("Expected %d prompts, got %d", musicPromptCount, len(prompts)))
	}
	for i, p := range prompts {
		n := i + 1
		if !p.hasKey && p.SunoPrompt == "" {
			issues = append(issues, fmt.Sprintf("Prompt %d missing 'suno_prompt' key", n))
			continue
		}
		if !strings.Contains(p.SunoPrompt, "|") {
			issues = append(issues, fmt.Sprintf("Prompt %d missing pipe separators", n))
		} else if len(strings.Split(p.SunoPrompt, "|")) < minMusicComponents {
			issues = append(issues, fmt.Sprintf("Prompt %d has insufficient components", n))
		}
		for _, tag := range []string{"[Intro]", "[Outro]"} {
			if !strings.Contains(p.SunoPrompt, tag) {
				issues = append(issues, fmt.Sprintf("Prompt %d missing %s", n, tag))
			}
		}
		if strings.Contains(p.SunoPrompt, "\n") {
			issues = append(issues, fmt.Sprintf("Prompt %d contains newline characters", n))
		}
	}
	return issues
}

func (MusicPlanStage) EstimateTokens(string, string) llm.TokenUsage {
	return llm.TokenUsage{InputTokens: musicInputTokens, OutputTokens: musicOutputTokens}
}
