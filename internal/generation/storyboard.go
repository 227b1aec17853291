package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MimeLyc/bioreel/internal/llm"
)

const (
	MinShots               = 45
	minCoverageRatio       = 0.8
	storyboardInputTokens  = 3000
	storyboardOutputTokens = 10000
)

var shotFields = []string{"shot", "script", "image_search", "flux_prompt", "ai_video_prompt", "youtube_search"}

// Shot is one storyboard row.
type Shot struct {
	Number        int    `json:"shot"`
	Script        string `json:"script"`
	ImageSearch   string `json:"image_search"`
	FluxPrompt    string `json:"flux_prompt"`
	AIVideoPrompt string `json:"ai_video_prompt"`
	YouTubeSearch string `json:"youtube_search"`

	// missing lists required keys absent from the decoded object.
	missing []string
}

func (s *Shot) UnmarshalJSON(data []byte) error {
	type plain Shot
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	*s = Shot(p)
	s.missing = nil
	for _, f := range shotFields {
		if _, ok := keys[f]; !ok {
			s.missing = append(s.missing, f)
		}
	}
	return nil
}

// StoryboardStage splits a script into shots.
type StoryboardStage struct {
	// StrictCoverage adds an exact whitespace-normalized coverage check.
	StrictCoverage bool
}

func (StoryboardStage) Name() string { return "storyboard_generation" }

func (StoryboardStage) ValidateInput(script string) error {
	return validateScriptInput(script)
}

func (StoryboardStage) Prompt(script string) (string, string) {
	return storyboardSystemPrompt, renderWithScript(storyboardPromptTemplate, script)
}

func (StoryboardStage) Parse(text string) ([]Shot, error) {
	return ParseJSONArray[Shot](text)
}

func (st StoryboardStage) Validate(script string, shots []Shot) []string {
	var issues []string
	if len(shots) < MinShots {
		issues = append(issues, fmt.Sprintf("Insufficient shots: %d < %d", len(shots), MinShots))
	}
	for i, shot := range shots {
		for _, f := range shot.missing {
			issues = append(issues, fmt.Sprintf("Shot %d missing field: %s", i+1, f))
		}
	}
	for i, shot := range shots {
		if shot.Number != i+1 {
			issues = append(issues, fmt.Sprintf("Shot numbering error at position %d", i+1))
		}
	}

	excerpts := make([]string, len(shots))
	for i, shot := range shots {
		excerpts[i] = shot.Script
	}
	combined := strings.Join(excerpts, " ")
	if float64(len(combined)) < float64(len(script))*minCoverageRatio {
		issues = append(issues, "Script coverage appears incomplete")
	}
	if st.StrictCoverage && normalizeSpace(combined) != normalizeSpace(script) {
		issues = append(issues, "Script coverage is not exact")
	}
	return issues
}

func (StoryboardStage) EstimateTokens(string, string) llm.TokenUsage {
	return llm.TokenUsage{InputTokens: storyboardInputTokens, OutputTokens: storyboardOutputTokens}
}

func (StoryboardStage) Extras(_ string, shots []Shot) map[string]any {
	return map[string]any{"shots": len(shots)}
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
