package generation

import (
	"strings"

	"github.com/MimeLyc/bioreel/internal/llm"
)

// Price is a per-million-token rate in USD.
type Price struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

var priceTable = map[string]Price{
	"o3":          {InputPerMillion: 2.0, OutputPerMillion: 8.0},
	"o3-mini":     {InputPerMillion: 1.0, OutputPerMillion: 4.0},
	"o4-mini":     {InputPerMillion: 1.1, OutputPerMillion: 4.4},
	"gpt-4o":      {InputPerMillion: 2.5, OutputPerMillion: 10.0},
	"gpt-4-turbo": {InputPerMillion: 10.0, OutputPerMillion: 30.0},
}

const defaultPriceKey = "o3"

// PriceFor resolves model to the entry with the longest matching prefix.
// Unknown models are billed at the o3 rate.
func PriceFor(model string) Price {
	m := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	best := ""
	for prefix := range priceTable {
		if strings.HasPrefix(m, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		best = defaultPriceKey
	}
	return priceTable[best]
}

// Cost prices usage for model. Reasoning tokens are already part of the
// output count reported by the provider.
func Cost(model string, usage llm.TokenUsage) float64 {
	p := PriceFor(model)
	return float64(usage.InputTokens)/1_000_000*p.InputPerMillion +
		float64(usage.OutputTokens)/1_000_000*p.OutputPerMillion
}
