// Package cost turns extraction token usage into estimated USD so each
// committed run carries what it cost to produce.
package cost

import (
	"go.uber.org/zap"

	"github.com/talent-ops/intake-cli/internal/model"
)

// ModelRate holds per-model token pricing in USD per million tokens.
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// DefaultRates covers the models the extractor is configured with out of the
// box. Config can override or extend the table.
func DefaultRates() map[string]ModelRate {
	return map[string]ModelRate{
		"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
	}
}

// Calculator estimates extraction cost from a rate table.
type Calculator struct {
	rates map[string]ModelRate
}

// New creates a calculator. A nil rate table falls back to DefaultRates.
func New(rates map[string]ModelRate) *Calculator {
	if len(rates) == 0 {
		rates = DefaultRates()
	}
	return &Calculator{rates: rates}
}

// Estimate returns the USD cost of usage under the given model, or 0 for
// models missing from the rate table.
func (c *Calculator) Estimate(modelID string, u model.TokenUsage) float64 {
	rate, ok := c.rates[modelID]
	if !ok {
		return 0
	}
	return (float64(u.PromptTokens)/1e6)*rate.Input + (float64(u.CompletionTokens)/1e6)*rate.Output
}

// Log emits a structured cost-attribution line for one extraction call.
func (c *Calculator) Log(modelID string, u model.TokenUsage) {
	zap.L().Info("cost attribution",
		zap.String("model", modelID),
		zap.Int64("prompt_tokens", u.PromptTokens),
		zap.Int64("completion_tokens", u.CompletionTokens),
		zap.Float64("estimated_cost_usd", c.Estimate(modelID, u)),
	)
}
