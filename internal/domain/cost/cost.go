// Package cost turns provider token usage into money. Everything here is pure.
package cost

import (
	"math"

	"github.com/medforge/contentgen/internal/domain/model"
)

// Precision is the number of decimal places every cost is rounded to.
const Precision = 6

const tokensPerMillion = 1_000_000

// Price is a per-model price table entry, in currency units per million tokens.
type Price struct {
	InputPerMillion  float64 `yaml:"input_per_million"  json:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million" json:"output_per_million"`
	Free             bool    `yaml:"free"               json:"free"`
}

// Valid reports whether the price can be used for billing.
func (p Price) Valid() bool {
	if p.Free {
		return true
	}
	return p.InputPerMillion >= 0 && p.OutputPerMillion >= 0 &&
		!math.IsNaN(p.InputPerMillion) && !math.IsNaN(p.OutputPerMillion)
}

// PerMillion prices usage against a per-million-token table.
func PerMillion(usage model.TokenUsage, price Price) model.CostBreakdown {
	in := Round(float64(clampTokens(usage.InputTokens)) * price.InputPerMillion / tokensPerMillion)
	out := Round(float64(clampTokens(usage.OutputTokens)) * price.OutputPerMillion / tokensPerMillion)
	return model.CostBreakdown{
		InputCost:  in,
		OutputCost: out,
		TotalCost:  Round(in + out),
	}
}

// Free is the pricing model for zero-cost tiers; usage is ignored.
func Free(model.TokenUsage) model.CostBreakdown {
	return model.CostBreakdown{}
}

// Compute dispatches to Free or PerMillion based on the price entry.
func Compute(usage model.TokenUsage, price Price) model.CostBreakdown {
	if price.Free {
		return Free(usage)
	}
	return PerMillion(usage, price)
}

// Round rounds v to Precision decimal places.
func Round(v float64) float64 {
	scale := math.Pow10(Precision)
	return math.Round(v*scale) / scale
}

// Micros converts a cost to integer millionths for counters.
func Micros(v float64) int64 {
	return int64(math.Round(v * 1e6))
}

func clampTokens(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
