package metrics

import (
	"fmt"
	"sync"
)

// CostCalculator derives the monetary cost of a request from its token usage.
//
// Example usage:
//
//	calc := metrics.NewPricingCalculator(map[string]metrics.Pricing{
//		"openai/gpt-4o": {InputPer1K: 0.0025, OutputPer1K: 0.01},
//	})
//	cost := calc.CalculateCost("openai", "gpt-4o", 1200, 300)
type CostCalculator interface {
	// CalculateCost returns the cost for a request
	CalculateCost(provider, model string, inputTokens, outputTokens int64) Cost

	// GetPricing returns pricing info (for display/debugging)
	// Returns inputPer1K, outputPer1K prices and ok=true if pricing exists
	GetPricing(provider, model string) (inputPer1K, outputPer1K float64, ok bool)
}

// Cost represents the calculated cost of an AI request
type Cost struct {
	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`
	TotalCost  float64 `json:"total_cost"`
	Currency   string  `json:"currency"`
}

// Pricing is the price of one thousand tokens in USD.
type Pricing struct {
	InputPer1K  float64 `json:"input_per_1k" yaml:"input_per_1k" mapstructure:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k" yaml:"output_per_1k" mapstructure:"output_per_1k"`
}

// NullCostCalculator is a no-op cost calculator that returns zero costs.
// Use this when no pricing configuration is available.
type NullCostCalculator struct{}

// NewNullCostCalculator creates a new NullCostCalculator
func NewNullCostCalculator() *NullCostCalculator {
	return &NullCostCalculator{}
}

// CalculateCost returns zero cost
func (n *NullCostCalculator) CalculateCost(provider, model string, inputTokens, outputTokens int64) Cost {
	return Cost{Currency: "USD"}
}

// GetPricing returns ok=false indicating no pricing is available
func (n *NullCostCalculator) GetPricing(provider, model string) (inputPer1K, outputPer1K float64, ok bool) {
	return 0, 0, false
}

// PricingCalculator prices requests from a static table.
//
// Keys are either "provider/model" or a bare "provider", the latter acting as
// the provider-wide default. Unknown pairs cost nothing.
type PricingCalculator struct {
	mu     sync.RWMutex
	prices map[string]Pricing
}

// NewPricingCalculator creates a calculator from a pricing table.
func NewPricingCalculator(prices map[string]Pricing) *PricingCalculator {
	p := &PricingCalculator{prices: make(map[string]Pricing, len(prices))}
	for k, v := range prices {
		p.prices[k] = v
	}
	return p
}

// SetPricing adds or replaces the price of a provider/model pair.
func (p *PricingCalculator) SetPricing(provider, model string, pricing Pricing) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[pricingKey(provider, model)] = pricing
}

// GetPricing returns the price of provider/model, falling back to the
// provider-wide entry.
func (p *PricingCalculator) GetPricing(provider, model string) (inputPer1K, outputPer1K float64, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if pr, found := p.prices[pricingKey(provider, model)]; found {
		return pr.InputPer1K, pr.OutputPer1K, true
	}
	if pr, found := p.prices[provider]; found {
		return pr.InputPer1K, pr.OutputPer1K, true
	}
	return 0, 0, false
}

// CalculateCost prices a request by its prompt and completion tokens.
func (p *PricingCalculator) CalculateCost(provider, model string, inputTokens, outputTokens int64) Cost {
	in, out, ok := p.GetPricing(provider, model)
	if !ok {
		return Cost{Currency: "USD"}
	}
	inputCost := float64(inputTokens) / 1000 * in
	outputCost := float64(outputTokens) / 1000 * out
	return Cost{
		InputCost:  inputCost,
		OutputCost: outputCost,
		TotalCost:  inputCost + outputCost,
		Currency:   "USD",
	}
}

func pricingKey(provider, model string) string {
	return fmt.Sprintf("%s/%s", provider, model)
}
