package model

import "fmt"

// ProviderName identifies an AI vendor
type ProviderName string

const (
	ProviderQwen   ProviderName = "qwen"
	ProviderSpark  ProviderName = "spark"
	ProviderOpenAI ProviderName = "openai"

	// DefaultProvider is the fallback target and the provider used when none is configured
	DefaultProvider = ProviderQwen
)

// KnownProviders lists every supported provider in display order
var KnownProviders = []ProviderName{ProviderQwen, ProviderSpark, ProviderOpenAI}

// ParseProviderName validates a provider name
func ParseProviderName(name string) (ProviderName, error) {
	for _, p := range KnownProviders {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown AI provider %q (expected qwen, spark or openai)", name)
}

// CostEstimate is the approximate price of a request
type CostEstimate struct {
	Provider ProviderName `json:"provider"`
	Cost     float64      `json:"cost"`
	Currency string       `json:"currency"`
}
