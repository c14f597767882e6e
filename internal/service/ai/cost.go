package ai

import "github.com/Taichi-iskw/clipquiz/internal/model"

type rate struct {
	perMillion float64
	currency   string
}

// rates per one million tokens
var costTable = map[model.ProviderName]rate{
	model.ProviderQwen:   {perMillion: 2, currency: "CNY"},
	model.ProviderSpark:  {perMillion: 10, currency: "CNY"},
	model.ProviderOpenAI: {perMillion: 2, currency: "USD"},
}

// EstimateCostFor prices a token count for a provider. Unknown providers use the default rate.
func EstimateCostFor(name model.ProviderName, tokens int) model.CostEstimate {
	r, ok := costTable[name]
	if !ok {
		r = costTable[model.DefaultProvider]
	}
	if tokens < 0 {
		tokens = 0
	}

	return model.CostEstimate{
		Provider: name,
		Cost:     float64(tokens) * r.perMillion / 1_000_000,
		Currency: r.currency,
	}
}
