// Package llm implements the text-generation provider cascade. Providers
// are tried in a fixed order; unconfigured providers are skipped; any
// failure falls through to the next provider. Exhaustion surfaces as
// LLMUnavailable.
package llm

import (
	"context"

	"github.com/riskradar/riskradar/pkg/config"
	"github.com/riskradar/riskradar/pkg/httpcore"
)

// Params tunes one generation call.
type Params struct {
	Temperature float64
	MaxTokens   int
	// JSONMode asks the provider for machine-parseable output where the API
	// supports it; the cascade still validates and repairs regardless.
	JSONMode bool
}

// Provider is one backend in the cascade.
type Provider interface {
	Name() string
	Configured() bool
	Generate(ctx context.Context, prompt string, params Params) (string, error)
}

// Deps bundles what every provider is built from.
type Deps struct {
	HTTP *httpcore.Client
	Cfg  *config.LLMConfig
}

func (d Deps) params(p Params) Params {
	if p.MaxTokens <= 0 {
		p.MaxTokens = d.Cfg.MaxTokens
	}
	return p
}
