package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/riskradar/riskradar/pkg/errkind"
)

// Meta describes how a generation was served.
type Meta struct {
	Provider      string        `json:"provider"`
	FallbackDepth int           `json:"fallback_depth"` // 0 = first configured provider succeeded
	Latency       time.Duration `json:"latency"`
	Repaired      bool          `json:"repaired"` // JSON mode needed the repair re-prompt
}

// Cascade tries providers in order until one produces usable output.
type Cascade struct {
	providers []Provider
	log       *slog.Logger
}

// NewCascade builds the production cascade in its fixed fallback order.
func NewCascade(deps Deps) *Cascade {
	return NewCascadeWith(
		NewOpenRouter(deps),
		NewHuggingFace(deps),
		NewGigaChat(deps),
		NewYandexGPT(deps),
	)
}

// NewCascadeWith wires an explicit provider list, used by tests.
func NewCascadeWith(providers ...Provider) *Cascade {
	return &Cascade{
		providers: providers,
		log:       slog.With("component", "llm"),
	}
}

// ConfiguredCount reports how many providers would actually be tried.
func (c *Cascade) ConfiguredCount() int {
	n := 0
	for _, p := range c.providers {
		if p.Configured() {
			n++
		}
	}
	return n
}

// GenerateText returns the first provider's successful completion.
// Unconfigured providers are skipped without counting toward fallback
// depth.
func (c *Cascade) GenerateText(ctx context.Context, prompt string, params Params) (string, Meta, error) {
	depth := 0
	for _, p := range c.providers {
		if !p.Configured() {
			continue
		}
		start := time.Now()
		content, err := p.Generate(ctx, prompt, params)
		if err == nil && strings.TrimSpace(content) != "" {
			meta := Meta{Provider: p.Name(), FallbackDepth: depth, Latency: time.Since(start)}
			c.log.Info("LLM generation served",
				"provider", meta.Provider, "fallback_depth", meta.FallbackDepth, "latency_ms", meta.Latency.Milliseconds())
			return content, meta, nil
		}
		if ctx.Err() != nil {
			return "", Meta{}, errkind.Wrap(errkind.Cancelled, ctx.Err(), "llm generation cancelled")
		}
		c.log.Warn("LLM provider failed, falling through",
			"provider", p.Name(), "fallback_depth", depth, "error", err)
		depth++
	}
	return "", Meta{}, errkind.New(errkind.LLMUnavailable, "all configured LLM providers failed (%d tried)", depth)
}

// GenerateJSON generates, extracts, and unmarshals JSON into target, then
// runs validate. One repair re-prompt is allowed per provider before the
// cascade falls through.
func (c *Cascade) GenerateJSON(ctx context.Context, prompt string, params Params, target any, validate func() error) (Meta, error) {
	params.JSONMode = true
	depth := 0
	for _, p := range c.providers {
		if !p.Configured() {
			continue
		}
		start := time.Now()

		meta, err := c.tryProviderJSON(ctx, p, prompt, params, target, validate)
		if err == nil {
			meta.FallbackDepth = depth
			meta.Latency = time.Since(start)
			c.log.Info("LLM JSON generation served",
				"provider", meta.Provider, "fallback_depth", meta.FallbackDepth,
				"repaired", meta.Repaired, "latency_ms", meta.Latency.Milliseconds())
			return meta, nil
		}
		if ctx.Err() != nil {
			return Meta{}, errkind.Wrap(errkind.Cancelled, ctx.Err(), "llm generation cancelled")
		}
		c.log.Warn("LLM provider failed JSON mode, falling through",
			"provider", p.Name(), "fallback_depth", depth, "error", err)
		depth++
	}
	return Meta{}, errkind.New(errkind.LLMUnavailable, "all configured LLM providers failed (%d tried)", depth)
}

func (c *Cascade) tryProviderJSON(ctx context.Context, p Provider, prompt string, params Params, target any, validate func() error) (Meta, error) {
	content, err := p.Generate(ctx, prompt, params)
	if err != nil {
		return Meta{}, err
	}
	if err := decodeInto(content, target, validate); err == nil {
		return Meta{Provider: p.Name()}, nil
	}

	// Single repair attempt: strict re-prompt against the same provider.
	repairPrompt := prompt + "\n\nYour previous answer was not valid JSON. Return ONLY a valid JSON object matching the requested schema, with no prose and no code fences."
	content, err = p.Generate(ctx, repairPrompt, params)
	if err != nil {
		return Meta{}, err
	}
	if err := decodeInto(content, target, validate); err != nil {
		return Meta{}, errkind.Wrap(errkind.SchemaMismatch, err, p.Name()+" output failed schema validation after repair")
	}
	return Meta{Provider: p.Name(), Repaired: true}, nil
}

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractJSON pulls a JSON object out of LLM output: fenced block first,
// then the widest brace span.
func ExtractJSON(content string) string {
	if idx := strings.Index(content, "```json"); idx >= 0 {
		rest := content[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if idx := strings.Index(content, "```"); idx >= 0 {
		rest := content[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if match := jsonObjectRe.FindString(content); match != "" {
		return match
	}
	return strings.TrimSpace(content)
}

func decodeInto(content string, target any, validate func() error) error {
	if err := json.Unmarshal([]byte(ExtractJSON(content)), target); err != nil {
		return err
	}
	if validate != nil {
		return validate()
	}
	return nil
}
