package llm

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/riskradar/riskradar/pkg/httpcore"
)

const huggingFaceURL = "https://router.huggingface.co/v1/chat/completions"

// HuggingFace is the second provider in the cascade, via the
// OpenAI-compatible inference router.
type HuggingFace struct {
	deps Deps
	url  string
}

// NewHuggingFace builds the HuggingFace provider.
func NewHuggingFace(deps Deps) *HuggingFace {
	return &HuggingFace{deps: deps, url: huggingFaceURL}
}

func (p *HuggingFace) Name() string     { return "huggingface" }
func (p *HuggingFace) Configured() bool { return p.deps.Cfg.HuggingFaceToken != "" }

func (p *HuggingFace) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	params = p.deps.params(params)
	body, err := json.Marshal(map[string]any{
		"model":       p.deps.Cfg.HuggingFaceModel,
		"messages":    []map[string]string{{"role": "user", "content": prompt}},
		"temperature": params.Temperature,
		"max_tokens":  params.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	resp, err := p.deps.HTTP.Do(ctx, httpcore.Request{
		Method: http.MethodPost,
		URL:    p.url,
		Headers: map[string]string{
			"Authorization": "Bearer " + p.deps.Cfg.HuggingFaceToken,
			"Content-Type":  "application/json",
		},
		Body:    body,
		Timeout: p.deps.Cfg.RequestTimeout,
	})
	if err != nil {
		return "", err
	}
	return chatCompletionContent(p.Name(), resp.Body)
}
