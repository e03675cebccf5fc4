package llm

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/httpcore"
)

const openRouterURL = "https://openrouter.ai/api/v1/chat/completions"

// OpenRouter is the first provider in the cascade.
type OpenRouter struct {
	deps Deps
	url  string
}

// NewOpenRouter builds the OpenRouter provider.
func NewOpenRouter(deps Deps) *OpenRouter {
	return &OpenRouter{deps: deps, url: openRouterURL}
}

func (p *OpenRouter) Name() string     { return "openrouter" }
func (p *OpenRouter) Configured() bool { return p.deps.Cfg.OpenRouterAPIKey != "" }

func (p *OpenRouter) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	params = p.deps.params(params)
	payload := map[string]any{
		"model":       p.deps.Cfg.OpenRouterModel,
		"messages":    []map[string]string{{"role": "user", "content": prompt}},
		"temperature": params.Temperature,
		"max_tokens":  params.MaxTokens,
	}
	if params.JSONMode {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	resp, err := p.deps.HTTP.Do(ctx, httpcore.Request{
		Method: http.MethodPost,
		URL:    p.url,
		Headers: map[string]string{
			"Authorization": "Bearer " + p.deps.Cfg.OpenRouterAPIKey,
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

// chatCompletionContent extracts choices[0].message.content from an
// OpenAI-compatible response. Shared by OpenRouter and HuggingFace.
func chatCompletionContent(provider string, body []byte) (string, error) {
	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", errkind.Wrap(errkind.ProviderError, err, provider+" returned malformed JSON")
	}
	if len(decoded.Choices) == 0 || decoded.Choices[0].Message.Content == "" {
		return "", errkind.New(errkind.ProviderError, "%s returned empty content", provider)
	}
	return decoded.Choices[0].Message.Content, nil
}
