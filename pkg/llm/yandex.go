package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/httpcore"
)

const yandexURL = "https://llm.api.cloud.yandex.net/foundationModels/v1/completion"

// YandexGPT is the last provider in the cascade.
type YandexGPT struct {
	deps Deps
	url  string
}

// NewYandexGPT builds the YandexGPT provider.
func NewYandexGPT(deps Deps) *YandexGPT {
	return &YandexGPT{deps: deps, url: yandexURL}
}

func (p *YandexGPT) Name() string { return "yandexgpt" }

func (p *YandexGPT) Configured() bool {
	return p.deps.Cfg.YandexAPIKey != "" && p.deps.Cfg.YandexFolderID != ""
}

func (p *YandexGPT) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	params = p.deps.params(params)
	body, err := json.Marshal(map[string]any{
		"modelUri": fmt.Sprintf("gpt://%s/yandexgpt/latest", p.deps.Cfg.YandexFolderID),
		"completionOptions": map[string]any{
			"temperature": params.Temperature,
			"maxTokens":   params.MaxTokens,
		},
		"messages": []map[string]string{{"role": "user", "text": prompt}},
	})
	if err != nil {
		return "", err
	}

	resp, err := p.deps.HTTP.Do(ctx, httpcore.Request{
		Method: http.MethodPost,
		URL:    p.url,
		Headers: map[string]string{
			"Authorization": "Api-Key " + p.deps.Cfg.YandexAPIKey,
			"Content-Type":  "application/json",
		},
		Body:    body,
		Timeout: p.deps.Cfg.RequestTimeout,
	})
	if err != nil {
		return "", err
	}

	var decoded struct {
		Result struct {
			Alternatives []struct {
				Message struct {
					Text string `json:"text"`
				} `json:"message"`
			} `json:"alternatives"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return "", errkind.Wrap(errkind.ProviderError, err, "yandexgpt returned malformed JSON")
	}
	if len(decoded.Result.Alternatives) == 0 || decoded.Result.Alternatives[0].Message.Text == "" {
		return "", errkind.New(errkind.ProviderError, "yandexgpt returned empty content")
	}
	return decoded.Result.Alternatives[0].Message.Text, nil
}
