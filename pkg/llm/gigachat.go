package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/httpcore"
)

const (
	gigaChatOAuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	gigaChatAPIURL   = "https://gigachat.devices.sberbank.ru/api/v1/chat/completions"
	gigaChatModel    = "GigaChat"
)

// GigaChat is the third provider in the cascade. Auth is two-step: the
// long-lived auth key is exchanged for a ~30 minute access token, cached
// until shortly before expiry.
type GigaChat struct {
	deps     Deps
	oauthURL string
	apiURL   string

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewGigaChat builds the GigaChat provider.
func NewGigaChat(deps Deps) *GigaChat {
	return &GigaChat{deps: deps, oauthURL: gigaChatOAuthURL, apiURL: gigaChatAPIURL}
}

func (p *GigaChat) Name() string     { return "gigachat" }
func (p *GigaChat) Configured() bool { return p.deps.Cfg.GigaChatAuthKey != "" }

func (p *GigaChat) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	token, err := p.token(ctx)
	if err != nil {
		return "", err
	}

	params = p.deps.params(params)
	body, err := json.Marshal(map[string]any{
		"model":       gigaChatModel,
		"messages":    []map[string]string{{"role": "user", "content": prompt}},
		"temperature": params.Temperature,
		"max_tokens":  params.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	resp, err := p.deps.HTTP.Do(ctx, httpcore.Request{
		Method: http.MethodPost,
		URL:    p.apiURL,
		Headers: map[string]string{
			"Authorization": "Bearer " + token,
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

// token returns a cached access token, refreshing it when less than a
// minute of validity remains.
func (p *GigaChat) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accessToken != "" && time.Until(p.expiresAt) > time.Minute {
		return p.accessToken, nil
	}

	form := url.Values{"scope": {p.deps.Cfg.GigaChatScope}}
	resp, err := p.deps.HTTP.Do(ctx, httpcore.Request{
		Method: http.MethodPost,
		URL:    p.oauthURL,
		Headers: map[string]string{
			"Authorization": "Basic " + p.deps.Cfg.GigaChatAuthKey,
			"Content-Type":  "application/x-www-form-urlencoded",
			"RqUID":         uuid.NewString(),
		},
		Body:    []byte(form.Encode()),
		Timeout: p.deps.Cfg.RequestTimeout,
	})
	if err != nil {
		return "", err
	}

	var decoded struct {
		AccessToken string `json:"access_token"`
		ExpiresAt   int64  `json:"expires_at"` // unix milliseconds
	}
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return "", errkind.Wrap(errkind.ProviderError, err, "gigachat oauth returned malformed JSON")
	}
	if decoded.AccessToken == "" {
		return "", errkind.New(errkind.ProviderError, "gigachat oauth returned no access token")
	}

	p.accessToken = decoded.AccessToken
	p.expiresAt = time.UnixMilli(decoded.ExpiresAt)
	if decoded.ExpiresAt == 0 {
		p.expiresAt = time.Now().Add(25 * time.Minute)
	}
	return p.accessToken, nil
}
