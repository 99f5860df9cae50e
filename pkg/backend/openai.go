package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/pario-ai/replay/pkg/config"
	"github.com/pario-ai/replay/pkg/models"
)

const chatCompletionsPath = "/v1/chat/completions"

// OpenAI talks to an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	url         string
	apiKey      string
	model       string
	temperature *float64
	maxTokens   int
	maxRetries  int
	retryBase   time.Duration
	client      *http.Client
	logger      zerolog.Logger
}

// NewOpenAI creates an OpenAI backend from cfg.
func NewOpenAI(cfg config.BackendConfig, logger zerolog.Logger) *OpenAI {
	u := cfg.URL
	if u == "" {
		u = "https://api.openai.com"
	}
	return &OpenAI{
		url:         u,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		maxRetries:  cfg.MaxRetries,
		retryBase:   time.Second,
		client:      &http.Client{Timeout: cfg.Timeout},
		logger:      logger.With().Str("backend", "openai").Logger(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// chatPart always carries "text" on text parts, even when empty.
type chatPart struct {
	Type     string           `json:"type"`
	Text     *string          `json:"text,omitempty"`
	ImageURL *models.ImageURL `json:"image_url,omitempty"`
}

func chatParts(parts []models.Part) []chatPart {
	out := make([]chatPart, 0, len(parts))
	for _, p := range parts {
		cp := chatPart{Type: p.Type}
		if p.Type == models.PartText {
			text := p.Text
			cp.Text = &text
		} else {
			cp.ImageURL = p.ImageURL
		}
		out = append(out, cp)
	}
	return out
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *models.Usage `json:"usage,omitempty"`
}

// upstreamResult holds the response from a single upstream attempt.
type upstreamResult struct {
	statusCode int
	body       []byte
}

// Invoke implements Backend.
func (o *OpenAI) Invoke(ctx context.Context, messages []models.Message) (models.Message, error) {
	body, err := json.Marshal(o.buildRequest(messages))
	if err != nil {
		return models.Message{}, errors.Wrap(err, "encode chat request")
	}

	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}

	var result *upstreamResult
	b := retry.WithMaxRetries(uint64(max(o.maxRetries, 0)), retry.NewExponential(o.retryBase))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		res, err := o.doUpstreamRequest(ctx, headers, body)
		if err != nil {
			o.logger.Warn().Err(err).Msg("upstream request failed, retrying")
			return retry.RetryableError(err)
		}
		if isRetryable(res.statusCode) {
			o.logger.Warn().Int("status", res.statusCode).Msg("upstream returned retryable status")
			return retry.RetryableError(errors.Errorf("upstream returned %d: %s", res.statusCode, truncate(res.body)))
		}
		if res.statusCode != http.StatusOK {
			return errors.Errorf("upstream returned %d: %s", res.statusCode, truncate(res.body))
		}
		result = res
		return nil
	})
	if err != nil {
		return models.Message{}, errors.Wrap(err, "chat completion")
	}

	var resp chatResponse
	if err := json.Unmarshal(result.body, &resp); err != nil {
		return models.Message{}, errors.Wrap(err, "decode chat response")
	}
	if len(resp.Choices) == 0 {
		return models.Message{}, errors.New("chat completion returned no choices")
	}
	return models.Assistant(resp.Choices[0].Message.Content), nil
}

func (o *OpenAI) buildRequest(messages []models.Message) chatRequest {
	req := chatRequest{Model: o.model, Messages: make([]chatMessage, 0, len(messages))}
	if o.temperature != nil {
		t := *o.temperature
		req.Temperature = &t
	}
	if o.maxTokens > 0 {
		n := o.maxTokens
		req.MaxTokens = &n
	}
	for _, m := range messages {
		var content any = m.Content.Text
		if m.Content.IsParts() {
			content = chatParts(m.Content.Parts)
		}
		req.Messages = append(req.Messages, chatMessage{Role: openAIRole(m.Role), Content: content})
	}
	return req
}

func openAIRole(r models.Role) string {
	if r == models.RoleHuman {
		return "user"
	}
	return string(r)
}

// doUpstreamRequest sends one request to the completions endpoint.
func (o *OpenAI) doUpstreamRequest(ctx context.Context, headers map[string]string, body []byte) (*upstreamResult, error) {
	target, err := url.Parse(o.url)
	if err != nil {
		return nil, errors.Wrap(err, "invalid provider URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String()+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	return &upstreamResult{statusCode: resp.StatusCode, body: respBody}, nil
}

// isRetryable returns true if the status code warrants another attempt.
func isRetryable(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

func truncate(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
