package backend

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"

	"github.com/pario-ai/replay/pkg/config"
	"github.com/pario-ai/replay/pkg/models"
)

// Anthropic answers through the Anthropic Messages API. Retries are left to
// the SDK.
type Anthropic struct {
	client      anthropic.Client
	model       anthropic.Model
	maxTokens   int64
	temperature *float64
}

// NewAnthropic creates an Anthropic backend from cfg.
func NewAnthropic(cfg config.BackendConfig) *Anthropic {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(max(cfg.MaxRetries, 0)),
	}
	if cfg.URL != "" {
		opts = append(opts, option.WithBaseURL(cfg.URL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Anthropic{
		client:      anthropic.NewClient(opts...),
		model:       anthropic.Model(cfg.Model),
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}
}

// Invoke implements Backend.
func (a *Anthropic) Invoke(ctx context.Context, messages []models.Message) (models.Message, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
	}
	if a.temperature != nil {
		params.Temperature = anthropic.Float(*a.temperature)
	}

	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content.PlainText()})
		case models.RoleHuman:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(contentBlocks(m.Content)...))
		case models.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(contentBlocks(m.Content)...))
		}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return models.Message{}, errors.Wrap(err, "anthropic messages")
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return models.Assistant(sb.String()), nil
}

func contentBlocks(c models.Content) []anthropic.ContentBlockParamUnion {
	if !c.IsParts() {
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(c.Text)}
	}
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(c.Parts))
	for _, p := range c.Parts {
		switch p.Type {
		case models.PartText:
			blocks = append(blocks, anthropic.NewTextBlock(p.Text))
		case models.PartImageURL:
			if p.ImageURL == nil {
				continue
			}
			if mediaType, data, ok := parseDataURL(p.ImageURL.URL); ok {
				blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, data))
				continue
			}
			blocks = append(blocks, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: p.ImageURL.URL}))
		}
	}
	return blocks
}

// parseDataURL splits "data:<media type>;base64,<data>".
func parseDataURL(u string) (mediaType, data string, ok bool) {
	rest, found := strings.CutPrefix(u, "data:")
	if !found {
		return "", "", false
	}
	meta, data, found := strings.Cut(rest, ",")
	if !found {
		return "", "", false
	}
	mediaType, found = strings.CutSuffix(meta, ";base64")
	if !found || mediaType == "" {
		return "", "", false
	}
	return mediaType, data, true
}
