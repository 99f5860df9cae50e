package prompt

import "github.com/pario-ai/replay/pkg/models"

// DefaultImageDetail is the detail level sent with image URLs when none is set.
const DefaultImageDetail = "low"

// Renderer is anything that can become the content of a human message.
type Renderer interface {
	Content() models.Content
}

// Text is a plain text prompt.
type Text string

// Content renders t as text content.
func (t Text) Content() models.Content {
	return models.TextContent(string(t))
}

// Prompt is a text prompt optionally accompanied by images for vision backends.
type Prompt struct {
	Text      string
	ImageURLs []string
	Detail    string
}

// New builds a Prompt with the given image URLs.
func New(text string, imageURLs ...string) *Prompt {
	return &Prompt{Text: text, ImageURLs: imageURLs}
}

// Content renders p as plain text when it carries no images and as a text
// part followed by one image part per URL otherwise.
func (p *Prompt) Content() models.Content {
	if len(p.ImageURLs) == 0 {
		return models.TextContent(p.Text)
	}
	detail := p.Detail
	if detail == "" {
		detail = DefaultImageDetail
	}
	parts := make([]models.Part, 0, len(p.ImageURLs)+1)
	parts = append(parts, models.TextPart(p.Text))
	for _, u := range p.ImageURLs {
		parts = append(parts, models.ImagePart(u, detail))
	}
	return models.PartsContent(parts...)
}
