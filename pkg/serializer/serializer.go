// Package serializer converts conversations to and from the canonical JSON
// text used both as fixture keys and as stored values.
//
// A conversation serializes to an array of {"role", "content"} objects. Text
// content is a JSON string; structured content is an array of parts. The
// encoding is deterministic, so equal conversations always produce the same
// bytes and can be used directly as exact-match keys.
package serializer

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/pario-ai/replay/pkg/models"
)

// ErrMalformed is returned when data does not describe a valid conversation.
var ErrMalformed = errors.New("malformed conversation data")

type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type wirePart struct {
	Type     string           `json:"type"`
	Text     *string          `json:"text,omitempty"`
	ImageURL *models.ImageURL `json:"image_url,omitempty"`
}

type wireMessageIn struct {
	Role    models.Role     `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Serialize returns the canonical key for conv.
func Serialize(conv models.Conversation) (string, error) {
	wire := make([]wireMessage, 0, len(conv))
	for i, m := range conv {
		if !m.Role.Valid() {
			return "", errors.Wrapf(ErrMalformed, "message %d: unknown role %q", i, m.Role)
		}
		content, err := encodeContent(m.Content)
		if err != nil {
			return "", errors.Wrapf(err, "message %d", i)
		}
		wire = append(wire, wireMessage{Role: string(m.Role), Content: content})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(wire); err != nil {
		return "", errors.Wrap(err, "encode conversation")
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

func encodeContent(c models.Content) (any, error) {
	if !c.IsParts() {
		return c.Text, nil
	}
	parts := make([]wirePart, 0, len(c.Parts))
	for j, p := range c.Parts {
		switch p.Type {
		case models.PartText:
			if p.ImageURL != nil {
				return nil, errors.Wrapf(ErrMalformed, "part %d: text part with image_url", j)
			}
			text := p.Text
			parts = append(parts, wirePart{Type: p.Type, Text: &text})
		case models.PartImageURL:
			if p.ImageURL == nil || p.ImageURL.URL == "" {
				return nil, errors.Wrapf(ErrMalformed, "part %d: image_url without url", j)
			}
			if p.Text != "" {
				return nil, errors.Wrapf(ErrMalformed, "part %d: image_url part with text", j)
			}
			img := *p.ImageURL
			parts = append(parts, wirePart{Type: p.Type, ImageURL: &img})
		default:
			return nil, errors.Wrapf(ErrMalformed, "part %d: unknown type %q", j, p.Type)
		}
	}
	return parts, nil
}

// Deserialize parses data produced by Serialize.
func Deserialize(data string) (models.Conversation, error) {
	if err := validate(data); err != nil {
		return nil, err
	}

	var wire []wireMessageIn
	if err := json.Unmarshal([]byte(data), &wire); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	conv := make(models.Conversation, 0, len(wire))
	for i, w := range wire {
		content, err := decodeContent(w.Content)
		if err != nil {
			return nil, errors.Wrapf(err, "message %d", i)
		}
		conv = append(conv, models.NewMessage(w.Role, content))
	}
	return conv, nil
}

func decodeContent(raw json.RawMessage) (models.Content, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return models.Content{}, errors.Wrap(ErrMalformed, err.Error())
		}
		return models.TextContent(text), nil
	}

	var wire []wirePart
	if err := json.Unmarshal(raw, &wire); err != nil {
		return models.Content{}, errors.Wrap(ErrMalformed, err.Error())
	}
	parts := make([]models.Part, 0, len(wire))
	for _, w := range wire {
		p := models.Part{Type: w.Type, ImageURL: w.ImageURL}
		if w.Text != nil {
			p.Text = *w.Text
		}
		parts = append(parts, p)
	}
	return models.PartsContent(parts...), nil
}
