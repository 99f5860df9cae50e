package models

import "strings"

// Role tags the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleHuman, RoleAssistant:
		return true
	}
	return false
}

// ContentKind discriminates the Content variants.
type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentParts ContentKind = "parts"
)

// Part types understood by vision-capable backends.
const (
	PartText     = "text"
	PartImageURL = "image_url"
)

// ImageURL points a vision backend at an image.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// Part is one element of a multi-part message body.
type Part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// TextPart returns a text part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// ImagePart returns an image_url part.
func ImagePart(url, detail string) Part {
	return Part{Type: PartImageURL, ImageURL: &ImageURL{URL: url, Detail: detail}}
}

func (p Part) equal(o Part) bool {
	if p.Type != o.Type || p.Text != o.Text {
		return false
	}
	if (p.ImageURL == nil) != (o.ImageURL == nil) {
		return false
	}
	return p.ImageURL == nil || *p.ImageURL == *o.ImageURL
}

// Content is either plain text or a list of parts.
type Content struct {
	Kind  ContentKind
	Text  string
	Parts []Part
}

// TextContent returns plain text content.
func TextContent(text string) Content {
	return Content{Kind: ContentText, Text: text}
}

// PartsContent returns structured content. A nil list is stored as empty.
func PartsContent(parts ...Part) Content {
	if parts == nil {
		parts = []Part{}
	}
	return Content{Kind: ContentParts, Parts: parts}
}

// IsParts reports whether c holds structured parts.
func (c Content) IsParts() bool {
	return c.Kind == ContentParts
}

// PlainText returns the text of c, joining text parts with newlines.
func (c Content) PlainText() string {
	if !c.IsParts() {
		return c.Text
	}
	var texts []string
	for _, p := range c.Parts {
		if p.Type == PartText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Equal compares two contents by variant and value.
func (c Content) Equal(o Content) bool {
	if c.IsParts() != o.IsParts() {
		return false
	}
	if !c.IsParts() {
		return c.Text == o.Text
	}
	if len(c.Parts) != len(o.Parts) {
		return false
	}
	for i := range c.Parts {
		if !c.Parts[i].equal(o.Parts[i]) {
			return false
		}
	}
	return true
}

// Message is a single role-tagged turn of a conversation.
type Message struct {
	Role    Role
	Content Content
}

// NewMessage builds a message from a role and content.
func NewMessage(role Role, content Content) Message {
	return Message{Role: role, Content: content}
}

// System returns a system message with text content.
func System(text string) Message { return NewMessage(RoleSystem, TextContent(text)) }

// Human returns a human message with text content.
func Human(text string) Message { return NewMessage(RoleHuman, TextContent(text)) }

// Assistant returns an assistant message with text content.
func Assistant(text string) Message { return NewMessage(RoleAssistant, TextContent(text)) }

// Equal compares role and content.
func (m Message) Equal(o Message) bool {
	return m.Role == o.Role && m.Content.Equal(o.Content)
}

// Conversation is the ordered dialogue history. It only ever grows by appending.
type Conversation []Message

// Clone returns a copy that shares no backing array with c.
func (c Conversation) Clone() Conversation {
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}

// Append returns a new conversation with msgs added; c is left untouched.
func (c Conversation) Append(msgs ...Message) Conversation {
	out := make(Conversation, 0, len(c)+len(msgs))
	out = append(out, c...)
	return append(out, msgs...)
}

// Last returns the final message, if any.
func (c Conversation) Last() (Message, bool) {
	if len(c) == 0 {
		return Message{}, false
	}
	return c[len(c)-1], true
}

// HasPrefix reports whether prefix matches the start of c message for message.
func (c Conversation) HasPrefix(prefix Conversation) bool {
	if len(prefix) > len(c) {
		return false
	}
	for i := range prefix {
		if !c[i].Equal(prefix[i]) {
			return false
		}
	}
	return true
}

// Equal compares two conversations message for message.
func (c Conversation) Equal(o Conversation) bool {
	return len(c) == len(o) && c.HasPrefix(o)
}
