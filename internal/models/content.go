package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Content part types.
const (
	PartText     = "text"
	PartImageURL = "image_url"
)

var errInvalidContent = errors.New("invalid message content")

// ImageURL points at an image, usually a base64 data URL.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// ContentPart is one typed element of multimodal content.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

// ImagePart builds an image_url content part.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: PartImageURL, ImageURL: &ImageURL{URL: url}}
}

// Content holds either plain text or a list of typed parts. The zero value is
// empty plain text.
type Content struct {
	text  string
	parts []ContentPart
}

// TextContent wraps plain text.
func TextContent(text string) Content {
	return Content{text: text}
}

// MultimodalContent wraps a list of parts.
func MultimodalContent(parts ...ContentPart) Content {
	if parts == nil {
		parts = []ContentPart{}
	}
	return Content{parts: parts}
}

// IsMultimodal reports whether the content is a parts list.
func (c Content) IsMultimodal() bool {
	return c.parts != nil
}

// Text returns the plain text, or the first text part of multimodal content.
func (c Content) Text() string {
	if !c.IsMultimodal() {
		return c.text
	}
	for _, p := range c.parts {
		if p.Type == PartText {
			return p.Text
		}
	}
	return ""
}

// JoinedText concatenates every text part with newlines.
func (c Content) JoinedText() string {
	if !c.IsMultimodal() {
		return c.text
	}
	texts := make([]string, 0, len(c.parts))
	for _, p := range c.parts {
		if p.Type == PartText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// HasImage reports whether any part is an image_url.
func (c Content) HasImage() bool {
	_, ok := c.FirstImage()
	return ok
}

// FirstImage returns the first image_url part.
func (c Content) FirstImage() (ContentPart, bool) {
	for _, p := range c.parts {
		if p.Type == PartImageURL {
			return p, true
		}
	}
	return ContentPart{}, false
}

// MarshalJSON encodes plain text as a JSON string and parts as an array.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsMultimodal() {
		return json.Marshal(c.parts)
	}
	return json.Marshal(c.text)
}

// UnmarshalJSON accepts a string or an array of text/image_url parts.
func (c *Content) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*c = TextContent(text)
		return nil
	}

	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("%w: unsupported content structure", errInvalidContent)
	}
	for i, p := range parts {
		switch p.Type {
		case PartText:
		case PartImageURL:
			if p.ImageURL == nil {
				return fmt.Errorf("%w: part %d has no image_url", errInvalidContent, i)
			}
		default:
			return fmt.Errorf("%w: segment type %q not supported", errInvalidContent, p.Type)
		}
	}
	*c = MultimodalContent(parts...)
	return nil
}
