package allen

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"allenchat/internal/models"
)

const (
	imageField    = "file"
	imageFilename = "image.jpg"
)

var (
	// ErrImageNotFound is reported when the last message has no usable image part.
	ErrImageNotFound = errors.New("image url not found")
	// ErrInvalidImage is reported when the image is not a base64 data URL.
	ErrInvalidImage = errors.New("image is not a base64 data url")
)

// textPayload is the body of upload_text/.
type textPayload struct {
	Conversation []map[string]string `json:"conversation"`
}

// chatReply is the body returned by both upload endpoints.
type chatReply struct {
	Respond string `json:"Respond"`
}

// buildConversation turns every message into a single-key object keyed by role.
func buildConversation(messages []models.ChatMessage) textPayload {
	conversation := make([]map[string]string, 0, len(messages))
	for _, msg := range messages {
		key := msg.Role
		if key == "" {
			key = "message"
		}
		conversation = append(conversation, map[string]string{key: msg.Content.JoinedText()})
	}
	return textPayload{Conversation: conversation}
}

type imageUpload struct {
	contentType string
	data        []byte
}

// extractImage decodes the first image part of msg.
func extractImage(msg models.ChatMessage) (imageUpload, error) {
	part, ok := msg.Content.FirstImage()
	if !ok || part.ImageURL == nil || part.ImageURL.URL == "" {
		return imageUpload{}, ErrImageNotFound
	}
	return decodeDataURL(part.ImageURL.URL)
}

// decodeDataURL parses data:<mime>;base64,<payload>.
func decodeDataURL(raw string) (imageUpload, error) {
	header, encoded, ok := strings.Cut(raw, ",")
	if !ok {
		return imageUpload{}, ErrInvalidImage
	}

	meta, ok := strings.CutPrefix(header, "data:")
	if !ok {
		return imageUpload{}, ErrInvalidImage
	}
	contentType, _, _ := strings.Cut(meta, ";")

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return imageUpload{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	return imageUpload{contentType: contentType, data: data}, nil
}
