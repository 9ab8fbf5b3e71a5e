package allen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allenchat/internal/models"
)

func TestDecodeDataURL(t *testing.T) {
	img, err := decodeDataURL("data:image/jpeg;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.contentType)
	assert.Equal(t, []byte("hello"), img.data)
}

func TestDecodeDataURLRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "aGVsbG8=", "image/png;base64,aGVsbG8=", "data:image/png;base64,%%%"} {
		_, err := decodeDataURL(raw)
		assert.ErrorIs(t, err, ErrInvalidImage, raw)
	}
}

func TestExtractImageWithoutImagePart(t *testing.T) {
	_, err := extractImage(models.ChatMessage{Content: models.TextContent("no image")})
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestBuildConversationOneEntryPerMessage(t *testing.T) {
	msgs := []models.ChatMessage{
		{Role: models.RoleUser, Content: models.TextContent("a")},
		{Role: models.RoleAssistant, Content: models.TextContent("b")},
		{Role: models.RoleUser, Content: models.MultimodalContent(models.ImagePart("data:x"), models.TextPart("c"))},
	}
	payload := buildConversation(msgs)
	require.Len(t, payload.Conversation, len(msgs))
	assert.Equal(t, "c", payload.Conversation[2]["user"])
}
