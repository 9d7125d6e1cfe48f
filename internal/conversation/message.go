package conversation

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

type Mode string

const (
	ModeText  Mode = "text"
	ModeImage Mode = "image"
)

// FailureText is the single message shown for any failed send.
const FailureText = "❌ Error: failed to get a response."

// Message is one entry of the visible conversation. ImageURL holds a data
// URL: the user's attachment or a generated image.
type Message struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Kind      Kind   `json:"kind"`
	ImageURL  string `json:"image_url,omitempty"`
	ImageData []byte `json:"-"`
	ImageMIME string `json:"image_mime,omitempty"`
}

func (m Message) IsImage() bool {
	return m.Kind == KindImage
}

// toAPI maps a visible message to the chat wire shape. User attachments go
// out as content parts; generated images only contribute their caption.
func (m Message) toAPI() openai.ChatCompletionMessage {
	if m.Role == openai.ChatMessageRoleUser && m.ImageURL != "" && !m.IsImage() {
		parts := make([]openai.ChatMessagePart, 0, 2)
		if m.Content != "" {
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: m.Content,
			})
		}
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: m.ImageURL},
		})
		return openai.ChatCompletionMessage{Role: m.Role, MultiContent: parts}
	}
	return openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
}

// replyText extracts the assistant text, joining text parts when the
// upstream answered with a content array.
func replyText(msg openai.ChatCompletionMessage) string {
	if msg.Content != "" || len(msg.MultiContent) == 0 {
		return msg.Content
	}
	var b strings.Builder
	for _, part := range msg.MultiContent {
		if part.Type == openai.ChatMessagePartTypeText {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
