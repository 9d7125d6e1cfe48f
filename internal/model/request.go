package model

import "encoding/json"

// ChatMessage is one role-tagged entry of a chat request. Role and Content
// are the validated view; a decoded message re-encodes to its original
// bytes, so extra fields and content-part arrays reach upstream unchanged.
// Content must be present but may be the empty string "".
type ChatMessage struct {
	Role    string          `json:"role" binding:"required,oneof=system user assistant"`
	Content json.RawMessage `json:"content" binding:"required"`

	raw json.RawMessage
}

type chatMessageFields struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var fields chatMessageFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	m.Role = fields.Role
	m.Content = fields.Content
	// a literal null counts as missing content
	if string(m.Content) == "null" {
		m.Content = nil
	}
	m.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (m ChatMessage) MarshalJSON() ([]byte, error) {
	if m.raw != nil {
		return m.raw, nil
	}
	return json.Marshal(chatMessageFields{Role: m.Role, Content: m.Content})
}

type ChatRequest struct {
	Model    string        `json:"model" binding:"required"`
	Messages []ChatMessage `json:"messages" binding:"required,min=1,dive"`
}

type ImageRequest struct {
	Model  string `json:"model" binding:"required"`
	Prompt string `json:"prompt" binding:"required"`
	Ratio  string `json:"ratio" binding:"required"`
}

// UpstreamChatRequest is the body sent to <base>/chat/completions.
type UpstreamChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Plugins  []string      `json:"plugins,omitempty"`
}

// UpstreamImageRequest is the body sent to the image endpoint; the prompt is
// forwarded untranslated.
type UpstreamImageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Ratio  string `json:"ratio"`
}
