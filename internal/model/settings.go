package model

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	SystemPromptKey     = "bors_sys_prompt"
	DefaultSystemPrompt = "You are a helpful and smart assistant."
	MaxSystemPromptLen  = 4000
)

// Settings is the client-side configuration of a conversation. Only
// SystemPrompt outlives the process.
type Settings struct {
	SystemPrompt string `json:"system_prompt"`
	TextModel    string `json:"text_model"`
	ImageModel   string `json:"image_model"`
	ImageRatio   string `json:"image_ratio"`
}

func DefaultSettings() Settings {
	return DefaultSettingsFor(Catalog())
}

// DefaultSettingsFor picks the first model of each list and the square ratio
// when c offers it. c must pass Validate.
func DefaultSettingsFor(c CatalogResponse) Settings {
	ratio := c.ImageRatios[0].ID
	for _, r := range c.ImageRatios {
		if r.ID == RatioSquare {
			ratio = RatioSquare
			break
		}
	}
	return Settings{
		SystemPrompt: DefaultSystemPrompt,
		TextModel:    c.TextModels[0],
		ImageModel:   c.ImageModels[0],
		ImageRatio:   ratio,
	}
}

func stringsToAny(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func (s Settings) Validate() error {
	return s.ValidateFor(Catalog())
}

// ValidateFor checks the models and ratio against catalogue c.
func (s Settings) ValidateFor(c CatalogResponse) error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.SystemPrompt, validation.Length(0, MaxSystemPromptLen)),
		validation.Field(&s.TextModel, validation.Required, validation.In(stringsToAny(c.TextModels)...)),
		validation.Field(&s.ImageModel, validation.Required, validation.In(stringsToAny(c.ImageModels)...)),
		validation.Field(&s.ImageRatio, validation.Required, validation.In(c.RatioIDs()...)),
	)
}
