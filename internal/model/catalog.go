package model

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var TextModels = []string{
	"gpt-5.2-chat",
	"o1",
	"o3",
	"gemini-2.5-pro",
	"gemini-3-pro",
	"gemini-3-flash",
	"deepseek-r1",
	"sonar-reasoning-pro",
	"sonar-pro",
}

var ImageModels = []string{
	"flux",
	"flux-2-dev",
	"lucid-origin",
	"phoenix-1.0",
}

const (
	RatioSquare    = "1:1"
	RatioPortrait  = "9:16"
	RatioLandscape = "16:9"
)

var ImageRatios = []RatioOption{
	{ID: RatioSquare, Name: "Square (1:1)"},
	{ID: RatioPortrait, Name: "Portrait (9:16)"},
	{ID: RatioLandscape, Name: "Landscape (16:9)"},
}

// Catalog returns copies so callers cannot mutate the package lists.
func Catalog() CatalogResponse {
	return CatalogResponse{
		TextModels:  append([]string(nil), TextModels...),
		ImageModels: append([]string(nil), ImageModels...),
		ImageRatios: append([]RatioOption(nil), ImageRatios...),
	}
}

// Validate requires every list to be non-empty and every ratio to have an ID.
func (c CatalogResponse) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.TextModels, validation.Required, validation.Each(validation.Required)),
		validation.Field(&c.ImageModels, validation.Required, validation.Each(validation.Required)),
		validation.Field(&c.ImageRatios, validation.Required, validation.Each(validation.By(func(v interface{}) error {
			if r, ok := v.(RatioOption); ok && r.ID == "" {
				return errors.New("ratio id is required")
			}
			return nil
		}))),
	)
}

func (c CatalogResponse) RatioIDs() []interface{} {
	ids := make([]interface{}, len(c.ImageRatios))
	for i, r := range c.ImageRatios {
		ids[i] = r.ID
	}
	return ids
}

func IsValidRatio(ratio string) bool {
	for _, r := range ImageRatios {
		if r.ID == ratio {
			return true
		}
	}
	return false
}
