package model

// ErrorResponse is the only body the proxies return on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ImageResponse holds the fields the client reads from an image proxy
// response. Other upstream fields pass through untouched.
type ImageResponse struct {
	Files []string `json:"files"`
}

type RatioOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CatalogResponse struct {
	TextModels  []string      `json:"text_models"`
	ImageModels []string      `json:"image_models"`
	ImageRatios []RatioOption `json:"image_ratios"`
}
