package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bors-backend/internal/model"
	"bors-backend/internal/utils"
	"bors-backend/pkg/logger"

	"github.com/go-resty/resty/v2"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

const initDataHeader = "Telegram-Init-Data"

var (
	ErrServer            = errors.New("proxy returned an error")
	ErrMalformedResponse = errors.New("malformed proxy response")
)

type Options struct {
	ServerURL string
	Timeout   time.Duration
	// InitData is sent as the Telegram-Init-Data header when set.
	InitData string
	Debug    bool
}

// Client talks to the bors proxy routes.
type Client struct {
	http *resty.Client
}

func New(opts Options) *Client {
	c := resty.NewWithClient(utils.NewHTTPClient(opts.Timeout, opts.Debug)).
		SetBaseURL(strings.TrimRight(opts.ServerURL, "/")).
		SetLogger(logger.Logger()).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if opts.InitData != "" {
		c.SetHeader(initDataHeader, opts.InitData)
	}
	return &Client{http: c}
}

type chatPayload struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// chatMessage always carries a content key: the text, or the part array
// when the message has attachments. go-openai omits an empty Content.
type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

func wireMessages(messages []openai.ChatCompletionMessage) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		msg := chatMessage{Role: m.Role, Content: m.Content}
		if len(m.MultiContent) > 0 {
			msg.Content = m.MultiContent
		}
		out = append(out, msg)
	}
	return out
}

// Chat posts to /api/chat and decodes the completion.
func (c *Client) Chat(ctx context.Context, modelID string, messages []openai.ChatCompletionMessage) (openai.ChatCompletionResponse, error) {
	var out openai.ChatCompletionResponse
	err := c.post(ctx, "/api/chat", chatPayload{Model: modelID, Messages: wireMessages(messages)}, &out)
	return out, err
}

// Image posts to /api/image and decodes the generated files.
func (c *Client) Image(ctx context.Context, req model.ImageRequest) (model.ImageResponse, error) {
	var out model.ImageResponse
	err := c.post(ctx, "/api/image", req, &out)
	return out, err
}

// Catalog fetches the model lists from /api/models.
func (c *Client) Catalog(ctx context.Context) (model.CatalogResponse, error) {
	var out model.CatalogResponse
	resp, err := c.http.R().SetContext(ctx).Get("/api/models")
	if err != nil {
		return out, fmt.Errorf("fetch catalog: %w", err)
	}
	if !resp.IsSuccess() {
		return out, fmt.Errorf("%w: status %d", ErrServer, resp.StatusCode())
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return out, nil
}

// CatalogOrDefault fetches the server catalogue and falls back to the
// built-in one when the server is unreachable or sends an incomplete list.
func (c *Client) CatalogOrDefault(ctx context.Context) model.CatalogResponse {
	catalog, err := c.Catalog(ctx)
	if err == nil {
		err = catalog.Validate()
	}
	if err != nil {
		logger.WithFields(logrus.Fields{"error": err.Error()}).Warn("using built-in model catalog")
		return model.Catalog()
	}
	return catalog
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post(path)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}

	if !resp.IsSuccess() {
		var apiErr model.ErrorResponse
		_ = json.Unmarshal(resp.Body(), &apiErr)
		return fmt.Errorf("%w: %s: status %d: %s", ErrServer, path, resp.StatusCode(), apiErr.Error)
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, path, err)
	}
	return nil
}
