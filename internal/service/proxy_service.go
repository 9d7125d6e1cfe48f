package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bors-backend/internal/config"
	"bors-backend/internal/model"
	"bors-backend/internal/utils"
	"bors-backend/pkg/logger"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

var (
	ErrUpstreamStatus    = errors.New("upstream returned non-success status")
	ErrUpstreamTransport = errors.New("upstream request failed")
	ErrUpstreamTimeout   = errors.New("upstream request timed out")
)

const maxErrorBody = 512

// Route describes one upstream the proxy forwards to.
type Route struct {
	Name    string
	URL     string
	Timeout time.Duration
}

// ProxyService forwards JSON bodies to the upstream AI service with bearer
// auth. It never retries.
type ProxyService struct {
	client     *resty.Client
	apiKey     string
	plugins    []string
	chatRoute  Route
	imageRoute Route
}

func NewProxyService(cfg config.UpstreamConfig) *ProxyService {
	// per-route timeouts come from the request context
	client := resty.NewWithClient(utils.NewHTTPClient(0, cfg.DebugRequest)).
		SetLogger(logger.Logger()).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &ProxyService{
		client:  client,
		apiKey:  cfg.APIKey,
		plugins: cfg.Plugins,
		chatRoute: Route{
			Name:    "chat",
			URL:     cfg.ChatCompletionsURL(),
			Timeout: cfg.ChatTimeout,
		},
		imageRoute: Route{
			Name:    "image",
			URL:     cfg.ImageEndpoint,
			Timeout: cfg.ImageTimeout,
		},
	}
}

func (s *ProxyService) ChatRoute() Route  { return s.chatRoute }
func (s *ProxyService) ImageRoute() Route { return s.imageRoute }

// Forward posts payload to route.URL and returns the raw upstream body on a
// 2xx response. Every other outcome is an error wrapping one of the
// ErrUpstream* sentinels.
func (s *ProxyService) Forward(ctx context.Context, route Route, payload interface{}) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, route.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.R().
		SetContext(ctx).
		SetAuthToken(s.apiKey).
		SetBody(payload).
		Post(route.URL)

	entry := logger.WithFields(logrus.Fields{
		"route":    route.Name,
		"duration": time.Since(start).String(),
	})

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			entry.WithError(err).Warn("upstream timeout")
			return nil, fmt.Errorf("%w: %s after %s", ErrUpstreamTimeout, route.Name, route.Timeout)
		}
		entry.WithError(err).Warn("upstream transport error")
		return nil, fmt.Errorf("%w: %s: %v", ErrUpstreamTransport, route.Name, err)
	}

	if !resp.IsSuccess() {
		body := string(resp.Body())
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		entry.WithField("status", resp.StatusCode()).Warn("upstream error status")
		return nil, fmt.Errorf("%w: %s: status %d: %s", ErrUpstreamStatus, route.Name, resp.StatusCode(), body)
	}

	entry.WithField("status", resp.StatusCode()).Debug("upstream ok")
	return resp.Body(), nil
}

// Chat forwards a chat completion request with the configured plugins.
func (s *ProxyService) Chat(ctx context.Context, req model.ChatRequest) ([]byte, error) {
	return s.Forward(ctx, s.chatRoute, model.UpstreamChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Plugins:  s.plugins,
	})
}

// Image forwards an image generation request.
func (s *ProxyService) Image(ctx context.Context, req model.ImageRequest) ([]byte, error) {
	return s.Forward(ctx, s.imageRoute, model.UpstreamImageRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		Ratio:  req.Ratio,
	})
}
