package handler

import (
	"context"
	"net/http"

	"bors-backend/internal/middleware"
	"bors-backend/internal/model"
	"bors-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	ChatErrorMessage    = "AI API error"
	ImageErrorMessage   = "image generation error"
	InvalidRequestError = "invalid request"
)

// Proxy is the upstream side of the two proxy routes.
type Proxy interface {
	Chat(ctx context.Context, req model.ChatRequest) ([]byte, error)
	Image(ctx context.Context, req model.ImageRequest) ([]byte, error)
}

type ProxyHandler struct {
	proxy Proxy
}

func NewProxyHandler(proxy Proxy) *ProxyHandler {
	return &ProxyHandler{
		proxy: proxy,
	}
}

// Chat handles POST /api/chat.
func (h *ProxyHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.reject(c, "chat", err)
		return
	}

	body, err := h.proxy.Chat(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "chat", err, ChatErrorMessage, logrus.Fields{
			"model":    req.Model,
			"messages": len(req.Messages),
		})
		return
	}

	c.Data(http.StatusOK, "application/json", body)
}

// Image handles POST /api/image.
func (h *ProxyHandler) Image(c *gin.Context) {
	var req model.ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.reject(c, "image", err)
		return
	}
	if !model.IsValidRatio(req.Ratio) {
		h.reject(c, "image", errUnknownRatio(req.Ratio))
		return
	}

	body, err := h.proxy.Image(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "image", err, ImageErrorMessage, logrus.Fields{
			"model": req.Model,
			"ratio": req.Ratio,
		})
		return
	}

	c.Data(http.StatusOK, "application/json", body)
}

// Models handles GET /api/models.
func (h *ProxyHandler) Models(c *gin.Context) {
	c.JSON(http.StatusOK, model.Catalog())
}

func (h *ProxyHandler) reject(c *gin.Context, route string, err error) {
	_ = c.Error(err)
	logger.WithFields(logrus.Fields{
		"request_id": c.GetString(middleware.RequestIDKey),
		"route":      route,
	}).WithError(err).Warn("invalid proxy request")
	c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: InvalidRequestError})
}

// fail logs the upstream detail and answers with the fixed message only.
func (h *ProxyHandler) fail(c *gin.Context, route string, err error, message string, fields logrus.Fields) {
	fields["request_id"] = c.GetString(middleware.RequestIDKey)
	fields["route"] = route
	logger.WithFields(fields).WithError(err).Error("upstream call failed")
	c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: message})
}
