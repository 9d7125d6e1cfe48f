package handler

import (
	"net/http"
	"time"

	"bors-backend/internal/config"
	"bors-backend/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires middleware and routes. limiter may be nil.
func NewRouter(cfg *config.Config, proxyHandler *ProxyHandler, limiter *middleware.RateLimiter) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	api := router.Group("/api")
	{
		api.GET("/models", proxyHandler.Models)

		proxied := api.Group("")
		if cfg.Auth.TelegramBotToken != "" {
			proxied.Use(middleware.TelegramAuth(cfg.Auth.TelegramBotToken, cfg.Auth.InitDataMaxAge))
		}
		if limiter != nil {
			proxied.Use(limiter.Middleware())
		}
		proxied.POST("/chat", proxyHandler.Chat)
		proxied.POST("/image", proxyHandler.Image)
	}

	return router
}
