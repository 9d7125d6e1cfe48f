package middleware

import (
	"net/http"
	"strconv"
	"time"

	"bors-backend/internal/model"
	"bors-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	initdata "github.com/telegram-mini-apps/init-data-golang"
)

const (
	InitDataHeader  = "Telegram-Init-Data"
	TelegramUserKey = "telegram_user_id"
)

// TelegramAuth validates Mini App init data signed with botToken. Requests
// without valid init data are rejected with 401.
func TelegramAuth(botToken string, maxAge time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(InitDataHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{Error: "missing telegram init data"})
			return
		}

		if err := initdata.Validate(raw, botToken, maxAge); err != nil {
			logger.Warnf("init data rejected: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{Error: "invalid telegram init data"})
			return
		}

		parsed, err := initdata.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{Error: "invalid telegram init data"})
			return
		}
		if parsed.User.ID != 0 {
			c.Set(TelegramUserKey, strconv.FormatInt(int64(parsed.User.ID), 10))
		}
		c.Next()
	}
}
