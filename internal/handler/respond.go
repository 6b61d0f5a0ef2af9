package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"daycard/internal/apperr"
)

const userIDKey = "user_id"

// respondError writes {"error": msg} with the status mapped from err.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := apperr.HTTPStatus(err)
	if status >= 500 {
		logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}

// userID reads the tenant the auth middleware resolved.
func userID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
