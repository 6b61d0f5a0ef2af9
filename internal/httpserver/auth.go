package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"daycard/pkg/config"
	"daycard/pkg/util"
)

const (
	DefaultCookieName = "app_auth"
	DefaultUserID     = "default"
)

// AuthMiddleware checks the shared-secret cookie (or a bearer header) against
// a bcrypt hash of the configured secret. With no secret configured every
// request is let through.
func AuthMiddleware(cfg config.AuthConfig, userID string) (gin.HandlerFunc, error) {
	hash := cfg.SecretHash
	if hash == "" && cfg.Secret != "" {
		h, err := util.HashSecret(cfg.Secret)
		if err != nil {
			return nil, fmt.Errorf("failed to hash shared secret: %w", err)
		}
		hash = h
	}

	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if userID == "" {
		userID = DefaultUserID
	}

	return func(c *gin.Context) {
		if hash != "" {
			presented := extractSecret(c.Request, cookieName)
			if presented == "" || !util.CheckSecret(presented, hash) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
				c.Abort()
				return
			}
		}

		// store user_id in context so handlers can use it
		c.Set("user_id", userID)

		c.Next()
	}, nil
}

func extractSecret(r *http.Request, cookieName string) string {
	if ck, err := r.Cookie(cookieName); err == nil && ck.Value != "" {
		return ck.Value
	}
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
