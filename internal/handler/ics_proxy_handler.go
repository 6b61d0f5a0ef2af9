package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"daycard/internal/icsproxy"
)

// FeedProxy is the server-side feed fetcher. *icsproxy.Fetcher satisfies it.
type FeedProxy interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

type ICSProxyHandler struct {
	fetcher FeedProxy
	logger  *zap.Logger
}

func NewICSProxyHandler(fetcher FeedProxy, logger *zap.Logger) *ICSProxyHandler {
	return &ICSProxyHandler{fetcher: fetcher, logger: logger}
}

// Fetch handles GET /ics-proxy?url=<feed-url>
func (h *ICSProxyHandler) Fetch(c *gin.Context) {
	raw := c.Query("url")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing url"})
		return
	}

	text, err := h.fetcher.Fetch(c.Request.Context(), raw)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Data(http.StatusOK, icsproxy.ContentType, []byte(text))
}
