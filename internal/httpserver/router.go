package httpserver

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"daycard/internal/handler"
	"daycard/internal/repository"
	"daycard/pkg/config"
	"daycard/pkg/redis"
	"daycard/pkg/util"
)

type Router struct {
	Engine *gin.Engine
}

// Deps collects what the router serves. Redis and Limiter may be nil.
type Deps struct {
	SyncHandler  *handler.SyncHandler
	ProxyHandler *handler.ICSProxyHandler
	Store        repository.SnapshotStore
	DBBound      bool
	Redis        *goredis.Client
	Limiter      *util.RateLimiter
	Auth         config.AuthConfig
	UserID       string
	Logger       *zap.Logger
}

func NewRouter(d Deps) (*Router, error) {
	auth, err := AuthMiddleware(d.Auth, d.UserID)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(d.Logger))
	r.Use(Metrics())

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true, "db": d.DBBound})
	})
	r.HEAD("/health", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if err := d.Store.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		if err := redis.Ping(ctx, d.Redis); err != nil {
			c.JSON(500, gin.H{"status": "redis_not_ready", "error": err.Error()})
			return
		}

		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected
	protected := r.Group("/")
	protected.Use(auth)
	{
		protected.GET("/sync", d.SyncHandler.Pull)
		protected.POST("/sync", d.SyncHandler.Push)
		protected.GET("/ics-proxy", RateLimit(d.Limiter), d.ProxyHandler.Fetch)
	}

	return &Router{Engine: r}, nil
}
