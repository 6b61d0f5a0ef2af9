package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"daycard/internal/config"
	"daycard/internal/handler"
	"daycard/internal/httpserver"
	"daycard/internal/icsproxy"
	"daycard/internal/repository"
	pkgconfig "daycard/pkg/config"
	"daycard/pkg/db"
	"daycard/pkg/logger"
	"daycard/pkg/mq"
	"daycard/pkg/redis"
	"daycard/pkg/util"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load(pkgconfig.GetConfigEnv(), pkgconfig.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Starting planner sync server...",
		zap.String("port", cfg.Server.Port),
		zap.Bool("db_bound", cfg.DB.Bound()),
		zap.Bool("auth_enabled", cfg.Auth.Secret != "" || cfg.Auth.SecretHash != ""),
	)

	// DB 未配置时仍然启动，/sync 返回 "Missing database binding"
	var pool *pgxpool.Pool
	if cfg.DB.Bound() {
		pool, err = db.NewConnection(cfg.DB, log)
		if err != nil {
			log.Fatal("Failed to init DB", zap.Error(err))
		}
		defer pool.Close()
	}
	store := repository.NewSnapshotRepository(pool, log)

	rdb := redis.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
		if err := redis.Ping(context.Background(), rdb); err != nil {
			log.Warn("Redis not reachable, proxy rate limiting is best effort", zap.Error(err))
		}
	}
	limiter := util.NewRateLimiter(rdb, int64(cfg.Proxy.RateLimitPerMin), time.Minute)

	var publisher handler.EventPublisher
	if cfg.MQ.URL != "" {
		p, err := mq.NewPublisher(cfg.MQ)
		if err != nil {
			log.Warn("MQ unavailable, sync.pushed events disabled", zap.Error(err))
		} else {
			defer p.Close()
			publisher = p
		}
	}

	router, err := httpserver.NewRouter(httpserver.Deps{
		SyncHandler:  handler.NewSyncHandler(store, publisher, log),
		ProxyHandler: handler.NewICSProxyHandler(icsproxy.NewFetcher(cfg.Proxy, log), log),
		Store:        store,
		DBBound:      cfg.DB.Bound(),
		Redis:        rdb,
		Limiter:      limiter,
		Auth:         cfg.Auth,
		UserID:       cfg.Server.UserID,
		Logger:       log,
	})
	if err != nil {
		log.Fatal("Failed to build router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: router.Engine,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 优雅退出处理
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited")
}
