package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	_ "github.com/noah-isme/house-points-api/api/swagger"
	"github.com/noah-isme/house-points-api/internal/app"
	"github.com/noah-isme/house-points-api/internal/middleware"
	"github.com/noah-isme/house-points-api/pkg/config"
	"github.com/noah-isme/house-points-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/house-points-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/house-points-api/pkg/middleware/requestid"
)

// @title House Points API
// @version 1.0.0
// @description Behaviour events, student insights and the tiered intervention framework.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	container, err := app.New(cfg, logr)
	if err != nil {
		logr.Fatal("failed to build services", zap.Error(err))
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	container.Start(ctx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, healthCheckPaths...))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins, cfg.CORS.MaxAge))
	r.Use(middleware.Metrics(container.Metrics, healthCheckPaths...))
	r.Use(middleware.WithResponseMeta())

	registerRoutes(r, cfg, container, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}
