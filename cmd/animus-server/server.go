package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/animus/animus/internal/config"
	"github.com/animus/animus/internal/domain/chat"
	"github.com/animus/animus/internal/domain/feedback"
	"github.com/animus/animus/internal/domain/gate"
	"github.com/animus/animus/internal/domain/history"
	"github.com/animus/animus/internal/domain/medicalhistory"
	"github.com/animus/animus/internal/domain/report"
	"github.com/animus/animus/internal/domain/scan"
	"github.com/animus/animus/internal/domain/submission"
	"github.com/animus/animus/internal/platform/auth"
	"github.com/animus/animus/internal/platform/db"
	"github.com/animus/animus/internal/platform/imagehost"
	"github.com/animus/animus/internal/platform/kvstore"
	"github.com/animus/animus/internal/platform/middleware"
	"github.com/animus/animus/internal/platform/remote"
	"github.com/animus/animus/internal/platform/websocket"
)

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Logger
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := context.Background()

	// Local store
	kv, err := kvstore.Open(ctx, cfg.KVPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.KVPath).Msg("failed to open local store")
	}
	defer kv.Close()

	// Upstream collaborators
	api := remote.New(cfg.APIBaseURL, logger, remote.WithTimeout(cfg.APITimeout))
	images := imagehost.New(cfg.ImageHostURL, cfg.ImageHostAPIKey)

	// Medical history store: Postgres when configured, the upstream API otherwise
	var (
		pool    *pgxpool.Pool
		entries medicalhistory.Store = api
		mhSvc   *medicalhistory.Service
	)
	if cfg.DatabaseURL != "" {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")
		mhSvc = medicalhistory.NewService(medicalhistory.NewRepoPG(pool))
		entries = mhSvc
	}

	// Pipeline
	open := bucketOpener(kv)
	hub := websocket.NewHub(logger)
	recommendations := gate.New(api, entries, logger)
	scans := submission.NewService(submission.Config{
		Uploader:    images,
		Analyzer:    api,
		Normalizer:  scan.NewNormalizer(logger),
		Sessions:    history.NewSessions(open, logger),
		Entries:     entries,
		Gate:        recommendations,
		Reconciler:  history.NewReconciler(entries, logger),
		Publisher:   hub,
		GateTimeout: cfg.GateTimeout,
	}, logger)

	e := newEcho(cfg, logger)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, map[string]db.Pinger{"kvstore": kv}))

	// Authenticated API
	var authMW echo.MiddlewareFunc
	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		logger.Warn().Msg("development auth enabled: tokens are not verified")
		authMW = auth.DevAuthMiddleware()
	} else {
		authMW = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		})
	}
	apiV1 := e.Group("/api/v1", authMW)

	limiter := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	})

	submission.NewHandler(scans).RegisterRoutes(apiV1, limiter)
	feedback.NewHandler(feedback.NewService(open, scans, api, logger)).RegisterRoutes(apiV1)
	report.NewHandler(report.NewService(scans, recommendations, api, api, logger)).RegisterRoutes(apiV1)
	chat.NewHandler(api, logger).RegisterRoutes(apiV1, limiter)
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(apiV1)
	if mhSvc != nil {
		medicalhistory.NewHandler(mhSvc).RegisterRoutes(apiV1)
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	scans.Wait()
	logger.Info().Msg("server stopped")
	return nil
}

// newEcho builds the server with the global middleware chain.
func newEcho(cfg *config.Config, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization, echo.HeaderXRequestID},
	}))
	return e
}
