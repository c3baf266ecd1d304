package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/claimsdesk/claims/internal/domain/claim"
	"github.com/claimsdesk/claims/internal/domain/claimimport"
	"github.com/claimsdesk/claims/internal/domain/patient"
	"github.com/claimsdesk/claims/internal/domain/user"
	"github.com/claimsdesk/claims/internal/platform/auth"
	"github.com/claimsdesk/claims/internal/platform/db"
	"github.com/claimsdesk/claims/internal/platform/live"
	"github.com/claimsdesk/claims/internal/platform/middleware"
)

const version = "0.1.0"

// newRouter builds the HTTP surface: public probes and auth endpoints, and
// the token-protected /api/v1 group.
func newRouter(a *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(a.metrics.Middleware())
	e.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{HSTS: a.cfg.TLSEnabled}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(a.tokens.Middleware(auth.AuthSkipper))
	e.Use(middleware.Audit(a.logger))

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if a.cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = a.cfg.RateLimitRPS
		rateLimitCfg.BurstSize = a.cfg.RateLimitBurst
	}
	limiter := middleware.RateLimit(rateLimitCfg)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if a.pool != nil {
		e.GET("/health/db", db.HealthHandler(a.pool))
	}
	e.GET("/metrics", echo.WrapHandler(a.metrics.Handler()))

	authGroup := e.Group("/auth", limiter)
	user.NewHandler(a.users, a.tokens).RegisterRoutes(authGroup)

	apiV1 := e.Group("/api/v1", limiter)
	patient.NewHandler(a.patients).RegisterRoutes(apiV1)
	claim.NewHandler(a.claims).RegisterRoutes(apiV1)
	claimimport.NewHandler(a.imports).RegisterRoutes(apiV1, middleware.BodyLimit(a.cfg.MaxUploadSize))

	// Live import progress
	live.NewHandler(a.hub, a.cfg.CORSOrigins).RegisterRoutes(apiV1.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleStaff)))

	return e
}

func runServer() error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger
	logger.Info().Msg("connected to database")

	e := newRouter(a)

	// Graceful shutdown
	go func() {
		addr := ":" + a.cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", a.cfg.TLSEnabled).Msg("starting server")
		var err error
		if a.cfg.TLSEnabled {
			err = e.StartTLS(addr, a.cfg.TLSCertFile, a.cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
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
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
