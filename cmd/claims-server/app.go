package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/claimsdesk/claims/internal/config"
	"github.com/claimsdesk/claims/internal/domain/claim"
	"github.com/claimsdesk/claims/internal/domain/claimimport"
	"github.com/claimsdesk/claims/internal/domain/patient"
	"github.com/claimsdesk/claims/internal/domain/user"
	"github.com/claimsdesk/claims/internal/platform/auth"
	"github.com/claimsdesk/claims/internal/platform/db"
	"github.com/claimsdesk/claims/internal/platform/live"
	"github.com/claimsdesk/claims/internal/platform/metrics"
	"github.com/claimsdesk/claims/internal/platform/middleware"
	"github.com/claimsdesk/claims/internal/platform/uploads"
)

// app holds the wired services shared by the server and the CLI commands.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	pool    *pgxpool.Pool
	metrics *metrics.Manager
	tokens  *auth.TokenIssuer
	hub     *live.Hub

	patients *patient.Service
	claims   *claim.Service
	users    *user.Service
	importer *claimimport.Importer
	imports  *claimimport.Service
}

// newLogger writes JSON to w, or a console format in development. An
// unknown LOG_LEVEL falls back to info.
func newLogger(w io.Writer, cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		w = zerolog.ConsoleWriter{Out: w}
	}
	level := zerolog.InfoLevel
	if cfg != nil {
		if l, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil && l != zerolog.NoLevel {
			level = l
		}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// loadConfig reads and validates configuration and logs its warnings.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, newLogger(os.Stdout, nil), err
	}
	logger := newLogger(os.Stdout, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, logger, err
	}
	for _, w := range cfg.Warnings() {
		logger.Warn().Msg(w)
	}
	return cfg, logger, nil
}

// openApp connects to the database and wires every service.
func openApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}
	files, err := uploads.NewDiskStore(cfg.StorageDir, middleware.ParseLimit(cfg.MaxUploadSize))
	if err != nil {
		pool.Close()
		return nil, err
	}
	a, err := newApp(cfg, logger, pool, files, metrics.NewManager(metrics.WithRuntimeCollectors()))
	if err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

func newApp(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, files uploads.Store, mgr *metrics.Manager) (*app, error) {
	tokens, err := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.JWTTTL)
	if err != nil {
		return nil, err
	}

	patientRepo := patient.NewRepoPG(pool)
	claimRepo := claim.NewRepoPG(pool)
	jobRepo := claimimport.NewJobRepoPG(pool)

	hub := live.NewHub(logger)
	claimSvc := claim.NewService(claimRepo)
	importer := claimimport.NewImporter(jobRepo, patientRepo, claimRepo, db.NewUnitOfWork(pool),
		claimimport.WithRecorder(mgr),
		claimimport.WithEvents(hub),
		claimimport.WithLogger(logger),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		pool:     pool,
		metrics:  mgr,
		tokens:   tokens,
		hub:      hub,
		patients: patient.NewService(patientRepo),
		claims:   claimSvc,
		users:    user.NewService(user.NewRepoPG(pool)),
		importer: importer,
		imports:  claimimport.NewService(importer, jobRepo, claimSvc, files, mgr),
	}, nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
