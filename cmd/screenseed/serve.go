package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/screenseed/internal/config"
	"github.com/ehr/screenseed/internal/platform/auth"
	"github.com/ehr/screenseed/internal/platform/db"
	"github.com/ehr/screenseed/internal/platform/middleware"
	"github.com/ehr/screenseed/internal/platform/reporting"
	"github.com/ehr/screenseed/internal/platform/sandbox"
	"github.com/ehr/screenseed/internal/platform/telemetry"
)

const (
	version         = "0.1.0"
	measureTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the sandbox HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServer(cmd.Context())
		},
	}
}

func (a *app) runServer(ctx context.Context) error {
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// The warehouse is optional: without it the measures API is not mounted.
	var pool *pgxpool.Pool
	if a.cfg.DatabaseURL != "" {
		p, err := db.NewPool(ctx, a.cfg.DatabaseURL, a.cfg.DBMaxConns, a.cfg.DBMinConns)
		if err != nil {
			return err
		}
		defer p.Close()
		pool = p
		a.logger.Info().Msg("connected to warehouse")
	}

	var pinger db.Pinger
	if pool != nil {
		pinger = pool
	}
	e, err := newServer(a.cfg, a.logger, pinger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + a.cfg.Port
		a.logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	a.logger.Info().Msg("server stopped")
	return nil
}

// newServer wires the sandbox API. warehouse may be nil, in which case the
// measures API and the database health check are not mounted.
func newServer(cfg *config.Config, logger zerolog.Logger, warehouse db.Pinger) (*echo.Echo, error) {
	base, err := cfg.SynthConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadHeaderTimeout = 10 * time.Second
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 2 * time.Minute
	e.Server.IdleTimeout = 2 * time.Minute

	metrics := telemetry.NewMetrics("screenseed")

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
	}))

	// Auth middleware
	switch {
	case cfg.AuthSigningKey != "":
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	case cfg.IsDev():
		logger.Warn().Msg("ENV=development and AUTH_SIGNING_KEY unset: every request gets admin access")
		e.Use(auth.DevAuthMiddleware())
	default:
		return nil, errors.New("AUTH_SIGNING_KEY is required outside development")
	}
	e.Use(middleware.Audit(logger, middleware.AuditRecorderFunc(func(entry middleware.AuditEntry) error {
		metrics.ObserveAccess(entry.Resource, entry.Action, entry.Status)
		return nil
	})))

	e.GET(telemetry.MetricsPath, metrics.Handler())
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	apiV1 := e.Group("/api/v1")

	limiter := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		KeyFunc: func(c echo.Context) string {
			if id := auth.UserIDFromContext(c.Request().Context()); id != "" {
				return id
			}
			return c.RealIP()
		},
	})
	sandbox.NewSeedHandler(base, logger,
		sandbox.WithGenerateMiddleware(limiter),
		sandbox.WithObserver(datasetMetrics{metrics}),
	).RegisterRoutes(apiV1)

	if warehouse != nil {
		e.GET("/health/db", db.HealthHandler(warehouse))

		q, ok := warehouse.(reporting.Querier)
		if !ok {
			return nil, errors.New("warehouse connection cannot run queries")
		}
		measures := apiV1.Group("", middleware.RequestTimeout(measureTimeout), auth.RequireRole(auth.RoleViewer, auth.RoleSeeder))
		reporting.NewHandler(reporting.NewEvaluator(q, cfg.WarehouseSchema)).RegisterRoutes(measures)
	}

	return e, nil
}

// datasetMetrics feeds sandbox dataset changes into the server metrics.
type datasetMetrics struct {
	m *telemetry.Metrics
}

func (d datasetMetrics) DatasetGenerated(ds *sandbox.Dataset) {
	rows := make(map[string]int, len(ds.Tables))
	for _, t := range ds.Tables {
		rows[t.Name] = len(t.Rows)
	}
	d.m.ObserveGeneration(string(ds.Config.Mode), ds.Duration, rows)
}

func (d datasetMetrics) DatasetReset() {
	d.m.ObserveReset()
}
