package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/referral/referral/internal/config"
	"github.com/referral/referral/internal/domain/auditlog"
	"github.com/referral/referral/internal/domain/directory"
	"github.com/referral/referral/internal/domain/referral"
	"github.com/referral/referral/internal/domain/suggestion"
	"github.com/referral/referral/internal/domain/waitinglist"
	"github.com/referral/referral/internal/platform/auth"
	"github.com/referral/referral/internal/platform/cache"
	"github.com/referral/referral/internal/platform/db"
	"github.com/referral/referral/internal/platform/middleware"
	"github.com/referral/referral/internal/platform/notify"
	"github.com/referral/referral/internal/platform/outbox"
	"github.com/referral/referral/internal/platform/stream"
	"github.com/referral/referral/internal/platform/webhook"
)

// referralFanout bridges committed referral changes to the notification hub
// and the websocket stream. It lives here rather than in either platform
// package to keep them decoupled from the domain types.
type referralFanout struct {
	notifications *notify.Hub
	stream        *stream.Hub
	logger        zerolog.Logger
}

func snapshot(r *referral.Referral) notify.ReferralSnapshot {
	return notify.ReferralSnapshot{
		ID:           r.ID,
		PatientName:  r.Patient.Name,
		Specialty:    r.Specialty,
		Priority:     string(r.Priority),
		Status:       string(r.Status),
		TriageStatus: string(r.TriageStatus),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (f *referralFanout) ReferralCreated(r *referral.Referral) {
	if n := notify.OnInsert(snapshot(r)); n != nil {
		f.notifications.Publish(*n)
	}
	f.publishStream("referral.created", r)
}

func (f *referralFanout) ReferralUpdated(old, updated *referral.Referral) {
	if n := notify.OnUpdate(snapshot(old), snapshot(updated)); n != nil {
		f.notifications.Publish(*n)
	}
	f.publishStream("referral.updated", updated)
}

func (f *referralFanout) publishStream(eventType string, r *referral.Referral) {
	data, err := json.Marshal(r)
	if err != nil {
		f.logger.Error().Err(err).Msg("marshaling stream event")
		return
	}
	if err := f.stream.Publish(context.Background(), stream.Event{
		Type:       eventType,
		ReferralID: r.ID.String(),
		Specialty:  r.Specialty,
		Data:       data,
	}); err != nil {
		f.logger.Error().Err(err).Msg("publishing stream event")
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "referral-server",
		Short: "Referral management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the referral API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Cache: Redis when configured, otherwise a no-op stand-in.
	var dirCache cache.Cache = cache.Noop{}
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisCache.Close()
		dirCache = redisCache
		logger.Info().Msg("connected to redis")
	}

	// Realtime hubs
	notifyHub := notify.NewHub()
	streamHub := stream.NewHub(logger)
	fanout := &referralFanout{
		notifications: notifyHub,
		stream:        streamHub,
		logger:        logger.With().Str("component", "fanout").Logger(),
	}

	// Repositories
	referralRepo := referral.NewRepoPG(pool)
	auditRepo := auditlog.NewRepoPG(pool)
	outboxRepo := outbox.NewRepoPG(pool)
	waitingRepo := waitinglist.NewRepoPG(pool)
	directoryRepo := directory.NewRepoPG(pool)

	// Services
	waitingSvc := waitinglist.NewService(waitingRepo, referralRepo, logger)
	inTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.InTx(ctx, pool, fn)
	}
	referralSvc := referral.NewService(referralRepo, auditRepo, outboxRepo, inTx,
		referral.WithWaitingList(waitingSvc),
		referral.WithChangeListener(fanout),
	)
	directoryLookup := directory.NewLookup(directoryRepo, dirCache, cfg.DirectoryCacheTTL, logger)
	suggestionEngine := suggestion.NewEngine(referralRepo)

	// Webhooks, fed by the transactional outbox.
	webhookManager := webhook.NewManager(webhook.NewInMemoryStore())
	dispatcher := outbox.NewDispatcher(outboxRepo, outbox.SenderFunc(func(ctx context.Context, e *outbox.Event) error {
		_, err := webhookManager.Deliver(ctx, webhook.Event{
			ID:         e.ID.String(),
			Type:       e.EventType,
			ReferralID: e.ReferralID.String(),
			Payload:    e.Payload,
			Timestamp:  e.CreatedAt,
		})
		return err
	}), logger, outbox.WithInterval(cfg.OutboxInterval))

	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()
	go dispatcher.Run(dispatchCtx)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.Sanitize())
	e.Use(middleware.BodyLimit("1M", "25M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	}

	// Access audit on the API surface
	e.Use(middleware.Audit(logger))

	// API group with rate limiting
	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Domain routes
	referral.NewHandler(referralSvc).RegisterRoutes(apiV1)
	waitinglist.NewHandler(waitingSvc, referralSvc).RegisterRoutes(apiV1)
	directory.NewHandler(directoryLookup).RegisterRoutes(apiV1)
	suggestion.NewHandler(suggestionEngine).RegisterRoutes(apiV1)
	notify.NewHandler(notifyHub).RegisterRoutes(apiV1)
	webhook.NewHandler(webhookManager).RegisterRoutes(apiV1.Group("/webhooks",
		auth.RequireRole(auth.RoleAdmin)))
	stream.NewHandler(streamHub).RegisterRoutes(apiV1)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Start server
	go func() {
		addr := ":" + cfg.Port
		var err error
		if cfg.TLSEnabled {
			logger.Info().Str("addr", addr).Msg("starting server with TLS")
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			logger.Info().Str("addr", addr).Msg("starting server")
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	stopDispatch()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}
	return nil
}
