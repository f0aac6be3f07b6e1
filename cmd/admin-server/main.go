package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/docavailable/admin-api/internal/config"
	"github.com/docavailable/admin-api/internal/domain/admin"
	"github.com/docavailable/admin-api/internal/domain/analytics"
	"github.com/docavailable/admin-api/internal/domain/encounter"
	"github.com/docavailable/admin-api/internal/domain/plan"
	"github.com/docavailable/admin-api/internal/domain/subscription"
	"github.com/docavailable/admin-api/internal/domain/withdrawal"
	"github.com/docavailable/admin-api/internal/platform/apperr"
	"github.com/docavailable/admin-api/internal/platform/auth"
	"github.com/docavailable/admin-api/internal/platform/cache"
	"github.com/docavailable/admin-api/internal/platform/db"
	"github.com/docavailable/admin-api/internal/platform/middleware"
	"github.com/docavailable/admin-api/internal/platform/notification"
	"github.com/docavailable/admin-api/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "admin-server",
		Short: "DocAvailable admin dashboard API",
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
		Short: "Start the admin API server",
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
			return withMigrator(dir, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withMigrator(dir, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func withMigrator(dir string, fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, migrationSource(dir)))
}

// migrationSource returns the embedded migrations unless dir is set.
func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		DatabaseURL:    cfg.DatabaseURL,
		MaxConns:       cfg.DBMaxConns,
		MinConns:       cfg.DBMinConns,
		ConnectTimeout: cfg.DBAcquireTimeout,
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Analytics cache
	var analyticsCache cache.Cache = cache.NopCache{}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.RedisURL, "admin-api:")
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, analytics will not be cached")
		} else {
			defer rc.Close()
			analyticsCache = rc
			logger.Info().Msg("connected to redis")
		}
	}

	e, err := newServer(cfg, pool, deps{
		cache:  analyticsCache,
		email:  emailSender(cfg, logger),
		logger: logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.ShutdownTimeout > 0 {
		return cfg.ShutdownTimeout
	}
	return 10 * time.Second
}

// emailSender delivers through SMTP when a relay is configured and only logs
// the message otherwise.
func emailSender(cfg *config.Config, logger zerolog.Logger) notification.EmailSender {
	if !cfg.MailEnabled() {
		return notification.NewLogSender(logger)
	}
	return notification.NewSMTPSender(notification.SMTPConfig{
		Host:        cfg.MailHost,
		Port:        cfg.MailPort,
		Username:    cfg.MailUsername,
		Password:    cfg.MailPassword,
		FromAddress: cfg.MailFromAddress,
		FromName:    cfg.MailFromName,
	})
}

type deps struct {
	cache  cache.Cache
	email  notification.EmailSender
	logger zerolog.Logger
}

type drainer interface {
	Drain(ctx context.Context) error
}

// server is the echo instance plus the background work that must finish
// before the process exits.
type server struct {
	*echo.Echo
	background []drainer
}

// Shutdown stops accepting requests, then waits for background work within
// the same deadline.
func (s *server) Shutdown(ctx context.Context) error {
	errs := []error{s.Echo.Shutdown(ctx)}
	for _, d := range s.background {
		errs = append(errs, d.Drain(ctx))
	}
	return errors.Join(errs...)
}

// newServer builds the echo instance with every route registered. The pool
// is only touched by requests, never during construction.
func newServer(cfg *config.Config, pool *pgxpool.Pool, d deps) (*server, error) {
	logger := d.logger
	legacy, err := cfg.LegacyAdmins()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger, cfg.IsDev())

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	// Health endpoints
	e.GET("/health", db.LivenessHandler())
	e.GET("/health/db", db.HealthHandler(pool, 5*time.Second))

	rateCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateCfg.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rateCfg.BurstSize = cfg.RateLimitBurst
	}

	apiV1 := e.Group("/api/v1",
		auth.JWTMiddleware(auth.JWTConfig{SigningKey: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer}),
		middleware.RateLimit(rateCfg),
		middleware.RequestTimeout(cfg.DBQueryTimeout),
		db.ConnMiddleware(pool, cfg.DBAcquireTimeout),
		middleware.Audit(logger),
	)

	tx := db.NewTxRunner(pool)

	// Admins
	adminRepo := admin.NewIdentityRepo(pool)
	resolver := admin.NewResolver(adminRepo, legacy, logger)
	admin.NewHandler(admin.NewService(adminRepo)).RegisterRoutes(apiV1)

	// Encounters
	encounter.NewHandler(encounter.NewService(encounter.NewRepo(pool), logger)).RegisterRoutes(apiV1)

	// Withdrawals
	notifier := notification.NewNotifier(notification.NewTemplateEngine(), d.email)
	withdrawalSvc := withdrawal.NewService(withdrawal.NewRepo(pool), tx, resolver, notifier, logger)
	withdrawal.NewHandler(withdrawalSvc).RegisterRoutes(apiV1)

	// Subscriptions and plans
	subscription.NewHandler(subscription.NewService(subscription.NewRepo(pool), logger)).RegisterRoutes(apiV1)
	plan.NewHandler(plan.NewService(plan.NewRepo(pool), tx, logger)).RegisterRoutes(apiV1)

	// Analytics
	analyticsCache := d.cache
	if analyticsCache == nil {
		analyticsCache = cache.NopCache{}
	}
	analyticsSvc := analytics.NewService(analytics.NewRepo(pool), analyticsCache, cfg.AnalyticsCacheTTL, logger)
	analytics.NewHandler(analyticsSvc).RegisterRoutes(apiV1)

	return &server{Echo: e, background: []drainer{withdrawalSvc}}, nil
}
