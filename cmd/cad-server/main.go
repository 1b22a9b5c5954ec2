package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/memorysinkhonde/cad-Backend/internal/config"
	"github.com/memorysinkhonde/cad-Backend/internal/domain/dashboard"
	"github.com/memorysinkhonde/cad-Backend/internal/domain/hospital"
	"github.com/memorysinkhonde/cad-Backend/internal/domain/identity"
	"github.com/memorysinkhonde/cad-Backend/internal/domain/inference"
	"github.com/memorysinkhonde/cad-Backend/internal/domain/patient"
	"github.com/memorysinkhonde/cad-Backend/internal/domain/registration"
	"github.com/memorysinkhonde/cad-Backend/internal/domain/report"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/auth"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/cache"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/db"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/middleware"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/notification"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/validate"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/websocket"
	"github.com/memorysinkhonde/cad-Backend/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "cad-server",
		Short: "CAD screening patient management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(hospitalsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func openPool(ctx context.Context) (*config.Config, func(), *db.Migrator, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, pool.Close, db.NewMigrator(pool, migrations.FS), nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, closePool, migrator, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer closePool()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, closePool, migrator, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatuses(cmd.OutOrStdout(), statuses)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Fprintln(cmd.OutOrStdout(), "Restore from a backup or apply a corrective migration instead.")
			return nil
		},
	})

	return cmd
}

func printStatuses(w io.Writer, statuses []db.MigrationStatus) {
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

func hospitalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hospitals",
		Short: "Manage hospitals",
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Create a hospital for every facility in the directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if path, _ := cmd.Flags().GetString("file"); path != "" {
				cfg.FacilitiesHTMLPath = path
			}
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := newLogger(cfg.Env)
			dir := hospital.NewDirectory(cfg.FacilitiesHTMLPath, cache.NewMemoryKV(), logger)
			svc := hospital.NewService(hospital.NewRepo(pool), db.NewTransactor(pool), dir, logger)
			n, err := svc.Import(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d hospital(s).\n", n)
			return nil
		},
	}
	importCmd.Flags().String("file", "", "Path to the facilities HTML file (defaults to FACILITIES_HTML_PATH)")
	cmd.AddCommand(importCmd)
	return cmd
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// stores are the key/value cache and verification attempt limiter, backed by
// redis when a URL is configured and by process memory otherwise.
type stores struct {
	kv      cache.KV
	limiter cache.AttemptLimiter
	close   func() error
}

func newStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.RedisURL == "" {
		return &stores{
			kv:      cache.NewMemoryKV(),
			limiter: cache.NewMemoryLimiter(cfg.VerificationMaxAttempts, cfg.VerificationCooldown),
			close:   func() error { return nil },
		}, nil
	}
	client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return &stores{
		kv:      cache.NewRedisKV(client),
		limiter: cache.NewRedisLimiter(client, "verify:attempts:", cfg.VerificationMaxAttempts, cfg.VerificationCooldown),
		close:   client.Close,
	}, nil
}

// resolveSigningKey decodes the hex JWT signing key, or generates a random
// 32-byte key when none is configured. The second return value is true when
// a random key was generated.
func resolveSigningKey(hexKey string) ([]byte, bool, error) {
	if hexKey != "" {
		decoded, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, false, fmt.Errorf("invalid JWT_SIGNING_KEY hex value: %w", err)
		}
		return decoded, false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random JWT signing key: %w", err)
	}
	return key, true, nil
}

func runServer() error {
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
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	st, err := newStores(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer st.close()

	key, random, err := resolveSigningKey(cfg.JWTSigningKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve signing key")
	}
	if random {
		logger.Warn().Msg("using a random JWT signing key; tokens will not survive a restart")
	}
	tokens := auth.NewTokenIssuer(key, cfg.JWTIssuer, cfg.AccessTokenTTL)

	tx := db.NewTransactor(pool)
	hub := websocket.NewHub(logger)
	sender := notification.NewSMTPSender(notification.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	templates := notification.NewTemplateEngine()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M", "12M", "POST /api/v1/nurse/patients"))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/api/v1/ws"))
	e.Use(auth.JWTMiddleware(auth.JWTConfig{Issuer: tokens, Skipper: auth.AuthSkipper}))

	apiV1 := e.Group("/api/v1")

	// Rate limiting middleware
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Hospitals
	directory := hospital.NewDirectory(cfg.FacilitiesHTMLPath, st.kv, logger)
	hospitalSvc := hospital.NewService(hospital.NewRepo(pool), tx, directory, logger)
	hospital.NewHandler(hospitalSvc).RegisterRoutes(apiV1)

	// Identity and registration
	userRepo := identity.NewUserRepo(pool)
	identitySvc := identity.NewService(userRepo, tx, tokens, logger)
	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)

	registrationSvc := registration.NewService(
		registration.NewRepo(pool), userRepo, hospitalSvc, identitySvc, tx,
		st.limiter, sender, templates,
		registration.Config{CodeTTL: cfg.VerificationCodeTTL, Cooldown: cfg.VerificationCooldown},
		logger,
	)
	registration.NewHandler(registrationSvc).RegisterRoutes(apiV1)

	// Live updates
	websocket.NewHandler(hub, identitySvc, cfg.CORSOrigins, logger).RegisterRoutes(apiV1)

	// Patients and dashboards
	patientRepo := patient.NewRepo(pool)
	patientSvc := patient.NewService(patientRepo, identitySvc, tx, hub, logger)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)

	dashboardSvc := dashboard.NewService(dashboard.NewRepo(pool), identitySvc, cfg.HighRiskConfidence, logger)
	dashboard.NewHandler(dashboardSvc).RegisterRoutes(apiV1)

	// Reports
	reportSvc := report.NewService(patientRepo, dashboardSvc, tx, sender, templates, hub, logger)
	report.NewHandler(reportSvc).RegisterRoutes(apiV1)

	// Inference
	models := inference.NewServingClient(inference.ClientConfig{
		ImageURL:   cfg.ImageModelURL,
		TabularURL: cfg.TabularModelURL,
		Timeout:    cfg.ModelTimeout,
		Retries:    2,
	}, logger)
	inferenceSvc := inference.NewService(patientRepo, identitySvc, tx, models, models, hub, inference.Thresholds{
		MinConfidence:    cfg.PredictionMinConfidence,
		StrongConfidence: cfg.PredictionStrongConfidence,
		MaxEntropy:       cfg.PredictionMaxEntropy,
	}, logger)
	inference.NewHandler(inferenceSvc).RegisterRoutes(apiV1)

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
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
