package main

import (
	"context"
	"errors"
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

	"github.com/mango/reabilita/internal/config"
	"github.com/mango/reabilita/internal/domain/comment"
	"github.com/mango/reabilita/internal/domain/live"
	"github.com/mango/reabilita/internal/domain/patient"
	"github.com/mango/reabilita/internal/domain/session"
	"github.com/mango/reabilita/internal/platform/apperr"
	"github.com/mango/reabilita/internal/platform/auth"
	"github.com/mango/reabilita/internal/platform/ble"
	"github.com/mango/reabilita/internal/platform/db"
	"github.com/mango/reabilita/internal/platform/middleware"
	"github.com/mango/reabilita/internal/platform/mqtt"
	"github.com/mango/reabilita/internal/platform/store"
	"github.com/mango/reabilita/internal/platform/tracing"
	"github.com/mango/reabilita/internal/platform/websocket"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "reabilita-server",
		Short: "Rehabilitation sensor API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(scanCmd())

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

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run postgres store migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, closePool, err := openMigrator(ctx)
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
			migrator, closePool, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
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
	})

	return cmd
}

func openMigrator(ctx context.Context) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, errors.New("DATABASE_URL is required for migrations")
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, db.Migrations()), pool.Close, nil
}

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List nearby BLE peripherals",
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			src := ble.NewSource(bleConfig(cfg), newLogger(cfg))

			found, err := src.Discover(cmd.Context(), timeout)
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}
			fmt.Printf("%-20s %-30s %s\n", "ADDRESS", "NAME", "RSSI")
			for _, p := range found {
				marker := ""
				if p.Name == cfg.BLEDeviceName {
					marker = " *"
				}
				fmt.Printf("%-20s %-30s %d%s\n", p.Address, p.Name, p.RSSI, marker)
			}
			return nil
		},
	}
	cmd.Flags().Duration("timeout", 5*time.Second, "How long to scan")
	return cmd
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func bleConfig(cfg *config.Config) ble.Config {
	return ble.Config{
		DeviceName:         cfg.BLEDeviceName,
		CharacteristicUUID: cfg.BLECharacteristicUUID,
		ScanTimeout:        cfg.BLEScanTimeout,
		IdleTimeout:        cfg.BLEIdleTimeout,
	}
}

// openStore connects the configured backend. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case "firebase":
		fb, err := store.NewFirebase(ctx, cfg.FirebaseDatabaseURL, cfg.FirebaseCredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("url", cfg.FirebaseDatabaseURL).Msg("connected to firebase")
		return fb, func() {}, nil
	case "postgres":
		pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			return nil, nil, err
		}
		count, err := db.NewMigrator(pool, db.Migrations()).Up(ctx)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate store schema: %w", err)
		}
		logger.Info().Int("applied", count).Msg("connected to database")
		return store.NewPostgres(pool), pool.Close, nil
	default:
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		return store.NewMemory(), func() {}, nil
	}
}

// liveSource adapts the configured peripheral transport to live.Source.
func liveSource(cfg *config.Config, logger zerolog.Logger) live.Source {
	if cfg.LiveSource == "mqtt" {
		src := mqtt.NewSource(mqtt.Config{
			Broker:   cfg.MQTTBroker,
			Topic:    cfg.MQTTTopic,
			ClientID: cfg.MQTTClientID,
		}, logger)
		return live.SourceFunc(func(ctx context.Context) (live.Stream, error) {
			st, err := src.Open(ctx)
			if err != nil {
				return nil, err
			}
			return st, nil
		})
	}

	src := ble.NewSource(bleConfig(cfg), logger)
	return live.SourceFunc(func(ctx context.Context) (live.Stream, error) {
		st, err := src.Open(ctx)
		if err != nil {
			return nil, err
		}
		return st, nil
	})
}

func newIssuer(cfg *config.Config) auth.Issuer {
	if cfg.AuthSigningKey != "" {
		return auth.NewJWTIssuer([]byte(cfg.AuthSigningKey), cfg.AuthTokenTTL)
	}
	return &auth.StaticIssuer{Token: cfg.AuthToken}
}

// newServer assembles the echo instance over an opened store and live source.
// Callers must Close the returned streamer on shutdown.
func newServer(cfg *config.Config, st store.Store, src live.Source, logger zerolog.Logger) (*echo.Echo, *live.Streamer) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.ErrorHandler

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	e.Use(middleware.RateLimit(rateLimitCfg))

	issuer := newIssuer(cfg)
	if cfg.AuthEnforce {
		e.Use(auth.RequireToken(issuer, auth.Skipper))
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if p, ok := st.(store.Pinger); ok {
		e.GET("/health/store", store.HealthHandler(p))
	}

	verifier := &auth.StaticVerifier{
		Username:     cfg.AuthUsername,
		Password:     cfg.AuthPassword,
		PasswordHash: cfg.AuthPasswordHash,
	}
	auth.NewHandler(verifier, issuer).RegisterRoutes(e)

	api := e.Group("")

	patientSvc := patient.NewService(patient.NewStoreRepository(st, logger))
	patient.NewHandler(patientSvc).RegisterRoutes(api)

	sessionSvc := session.NewService(session.NewStoreRepository(st, logger), cfg.SampleInterval, logger)
	session.NewHandler(sessionSvc).RegisterRoutes(api)

	commentSvc := comment.NewService(comment.NewStoreRepository(st, logger))
	comment.NewHandler(commentSvc).RegisterRoutes(api)

	hub := websocket.NewHub(logger)
	streamer := live.NewStreamer(src, sessionSvc, hub, logger)
	live.NewHandler(streamer, hub, websocket.NewUpgrader(cfg.CORSOrigins), logger).RegisterRoutes(api)

	return e, streamer
}

func runServer() error {
	bootLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Config
	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		bootLogger.Fatal().Err(err).Msg("invalid config")
	}
	logger := newLogger(cfg)

	ctx := context.Background()

	// Tracing
	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:  cfg.TracingEnabled,
		Exporter: cfg.TracingExporter,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	// Store
	backend, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to open store")
	}
	defer closeStore()

	e, streamer := newServer(cfg, store.NewTraced(backend), liveSource(cfg, logger), logger)

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.StoreBackend).Str("live_source", cfg.LiveSource).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Live sessions run on hijacked connections that Shutdown does not wait for.
	streamer.Close()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracing shutdown error")
	}
	return nil
}
