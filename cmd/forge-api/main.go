package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/miniforge/internal/api"
	mw "github.com/edvin/miniforge/internal/api/middleware"
	"github.com/edvin/miniforge/internal/api/request"
	"github.com/edvin/miniforge/internal/artifact"
	"github.com/edvin/miniforge/internal/config"
	"github.com/edvin/miniforge/internal/core"
	"github.com/edvin/miniforge/internal/db"
	"github.com/edvin/miniforge/internal/logging"
	"github.com/edvin/miniforge/internal/metrics"
	"github.com/edvin/miniforge/internal/process"
	"github.com/edvin/miniforge/internal/provision"
	"github.com/edvin/miniforge/internal/resource"
	"github.com/edvin/miniforge/internal/tasklog"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	migrateDirFlag := flag.String("migrate-dir", "migrations", "Migration files directory")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("forge-api"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if *migrateFlag {
		logger.Info().Str("dir", *migrateDirFlag).Msg("running database migrations")
		if err := db.RunMigrations(cfg.DatabaseURL, *migrateDirFlag, logger); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.ServiceName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	metrics.RegisterPool(prometheus.DefaultRegisterer, pool)

	workspace, err := filepath.Abs(cfg.WorkspaceDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve workspace")
	}
	fs := osfs.New(workspace)

	toolchain, err := process.LoadToolchain(cfg.ToolchainFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load toolchain")
	}

	request.SetTemplateDir(cfg.TemplateDir)

	hub := tasklog.NewHub(clock.WallClock)
	orchestrator := provision.NewOrchestrator(
		core.NewProvisionStore(pool),
		artifact.NewGenerator(fs, logger),
		resource.NewStage(fs, cfg.TemplateDir, logger),
		hub,
		logger,
		cfg.SubscribeTimeout,
	)

	opts := process.Options{
		StopTimeout:      cfg.StopTimeout,
		SubscribeTimeout: cfg.SubscribeTimeout,
		GracePeriod:      cfg.PublishGracePeriod,
		Clock:            clock.WallClock,
	}
	runner := process.NewRunner(cfg.UsePTY, clock.WallClock, logger)

	var archiver process.Archiver
	if cfg.ArchiveEnabled() {
		archiver = process.NewS3Archiver(process.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.QRArchiveBucket,
		}, logger)
		logger.Info().Str("bucket", cfg.QRArchiveBucket).Msg("qr archive enabled")
	}

	builds := process.NewBuildManager(runner, hub, toolchain, workspace, opts, logger)
	publishes := process.NewPublishManager(fs, runner, hub, toolchain, archiver, opts, logger)

	srv := api.NewServer(logger, api.Deps{
		Provisioner: orchestrator,
		Builds:      builds,
		Publishes:   publishes,
		Hub:         hub,
		DB:          pool,
		Auth:        mw.NewStaticKey(cfg.APIKey),

		OriginPatterns: cfg.WSOriginPatterns,
	})
	if cfg.APIKey == "" {
		logger.Warn().Msg("API_KEY not set, api is unauthenticated")
	}

	// No WriteTimeout: log streams stay open for the whole task.
	httpServer := &http.Server{
		Addr:              cfg.HTTPListenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Str("workspace", workspace).Msg("starting forge API server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return publishes.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)

		var kill errgroup.Group
		kill.Go(builds.RemoveAll)
		kill.Go(publishes.RemoveAll)
		if killErr := kill.Wait(); killErr != nil {
			logger.Error().Err(killErr).Msg("stopping toolchain processes failed")
		}
		orchestrator.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}
