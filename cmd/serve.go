package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Dheerajkumar69/posture-detection/internal/cache"
	"github.com/Dheerajkumar69/posture-detection/internal/config"
	"github.com/Dheerajkumar69/posture-detection/internal/logger"
	"github.com/Dheerajkumar69/posture-detection/internal/server"
	"github.com/Dheerajkumar69/posture-detection/internal/service"
	"github.com/Dheerajkumar69/posture-detection/internal/storage"
	"github.com/Dheerajkumar69/posture-detection/internal/tracing"
	"github.com/Dheerajkumar69/posture-detection/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the posture analysis HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort != "" {
			Cfg.Server.Port = servePort
		}
		return runServe(cmd.Context(), Cfg)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Listen port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

func detectorConfig(cfg *config.Config) worker.Config {
	return worker.Config{
		Python:      cfg.Detector.Python,
		Script:      cfg.Detector.Script,
		ReadTimeout: cfg.Detector.Timeout,
	}
}

// runServe wires the engine pool and the optional backends into the HTTP server and
// blocks until ctx is cancelled.
func runServe(ctx context.Context, cfg *config.Config) error {
	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
			}
		}()
	}

	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d pose engines...\n", cfg.Detector.Engines)
	// Engines outlive ctx. Close runs after server.Run has drained in-flight requests.
	pool, err := worker.NewPool(ctx, cfg.Detector.Engines, detectorConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to start pose engines: %w", err)
	}
	defer pool.Close()

	deps := service.Deps{Detector: pool, Engines: pool.Size()}

	if cfg.Database.URL != "" {
		db, err := requireDB(ctx)
		if err != nil {
			return err
		}
		deps.Store = db
	}

	if cfg.Redis.Addr != "" {
		rc, err := cache.New(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to initialize redis: %w", err)
		}
		defer rc.Close()
		deps.Cache = rc
	}

	archive, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize upload storage: %w", err)
	}
	deps.Archive = archive

	router := server.NewRouter(cfg, service.NewAnalysisService(deps))
	logger.Log.Info("Posture Analysis API starting",
		zap.String("port", cfg.Server.Port),
		zap.Int("engines", pool.Size()),
		zap.Bool("store", deps.Store != nil),
		zap.Bool("cache", deps.Cache != nil),
		zap.String("storage", cfg.Storage.Type))

	return server.Run(ctx, router, cfg.Server.Port, shutdownTimeout)
}
