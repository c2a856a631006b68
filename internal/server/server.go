package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Dheerajkumar69/posture-detection/internal/config"
	"github.com/Dheerajkumar69/posture-detection/internal/logger"
	"github.com/Dheerajkumar69/posture-detection/internal/monitoring"
	"github.com/Dheerajkumar69/posture-detection/internal/security"
	"github.com/Dheerajkumar69/posture-detection/internal/tracing"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const megabyte = 1024 * 1024

// NewRouter builds the HTTP surface around an Analyzer.
func NewRouter(cfg *config.Config, analyzer Analyzer) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	monitoring.Init()

	router := gin.New()
	router.MaxMultipartMemory = 32 * megabyte // larger parts spill to temp files
	router.Use(gin.Recovery(), requestLogger())

	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}
	router.Use(monitoring.MetricsMiddleware())

	h := &Handler{analyzer: analyzer, maxUpload: cfg.Server.MaxUploadMB * megabyte}
	router.GET("/health", h.Health)
	router.POST("/analyze", h.Analyze)
	router.GET("/metrics", monitoring.PrometheusHandler())

	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Log.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// Run serves router on port until ctx is cancelled, then shuts down gracefully.
// In-flight analyses get shutdownTimeout to finish.
func Run(ctx context.Context, router http.Handler, port string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("Server running", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Log.Info("Server exiting")
	return nil
}
