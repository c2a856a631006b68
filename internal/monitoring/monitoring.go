package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/Dheerajkumar69/posture-detection/internal/posture"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"method", "endpoint"},
	)

	// FramesScored counts analysed frames by mode and verdict (good, bad, failed).
	FramesScored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posture_frames_scored_total",
			Help: "Frames scored by the posture rule engines",
		},
		[]string{"mode", "verdict"},
	)

	// SessionsAnalyzed counts finished analyses by mode and whether the report came from cache.
	SessionsAnalyzed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posture_sessions_total",
			Help: "Completed posture analyses",
		},
		[]string{"mode", "cached"},
	)
)

var once sync.Once

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(FramesScored)
		prometheus.MustRegister(SessionsAnalyzed)
	})
}

// RecordFrame counts one scored frame. Frames with zero confidence failed detection or scoring.
func RecordFrame(mode posture.Mode, f posture.FrameResult) {
	verdict := "bad"
	switch {
	case f.Confidence == 0:
		verdict = "failed"
	case f.IsGoodPosture:
		verdict = "good"
	}
	FramesScored.WithLabelValues(mode.String(), verdict).Inc()
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
