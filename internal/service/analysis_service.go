package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Dheerajkumar69/posture-detection/internal/cache"
	"github.com/Dheerajkumar69/posture-detection/internal/logger"
	"github.com/Dheerajkumar69/posture-detection/internal/monitoring"
	"github.com/Dheerajkumar69/posture-detection/internal/pipeline"
	"github.com/Dheerajkumar69/posture-detection/internal/posture"
	"github.com/Dheerajkumar69/posture-detection/internal/storage"
	"github.com/Dheerajkumar69/posture-detection/internal/store"
	"github.com/Dheerajkumar69/posture-detection/internal/tracing"
	"github.com/Dheerajkumar69/posture-detection/internal/utils"
	"github.com/Dheerajkumar69/posture-detection/internal/video"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrNotVideo is returned when an upload does not declare a video/* content type.
var ErrNotVideo = errors.New("file must be a video")

// FrameSource is a pipeline frame source that holds an open resource.
type FrameSource interface {
	pipeline.FrameSource
	Close() error
}

// OpenFunc opens a decoded frame stream for the file at path.
type OpenFunc func(ctx context.Context, path string) (FrameSource, error)

// ReportCache is satisfied by *cache.ReportCache.
type ReportCache interface {
	Get(ctx context.Context, key string) (posture.Report, bool, error)
	Set(ctx context.Context, key string, report posture.Report) error
}

// ReportStore is satisfied by *store.Store.
type ReportStore interface {
	SaveReport(ctx context.Context, sess store.Session, report posture.Report) error
}

// Upload is one video submitted for analysis.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Deps wires the service. Detector is required; the rest are optional.
type Deps struct {
	Detector pipeline.Detector
	Engines  int
	Open     OpenFunc // defaults to video.Open
	Cache    ReportCache
	Store    ReportStore
	Archive  storage.Archiver
	TempDir  string // defaults to os.TempDir()
}

type AnalysisService struct {
	deps Deps
}

func NewAnalysisService(deps Deps) *AnalysisService {
	if deps.Open == nil {
		deps.Open = OpenVideo
	}
	if deps.Engines < 1 {
		deps.Engines = 1
	}
	return &AnalysisService{deps: deps}
}

// OpenVideo adapts video.Open to OpenFunc.
func OpenVideo(ctx context.Context, path string) (FrameSource, error) {
	src, err := video.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// Analyze validates the upload, spools it to a temporary file and runs the posture
// pipeline over it. The temporary file is removed before Analyze returns.
// Persistence, archiving and caching are best effort and never fail the request.
func (s *AnalysisService) Analyze(ctx context.Context, up Upload, modeName string) (posture.Report, error) {
	mode, err := posture.ParseMode(modeName)
	if err != nil {
		return posture.Report{}, err
	}
	if !strings.HasPrefix(up.ContentType, "video/") {
		return posture.Report{}, fmt.Errorf("%w: got content type %q", ErrNotVideo, up.ContentType)
	}

	ctx, span := tracing.Tracer.Start(ctx, "AnalysisService.Analyze")
	defer span.End()
	span.SetAttributes(attribute.String("mode", mode.String()), attribute.String("filename", up.Filename))

	tmp, err := os.CreateTemp(s.deps.TempDir, "posture-*"+filepath.Ext(up.Filename))
	if err != nil {
		return posture.Report{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hash, size, err := utils.HashingCopy(tmp, up.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return posture.Report{}, fmt.Errorf("store upload: %w", err)
	}

	sessionID := utils.SessionID(hash, mode.String())
	log := logger.Log.With(zap.String("session", sessionID), zap.String("mode", mode.String()))
	log.Info("Analysis started", zap.String("filename", up.Filename), zap.Int64("bytes", size))

	key := cache.Key(hash, mode)
	if s.deps.Cache != nil {
		report, ok, err := s.deps.Cache.Get(ctx, key)
		if err != nil {
			log.Warn("Report cache read failed", zap.Error(err))
		} else if ok {
			log.Info("Serving cached report", zap.Int("frames", report.Summary.TotalFrames))
			monitoring.SessionsAnalyzed.WithLabelValues(mode.String(), "true").Inc()
			return report, nil
		}
	}

	report, err := s.run(ctx, tmp.Name(), mode)
	if err != nil {
		span.RecordError(err)
		log.Error("Analysis failed", zap.Error(err))
		return posture.Report{}, err
	}
	monitoring.SessionsAnalyzed.WithLabelValues(mode.String(), "false").Inc()
	log.Info("Analysis finished",
		zap.Int("frames", report.Summary.TotalFrames),
		zap.Int("good", report.Summary.GoodFrames),
		zap.Strings("common_issues", report.Summary.CommonIssues))

	if s.deps.Store != nil {
		sess := store.Session{ID: sessionID, Mode: mode, Source: up.Filename}
		if err := s.deps.Store.SaveReport(ctx, sess, report); err != nil {
			log.Warn("Failed to persist session", zap.Error(err))
		}
	}
	if s.deps.Archive != nil {
		loc, err := s.deps.Archive.Archive(ctx, sessionID+filepath.Ext(up.Filename), tmp.Name(), up.ContentType)
		if err != nil {
			log.Warn("Failed to archive upload", zap.Error(err))
		} else {
			log.Debug("Upload archived", zap.String("location", loc))
		}
	}
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Set(ctx, key, report); err != nil {
			log.Warn("Report cache write failed", zap.Error(err))
		}
	}

	return report, nil
}

func (s *AnalysisService) run(ctx context.Context, path string, mode posture.Mode) (posture.Report, error) {
	src, err := s.deps.Open(ctx, path)
	if err != nil {
		return posture.Report{}, err
	}
	defer src.Close()

	return pipeline.Run(ctx, src, s.deps.Detector, mode, pipeline.Options{
		Engines: s.deps.Engines,
		OnFrame: func(f posture.FrameResult) { monitoring.RecordFrame(mode, f) },
	})
}
