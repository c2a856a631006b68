package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/Dheerajkumar69/posture-detection/internal/pipeline"
	"github.com/Dheerajkumar69/posture-detection/internal/posture"
	"github.com/Dheerajkumar69/posture-detection/internal/store"
	"github.com/Dheerajkumar69/posture-detection/internal/video"
)

type fakeSource struct {
	frames int
	read   int
	closed bool
}

func (s *fakeSource) FPS() float64 { return 0 }
func (s *fakeSource) Close() error { s.closed = true; return nil }
func (s *fakeSource) Next() ([]byte, error) {
	if s.read == s.frames {
		return nil, io.EOF
	}
	s.read++
	return []byte{byte(s.read)}, nil
}

// noPose never finds anybody.
type noPose struct{}

func (noPose) Detect(context.Context, []byte) (posture.Pose, error) { return nil, nil }

type brokenDetector struct{}

func (brokenDetector) Detect(context.Context, []byte) (posture.Pose, error) {
	return nil, errors.New("engine crashed")
}

type memCache struct {
	data map[string]posture.Report
	sets int
}

func (c *memCache) Get(_ context.Context, key string) (posture.Report, bool, error) {
	r, ok := c.data[key]
	return r, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, r posture.Report) error {
	c.data[key] = r
	c.sets++
	return nil
}

type memStore struct {
	saved []store.Session
	err   error
}

func (s *memStore) SaveReport(_ context.Context, sess store.Session, _ posture.Report) error {
	s.saved = append(s.saved, sess)
	return s.err
}

type memArchive struct{ names []string }

func (a *memArchive) Archive(_ context.Context, name, localPath, _ string) (string, error) {
	if _, err := os.Stat(localPath); err != nil {
		return "", fmt.Errorf("temp upload missing while archiving: %w", err)
	}
	a.names = append(a.names, name)
	return "/archive/" + name, nil
}

// harness records every path the service asked to open so tests can assert cleanup.
type harness struct {
	opened []string
	src    *fakeSource
	err    error
}

func (h *harness) open(_ context.Context, path string) (FrameSource, error) {
	h.opened = append(h.opened, path)
	if h.err != nil {
		return nil, h.err
	}
	return h.src, nil
}

func (h *harness) assertCleanedUp(t *testing.T) {
	t.Helper()
	for _, p := range h.opened {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("temporary upload %s was not removed", p)
		}
	}
}

func upload(contentType string) Upload {
	return Upload{Filename: "clip.mp4", ContentType: contentType, Body: strings.NewReader("not really a video")}
}

func TestAnalyzeNoPoseVideo(t *testing.T) {
	h := &harness{src: &fakeSource{frames: 4}}
	c := &memCache{data: map[string]posture.Report{}}
	st := &memStore{}
	ar := &memArchive{}
	svc := NewAnalysisService(Deps{Detector: noPose{}, Engines: 2, Open: h.open, Cache: c, Store: st, Archive: ar, TempDir: t.TempDir()})

	report, err := svc.Analyze(context.Background(), upload("video/mp4"), "squat")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	s := report.Summary
	if s.TotalFrames != 4 || s.GoodFrames != 0 || s.BadFrames != 4 {
		t.Errorf("summary = %+v", s)
	}
	if len(s.CommonIssues) != 1 || s.CommonIssues[0] != posture.IssueNoPose {
		t.Errorf("CommonIssues = %v", s.CommonIssues)
	}
	if !h.src.closed {
		t.Error("frame source was not closed")
	}
	h.assertCleanedUp(t)

	if len(st.saved) != 1 || st.saved[0].Mode != posture.ModeSquat || st.saved[0].Source != "clip.mp4" {
		t.Errorf("saved sessions = %+v", st.saved)
	}
	if !strings.HasSuffix(st.saved[0].ID, "-squat") {
		t.Errorf("session id = %q, want <hash>-squat", st.saved[0].ID)
	}
	if len(ar.names) != 1 || ar.names[0] != st.saved[0].ID+".mp4" {
		t.Errorf("archived = %v", ar.names)
	}
	if c.sets != 1 {
		t.Errorf("cache writes = %d, want 1", c.sets)
	}
}

func TestAnalyzeServesCache(t *testing.T) {
	c := &memCache{data: map[string]posture.Report{}}
	h := &harness{src: &fakeSource{frames: 2}}
	svc := NewAnalysisService(Deps{Detector: noPose{}, Open: h.open, Cache: c, TempDir: t.TempDir()})

	first, err := svc.Analyze(context.Background(), upload("video/mp4"), "desk")
	if err != nil {
		t.Fatalf("first Analyze() error = %v", err)
	}

	h.src = &fakeSource{frames: 99} // would change the result if it were read
	second, err := svc.Analyze(context.Background(), upload("video/mp4"), "desk")
	if err != nil {
		t.Fatalf("second Analyze() error = %v", err)
	}
	if len(h.opened) != 1 {
		t.Errorf("video opened %d times, want 1", len(h.opened))
	}
	if second.Summary.TotalFrames != first.Summary.TotalFrames {
		t.Errorf("cached report has %d frames, want %d", second.Summary.TotalFrames, first.Summary.TotalFrames)
	}

	// Same bytes in another mode is a different report.
	h.src = &fakeSource{frames: 3}
	if _, err := svc.Analyze(context.Background(), upload("video/mp4"), "squat"); err != nil {
		t.Fatal(err)
	}
	if len(h.opened) != 2 {
		t.Errorf("video opened %d times, want 2", len(h.opened))
	}
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name        string
		mode        string
		contentType string
		openErr     error
		det         pipeline.Detector
		want        error
		wantOpened  bool
	}{
		{"Invalid mode", "yoga", "video/mp4", nil, noPose{}, posture.ErrUnknownMode, false},
		{"Not a video", "squat", "image/png", nil, noPose{}, ErrNotVideo, false},
		{"Missing content type", "desk", "", nil, noPose{}, ErrNotVideo, false},
		{"Undecodable", "squat", "video/mp4", fmt.Errorf("%w: moov atom not found", video.ErrDecode), noPose{}, video.ErrDecode, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &harness{src: &fakeSource{frames: 1}, err: tt.openErr}
			svc := NewAnalysisService(Deps{Detector: tt.det, Open: h.open, TempDir: t.TempDir()})

			_, err := svc.Analyze(context.Background(), upload(tt.contentType), tt.mode)
			if !errors.Is(err, tt.want) {
				t.Errorf("Analyze() error = %v, want %v", err, tt.want)
			}
			if (len(h.opened) > 0) != tt.wantOpened {
				t.Errorf("opened = %v, wantOpened %v", h.opened, tt.wantOpened)
			}
			h.assertCleanedUp(t)
		})
	}
}

func TestAnalyzeDetectorFailure(t *testing.T) {
	h := &harness{src: &fakeSource{frames: 3}}
	st := &memStore{}
	svc := NewAnalysisService(Deps{Detector: brokenDetector{}, Open: h.open, Store: st, TempDir: t.TempDir()})

	_, err := svc.Analyze(context.Background(), upload("video/mp4"), "squat")
	if err == nil || !strings.Contains(err.Error(), "engine crashed") {
		t.Fatalf("Analyze() error = %v, want engine failure", err)
	}
	if len(st.saved) != 0 {
		t.Error("a failed analysis must not be persisted")
	}
	if !h.src.closed {
		t.Error("frame source was not closed")
	}
	h.assertCleanedUp(t)
}

func TestAnalyzeIgnoresStoreFailure(t *testing.T) {
	h := &harness{src: &fakeSource{frames: 1}}
	st := &memStore{err: errors.New("database down")}
	svc := NewAnalysisService(Deps{Detector: noPose{}, Open: h.open, Store: st, TempDir: t.TempDir()})

	if _, err := svc.Analyze(context.Background(), upload("video/webm"), "desk"); err != nil {
		t.Errorf("Analyze() error = %v, store failures must not fail the request", err)
	}
}
