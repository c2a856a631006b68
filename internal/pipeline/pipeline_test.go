package pipeline

import (
	"context"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/Dheerajkumar69/posture-detection/internal/posture"
)

type fakeSource struct {
	fps    float64
	frames [][]byte
	err    error // returned after frames are exhausted instead of io.EOF
	next   int
}

func (s *fakeSource) FPS() float64 { return s.fps }

func (s *fakeSource) Next() ([]byte, error) {
	if s.next >= len(s.frames) {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func numbered(n int) *fakeSource {
	src := &fakeSource{}
	for i := 1; i <= n; i++ {
		src.frames = append(src.frames, []byte{byte(i)})
	}
	return src
}

// fakeDetector maps the first byte of a frame to a pose. Lower frame numbers sleep
// longer so that concurrent engines finish out of order.
type fakeDetector struct {
	poses map[byte]posture.Pose
	err   map[byte]error
	delay bool
}

func (d *fakeDetector) Detect(ctx context.Context, frame []byte) (posture.Pose, error) {
	if d.delay {
		select {
		case <-time.After(time.Duration(10-int(frame[0])%10) * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := d.err[frame[0]]; err != nil {
		return nil, err
	}
	return d.poses[frame[0]], nil
}

func goodDesk() posture.Pose {
	p := posture.Pose{}
	for _, side := range []string{"left_", "right_"} {
		p[posture.Name(side+"shoulder")] = posture.Point{X: 0.8, Y: 0.45}
		p[posture.Name(side+"hip")] = posture.Point{X: 0.4, Y: 0.5}
		p[posture.Name(side+"ear")] = posture.Point{X: 0.85, Y: 0.4}
	}
	return p
}

func TestRunNoPose(t *testing.T) {
	report, err := Run(context.Background(), numbered(5), &fakeDetector{}, posture.ModeSquat, Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	s := report.Summary
	if s.TotalFrames != 5 || s.GoodFrames != 0 || s.BadFrames != 5 {
		t.Errorf("summary = %+v, want 5 bad frames", s)
	}
	if !reflect.DeepEqual(s.CommonIssues, []string{posture.IssueNoPose}) {
		t.Errorf("CommonIssues = %v", s.CommonIssues)
	}
	for i, f := range report.FrameResults {
		if f.FrameNumber != i+1 {
			t.Errorf("frame %d has number %d", i, f.FrameNumber)
		}
		wantTS := float64(i+1) / posture.DefaultFPS
		if f.Timestamp != wantTS {
			t.Errorf("frame %d timestamp = %v, want %v", i+1, f.Timestamp, wantTS)
		}
	}
}

func TestRunOrdersConcurrentResults(t *testing.T) {
	const n = 20
	det := &fakeDetector{poses: map[byte]posture.Pose{}, delay: true}
	for i := 1; i <= n; i += 2 {
		det.poses[byte(i)] = goodDesk()
	}
	src := numbered(n)
	src.fps = 10

	var seen []int
	report, err := Run(context.Background(), src, det, posture.ModeDesk, Options{
		Engines: 4,
		OnFrame: func(f posture.FrameResult) { seen = append(seen, f.FrameNumber) },
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(report.FrameResults) != n || len(seen) != n {
		t.Fatalf("got %d results and %d callbacks, want %d", len(report.FrameResults), len(seen), n)
	}
	for i, f := range report.FrameResults {
		if f.FrameNumber != i+1 || seen[i] != i+1 {
			t.Fatalf("results out of order at %d: frame %d, callback %d", i, f.FrameNumber, seen[i])
		}
		wantGood := (i+1)%2 == 1
		if f.IsGoodPosture != wantGood {
			t.Errorf("frame %d IsGoodPosture = %v, want %v", f.FrameNumber, f.IsGoodPosture, wantGood)
		}
	}
	if report.Summary.GoodFrames != n/2 || report.Summary.BadFrames != n/2 {
		t.Errorf("summary = %+v", report.Summary)
	}
	if report.FrameResults[9].Timestamp != 1.0 {
		t.Errorf("frame 10 timestamp = %v, want 1.0 at 10fps", report.FrameResults[9].Timestamp)
	}
}

func TestRunEmptySource(t *testing.T) {
	report, err := Run(context.Background(), numbered(0), &fakeDetector{}, posture.ModeDesk, Options{Engines: 2})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Summary.TotalFrames != 0 || len(report.FrameResults) != 0 {
		t.Errorf("report = %+v, want empty", report)
	}
	want := []string{"Take regular breaks to stretch and move"}
	if !reflect.DeepEqual(report.Summary.Recommendations, want) {
		t.Errorf("Recommendations = %v, want %v", report.Summary.Recommendations, want)
	}
}

func TestRunErrors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name string
		src  *fakeSource
		det  *fakeDetector
		mode posture.Mode
	}{
		{"Source failure", &fakeSource{frames: [][]byte{{1}}, err: boom}, &fakeDetector{}, posture.ModeSquat},
		{"Detector failure", numbered(6), &fakeDetector{err: map[byte]error{3: boom}}, posture.ModeSquat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(context.Background(), tt.src, tt.det, tt.mode, Options{Engines: 2})
			if !errors.Is(err, boom) {
				t.Errorf("Run() error = %v, want boom", err)
			}
		})
	}
}

func TestRunUnknownMode(t *testing.T) {
	_, err := Run(context.Background(), numbered(1), &fakeDetector{}, posture.Mode(0), Options{})
	if !errors.Is(err, posture.ErrUnknownMode) {
		t.Errorf("Run() error = %v, want ErrUnknownMode", err)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, numbered(50), &fakeDetector{delay: true}, posture.ModeSquat, Options{Engines: 3})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}
