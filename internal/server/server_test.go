package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/Dheerajkumar69/posture-detection/internal/config"
	"github.com/Dheerajkumar69/posture-detection/internal/posture"
	"github.com/Dheerajkumar69/posture-detection/internal/service"
	"github.com/Dheerajkumar69/posture-detection/internal/video"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Mode: "test", MaxUploadMB: 1},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
		RateLimit: config.RateLimitConfig{MaxRequests: 1000, WindowMinutes: 1},
	}
}

type frames struct{ n, read int }

func (f *frames) FPS() float64 { return 25 }
func (f *frames) Close() error { return nil }
func (f *frames) Next() ([]byte, error) {
	if f.read == f.n {
		return nil, io.EOF
	}
	f.read++
	return []byte{0xFF, 0xD8, 0xFF, 0xD9}, nil
}

type noPose struct{}

func (noPose) Detect(context.Context, []byte) (posture.Pose, error) { return nil, nil }

func realService(t *testing.T, open service.OpenFunc) Analyzer {
	return service.NewAnalysisService(service.Deps{Detector: noPose{}, Open: open, TempDir: t.TempDir()})
}

type failingAnalyzer struct{ err error }

func (a failingAnalyzer) Analyze(context.Context, service.Upload, string) (posture.Report, error) {
	return posture.Report{}, a.err
}

// multipartBody builds an /analyze request body. An empty contentType omits the file part.
func multipartBody(t *testing.T, mode *string, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if contentType != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="clip.mp4"`)
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(payload)
	}
	if mode != nil {
		if err := w.WriteField("mode", *mode); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return body, w.FormDataContentType()
}

func post(t *testing.T, h http.Handler, mode *string, contentType string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, mode, contentType, payload)
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func ptr(s string) *string { return &s }

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body %q is not JSON: %v", w.Body.String(), err)
	}
	return resp.Detail
}

func TestHealth(t *testing.T) {
	r := NewRouter(testConfig(), failingAnalyzer{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" || body["message"] != "Posture Analysis API is running" {
		t.Errorf("body = %v", body)
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	open := func(context.Context, string) (service.FrameSource, error) { return &frames{n: 3}, nil }
	r := NewRouter(testConfig(), realService(t, open))

	w := post(t, r, ptr("desk"), "video/mp4", []byte("fake mp4"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var report struct {
		FrameResults []map[string]any `json:"frameResults"`
		Summary      map[string]any   `json:"summary"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if len(report.FrameResults) != 3 {
		t.Fatalf("frameResults = %d, want 3", len(report.FrameResults))
	}
	if report.FrameResults[0]["timestamp"] != 1.0/25 {
		t.Errorf("timestamp = %v, want %v", report.FrameResults[0]["timestamp"], 1.0/25)
	}
	if report.Summary["badFrames"] != 3.0 || report.Summary["accuracy"] != 0.92 {
		t.Errorf("summary = %v", report.Summary)
	}
}

func TestAnalyzeRejections(t *testing.T) {
	decodeFails := func(context.Context, string) (service.FrameSource, error) {
		return nil, fmt.Errorf("%w: invalid data found when processing input", video.ErrDecode)
	}

	tests := []struct {
		name        string
		analyzer    Analyzer
		mode        *string
		contentType string
		wantCode    int
		wantDetail  string
	}{
		{"Invalid mode", realService(t, decodeFails), ptr("invalid"), "video/mp4", http.StatusBadRequest, "Mode must be 'squat' or 'desk'"},
		{"Non video file", realService(t, decodeFails), ptr("squat"), "text/plain", http.StatusBadRequest, "File must be a video"},
		{"Undecodable video", realService(t, decodeFails), ptr("squat"), "video/mp4", http.StatusBadRequest, "Could not open video file"},
		{"Missing file", realService(t, decodeFails), ptr("squat"), "", http.StatusUnprocessableEntity, "Form field 'file' is required"},
		{"Missing mode", realService(t, decodeFails), nil, "video/mp4", http.StatusUnprocessableEntity, "Form field 'mode' is required"},
		{"Unexpected failure", failingAnalyzer{errors.New("engine crashed")}, ptr("squat"), "video/mp4", http.StatusInternalServerError, "Analysis failed: engine crashed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(testConfig(), tt.analyzer)
			w := post(t, r, tt.mode, tt.contentType, []byte("payload"))
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
			if got := detail(t, w); got != tt.wantDetail {
				t.Errorf("detail = %q, want %q", got, tt.wantDetail)
			}
		})
	}
}

func TestAnalyzeUploadTooLarge(t *testing.T) {
	r := NewRouter(testConfig(), failingAnalyzer{})
	payload := []byte(strings.Repeat("x", 2*megabyte))

	w := post(t, r, ptr("squat"), "video/mp4", payload)
	if w.Code != http.StatusRequestEntityTooLarge && w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want the upload to be rejected", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := NewRouter(testConfig(), failingAnalyzer{})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Errorf("/metrics status = %d", w.Code)
	}
}
