package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Dheerajkumar69/posture-detection/internal/config"
)

func withConfig(t *testing.T, cfg *config.Config) {
	t.Helper()
	prev := Cfg
	Cfg = cfg
	t.Cleanup(func() { Cfg = prev })
}

func TestResetWithoutDatabase(t *testing.T) {
	tests := []struct {
		name     string
		opts     ResetOptions
		wantErr  error
		wantDone bool
	}{
		{"Explicit --db", ResetOptions{DB: true, DBExplicit: true, Yes: true}, errNoDatabase, false},
		{"Everything by default", ResetOptions{Yes: true}, nil, true},
		{"Archive only", ResetOptions{Archive: true, Yes: true}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withConfig(t, &config.Config{})
			var out bytes.Buffer

			err := runReset(context.Background(), tt.opts, strings.NewReader(""), &out)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("runReset() error = %v, want %v", err, tt.wantErr)
			}
			if done := strings.Contains(out.String(), "Reset Complete"); done != tt.wantDone {
				t.Errorf("output %q, want completion message %v", out.String(), tt.wantDone)
			}
		})
	}
}

func TestResetLocalArchive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "abc-squat.mp4"), []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	withConfig(t, &config.Config{Storage: config.StorageConfig{Type: config.StorageLocal, LocalPath: dir}})

	// Declined prompt keeps the files.
	var out bytes.Buffer
	if err := runReset(context.Background(), ResetOptions{Archive: true}, strings.NewReader("n\n"), &out); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("archive removed without confirmation: %v", err)
	}

	if err := runReset(context.Background(), ResetOptions{Archive: true}, strings.NewReader("y\n"), &out); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("archive still present after reset: %v", err)
	}
}
