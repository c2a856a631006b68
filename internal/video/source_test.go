package video

import (
	"context"
	"strings"
	"testing"
)

func TestDecoderCommand(t *testing.T) {
	cmd := decoderCommand(context.Background(), "clip.webm")
	args := strings.Join(cmd.Args[1:], " ")

	for _, want := range []string{
		"-i clip.webm",
		"-f image2pipe",
		"-vcodec mjpeg",
		"-fps_mode passthrough",
		"pipe:",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("ffmpeg args %q missing %q", args, want)
		}
	}
	if strings.Contains(args, "-r ") || strings.Contains(args, "-vsync cfr") {
		t.Errorf("ffmpeg args %q force a constant frame rate", args)
	}
}
