package video

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const megabyte = 1024 * 1024

// Source streams decoded frames of one video file as JPEG images, in order.
type Source struct {
	info    Info
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	stderr  bytes.Buffer
	scanner *bufio.Scanner
	done    bool
}

// decoderCommand re-encodes every frame of path as MJPEG so frames can be split on
// JPEG markers. Frames pass through with their own timestamps, so variable frame rate
// input yields each stored frame exactly once.
func decoderCommand(ctx context.Context, path string) *exec.Cmd {
	cmd := ffmpeg.Input(path).
		Output("pipe:", ffmpeg.KwArgs{
			"f":        "image2pipe",
			"vcodec":   "mjpeg",
			"q:v":      "3",
			"fps_mode": "passthrough",
		}).
		GlobalArgs("-hide_banner", "-loglevel", "error").
		Compile()
	// Rebind to ctx so a cancelled request kills the decoder.
	return exec.CommandContext(ctx, cmd.Path, cmd.Args[1:]...)
}

// Open probes path and starts an ffmpeg decoder for it. A file ffprobe cannot read
// yields ErrDecode. The caller must Close the source.
func Open(ctx context.Context, path string) (*Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	info, err := Probe(path)
	if err != nil {
		return nil, err
	}

	cmd := decoderCommand(ctx, path)
	s := &Source{info: info, cmd: cmd}
	cmd.Stderr = &s.stderr

	s.stdout, err = cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	s.scanner = bufio.NewScanner(s.stdout)
	s.scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	s.scanner.Split(SplitJpeg)
	return s, nil
}

// FPS is the frame rate reported by the container, or 0 when unknown.
func (s *Source) FPS() float64 { return s.info.FPS }

// Info returns the probed metadata.
func (s *Source) Info() Info { return s.info }

// Next returns the next frame, or io.EOF once the stream is exhausted and ffmpeg
// exited cleanly.
func (s *Source) Next() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}
	if s.scanner.Scan() {
		frame := make([]byte, len(s.scanner.Bytes()))
		copy(frame, s.scanner.Bytes())
		return frame, nil
	}
	s.done = true
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("frame scanner failed: %w", err)
	}
	if err := s.cmd.Wait(); err != nil {
		return nil, fmt.Errorf("ffmpeg execution failed: %w: %s", err, bytes.TrimSpace(s.stderr.Bytes()))
	}
	return nil, io.EOF
}

// Close stops the decoder if it is still running.
func (s *Source) Close() error {
	s.stdout.Close()
	if !s.done {
		s.done = true
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.cmd.Wait()
	}
	return nil
}
