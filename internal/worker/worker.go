package worker

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/Dheerajkumar69/posture-detection/internal/posture"
	"github.com/Dheerajkumar69/posture-detection/internal/types"
	"github.com/Dheerajkumar69/posture-detection/internal/utils"
)

// maxResponseSize bounds a single JSON reply; a full landmark set is a few KB.
const maxResponseSize = 1 << 20

// closeGrace is how long Close lets an engine exit on its own after stdin closes.
var closeGrace = 3 * time.Second

// ErrWorkerLogic marks a failure reported by the Python side for one frame. The
// engine itself is still healthy after such an error.
var ErrWorkerLogic = errors.New("python worker error")

// Config controls how a pose engine is launched.
type Config struct {
	Python      string        // interpreter, e.g. python3
	Script      string        // path to pose_worker.py
	ReadTimeout time.Duration // per-frame deadline for the whole exchange, 0 disables
}

// PythonWorker owns one MediaPipe pose process. Frames go in on stdin and replies
// come back on a dedicated pipe (fd 3) so Python logging on stdout/stderr cannot
// corrupt the stream.
type PythonWorker struct {
	ID          int
	Cmd         *utils.SafeCommand
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	ReadTimeout time.Duration

	closeOnce sync.Once
}

// NewPythonWorker starts a pose engine. Cancelling ctx kills it.
func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	py := utils.NewSafeCommand(ctx, cfg.Python, "-u", cfg.Script)

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// The write end appears as fd 3 in the child.
	py.Cmd.ExtraFiles = []*os.File{w}
	// Children of the interpreter may keep stderr open after it dies.
	py.Cmd.WaitDelay = time.Second

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Only the child holds the write end from here on.
	w.Close()

	return &PythonWorker{
		ID:          id,
		Cmd:         py,
		Stdin:       stdin,
		DataPipe:    r,
		ReadTimeout: cfg.ReadTimeout,
	}, nil
}

// Communicate sends one length-prefixed payload and reads one length-prefixed reply.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	if w.ReadTimeout > 0 {
		deadline := time.Now().Add(w.ReadTimeout)
		if d, ok := w.Stdin.(interface{ SetWriteDeadline(time.Time) error }); ok {
			_ = d.SetWriteDeadline(deadline)
		}
		if d, ok := w.DataPipe.(interface{ SetReadDeadline(time.Time) error }); ok {
			_ = d.SetReadDeadline(deadline)
		}
	}

	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // a dead interpreter (e.g. ModuleNotFoundError) surfaces here
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxResponseSize {
		return nil, fmt.Errorf("worker %d reply too large: %d bytes", w.ID, respLen)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// Detect runs pose detection on one JPEG frame. A nil Pose with a nil error means
// no person was found.
func (w *PythonWorker) Detect(frame []byte) (posture.Pose, error) {
	raw, err := w.Communicate(frame)
	if err != nil {
		return nil, err
	}

	var resp types.PoseResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("worker %d sent malformed JSON: %w", w.ID, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrWorkerLogic, resp.Error)
	}
	return resp.Landmarks, nil
}

// Close shuts the engine down. The interpreter exits on stdin EOF; one that has not
// exited after closeGrace is killed.
func (w *PythonWorker) Close() {
	w.closeOnce.Do(func() {
		w.Stdin.Close()
		w.DataPipe.Close()
		if w.Cmd == nil || w.Cmd.Process == nil {
			return
		}

		exited := make(chan struct{})
		go func() {
			w.Cmd.Wait()
			close(exited)
		}()
		select {
		case <-exited:
		case <-time.After(closeGrace):
			w.Cmd.Process.Kill()
			<-exited
		}
	})
}

// Kill stops the engine at once, abandoning any frame in flight.
func (w *PythonWorker) Kill() {
	if w.Cmd != nil && w.Cmd.Process != nil {
		w.Cmd.Process.Kill()
	}
	w.Close()
}
