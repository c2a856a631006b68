package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Dheerajkumar69/posture-detection/internal/logger"
	"github.com/Dheerajkumar69/posture-detection/internal/posture"
	"go.uber.org/zap"
)

// ErrPoolClosed is returned by Detect after Close.
var ErrPoolClosed = errors.New("engine pool closed")

type engine interface {
	Detect(frame []byte) (posture.Pose, error)
	Close()
	Kill()
}

type spawnFunc func(ctx context.Context, id int) (engine, error)

// Pool is the process-wide set of pose engines. It is built once at startup and
// shared by every analysis; each Detect call borrows one engine for one frame.
// An engine whose pipe breaks, or whose caller gives up on a frame, is killed and
// respawned on next use.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	slots  chan *slot
	spawn  spawnFunc
	size   int

	mu     sync.Mutex
	closed bool
	all    []*slot
}

type slot struct {
	id  int
	eng engine // nil until spawned, or after a crash
}

// NewPool starts size engines. All engines are started eagerly so a missing
// interpreter or model fails at startup rather than on the first request.
//
// Engines are not stopped when ctx is cancelled, only by Close. A server can then
// cancel ctx on SIGINT and still let in-flight analyses finish.
func NewPool(ctx context.Context, size int, cfg Config) (*Pool, error) {
	spawn := func(ctx context.Context, id int) (engine, error) {
		return NewPythonWorker(ctx, id, cfg)
	}
	return newPool(ctx, size, spawn, true)
}

func newPool(ctx context.Context, size int, spawn spawnFunc, eager bool) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	base, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p := &Pool{
		ctx:    base,
		cancel: cancel,
		slots:  make(chan *slot, size),
		spawn:  spawn,
		size:   size,
	}
	for i := 0; i < size; i++ {
		s := &slot{id: i}
		if eager {
			eng, err := spawn(base, i)
			if err != nil {
				p.Close()
				return nil, fmt.Errorf("engine %d: %w", i, err)
			}
			s.eng = eng
		}
		p.all = append(p.all, s)
		p.slots <- s
	}
	logger.Log.Info("Pose engine pool ready", zap.Int("engines", size))
	return p, nil
}

// Size is the number of engines, i.e. the useful upper bound on parallel Detect calls.
func (p *Pool) Size() int { return p.size }

type detectResult struct {
	pose posture.Pose
	err  error
}

// Detect borrows an engine, runs one frame through it and returns the engine. If ctx
// ends first the engine is killed, since it may still answer the abandoned frame.
func (p *Pool) Detect(ctx context.Context, frame []byte) (posture.Pose, error) {
	var s *slot
	select {
	case s = <-p.slots:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { p.slots <- s }()

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	if s.eng == nil {
		eng, err := p.spawn(p.ctx, s.id)
		if err != nil {
			return nil, fmt.Errorf("respawn engine %d: %w", s.id, err)
		}
		s.eng = eng
	}

	eng := s.eng
	done := make(chan detectResult, 1)
	go func() {
		pose, err := eng.Detect(frame)
		done <- detectResult{pose, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && !errors.Is(r.err, ErrWorkerLogic) {
			logger.Log.Warn("Pose engine failed, recycling", zap.Int("engine", s.id), zap.Error(r.err))
			eng.Kill()
			s.eng = nil
		}
		return r.pose, r.err
	case <-ctx.Done():
		logger.Log.Warn("Frame abandoned, recycling pose engine", zap.Int("engine", s.id), zap.Error(ctx.Err()))
		eng.Kill()
		<-done
		s.eng = nil
		return nil, ctx.Err()
	}
}

// Close waits for busy engines to be returned and stops all of them.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	held := make([]*slot, 0, len(p.all))
	for range p.all {
		held = append(held, <-p.slots)
	}
	for _, s := range held {
		if s.eng != nil {
			s.eng.Close()
			s.eng = nil
		}
		p.slots <- s
	}
	p.cancel()
}
