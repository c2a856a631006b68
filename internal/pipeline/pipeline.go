package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Dheerajkumar69/posture-detection/internal/posture"
	"github.com/Dheerajkumar69/posture-detection/internal/tracing"
	"github.com/Dheerajkumar69/posture-detection/internal/types"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// FrameSource yields encoded frames in order. Next returns io.EOF when exhausted.
type FrameSource interface {
	FPS() float64
	Next() ([]byte, error)
}

// Detector turns one encoded frame into a pose. A nil pose means no person was found.
// It must be safe for concurrent use when Options.Engines > 1.
type Detector interface {
	Detect(ctx context.Context, frame []byte) (posture.Pose, error)
}

type Options struct {
	// Engines bounds the number of concurrent Detect calls. Values below 1 mean 1.
	Engines int
	// OnFrame, when set, observes every scored frame in ascending frame order.
	OnFrame func(posture.FrameResult)
}

type detection struct {
	index int
	pose  posture.Pose
}

// Run scores every frame of src for mode m and returns the report. Detection runs on
// up to opts.Engines goroutines; results are re-ordered by frame number before they
// reach the aggregator. Any source or detector error aborts the run.
func Run(ctx context.Context, src FrameSource, det Detector, m posture.Mode, opts Options) (posture.Report, error) {
	agg, err := posture.NewAggregator(m, src.FPS())
	if err != nil {
		return posture.Report{}, err
	}

	engines := opts.Engines
	if engines < 1 {
		engines = 1
	}

	ctx, span := tracing.Tracer.Start(ctx, "pipeline.Run")
	defer span.End()
	span.SetAttributes(attribute.String("mode", m.String()), attribute.Int("engines", engines))

	g, gctx := errgroup.WithContext(ctx)
	tasks := make(chan types.FrameTask, engines)
	results := make(chan detection, engines*2)

	// Reader
	g.Go(func() error {
		defer close(tasks)
		for index := 1; ; index++ {
			frame, err := src.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read frame %d: %w", index, err)
			}
			select {
			case tasks <- types.FrameTask{Index: index, Data: frame}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	// Engines
	var wg sync.WaitGroup
	for i := 0; i < engines; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for task := range tasks {
				pose, err := det.Detect(gctx, task.Data)
				if err != nil {
					return fmt.Errorf("detect frame %d: %w", task.Index, err)
				}
				select {
				case results <- detection{index: task.Index, pose: pose}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Aggregator: frames are scored strictly in order.
	g.Go(func() error {
		pending := make(map[int]posture.Pose)
		next := 1
		for res := range results {
			pending[res.index] = res.pose
			for {
				pose, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				fr := agg.Add(next, pose)
				if opts.OnFrame != nil {
					opts.OnFrame(fr)
				}
				next++
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return posture.Report{}, err
	}

	report := agg.Report()
	span.SetAttributes(attribute.Int("frames", report.Summary.TotalFrames))
	return report, nil
}
