package posture

import (
	"fmt"
	"sort"
)

const (
	// DefaultFPS is used when the video source does not report a frame rate.
	DefaultFPS = 30.0
	// Accuracy is reported as-is in every summary; it is not derived from the frames.
	Accuracy = 0.92

	maxCommonIssues = 3
)

// Aggregator turns per-frame detections into FrameResults and reduces them into a
// Summary. It is owned by a single analysis run and is not safe for concurrent use.
type Aggregator struct {
	eval   Evaluator
	fps    float64
	frames []FrameResult
}

// NewAggregator builds an aggregator for mode m. A non-positive fps falls back to DefaultFPS.
func NewAggregator(m Mode, fps float64) (*Aggregator, error) {
	eval, err := EvaluatorFor(m)
	if err != nil {
		return nil, err
	}
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Aggregator{eval: eval, fps: fps}, nil
}

// Mode returns the mode the aggregator scores frames for.
func (a *Aggregator) Mode() Mode { return a.eval.Mode() }

// FPS returns the effective frame rate used for timestamps.
func (a *Aggregator) FPS() float64 { return a.fps }

// Add scores frame frameNumber (1-based). A nil pose records a "No pose detected"
// frame; a pose missing landmarks records an "Analysis failed" frame. Frames must be
// added in ascending frame order.
func (a *Aggregator) Add(frameNumber int, pose Pose) FrameResult {
	res := a.score(frameNumber, pose)
	a.frames = append(a.frames, res)
	return res
}

func (a *Aggregator) score(frameNumber int, pose Pose) FrameResult {
	ts := float64(frameNumber) / a.fps
	if pose == nil {
		return failedFrame(frameNumber, ts, IssueNoPose)
	}

	assessment, err := a.eval.Evaluate(pose)
	if err != nil {
		return failedFrame(frameNumber, ts, IssueAnalysisFailed)
	}
	return FrameResult{
		FrameNumber:   frameNumber,
		Timestamp:     ts,
		IsGoodPosture: assessment.Good(),
		Confidence:    Confidence,
		Angles:        assessment.Angles,
		Issues:        assessment.Issues,
	}
}

func failedFrame(frameNumber int, ts float64, issue string) FrameResult {
	return FrameResult{
		FrameNumber:   frameNumber,
		Timestamp:     ts,
		IsGoodPosture: false,
		Confidence:    0,
		Angles:        AngleSet{},
		Issues:        []string{issue},
	}
}

// Frames returns the recorded frame results in the order they were added.
func (a *Aggregator) Frames() []FrameResult {
	out := make([]FrameResult, len(a.frames))
	copy(out, a.frames)
	return out
}

// Summary reduces the recorded frames.
func (a *Aggregator) Summary() Summary {
	return Summarize(a.Mode(), a.frames)
}

// Report bundles the frames and their summary.
func (a *Aggregator) Report() Report {
	return Report{FrameResults: a.Frames(), Summary: a.Summary()}
}

// Summarize computes totals, the most common issues and the recommendations for frames.
func Summarize(m Mode, frames []FrameResult) Summary {
	good := 0
	for _, f := range frames {
		if f.IsGoodPosture {
			good++
		}
	}
	common := CommonIssues(frames, maxCommonIssues)
	return Summary{
		TotalFrames:     len(frames),
		GoodFrames:      good,
		BadFrames:       len(frames) - good,
		Accuracy:        Accuracy,
		CommonIssues:    common,
		Recommendations: Recommendations(m, common),
	}
}

// CommonIssues returns up to limit distinct issue labels ordered by descending
// frequency. Ties keep the order in which labels first appeared.
func CommonIssues(frames []FrameResult, limit int) []string {
	counts := make(map[string]int)
	var order []string
	for _, f := range frames {
		for _, issue := range f.Issues {
			if _, seen := counts[issue]; !seen {
				order = append(order, issue)
			}
			counts[issue]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > limit {
		order = order[:limit]
	}
	if order == nil {
		return []string{}
	}
	return order
}

// Recommendations maps the common issues of a session to advice for mode m, in a
// fixed priority order.
func Recommendations(m Mode, common []string) []string {
	has := make(map[string]bool, len(common))
	for _, c := range common {
		has[c] = true
	}

	recs := []string{}
	switch m {
	case ModeSquat:
		if has[IssueKneeAheadOfToe] {
			recs = append(recs, "Keep your knees behind your toes during squats")
		}
		if has[IssueBackLeaning] {
			recs = append(recs, "Maintain a straight back throughout the movement")
		}
		if has[IssueImproperDepth] {
			recs = append(recs, "Descend until your thighs are parallel to the ground")
		}
	case ModeDesk:
		if has[IssueNeckBentForward] {
			recs = append(recs, "Keep your head in a neutral position")
		}
		if has[IssueBackHunched] {
			recs = append(recs, "Sit up straight with your shoulders back")
		}
		recs = append(recs, "Take regular breaks to stretch and move")
	default:
		panic(fmt.Sprintf("posture: recommendations for unknown mode %v", m))
	}
	return recs
}
