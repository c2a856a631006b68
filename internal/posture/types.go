package posture

// Issue labels. Each mode only ever emits labels from its own vocabulary, plus the
// two sentinels shared by every mode.
const (
	IssueBackLeaning     = "Back leaning forward"
	IssueKneeAheadOfToe  = "Knee ahead of toe"
	IssueImproperDepth   = "Improper squat depth"
	IssueNeckBentForward = "Neck bent forward"
	IssueBackHunched     = "Back hunched"

	IssueAnalysisFailed = "Analysis failed"
	IssueNoPose         = "No pose detected"
)

// AngleSet is the geometry a frame verdict is based on. Neck is a horizontal offset
// proxy in both modes, not a joint angle.
type AngleSet struct {
	Back float64 `json:"back"`
	Neck float64 `json:"neck"`
	Knee float64 `json:"knee"`
}

// Assessment is what an Evaluator produces for a complete landmark set.
type Assessment struct {
	Angles AngleSet
	Issues []string
}

// Good reports whether no rule fired.
func (a Assessment) Good() bool { return len(a.Issues) == 0 }

// FrameResult is the verdict for one decoded frame.
type FrameResult struct {
	FrameNumber   int      `json:"frameNumber"`
	Timestamp     float64  `json:"timestamp"`
	IsGoodPosture bool     `json:"isGoodPosture"`
	Confidence    float64  `json:"confidence"`
	Angles        AngleSet `json:"angles"`
	Issues        []string `json:"issues"`
}

// Summary reduces a whole session.
type Summary struct {
	TotalFrames     int      `json:"totalFrames"`
	GoodFrames      int      `json:"goodFrames"`
	BadFrames       int      `json:"badFrames"`
	Accuracy        float64  `json:"accuracy"`
	CommonIssues    []string `json:"commonIssues"`
	Recommendations []string `json:"recommendations"`
}

// Report is the payload returned by POST /analyze and the analyze command.
type Report struct {
	FrameResults []FrameResult `json:"frameResults"`
	Summary      Summary       `json:"summary"`
}
