package posture

import (
	"fmt"
	"math"
)

// Confidence reported for every successfully evaluated frame. The worker does not
// expose a per-frame score, so this is fixed.
const Confidence = 0.85

// Evaluator scores one frame's landmarks for a single mode. Evaluate either returns an
// Assessment or a *MissingLandmarkError; callers must handle both.
type Evaluator interface {
	Mode() Mode
	Evaluate(p Pose) (Assessment, error)
}

// EvaluatorFor returns the rule set for m.
func EvaluatorFor(m Mode) (Evaluator, error) {
	switch m {
	case ModeSquat:
		return SquatRules{}, nil
	case ModeDesk:
		return DeskRules{}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(m))
}

// Squat thresholds in degrees. Knee angles outside [80, 120] count as improper depth.
const (
	squatMinBack      = 150.0
	squatMinKneeAngle = 80.0
	squatMaxKneeAngle = 120.0
)

// SquatRules checks back lean, knee travel past the toes and squat depth.
type SquatRules struct{}

func (SquatRules) Mode() Mode { return ModeSquat }

func (SquatRules) Evaluate(p Pose) (Assessment, error) {
	shoulder, err := p.midpoint(LeftShoulder, RightShoulder)
	if err != nil {
		return Assessment{}, err
	}
	hipL, hipR, err := p.pair(LeftHip, RightHip)
	if err != nil {
		return Assessment{}, err
	}
	kneeL, kneeR, err := p.pair(LeftKnee, RightKnee)
	if err != nil {
		return Assessment{}, err
	}
	ankleL, ankleR, err := p.pair(LeftAnkle, RightAnkle)
	if err != nil {
		return Assessment{}, err
	}
	toeL, toeR, err := p.pair(LeftFootIndex, RightFootIndex)
	if err != nil {
		return Assessment{}, err
	}
	ear, err := p.midpoint(LeftEar, RightEar)
	if err != nil {
		return Assessment{}, err
	}

	hip := Midpoint(hipL, hipR)
	ankle := Midpoint(ankleL, ankleR)

	back := Angle(ankle, hip, shoulder)
	knee := (Angle(hipL, kneeL, ankleL) + Angle(hipR, kneeR, ankleR)) / 2
	neck := math.Abs(shoulder.X-ear.X) * 100

	// Assumes the subject faces the left edge of the frame; mirrored footage flips it.
	kneeAheadOfToe := Midpoint(kneeL, kneeR).X < Midpoint(toeL, toeR).X

	issues := []string{}
	if back < squatMinBack {
		issues = append(issues, IssueBackLeaning)
	}
	if kneeAheadOfToe {
		issues = append(issues, IssueKneeAheadOfToe)
	}
	if knee < squatMinKneeAngle || knee > squatMaxKneeAngle {
		issues = append(issues, IssueImproperDepth)
	}

	return Assessment{
		Angles: AngleSet{Back: back, Neck: neck, Knee: knee},
		Issues: issues,
	}, nil
}

const (
	deskMaxNeck = 30.0
	deskMinBack = 160.0
	// Knee is not measured at a desk; reported as a right angle.
	deskKneeAngle = 90.0
)

// DeskRules checks forward head posture and a hunched back while seated.
type DeskRules struct{}

func (DeskRules) Mode() Mode { return ModeDesk }

func (DeskRules) Evaluate(p Pose) (Assessment, error) {
	shoulder, err := p.midpoint(LeftShoulder, RightShoulder)
	if err != nil {
		return Assessment{}, err
	}
	hip, err := p.midpoint(LeftHip, RightHip)
	if err != nil {
		return Assessment{}, err
	}
	ear, err := p.midpoint(LeftEar, RightEar)
	if err != nil {
		return Assessment{}, err
	}

	back := 180 - math.Abs(degrees(math.Atan2(shoulder.Y-hip.Y, shoulder.X-hip.X)))
	neck := math.Abs(ear.X-shoulder.X) * 100 * 2

	issues := []string{}
	if neck > deskMaxNeck {
		issues = append(issues, IssueNeckBentForward)
	}
	if back < deskMinBack {
		issues = append(issues, IssueBackHunched)
	}

	return Assessment{
		Angles: AngleSet{Back: back, Neck: neck, Knee: deskKneeAngle},
		Issues: issues,
	}, nil
}
