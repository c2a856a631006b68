package posture

import "fmt"

// Point is a 2D position in normalized image coordinates ([0,1] on both axes, y grows downwards).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Name identifies a body landmark. Values match the keys the pose worker emits.
type Name string

const (
	LeftShoulder   Name = "left_shoulder"
	RightShoulder  Name = "right_shoulder"
	LeftHip        Name = "left_hip"
	RightHip       Name = "right_hip"
	LeftKnee       Name = "left_knee"
	RightKnee      Name = "right_knee"
	LeftAnkle      Name = "left_ankle"
	RightAnkle     Name = "right_ankle"
	LeftFootIndex  Name = "left_foot_index"
	RightFootIndex Name = "right_foot_index"
	LeftEar        Name = "left_ear"
	RightEar       Name = "right_ear"
)

// Pose maps landmark names to positions for one frame. A nil Pose means the detector
// found no person in the frame.
type Pose map[Name]Point

// MissingLandmarkError is returned by an Evaluator when the pose lacks a landmark the
// active mode needs.
type MissingLandmarkError struct {
	Name Name
}

func (e *MissingLandmarkError) Error() string {
	return fmt.Sprintf("missing landmark %q", e.Name)
}

func (p Pose) point(n Name) (Point, error) {
	pt, ok := p[n]
	if !ok {
		return Point{}, &MissingLandmarkError{Name: n}
	}
	return pt, nil
}

// pair looks up a left/right landmark pair.
func (p Pose) pair(left, right Name) (Point, Point, error) {
	l, err := p.point(left)
	if err != nil {
		return Point{}, Point{}, err
	}
	r, err := p.point(right)
	if err != nil {
		return Point{}, Point{}, err
	}
	return l, r, nil
}

// midpoint looks up a pair and returns its arithmetic mean.
func (p Pose) midpoint(left, right Name) (Point, error) {
	l, r, err := p.pair(left, right)
	if err != nil {
		return Point{}, err
	}
	return Midpoint(l, r), nil
}
