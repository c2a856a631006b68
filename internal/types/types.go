package types

import "github.com/Dheerajkumar69/posture-detection/internal/posture"

// FrameTask represents a single decoded frame sent to a detector engine.
type FrameTask struct {
	Index int // 1-based frame number
	Data  []byte
}

// ErrorResult captures the error object returned by Python on failure
type ErrorResult struct {
	Error string `json:"error,omitempty"`
}

// PoseResponse matches the JSON the Python pose worker writes back for a frame.
// Landmarks is null when MediaPipe found no person; Error is set when the worker
// failed on this frame.
type PoseResponse struct {
	Landmarks posture.Pose `json:"landmarks"`
	ErrorResult
}
