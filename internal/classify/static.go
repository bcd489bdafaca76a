package classify

import (
	"context"
	"sync/atomic"
)

// StaticDetector returns the same detections (or error) for every image.
// The zero value detects nothing.
type StaticDetector struct {
	Detections []Detection
	Err        error

	calls atomic.Int64
}

// Detect implements Detector.
func (s *StaticDetector) Detect(ctx context.Context, _ []byte) ([]Detection, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Detections, nil
}

// Calls returns how many times Detect has been called.
func (s *StaticDetector) Calls() int {
	return int(s.calls.Load())
}
