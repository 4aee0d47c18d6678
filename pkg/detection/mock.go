package detection

import (
	"context"
	"sync"
)

// Static is a Source returning a fixed result. Useful for tests and for running
// the server without a model.
type Static struct {
	Detections []Detection
	Err        error

	mu     sync.Mutex
	calls  int
	frames [][]byte
}

// NewStatic creates a Static source returning dets.
func NewStatic(dets ...Detection) *Static {
	return &Static{Detections: dets}
}

// Detect records the call and returns the configured result.
func (s *Static) Detect(ctx context.Context, frame []byte) ([]Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.frames = append(s.frames, frame)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}

	out := make([]Detection, len(s.Detections))
	copy(out, s.Detections)
	return out, nil
}

// Set replaces the result returned by later calls.
func (s *Static) Set(err error, dets ...Detection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
	s.Detections = dets
}

// Calls returns how many times Detect ran.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// LastFrame returns the frame passed to the most recent Detect call.
func (s *Static) LastFrame() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// Close is a no-op.
func (s *Static) Close() error { return nil }

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, frame []byte) ([]Detection, error)

// Detect calls f.
func (f SourceFunc) Detect(ctx context.Context, frame []byte) ([]Detection, error) {
	return f(ctx, frame)
}

// Close is a no-op.
func (f SourceFunc) Close() error { return nil }
