package navigation

import (
	"errors"
	"math"
	"testing"

	"github.com/teslashibe/go-binbot/pkg/detection"
	"github.com/teslashibe/go-binbot/pkg/protocol"
)

// box returns a detection of size w x h centred at (cx, cy) in a 640x480 frame
func box(cx, cy, w, h float64) detection.Detection {
	return detection.Detection{
		UpperLeftX:   cx - w/2,
		UpperLeftY:   cy - h/2,
		Width:        w,
		Height:       h,
		ParentWidth:  640,
		ParentHeight: 480,
		Confidence:   0.9,
	}
}

func newCalc(t *testing.T) *Calculator {
	t.Helper()
	c, err := NewCalculator(DefaultConfig())
	if err != nil {
		t.Fatalf("NewCalculator() error = %v", err)
	}
	return c
}

func TestEvaluate(t *testing.T) {
	c := newCalc(t)

	tests := []struct {
		name       string
		det        detection.Detection
		hint       float64
		wantKind   Kind
		wantStatus protocol.Status
		wantMove   protocol.Movement
	}{
		{
			name:       "centred and close",
			det:        box(320, 240, 100, 300),
			wantKind:   InRange,
			wantStatus: protocol.StatusRetrieve,
			wantMove:   protocol.Movement{Angle: 0, Distance: 1},
		},
		{
			name:       "centred and far",
			det:        box(320, 240, 40, 48),
			wantKind:   Approaching,
			wantStatus: protocol.StatusMove,
			wantMove:   protocol.Movement{Angle: 0, Distance: 100},
		},
		{
			name:       "within tolerance counts as centred",
			det:        box(340, 240, 40, 48),
			wantKind:   Approaching,
			wantStatus: protocol.StatusMove,
			wantMove:   protocol.Movement{Angle: 0, Distance: 100},
		},
		{
			name:       "hint caps travel",
			det:        box(320, 240, 40, 48),
			hint:       40,
			wantKind:   Approaching,
			wantStatus: protocol.StatusMove,
			wantMove:   protocol.Movement{Angle: 0, Distance: 40},
		},
		{
			name:       "hint at sentinel is ignored",
			det:        box(320, 240, 40, 48),
			hint:       1,
			wantKind:   Approaching,
			wantStatus: protocol.StatusMove,
			wantMove:   protocol.Movement{Angle: 0, Distance: 100},
		},
		{
			name:       "nearly in reach uses min step",
			det:        box(320, 240, 100, 250),
			wantKind:   Approaching,
			wantStatus: protocol.StatusMove,
			wantMove:   protocol.Movement{Angle: 0, Distance: 5},
		},
		{
			name:       "in reach but off centre turns in place",
			det:        box(600, 240, 60, 300),
			wantKind:   Turning,
			wantStatus: protocol.StatusAngle,
			wantMove:   protocol.Movement{Angle: (280.0 / 640) * 62.2, Distance: 0},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := c.Evaluate(tc.det, tc.hint)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if res.Kind != tc.wantKind {
				t.Errorf("Kind = %v, want %v", res.Kind, tc.wantKind)
			}
			if res.Status() != tc.wantStatus {
				t.Errorf("Status = %v, want %v", res.Status(), tc.wantStatus)
			}
			moves := res.Movements()
			if len(moves) != 1 {
				t.Fatalf("Movements() len = %d, want 1", len(moves))
			}
			if math.Abs(moves[0].Angle-tc.wantMove.Angle) > 1e-9 || math.Abs(moves[0].Distance-tc.wantMove.Distance) > 1e-9 {
				t.Errorf("Movement = %+v, want %+v", moves[0], tc.wantMove)
			}
		})
	}
}

func TestEvaluateSign(t *testing.T) {
	c := newCalc(t)

	left, err := c.Evaluate(box(50, 240, 60, 60), 0)
	if err != nil {
		t.Fatalf("Evaluate(left) error = %v", err)
	}
	if left.Kind != Turning || left.Angle >= 0 {
		t.Errorf("left target: kind %v angle %.2f, want turning with negative angle", left.Kind, left.Angle)
	}

	right, err := c.Evaluate(box(590, 240, 60, 60), 0)
	if err != nil {
		t.Fatalf("Evaluate(right) error = %v", err)
	}
	if right.Kind != Turning || right.Angle <= 0 {
		t.Errorf("right target: kind %v angle %.2f, want turning with positive angle", right.Kind, right.Angle)
	}

	if math.Abs(left.Angle+right.Angle) > 1e-9 {
		t.Errorf("mirrored targets should give opposite angles: %.3f vs %.3f", left.Angle, right.Angle)
	}
	if math.Abs(right.Angle) > DefaultConfig().HorizontalFOV/2 {
		t.Errorf("angle %.2f exceeds half FOV", right.Angle)
	}
}

func TestEstimateDistanceMonotonic(t *testing.T) {
	c := newCalc(t)

	prev := math.Inf(1)
	for h := 10.0; h <= 480; h += 10 {
		d := c.EstimateDistance(box(320, 240, 50, h))
		if d >= prev {
			t.Fatalf("distance did not decrease at height %.0f: %.2f >= %.2f", h, d, prev)
		}
		prev = d
	}
}

func TestTravelNeverSentinel(t *testing.T) {
	c := newCalc(t)

	for h := 2.0; h <= 480; h += 2 {
		for _, hint := range []float64{0, 1, 1.5, 3, 50} {
			res, err := c.Evaluate(box(320, 240, 20, h), hint)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if res.Kind == InRange {
				continue
			}
			if m := res.Movements()[0]; m.IsInRange() {
				t.Fatalf("height %.0f hint %.1f produced the in-range sentinel for kind %v", h, hint, res.Kind)
			}
		}
	}
}

func TestEvaluateRejectsBadBoxes(t *testing.T) {
	c := newCalc(t)

	tests := []struct {
		name string
		det  detection.Detection
		want error
	}{
		{"zero height", detection.Detection{UpperLeftX: 10, UpperLeftY: 10, Width: 10, ParentWidth: 640, ParentHeight: 480}, detection.ErrDegenerateBox},
		{"zero frame", detection.Detection{Width: 10, Height: 10}, detection.ErrDegenerateBox},
		{"outside frame", detection.Detection{UpperLeftX: 630, Width: 20, Height: 20, ParentWidth: 640, ParentHeight: 480}, detection.ErrOutOfBounds},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := c.Evaluate(tc.det, 0); !errors.Is(err, tc.want) {
				t.Errorf("Evaluate() = %v, want %v", err, tc.want)
			}
			if _, err := c.Calculate(tc.det, 0); err == nil {
				t.Error("Calculate() should fail")
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero fov", func(c *Config) { c.HorizontalFOV = 0 }},
		{"negative tolerance", func(c *Config) { c.AlignTolerance = -1 }},
		{"zero reference distance", func(c *Config) { c.ReferenceDistance = 0 }},
		{"fraction above one", func(c *Config) { c.ReferenceHeightFraction = 1.5 }},
		{"step equal to sentinel", func(c *Config) { c.MinStep = 1 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
			if _, err := NewCalculator(cfg); err == nil {
				t.Error("NewCalculator() should fail")
			}
		})
	}
}

func TestKindString(t *testing.T) {
	if InRange.String() != "in_range" || Turning.String() != "turning" || Approaching.String() != "approaching" {
		t.Error("unexpected kind names")
	}
}
