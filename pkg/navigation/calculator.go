package navigation

import (
	"fmt"
	"math"

	"github.com/teslashibe/go-binbot/pkg/detection"
	"github.com/teslashibe/go-binbot/pkg/protocol"
)

// Kind classifies what the bot must do next
type Kind int

const (
	// Turning means the target is off-centre and the bot must rotate first
	Turning Kind = iota
	// Approaching means the target is centred but out of reach
	Approaching
	// InRange means the target is centred and within arm reach
	InRange
)

func (k Kind) String() string {
	switch k {
	case Turning:
		return "turning"
	case Approaching:
		return "approaching"
	case InRange:
		return "in_range"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Result is the evaluated geometry for one detection
type Result struct {
	Kind     Kind
	Angle    float64 // Degrees to turn, negative = left. 0 when aligned.
	Distance float64 // Estimated distance to the target in cm
	Travel   float64 // Forward command in cm. 0 when in range.
	OffsetX  float64 // Horizontal box offset from centre as a fraction of frame width
	OffsetY  float64 // Vertical box offset from centre as a fraction of frame height
}

// Status maps the result to the wire status
func (r Result) Status() protocol.Status {
	switch r.Kind {
	case InRange:
		return protocol.StatusRetrieve
	case Approaching:
		return protocol.StatusMove
	default:
		return protocol.StatusAngle
	}
}

// Movements returns the tread sequence for the result. The head is the first
// move the bot must make.
func (r Result) Movements() []protocol.Movement {
	switch r.Kind {
	case InRange:
		return []protocol.Movement{{Angle: 0, Distance: protocol.InRangeDistance}}
	case Approaching:
		return []protocol.Movement{{Angle: 0, Distance: r.Travel}}
	default:
		return []protocol.Movement{{Angle: r.Angle, Distance: r.Travel}}
	}
}

// Calculator converts detections into movements
type Calculator struct {
	config Config
}

// NewCalculator creates a calculator
func NewCalculator(cfg Config) (*Calculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{config: cfg}, nil
}

// Config returns the calculator geometry
func (c *Calculator) Config() Config {
	return c.config
}

// Evaluate computes the turn and forward travel needed to bring d within
// reach. hint is the forward distance previously commanded; values above
// protocol.InRangeDistance cap the travel so repeated commands converge.
func (c *Calculator) Evaluate(d detection.Detection, hint float64) (Result, error) {
	if err := d.Validate(); err != nil {
		return Result{}, err
	}

	cx, cy := d.Center()
	px, py := d.ParentCenter()
	ox := (cx - px) / d.ParentWidth
	oy := (cy - py) / d.ParentHeight

	angle := ox * c.config.HorizontalFOV
	if math.Abs(angle) < c.config.AlignTolerance {
		angle = 0
	}

	est := c.EstimateDistance(d)
	inRange := est <= c.config.ArmReach

	var travel float64
	if !inRange {
		travel = math.Max(est-c.config.ArmReach, c.config.MinStep)
		if hint > protocol.InRangeDistance {
			travel = math.Min(travel, hint)
		}
	}

	res := Result{
		Angle:    angle,
		Distance: est,
		Travel:   travel,
		OffsetX:  ox,
		OffsetY:  oy,
	}
	switch {
	case angle != 0:
		res.Kind = Turning
	case inRange:
		res.Kind = InRange
	default:
		res.Kind = Approaching
	}
	return res, nil
}

// Calculate returns the tread sequence for d
func (c *Calculator) Calculate(d detection.Detection, hint float64) ([]protocol.Movement, error) {
	res, err := c.Evaluate(d, hint)
	if err != nil {
		return nil, err
	}
	return res.Movements(), nil
}

// EstimateDistance uses a pinhole model: apparent height is inversely
// proportional to distance
func (c *Calculator) EstimateDistance(d detection.Detection) float64 {
	frac := d.HeightFraction()
	if frac <= 0 {
		return math.Inf(1)
	}
	return c.config.ReferenceDistance * c.config.ReferenceHeightFraction / frac
}
