// Package protocol defines the JSON messages exchanged between BinBot and the server.
// The same Instruction shape travels in both directions: the robot reports its status
// and camera frame, the server answers with the next tread and arm commands.
package protocol

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Status is BinBot's operating mode
type Status string

const (
	StatusPatrol   Status = "PATROL"   // No target, executing the scripted search
	StatusMove     Status = "MOVE"     // Target ahead, closing distance
	StatusAngle    Status = "ANGLE"    // Target seen off-centre, turning toward it
	StatusRetrieve Status = "RETRIEVE" // Target in arm range
)

// InRangeDistance is the tread distance that, together with a zero angle,
// tells the robot the target is within arm reach.
const InRangeDistance = 1.0

// Valid reports whether s is one of the enumerated statuses
func (s Status) Valid() bool {
	switch s {
	case StatusPatrol, StatusMove, StatusAngle, StatusRetrieve:
		return true
	}
	return false
}

// Tracking reports whether the robot was following a target when it sent s
func (s Status) Tracking() bool {
	return s == StatusMove || s == StatusAngle
}

// Movement is one tread command: turn by Angle degrees (negative = left), then
// drive Distance centimetres forward.
type Movement struct {
	Angle    float64 `json:"angle"`
	Distance float64 `json:"distance"`
}

// IsInRange reports whether m is the in-range sentinel
func (m Movement) IsInRange() bool {
	return m.Angle == 0.0 && m.Distance == InRangeDistance
}

// Instruction is a status report from the robot or a command for it.
type Instruction struct {
	Status Status
	Image  []byte // Raw JPEG/PNG/WebP bytes, nil when no frame is attached
	Treads []Movement
	Arms   []float64 // Joint angles in degrees
}

// HasImage reports whether a frame is attached
func (i *Instruction) HasImage() bool {
	return len(i.Image) > 0
}

// DistanceHint returns the forward distance the robot last executed while tracking a
// target, or 0 when the report carries no usable estimate.
func (i *Instruction) DistanceHint() float64 {
	if !i.Status.Tracking() || len(i.Treads) == 0 {
		return 0
	}
	return i.Treads[0].Distance
}

// Validate checks the invariants every Instruction must satisfy before encoding
func (i *Instruction) Validate() error {
	if !i.Status.Valid() {
		return malformed("status", "unknown status %q", i.Status)
	}
	if len(i.Treads) == 0 {
		return malformed("treads", "at least one movement is required")
	}
	return nil
}

// wireInstruction mirrors the JSON layout. Pointer fields distinguish absent keys.
type wireInstruction struct {
	Status *string         `json:"status"`
	Img    *string         `json:"img"`
	Treads *[]wireMovement `json:"treads"`
	Arms   []wireArm       `json:"arms"`
}

type wireMovement struct {
	Angle    *float64 `json:"angle"`
	Distance *float64 `json:"distance"`
}

type wireArm struct {
	Angle *float64 `json:"angle"`
}

type encodedInstruction struct {
	Status Status     `json:"status"`
	Img    string     `json:"img"`
	Treads []Movement `json:"treads"`
	Arms   []armAngle `json:"arms"`
}

type armAngle struct {
	Angle float64 `json:"angle"`
}

// Encode serializes the instruction to its wire form. An absent image is written
// as an empty "img" string.
func Encode(i *Instruction) ([]byte, error) {
	if err := i.Validate(); err != nil {
		return nil, err
	}

	out := encodedInstruction{
		Status: i.Status,
		Treads: i.Treads,
		Arms:   make([]armAngle, 0, len(i.Arms)),
	}
	if i.HasImage() {
		out.Img = EncodeImage(i.Image)
	}
	for _, a := range i.Arms {
		out.Arms = append(out.Arms, armAngle{Angle: a})
	}

	return json.Marshal(out)
}

// Decode parses a wire message. Every failure is a *MalformedMessageError.
// Unknown keys are ignored.
func Decode(data []byte) (*Instruction, error) {
	var w wireInstruction
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &MalformedMessageError{Field: "body", Reason: "invalid JSON", Err: err}
	}

	if w.Status == nil {
		return nil, malformed("status", "missing")
	}
	status := Status(*w.Status)
	if !status.Valid() {
		return nil, malformed("status", "unknown status %q", *w.Status)
	}

	if w.Treads == nil || len(*w.Treads) == 0 {
		return nil, malformed("treads", "missing or empty")
	}
	treads := make([]Movement, 0, len(*w.Treads))
	for idx, m := range *w.Treads {
		if m.Angle == nil || m.Distance == nil {
			return nil, malformed("treads", "movement %d needs angle and distance", idx)
		}
		treads = append(treads, Movement{Angle: *m.Angle, Distance: *m.Distance})
	}

	arms := make([]float64, 0, len(w.Arms))
	for idx, a := range w.Arms {
		if a.Angle == nil {
			return nil, malformed("arms", "arm %d needs angle", idx)
		}
		arms = append(arms, *a.Angle)
	}

	var img []byte
	if w.Img != nil && *w.Img != "" {
		var err error
		img, err = DecodeImage(*w.Img)
		if err != nil {
			return nil, &MalformedMessageError{Field: "img", Reason: "undecodable image payload", Err: err}
		}
	}

	return &Instruction{
		Status: status,
		Image:  img,
		Treads: treads,
		Arms:   arms,
	}, nil
}
