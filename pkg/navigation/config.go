// Package navigation turns a waste detection into tread movements
package navigation

import (
	"errors"
	"fmt"
)

// Config holds the camera and reach geometry used to steer towards waste
type Config struct {
	// Camera
	HorizontalFOV float64 `yaml:"horizontal_fov" validate:"gt=0,lt=180"` // Horizontal field of view in degrees

	// Steering
	AlignTolerance float64 `yaml:"align_tolerance" validate:"gte=0"` // Angles below this (degrees) count as centred

	// Distance estimation: a box covering ReferenceHeightFraction of the
	// frame height is ReferenceDistance cm away
	ReferenceDistance       float64 `yaml:"reference_distance" validate:"gt=0"`
	ReferenceHeightFraction float64 `yaml:"reference_height_fraction" validate:"gt=0,lte=1"`

	// Reach
	ArmReach float64 `yaml:"arm_reach" validate:"gte=0"` // Targets closer than this (cm) can be picked up
	MinStep  float64 `yaml:"min_step" validate:"gt=1"`   // Smallest forward command (cm)
}

// DefaultConfig returns geometry for a Pi camera v2 mounted at tread height
func DefaultConfig() Config {
	return Config{
		HorizontalFOV:           62.2,
		AlignTolerance:          3,
		ReferenceDistance:       100,
		ReferenceHeightFraction: 0.12,
		ArmReach:                20,
		MinStep:                 5,
	}
}

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("navigation: invalid config")

// Validate checks the geometry
func (c Config) Validate() error {
	switch {
	case c.HorizontalFOV <= 0 || c.HorizontalFOV >= 180:
		return fmt.Errorf("%w: horizontal FOV %.1f out of (0, 180)", ErrInvalidConfig, c.HorizontalFOV)
	case c.AlignTolerance < 0:
		return fmt.Errorf("%w: negative align tolerance", ErrInvalidConfig)
	case c.ReferenceDistance <= 0:
		return fmt.Errorf("%w: reference distance must be positive", ErrInvalidConfig)
	case c.ReferenceHeightFraction <= 0 || c.ReferenceHeightFraction > 1:
		return fmt.Errorf("%w: reference height fraction %.3f out of (0, 1]", ErrInvalidConfig, c.ReferenceHeightFraction)
	case c.ArmReach < 0:
		return fmt.Errorf("%w: negative arm reach", ErrInvalidConfig)
	case c.MinStep <= 1:
		// A step of 1 cm would read as the in-range signal
		return fmt.Errorf("%w: min step %.2f must exceed 1", ErrInvalidConfig, c.MinStep)
	}
	return nil
}
