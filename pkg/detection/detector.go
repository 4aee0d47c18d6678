// Package detection provides waste detection on camera frames
package detection

import (
	"context"
	"fmt"
	"sort"
)

// Detection is a detected piece of waste. Coordinates are pixels of the parent frame.
type Detection struct {
	UpperLeftX, UpperLeftY float64 // Top-left corner of the box
	Width, Height          float64 // Box size
	ParentWidth            float64 // Frame width
	ParentHeight           float64 // Frame height
	Confidence             float64 // Detection confidence (0-1)
	Label                  string  // Class name, when the backend provides one
}

// Center returns the center point of the box
func (d Detection) Center() (x, y float64) {
	return d.UpperLeftX + d.Width/2, d.UpperLeftY + d.Height/2
}

// ParentCenter returns the center point of the frame
func (d Detection) ParentCenter() (x, y float64) {
	return d.ParentWidth / 2, d.ParentHeight / 2
}

// Area returns the area of the bounding box
func (d Detection) Area() float64 {
	return d.Width * d.Height
}

// HeightFraction returns the share of the frame height covered by the box
func (d Detection) HeightFraction() float64 {
	if d.ParentHeight <= 0 {
		return 0
	}
	return d.Height / d.ParentHeight
}

// Validate checks that the box is non-degenerate and lies inside its frame
func (d Detection) Validate() error {
	if d.UpperLeftX < 0 || d.UpperLeftY < 0 || d.Width < 0 || d.Height < 0 {
		return fmt.Errorf("%w: negative coordinates", ErrOutOfBounds)
	}
	if d.ParentWidth <= 0 || d.ParentHeight <= 0 {
		return fmt.Errorf("%w: frame is %.0fx%.0f", ErrDegenerateBox, d.ParentWidth, d.ParentHeight)
	}
	if d.Width == 0 || d.Height == 0 {
		return fmt.Errorf("%w: box is %.1fx%.1f", ErrDegenerateBox, d.Width, d.Height)
	}
	if d.UpperLeftX+d.Width > d.ParentWidth || d.UpperLeftY+d.Height > d.ParentHeight {
		return fmt.Errorf("%w: box exceeds %.0fx%.0f frame", ErrOutOfBounds, d.ParentWidth, d.ParentHeight)
	}
	return nil
}

// Source is the interface for waste detection backends
type Source interface {
	// Detect finds waste in an encoded frame. The best detection comes first.
	Detect(ctx context.Context, frame []byte) ([]Detection, error)

	// Close releases resources
	Close() error
}

// SortByConfidence orders detections best first. Ties keep backend order.
func SortByConfidence(dets []Detection) {
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})
}

// clampBox clips a pixel box to the frame so that Validate accepts it
func clampBox(x0, y0, x1, y1, w, h float64) (x, y, bw, bh float64) {
	x0 = clamp(x0, 0, w)
	y0 = clamp(y0, 0, h)
	x1 = clamp(x1, 0, w)
	y1 = clamp(y1, 0, h)
	return x0, y0, x1 - x0, y1 - y0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
