// Package frame renders annotated camera previews for the app
package frame

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/teslashibe/go-binbot/pkg/detection"
)

// Config controls preview rendering
type Config struct {
	MaxWidth  int `yaml:"max_width" validate:"gte=0"` // Previews wider than this are downsized. 0 keeps the size.
	MaxHeight int `yaml:"max_height" validate:"gte=0"`
	Quality   int `yaml:"quality" validate:"gte=1,lte=100"` // JPEG quality 1-100
}

// DefaultConfig returns preview defaults
func DefaultConfig() Config {
	return Config{
		MaxWidth:  640,
		MaxHeight: 480,
		Quality:   75,
	}
}

// Box colors
var (
	targetColor = color.NRGBA{0, 255, 0, 255}   // the detection the bot acts on
	otherColor  = color.NRGBA{255, 204, 0, 255} // everything else
	centerColor = color.NRGBA{0, 170, 255, 255} // frame center marker
)

// Annotator draws detection boxes onto frames
type Annotator struct {
	config Config
}

// NewAnnotator creates an annotator
func NewAnnotator(cfg Config) *Annotator {
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = DefaultConfig().Quality
	}
	return &Annotator{config: cfg}
}

// Annotate draws dets onto frame and returns a JPEG preview. The first
// detection is drawn as the target.
func (a *Annotator) Annotate(frame []byte, dets []detection.Detection) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	img := imaging.Clone(src)
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	stroke := int(math.Max(2, 0.004*float64(min(w, h))))

	// Draw others first so the target stays on top
	for i := len(dets) - 1; i >= 0; i-- {
		c := otherColor
		if i == 0 {
			c = targetColor
		}
		drawBox(img, scaleBox(dets[i], w, h), c, stroke)
	}

	cx, cy := w/2, h/2
	drawHLine(img, cy, cx-6, cx+6, centerColor)
	drawVLine(img, cx, cy-6, cy+6, centerColor)

	return a.encode(img)
}

// Preview downsizes and re-encodes a frame without annotations
func (a *Annotator) Preview(frame []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return a.encode(src)
}

func (a *Annotator) encode(img image.Image) ([]byte, error) {
	if a.config.MaxWidth > 0 || a.config.MaxHeight > 0 {
		b := img.Bounds()
		maxW, maxH := a.config.MaxWidth, a.config.MaxHeight
		if maxW <= 0 {
			maxW = b.Dx()
		}
		if maxH <= 0 {
			maxH = b.Dy()
		}
		if b.Dx() > maxW || b.Dy() > maxH {
			img = imaging.Fit(img, maxW, maxH, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(a.config.Quality)); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

// scaleBox maps a detection onto the decoded image. Detections carry their
// own frame size, which may differ from the decoded one.
func scaleBox(d detection.Detection, w, h int) image.Rectangle {
	sx, sy := 1.0, 1.0
	if d.ParentWidth > 0 {
		sx = float64(w) / d.ParentWidth
	}
	if d.ParentHeight > 0 {
		sy = float64(h) / d.ParentHeight
	}
	x0 := int(d.UpperLeftX*sx + 0.5)
	y0 := int(d.UpperLeftY*sy + 0.5)
	x1 := int((d.UpperLeftX+d.Width)*sx + 0.5)
	y1 := int((d.UpperLeftY+d.Height)*sy + 0.5)
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	return image.Rect(x0, y0, x1, y1)
}

func drawBox(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	for s := 0; s < stroke; s++ {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	b := img.Bounds()
	if y < 0 || y >= b.Dy() {
		return
	}
	x0, x1 = max(min(x0, x1), 0), min(max(x0, x1), b.Dx())
	for x := x0; x < x1; x++ {
		img.SetNRGBA(x, y, c)
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	b := img.Bounds()
	if x < 0 || x >= b.Dx() {
		return
	}
	y0, y1 = max(min(y0, y1), 0), min(max(y0, y1), b.Dy())
	for y := y0; y < y1; y++ {
		img.SetNRGBA(x, y, c)
	}
}
