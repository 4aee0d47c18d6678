package frame

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/teslashibe/go-binbot/pkg/detection"
)

func grayJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 40
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("jpeg.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func TestAnnotate(t *testing.T) {
	frame := grayJPEG(t, 320, 240)
	dets := []detection.Detection{
		{UpperLeftX: 100, UpperLeftY: 80, Width: 60, Height: 60, ParentWidth: 320, ParentHeight: 240},
		{UpperLeftX: 10, UpperLeftY: 10, Width: 30, Height: 30, ParentWidth: 320, ParentHeight: 240},
	}

	a := NewAnnotator(Config{Quality: 95})
	out, err := a.Annotate(frame, dets)
	if err != nil {
		t.Fatalf("Annotate() error = %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if img.Bounds().Dx() != 320 || img.Bounds().Dy() != 240 {
		t.Errorf("size = %v, want 320x240", img.Bounds())
	}

	// Left edge of the target box should be green-ish
	r, g, b, _ := img.At(100, 110).RGBA()
	if g>>8 < r>>8+50 || g>>8 < b>>8+50 {
		t.Errorf("target edge color = (%d,%d,%d), want green", r>>8, g>>8, b>>8)
	}

	// Inside the box stays untouched
	if c := color.GrayModel.Convert(img.At(130, 110)).(color.Gray); c.Y > 80 {
		t.Errorf("box interior was drawn on: %v", c)
	}
}

func TestAnnotateDownsizes(t *testing.T) {
	frame := grayJPEG(t, 1280, 960)
	a := NewAnnotator(Config{MaxWidth: 320, MaxHeight: 320, Quality: 70})

	out, err := a.Annotate(frame, []detection.Detection{
		{UpperLeftX: 0, UpperLeftY: 0, Width: 100, Height: 100, ParentWidth: 1280, ParentHeight: 960},
	})
	if err != nil {
		t.Fatalf("Annotate() error = %v", err)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("DecodeConfig() error = %v", err)
	}
	if cfg.Width != 320 || cfg.Height != 240 {
		t.Errorf("preview = %dx%d, want 320x240", cfg.Width, cfg.Height)
	}
}

func TestAnnotateRejectsGarbage(t *testing.T) {
	a := NewAnnotator(DefaultConfig())
	if _, err := a.Annotate([]byte("not an image"), nil); err == nil {
		t.Error("expected decode error")
	}
}

func TestPreview(t *testing.T) {
	a := NewAnnotator(DefaultConfig())
	out, err := a.Preview(grayJPEG(t, 800, 600))
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("DecodeConfig() error = %v", err)
	}
	if cfg.Width > 640 || cfg.Height > 480 {
		t.Errorf("preview = %dx%d, exceeds 640x480", cfg.Width, cfg.Height)
	}
}

func TestScaleBox(t *testing.T) {
	d := detection.Detection{UpperLeftX: 100, UpperLeftY: 50, Width: 200, Height: 100, ParentWidth: 1000, ParentHeight: 500}
	got := scaleBox(d, 500, 250)
	want := image.Rect(50, 25, 150, 75)
	if got != want {
		t.Errorf("scaleBox() = %v, want %v", got, want)
	}
}
