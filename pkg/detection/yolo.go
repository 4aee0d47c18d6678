package detection

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// YOLO uses a YOLOv8 ONNX model to find waste in frames
type YOLO struct {
	net       gocv.Net
	config    YOLOConfig
	mu        sync.Mutex
	inputSize image.Point
	allowed   map[string]bool
}

// YOLOConfig holds YOLO detector configuration
type YOLOConfig struct {
	ModelPath        string  `yaml:"model_path"`
	ConfidenceThresh float32 `yaml:"confidence" validate:"gte=0,lte=1"`
	NMSThresh        float32 `yaml:"nms" validate:"gte=0,lte=1"`
	InputWidth       int     `yaml:"input_width" validate:"gte=0"`
	InputHeight      int     `yaml:"input_height" validate:"gte=0"`

	// Classes names the model outputs in order. Defaults to COCO.
	Classes []string `yaml:"classes"`

	// Targets restricts results to these class names. Empty keeps every class.
	Targets []string `yaml:"targets"`
}

// DefaultYOLOConfig returns defaults for a COCO YOLOv8n model filtered to litter classes
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.4,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
		Classes:          COCOClasses,
		Targets:          WasteClasses,
	}
}

// NewYOLO loads the ONNX model
func NewYOLO(cfg YOLOConfig) (*YOLO, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, WrapError("yolo", fmt.Errorf("model file: %w", err))
	}
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		return nil, WrapError("yolo", fmt.Errorf("invalid input size %dx%d", cfg.InputWidth, cfg.InputHeight))
	}
	if len(cfg.Classes) == 0 {
		cfg.Classes = COCOClasses
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, WrapError("yolo", fmt.Errorf("failed to load model from %s", cfg.ModelPath))
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	var allowed map[string]bool
	if len(cfg.Targets) > 0 {
		allowed = make(map[string]bool, len(cfg.Targets))
		for _, t := range cfg.Targets {
			allowed[t] = true
		}
	}

	return &YOLO{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
		allowed:   allowed,
	}, nil
}

// Detect finds waste in an encoded frame
func (d *YOLO) Detect(ctx context.Context, frame []byte) ([]Detection, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(frame, gocv.IMReadColor)
	if err != nil {
		return nil, WrapError("yolo", fmt.Errorf("decode image: %w", err))
	}
	defer img.Close()

	if img.Empty() {
		return nil, WrapError("yolo", ErrEmptyFrame)
	}

	imgW := float32(img.Cols())
	imgH := float32(img.Rows())

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	output := d.net.Forward("")
	defer output.Close()

	dets, err := d.parseOutput(output, imgW, imgH)
	if err != nil {
		return nil, WrapError("yolo", err)
	}
	SortByConfidence(dets)
	return dets, nil
}

// parseOutput reads the [1, 4+classes, anchors] YOLOv8 tensor
func (d *YOLO) parseOutput(output gocv.Mat, imgW, imgH float32) ([]Detection, error) {
	dims := output.Size()
	if len(dims) != 3 || dims[1] <= 4 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	attrs := dims[1]
	anchors := dims[2]

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("output data: %w", err)
	}

	var boxes []image.Rectangle
	var confidences []float32
	var classIDs []int

	for i := 0; i < anchors; i++ {
		maxScore := float32(0)
		maxClassID := 0

		for c := 4; c < attrs; c++ {
			score := data[c*anchors+i]
			if score > maxScore {
				maxScore = score
				maxClassID = c - 4
			}
		}

		if maxScore < d.config.ConfidenceThresh {
			continue
		}
		if d.allowed != nil && !d.allowed[d.className(maxClassID)] {
			continue
		}

		cx := data[0*anchors+i]
		cy := data[1*anchors+i]
		w := data[2*anchors+i]
		h := data[3*anchors+i]

		x1 := int((cx - w/2) * imgW / float32(d.config.InputWidth))
		y1 := int((cy - h/2) * imgH / float32(d.config.InputHeight))
		x2 := int((cx + w/2) * imgW / float32(d.config.InputWidth))
		y2 := int((cy + h/2) * imgH / float32(d.config.InputHeight))

		boxes = append(boxes, image.Rect(x1, y1, x2, y2))
		confidences = append(confidences, maxScore)
		classIDs = append(classIDs, maxClassID)
	}

	if len(boxes) == 0 {
		return nil, nil
	}

	indices := gocv.NMSBoxes(boxes, confidences, d.config.ConfidenceThresh, d.config.NMSThresh)

	dets := make([]Detection, 0, len(indices))
	for _, idx := range indices {
		box := boxes[idx]
		x, y, w, h := clampBox(float64(box.Min.X), float64(box.Min.Y), float64(box.Max.X), float64(box.Max.Y),
			float64(imgW), float64(imgH))
		if w <= 0 || h <= 0 {
			continue
		}
		dets = append(dets, Detection{
			UpperLeftX:   x,
			UpperLeftY:   y,
			Width:        w,
			Height:       h,
			ParentWidth:  float64(imgW),
			ParentHeight: float64(imgH),
			Confidence:   float64(confidences[idx]),
			Label:        d.className(classIDs[idx]),
		})
	}
	return dets, nil
}

func (d *YOLO) className(id int) string {
	if id < 0 || id >= len(d.config.Classes) {
		return fmt.Sprintf("class_%d", id)
	}
	return d.config.Classes[id]
}

// Close releases the network
func (d *YOLO) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// COCOClasses contains the 80 COCO class names
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// WasteClasses are the COCO classes a small arm can pick up off the floor
var WasteClasses = []string{
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl",
	"banana", "apple", "sandwich", "orange", "hot dog", "donut",
}

// IsWaste reports whether a class name is in WasteClasses
func IsWaste(className string) bool {
	for _, c := range WasteClasses {
		if c == className {
			return true
		}
	}
	return false
}
