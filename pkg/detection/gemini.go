package detection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	jsoniter "github.com/json-iterator/go"
	"google.golang.org/api/option"

	"github.com/teslashibe/go-binbot/pkg/protocol"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// GeminiConfig holds cloud detector configuration
type GeminiConfig struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
	Retries int           `yaml:"retries" validate:"gte=0"`

	// MinConfidence drops boxes the model scores below this value
	MinConfidence float64 `yaml:"min_confidence" validate:"gte=0,lte=1"`
}

// DefaultGeminiConfig returns defaults for the Gemini detector
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		Model:         "gemini-1.5-flash",
		Timeout:       10 * time.Second,
		Retries:       2,
		MinConfidence: 0.3,
	}
}

const geminiPrompt = `Find every piece of litter or waste on the floor in this image
(bottles, cans, cups, wrappers, food scraps, paper, plastic).
Return a JSON array only. Each element: {"label": string, "confidence": number 0-1,
"box_2d": [ymin, xmin, ymax, xmax]} with coordinates normalized to 0-1000.
Return [] when there is no waste.`

// Gemini detects waste with a Gemini vision model
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	config GeminiConfig
}

// NewGemini creates a Gemini detector
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, WrapError("gemini", errors.New("API key is required"))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiConfig().Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGeminiConfig().Timeout
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, WrapError("gemini", fmt.Errorf("create client: %w", err))
	}

	temp := float32(0)
	model := client.GenerativeModel(cfg.Model)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
	}

	return &Gemini{client: client, model: model, config: cfg}, nil
}

// Detect sends the frame to Gemini and converts the returned boxes to pixels
func (g *Gemini) Detect(ctx context.Context, frame []byte) ([]Detection, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}
	cfg, format, err := protocol.ProbeImage(frame)
	if err != nil {
		return nil, WrapError("gemini", fmt.Errorf("%w: %v", ErrEmptyFrame, err))
	}

	var lastErr error
	for attempt := 0; attempt <= g.config.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
		}

		text, err := g.generate(ctx, format, frame)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		dets, err := parseGeminiBoxes(text, float64(cfg.Width), float64(cfg.Height), g.config.MinConfidence)
		if err != nil {
			return nil, WrapError("gemini", err)
		}
		return dets, nil
	}
	return nil, WrapError("gemini", lastErr)
}

func (g *Gemini) generate(ctx context.Context, format string, frame []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	res, err := g.model.GenerateContent(ctx, genai.Text(geminiPrompt), genai.ImageData(format, frame))
	if err != nil {
		return "", err
	}
	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil || len(res.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no response from model")
	}

	var sb strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("unexpected response format")
	}
	return sb.String(), nil
}

// Close releases the client
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

type geminiBox struct {
	Label      string    `json:"label"`
	Confidence *float64  `json:"confidence"`
	Box        []float64 `json:"box_2d"`
}

// parseGeminiBoxes converts a model reply of 0-1000 normalized
// [ymin, xmin, ymax, xmax] boxes into pixel detections
func parseGeminiBoxes(text string, width, height, minConfidence float64) ([]Detection, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: frame is %.0fx%.0f", ErrDegenerateBox, width, height)
	}

	text = stripCodeFences(text)
	if text == "" {
		return nil, nil
	}

	var boxes []geminiBox
	if err := json.Unmarshal([]byte(text), &boxes); err != nil {
		// Some replies wrap the array in an object
		var wrapped struct {
			Detections []geminiBox `json:"detections"`
		}
		if err2 := json.Unmarshal([]byte(text), &wrapped); err2 != nil {
			return nil, fmt.Errorf("bad JSON reply: %w", err)
		}
		boxes = wrapped.Detections
	}

	dets := make([]Detection, 0, len(boxes))
	for _, b := range boxes {
		if len(b.Box) != 4 {
			continue
		}
		conf := 1.0
		if b.Confidence != nil {
			conf = *b.Confidence
		}
		if conf < minConfidence {
			continue
		}

		ymin, xmin, ymax, xmax := b.Box[0], b.Box[1], b.Box[2], b.Box[3]
		if xmax < xmin {
			xmin, xmax = xmax, xmin
		}
		if ymax < ymin {
			ymin, ymax = ymax, ymin
		}

		x, y, w, h := clampBox(xmin/1000*width, ymin/1000*height, xmax/1000*width, ymax/1000*height, width, height)
		if w <= 0 || h <= 0 {
			continue
		}
		dets = append(dets, Detection{
			UpperLeftX:   x,
			UpperLeftY:   y,
			Width:        w,
			Height:       h,
			ParentWidth:  width,
			ParentHeight: height,
			Confidence:   conf,
			Label:        b.Label,
		})
	}

	SortByConfidence(dets)
	return dets, nil
}

// stripCodeFences removes a surrounding ``` or ```json fence
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
