package decision

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/teslashibe/go-binbot/pkg/detection"
	"github.com/teslashibe/go-binbot/pkg/frame"
)

// Config holds decision loop settings.
type Config struct {
	// EchoAnnotatedFrame sends the annotated frame back to the bot
	EchoAnnotatedFrame bool `yaml:"echo_annotated_frame"`

	// RetrievePose is the arm pose sent with RETRIEVE. Empty leaves the arms to the bot.
	RetrievePose []float64 `yaml:"retrieve_pose"`

	// DetectTimeout bounds a single detection call. 0 disables the bound.
	DetectTimeout time.Duration `yaml:"detect_timeout" validate:"gte=0"`

	// PublishFrames attaches a preview to app updates
	PublishFrames bool `yaml:"publish_frames"`
}

// DefaultConfig returns decision loop defaults.
func DefaultConfig() Config {
	return Config{
		DetectTimeout: 2 * time.Second,
		PublishFrames: true,
	}
}

// Option is a functional option for configuring the engine.
type Option func(*Engine)

// WithSource sets the detection backend. Without one every frame is treated
// as empty and the bot patrols.
func WithSource(s detection.Source) Option {
	return func(e *Engine) { e.source = s }
}

// WithAnnotator sets the preview renderer.
func WithAnnotator(a *frame.Annotator) Option {
	return func(e *Engine) { e.annotator = a }
}

// WithSinks adds status sinks.
func WithSinks(sinks ...StatusSink) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, sinks...) }
}

// WithPowerGate sets the power state reported to sinks.
func WithPowerGate(g PowerGate) Option {
	return func(e *Engine) { e.gate = g }
}

// WithConfig sets loop settings.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.config = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(e *Engine) { e.logger = l }
}
