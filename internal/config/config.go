// Package config loads go-binbot settings from YAML, .env files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-binbot/internal/log"
	"github.com/teslashibe/go-binbot/pkg/app"
	"github.com/teslashibe/go-binbot/pkg/botlink"
	"github.com/teslashibe/go-binbot/pkg/decision"
	"github.com/teslashibe/go-binbot/pkg/detection"
	"github.com/teslashibe/go-binbot/pkg/frame"
	"github.com/teslashibe/go-binbot/pkg/navigation"
	"github.com/teslashibe/go-binbot/pkg/patrol"
	"github.com/teslashibe/go-binbot/pkg/protocol"
	"github.com/teslashibe/go-binbot/pkg/telemetry"
)

// Detector backends.
const (
	BackendYOLO   = "yolo"
	BackendGemini = "gemini"
	BackendChain  = "chain" // YOLO first, Gemini on failure
	BackendNone   = "none"
)

// Config is the complete server configuration.
type Config struct {
	Bot        botlink.Config    `yaml:"bot"`
	App        app.Config        `yaml:"app"`
	Detector   DetectorConfig    `yaml:"detector"`
	Navigation navigation.Config `yaml:"navigation"`
	Patrol     PatrolConfig      `yaml:"patrol"`
	Decision   decision.Config   `yaml:"decision"`
	Preview    frame.Config      `yaml:"preview"`
	Telemetry  telemetry.Config  `yaml:"telemetry"`
	Log        log.Options       `yaml:"log"`

	// StartPowered decides whether the bot may move before the app says so
	StartPowered bool `yaml:"start_powered"`
}

// DetectorConfig selects and configures the detection source.
type DetectorConfig struct {
	Backend string                 `yaml:"backend" validate:"oneof=yolo gemini chain none"`
	YOLO    detection.YOLOConfig   `yaml:"yolo"`
	Gemini  detection.GeminiConfig `yaml:"gemini"`
}

// PatrolConfig holds the search script used when nothing is detected.
type PatrolConfig struct {
	Script []protocol.Movement `yaml:"script" validate:"required,min=1"`
}

// Default returns a configuration that runs without any config file.
func Default() Config {
	return Config{
		Bot: botlink.DefaultConfig(),
		App: app.DefaultConfig(),
		Detector: DetectorConfig{
			Backend: BackendYOLO,
			YOLO:    detection.DefaultYOLOConfig(),
			Gemini:  detection.DefaultGeminiConfig(),
		},
		Navigation:   navigation.DefaultConfig(),
		Patrol:       PatrolConfig{Script: patrol.DefaultScript()},
		Decision:     decision.DefaultConfig(),
		Preview:      frame.DefaultConfig(),
		Telemetry:    telemetry.DefaultConfig(),
		Log:          log.DefaultOptions(),
		StartPowered: true,
	}
}

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Load reads path over the defaults, applies .env and environment
// overrides, then validates. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	// Missing .env is normal outside development
	_ = godotenv.Load()

	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from BINBOT_* variables and GEMINI_API_KEY.
func (c *Config) ApplyEnv() error {
	c.Bot.Addr = envString("BINBOT_BOT_ADDR", c.Bot.Addr)
	c.App.Addr = envString("BINBOT_APP_ADDR", c.App.Addr)

	c.Detector.Backend = strings.ToLower(envString("BINBOT_DETECTOR", c.Detector.Backend))
	c.Detector.YOLO.ModelPath = envString("BINBOT_YOLO_MODEL", c.Detector.YOLO.ModelPath)
	c.Detector.Gemini.APIKey = envString("GEMINI_API_KEY", c.Detector.Gemini.APIKey)
	c.Detector.Gemini.APIKey = envString("BINBOT_GEMINI_API_KEY", c.Detector.Gemini.APIKey)
	c.Detector.Gemini.Model = envString("BINBOT_GEMINI_MODEL", c.Detector.Gemini.Model)

	c.Telemetry.Addr = envString("BINBOT_REDIS_ADDR", c.Telemetry.Addr)
	c.Telemetry.Password = envString("BINBOT_REDIS_PASSWORD", c.Telemetry.Password)

	c.Log.Level = envString("BINBOT_LOG_LEVEL", c.Log.Level)
	c.Log.File = envString("BINBOT_LOG_FILE", c.Log.File)

	var err error
	if c.Decision.EchoAnnotatedFrame, err = envBool("BINBOT_ECHO_FRAME", c.Decision.EchoAnnotatedFrame); err != nil {
		return err
	}
	if c.StartPowered, err = envBool("BINBOT_START_POWERED", c.StartPowered); err != nil {
		return err
	}

	if s := os.Getenv("BINBOT_PATROL_SCRIPT"); s != "" {
		script, err := patrol.ParseScript(s)
		if err != nil {
			return fmt.Errorf("config: BINBOT_PATROL_SCRIPT: %w", err)
		}
		c.Patrol.Script = script
	}
	return nil
}

// Validate checks struct tags, then the rules tags cannot express.
func (c Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if err := c.Navigation.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := patrol.New(c.Patrol.Script); err != nil {
		return fmt.Errorf("%w: patrol: %v", ErrInvalid, err)
	}

	backend := c.Detector.Backend
	if backend == BackendGemini && c.Detector.Gemini.APIKey == "" {
		return fmt.Errorf("%w: gemini backend needs GEMINI_API_KEY", ErrInvalid)
	}
	if (backend == BackendYOLO || backend == BackendChain) && c.Detector.YOLO.ModelPath == "" {
		return fmt.Errorf("%w: detector.yolo.model_path is empty", ErrInvalid)
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}
