package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-binbot/pkg/protocol"
)

// clearEnv blanks every variable ApplyEnv reads
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"BINBOT_BOT_ADDR", "BINBOT_APP_ADDR", "BINBOT_DETECTOR", "BINBOT_YOLO_MODEL",
		"GEMINI_API_KEY", "BINBOT_GEMINI_API_KEY", "BINBOT_GEMINI_MODEL",
		"BINBOT_REDIS_ADDR", "BINBOT_REDIS_PASSWORD", "BINBOT_LOG_LEVEL", "BINBOT_LOG_FILE",
		"BINBOT_ECHO_FRAME", "BINBOT_START_POWERED", "BINBOT_PATROL_SCRIPT",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "binbot.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Bot.Addr != "0.0.0.0:7001" || cfg.App.Addr != "0.0.0.0:7002" {
		t.Errorf("addrs = %q, %q", cfg.Bot.Addr, cfg.App.Addr)
	}
	if len(cfg.Patrol.Script) != 4 {
		t.Errorf("patrol script has %d steps, want 4", len(cfg.Patrol.Script))
	}
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
bot:
  addr: "127.0.0.1:9001"
  read_timeout: 3s
navigation:
  arm_reach: 25
patrol:
  script:
    - {angle: 30, distance: 0}
    - {angle: 0, distance: 40}
detector:
  backend: none
telemetry:
  addr: "localhost:6379"
log:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bot.Addr != "127.0.0.1:9001" || cfg.Bot.ReadTimeout != 3*time.Second {
		t.Errorf("bot = %+v", cfg.Bot)
	}
	if cfg.Bot.WriteTimeout != 10*time.Second {
		t.Errorf("unset write timeout = %v, want default", cfg.Bot.WriteTimeout)
	}
	if cfg.Navigation.ArmReach != 25 || cfg.Navigation.HorizontalFOV != 62.2 {
		t.Errorf("navigation = %+v", cfg.Navigation)
	}
	want := []protocol.Movement{{Angle: 30}, {Distance: 40}}
	if len(cfg.Patrol.Script) != 2 || cfg.Patrol.Script[0] != want[0] || cfg.Patrol.Script[1] != want[1] {
		t.Errorf("script = %+v, want %+v", cfg.Patrol.Script, want)
	}
	if cfg.Detector.Backend != BackendNone {
		t.Errorf("backend = %q", cfg.Detector.Backend)
	}
	if !cfg.Telemetry.Enabled() || cfg.Telemetry.Channel != "binbot:status" {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BINBOT_BOT_ADDR", ":7101")
	t.Setenv("BINBOT_DETECTOR", "GEMINI")
	t.Setenv("GEMINI_API_KEY", "key-123")
	t.Setenv("BINBOT_PATROL_SCRIPT", "15:0, 0:30")
	t.Setenv("BINBOT_ECHO_FRAME", "true")
	t.Setenv("BINBOT_START_POWERED", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Bot.Addr != ":7101" {
		t.Errorf("bot addr = %q", cfg.Bot.Addr)
	}
	if cfg.Detector.Backend != BackendGemini || cfg.Detector.Gemini.APIKey != "key-123" {
		t.Errorf("detector = %q key %q", cfg.Detector.Backend, cfg.Detector.Gemini.APIKey)
	}
	if len(cfg.Patrol.Script) != 2 || cfg.Patrol.Script[1].Distance != 30 {
		t.Errorf("script = %+v", cfg.Patrol.Script)
	}
	if !cfg.Decision.EchoAnnotatedFrame || cfg.StartPowered {
		t.Errorf("echo = %v, start powered = %v", cfg.Decision.EchoAnnotatedFrame, cfg.StartPowered)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		invalid bool
	}{
		{name: "min step too small", yaml: "navigation:\n  min_step: 1\n", invalid: true},
		{name: "unknown backend", yaml: "detector:\n  backend: tflite\n", invalid: true},
		{name: "gemini without key", yaml: "detector:\n  backend: gemini\n", invalid: true},
		{name: "empty patrol", yaml: "patrol:\n  script: []\n", invalid: true},
		{name: "sentinel patrol step", yaml: "patrol:\n  script:\n    - {angle: 0, distance: 1}\n", invalid: true},
		{name: "bad log level", yaml: "log:\n  level: loud\n", invalid: true},
		{name: "bad yaml", yaml: "bot: [\n"},
		{name: "bad env bool", env: map[string]string{"BINBOT_ECHO_FRAME": "maybe"}},
		{name: "bad env script", env: map[string]string{"BINBOT_PATROL_SCRIPT": "left"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeFile(t, tt.yaml))
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if tt.invalid && !errors.Is(err, ErrInvalid) {
				t.Errorf("Load() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
}
