// Package app is the companion app channel: status and camera websockets plus
// a small HTTP API for the power switch.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-binbot/pkg/hub"
	"github.com/teslashibe/go-binbot/pkg/power"
	"github.com/teslashibe/go-binbot/pkg/protocol"
)

// Config holds app channel settings
type Config struct {
	Addr         string  `yaml:"addr" validate:"required,hostname_port"`
	MaxFrameRate float64 `yaml:"max_frame_rate" validate:"gt=0"` // Camera previews per second
	APIRate      float64 `yaml:"api_rate" validate:"gt=0"`       // HTTP requests per second per IP
	APIBurst     int     `yaml:"api_burst" validate:"gt=0"`
	CORS         bool    `yaml:"cors"`
}

// DefaultConfig returns app channel defaults
func DefaultConfig() Config {
	return Config{
		Addr:         "0.0.0.0:7002",
		MaxFrameRate: 5,
		APIRate:      10,
		APIBurst:     20,
		CORS:         true,
	}
}

// Server is the app channel
type Server struct {
	app    *fiber.App
	config Config
	gate   *power.Switch
	logger *logrus.Entry
	ln     net.Listener

	statusHub *hub.Hub
	cameraHub *hub.Hub
	frames    *rate.Limiter

	lastMu sync.RWMutex
	last   *protocol.AppMessage
}

// NewServer creates the app channel and wires it to the power switch
func NewServer(cfg Config, gate *power.Switch, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.MaxFrameRate <= 0 {
		cfg.MaxFrameRate = DefaultConfig().MaxFrameRate
	}
	if cfg.APIRate <= 0 || cfg.APIBurst <= 0 {
		cfg.APIRate, cfg.APIBurst = DefaultConfig().APIRate, DefaultConfig().APIBurst
	}
	logger = logger.WithField("component", "app")

	s := &Server{
		config:    cfg,
		gate:      gate,
		logger:    logger,
		statusHub: hub.New("status", true, logger),
		cameraHub: hub.New("camera", false, logger),
		frames:    rate.NewLimiter(rate.Limit(cfg.MaxFrameRate), 1),
		last:      protocol.NewPowerMessage(gate.Powered()),
	}

	app := fiber.New(fiber.Config{
		AppName:               "BinBot",
		DisableStartupMessage: true,
		JSONEncoder:           jsoniter.Marshal,
		JSONDecoder:           jsoniter.Unmarshal,
	})

	app.Use(requestID())
	app.Use(accessLog(logger))
	if cfg.CORS {
		app.Use(cors.New())
	}

	app.Get("/healthz", s.handleHealth)

	api := app.Group("/api", newIPLimiter(rate.Limit(cfg.APIRate), cfg.APIBurst).handler)
	api.Get("/status", s.handleStatus)
	api.Get("/power", s.handleGetPower)
	api.Post("/power", s.handleSetPower)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.statusHub.Serve))
	app.Get("/ws/camera", websocket.New(s.cameraHub.Serve))

	s.statusHub.OnMessage(s.handleCommand)
	s.statusHub.Broadcast(s.statusMessage(s.last))
	gate.OnChange(s.powerChanged)

	s.app = app
	return s
}

// App returns the fiber app, for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen binds the app port
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", s.config.Addr, err)
	}
	s.ln = ln
	return nil
}

// Close releases the port. Serve closes it on its own at shutdown.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

// Addr returns the bound address, or nil before Listen
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve runs the hubs and HTTP server until ctx is cancelled
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	go s.statusHub.Run(ctx)
	go s.cameraHub.Run(ctx)

	errc := make(chan error, 1)
	go func() { errc <- s.app.Listener(s.ln) }()
	s.logger.WithField("addr", s.ln.Addr().String()).Info("App channel listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("app: shutdown: %w", err)
	}
	return nil
}

// Publish pushes a cycle update to app clients. The status goes out as JSON
// and the preview, when present, as a rate-limited binary frame.
func (s *Server) Publish(ctx context.Context, msg *protocol.AppMessage) error {
	status := msg.WithoutImage()
	status.Powered = s.gate.Powered()

	s.lastMu.Lock()
	s.last = status
	s.lastMu.Unlock()

	s.statusHub.Broadcast(s.statusMessage(status))

	if msg.Img != "" && s.cameraHub.ClientCount() > 0 && s.frames.Allow() {
		jpeg, err := protocol.DecodeImage(msg.Img)
		if err != nil {
			return fmt.Errorf("app: preview: %w", err)
		}
		s.cameraHub.BroadcastBinary(jpeg)
	}
	return nil
}

// Last returns the most recent status
func (s *Server) Last() *protocol.AppMessage {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.last
}

func (s *Server) statusMessage(msg *protocol.AppMessage) hub.Message {
	data, err := msg.Bytes()
	if err != nil {
		s.logger.WithError(err).Error("Encode status failed")
		return hub.NewJSONMessage([]byte("{}"))
	}
	return hub.NewJSONMessage(data)
}

// powerChanged runs on every switch flip, whichever side flipped it
func (s *Server) powerChanged(powered bool) {
	s.logger.WithField("powered", powered).Info("Power switched")

	msg := protocol.NewPowerMessage(powered)
	s.lastMu.Lock()
	if s.last != nil {
		cp := *s.last
		cp.Powered = powered
		cp.Timestamp = msg.Timestamp
		msg = &cp
	}
	s.last = msg
	s.lastMu.Unlock()

	s.statusHub.Broadcast(s.statusMessage(msg))
}

// handleCommand applies a {"powered": bool} frame from a status client
func (s *Server) handleCommand(data []byte) {
	powered, err := protocol.ParsePowerCommand(data)
	if err != nil {
		s.logger.WithError(err).Warn("Ignoring app command")
		return
	}
	s.gate.Set(powered)
}
