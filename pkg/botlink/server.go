// Package botlink is the TCP channel between BinBot and the decision server.
// Each connection carries one report from the bot and one command back.
package botlink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/teslashibe/go-binbot/pkg/decision"
	"github.com/teslashibe/go-binbot/pkg/protocol"
)

// Config holds bot channel settings.
type Config struct {
	Addr              string        `yaml:"addr" validate:"required,hostname_port"`
	ReadTimeout       time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout      time.Duration `yaml:"write_timeout" validate:"gte=0"`
	MaxMessageBytes   int           `yaml:"max_message_bytes" validate:"gte=0"`
	PowerPollInterval time.Duration `yaml:"power_poll_interval" validate:"gt=0"`
}

// DefaultConfig returns bot channel defaults.
func DefaultConfig() Config {
	return Config{
		Addr:              "0.0.0.0:7001",
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxMessageBytes:   8 << 20,
		PowerPollInterval: 250 * time.Millisecond,
	}
}

// Decider produces the command for a bot report.
type Decider interface {
	Decide(ctx context.Context, req *protocol.Instruction) (*protocol.Instruction, error)
}

// DecideFunc adapts a function to Decider.
type DecideFunc func(ctx context.Context, req *protocol.Instruction) (*protocol.Instruction, error)

// Decide calls f.
func (f DecideFunc) Decide(ctx context.Context, req *protocol.Instruction) (*protocol.Instruction, error) {
	return f(ctx, req)
}

// Server accepts bot connections.
type Server struct {
	ln     net.Listener
	config Config
	gate   decision.PowerGate
	logger *logrus.Entry
}

// Listen binds the bot port. A nil gate is always powered.
func Listen(cfg Config, gate decision.PowerGate, logger *logrus.Entry) (*Server, error) {
	if cfg.PowerPollInterval <= 0 {
		cfg.PowerPollInterval = DefaultConfig().PowerPollInterval
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("botlink: listen %s: %w", cfg.Addr, err)
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		ln:     ln,
		config: cfg,
		gate:   gate,
		logger: logger.WithField("component", "botlink"),
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Close stops accepting connections.
func (s *Server) Close() error {
	return s.ln.Close()
}

// Accept waits for the next bot connection.
func (s *Server) Accept(ctx context.Context) (*Session, error) {
	tl, _ := s.ln.(*net.TCPListener)
	if tl != nil {
		_ = tl.SetDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		if tl != nil {
			_ = tl.SetDeadline(time.Now())
		}
	})
	defer stop()

	conn, err := s.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("botlink: accept: %w", err)
	}
	return newSession(conn, s.config), nil
}

// Serve handles bots one connection at a time until ctx is cancelled. Bad
// messages and transport errors are logged and the connection dropped.
func (s *Server) Serve(ctx context.Context, d Decider) error {
	s.logger.WithField("addr", s.Addr().String()).Info("Bot channel listening")

	for {
		if err := s.waitPowered(ctx); err != nil {
			return nil
		}

		sess, err := s.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.WithError(err).Warn("Accept failed")
			continue
		}

		s.handle(ctx, sess, d)
	}
}

func (s *Server) handle(ctx context.Context, sess *Session, d Decider) {
	defer sess.Close()

	log := s.logger.WithFields(logrus.Fields{
		"session_id": sess.ID(),
		"remote":     sess.RemoteAddr().String(),
	})

	req, err := sess.Receive()
	if err != nil {
		if errors.Is(err, protocol.ErrMalformedMessage) {
			log.WithError(err).Warn("Malformed bot message")
		} else {
			log.WithError(err).Warn("Receive failed")
		}
		return
	}

	resp, err := d.Decide(decision.WithSessionID(ctx, sess.ID()), req)
	if err != nil {
		log.WithError(err).Error("Decide failed")
		return
	}

	if err := sess.Send(resp); err != nil {
		log.WithError(err).Warn("Send failed")
		return
	}
	log.WithField("status", resp.Status).Debug("Command sent")
}

// waitPowered blocks until the gate reports powered or ctx ends.
func (s *Server) waitPowered(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.gate == nil || s.gate.Powered() {
		return nil
	}

	s.logger.Info("Bot channel paused until powered on")
	ticker := time.NewTicker(s.config.PowerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.gate.Powered() {
				s.logger.Info("Bot channel resumed")
				return nil
			}
		}
	}
}
