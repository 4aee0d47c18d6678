// Package binbot assembles the decision server: detector, navigation,
// patrol, bot channel and app channel.
package binbot

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-binbot/internal/config"
	"github.com/teslashibe/go-binbot/pkg/app"
	"github.com/teslashibe/go-binbot/pkg/botlink"
	"github.com/teslashibe/go-binbot/pkg/decision"
	"github.com/teslashibe/go-binbot/pkg/detection"
	"github.com/teslashibe/go-binbot/pkg/frame"
	"github.com/teslashibe/go-binbot/pkg/navigation"
	"github.com/teslashibe/go-binbot/pkg/patrol"
	"github.com/teslashibe/go-binbot/pkg/power"
	"github.com/teslashibe/go-binbot/pkg/telemetry"
)

// App owns every server component and their lifecycle.
type App struct {
	config config.Config
	logger *logrus.Entry

	power     *power.Switch
	source    detection.Source
	engine    *decision.Engine
	appServer *app.Server
	botServer *botlink.Server
	telemetry *telemetry.RedisSink
}

// New creates an application. Call Init before Run.
func New(cfg config.Config, logger *logrus.Entry) *App {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &App{config: cfg, logger: logger}
}

// Init builds the components and binds both ports. A port that cannot be
// bound or a detector that cannot load is fatal. Redis failures only
// disable telemetry.
func (a *App) Init(ctx context.Context) error {
	a.power = power.NewSwitch(a.config.StartPowered)

	a.appServer = app.NewServer(a.config.App, a.power, a.logger)
	if err := a.appServer.Listen(); err != nil {
		return err
	}

	sinks := []decision.StatusSink{a.appServer}
	if a.config.Telemetry.Enabled() {
		sink, err := telemetry.NewRedisSink(ctx, a.config.Telemetry, a.logger)
		if err != nil {
			a.logger.WithError(err).Warn("Telemetry disabled")
		} else {
			a.telemetry = sink
			sinks = append(sinks, sink)
		}
	}

	source, err := NewSource(ctx, a.config.Detector, a.logger)
	if err != nil {
		a.Shutdown()
		return fmt.Errorf("binbot: detector: %w", err)
	}
	a.source = source

	nav, err := navigation.NewCalculator(a.config.Navigation)
	if err != nil {
		a.Shutdown()
		return err
	}
	seq, err := patrol.New(a.config.Patrol.Script)
	if err != nil {
		a.Shutdown()
		return err
	}

	opts := []decision.Option{
		decision.WithAnnotator(frame.NewAnnotator(a.config.Preview)),
		decision.WithSinks(sinks...),
		decision.WithPowerGate(a.power),
		decision.WithConfig(a.config.Decision),
		decision.WithLogger(a.logger),
	}
	if a.source != nil {
		opts = append(opts, decision.WithSource(a.source))
	}
	if a.engine, err = decision.New(nav, seq, opts...); err != nil {
		a.Shutdown()
		return err
	}

	if a.botServer, err = botlink.Listen(a.config.Bot, a.power, a.logger); err != nil {
		a.Shutdown()
		return err
	}

	a.logger.WithFields(logrus.Fields{
		"bot":      a.botServer.Addr().String(),
		"app":      a.appServer.Addr().String(),
		"detector": a.config.Detector.Backend,
		"powered":  a.power.Powered(),
	}).Info("BinBot ready")
	return nil
}

// Run serves both channels until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if a.engine == nil {
		return errors.New("binbot: Run called before Init")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.appServer.Serve(gctx) })
	g.Go(func() error { return a.botServer.Serve(gctx, a.engine) })
	return g.Wait()
}

// Shutdown releases ports, the detector and the Redis connection.
func (a *App) Shutdown() {
	if a.appServer != nil {
		if err := a.appServer.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			a.logger.WithError(err).Debug("App listener close")
		}
	}
	if a.botServer != nil {
		if err := a.botServer.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			a.logger.WithError(err).Debug("Bot listener close")
		}
	}
	if a.source != nil {
		if err := a.source.Close(); err != nil {
			a.logger.WithError(err).Warn("Detector close")
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Close(); err != nil {
			a.logger.WithError(err).Warn("Redis close")
		}
	}
	a.logger.Info("BinBot stopped")
}

// Power returns the power switch shared by both channels.
func (a *App) Power() *power.Switch { return a.power }

// BotAddr returns the bound bot channel address.
func (a *App) BotAddr() net.Addr { return a.botServer.Addr() }

// AppAddr returns the bound app channel address.
func (a *App) AppAddr() net.Addr { return a.appServer.Addr() }

// NewSource builds the configured detection source. The "none" backend
// returns a nil source and no error.
func NewSource(ctx context.Context, cfg config.DetectorConfig, logger *logrus.Entry) (detection.Source, error) {
	switch cfg.Backend {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendYOLO:
		y, err := detection.NewYOLO(cfg.YOLO)
		if err != nil {
			return nil, err
		}
		return y, nil
	case config.BackendGemini:
		g, err := detection.NewGemini(ctx, cfg.Gemini)
		if err != nil {
			return nil, err
		}
		return g, nil
	case config.BackendChain:
		var sources []detection.Source
		if y, err := detection.NewYOLO(cfg.YOLO); err != nil {
			logger.WithError(err).Warn("YOLO unavailable in chain")
		} else {
			sources = append(sources, y)
		}
		if cfg.Gemini.APIKey != "" {
			if g, err := detection.NewGemini(ctx, cfg.Gemini); err != nil {
				logger.WithError(err).Warn("Gemini unavailable in chain")
			} else {
				sources = append(sources, g)
			}
		}
		c, err := detection.NewChain(logger, sources...)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("binbot: unknown detector backend %q", cfg.Backend)
	}
}
