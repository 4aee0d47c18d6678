// Package telemetry mirrors decision cycle updates to Redis for dashboards and
// offline analysis.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/teslashibe/go-binbot/pkg/protocol"
)

// Config holds Redis sink settings. An empty Addr disables the sink.
type Config struct {
	Addr     string        `yaml:"addr" validate:"omitempty,hostname_port"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	Channel  string        `yaml:"channel" validate:"required_with=Addr"`
	LastKey  string        `yaml:"last_key"`                // Latest status is also stored here when set
	LastTTL  time.Duration `yaml:"last_ttl" validate:"gte=0"` // 0 keeps the key forever
	Timeout  time.Duration `yaml:"timeout" validate:"gte=0"`
}

// DefaultConfig returns sink defaults, disabled
func DefaultConfig() Config {
	return Config{
		Channel: "binbot:status",
		LastKey: "binbot:status:last",
		LastTTL: time.Minute,
		Timeout: time.Second,
	}
}

// Enabled reports whether a Redis address is configured
func (c Config) Enabled() bool {
	return c.Addr != ""
}

// client is the subset of *redis.Client the sink uses
type client interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisSink publishes every update, without its preview, to a Redis channel
type RedisSink struct {
	client client
	config Config
	logger *logrus.Entry
}

// NewRedisSink connects to Redis and checks the connection
func NewRedisSink(ctx context.Context, cfg Config, logger *logrus.Entry) (*RedisSink, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger = logger.WithField("component", "telemetry")

	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.Ping(pctx).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("telemetry: connect redis %s: %w", cfg.Addr, err)
	}

	logger.WithField("addr", cfg.Addr).Info("Connected to Redis")
	return newRedisSink(rc, cfg, logger), nil
}

func newRedisSink(c client, cfg Config, logger *logrus.Entry) *RedisSink {
	if cfg.Channel == "" {
		cfg.Channel = DefaultConfig().Channel
	}
	return &RedisSink{client: c, config: cfg, logger: logger}
}

// Publish sends msg to the channel and refreshes the last-status key
func (s *RedisSink) Publish(ctx context.Context, msg *protocol.AppMessage) error {
	data, err := msg.WithoutImage().Bytes()
	if err != nil {
		return fmt.Errorf("telemetry: encode: %w", err)
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	receivers, err := s.client.Publish(ctx, s.config.Channel, data).Result()
	if err != nil {
		return fmt.Errorf("telemetry: publish: %w", err)
	}

	if s.config.LastKey != "" {
		if err := s.client.Set(ctx, s.config.LastKey, data, s.config.LastTTL).Err(); err != nil {
			return fmt.Errorf("telemetry: set %s: %w", s.config.LastKey, err)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"channel":   s.config.Channel,
		"receivers": receivers,
		"cycle_id":  msg.CycleID,
	}).Debug("Status published")
	return nil
}

// Close closes the Redis connection
func (s *RedisSink) Close() error {
	return s.client.Close()
}
