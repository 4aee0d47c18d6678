package detection

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// Chain tries multiple sources in order until one succeeds. An empty result
// from a healthy source is a success.
type Chain struct {
	sources []Source
	logger  *logrus.Entry
}

// NewChain creates a source chain.
// At least one source is required.
func NewChain(logger *logrus.Entry, sources ...Source) (*Chain, error) {
	if len(sources) == 0 {
		return nil, ErrNoSource
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Chain{
		sources: sources,
		logger:  logger.WithField("component", "detection.chain"),
	}, nil
}

// Detect tries each source until one succeeds.
func (c *Chain) Detect(ctx context.Context, frame []byte) ([]Detection, error) {
	var errs []error

	for i, s := range c.sources {
		dets, err := s.Detect(ctx, frame)
		if err == nil {
			if i > 0 {
				c.logger.WithField("source_index", i).Info("fallback source succeeded")
			}
			return dets, nil
		}

		errs = append(errs, err)
		c.logger.WithFields(logrus.Fields{
			"source_index": i,
			"error":        err,
		}).Warn("source failed, trying next")

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, &ChainError{Errors: errs}
}

// Close closes every source and returns the joined errors.
func (c *Chain) Close() error {
	var errs []error
	for _, s := range c.sources {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
