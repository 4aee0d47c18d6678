// Package decision runs one perception-to-command cycle per bot report.
package decision

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/teslashibe/go-binbot/pkg/detection"
	"github.com/teslashibe/go-binbot/pkg/frame"
	"github.com/teslashibe/go-binbot/pkg/navigation"
	"github.com/teslashibe/go-binbot/pkg/patrol"
	"github.com/teslashibe/go-binbot/pkg/protocol"
)

// ErrNilRequest is returned when Decide is called without a report.
var ErrNilRequest = errors.New("decision: nil request")

// Engine turns a bot report into the next command. The only state it keeps
// between cycles is the patrol cursor.
type Engine struct {
	source    detection.Source
	nav       *navigation.Calculator
	patrol    *patrol.Sequence
	annotator *frame.Annotator
	sinks     []StatusSink
	gate      PowerGate
	config    Config
	logger    *logrus.Entry
}

// New creates an engine.
func New(nav *navigation.Calculator, seq *patrol.Sequence, opts ...Option) (*Engine, error) {
	if nav == nil {
		return nil, errors.New("decision: navigation calculator is required")
	}
	if seq == nil {
		return nil, errors.New("decision: patrol sequence is required")
	}

	e := &Engine{
		nav:    nav,
		patrol: seq,
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	e.logger = e.logger.WithField("component", "decision")
	return e, nil
}

// Decide runs one cycle: detect, steer or patrol, publish.
func (e *Engine) Decide(ctx context.Context, req *protocol.Instruction) (*protocol.Instruction, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	cycleID := ulid.Make().String()
	log := e.logger.WithFields(logrus.Fields{
		"cycle_id":   cycleID,
		"session_id": SessionID(ctx),
		"reported":   req.Status,
	})

	dets := e.detect(ctx, req, log)

	resp := &protocol.Instruction{Arms: []float64{}}
	var res *navigation.Result

	if len(dets) > 0 {
		target := dets[0]
		r, err := e.nav.Evaluate(target, req.DistanceHint())
		if err != nil {
			log.WithError(err).Warn("Unusable detection, patrolling")
			dets = nil
		} else {
			res = &r
		}
	}

	if res == nil {
		resp.Status = protocol.StatusPatrol
		resp.Treads = []protocol.Movement{e.patrol.Next()}
	} else {
		e.patrol.Reset()
		resp.Status = res.Status()
		resp.Treads = res.Movements()
		if resp.Status == protocol.StatusRetrieve && len(e.config.RetrievePose) > 0 {
			resp.Arms = append([]float64(nil), e.config.RetrievePose...)
		}
	}

	var preview []byte
	if req.HasImage() && e.annotator != nil && (len(dets) > 0 || e.config.PublishFrames) {
		p, err := e.render(req.Image, dets)
		if err != nil {
			log.WithError(err).Debug("Preview render failed")
		} else {
			preview = p
		}
	}
	if e.config.EchoAnnotatedFrame && len(dets) > 0 {
		resp.Image = preview
	}

	fields := logrus.Fields{
		"status":     resp.Status,
		"detections": len(dets),
		"angle":      resp.Treads[0].Angle,
		"distance":   resp.Treads[0].Distance,
	}
	if res != nil {
		fields["estimate_cm"] = res.Distance
	}
	log.WithFields(fields).Info("Decision")

	e.publish(ctx, cycleID, req, resp, dets, preview, log)
	return resp, nil
}

func (e *Engine) detect(ctx context.Context, req *protocol.Instruction, log *logrus.Entry) []detection.Detection {
	if !req.HasImage() || e.source == nil {
		return nil
	}

	dctx := ctx
	if e.config.DetectTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, e.config.DetectTimeout)
		defer cancel()
	}

	start := time.Now()
	dets, err := e.source.Detect(dctx, req.Image)
	if err != nil {
		log.WithError(err).Warn("Detection failed, patrolling")
		return nil
	}
	log.WithFields(logrus.Fields{
		"detections": len(dets),
		"elapsed":    time.Since(start).Round(time.Millisecond),
	}).Debug("Detection complete")
	return dets
}

func (e *Engine) render(img []byte, dets []detection.Detection) ([]byte, error) {
	if len(dets) > 0 {
		return e.annotator.Annotate(img, dets)
	}
	return e.annotator.Preview(img)
}

func (e *Engine) publish(ctx context.Context, cycleID string, req, resp *protocol.Instruction,
	dets []detection.Detection, preview []byte, log *logrus.Entry) {
	if len(e.sinks) == 0 {
		return
	}

	msg := &protocol.AppMessage{
		Powered:   e.gate == nil || e.gate.Powered(),
		Status:    resp.Status,
		Treads:    resp.Treads,
		Arms:      resp.Arms,
		CycleID:   cycleID,
		SessionID: SessionID(ctx),
		Timestamp: time.Now().UnixMilli(),
	}
	if e.config.PublishFrames {
		switch {
		case preview != nil:
			msg.Img = protocol.EncodeImage(preview)
		case req.HasImage() && e.annotator == nil:
			msg.Img = protocol.EncodeImage(req.Image)
		}
	}
	for _, d := range dets {
		msg.Detections = append(msg.Detections, protocol.AppDetection{
			Label:      d.Label,
			Confidence: d.Confidence,
			X:          d.UpperLeftX,
			Y:          d.UpperLeftY,
			Width:      d.Width,
			Height:     d.Height,
		})
	}

	for _, s := range e.sinks {
		if err := s.Publish(ctx, msg); err != nil {
			log.WithError(err).Warn("Status publish failed")
		}
	}
}
