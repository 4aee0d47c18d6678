// Package patrol provides the search pattern the bot follows when it sees no waste
package patrol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/teslashibe/go-binbot/pkg/protocol"
)

// ErrEmptyScript is returned when a sequence has no steps
var ErrEmptyScript = errors.New("patrol: empty script")

// DefaultScript looks left, looks right, recentres, then advances 50 cm
func DefaultScript() []protocol.Movement {
	return []protocol.Movement{
		{Angle: -45, Distance: 0},
		{Angle: 90, Distance: 0},
		{Angle: -45, Distance: 0},
		{Angle: 0, Distance: 50},
	}
}

// Sequence is a cyclic cursor over a fixed script. Safe for concurrent use.
type Sequence struct {
	mu     sync.Mutex
	script []protocol.Movement
	pos    int
}

// New creates a sequence positioned at the first step
func New(script []protocol.Movement) (*Sequence, error) {
	if len(script) == 0 {
		return nil, ErrEmptyScript
	}
	for i, m := range script {
		if m.IsInRange() {
			return nil, fmt.Errorf("patrol: step %d is the in-range signal {0, 1}", i)
		}
	}
	s := make([]protocol.Movement, len(script))
	copy(s, script)
	return &Sequence{script: s}, nil
}

// Next returns the current step and advances, wrapping at the end
func (s *Sequence) Next() protocol.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.script[s.pos]
	s.pos = (s.pos + 1) % len(s.script)
	return m
}

// Reset returns the cursor to the first step
func (s *Sequence) Reset() {
	s.mu.Lock()
	s.pos = 0
	s.mu.Unlock()
}

// Position returns the index of the step Next will return
func (s *Sequence) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Len returns the number of steps
func (s *Sequence) Len() int {
	return len(s.script)
}

// Script returns a copy of the steps
func (s *Sequence) Script() []protocol.Movement {
	out := make([]protocol.Movement, len(s.script))
	copy(out, s.script)
	return out
}

// ParseScript parses "angle:distance" steps separated by commas,
// e.g. "-45:0,90:0,-45:0,0:50"
func ParseScript(s string) ([]protocol.Movement, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyScript
	}

	var script []protocol.Movement
	for i, step := range strings.Split(s, ",") {
		a, d, ok := strings.Cut(strings.TrimSpace(step), ":")
		if !ok {
			return nil, fmt.Errorf("patrol: step %d %q: want angle:distance", i, step)
		}
		angle, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
		if err != nil {
			return nil, fmt.Errorf("patrol: step %d angle: %w", i, err)
		}
		dist, err := strconv.ParseFloat(strings.TrimSpace(d), 64)
		if err != nil {
			return nil, fmt.Errorf("patrol: step %d distance: %w", i, err)
		}
		script = append(script, protocol.Movement{Angle: angle, Distance: dist})
	}
	return script, nil
}
