// Package power holds the operator's on/off switch for the bot
package power

import (
	"sync"
	"sync/atomic"
)

// Switch is the shared power gate. The app channel writes it and the bot
// channel reads it. The zero value is unpowered.
type Switch struct {
	on atomic.Bool

	mu        sync.Mutex
	listeners []func(bool)
}

// NewSwitch creates a switch in the given state
func NewSwitch(powered bool) *Switch {
	s := &Switch{}
	s.on.Store(powered)
	return s
}

// Powered reports whether the bot may be served
func (s *Switch) Powered() bool {
	return s.on.Load()
}

// Set changes the state and reports whether it changed. Listeners run on
// changes only.
func (s *Switch) Set(powered bool) bool {
	if s.on.Swap(powered) == powered {
		return false
	}

	s.mu.Lock()
	listeners := append(([]func(bool))(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(powered)
	}
	return true
}

// OnChange registers fn to run after every state change
func (s *Switch) OnChange(fn func(powered bool)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}
