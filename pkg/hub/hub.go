package hub

import (
	"context"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Hub tracks connected clients and broadcasts to all of them. Run owns the
// client set; everything else talks to it through channels.
type Hub struct {
	name   string
	logger *logrus.Entry

	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	count   atomic.Int32
	running atomic.Bool

	// Sent to new clients on connect so they start with current state
	lastMu sync.RWMutex
	last   *Message
	replay bool

	handlerMu sync.RWMutex
	handler   Handler
}

// New creates a hub. With replay set, the latest broadcast is sent to each
// new client.
func New(name string, replay bool, logger *logrus.Entry) *Hub {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Hub{
		name:       name,
		logger:     logger.WithFields(logrus.Fields{"component": "hub", "hub": name}),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		replay:     replay,
	}
}

// Run is the hub loop. It returns when ctx is cancelled, after closing every
// client.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		for c := range h.clients {
			h.drop(c)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = true
			h.count.Store(int32(len(h.clients)))
			if h.replay {
				if m := h.Last(); m != nil {
					c.send <- *m
				}
			}
			h.logger.WithField("clients", len(h.clients)).Debug("Client connected")

		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
			}
			h.logger.WithField("clients", len(h.clients)).Debug("Client disconnected")

		case m := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- m:
				default:
					h.drop(c)
					h.logger.Warn("Dropped slow client")
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int32(len(h.clients)))
}

// Broadcast queues msg for every client. Drops msg when the queue is full.
func (h *Hub) Broadcast(msg Message) {
	if h.replay {
		h.lastMu.Lock()
		h.last = &msg
		h.lastMu.Unlock()
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Broadcast queue full, dropping message")
	}
}

// BroadcastJSON encodes v and broadcasts it as a text frame
func (h *Hub) BroadcastJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// BroadcastBinary broadcasts a binary frame
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(NewBinaryMessage(data))
}

// Last returns the latest broadcast when replay is on
func (h *Hub) Last() *Message {
	h.lastMu.RLock()
	defer h.lastMu.RUnlock()
	return h.last
}

// OnMessage sets the handler for frames clients send
func (h *Hub) OnMessage(fn Handler) {
	h.handlerMu.Lock()
	h.handler = fn
	h.handlerMu.Unlock()
}

func (h *Hub) dispatch(data []byte) {
	h.handlerMu.RLock()
	fn := h.handler
	h.handlerMu.RUnlock()
	if fn != nil {
		fn(data)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// IsRunning reports whether Run is active
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Name returns the hub name
func (h *Hub) Name() string {
	return h.name
}
