// Package hub fans messages out to websocket clients over channels.
package hub

// MessageType indicates the websocket frame type
type MessageType int

const (
	// JSONMessage is sent as a text frame
	JSONMessage MessageType = iota
	// BinaryMessage is sent as a binary frame (JPEG previews)
	BinaryMessage
)

// Message is one frame queued for every client
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps binary data
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// Handler receives text frames sent by a client
type Handler func(data []byte)
