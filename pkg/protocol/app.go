package protocol

import "time"

// AppMessage is the status update pushed to the companion mobile app after
// every decision cycle and whenever the power state changes.
type AppMessage struct {
	Powered    bool           `json:"powered"`
	Status     Status         `json:"status,omitempty"`
	Img        string         `json:"img,omitempty"` // base64 JPEG preview
	Treads     []Movement     `json:"treads,omitempty"`
	Arms       []float64      `json:"arms,omitempty"`
	Detections []AppDetection `json:"detections,omitempty"`
	CycleID    string         `json:"cycle_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	Timestamp  int64          `json:"ts"` // Unix milliseconds
}

// AppDetection is a detected box as shown in the app, in frame pixels.
type AppDetection struct {
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"w"`
	Height     float64 `json:"h"`
}

// NewPowerMessage builds the update sent when the app toggles power
func NewPowerMessage(powered bool) *AppMessage {
	return &AppMessage{
		Powered:   powered,
		Timestamp: time.Now().UnixMilli(),
	}
}

// WithoutImage returns a shallow copy with the preview stripped, for sinks
// that only want the status.
func (m *AppMessage) WithoutImage() *AppMessage {
	cp := *m
	cp.Img = ""
	return &cp
}

// Bytes returns the JSON-encoded message
func (m *AppMessage) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseAppMessage parses an app message from bytes
func ParseAppMessage(data []byte) (*AppMessage, error) {
	var msg AppMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, &MalformedMessageError{Field: "body", Reason: "invalid app message", Err: err}
	}
	return &msg, nil
}

// PowerCommand is sent by the app to switch BinBot on or off.
type PowerCommand struct {
	Powered *bool `json:"powered"`
}

// ParsePowerCommand parses an inbound app command. The powered key is required.
func ParsePowerCommand(data []byte) (bool, error) {
	var cmd PowerCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return false, &MalformedMessageError{Field: "body", Reason: "invalid power command", Err: err}
	}
	if cmd.Powered == nil {
		return false, malformed("powered", "missing")
	}
	return *cmd.Powered, nil
}
