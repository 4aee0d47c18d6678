package botlink

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-binbot/pkg/protocol"
)

// ErrMessageTooLarge is returned when a message exceeds MaxMessageBytes.
var ErrMessageTooLarge = errors.New("botlink: message too large")

// Session is one bot connection. Messages are JSON terminated by a newline
// or by the bot closing its write side.
type Session struct {
	id     string
	conn   net.Conn
	reader *bufio.Reader
	config Config
}

func newSession(conn net.Conn, cfg Config) *Session {
	return &Session{
		id:     uuid.NewString(),
		conn:   conn,
		reader: bufio.NewReaderSize(conn, 64*1024),
		config: cfg,
	}
}

// ID returns the session UUID.
func (s *Session) ID() string { return s.id }

// RemoteAddr returns the bot's address.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// ReceiveRaw reads one message without decoding it.
func (s *Session) ReceiveRaw() ([]byte, error) {
	if s.config.ReadTimeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
	}
	return readMessage(s.reader, s.config.MaxMessageBytes)
}

// Receive reads and decodes one instruction.
func (s *Session) Receive() (*protocol.Instruction, error) {
	data, err := s.ReceiveRaw()
	if err != nil {
		return nil, err
	}
	return protocol.Decode(data)
}

// SendRaw writes one message followed by a newline.
func (s *Session) SendRaw(data []byte) error {
	if s.config.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	msg := make([]byte, 0, len(data)+1)
	msg = append(msg, data...)
	msg = append(msg, '\n')
	if _, err := s.conn.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Send encodes and writes one instruction.
func (s *Session) Send(inst *protocol.Instruction) error {
	data, err := protocol.Encode(inst)
	if err != nil {
		return err
	}
	return s.SendRaw(data)
}

// Close closes the connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// readMessage returns the next non-empty line. A final line without a
// newline is returned when the peer closes. limit <= 0 disables the size check.
func readMessage(r *bufio.Reader, limit int) ([]byte, error) {
	for {
		var buf []byte
		for {
			chunk, err := r.ReadSlice('\n')
			buf = append(buf, chunk...)
			if limit > 0 && len(bytes.TrimRight(buf, "\r\n")) > limit {
				return nil, fmt.Errorf("%w: over %d bytes", ErrMessageTooLarge, limit)
			}
			if err == nil {
				break
			}
			if errors.Is(err, bufio.ErrBufferFull) {
				continue
			}
			if errors.Is(err, io.EOF) && len(bytes.TrimSpace(buf)) > 0 {
				return bytes.TrimSpace(buf), nil
			}
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read: %w", err)
		}

		if line := bytes.TrimSpace(buf); len(line) > 0 {
			return line, nil
		}
	}
}
