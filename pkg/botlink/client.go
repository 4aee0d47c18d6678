package botlink

import (
	"bufio"
	"context"
	"fmt"
	"net"

	"github.com/teslashibe/go-binbot/pkg/protocol"
)

// ExchangeRaw sends payload to the server at addr and returns its reply.
func ExchangeRaw(ctx context.Context, addr string, payload []byte) ([]byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("botlink: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("botlink: set deadline: %w", err)
		}
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	msg := append(append([]byte(nil), payload...), '\n')
	if _, err := conn.Write(msg); err != nil {
		return nil, fmt.Errorf("botlink: write: %w", err)
	}

	return readMessage(bufio.NewReader(conn), 0)
}

// Exchange plays the bot side of one cycle: send a report, read the command.
func Exchange(ctx context.Context, addr string, req *protocol.Instruction) (*protocol.Instruction, error) {
	data, err := protocol.Encode(req)
	if err != nil {
		return nil, err
	}
	reply, err := ExchangeRaw(ctx, addr, data)
	if err != nil {
		return nil, err
	}
	return protocol.Decode(reply)
}
