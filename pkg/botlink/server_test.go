package botlink

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/teslashibe/go-binbot/pkg/decision"
	"github.com/teslashibe/go-binbot/pkg/detection"
	"github.com/teslashibe/go-binbot/pkg/navigation"
	"github.com/teslashibe/go-binbot/pkg/patrol"
	"github.com/teslashibe/go-binbot/pkg/power"
	"github.com/teslashibe/go-binbot/pkg/protocol"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ReadTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	cfg.PowerPollInterval = 10 * time.Millisecond
	return cfg
}

// startServer runs Serve in the background and stops it when the test ends
func startServer(t *testing.T, cfg Config, gate decision.PowerGate, d Decider) string {
	t.Helper()
	srv, err := Listen(cfg, gate, quietLogger())
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, d) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve() error = %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Serve() did not stop")
		}
		srv.Close()
	})
	return srv.Addr().String()
}

func newEngine(t *testing.T, src detection.Source) *decision.Engine {
	t.Helper()
	nav, _ := navigation.NewCalculator(navigation.DefaultConfig())
	seq, _ := patrol.New(patrol.DefaultScript())
	e, err := decision.New(nav, seq, decision.WithSource(src), decision.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("decision.New() error = %v", err)
	}
	return e
}

func testFrame(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 640, 480)), nil); err != nil {
		t.Fatalf("jpeg.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func exchange(t *testing.T, addr string, req *protocol.Instruction) *protocol.Instruction {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	resp, err := Exchange(ctx, addr, req)
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	return resp
}

func TestServePatrol(t *testing.T) {
	addr := startServer(t, testConfig(), nil, newEngine(t, detection.NewStatic()))

	script := patrol.DefaultScript()
	for i := 0; i < len(script); i++ {
		resp := exchange(t, addr, &protocol.Instruction{
			Status: protocol.StatusPatrol,
			Image:  testFrame(t),
			Treads: []protocol.Movement{{}},
		})
		if resp.Status != protocol.StatusPatrol {
			t.Errorf("cycle %d status = %v, want PATROL", i, resp.Status)
		}
		if resp.Treads[0] != script[i] {
			t.Errorf("cycle %d tread = %v, want %v", i, resp.Treads[0], script[i])
		}
	}
}

func TestServeRetrieve(t *testing.T) {
	target := detection.Detection{
		UpperLeftX: 300, UpperLeftY: 90, Width: 40, Height: 300,
		ParentWidth: 640, ParentHeight: 480, Confidence: 0.8,
	}
	addr := startServer(t, testConfig(), nil, newEngine(t, detection.NewStatic(target)))

	resp := exchange(t, addr, &protocol.Instruction{
		Status: protocol.StatusMove,
		Image:  testFrame(t),
		Treads: []protocol.Movement{{Angle: 0, Distance: 10}},
	})
	if resp.Status != protocol.StatusRetrieve {
		t.Fatalf("status = %v, want RETRIEVE", resp.Status)
	}
	if !resp.Treads[0].IsInRange() {
		t.Errorf("tread = %v, want in-range signal", resp.Treads[0])
	}
}

func TestServeSurvivesMalformed(t *testing.T) {
	addr := startServer(t, testConfig(), nil, newEngine(t, detection.NewStatic()))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := ExchangeRaw(ctx, addr, []byte(`{"status":"DANCE"}`)); err == nil {
		t.Error("malformed message should get no reply")
	}

	resp := exchange(t, addr, &protocol.Instruction{
		Status: protocol.StatusPatrol,
		Treads: []protocol.Movement{{}},
	})
	if resp.Status != protocol.StatusPatrol {
		t.Errorf("status = %v, want PATROL after malformed message", resp.Status)
	}
}

func TestServeSurvivesDecideError(t *testing.T) {
	var calls atomic.Int32
	d := DecideFunc(func(ctx context.Context, req *protocol.Instruction) (*protocol.Instruction, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("boom")
		}
		if decision.SessionID(ctx) == "" {
			t.Error("session ID missing from context")
		}
		return &protocol.Instruction{Status: protocol.StatusPatrol, Treads: []protocol.Movement{{Angle: 5}}}, nil
	})
	addr := startServer(t, testConfig(), nil, d)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req := &protocol.Instruction{Status: protocol.StatusPatrol, Treads: []protocol.Movement{{}}}

	if _, err := Exchange(ctx, addr, req); err == nil {
		t.Error("failed decision should close without reply")
	}
	if resp := exchange(t, addr, req); resp.Treads[0].Angle != 5 {
		t.Errorf("tread = %v, want angle 5", resp.Treads[0])
	}
}

func TestServeWaitsForPower(t *testing.T) {
	gate := power.NewSwitch(false)
	addr := startServer(t, testConfig(), gate, newEngine(t, detection.NewStatic()))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := &protocol.Instruction{Status: protocol.StatusPatrol, Treads: []protocol.Movement{{}}}

	if _, err := Exchange(ctx, addr, req); err == nil {
		t.Fatal("unpowered server should not answer")
	}

	gate.Set(true)
	if resp := exchange(t, addr, req); resp.Status != protocol.StatusPatrol {
		t.Errorf("status = %v, want PATROL once powered", resp.Status)
	}
}

func TestServeAcceptsEOFTerminatedMessage(t *testing.T) {
	addr := startServer(t, testConfig(), nil, newEngine(t, detection.NewStatic()))

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(3 * time.Second))

	if _, err := conn.Write([]byte(`{"status":"PATROL","img":"","treads":[{"angle":0,"distance":0}],"arms":[]}`)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	conn.(*net.TCPConn).CloseWrite()

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString() error = %v", err)
	}
	resp, err := protocol.Decode([]byte(line))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if resp.Status != protocol.StatusPatrol {
		t.Errorf("status = %v, want PATROL", resp.Status)
	}
}

func TestListenBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	cfg := testConfig()
	cfg.Addr = ln.Addr().String()
	if _, err := Listen(cfg, nil, quietLogger()); err == nil {
		t.Error("Listen() on a used port should fail")
	}
}

func TestReadMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		limit   int
		want    string
		wantErr error
	}{
		{"newline", "{\"a\":1}\n{\"b\":2}\n", 0, `{"a":1}`, nil},
		{"crlf", "{\"a\":1}\r\n", 0, `{"a":1}`, nil},
		{"eof terminated", `{"a":1}`, 0, `{"a":1}`, nil},
		{"skips blank lines", "\n\n{\"a\":1}\n", 0, `{"a":1}`, nil},
		{"empty", "", 0, "", io.EOF},
		{"too large", strings.Repeat("x", 100) + "\n", 10, "", ErrMessageTooLarge},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := readMessage(bufio.NewReader(strings.NewReader(tc.input)), tc.limit)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("readMessage() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("readMessage() error = %v", err)
			}
			if string(got) != tc.want {
				t.Errorf("readMessage() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestReadMessageLargerThanBuffer(t *testing.T) {
	payload := strings.Repeat("y", 100)
	r := bufio.NewReaderSize(strings.NewReader(payload+"\n"), 16)
	got, err := readMessage(r, 0)
	if err != nil {
		t.Fatalf("readMessage() error = %v", err)
	}
	if string(got) != payload {
		t.Errorf("readMessage() returned %d bytes, want %d", len(got), len(payload))
	}
}
