package session_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/omochice/toy-socket-arena/internal/transport"
	"github.com/omochice/toy-socket-arena/pkg/protocol"
)

// mockConn is a mock implementation of transport.Conn for testing.
type mockConn struct {
	readCh   chan []byte
	readErr  error
	writeErr error

	// writeDelay slows every write down; onWrite sees each write as it starts.
	writeDelay time.Duration
	onWrite    func(mt protocol.MessageType)

	mu      sync.Mutex
	written [][]byte
	events  []string
	closed  bool
}

func newMockConn() *mockConn {
	return &mockConn{readCh: make(chan []byte, 10)}
}

func (m *mockConn) Read(ctx context.Context) ([]byte, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data, ok := <-m.readCh:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	}
}

func (m *mockConn) Write(ctx context.Context, data []byte) error {
	if m.onWrite != nil {
		env, _ := decodeFrame(data)
		m.onWrite(env.Type)
	}
	if m.writeDelay > 0 {
		select {
		case <-time.After(m.writeDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("write on closed conn")
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	m.written = append(m.written, copied)

	env, err := decodeFrame(copied)
	if err != nil {
		m.events = append(m.events, "write:invalid")
	} else {
		m.events = append(m.events, "write:"+env.Type.String())
	}
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.events = append(m.events, "close")
	return nil
}

func (m *mockConn) RemoteAddr() string {
	return "mock:0"
}

func (m *mockConn) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

// Envelopes returns every written envelope of type mt.
func (m *mockConn) Envelopes(t *testing.T, mt protocol.MessageType) []protocol.Envelope {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []protocol.Envelope
	for _, data := range m.written {
		env, err := decodeFrame(data)
		if err != nil {
			t.Fatalf("client wrote an invalid frame %q: %v", data, err)
		}
		if env.Type == mt {
			out = append(out, env)
		}
	}
	return out
}

func (m *mockConn) dialer() transport.Dialer {
	return transport.DialerFunc(func(ctx context.Context, address string) (transport.Conn, error) {
		return m, nil
	})
}

// decodeFrame checks that data is exactly one delimited envelope.
func decodeFrame(data []byte) (protocol.Envelope, error) {
	if len(data) == 0 || data[len(data)-1] != 0 {
		return protocol.Envelope{}, errors.New("missing delimiter")
	}
	body := data[:len(data)-1]
	if bytes.IndexByte(body, 0) >= 0 {
		return protocol.Envelope{}, errors.New("more than one frame")
	}
	return protocol.Decode(body)
}

// Compile-time check that mockConn implements transport.Conn
var _ transport.Conn = (*mockConn)(nil)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timeout waiting for condition")
}
