// Package ws provides the WebSocket transport. Each WebSocket message is
// delivered as one read chunk; message boundaries carry no meaning, the
// NUL-delimited framing on top still applies.
package ws

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/toy-socket-arena/internal/transport"
)

// Conn adapts a gobwas WebSocket connection to transport.Conn.
type Conn struct {
	conn  net.Conn
	rw    io.ReadWriter
	state ws.State
}

type readWriter struct {
	io.Reader
	io.Writer
}

// NewClientConn wraps the client side of an established WebSocket. br is
// the reader returned by the dialer and may be nil.
func NewClientConn(conn net.Conn, br *bufio.Reader) *Conn {
	var rw io.ReadWriter = conn
	if br != nil {
		rw = readWriter{Reader: br, Writer: conn}
	}
	return &Conn{conn: conn, rw: rw, state: ws.StateClientSide}
}

// Upgrade performs the server side handshake on conn. r is where the
// request is read from; pass conn itself unless bytes were already peeked
// through a buffered reader.
func Upgrade(conn net.Conn, r io.Reader) (*Conn, error) {
	rw := readWriter{Reader: r, Writer: conn}
	if _, err := ws.Upgrade(rw); err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return &Conn{conn: conn, rw: rw, state: ws.StateServerSide}, nil
}

// Read implements transport.Conn. Empty messages are skipped, a close frame
// is reported as io.EOF.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := transport.WatchRead(ctx, c.conn)
	defer stop()

	for {
		data, _, err := wsutil.ReadData(c.rw, c.state)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var closed wsutil.ClosedError
			if errors.As(err, &closed) {
				return nil, io.EOF
			}
			return nil, err
		}
		if len(data) > 0 {
			return data, nil
		}
	}
}

// Write implements transport.Conn.
// Writes a text message to the WebSocket connection.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := transport.WatchWrite(ctx, c.conn)
	defer stop()

	if err := wsutil.WriteMessage(c.conn, c.state, ws.OpText, data); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = wsutil.WriteMessage(c.conn, c.state, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
	return c.conn.Close()
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Dialer dials WebSocket URLs such as ws://127.0.0.1:8080/ws.
type Dialer struct {
	Timeout time.Duration
}

// Dial implements transport.Dialer.
func (d Dialer) Dial(ctx context.Context, address string) (transport.Conn, error) {
	dialer := ws.Dialer{Timeout: d.Timeout}
	conn, br, _, err := dialer.Dial(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	return NewClientConn(conn, br), nil
}
