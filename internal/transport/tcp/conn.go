// Package tcp provides the plain TCP transport.
package tcp

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/omochice/toy-socket-arena/internal/transport"
)

const readBufferSize = 4096

// Conn adapts net.Conn to transport.Conn.
type Conn struct {
	conn net.Conn
	buf  []byte
}

// NewConn wraps a net.Conn.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, buf: make([]byte, readBufferSize)}
}

// Read implements transport.Conn.
// Reads available bytes from the TCP connection.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := transport.WatchRead(ctx, c.conn)
	defer stop()

	n, err := c.conn.Read(c.buf)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return c.buf[:n], nil
}

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := transport.WatchWrite(ctx, c.conn)
	defer stop()

	if _, err := c.conn.Write(data); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Dialer dials plain TCP connections.
type Dialer struct {
	Timeout time.Duration
}

// Dial implements transport.Dialer.
func (d Dialer) Dial(ctx context.Context, address string) (transport.Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	return NewConn(conn), nil
}
