// Package transport abstracts the byte stream between the client and the
// arena server.
package transport

import (
	"context"
	"net"
	"time"
)

// Conn is a bidirectional byte stream. Reads return whatever chunk arrived,
// with no relation to message boundaries.
type Conn interface {
	// Read returns the next chunk. The slice is valid until the next Read.
	// Returns io.EOF when the peer closed the stream and ctx.Err() when ctx
	// ended the read.
	Read(ctx context.Context) ([]byte, error)

	// Write sends data. It gives up when ctx is done.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Dialer establishes connections.
type Dialer interface {
	Dial(ctx context.Context, address string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, address string) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, address string) (Conn, error) {
	return f(ctx, address)
}

var aLongTimeAgo = time.Unix(1, 0)

// WatchRead interrupts a blocked read on nc once ctx is done. Call the
// returned stop function when the read returns.
func WatchRead(ctx context.Context, nc net.Conn) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		_ = nc.SetReadDeadline(aLongTimeAgo)
	})
}

// WatchWrite applies ctx's deadline to writes on nc and interrupts a
// blocked write once ctx is done.
func WatchWrite(ctx context.Context, nc net.Conn) (stop func() bool) {
	deadline, _ := ctx.Deadline()
	_ = nc.SetWriteDeadline(deadline)
	return context.AfterFunc(ctx, func() {
		_ = nc.SetWriteDeadline(aLongTimeAgo)
	})
}
