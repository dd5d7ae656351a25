package server

import (
	"bufio"
	"net"

	"github.com/omochice/toy-socket-arena/internal/transport"
	"github.com/omochice/toy-socket-arena/internal/transport/tcp"
	"github.com/omochice/toy-socket-arena/internal/transport/ws"
)

type protocolType int

const (
	protocolTCP protocolType = iota
	protocolWebSocket
)

func (p protocolType) String() string {
	if p == protocolWebSocket {
		return "websocket"
	}
	return "tcp"
}

// detectProtocol peeks at the first byte to tell a WebSocket handshake
// from a raw stream. A handshake starts with "GET"; an envelope starts
// with '{'. It blocks until the client sends something.
func detectProtocol(conn net.Conn) (protocolType, *bufio.Reader, error) {
	reader := bufio.NewReader(conn)
	peek, err := reader.Peek(1)
	if err != nil {
		return protocolTCP, reader, err
	}
	if peek[0] == 'G' {
		return protocolWebSocket, reader, nil
	}
	return protocolTCP, reader, nil
}

// bufferedConn keeps the peeked bytes in front of the raw stream.
type bufferedConn struct {
	net.Conn
	reader *bufio.Reader
}

func (bc *bufferedConn) Read(p []byte) (int, error) {
	return bc.reader.Read(p)
}

// accept identifies the client protocol and wraps conn accordingly.
func accept(conn net.Conn) (transport.Conn, protocolType, error) {
	proto, reader, err := detectProtocol(conn)
	if err != nil {
		return nil, proto, err
	}
	if proto == protocolWebSocket {
		wc, err := ws.Upgrade(conn, reader)
		if err != nil {
			return nil, proto, err
		}
		return wc, proto, nil
	}
	return tcp.NewConn(&bufferedConn{Conn: conn, reader: reader}), proto, nil
}
