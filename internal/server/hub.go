package server

import (
	"slices"
	"sync"

	"github.com/omochice/toy-socket-arena/internal/transport"
	"github.com/omochice/toy-socket-arena/pkg/protocol"
)

// client is one connected player.
type client struct {
	id       protocol.PlayerID
	conn     transport.Conn
	outgoing chan []byte

	// position is guarded by the hub lock.
	position protocol.Vector3
	placed   bool
}

// hub tracks connected clients in join order. TCP and WebSocket clients
// share one hub.
type hub struct {
	mu      sync.RWMutex
	clients []*client
}

func newHub() *hub {
	return &hub{}
}

func (h *hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients = append(h.clients, c)
}

// unregister removes c and reports whether it was registered.
func (h *hub) unregister(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.clients)
	h.clients = slices.DeleteFunc(h.clients, func(other *client) bool { return other == c })
	return len(h.clients) != n
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *hub) move(c *client, pos protocol.Vector3) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.position = pos
	c.placed = true
}

// snapshotLocked returns every placed player except the recipient, in
// join order. The caller holds the hub lock.
func (h *hub) snapshotLocked(recipient *client) []protocol.PlayerPosition {
	players := make([]protocol.PlayerPosition, 0, len(h.clients))
	for _, c := range h.clients {
		if c == recipient || !c.placed {
			continue
		}
		players = append(players, protocol.PlayerPosition{ID: c.id, Position: c.position})
	}
	return players
}

// send queues a frame for every registered client without blocking. frame
// is called with the hub lock held and returns nil to skip a client. It
// reports the clients whose queue was full.
//
// Outgoing channels are closed only after unregister, so holding the lock
// here keeps sends safe.
func (h *hub) send(frame func(c *client) []byte) (dropped []*client) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		data := frame(c)
		if data == nil {
			continue
		}
		select {
		case c.outgoing <- data:
		default:
			dropped = append(dropped, c)
		}
	}
	return dropped
}
