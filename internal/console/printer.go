// Package console renders session notifications for a human: as plain
// lines in headless mode or on a tcell screen.
package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/omochice/toy-socket-arena/internal/dispatch"
	"github.com/omochice/toy-socket-arena/pkg/protocol"
)

// Printer writes one line per notification.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Register subscribes the printer to every inbound message type.
func (p *Printer) Register(d *dispatch.Dispatcher) {
	d.OnWorldState(p.WorldState)
	d.OnChat(p.Chat)
	d.OnPlayerEvent(p.PlayerEvent)
}

// WorldState prints the snapshot header and one line per player.
func (p *Printer) WorldState(s protocol.WorldSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "World Update at %s:\n", s.Timestamp)
	if s.Weather != nil {
		fmt.Fprintf(p.w, "Weather: %s, %g°\n", s.Weather.Condition, s.Weather.Temperature)
	}
	for _, pl := range s.Players {
		fmt.Fprintf(p.w, "Player %s: Position (%g, %g, %g)\n", pl.ID, pl.Position.X, pl.Position.Y, pl.Position.Z)
	}
}

// Chat prints a chat line.
func (p *Printer) Chat(m protocol.ChatMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "Chat Message from %s: %s\n", m.ID, m.Message)
}

// PlayerEvent prints a player event line.
func (p *Printer) PlayerEvent(e protocol.PlayerEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "Player %s has %s\n", e.ID, e.Event)
}
