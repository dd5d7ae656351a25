package game

import (
	"sync"

	"github.com/omochice/toy-socket-arena/pkg/protocol"
)

// WorldView is a read-only copy of the last received snapshot.
type WorldView struct {
	Timestamp protocol.Timestamp
	Weather   *protocol.Weather
	Players   []Player
	Updates   uint64
}

// World keeps the latest world snapshot. Each snapshot replaces the previous
// one; there is no merging of partial updates.
type World struct {
	mu      sync.RWMutex
	self    protocol.PlayerID
	view    WorldView
	updates uint64
}

// NewWorld creates an empty world. Entries for self are left out of the
// remote player list.
func NewWorld(self protocol.PlayerID) *World {
	return &World{self: self}
}

// Replace installs snap as the current view.
func (w *World) Replace(snap protocol.WorldSnapshot) {
	players := make([]Player, 0, len(snap.Players))
	for _, p := range snap.Players {
		if w.self != "" && p.ID == w.self {
			continue
		}
		players = append(players, Player{ID: p.ID, Position: p.Position})
	}

	var weather *protocol.Weather
	if snap.Weather != nil {
		wc := *snap.Weather
		weather = &wc
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.updates++
	w.view = WorldView{
		Timestamp: snap.Timestamp,
		Weather:   weather,
		Players:   players,
		Updates:   w.updates,
	}
}

// View returns a copy of the current view.
func (w *World) View() WorldView {
	w.mu.RLock()
	defer w.mu.RUnlock()
	v := w.view
	v.Players = append([]Player(nil), w.view.Players...)
	if w.view.Weather != nil {
		wc := *w.view.Weather
		v.Weather = &wc
	}
	return v
}

// Remote returns the remote player with the given id.
func (w *World) Remote(id protocol.PlayerID) (Player, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, p := range w.view.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}
