// Package game holds the client's view of the arena: the local player it
// controls and the remote players reported by the server.
package game

import (
	"sync"

	"github.com/omochice/toy-socket-arena/pkg/protocol"
)

// Direction is a movement command.
type Direction int

const (
	DirNone Direction = iota
	DirUp
	DirDown
	DirLeft
	DirRight
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirUp:
		return "up"
	case DirDown:
		return "down"
	case DirLeft:
		return "left"
	case DirRight:
		return "right"
	default:
		return "none"
	}
}

// DirectionForKey maps WASD keys (either case) to directions.
func DirectionForKey(r rune) Direction {
	switch r {
	case 'w', 'W':
		return DirUp
	case 's', 'S':
		return DirDown
	case 'a', 'A':
		return DirLeft
	case 'd', 'D':
		return DirRight
	default:
		return DirNone
	}
}

// Player is a copy of a player's state.
type Player struct {
	ID       protocol.PlayerID
	Position protocol.Vector3
}

// Move returns p moved one step of size step in direction d. Y grows
// upwards. Moves are not clamped.
func (p Player) Move(d Direction, step float64) Player {
	switch d {
	case DirUp:
		p.Position.Y += step
	case DirDown:
		p.Position.Y -= step
	case DirLeft:
		p.Position.X -= step
	case DirRight:
		p.Position.X += step
	}
	return p
}

// LocalPlayer is the player controlled by this client. The input loop writes
// it while the position sender reads it, so every access goes through the
// mutex and readers get a copy.
type LocalPlayer struct {
	mu     sync.RWMutex
	player Player
}

// NewLocalPlayer creates the local player at its starting position.
func NewLocalPlayer(id protocol.PlayerID, start protocol.Vector3) *LocalPlayer {
	return &LocalPlayer{player: Player{ID: id, Position: start}}
}

// Snapshot returns a consistent copy of the player.
func (lp *LocalPlayer) Snapshot() Player {
	lp.mu.RLock()
	defer lp.mu.RUnlock()
	return lp.player
}

// Apply moves the player and returns the new state.
func (lp *LocalPlayer) Apply(d Direction, step float64) Player {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	lp.player = lp.player.Move(d, step)
	return lp.player
}

// PositionUpdate returns the outbound position payload for the current state.
func (lp *LocalPlayer) PositionUpdate() protocol.PositionUpdate {
	p := lp.Snapshot()
	return protocol.PositionUpdate{X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z}
}

// ExitNotice returns the outbound exit payload for the current state.
func (lp *LocalPlayer) ExitNotice() protocol.ExitNotice {
	p := lp.Snapshot()
	return protocol.ExitNotice{ID: p.ID, X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z}
}
