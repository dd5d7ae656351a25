// Package input delivers movement commands to the session's input loop.
package input

import (
	"github.com/omochice/toy-socket-arena/internal/game"
)

// Source is polled by the input loop. Poll must not block; it returns false
// when no command is pending.
type Source interface {
	Poll() (game.Direction, bool)
}

// Queue is a Source fed by Push. Keyboard readers push from their own
// goroutine; the input loop drains one command per tick.
type Queue struct {
	ch chan game.Direction
}

// NewQueue creates a Queue holding up to size pending commands.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{ch: make(chan game.Direction, size)}
}

// Push adds a command. It reports false when the queue is full and the
// command was dropped.
func (q *Queue) Push(d game.Direction) bool {
	select {
	case q.ch <- d:
		return true
	default:
		return false
	}
}

// PushKey pushes the direction bound to key, ignoring unbound keys.
func (q *Queue) PushKey(key rune) bool {
	d := game.DirectionForKey(key)
	if d == game.DirNone {
		return false
	}
	return q.Push(d)
}

// Poll implements Source.
func (q *Queue) Poll() (game.Direction, bool) {
	select {
	case d := <-q.ch:
		return d, true
	default:
		return game.DirNone, false
	}
}
