package console

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/omochice/toy-socket-arena/internal/dispatch"
	"github.com/omochice/toy-socket-arena/internal/game"
	"github.com/omochice/toy-socket-arena/internal/input"
	"github.com/omochice/toy-socket-arena/pkg/protocol"
)

const (
	maxFeedLines = 8
	drawInterval = time.Second / 30
)

// Session is what the screen needs from a running session.
type Session interface {
	Player() game.Player
	World() *game.World
	SendChat(text string) error
	Stop()
}

// Screen is a full-terminal view. It turns WASD and arrow keys into
// movement commands, Enter opens a chat prompt and Esc or Ctrl+C ends the
// session.
type Screen struct {
	screen tcell.Screen
	keys   *input.Queue

	mu        sync.Mutex
	feed      []string
	composing bool
	draft     []rune
}

// NewScreen wraps an initialized tcell screen. Movement keys go to keys.
func NewScreen(screen tcell.Screen, keys *input.Queue) *Screen {
	return &Screen{screen: screen, keys: keys}
}

// Register subscribes the chat and event feed to d.
func (v *Screen) Register(d *dispatch.Dispatcher) {
	d.OnChat(func(m protocol.ChatMessage) {
		v.addFeed(fmt.Sprintf("<%s> %s", m.ID, m.Message))
	})
	d.OnPlayerEvent(func(e protocol.PlayerEvent) {
		v.addFeed(fmt.Sprintf("* player %s has %s", e.ID, e.Event))
	})
}

func (v *Screen) addFeed(line string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.feed = append(v.feed, line)
	if len(v.feed) > maxFeedLines {
		v.feed = v.feed[len(v.feed)-maxFeedLines:]
	}
}

// Run handles keys and redraws until ctx is done. Quitting from the
// keyboard calls sess.Stop.
func (v *Screen) Run(ctx context.Context, sess Session) {
	events := make(chan tcell.Event, 16)
	quit := make(chan struct{})
	go v.screen.ChannelEvents(events, quit)
	defer close(quit)

	ticker := time.NewTicker(drawInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				v.handleKey(ev, sess)
			case *tcell.EventResize:
				v.screen.Sync()
			}
		case <-ticker.C:
			v.draw(sess)
		}
	}
}

func (v *Screen) handleKey(ev *tcell.EventKey, sess Session) {
	v.mu.Lock()
	composing := v.composing
	v.mu.Unlock()

	if composing {
		v.handleComposeKey(ev, sess)
		return
	}

	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		sess.Stop()
	case tcell.KeyEnter:
		v.mu.Lock()
		v.composing = true
		v.draft = v.draft[:0]
		v.mu.Unlock()
	case tcell.KeyUp:
		v.keys.Push(game.DirUp)
	case tcell.KeyDown:
		v.keys.Push(game.DirDown)
	case tcell.KeyLeft:
		v.keys.Push(game.DirLeft)
	case tcell.KeyRight:
		v.keys.Push(game.DirRight)
	case tcell.KeyRune:
		v.keys.PushKey(ev.Rune())
	}
}

func (v *Screen) handleComposeKey(ev *tcell.EventKey, sess Session) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch ev.Key() {
	case tcell.KeyEscape:
		v.composing = false
	case tcell.KeyEnter:
		v.composing = false
		if text := string(v.draft); text != "" {
			if err := sess.SendChat(text); err != nil {
				v.feed = append(v.feed, "! chat not sent: "+err.Error())
			}
		}
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if len(v.draft) > 0 {
			v.draft = v.draft[:len(v.draft)-1]
		}
	case tcell.KeyRune:
		v.draft = append(v.draft, ev.Rune())
	}
}

func (v *Screen) draw(sess Session) {
	v.screen.Clear()

	me := sess.Player()
	view := sess.World().View()

	row := 0
	v.text(0, row, tcell.StyleDefault, "WASD/arrows move, Enter chat, Esc quit")
	row++
	v.text(0, row, tcell.StyleDefault.Foreground(tcell.ColorGreen),
		fmt.Sprintf("You (%s): (%g, %g, %g)", me.ID, me.Position.X, me.Position.Y, me.Position.Z))
	row++
	if view.Weather != nil {
		v.text(0, row, tcell.StyleDefault, fmt.Sprintf("Weather: %s, %g°", view.Weather.Condition, view.Weather.Temperature))
		row++
	}
	v.text(0, row, tcell.StyleDefault, fmt.Sprintf("World update #%d at %s", view.Updates, view.Timestamp))
	row++
	for _, p := range view.Players {
		v.text(2, row, tcell.StyleDefault.Foreground(tcell.ColorBlue),
			fmt.Sprintf("Player %s: (%g, %g, %g)", p.ID, p.Position.X, p.Position.Y, p.Position.Z))
		row++
	}
	row++

	v.mu.Lock()
	for _, line := range v.feed {
		v.text(0, row, tcell.StyleDefault, line)
		row++
	}
	if v.composing {
		v.text(0, row, tcell.StyleDefault.Bold(true), "say: "+string(v.draft))
	}
	v.mu.Unlock()

	v.screen.Show()
}

func (v *Screen) text(x, y int, style tcell.Style, s string) {
	for _, r := range s {
		v.screen.SetContent(x, y, r, nil, style)
		x++
	}
}
