package console_test

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/omochice/toy-socket-arena/internal/console"
	"github.com/omochice/toy-socket-arena/internal/dispatch"
	"github.com/omochice/toy-socket-arena/internal/game"
	"github.com/omochice/toy-socket-arena/internal/input"
	"github.com/omochice/toy-socket-arena/pkg/protocol"
)

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := console.NewPrinter(&buf)
	d := dispatch.New()
	p.Register(d)

	envs := []protocol.Payload{
		protocol.WorldSnapshot{
			Players:   []protocol.PlayerPosition{{ID: "1", Position: protocol.Vector3{X: 5, Y: 6, Z: 7}}},
			Weather:   &protocol.Weather{Condition: "rain", Temperature: 12.5},
			Timestamp: "2024-05-01T12:00:00Z",
		},
		protocol.ChatMessage{ID: "2", Message: "hi"},
		protocol.PlayerEvent{ID: "3", Event: "joined"},
	}
	for _, payload := range envs {
		env, err := protocol.NewEnvelope(payload)
		if err != nil {
			t.Fatalf("NewEnvelope failed: %v", err)
		}
		if _, err := d.Dispatch(env); err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
	}

	want := "World Update at 2024-05-01T12:00:00Z:\n" +
		"Weather: rain, 12.5°\n" +
		"Player 1: Position (5, 6, 7)\n" +
		"Chat Message from 2: hi\n" +
		"Player 3 has joined\n"
	if buf.String() != want {
		t.Errorf("output =\n%s\nwant\n%s", buf.String(), want)
	}
}

type fakeSession struct {
	mu      sync.Mutex
	chats   []string
	stopped bool
	world   *game.World
}

func (f *fakeSession) Player() game.Player {
	return game.Player{ID: "me", Position: protocol.Vector3{X: 10, Y: 20, Z: 30}}
}

func (f *fakeSession) World() *game.World { return f.world }

func (f *fakeSession) SendChat(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, text)
	return nil
}

func (f *fakeSession) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeSession) snapshot() ([]string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.chats...), f.stopped
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timeout waiting for condition")
}

func TestScreen_Keys(t *testing.T) {
	sim := tcell.NewSimulationScreen("")
	if err := sim.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer sim.Fini()

	keys := input.NewQueue(8)
	view := console.NewScreen(sim, keys)
	sess := &fakeSession{world: game.NewWorld("me")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go view.Run(ctx, sess)

	sim.InjectKey(tcell.KeyRune, 'd', tcell.ModNone)
	sim.InjectKey(tcell.KeyUp, 0, tcell.ModNone)

	var got []game.Direction
	waitFor(t, func() bool {
		if d, ok := keys.Poll(); ok {
			got = append(got, d)
		}
		return len(got) == 2
	})
	if got[0] != game.DirRight || got[1] != game.DirUp {
		t.Errorf("directions = %v", got)
	}

	sim.InjectKey(tcell.KeyEnter, 0, tcell.ModNone)
	for _, r := range "hey" {
		sim.InjectKey(tcell.KeyRune, r, tcell.ModNone)
	}
	sim.InjectKey(tcell.KeyEnter, 0, tcell.ModNone)

	waitFor(t, func() bool {
		chats, _ := sess.snapshot()
		return len(chats) == 1
	})
	if chats, _ := sess.snapshot(); chats[0] != "hey" {
		t.Errorf("chat = %q, want %q", chats[0], "hey")
	}
	if _, ok := keys.Poll(); ok {
		t.Error("typing a chat message should not move the player")
	}

	sim.InjectKey(tcell.KeyEscape, 0, tcell.ModNone)
	waitFor(t, func() bool {
		_, stopped := sess.snapshot()
		return stopped
	})
}

func TestScreen_DrawsFeed(t *testing.T) {
	sim := tcell.NewSimulationScreen("")
	if err := sim.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer sim.Fini()
	sim.SetSize(80, 24)

	view := console.NewScreen(sim, input.NewQueue(1))
	d := dispatch.New()
	view.Register(d)
	env, _ := protocol.NewEnvelope(protocol.PlayerEvent{ID: "7", Event: "joined"})
	d.Dispatch(env)

	sess := &fakeSession{world: game.NewWorld("me")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go view.Run(ctx, sess)

	waitFor(t, func() bool {
		cells, width, _ := sim.GetContents()
		var sb strings.Builder
		for i, c := range cells {
			if i > 0 && i%width == 0 {
				sb.WriteByte('\n')
			}
			if len(c.Runes) > 0 {
				sb.WriteRune(c.Runes[0])
			}
		}
		screen := sb.String()
		return strings.Contains(screen, "player 7 has joined") && strings.Contains(screen, "You (me): (10, 20, 30)")
	})
}
