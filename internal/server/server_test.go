package server_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/omochice/toy-socket-arena/internal/config"
	"github.com/omochice/toy-socket-arena/internal/framing"
	"github.com/omochice/toy-socket-arena/internal/game"
	"github.com/omochice/toy-socket-arena/internal/input"
	"github.com/omochice/toy-socket-arena/internal/server"
	"github.com/omochice/toy-socket-arena/internal/session"
	"github.com/omochice/toy-socket-arena/internal/transport"
	"github.com/omochice/toy-socket-arena/internal/transport/tcp"
	"github.com/omochice/toy-socket-arena/internal/transport/ws"
	"github.com/omochice/toy-socket-arena/pkg/protocol"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func startServer(t *testing.T) *server.Server {
	t.Helper()
	srv := server.New(config.Server{
		Address:      "127.0.0.1:0",
		TickInterval: 20 * time.Millisecond,
		Weather:      "sunny",
		Temperature:  25,
	}, server.WithClock(func() time.Time { return fixedNow }))
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()
	t.Cleanup(func() {
		srv.Stop()
		select {
		case err := <-done:
			if !errors.Is(err, server.ErrServerClosed) {
				t.Errorf("Start() error = %v, want ErrServerClosed", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("server did not stop in time")
		}
	})
	return srv
}

// peer is a test client reading envelopes off a transport.Conn.
type peer struct {
	t      *testing.T
	conn   transport.Conn
	framer *framing.Framer
	queue  []protocol.Envelope
}

func dialTCP(t *testing.T, addr string) *peer {
	t.Helper()
	conn, err := tcp.Dialer{Timeout: time.Second}.Dial(context.Background(), addr)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &peer{t: t, conn: conn, framer: framing.NewFramer()}
}

func dialWS(t *testing.T, addr string) *peer {
	t.Helper()
	conn, err := ws.Dialer{Timeout: time.Second}.Dial(context.Background(), "ws://"+addr+"/")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &peer{t: t, conn: conn, framer: framing.NewFramer()}
}

func (p *peer) send(payload protocol.Payload) {
	p.t.Helper()
	env, err := protocol.NewEnvelope(payload)
	if err != nil {
		p.t.Fatalf("NewEnvelope failed: %v", err)
	}
	data, err := env.Encode()
	if err != nil {
		p.t.Fatalf("Encode failed: %v", err)
	}
	framed, err := framing.Frame(data)
	if err != nil {
		p.t.Fatalf("Frame failed: %v", err)
	}
	if err := p.conn.Write(context.Background(), framed); err != nil {
		p.t.Fatalf("Write failed: %v", err)
	}
}

// await reads until an envelope matches or the deadline passes.
func (p *peer) await(match func(protocol.Envelope) bool) protocol.Envelope {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for {
		for len(p.queue) > 0 {
			env := p.queue[0]
			p.queue = p.queue[1:]
			if match(env) {
				return env
			}
		}
		chunk, err := p.conn.Read(ctx)
		if err != nil {
			p.t.Fatalf("read while waiting for envelope: %v", err)
		}
		for _, frame := range p.framer.Feed(chunk) {
			env, err := protocol.Decode(frame)
			if err != nil {
				p.t.Fatalf("server sent an invalid frame %q: %v", frame, err)
			}
			p.queue = append(p.queue, env)
		}
	}
}

func isType(mt protocol.MessageType) func(protocol.Envelope) bool {
	return func(env protocol.Envelope) bool { return env.Type == mt }
}

func worldWith(t *testing.T, pos protocol.Vector3) func(protocol.Envelope) bool {
	return func(env protocol.Envelope) bool {
		if env.Type != protocol.MessageTypeWorldState {
			return false
		}
		snap, err := protocol.DecodePayload[protocol.WorldSnapshot](env)
		if err != nil {
			t.Fatalf("DecodePayload failed: %v", err)
		}
		for _, p := range snap.Players {
			if p.Position == pos {
				return true
			}
		}
		return false
	}
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

func TestServer_WorldState(t *testing.T) {
	srv := startServer(t)

	a := dialTCP(t, srv.Addr())
	a.send(protocol.PositionUpdate{X: 1, Y: 2, Z: 3})
	b := dialTCP(t, srv.Addr())
	b.send(protocol.PositionUpdate{X: 4, Y: 5, Z: 6})

	waitFor(t, func() bool { return srv.ClientCount() == 2 })

	env := b.await(worldWith(t, protocol.Vector3{X: 1, Y: 2, Z: 3}))
	snap, err := protocol.DecodePayload[protocol.WorldSnapshot](env)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if len(snap.Players) != 1 {
		t.Errorf("players = %+v, want only the other player", snap.Players)
	}
	if snap.Weather == nil || snap.Weather.Condition != "sunny" || snap.Weather.Temperature != 25 {
		t.Errorf("weather = %+v", snap.Weather)
	}
	got, err := snap.Timestamp.Time()
	if err != nil {
		t.Fatalf("Timestamp.Time() error = %v", err)
	}
	if !got.Equal(fixedNow) {
		t.Errorf("timestamp = %v, want %v", got, fixedNow)
	}

	a.await(worldWith(t, protocol.Vector3{X: 4, Y: 5, Z: 6}))
}

func TestServer_ChatRelay(t *testing.T) {
	srv := startServer(t)

	a := dialTCP(t, srv.Addr())
	a.send(protocol.PositionUpdate{})
	waitFor(t, func() bool { return srv.ClientCount() == 1 })
	b := dialTCP(t, srv.Addr())
	b.send(protocol.PositionUpdate{})

	// a is told about its own join first, then about b.
	a.await(isType(protocol.MessageTypePlayerEvent))
	joined := a.await(isType(protocol.MessageTypePlayerEvent))
	ev, err := protocol.DecodePayload[protocol.PlayerEvent](joined)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if ev.Event != server.EventJoined {
		t.Fatalf("event = %q, want %q", ev.Event, server.EventJoined)
	}

	b.send(protocol.ChatMessage{ID: "spoofed", Message: "hello"})

	for _, p := range []*peer{a, b} {
		env := p.await(isType(protocol.MessageTypeChat))
		msg, err := protocol.DecodePayload[protocol.ChatMessage](env)
		if err != nil {
			t.Fatalf("DecodePayload failed: %v", err)
		}
		if msg.Message != "hello" {
			t.Errorf("message = %q, want %q", msg.Message, "hello")
		}
		if msg.ID != ev.ID {
			t.Errorf("chat id = %q, want the sender's id %q", msg.ID, ev.ID)
		}
	}
}

func TestServer_ExitRemovesPlayer(t *testing.T) {
	srv := startServer(t)

	a := dialTCP(t, srv.Addr())
	a.send(protocol.PositionUpdate{})
	b := dialTCP(t, srv.Addr())
	b.send(protocol.PositionUpdate{})
	waitFor(t, func() bool { return srv.ClientCount() == 2 })

	b.send(protocol.ExitNotice{X: 9, Y: 9, Z: 9})

	env := a.await(func(env protocol.Envelope) bool {
		if env.Type != protocol.MessageTypePlayerEvent {
			return false
		}
		ev, err := protocol.DecodePayload[protocol.PlayerEvent](env)
		return err == nil && ev.Event == server.EventLeft
	})
	if env.Type != protocol.MessageTypePlayerEvent {
		t.Fatalf("type = %s", env.Type)
	}
	waitFor(t, func() bool { return srv.ClientCount() == 1 })
}

func TestServer_IgnoresGarbage(t *testing.T) {
	srv := startServer(t)

	a := dialTCP(t, srv.Addr())
	if err := a.conn.Write(context.Background(), []byte("{not json\x00{\"type\":\"world_state\",\"payload\":{}}\x00")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	a.send(protocol.PositionUpdate{X: 7})
	b := dialTCP(t, srv.Addr())
	b.send(protocol.PositionUpdate{})

	b.await(worldWith(t, protocol.Vector3{X: 7}))
}

func TestServer_WebSocketAndTCPShareWorld(t *testing.T) {
	srv := startServer(t)

	w := dialWS(t, srv.Addr())
	w.send(protocol.PositionUpdate{X: 1})
	c := dialTCP(t, srv.Addr())
	c.send(protocol.PositionUpdate{X: 2})

	w.await(worldWith(t, protocol.Vector3{X: 2}))
	c.await(worldWith(t, protocol.Vector3{X: 1}))
}

func TestServer_StopClosesClients(t *testing.T) {
	srv := server.New(config.Server{Address: "127.0.0.1:0", TickInterval: time.Hour})
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	go srv.Start()

	a := dialTCP(t, srv.Addr())
	a.send(protocol.PositionUpdate{})
	waitFor(t, func() bool { return srv.ClientCount() == 1 })

	srv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		_, err := a.conn.Read(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			t.Fatal("connection still open after Stop")
		}
		break
	}
	if n := srv.ClientCount(); n != 0 {
		t.Errorf("ClientCount() = %d after Stop, want 0", n)
	}
}

func TestServer_SessionEndToEnd(t *testing.T) {
	srv := startServer(t)

	observer := dialTCP(t, srv.Addr())
	observer.send(protocol.PositionUpdate{X: -1, Y: -1, Z: -1})
	waitFor(t, func() bool { return srv.ClientCount() == 1 })

	keys := input.NewQueue(4)
	keys.Push(game.DirRight)

	cfg := session.DefaultConfig()
	cfg.Address = srv.Addr()
	cfg.PlayerID = "42"
	cfg.InputInterval = 5 * time.Millisecond
	cfg.SendInterval = 10 * time.Millisecond
	cfg.SessionDuration = 400 * time.Millisecond
	sess := session.New(cfg, session.WithInput(keys))

	done := make(chan error, 1)
	go func() { done <- sess.Run(context.Background(), tcp.Dialer{Timeout: time.Second}) }()

	observer.await(worldWith(t, protocol.Vector3{X: 11, Y: 20, Z: 30}))

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("session did not end")
	}

	observer.await(func(env protocol.Envelope) bool {
		if env.Type != protocol.MessageTypePlayerEvent {
			return false
		}
		ev, err := protocol.DecodePayload[protocol.PlayerEvent](env)
		return err == nil && ev.Event == server.EventLeft
	})

	view := sess.World().View()
	if view.Updates == 0 {
		t.Fatal("session never received a world_state")
	}
	found := false
	for _, p := range view.Players {
		if p.Position == (protocol.Vector3{X: -1, Y: -1, Z: -1}) {
			found = true
		}
	}
	if !found {
		t.Errorf("world players = %+v, want the observer", view.Players)
	}
	if got := sess.Player().Position; got != (protocol.Vector3{X: 11, Y: 20, Z: 30}) {
		t.Errorf("final position = %+v", got)
	}
}
