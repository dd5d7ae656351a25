// Package server is a sandbox arena server. It speaks the same wire
// protocol as the client over TCP and WebSocket on a single port, relays
// chat, announces joins and leaves, and broadcasts the world every tick.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omochice/toy-socket-arena/internal/config"
	"github.com/omochice/toy-socket-arena/internal/framing"
	"github.com/omochice/toy-socket-arena/pkg/protocol"
)

const (
	outgoingBuffer = 32
	writeTimeout   = 2 * time.Second
)

// Player events.
const (
	EventJoined = "joined"
	EventLeft   = "left"
)

// ErrServerClosed is returned by Start after Stop.
var ErrServerClosed = errors.New("server: closed")

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithClock replaces the clock used for world_state timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// Server accepts TCP and WebSocket clients on one port.
type Server struct {
	cfg config.Server
	log *zap.SugaredLogger
	now func() time.Time
	hub *hub

	mu       sync.Mutex
	listener net.Listener

	// ctx is cancelled by Stop.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server. Call Start to listen.
func New(cfg config.Server, opts ...Option) *Server {
	s := &Server{
		cfg: cfg,
		log: zap.NewNop().Sugar(),
		now: time.Now,
		hub: newHub(),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.log.Infow("server listening", "addr", listener.Addr().String(), "tick", s.cfg.TickInterval)
	return nil
}

// Start listens unless Listen was called already, then serves until Stop.
// It always returns a non-nil error, ErrServerClosed after Stop.
func (s *Server) Start() error {
	s.mu.Lock()
	listening := s.listener != nil
	s.mu.Unlock()
	if !listening {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.wg.Add(1)
	go s.tickLoop()

	s.acceptConnections()
	return ErrServerClosed
}

// Stop closes the listener and every client connection and waits for all
// goroutines to finish.
func (s *Server) Stop() {
	s.cancel()
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	return s.hub.count()
}

func (s *Server) acceptConnections() {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warnw("failed to accept connection", "error", err)
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(nc net.Conn) {
	defer s.wg.Done()

	stop := context.AfterFunc(s.ctx, func() { _ = nc.Close() })
	defer stop()

	conn, proto, err := accept(nc)
	if err != nil {
		if s.ctx.Err() == nil && !errors.Is(err, io.EOF) {
			s.log.Warnw("failed to identify client protocol", "remote", nc.RemoteAddr().String(), "error", err)
		}
		_ = nc.Close()
		return
	}

	c := &client{
		id:       protocol.PlayerID(uuid.NewString()),
		conn:     conn,
		outgoing: make(chan []byte, outgoingBuffer),
	}
	log := s.log.With("player", c.id, "protocol", proto, "remote", conn.RemoteAddr())

	s.hub.register(c)
	log.Infow("player joined")
	s.broadcast(protocol.PlayerEvent{ID: c.id, Event: EventJoined})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(c, log)
	}()

	s.readLoop(c, log)

	s.hub.unregister(c)
	close(c.outgoing)
	<-writerDone
	_ = conn.Close()

	log.Infow("player left")
	s.broadcast(protocol.PlayerEvent{ID: c.id, Event: EventLeft})
}

// readLoop handles inbound frames until the client leaves.
func (s *Server) readLoop(c *client, log *zap.SugaredLogger) {
	framer := framing.NewFramer()
	for {
		chunk, err := c.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil && !errors.Is(err, io.EOF) {
				log.Debugw("read failed", "error", err)
			}
			return
		}
		for _, frame := range framer.Feed(chunk) {
			if done := s.handleFrame(c, frame, log); done {
				return
			}
		}
	}
}

// handleFrame applies one envelope and reports whether the client said goodbye.
func (s *Server) handleFrame(c *client, frame []byte, log *zap.SugaredLogger) bool {
	env, err := protocol.Decode(frame)
	if err != nil {
		log.Warnw("frame dropped", "error", err)
		return false
	}

	switch env.Type {
	case protocol.MessageTypePosition:
		pos, err := protocol.DecodePayload[protocol.PositionUpdate](env)
		if err != nil {
			log.Warnw("frame dropped", "error", err)
			return false
		}
		s.hub.move(c, protocol.Vector3(pos))
	case protocol.MessageTypeChat:
		msg, err := protocol.DecodePayload[protocol.ChatMessage](env)
		if err != nil {
			log.Warnw("frame dropped", "error", err)
			return false
		}
		log.Infow("chat", "message", msg.Message)
		s.broadcast(protocol.ChatMessage{ID: c.id, Message: msg.Message})
	case protocol.MessageTypeExit:
		exit, err := protocol.DecodePayload[protocol.ExitNotice](env)
		if err != nil {
			log.Warnw("malformed exit notice", "error", err)
			return true
		}
		s.hub.move(c, protocol.Vector3{X: exit.X, Y: exit.Y, Z: exit.Z})
		log.Infow("exit notice", "x", exit.X, "y", exit.Y, "z", exit.Z)
		return true
	default:
		log.Warnw("frame dropped", "error", "not a client message", "type", env.Type)
	}
	return false
}

func (s *Server) writeLoop(c *client, log *zap.SugaredLogger) {
	failed := false
	for data := range c.outgoing {
		if failed {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.conn.Write(ctx, data)
		cancel()
		if err != nil {
			log.Debugw("write failed", "error", err)
			failed = true
			_ = c.conn.Close()
		}
	}
}

// broadcast frames p once and queues it for every client.
func (s *Server) broadcast(p protocol.Payload) {
	data, err := frame(p)
	if err != nil {
		s.log.Errorw("failed to encode broadcast", "type", p.Tag(), "error", err)
		return
	}
	dropped := s.hub.send(func(*client) []byte { return data })
	for _, c := range dropped {
		s.log.Debugw("client queue full", "player", c.id, "type", p.Tag())
	}
}

func (s *Server) tickLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.broadcastWorld()
		}
	}
}

// broadcastWorld sends each client the other placed players.
func (s *Server) broadcastWorld() {
	weather := &protocol.Weather{Condition: s.cfg.Weather, Temperature: s.cfg.Temperature}
	stamp := protocol.NewTimestamp(s.now())

	dropped := s.hub.send(func(c *client) []byte {
		data, err := frame(protocol.WorldSnapshot{
			Players:   s.hub.snapshotLocked(c),
			Weather:   weather,
			Timestamp: stamp,
		})
		if err != nil {
			s.log.Errorw("failed to encode world state", "error", err)
			return nil
		}
		return data
	})
	for _, c := range dropped {
		s.log.Debugw("client queue full", "player", c.id, "type", protocol.MessageTypeWorldState)
	}
}

func frame(p protocol.Payload) ([]byte, error) {
	env, err := protocol.NewEnvelope(p)
	if err != nil {
		return nil, err
	}
	data, err := env.Encode()
	if err != nil {
		return nil, err
	}
	return framing.Frame(data)
}
