// Package session runs one client session: it dials the server, streams
// the local player's position, dispatches inbound messages and says goodbye
// with an exit notice when the session ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omochice/toy-socket-arena/internal/config"
	"github.com/omochice/toy-socket-arena/internal/dispatch"
	"github.com/omochice/toy-socket-arena/internal/framing"
	"github.com/omochice/toy-socket-arena/internal/game"
	"github.com/omochice/toy-socket-arena/internal/input"
	"github.com/omochice/toy-socket-arena/internal/metrics"
	"github.com/omochice/toy-socket-arena/internal/transport"
	"github.com/omochice/toy-socket-arena/pkg/protocol"
)

// Session errors.
var (
	ErrConnectFailed = errors.New("session: connect failed")
	ErrTransport     = errors.New("session: transport error")
	ErrNotActive     = errors.New("session: not active")
	ErrQueueFull     = errors.New("session: send queue full")
	ErrStarted       = errors.New("session: already started")

	errEndOfStream = errors.New("end of stream")
	errStopped     = errors.New("stopped")
)

// State is the session lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config holds session timing and the local player's starting state.
type Config struct {
	Address  string
	PlayerID protocol.PlayerID
	Start    protocol.Vector3
	StepSize float64

	InputInterval   time.Duration
	SendInterval    time.Duration
	SessionDuration time.Duration
	DialTimeout     time.Duration
	WriteTimeout    time.Duration
	ExitTimeout     time.Duration

	// QueueSize bounds the writer queue.
	QueueSize int
}

// DefaultConfig returns the stock session settings.
func DefaultConfig() Config {
	return Config{
		Address:         "127.0.0.1:8080",
		Start:           protocol.Vector3{X: 10, Y: 20, Z: 30},
		StepSize:        1.0,
		InputInterval:   50 * time.Millisecond,
		SendInterval:    100 * time.Millisecond,
		SessionDuration: 2 * time.Minute,
		DialTimeout:     5 * time.Second,
		WriteTimeout:    2 * time.Second,
		ExitTimeout:     2 * time.Second,
		QueueSize:       16,
	}
}

// FromClient converts loaded client settings.
func FromClient(c config.Client) Config {
	cfg := DefaultConfig()
	cfg.Address = c.Address
	cfg.PlayerID = protocol.PlayerID(c.PlayerID)
	cfg.Start = protocol.Vector3{X: c.StartX, Y: c.StartY, Z: c.StartZ}
	cfg.StepSize = c.StepSize
	cfg.InputInterval = c.InputInterval
	cfg.SendInterval = c.SendInterval
	cfg.SessionDuration = c.SessionDuration
	cfg.DialTimeout = c.DialTimeout
	cfg.WriteTimeout = c.WriteTimeout
	cfg.ExitTimeout = c.ExitTimeout
	return cfg
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	positive := func(v *time.Duration, fallback time.Duration) {
		if *v <= 0 {
			*v = fallback
		}
	}
	positive(&c.InputInterval, def.InputInterval)
	positive(&c.SendInterval, def.SendInterval)
	positive(&c.SessionDuration, def.SessionDuration)
	positive(&c.DialTimeout, def.DialTimeout)
	positive(&c.WriteTimeout, def.WriteTimeout)
	positive(&c.ExitTimeout, def.ExitTimeout)
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	return c
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Session) {
		s.log = log
	}
}

// WithMetrics sets the session counters.
func WithMetrics(m *metrics.Session) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithInput sets where movement commands come from.
func WithInput(src input.Source) Option {
	return func(s *Session) {
		s.input = src
	}
}

type outbound struct {
	mt   protocol.MessageType
	data []byte
}

// Session is one client session. Create it with New, register handlers on
// Dispatcher, then call Run once.
type Session struct {
	cfg        Config
	log        *zap.SugaredLogger
	metrics    *metrics.Session
	input      input.Source
	player     *game.LocalPlayer
	world      *game.World
	dispatcher *dispatch.Dispatcher
	framer     *framing.Framer

	state   atomic.Int32
	started atomic.Bool

	// mu guards queue closure and the stop hooks; the writer goroutine is
	// the only reader of queue.
	mu          sync.Mutex
	queue       chan outbound
	queueClosed bool
	stop        context.CancelCauseFunc
	stopPending bool

	// endLoops moves an active session to Closing.
	endLoops context.CancelCauseFunc
}

// New creates a session. An empty PlayerID gets a random one and
// non-positive intervals, timeouts or queue size fall back to
// DefaultConfig.
func New(cfg Config, opts ...Option) *Session {
	if cfg.PlayerID == "" {
		cfg.PlayerID = protocol.PlayerID(uuid.NewString())
	}
	cfg = cfg.withDefaults()

	s := &Session{
		cfg:    cfg,
		log:    zap.NewNop().Sugar(),
		player: game.NewLocalPlayer(cfg.PlayerID, cfg.Start),
		world:  game.NewWorld(cfg.PlayerID),
		framer: framing.NewFramer(),
		queue:  make(chan outbound, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	s.log = s.log.With("player", cfg.PlayerID)
	s.dispatcher = dispatch.New(dispatch.WithLogger(s.log), dispatch.WithMetrics(s.metrics))
	s.dispatcher.OnWorldState(s.world.Replace)
	return s
}

// Dispatcher returns the dispatcher so callers can add handlers.
func (s *Session) Dispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}

// Player returns a copy of the local player.
func (s *Session) Player() game.Player {
	return s.player.Snapshot()
}

// World returns the remote world view.
func (s *Session) World() *game.World {
	return s.world
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	if State(s.state.Swap(int32(st))) != st {
		s.metrics.StateTransitions.WithLabelValues(st.String()).Inc()
		s.log.Debugw("session state", "state", st)
	}
}

// Stop ends the session early, as if its duration had elapsed. A Stop
// before or during the dial aborts the dial and Run returns nil.
func (s *Session) Stop() {
	s.mu.Lock()
	stop := s.stop
	if stop == nil {
		s.stopPending = true
	}
	s.mu.Unlock()
	if stop != nil {
		stop(errStopped)
	}
}

// SendChat queues a chat message from the local player.
func (s *Session) SendChat(text string) error {
	if s.State() != StateActive {
		return ErrNotActive
	}
	return s.enqueue(protocol.ChatMessage{ID: s.cfg.PlayerID, Message: text})
}

// Run dials the server and runs the session until its duration elapses,
// ctx is cancelled, or the transport fails. A dial failure returns
// ErrConnectFailed before anything else happens. Mid-session transport
// failures return ErrTransport after the exit handshake was attempted.
func (s *Session) Run(ctx context.Context, dialer transport.Dialer) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	s.setState(StateConnecting)

	runCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)
	s.mu.Lock()
	s.stop = stop
	pending := s.stopPending
	s.mu.Unlock()
	if pending {
		stop(errStopped)
	}

	dialCtx, cancel := context.WithTimeout(runCtx, s.cfg.DialTimeout)
	conn, err := dialer.Dial(dialCtx, s.cfg.Address)
	cancel()
	if err != nil {
		s.setState(StateClosed)
		if errors.Is(context.Cause(runCtx), errStopped) {
			s.log.Infow("stopped while connecting")
			return nil
		}
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	return s.serve(runCtx, conn)
}

func (s *Session) serve(parent context.Context, conn transport.Conn) error {
	timed, cancelTimed := context.WithTimeout(parent, s.cfg.SessionDuration)
	defer cancelTimed()
	loopCtx, endLoops := context.WithCancelCause(timed)
	defer endLoops(nil)
	s.endLoops = endLoops

	s.log.Infow("connected", "remote", conn.RemoteAddr(), "duration", s.cfg.SessionDuration)
	s.setState(StateActive)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(conn, loopCtx.Done())
	}()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.inputLoop(loopCtx)
	}()
	go func() {
		defer wg.Done()
		s.sendLoop(loopCtx)
	}()
	go func() {
		defer wg.Done()
		s.receiveLoop(loopCtx, conn)
	}()

	<-loopCtx.Done()
	s.setState(StateClosing)
	cause := context.Cause(loopCtx)
	s.log.Infow("closing session", "reason", closeReason(cause))

	wg.Wait()

	s.closeQueue(s.player.ExitNotice())
	<-writerDone

	if err := conn.Close(); err != nil {
		s.log.Debugw("close transport", "error", err)
	}
	s.setState(StateClosed)
	s.log.Infow("session closed", "position", s.player.Snapshot().Position)

	if errors.Is(cause, ErrTransport) {
		return cause
	}
	return nil
}

func closeReason(cause error) string {
	switch {
	case errors.Is(cause, context.DeadlineExceeded):
		return "session duration elapsed"
	case errors.Is(cause, context.Canceled):
		return "cancelled"
	case cause != nil:
		return cause.Error()
	default:
		return "unknown"
	}
}

// fail moves the session to Closing because of err.
func (s *Session) fail(err error) {
	s.log.Errorw("transport failure", "error", err)
	s.endLoops(err)
}
