// Package dispatch routes decoded envelopes to typed handlers.
package dispatch

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/omochice/toy-socket-arena/internal/metrics"
	"github.com/omochice/toy-socket-arena/pkg/protocol"
)

// ErrUnroutable is returned for known tags that this client only sends.
var ErrUnroutable = errors.New("dispatch: outbound-only message type")

// sink fans one payload type out to its handlers in registration order.
type sink[T protocol.Payload] struct {
	handlers []func(T)
}

// Dispatcher maps envelope tags to sinks. Handlers are registered during
// session setup; registering later is safe but only affects later frames.
type Dispatcher struct {
	mu         sync.RWMutex
	worldState sink[protocol.WorldSnapshot]
	chat       sink[protocol.ChatMessage]
	events     sink[protocol.PlayerEvent]

	log     *zap.SugaredLogger
	metrics *metrics.Session
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for handler panics.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(d *Dispatcher) {
		d.log = log
	}
}

// WithMetrics sets the counters updated on dispatch.
func WithMetrics(m *metrics.Session) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// New creates a Dispatcher with no handlers.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnWorldState registers a world snapshot handler.
func (d *Dispatcher) OnWorldState(h func(protocol.WorldSnapshot)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.worldState.handlers = append(d.worldState.handlers, h)
}

// OnChat registers a chat handler.
func (d *Dispatcher) OnChat(h func(protocol.ChatMessage)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chat.handlers = append(d.chat.handlers, h)
}

// OnPlayerEvent registers a player event handler.
func (d *Dispatcher) OnPlayerEvent(h func(protocol.PlayerEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events.handlers = append(d.events.handlers, h)
}

// Dispatch decodes the payload selected by env.Type and calls every handler
// of that sink. It returns how many handlers ran. A handler that panics is
// logged and skipped; the rest still run.
func (d *Dispatcher) Dispatch(env protocol.Envelope) (int, error) {
	switch env.Type {
	case protocol.MessageTypeWorldState:
		return dispatchTo(d, &d.worldState, env)
	case protocol.MessageTypeChat:
		return dispatchTo(d, &d.chat, env)
	case protocol.MessageTypePlayerEvent:
		return dispatchTo(d, &d.events, env)
	case protocol.MessageTypePosition, protocol.MessageTypeExit:
		return 0, fmt.Errorf("%w: %s", ErrUnroutable, env.Type)
	default:
		return 0, fmt.Errorf("%w %q", protocol.ErrUnknownTag, env.Type)
	}
}

func dispatchTo[T protocol.Payload](d *Dispatcher, s *sink[T], env protocol.Envelope) (int, error) {
	payload, err := protocol.DecodePayload[T](env)
	if err != nil {
		return 0, err
	}

	d.mu.RLock()
	handlers := append([]func(T){}, s.handlers...)
	d.mu.RUnlock()

	if d.metrics != nil {
		d.metrics.Dispatched.WithLabelValues(env.Type.String()).Inc()
	}
	for i, h := range handlers {
		d.call(env.Type, i, func() { h(payload) })
	}
	return len(handlers), nil
}

func (d *Dispatcher) call(mt protocol.MessageType, index int, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorw("handler panicked", "type", mt, "handler", index, "panic", r)
			if d.metrics != nil {
				d.metrics.HandlerPanics.Inc()
			}
		}
	}()
	fn()
}
