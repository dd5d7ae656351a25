package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/omochice/toy-socket-arena/internal/dispatch"
	"github.com/omochice/toy-socket-arena/internal/framing"
	"github.com/omochice/toy-socket-arena/internal/game"
	"github.com/omochice/toy-socket-arena/internal/metrics"
	"github.com/omochice/toy-socket-arena/internal/transport"
	"github.com/omochice/toy-socket-arena/pkg/protocol"
)

// inputLoop applies at most one pending movement command per tick.
func (s *Session) inputLoop(ctx context.Context) {
	if s.input == nil {
		return
	}
	ticker := time.NewTicker(s.cfg.InputInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		dir, ok := s.input.Poll()
		if !ok || dir == game.DirNone {
			continue
		}
		p := s.player.Apply(dir, s.cfg.StepSize)
		s.log.Debugw("moved", "direction", dir, "position", p.Position)
	}
}

// sendLoop queues the local position every SendInterval. It never waits on
// the writer: a full queue drops the update.
func (s *Session) sendLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SendInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.enqueue(s.player.PositionUpdate()); err != nil {
			s.log.Debugw("position update dropped", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// receiveLoop feeds transport chunks through the framer and dispatches each
// complete frame in order.
func (s *Session) receiveLoop(ctx context.Context, conn transport.Conn) {
	for {
		chunk, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				s.endOfStream()
				return
			}
			s.fail(fmt.Errorf("%w: read: %w", ErrTransport, err))
			return
		}
		if len(chunk) == 0 {
			s.endOfStream()
			return
		}

		for _, frame := range s.framer.Feed(chunk) {
			if ctx.Err() != nil {
				return
			}
			s.handleFrame(frame)
		}
	}
}

// endOfStream closes the session after the server hung up. Bytes after the
// last delimiter are discarded: a frame is only complete with its
// delimiter.
func (s *Session) endOfStream() {
	if n := s.framer.Reset(); n > 0 {
		s.log.Warnw("discarding unterminated bytes at end of stream", "bytes", n)
		s.metrics.FramesDropped.WithLabelValues(metrics.ReasonTruncatedEOF).Inc()
	}
	s.log.Infow("server closed the stream")
	s.endLoops(errEndOfStream)
}

func (s *Session) handleFrame(frame []byte) {
	s.metrics.FramesReceived.Inc()

	env, err := protocol.Decode(frame)
	if err != nil {
		reason := metrics.ReasonMalformed
		if errors.Is(err, protocol.ErrUnknownTag) {
			reason = metrics.ReasonUnknownTag
		}
		s.drop(reason, err, frame)
		return
	}

	if _, err := s.dispatcher.Dispatch(env); err != nil {
		reason := metrics.ReasonPayload
		switch {
		case errors.Is(err, protocol.ErrUnknownTag):
			reason = metrics.ReasonUnknownTag
		case errors.Is(err, dispatch.ErrUnroutable):
			reason = metrics.ReasonUnroutable
		}
		s.drop(reason, err, frame)
	}
}

func (s *Session) drop(reason string, err error, frame []byte) {
	s.metrics.FramesDropped.WithLabelValues(reason).Inc()
	s.log.Warnw("frame dropped", "reason", reason, "error", err, "bytes", len(frame))
}

// enqueue hands a payload to the writer without blocking.
func (s *Session) enqueue(p protocol.Payload) error {
	msg, err := encode(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queueClosed {
		s.metrics.SendsDropped.WithLabelValues(msg.mt.String()).Inc()
		return ErrNotActive
	}
	select {
	case s.queue <- msg:
		return nil
	default:
		s.metrics.SendsDropped.WithLabelValues(msg.mt.String()).Inc()
		return ErrQueueFull
	}
}

// closeQueue queues the exit notice as the final message and closes the
// queue. It waits for room: the writer keeps draining until the queue is
// closed.
func (s *Session) closeQueue(exit protocol.ExitNotice) {
	msg, err := encode(exit)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queueClosed {
		return
	}
	if err != nil {
		s.log.Errorw("failed to encode exit notice", "error", err)
	} else {
		s.queue <- msg
	}
	s.queueClosed = true
	close(s.queue)
}

func encode(p protocol.Payload) (outbound, error) {
	env, err := protocol.NewEnvelope(p)
	if err != nil {
		return outbound{}, err
	}
	data, err := env.Encode()
	if err != nil {
		return outbound{}, err
	}
	framed, err := framing.Frame(data)
	if err != nil {
		return outbound{}, err
	}
	return outbound{mt: env.Type, data: framed}, nil
}

// writeLoop is the only goroutine that writes to the transport. Once
// closing is done only the exit notice is written; the queued backlog is
// dropped. After a write fails it keeps draining the queue without writing
// so producers never block.
func (s *Session) writeLoop(conn transport.Conn, closing <-chan struct{}) {
	failed := false
	for msg := range s.queue {
		if msg.mt != protocol.MessageTypeExit && isDone(closing) {
			s.metrics.SendsDropped.WithLabelValues(msg.mt.String()).Inc()
			s.log.Debugw("send dropped: session closing", "type", msg.mt)
			continue
		}
		if failed {
			s.metrics.SendsDropped.WithLabelValues(msg.mt.String()).Inc()
			if msg.mt == protocol.MessageTypeExit {
				s.log.Warnw("exit notice not sent: transport already failed")
			}
			continue
		}

		timeout := s.cfg.WriteTimeout
		if msg.mt == protocol.MessageTypeExit {
			timeout = s.cfg.ExitTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := conn.Write(ctx, msg.data)
		cancel()

		if err != nil {
			failed = true
			if msg.mt == protocol.MessageTypeExit {
				s.log.Warnw("exit notice not delivered", "error", err)
				continue
			}
			s.fail(fmt.Errorf("%w: write %s: %w", ErrTransport, msg.mt, err))
			continue
		}
		s.metrics.EnvelopesSent.WithLabelValues(msg.mt.String()).Inc()
		if msg.mt == protocol.MessageTypeExit {
			s.log.Infow("exit notice sent")
		}
	}
}

func isDone(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
