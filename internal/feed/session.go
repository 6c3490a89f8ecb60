package feed

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"feedmux/internal/logger"
)

type SessionState int32

const (
	SessionConnecting SessionState = iota
	SessionStreaming
	SessionReconnecting
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionStreaming:
		return "streaming"
	case SessionReconnecting:
		return "reconnecting"
	case SessionClosed:
		return "closed"
	}
	return "unknown"
}

// ErrSessionUnreachable reports that the session gave up because the
// provider was demoted to Unreachable.
var ErrSessionUnreachable = errors.New("streaming session: provider unreachable")

// StreamingSession drives one push connection for one (symbol, provider)
// pair through connecting -> streaming -> reconnecting -> closed.
// Reconnects back off from BackoffInitial doubling up to BackoffMax.
// Failed connect attempts count against the provider's health; once the
// provider goes Unreachable the session closes. Mid-stream drops reconnect
// without limit as long as connects keep succeeding.
type StreamingSession struct {
	provider Provider
	symbol   string
	state    *ProviderState
	deliver  func(Sample)

	backoffInitial, backoffMax time.Duration

	st atomic.Int32
}

func newStreamingSession(p Provider, symbol string, state *ProviderState, opts Options, deliver func(Sample)) *StreamingSession {
	return &StreamingSession{
		provider:       p,
		symbol:         symbol,
		state:          state,
		deliver:        deliver,
		backoffInitial: opts.BackoffInitial,
		backoffMax:     opts.BackoffMax,
	}
}

func (s *StreamingSession) State() SessionState {
	return SessionState(s.st.Load())
}

func (s *StreamingSession) setState(st SessionState) {
	s.st.Store(int32(st))
}

// Run blocks until the session closes. Returns nil on context
// cancellation, ErrSessionUnreachable (wrapping the provider error) when
// the provider is demoted.
func (s *StreamingSession) Run(ctx context.Context) error {
	id := s.provider.Descriptor().ID
	delay := s.backoffInitial
	for {
		if ctx.Err() != nil {
			s.setState(SessionClosed)
			return nil
		}
		s.setState(SessionConnecting)
		stream, err := s.provider.OpenStream(ctx, s.symbol)
		if err != nil {
			if ctx.Err() != nil {
				s.setState(SessionClosed)
				return nil
			}
			if IsPermanent(err) {
				s.state.RecordPermanent(err)
				s.setState(SessionClosed)
				return errors.Join(ErrSessionUnreachable, err)
			}
			if s.state.RecordFailure(err) == Unreachable {
				s.setState(SessionClosed)
				return errors.Join(ErrSessionUnreachable, err)
			}
			logger.Warnf("[feed] %s stream connect to %s failed, retrying in %s: %v", s.symbol, id, delay, err)
			s.setState(SessionReconnecting)
			if !sleepWithContext(ctx, delay) {
				s.setState(SessionClosed)
				return nil
			}
			delay = nextDelay(delay, s.backoffMax)
			continue
		}
		delay = s.backoffInitial
		s.setState(SessionStreaming)
		logger.Debugf("[feed] %s streaming from %s", s.symbol, id)
		s.drain(ctx, stream)
		if ctx.Err() != nil {
			s.setState(SessionClosed)
			return nil
		}
		// Channel closed: the connection dropped. Back off and redial.
		logger.Warnf("[feed] %s stream from %s dropped, reconnecting in %s", s.symbol, id, delay)
		s.setState(SessionReconnecting)
		if !sleepWithContext(ctx, delay) {
			s.setState(SessionClosed)
			return nil
		}
		delay = nextDelay(delay, s.backoffMax)
	}
}

func (s *StreamingSession) drain(ctx context.Context, stream <-chan Sample) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-stream:
			if !ok {
				return
			}
			s.state.RecordSuccess(sample.Time)
			s.deliver(sample)
		}
	}
}
