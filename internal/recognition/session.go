package recognition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sonitel/callbridge/pkg/logger"
)

// Session owns exactly one streaming-recognition channel for the lifetime
// of one call's audio stream. The ingress write path and the channel read
// loop both touch the status field and synchronize on the session mutex.
type Session struct {
	streamID  string
	callID    string
	dialer    Dialer
	grace     time.Duration
	logger    *logger.Logger
	createdAt time.Time

	mu       sync.Mutex
	status   Status
	channel  Channel
	onResult func(TranscriptEvent)
	done     chan struct{}

	framesWritten atomic.Uint64
	framesDropped atomic.Uint64
	errorsSeen    atomic.Uint64
}

// NewSession creates an idle session for a stream. Open must be called
// before audio can be written.
func NewSession(streamID, callID string, dialer Dialer, grace time.Duration, log *logger.Logger) *Session {
	if grace <= 0 {
		grace = 2 * time.Second
	}
	return &Session{
		streamID:  streamID,
		callID:    callID,
		dialer:    dialer,
		grace:     grace,
		logger:    log.Named("session").With(logger.String("stream_id", streamID), logger.String("call_id", callID)),
		createdAt: time.Now().UTC(),
		status:    StatusIdle,
	}
}

// OnResult registers the consumer of transcript events. Events are
// delivered from a single goroutine in the order the service emits them.
func (s *Session) OnResult(cb func(TranscriptEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = cb
}

// Open establishes the recognition channel and sends the configuration
// record as the first message. Calling Open on an active session is a
// no-op; a terminal session cannot be reopened.
func (s *Session) Open(ctx context.Context, cfg StreamingConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case StatusActive:
		return nil
	case StatusIdle:
	default:
		return fmt.Errorf("cannot open session in state %s", s.status)
	}

	ch, err := s.dialer.Dial(ctx)
	if err != nil {
		s.status = StatusErrored
		s.errorsSeen.Add(1)
		return fmt.Errorf("failed to open recognition channel: %w", err)
	}

	if err := ch.SendConfig(cfg); err != nil {
		ch.Close()
		s.status = StatusErrored
		s.errorsSeen.Add(1)
		return fmt.Errorf("failed to send channel configuration: %w", err)
	}

	s.channel = ch
	s.status = StatusActive
	s.done = make(chan struct{})
	go s.readLoop(ch, s.done)

	s.logger.Info("Recognition session opened")
	return nil
}

// Write forwards one audio payload to the recognition channel. Writes on
// a session that is not active are counted and dropped, never an error on
// the caller's path.
func (s *Session) Write(payload []byte) error {
	s.mu.Lock()
	if s.status != StatusActive {
		st := s.status
		s.mu.Unlock()
		s.framesDropped.Add(1)
		s.logger.Debug("Dropping audio frame", logger.String("status", st.String()))
		return nil
	}
	ch := s.channel
	s.mu.Unlock()

	// The status can flip between the unlock and the write. Re-check so a
	// concurrent Remove never results in a write on a torn-down channel;
	// the channel's own closed flag covers the remaining window.
	if s.Status() != StatusActive {
		s.framesDropped.Add(1)
		return nil
	}

	if err := ch.SendAudio(payload); err != nil {
		if errors.Is(err, ErrChannelClosed) || s.Status() != StatusActive {
			s.framesDropped.Add(1)
			return nil
		}
		s.fail(err)
		return fmt.Errorf("audio write failed: %w", err)
	}

	s.framesWritten.Add(1)
	return nil
}

// Close signals end-of-input, waits up to the grace period for trailing
// results, then tears the channel down. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	switch s.status {
	case StatusClosed, StatusClosing:
		s.mu.Unlock()
		return nil
	case StatusIdle:
		s.status = StatusClosed
		s.mu.Unlock()
		return nil
	case StatusErrored:
		ch := s.channel
		s.mu.Unlock()
		if ch != nil {
			ch.Close()
		}
		return nil
	}

	s.status = StatusClosing
	ch := s.channel
	done := s.done
	s.mu.Unlock()

	if err := ch.SendEnd(); err != nil {
		s.logger.Debug("End-of-input send failed", logger.Error(err))
	}

	select {
	case <-done:
	case <-time.After(s.grace):
		s.logger.Debug("Grace period elapsed before channel completion")
	}

	ch.Close()
	<-done

	s.mu.Lock()
	if s.status == StatusClosing {
		s.status = StatusClosed
	}
	s.mu.Unlock()

	s.logger.Info("Recognition session closed",
		logger.Uint64("frames_written", s.framesWritten.Load()),
		logger.Uint64("frames_dropped", s.framesDropped.Load()))
	return nil
}

// readLoop consumes events from the channel until it terminates. Transcript
// events are handed to the registered callback in arrival order.
func (s *Session) readLoop(ch Channel, done chan struct{}) {
	defer close(done)

	for {
		ev, err := ch.Receive()
		if err != nil {
			s.mu.Lock()
			if s.status == StatusActive {
				s.status = StatusErrored
				s.errorsSeen.Add(1)
				s.mu.Unlock()
				s.logger.Warn("Recognition channel terminated unexpectedly", logger.Error(err))
				ch.Close()
				return
			}
			s.mu.Unlock()
			return
		}

		switch ev.Type {
		case EventTypeTranscript:
			s.mu.Lock()
			cb := s.onResult
			s.mu.Unlock()
			if cb != nil {
				cb(TranscriptEvent{
					StreamID:   s.streamID,
					CallID:     s.callID,
					Text:       ev.Transcript,
					Final:      ev.IsFinal,
					Confidence: ev.Confidence,
				})
			}

		case EventTypeError:
			msg := "unspecified"
			if ev.Error != nil {
				msg = ev.Error.Message
			}
			s.logger.Warn("Recognition service reported an error", logger.String("error", msg))
			s.mu.Lock()
			if s.status == StatusActive {
				s.status = StatusErrored
			}
			s.mu.Unlock()
			s.errorsSeen.Add(1)
			ch.Close()
			return

		case EventTypeDone:
			s.mu.Lock()
			if s.status == StatusActive {
				// Service ended the stream on its own; no more writes.
				s.status = StatusClosed
			}
			s.mu.Unlock()
			ch.Close()
			return
		}
	}
}

// fail marks the session errored after a write failure and closes the
// channel so later writes short-circuit on its closed flag.
func (s *Session) fail(err error) {
	s.mu.Lock()
	ch := s.channel
	if s.status == StatusActive {
		s.status = StatusErrored
	}
	s.mu.Unlock()

	s.errorsSeen.Add(1)
	s.logger.Warn("Recognition session errored", logger.Error(err))
	if ch != nil {
		ch.Close()
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// StreamID returns the media stream identifier this session belongs to.
func (s *Session) StreamID() string { return s.streamID }

// CallID returns the call-control identifier for this stream.
func (s *Session) CallID() string { return s.callID }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// FramesWritten returns the number of audio payloads forwarded.
func (s *Session) FramesWritten() uint64 { return s.framesWritten.Load() }

// FramesDropped returns the number of audio payloads dropped.
func (s *Session) FramesDropped() uint64 { return s.framesDropped.Load() }

// ErrorsSeen returns the number of channel errors observed.
func (s *Session) ErrorsSeen() uint64 { return s.errorsSeen.Load() }
