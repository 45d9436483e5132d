package recognition

import (
	"context"
	"sync"
	"time"

	"github.com/sonitel/callbridge/internal/metrics"
	"github.com/sonitel/callbridge/pkg/logger"
)

// Registry is the single source of truth for stream sessions. It is the
// only place sessions are created, looked up, or removed. Operations on
// one stream id serialize on a per-entry mutex; distinct stream ids do
// not block each other.
type Registry struct {
	dialer  Dialer
	cfg     Config
	logger  *logger.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	mu      sync.Mutex
	session *Session
}

// NewRegistry creates an empty session registry.
func NewRegistry(dialer Dialer, cfg Config, log *logger.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		dialer:  dialer,
		cfg:     cfg,
		logger:  log.Named("registry"),
		metrics: m,
		entries: make(map[string]*registryEntry),
	}
}

// GetOrCreate returns the session for streamID, creating and opening a new
// one if none exists or the existing one is terminal. Concurrent calls for
// the same streamID create exactly one session.
func (r *Registry) GetOrCreate(ctx context.Context, streamID, callID string, onResult func(TranscriptEvent)) (*Session, error) {
	for {
		r.mu.Lock()
		e, ok := r.entries[streamID]
		if !ok {
			e = &registryEntry{}
			r.entries[streamID] = e
		}
		r.mu.Unlock()

		e.mu.Lock()

		// A concurrent Remove may have detached the entry between the two
		// locks; start over against the live map state.
		r.mu.Lock()
		current := r.entries[streamID]
		r.mu.Unlock()
		if current != e {
			e.mu.Unlock()
			continue
		}

		if e.session != nil && !e.session.Status().Terminal() {
			s := e.session
			e.mu.Unlock()
			return s, nil
		}

		if e.session != nil {
			status := e.session.Status()
			r.logger.Info("Replacing terminal session",
				logger.String("stream_id", streamID),
				logger.String("status", status.String()))
			if r.metrics != nil {
				// The terminal session was never removed; settle its
				// accounting before the replacement is counted.
				r.metrics.ActiveSessions.Dec()
				if status == StatusErrored {
					r.metrics.SessionsErrored.Inc()
				} else {
					r.metrics.SessionsClosed.Inc()
				}
			}
		}

		grace := time.Duration(r.cfg.CloseGraceMs) * time.Millisecond
		s := NewSession(streamID, callID, r.dialer, grace, r.logger)
		s.OnResult(onResult)

		if err := s.Open(ctx, r.cfg.Streaming()); err != nil {
			e.mu.Unlock()
			r.detach(streamID, e)
			return nil, err
		}

		e.session = s
		e.mu.Unlock()

		if r.metrics != nil {
			r.metrics.SessionsCreated.Inc()
			r.metrics.ActiveSessions.Inc()
		}
		r.logger.Info("Session created", logger.String("stream_id", streamID), logger.String("call_id", callID))
		return s, nil
	}
}

// Get returns the session for streamID without creating one. Used by the
// media write path so stray frames never create state.
func (r *Registry) Get(streamID string) (*Session, bool) {
	r.mu.Lock()
	e, ok := r.entries[streamID]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s == nil {
		return nil, false
	}
	return s, true
}

// Remove closes the session for streamID (if any) and deletes the entry.
// Safe to call multiple times and concurrently with in-flight writes; this
// is the single cancellation trigger for a stream.
func (r *Registry) Remove(streamID string) {
	r.mu.Lock()
	e, ok := r.entries[streamID]
	delete(r.entries, streamID)
	r.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	s := e.session
	e.session = nil
	e.mu.Unlock()
	if s == nil {
		return
	}

	errored := s.Status() == StatusErrored
	s.Close()

	if r.metrics != nil {
		r.metrics.ActiveSessions.Dec()
		if errored {
			r.metrics.SessionsErrored.Inc()
		} else {
			r.metrics.SessionsClosed.Inc()
		}
	}
	r.logger.Info("Session removed", logger.String("stream_id", streamID))
}

// Len returns the number of registered streams.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CloseAll removes every registered stream. Used during shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Remove(id)
	}
}

// detach removes an entry that never produced a session, so the next start
// attempt begins from a clean slate.
func (r *Registry) detach(streamID string, e *registryEntry) {
	r.mu.Lock()
	if r.entries[streamID] == e {
		delete(r.entries, streamID)
	}
	r.mu.Unlock()
}
