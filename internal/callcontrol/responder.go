// Package callcontrol turns final transcripts into live call instructions.
// It owns the reply template, the TwiML composition, and the delivery path
// back to the telephony provider.
package callcontrol

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sonitel/callbridge/internal/metrics"
	"github.com/sonitel/callbridge/internal/recognition"
	"github.com/sonitel/callbridge/pkg/logger"
)

// TranscriptPlaceholder is substituted with the recognized text when the
// reply template is rendered.
const TranscriptPlaceholder = "{transcript}"

const (
	defaultReplyTemplate = "You said: " + TranscriptPlaceholder
	defaultLanguage      = "en-US"
	deliveryTimeout      = 15 * time.Second
)

// Config holds the call-control settings.
type Config struct {
	AccountSID string `toml:"account_sid"`
	AuthToken  string `toml:"auth_token"`

	// ReplyTemplate is spoken back on each final transcript, with
	// {transcript} replaced by the recognized text.
	ReplyTemplate string `toml:"reply_template"`
	Greeting      string `toml:"greeting"`

	// RestartStream reconnects the media stream after the reply so the
	// caller can take another turn. When false the call hangs up.
	RestartStream bool   `toml:"restart_stream"`
	StreamURL     string `toml:"stream_url"`
	PauseSecs     int    `toml:"pause_secs"`

	// Voices are tried in order until one delivery succeeds.
	Voices   []string `toml:"voices"`
	Language string   `toml:"language"`

	RetryAttempts  int `toml:"retry_attempts"`
	RetryBackoffMs int `toml:"retry_backoff_ms"`
}

// CallUpdater pushes a new TwiML document onto an in-progress call.
type CallUpdater interface {
	UpdateCall(callSid string, twimlDoc string) error
}

// Responder consumes transcript events and answers each stream turn with
// exactly one call update. It implements the media server's handler
// contract.
type Responder struct {
	cfg     Config
	updater CallUpdater
	logger  *logger.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	replied map[string]bool
	wg      sync.WaitGroup
}

// NewResponder creates a responder delivering through the given updater.
func NewResponder(cfg Config, updater CallUpdater, log *logger.Logger, m *metrics.Metrics) *Responder {
	if cfg.ReplyTemplate == "" {
		cfg.ReplyTemplate = defaultReplyTemplate
	}
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	return &Responder{
		cfg:     cfg,
		updater: updater,
		logger:  log.Named("call-control"),
		metrics: m,
		replied: make(map[string]bool),
	}
}

// BeginTurn opens a new reply window for the stream. The next final
// transcript on this stream produces a call update.
func (r *Responder) BeginTurn(streamID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replied[streamID] = false
}

// EndStream forgets the stream's turn state.
func (r *Responder) EndStream(streamID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.replied, streamID)
}

// HandleTranscript reacts to one recognition result. Interim results are
// logged only. The first final result of a turn is answered; later finals
// in the same turn are ignored so one turn never issues two instructions.
// Delivery runs on its own goroutine and never blocks the audio path.
func (r *Responder) HandleTranscript(ev recognition.TranscriptEvent) {
	if !ev.Final {
		if r.metrics != nil {
			r.metrics.TranscriptsInterim.Inc()
		}
		r.logger.Debug("Interim transcript",
			logger.String("stream_sid", ev.StreamID),
			logger.String("text", ev.Text))
		return
	}

	if r.metrics != nil {
		r.metrics.TranscriptsFinal.Inc()
	}
	r.logger.Info("Final transcript",
		logger.String("stream_sid", ev.StreamID),
		logger.String("call_sid", ev.CallID),
		logger.String("text", ev.Text),
		logger.Float64("confidence", ev.Confidence))

	r.mu.Lock()
	done := r.replied[ev.StreamID]
	if !done {
		r.replied[ev.StreamID] = true
	}
	r.mu.Unlock()
	if done {
		r.logger.Debug("Turn already answered, skipping final",
			logger.String("stream_sid", ev.StreamID))
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()
		if err := r.Deliver(ctx, ev.CallID, ev.Text, r.cfg.RestartStream); err != nil {
			// Delivery failures never propagate to the stream.
			r.logger.Error("Call update failed",
				logger.Error(err),
				logger.String("call_sid", ev.CallID))
		}
	}()
}

// Deliver pushes the reply for text onto the call. Voices are tried in
// configured order and the whole sequence retries with backoff; the first
// success wins and only the last failure is surfaced.
func (r *Responder) Deliver(ctx context.Context, callSid, text string, restart bool) error {
	reply := strings.ReplaceAll(r.cfg.ReplyTemplate, TranscriptPlaceholder, text)

	voices := r.cfg.Voices
	if len(voices) == 0 {
		voices = []string{""}
	}

	var lastErr error
	for attempt := 0; attempt <= r.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(r.cfg.RetryBackoffMs) * time.Millisecond
			select {
			case <-ctx.Done():
				return fmt.Errorf("call update abandoned for %s: %w", callSid, ctx.Err())
			case <-time.After(backoff):
			}
		}

		for _, voice := range voices {
			doc, err := r.buildReply(reply, voice, restart)
			if err != nil {
				lastErr = err
				continue
			}
			if err := r.updater.UpdateCall(callSid, doc); err != nil {
				lastErr = err
				r.logger.Warn("Call update attempt failed",
					logger.Error(err),
					logger.String("call_sid", callSid),
					logger.String("voice", voice),
					logger.Int("attempt", attempt))
				continue
			}
			if r.metrics != nil {
				r.metrics.CallUpdates.Inc()
			}
			r.logger.Info("Call updated",
				logger.String("call_sid", callSid),
				logger.String("voice", voice))
			return nil
		}
	}

	if r.metrics != nil {
		r.metrics.CallUpdateFailures.Inc()
	}
	return fmt.Errorf("call update failed for %s: %w", callSid, lastErr)
}

// Wait blocks until all in-flight deliveries finish. Used on shutdown.
func (r *Responder) Wait() {
	r.wg.Wait()
}
