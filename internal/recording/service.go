package recording

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sonitel/callbridge/internal/audio"
	"github.com/sonitel/callbridge/internal/metrics"
	"github.com/sonitel/callbridge/pkg/logger"
)

const (
	defaultMaxDownloadBytes = 32 << 20 // recordings are minutes of 8 kHz mono
	defaultDownloadTimeout  = 30 * time.Second
)

// Config holds the recording-fallback settings.
type Config struct {
	Enabled bool   `toml:"enabled"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	Prompt  string `toml:"prompt"`

	MaxDownloadBytes    int64 `toml:"max_download_bytes"`
	DownloadTimeoutSecs int   `toml:"download_timeout_secs"`
}

// Deliverer pushes a transcript-derived instruction onto a call. Satisfied
// by the call-control responder.
type Deliverer interface {
	Deliver(ctx context.Context, callSid, text string, restart bool) error
}

// Service downloads a finished recording, transcribes it, and replies on
// the call. Used when the live stream ended without a usable transcript.
type Service struct {
	transcriber Transcriber
	deliverer   Deliverer
	httpClient  *http.Client
	maxBytes    int64
	logger      *logger.Logger
	metrics     *metrics.Metrics
}

// NewService creates the recording fallback service.
func NewService(cfg Config, transcriber Transcriber, deliverer Deliverer, log *logger.Logger, m *metrics.Metrics) *Service {
	timeout := defaultDownloadTimeout
	if cfg.DownloadTimeoutSecs > 0 {
		timeout = time.Duration(cfg.DownloadTimeoutSecs) * time.Second
	}
	maxBytes := cfg.MaxDownloadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxDownloadBytes
	}
	return &Service{
		transcriber: transcriber,
		deliverer:   deliverer,
		httpClient:  &http.Client{Timeout: timeout},
		maxBytes:    maxBytes,
		logger:      log.Named("recording"),
		metrics:     m,
	}
}

// HandleRecording runs the whole fallback path for one recording. The
// reply never reconnects the stream since the call already left it.
func (s *Service) HandleRecording(ctx context.Context, callSid, recordingURL string) error {
	log := s.logger.With(logger.String("call_sid", callSid))
	log.Info("Transcribing recording", logger.String("url", recordingURL))

	wav, err := s.download(ctx, recordingURL)
	if err != nil {
		return s.fail(log, fmt.Errorf("downloading recording: %w", err))
	}

	// Parse and re-encode so the transcriber always sees a clean mono
	// container regardless of what the provider attached.
	samples, rate, err := audio.DecodeWAV(wav)
	if err != nil {
		return s.fail(log, fmt.Errorf("parsing recording: %w", err))
	}
	clean, err := audio.EncodeWAV(samples, rate)
	if err != nil {
		return s.fail(log, fmt.Errorf("re-encoding recording: %w", err))
	}

	text, err := s.transcriber.Transcribe(ctx, clean)
	if err != nil {
		return s.fail(log, fmt.Errorf("transcribing recording: %w", err))
	}

	if s.metrics != nil {
		s.metrics.RecordingsTranscribed.Inc()
	}
	log.Info("Recording transcribed", logger.String("text", text))

	if err := s.deliverer.Deliver(ctx, callSid, text, false); err != nil {
		return s.fail(log, fmt.Errorf("delivering transcript: %w", err))
	}
	return nil
}

func (s *Service) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("recording exceeds %d bytes", s.maxBytes)
	}
	return data, nil
}

func (s *Service) fail(log *logger.Logger, err error) error {
	if s.metrics != nil {
		s.metrics.RecordingFailures.Inc()
	}
	log.Error("Recording fallback failed", logger.Error(err))
	return err
}
