package recording

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonitel/callbridge/internal/audio"
	"github.com/sonitel/callbridge/internal/metrics"
	"github.com/sonitel/callbridge/pkg/logger"
)

type fakeTranscriber struct {
	mu   sync.Mutex
	wavs [][]byte
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, wav []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wavs = append(f.wavs, wav)
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type delivered struct {
	callSid string
	text    string
	restart bool
}

type fakeDeliverer struct {
	mu    sync.Mutex
	calls []delivered
	err   error
}

func (f *fakeDeliverer) Deliver(_ context.Context, callSid, text string, restart bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, delivered{callSid: callSid, text: text, restart: restart})
	return nil
}

func newTestService(t *testing.T, transcriber Transcriber, deliverer Deliverer, cfg Config) *Service {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	return NewService(cfg, transcriber, deliverer, logger.NewNop(), m)
}

func mustWAV(t *testing.T, samples []int16, rate int) []byte {
	t.Helper()
	wav, err := audio.EncodeWAV(samples, rate)
	require.NoError(t, err)
	return wav
}

func serveWAV(t *testing.T, body []byte, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleRecordingHappyPath(t *testing.T) {
	samples := []int16{0, 120, -120, 32124, -32124}
	srv := serveWAV(t, mustWAV(t, samples, 8000), http.StatusOK)

	transcriber := &fakeTranscriber{text: "hola desde la grabacion"}
	deliverer := &fakeDeliverer{}
	svc := newTestService(t, transcriber, deliverer, Config{})

	err := svc.HandleRecording(context.Background(), "CA1", srv.URL)
	require.NoError(t, err)

	// The transcriber sees the re-encoded container, not the raw download.
	require.Len(t, transcriber.wavs, 1)
	assert.Equal(t, mustWAV(t, samples, 8000), transcriber.wavs[0])

	require.Len(t, deliverer.calls, 1)
	assert.Equal(t, "CA1", deliverer.calls[0].callSid)
	assert.Equal(t, "hola desde la grabacion", deliverer.calls[0].text)
	assert.False(t, deliverer.calls[0].restart, "recording replies must not reconnect the stream")
}

func TestHandleRecordingDownloadFailure(t *testing.T) {
	srv := serveWAV(t, nil, http.StatusNotFound)

	transcriber := &fakeTranscriber{text: "never"}
	deliverer := &fakeDeliverer{}
	svc := newTestService(t, transcriber, deliverer, Config{})

	err := svc.HandleRecording(context.Background(), "CA1", srv.URL)
	require.Error(t, err)
	assert.Empty(t, transcriber.wavs)
	assert.Empty(t, deliverer.calls)
}

func TestHandleRecordingRejectsBadContainer(t *testing.T) {
	srv := serveWAV(t, []byte("definitely not a wav file"), http.StatusOK)

	transcriber := &fakeTranscriber{text: "never"}
	deliverer := &fakeDeliverer{}
	svc := newTestService(t, transcriber, deliverer, Config{})

	err := svc.HandleRecording(context.Background(), "CA1", srv.URL)
	require.Error(t, err)
	assert.Empty(t, deliverer.calls)
}

func TestHandleRecordingTranscriberFailure(t *testing.T) {
	srv := serveWAV(t, mustWAV(t, []int16{1, 2, 3}, 8000), http.StatusOK)

	transcriber := &fakeTranscriber{err: errors.New("quota exceeded")}
	deliverer := &fakeDeliverer{}
	svc := newTestService(t, transcriber, deliverer, Config{})

	err := svc.HandleRecording(context.Background(), "CA1", srv.URL)
	require.Error(t, err)
	assert.Empty(t, deliverer.calls)
}

func TestHandleRecordingEnforcesSizeLimit(t *testing.T) {
	srv := serveWAV(t, mustWAV(t, make([]int16, 4096), 8000), http.StatusOK)

	transcriber := &fakeTranscriber{text: "never"}
	deliverer := &fakeDeliverer{}
	svc := newTestService(t, transcriber, deliverer, Config{MaxDownloadBytes: 64})

	err := svc.HandleRecording(context.Background(), "CA1", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
	assert.Empty(t, transcriber.wavs)
}

func TestHandleRecordingDeliveryFailureSurfaces(t *testing.T) {
	srv := serveWAV(t, mustWAV(t, []int16{1, 2, 3}, 8000), http.StatusOK)

	transcriber := &fakeTranscriber{text: "hola"}
	deliverer := &fakeDeliverer{err: errors.New("call gone")}
	svc := newTestService(t, transcriber, deliverer, Config{})

	err := svc.HandleRecording(context.Background(), "CA1", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivering transcript")
}
