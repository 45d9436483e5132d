package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonitel/callbridge/internal/mediastream"
	"github.com/sonitel/callbridge/internal/metrics"
	"github.com/sonitel/callbridge/internal/recognition"
	"github.com/sonitel/callbridge/pkg/logger"
)

type fakeAnswerer struct {
	doc string
	err error
}

func (f *fakeAnswerer) Answer() (string, error) { return f.doc, f.err }

type fakeProcessor struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeProcessor) HandleRecording(_ context.Context, callSid, recordingURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, callSid+" "+recordingURL)
	return nil
}

func (f *fakeProcessor) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

type noDialer struct{}

func (noDialer) Dial(context.Context) (recognition.Channel, error) {
	return nil, errors.New("no recognizer in this test")
}

type discardHandler struct{}

func (discardHandler) BeginTurn(string) {}

func (discardHandler) EndStream(string) {}

func (discardHandler) HandleTranscript(recognition.TranscriptEvent) {}

func newTestRouter(t *testing.T, recordings RecordingProcessor) (*Router, *fakeAnswerer) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	log := logger.NewNop()
	registry := recognition.NewRegistry(noDialer{}, recognition.Config{}, log, m)
	media := mediastream.NewServer(registry, discardHandler{}, log, m)
	answerer := &fakeAnswerer{doc: `<?xml version="1.0"?><Response><Connect/></Response>`}
	return NewRouter(media, answerer, recordings, registry, reg, log), answerer
}

func TestVoiceWebhookReturnsTwiML(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	srv := httptest.NewServer(router.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/voice", "application/x-www-form-urlencoded", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/xml", resp.Header.Get("Content-Type"))
}

func TestVoiceWebhookBuildFailure(t *testing.T) {
	router, answerer := newTestRouter(t, nil)
	answerer.err = errors.New("bad template")
	srv := httptest.NewServer(router.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/voice", "application/x-www-form-urlencoded", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestRecordingWebhookDispatches(t *testing.T) {
	processor := &fakeProcessor{}
	router, _ := newTestRouter(t, processor)
	srv := httptest.NewServer(router.Routes())
	defer srv.Close()

	form := url.Values{
		"CallSid":      {"CA1"},
		"RecordingUrl": {"https://recordings.example.com/CA1.wav"},
	}
	resp, err := http.Post(srv.URL+"/recording", "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Eventually(t, func() bool {
		return len(processor.recorded()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "CA1 https://recordings.example.com/CA1.wav", processor.recorded()[0])
}

func TestRecordingWebhookRequiresFields(t *testing.T) {
	router, _ := newTestRouter(t, &fakeProcessor{})
	srv := httptest.NewServer(router.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/recording", "application/x-www-form-urlencoded",
		strings.NewReader("CallSid=CA1"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecordingWebhookDisabled(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	srv := httptest.NewServer(router.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/recording", "application/x-www-form-urlencoded",
		strings.NewReader("CallSid=CA1&RecordingUrl=https://x"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	srv := httptest.NewServer(router.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	srv := httptest.NewServer(router.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMediaRequiresUpgrade(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	srv := httptest.NewServer(router.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/media")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
