// Package api exposes the HTTP surface: telephony webhooks, the media
// websocket endpoint, health, and metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sonitel/callbridge/internal/mediastream"
	"github.com/sonitel/callbridge/internal/recognition"
	"github.com/sonitel/callbridge/pkg/logger"
)

// CallAnswerer builds the document returned to an inbound call.
type CallAnswerer interface {
	Answer() (string, error)
}

// RecordingProcessor runs the offline transcription fallback for one
// finished recording.
type RecordingProcessor interface {
	HandleRecording(ctx context.Context, callSid, recordingURL string) error
}

// Router wires the HTTP routes to the bridge services.
type Router struct {
	media      *mediastream.Server
	answerer   CallAnswerer
	recordings RecordingProcessor
	registry   *recognition.Registry
	gatherer   prometheus.Gatherer
	logger     *logger.Logger
}

// NewRouter creates the API router. recordings may be nil when the
// fallback is disabled.
func NewRouter(media *mediastream.Server, answerer CallAnswerer, recordings RecordingProcessor, registry *recognition.Registry, gatherer prometheus.Gatherer, log *logger.Logger) *Router {
	return &Router{
		media:      media,
		answerer:   answerer,
		recordings: recordings,
		registry:   registry,
		gatherer:   gatherer,
		logger:     log.Named("api"),
	}
}

// Routes returns the HTTP handler for all endpoints.
func (r *Router) Routes() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)

	mux.Post("/voice", r.handleVoice)
	mux.Get("/media", r.media.HandleConnection)
	mux.Post("/recording", r.handleRecording)
	mux.Get("/healthz", r.handleHealth)
	if r.gatherer != nil {
		mux.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

// handleVoice answers the inbound-call webhook with the greeting and the
// stream connect instruction.
func (r *Router) handleVoice(w http.ResponseWriter, req *http.Request) {
	doc, err := r.answerer.Answer()
	if err != nil {
		r.logger.Error("Failed to build answer document", logger.Error(err))
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(doc)); err != nil {
		r.logger.Error("Failed to write answer document", logger.Error(err))
	}
}

// handleRecording accepts the recording-complete webhook and runs the
// fallback transcription off the request goroutine.
func (r *Router) handleRecording(w http.ResponseWriter, req *http.Request) {
	if r.recordings == nil {
		http.Error(w, "recording fallback disabled", http.StatusServiceUnavailable)
		return
	}
	if err := req.ParseForm(); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	callSid := req.PostFormValue("CallSid")
	recordingURL := req.PostFormValue("RecordingUrl")
	if callSid == "" || recordingURL == "" {
		http.Error(w, "CallSid and RecordingUrl are required", http.StatusBadRequest)
		return
	}

	go func() {
		if err := r.recordings.HandleRecording(context.Background(), callSid, recordingURL); err != nil {
			r.logger.Error("Recording fallback failed",
				logger.Error(err),
				logger.String("call_sid", callSid))
		}
	}()

	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": r.registry.Len(),
	})
}

// WriteJSON writes the data as a JSON response with the given status
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
