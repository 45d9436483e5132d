package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus collectors for the bridge.
type Metrics struct {
	// Media ingress
	FramesReceived  prometheus.Counter
	FramesForwarded prometheus.Counter
	FramesDropped   prometheus.Counter
	DecodeErrors    prometheus.Counter
	Connections     prometheus.Counter

	// Recognition sessions
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsClosed  prometheus.Counter
	SessionsErrored prometheus.Counter

	// Transcripts
	TranscriptsInterim prometheus.Counter
	TranscriptsFinal   prometheus.Counter

	// Call control
	CallUpdates        prometheus.Counter
	CallUpdateFailures prometheus.Counter

	// Recording fallback
	RecordingsTranscribed prometheus.Counter
	RecordingFailures     prometheus.Counter
}

// New creates and registers all collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_frames_received_total",
			Help: "Total number of media frames received from stream connections",
		}),
		FramesForwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_frames_forwarded_total",
			Help: "Total number of audio frames forwarded to recognition channels",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_frames_dropped_total",
			Help: "Total number of media frames dropped (no session, wrong state, or decode failure)",
		}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_decode_errors_total",
			Help: "Total number of malformed events or payloads dropped",
		}),
		Connections: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_stream_connections_total",
			Help: "Total number of media stream connections accepted",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_active_sessions",
			Help: "Current number of registered recognition sessions",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_sessions_created_total",
			Help: "Total number of recognition sessions created",
		}),
		SessionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_sessions_closed_total",
			Help: "Total number of recognition sessions closed cleanly",
		}),
		SessionsErrored: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_sessions_errored_total",
			Help: "Total number of recognition sessions removed in the errored state",
		}),
		TranscriptsInterim: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_transcripts_interim_total",
			Help: "Total number of interim transcript events received",
		}),
		TranscriptsFinal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_transcripts_final_total",
			Help: "Total number of final transcript events received",
		}),
		CallUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_call_updates_total",
			Help: "Total number of call-control instructions delivered",
		}),
		CallUpdateFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_call_update_failures_total",
			Help: "Total number of call-control deliveries that failed all attempts",
		}),
		RecordingsTranscribed: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_recordings_transcribed_total",
			Help: "Total number of finished recordings transcribed via the fallback path",
		}),
		RecordingFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_recording_failures_total",
			Help: "Total number of recording fallback attempts that failed",
		}),
	}
}
