package mediastream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sonitel/callbridge/internal/audio"
	"github.com/sonitel/callbridge/internal/metrics"
	"github.com/sonitel/callbridge/internal/recognition"
	"github.com/sonitel/callbridge/pkg/logger"
)

// TranscriptHandler consumes recognition results for a stream and is told
// when a new turn begins and when a stream goes away.
type TranscriptHandler interface {
	BeginTurn(streamID string)
	EndStream(streamID string)
	HandleTranscript(ev recognition.TranscriptEvent)
}

// Server accepts media-stream websocket connections and drives the session
// registry from the events each connection carries.
type Server struct {
	registry    *recognition.Registry
	transcripts TranscriptHandler
	upgrader    websocket.Upgrader
	logger      *logger.Logger
	metrics     *metrics.Metrics
}

// NewServer creates a media-stream server.
func NewServer(registry *recognition.Registry, transcripts TranscriptHandler, log *logger.Logger, m *metrics.Metrics) *Server {
	return &Server{
		registry:    registry,
		transcripts: transcripts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // media streams carry no browser origin
			},
		},
		logger:  log.Named("media-stream"),
		metrics: m,
	}
}

// HandleConnection upgrades the HTTP request and runs the connection's
// event loop until the stream stops or the transport closes.
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			logger.Error(err),
			logger.String("remote_addr", r.RemoteAddr))
		return
	}

	if s.metrics != nil {
		s.metrics.Connections.Inc()
	}

	c := s.newConn()
	c.logger.Info("Media stream connected", logger.String("remote_addr", r.RemoteAddr))
	c.run(r.Context(), ws)
}

// connState is the per-connection lifecycle.
type connState int

const (
	stateIdle connState = iota
	stateActive
	stateClosing
	stateClosed
)

// streamConn handles the ordered event sequence of one physical media
// connection. All fields are owned by the connection's read loop; the
// registry is the only state shared with other connections.
type streamConn struct {
	server    *Server
	logger    *logger.Logger
	state     connState
	streamSid string
	callSid   string
	transcode bool
	frameSeen uint64
}

func (s *Server) newConn() *streamConn {
	return &streamConn{
		server: s,
		logger: s.logger.With(logger.String("conn_id", uuid.NewString())),
		state:  stateIdle,
	}
}

func (c *streamConn) run(ctx context.Context, ws *websocket.Conn) {
	defer ws.Close()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("Media stream read error", logger.Error(err))
			}
			break
		}
		c.handleMessage(ctx, data)
		if c.state == stateClosed {
			break
		}
	}

	// Transport-level close without an explicit stop is treated the same
	// as stop, so no session outlives its connection.
	c.teardown()
}

// handleMessage dispatches one protocol event. Malformed payloads are
// dropped without affecting session state.
func (c *streamConn) handleMessage(ctx context.Context, data []byte) {
	var ev streamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.countDecodeError()
		c.logger.Warn("Dropping malformed stream event", logger.Error(err))
		return
	}

	switch ev.Event {
	case EventConnected:
		c.logger.Debug("Stream handshake received")
	case EventStart:
		c.handleStart(ctx, ev)
	case EventMedia:
		c.handleMedia(ev)
	case EventMark:
		// Marks delimit playback on the far side; nothing to do here.
	case EventStop:
		c.handleStop()
	default:
		c.logger.Debug("Ignoring unknown stream event", logger.String("event", ev.Event))
	}
}

func (c *streamConn) handleStart(ctx context.Context, ev streamEvent) {
	if c.state == stateActive {
		c.logger.Warn("Duplicate start event ignored", logger.String("stream_sid", c.streamSid))
		return
	}
	if ev.Start == nil || ev.Start.StreamSid == "" || ev.Start.CallSid == "" {
		c.countDecodeError()
		c.logger.Warn("Dropping start event with missing identifiers")
		return
	}

	c.streamSid = ev.Start.StreamSid
	c.callSid = ev.Start.CallSid
	// The recognizer takes linear PCM; anything else is transcoded on the
	// write path. Streams default to mu-law when no format is announced.
	c.transcode = ev.Start.MediaFormat.Encoding != EncodingLinear16
	c.logger = c.logger.With(
		logger.String("stream_sid", c.streamSid),
		logger.String("call_sid", c.callSid))

	c.server.transcripts.BeginTurn(c.streamSid)

	if _, err := c.server.registry.GetOrCreate(ctx, c.streamSid, c.callSid, c.server.transcripts.HandleTranscript); err != nil {
		c.logger.Error("Failed to open recognition session", logger.Error(err))
		return
	}

	c.state = stateActive
	c.logger.Info("Stream started",
		logger.String("encoding", ev.Start.MediaFormat.Encoding),
		logger.Int("sample_rate", ev.Start.MediaFormat.SampleRate))
}

func (c *streamConn) handleMedia(ev streamEvent) {
	if c.metrics() != nil {
		c.metrics().FramesReceived.Inc()
	}

	if c.state != stateActive {
		c.dropFrame("stream not active")
		return
	}
	if ev.Media == nil || ev.Media.Payload == "" {
		c.countDecodeError()
		c.logger.Warn("Dropping media event without payload")
		return
	}

	// Lookup, never create: a frame without a prior start must not
	// conjure session state.
	session, ok := c.server.registry.Get(c.streamSid)
	if !ok {
		c.dropFrame("no session for stream")
		return
	}

	payload, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
	if err != nil {
		c.countDecodeError()
		c.logger.Warn("Dropping undecodable media payload", logger.Error(err))
		return
	}

	if c.transcode {
		payload = audio.DecodeBuffer(payload)
	}

	if err := session.Write(payload); err != nil {
		c.logger.Warn("Audio forward failed", logger.Error(err))
		return
	}

	c.frameSeen++
	if c.metrics() != nil {
		c.metrics().FramesForwarded.Inc()
	}
	if c.frameSeen%500 == 0 {
		c.logger.Debug("Forwarding media", logger.Uint64("frames", c.frameSeen))
	}
}

func (c *streamConn) handleStop() {
	if c.state == stateClosed {
		return
	}
	c.state = stateClosing
	if c.streamSid != "" {
		c.server.registry.Remove(c.streamSid)
		c.server.transcripts.EndStream(c.streamSid)
	}
	c.state = stateClosed
	c.logger.Info("Stream stopped", logger.Uint64("frames", c.frameSeen))
}

// teardown releases the stream when the transport closes. Identical to
// stop, and a no-op if stop already ran.
func (c *streamConn) teardown() {
	if c.state == stateClosed {
		return
	}
	c.handleStop()
}

func (c *streamConn) dropFrame(reason string) {
	if c.metrics() != nil {
		c.metrics().FramesDropped.Inc()
	}
	c.logger.Warn("Dropping media frame", logger.String("reason", reason))
}

func (c *streamConn) countDecodeError() {
	if c.metrics() != nil {
		c.metrics().DecodeErrors.Inc()
	}
}

func (c *streamConn) metrics() *metrics.Metrics {
	return c.server.metrics
}
