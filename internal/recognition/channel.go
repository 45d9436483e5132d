package recognition

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sonitel/callbridge/pkg/logger"
)

// ErrChannelClosed is returned by sends on a channel that has been closed.
var ErrChannelClosed = errors.New("recognition channel is closed")

// Channel is one bidirectional streaming-recognition connection. The
// configuration record must be the first message sent; afterwards the
// channel accepts audio chunks and emits events until it is closed.
type Channel interface {
	SendConfig(cfg StreamingConfig) error
	SendAudio(payload []byte) error
	SendEnd() error
	Receive() (Event, error)
	Close() error
}

// Dialer establishes recognition channels.
type Dialer interface {
	Dial(ctx context.Context) (Channel, error)
}

// WSDialer dials the recognition service over websocket.
type WSDialer struct {
	endpoint   string
	apiKey     string
	timeout    time.Duration
	maxRetries int
	retryWait  time.Duration
	logger     *logger.Logger
}

// NewWSDialer creates a dialer for the recognition service endpoint.
func NewWSDialer(cfg Config, log *logger.Logger) *WSDialer {
	timeout := time.Duration(cfg.DialTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.MaxDialRetries
	if retries <= 0 {
		retries = 3
	}
	wait := time.Duration(cfg.RetryIntervalSeconds) * time.Second
	if wait <= 0 {
		wait = 2 * time.Second
	}

	return &WSDialer{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		maxRetries: retries,
		retryWait:  wait,
		logger:     log.Named("recognition-dialer"),
	}
}

// Dial connects to the recognition service with bounded retries.
func (d *WSDialer) Dial(ctx context.Context) (Channel, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.timeout,
	}

	headers := http.Header{}
	headers.Set("Authorization", fmt.Sprintf("Bearer %s", d.apiKey))

	var conn *websocket.Conn
	var err error

	for attempt := 0; attempt < d.maxRetries; attempt++ {
		conn, _, err = dialer.DialContext(ctx, d.endpoint, headers)
		if err == nil {
			break
		}

		d.logger.Warn("Failed to connect to recognition service",
			logger.Int("attempt", attempt+1),
			logger.Int("max_attempts", d.maxRetries),
			logger.Error(err))

		if attempt == d.maxRetries-1 {
			return nil, fmt.Errorf("failed to connect after %d attempts: %w", d.maxRetries, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.retryWait):
		}
	}

	return &wsChannel{
		conn:      conn,
		closeChan: make(chan struct{}),
	}, nil
}

// wsChannel wraps a websocket connection to the recognition service.
// Writes are serialized by a mutex; Receive is called from a single
// goroutine (the owning session's read loop). Close never takes the
// write mutex so it can cancel an in-flight write on a stalled peer.
type wsChannel struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	closeOnce sync.Once
	closeChan chan struct{}
}

type configMessage struct {
	Type   string          `json:"type"`
	Config StreamingConfig `json:"config"`
}

type audioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type endMessage struct {
	Type string `json:"type"`
}

func (ch *wsChannel) SendConfig(cfg StreamingConfig) error {
	return ch.sendJSON(configMessage{Type: "config", Config: cfg})
}

func (ch *wsChannel) SendAudio(payload []byte) error {
	return ch.sendJSON(audioMessage{
		Type:  "audio",
		Audio: base64.StdEncoding.EncodeToString(payload),
	})
}

func (ch *wsChannel) SendEnd() error {
	return ch.sendJSON(endMessage{Type: "end"})
}

func (ch *wsChannel) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal channel message: %w", err)
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	select {
	case <-ch.closeChan:
		return ErrChannelClosed
	default:
	}
	return ch.conn.WriteMessage(websocket.TextMessage, data)
}

func (ch *wsChannel) Receive() (Event, error) {
	_, data, err := ch.conn.ReadMessage()
	if err != nil {
		return Event{}, err
	}

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to parse channel event: %w", err)
	}
	return ev, nil
}

func (ch *wsChannel) Close() error {
	var err error
	ch.closeOnce.Do(func() {
		close(ch.closeChan)
		// Closing the underlying connection is safe concurrently with a
		// writer and unblocks an in-flight WriteMessage, so a stalled
		// peer cannot wedge Remove or shutdown behind the write mutex.
		err = ch.conn.Close()
	})
	return err
}
