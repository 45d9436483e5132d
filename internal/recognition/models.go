package recognition

// Status represents the lifecycle state of a Session
type Status int32

const (
	StatusIdle Status = iota
	StatusActive
	StatusClosing
	StatusClosed
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusActive:
		return "active"
	case StatusClosing:
		return "closing"
	case StatusClosed:
		return "closed"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further writes will ever be accepted.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusErrored
}

// StreamingConfig is the configuration record sent to the recognition
// service as the first message on a newly opened channel.
type StreamingConfig struct {
	Encoding                   string `json:"encoding"`
	SampleRateHertz            int    `json:"sample_rate_hertz"`
	LanguageCode               string `json:"language_code"`
	Model                      string `json:"model"`
	EnableAutomaticPunctuation bool   `json:"enable_automatic_punctuation"`
}

// TranscriptEvent is one recognition result for a stream. Interim events
// may be revised by later ones; a final event commits the utterance.
type TranscriptEvent struct {
	StreamID   string
	CallID     string
	Text       string
	Final      bool
	Confidence float64 // 0 when the service omits it
}

// Wire event types emitted by the recognition service.
const (
	EventTypeTranscript = "transcript"
	EventTypeError      = "error"
	EventTypeDone       = "done"
)

// Event is a single message received from the recognition channel.
type Event struct {
	Type       string      `json:"type"`
	Transcript string      `json:"transcript,omitempty"`
	IsFinal    bool        `json:"is_final,omitempty"`
	Confidence float64     `json:"confidence,omitempty"`
	Error      *EventError `json:"error,omitempty"`
}

// EventError carries the detail of a service-reported error event.
type EventError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Config contains the settings for the recognition client and sessions.
type Config struct {
	Endpoint                   string // websocket endpoint of the recognition service
	APIKey                     string
	Encoding                   string // encoding of the audio written to the channel
	SampleRateHertz            int
	LanguageCode               string
	Model                      string
	EnableAutomaticPunctuation bool
	DialTimeoutSeconds         int // handshake timeout per attempt
	MaxDialRetries             int
	RetryIntervalSeconds       int // wait between dial attempts
	CloseGraceMs               int // wait for trailing results after end-of-input
}

// Streaming returns the configuration record for a new channel.
func (c Config) Streaming() StreamingConfig {
	return StreamingConfig{
		Encoding:                   c.Encoding,
		SampleRateHertz:            c.SampleRateHertz,
		LanguageCode:               c.LanguageCode,
		Model:                      c.Model,
		EnableAutomaticPunctuation: c.EnableAutomaticPunctuation,
	}
}
