package mediastream

// Event names of the media-stream protocol. One JSON-framed event per
// websocket text message, in connection order.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventMark      = "mark"
	EventStop      = "stop"
)

// Audio encodings carried by the stream.
const (
	EncodingMulaw    = "audio/x-mulaw"
	EncodingLinear16 = "audio/x-l16"
)

// streamEvent is the envelope of every media-stream message.
type streamEvent struct {
	Event          string        `json:"event"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	StreamSid      string        `json:"streamSid,omitempty"`
	Start          *startPayload `json:"start,omitempty"`
	Media          *mediaPayload `json:"media,omitempty"`
	Mark           *markPayload  `json:"mark,omitempty"`
}

// startPayload announces a new stream and carries its identifiers.
type startPayload struct {
	AccountSid  string      `json:"accountSid,omitempty"`
	StreamSid   string      `json:"streamSid"`
	CallSid     string      `json:"callSid"`
	Tracks      []string    `json:"tracks,omitempty"`
	MediaFormat mediaFormat `json:"mediaFormat"`
}

type mediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// mediaPayload carries one base64-encoded audio frame.
type mediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type markPayload struct {
	Name string `json:"name,omitempty"`
}
