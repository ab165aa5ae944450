package protocol

import "time"

// Top-level keys shared by requests and their responses
const (
	KindCoreAgentVersion = "CoreAgentVersion"
	KindRegister         = "Register"
	KindStartRequest     = "StartRequest"
	KindFinishRequest    = "FinishRequest"
	KindTagRequest       = "TagRequest"
	KindStartSpan        = "StartSpan"
	KindStopSpan         = "StopSpan"
	KindTagSpan          = "TagSpan"
	KindApplicationEvent = "ApplicationEvent"
	KindFailure          = "Failure"
)

const (
	// APIVersion is the protocol version announced in Register
	APIVersion = "1.0"
	// Language identifies this client in Register and metadata
	Language = "go"
	// EventTypeMetadata marks the application-metadata handshake event
	EventTypeMetadata = "scout.metadata"
)

// TimestampLayout is the agent's timestamp format (UTC, microseconds)
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in the agent's timestamp format
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Message is an outgoing request. Kind is its top-level JSON key.
type Message interface {
	Kind() string
}

// CoreAgentVersion asks the agent for its version
type CoreAgentVersion struct{}

// Register identifies the application; it must precede other traffic on a connection
type Register struct {
	App        string `json:"app"`
	Key        string `json:"key"`
	Language   string `json:"language"`
	APIVersion string `json:"api_version"`
}

// StartRequest opens a request
type StartRequest struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// FinishRequest closes a request
type FinishRequest struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// TagRequest attaches one tag to a request
type TagRequest struct {
	RequestID string `json:"request_id"`
	Tag       string `json:"tag"`
	Value     any    `json:"value"`
	Timestamp string `json:"timestamp"`
}

// StartSpan opens a span; ParentID is omitted for top-level spans
type StartSpan struct {
	RequestID string  `json:"request_id"`
	SpanID    string  `json:"span_id"`
	ParentID  *string `json:"parent_id,omitempty"`
	Operation string  `json:"operation"`
	Timestamp string  `json:"timestamp"`
}

// StopSpan closes a span
type StopSpan struct {
	RequestID string `json:"request_id"`
	SpanID    string `json:"span_id"`
	Timestamp string `json:"timestamp"`
}

// TagSpan attaches one tag to a span
type TagSpan struct {
	RequestID string `json:"request_id"`
	SpanID    string `json:"span_id"`
	Tag       string `json:"tag"`
	Value     any    `json:"value"`
	Timestamp string `json:"timestamp"`
}

// ApplicationEvent carries out-of-band application data such as metadata
type ApplicationEvent struct {
	Source     string `json:"source"`
	EventType  string `json:"event_type"`
	EventValue any    `json:"event_value"`
	Timestamp  string `json:"timestamp"`
}

func (CoreAgentVersion) Kind() string { return KindCoreAgentVersion }
func (Register) Kind() string         { return KindRegister }
func (StartRequest) Kind() string     { return KindStartRequest }
func (FinishRequest) Kind() string    { return KindFinishRequest }
func (TagRequest) Kind() string       { return KindTagRequest }
func (StartSpan) Kind() string        { return KindStartSpan }
func (StopSpan) Kind() string         { return KindStopSpan }
func (TagSpan) Kind() string          { return KindTagSpan }
func (ApplicationEvent) Kind() string { return KindApplicationEvent }

// NewRegister builds the registration handshake for an application
func NewRegister(app, key string) *Register {
	return &Register{
		App:        app,
		Key:        key,
		Language:   Language,
		APIVersion: APIVersion,
	}
}

// NewMetadataEvent wraps application metadata in the handshake event
func NewMetadataEvent(value any, at time.Time) *ApplicationEvent {
	return &ApplicationEvent{
		Source:     Language,
		EventType:  EventTypeMetadata,
		EventValue: value,
		Timestamp:  FormatTime(at),
	}
}

// IsRegister reports whether m is a registration message
func IsRegister(m Message) bool {
	return m != nil && m.Kind() == KindRegister
}

// IsMetadata reports whether m is the application-metadata event
func IsMetadata(m Message) bool {
	switch ev := m.(type) {
	case *ApplicationEvent:
		return ev != nil && ev.EventType == EventTypeMetadata
	case ApplicationEvent:
		return ev.EventType == EventTypeMetadata
	default:
		return false
	}
}
