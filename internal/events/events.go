// Package events defines the STSD's wire event types: the inbound ports
// (ParticipantText, AudioComplete, BufferTelemetry, Control) and the
// outbound ports (OutboundSegment, LogRecord). These are
// transport-agnostic JSON-tagged structs; internal/ingress and
// internal/egress (de)serialize them onto Kafka, and the dispatcher and
// httpapi tests build them directly and feed them through an in-process
// channel source without any broker.
package events

// Reserved port names. Any other port is a participant text port whose
// name equals the participant's name.
const (
	PortControl            = "control"
	PortReset              = "reset"
	PortAudioBufferControl = "audio_buffer_control"
	PortAudioComplete      = "audio_complete"
)

// SessionStatus is the metadata.status / session_status vocabulary shared
// by inbound ParticipantText and outbound OutboundSegment events.
type SessionStatus string

const (
	StatusStarted SessionStatus = "started"
	StatusEnded   SessionStatus = "ended"
)

// ParticipantText is an inbound text event on a participant port.
type ParticipantText struct {
	Participant   string        `json:"participant"`
	Text          string        `json:"text"`
	Status        SessionStatus `json:"session_status"`
	CorrelationID *string       `json:"question_id,omitempty"`
}

// AudioComplete is the downstream acknowledgment that a previously emitted
// segment has been accepted (and will be played).
type AudioComplete struct {
	Participant string `json:"participant"`
}

// BufferTelemetry carries the audio playback buffer's fill percentage.
type BufferTelemetry struct {
	FillPercent float64 `json:"buffer_percentage"`
}

// ControlVerb is the vocabulary accepted on the control/reset ports.
type ControlVerb string

const (
	VerbReset  ControlVerb = "reset"
	VerbCancel ControlVerb = "cancel"
	VerbResume ControlVerb = "resume" // accepted but ignored on the reset port
)

// Control is an inbound reset/cancel event. CorrelationID is nil for a
// global reset, set for a selective reset.
type Control struct {
	Verb          ControlVerb `json:"verb"`
	CorrelationID *string     `json:"question_id,omitempty"`
}

// OutboundSegment is emitted on text_segment_<participant>.
type OutboundSegment struct {
	Participant   string        `json:"-"`
	Text          string        `json:"text"`
	SessionID     string        `json:"session_id"`
	CorrelationID *string       `json:"question_id,omitempty"`
	SessionStatus SessionStatus `json:"session_status,omitempty"`
}

// LogLevel is the severity vocabulary of the "log" output port's JSON
// records.
type LogLevel string

const (
	LevelDebug   LogLevel = "DEBUG"
	LevelInfo    LogLevel = "INFO"
	LevelWarning LogLevel = "WARNING"
	LevelError   LogLevel = "ERROR"
)

// LogRecord is the JSON shape emitted on the "log" output port.
type LogRecord struct {
	Node    string   `json:"node"`
	Level   LogLevel `json:"level"`
	Message string   `json:"message"`
}
