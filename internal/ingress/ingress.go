// Package ingress implements the inbound demultiplexer: it classifies
// each inbound event by port name (the reserved ports "control", "reset",
// "audio_buffer_control", "audio_complete", or else a dynamically
// discovered participant text port) and decodes it into the typed events
// internal/scheduler consumes.
package ingress

import (
	"encoding/json"

	"github.com/mofa-org/stsd/internal/dispatchererrors"
	"github.com/mofa-org/stsd/internal/events"
	"github.com/mofa-org/stsd/internal/schema"
)

// RawEvent is one undecoded message observed on a port, before
// classification. Transport implementations (Kafka, an in-process channel
// for tests/simulation) produce these; Classify turns them into typed
// events.
type RawEvent struct {
	Port    string
	Payload []byte
}

// Classified is the result of demultiplexing one RawEvent: exactly one of
// the typed fields is non-nil, matching the port it arrived on.
type Classified struct {
	Port            string
	ParticipantText *events.ParticipantText
	AudioComplete   *events.AudioComplete
	BufferTelemetry *events.BufferTelemetry
	Control         *events.Control
}

// Source produces the single ordered event stream the dispatcher loop
// consumes. A Kafka-backed implementation may run several readers
// concurrently, but it must serialize their output onto this one channel
// before anything touches scheduler state.
type Source interface {
	Events() <-chan RawEvent
	Close() error
}

// Demuxer classifies and decodes RawEvents, validating each against the
// embedded JSON Schemas before it reaches the dispatcher loop.
type Demuxer struct {
	validator *schema.Validator
}

// NewDemuxer constructs a Demuxer backed by the embedded ingress schemas.
func NewDemuxer() *Demuxer {
	return &Demuxer{validator: schema.New()}
}

// Classify decodes a RawEvent purely by port name: reserved port names
// get their reserved shape; any other port name is a participant text
// port whose participant name equals the port name. A schema violation or
// undecodable payload is a dispatchererrors.ProtocolError; the event is
// dropped, never forwarded.
func (d *Demuxer) Classify(raw RawEvent) (Classified, error) {
	switch raw.Port {
	case events.PortControl, events.PortReset:
		if err := d.validator.Validate(schema.KindControl, raw.Payload); err != nil {
			return Classified{}, dispatchererrors.ProtocolError(raw.Port, err.Error())
		}
		var c events.Control
		if err := json.Unmarshal(raw.Payload, &c); err != nil {
			return Classified{}, dispatchererrors.ProtocolError(raw.Port, "malformed control payload: "+err.Error())
		}
		// "resume" on the reset port is ignored; scheduler.HandleControl
		// no-ops on events.VerbResume regardless of which port it arrived on.
		return Classified{Port: raw.Port, Control: &c}, nil

	case events.PortAudioComplete:
		if err := d.validator.Validate(schema.KindAudioComplete, raw.Payload); err != nil {
			return Classified{}, dispatchererrors.ProtocolError(raw.Port, err.Error())
		}
		var ac events.AudioComplete
		if err := json.Unmarshal(raw.Payload, &ac); err != nil {
			return Classified{}, dispatchererrors.ProtocolError(raw.Port, "malformed audio_complete payload: "+err.Error())
		}
		if ac.Participant == "" {
			return Classified{}, dispatchererrors.ProtocolError(raw.Port, "audio_complete missing participant")
		}
		return Classified{Port: raw.Port, AudioComplete: &ac}, nil

	case events.PortAudioBufferControl:
		if err := d.validator.Validate(schema.KindBufferTelemetry, raw.Payload); err != nil {
			return Classified{}, dispatchererrors.ProtocolError(raw.Port, err.Error())
		}
		var bt events.BufferTelemetry
		if err := json.Unmarshal(raw.Payload, &bt); err != nil {
			return Classified{}, dispatchererrors.ProtocolError(raw.Port, "malformed buffer telemetry payload: "+err.Error())
		}
		return Classified{Port: raw.Port, BufferTelemetry: &bt}, nil

	default:
		// Any other port name is a participant text port; the participant
		// name equals the port name.
		if err := d.validator.Validate(schema.KindParticipantText, raw.Payload); err != nil {
			return Classified{}, dispatchererrors.ProtocolError(raw.Port, err.Error())
		}
		var pt events.ParticipantText
		if err := json.Unmarshal(raw.Payload, &pt); err != nil {
			return Classified{}, dispatchererrors.ProtocolError(raw.Port, "malformed participant text payload: "+err.Error())
		}
		if pt.Participant == "" {
			pt.Participant = raw.Port
		}
		return Classified{Port: raw.Port, ParticipantText: &pt}, nil
	}
}

// ChannelSource is an in-process Source backed by a plain channel, used by
// cmd/stsd when Kafka is disabled and by dispatcher tests in place of a
// Kafka cluster. Publish is safe to call from any goroutine; the channel
// itself serializes published events into the single ordered stream.
type ChannelSource struct {
	ch     chan RawEvent
	closed bool
}

// NewChannelSource creates a ChannelSource with the given buffer size.
func NewChannelSource(buffer int) *ChannelSource {
	return &ChannelSource{ch: make(chan RawEvent, buffer)}
}

// Publish enqueues a RawEvent for Events to deliver.
func (s *ChannelSource) Publish(ev RawEvent) {
	s.ch <- ev
}

// Events returns the channel.
func (s *ChannelSource) Events() <-chan RawEvent { return s.ch }

// Close closes the underlying channel. Publish must not be called again
// after Close.
func (s *ChannelSource) Close() error {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}
