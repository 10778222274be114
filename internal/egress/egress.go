// Package egress publishes the STSD's two output ports: the
// text_segment_<participant> segment stream and the level-gated "log"
// record stream. With Kafka disabled it degrades to log-only mode so
// local runs don't need a broker.
package egress

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mofa-org/stsd/internal/collaborators"
	"github.com/mofa-org/stsd/internal/config"
	"github.com/mofa-org/stsd/internal/events"
	"github.com/mofa-org/stsd/internal/logging"
	"github.com/mofa-org/stsd/internal/scheduler"
)

// node identifies this process in LogRecord.Node.
const node = "stsd"

// Publisher writes outbound segments and log records to Kafka. When Kafka
// is disabled it degrades to log-only mode: segments reach the process
// logs at debug level, "log" port records are dropped, and nothing
// reaches a broker. It implements scheduler.Emitter.
type Publisher struct {
	writer        *kafka.Writer
	segmentPrefix string
	logTopic      string

	// logGate is the numeric LOG_LEVEL threshold for the "log" output
	// port. It is independent of zerolog's own level: the ambient logger
	// is always on, the port is gated.
	logGate int

	// voices, when set, resolves a participant name to a synthesis voice
	// id stamped on each outbound message, so the TTS consumer doesn't
	// need its own name-to-voice table.
	voices collaborators.VoiceRouter

	// write is the message sink, split out from the kafka.Writer so tests
	// can capture messages without a broker.
	write func(ctx context.Context, msgs ...kafka.Message) error
}

// NewPublisher builds a Publisher from the loaded configuration. With
// Kafka disabled it returns a log-only Publisher.
func NewPublisher(cfg *config.Config) *Publisher {
	p := &Publisher{
		segmentPrefix: cfg.Kafka.SegmentTopicPrefix,
		logTopic:      cfg.Kafka.LogTopic,
		logGate:       logging.Level(cfg.LogLevel),
	}

	log := logging.WithComponent("egress")
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) == 0 {
		log.Info().Msg("kafka disabled, using log-only mode")
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
		Resolver:  &net.Resolver{PreferGo: true},
	}

	// One topic-less writer; each message carries its own destination so a
	// single connection pool serves every text_segment_<participant> topic
	// plus the log topic.
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport: &kafka.Transport{
			Dial: dialer.DialFunc,
		},
	}
	p.write = p.writer.WriteMessages

	log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("segmentPrefix", p.segmentPrefix).Msg("kafka enabled")
	return p
}

// WithVoiceRouter attaches a voice router consulted on each Emit. The
// resolved voice id rides as a message header; a resolution failure is
// logged and the segment is published without one.
func (p *Publisher) WithVoiceRouter(r collaborators.VoiceRouter) *Publisher {
	p.voices = r
	return p
}

// Emit publishes one segment to text_segment_<participant>. A write
// failure is returned to the scheduler, which treats it as a
// TransientEmitError: the segment stays logically in-flight and no retry
// is issued here.
func (p *Publisher) Emit(seg scheduler.OutboundSegment) error {
	out := events.OutboundSegment{
		Participant:   seg.Participant,
		Text:          seg.Text,
		SessionID:     seg.SessionID,
		CorrelationID: seg.CorrelationID,
		SessionStatus: seg.SessionStatus,
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return err
	}

	log := logging.WithSession(seg.Participant, seg.SessionID)
	topic := p.segmentPrefix + seg.Participant
	log.Debug().Str("topic", topic).Str("text", seg.Text).Msg("publishing segment")

	headers := []kafka.Header{
		{Key: "participant", Value: []byte(seg.Participant)},
	}
	if p.voices != nil {
		voiceID, err := p.voices.VoiceFor(seg.Participant)
		if err != nil {
			log.Warn().Err(err).Msg("voice resolution failed, publishing without a voice id")
		} else {
			headers = append(headers, kafka.Header{Key: "voice", Value: []byte(voiceID)})
		}
	}

	if p.write == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return p.write(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(seg.SessionID),
		Value:   payload,
		Headers: headers,
	})
}

// Log publishes one record on the "log" output port, provided its level
// clears the configured LOG_LEVEL gate. Failures are swallowed after
// local logging: the log port is a side channel and must never block or
// reorder event processing.
func (p *Publisher) Log(level events.LogLevel, message string) {
	if logging.Level(string(level)) < p.logGate {
		return
	}
	record := events.LogRecord{Node: node, Level: level, Message: message}
	payload, err := json.Marshal(record)
	if err != nil {
		return
	}
	if p.write == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.write(ctx, kafka.Message{Topic: p.logTopic, Value: payload}); err != nil {
		log := logging.WithComponent("egress")
		log.Warn().Err(err).Msg("log port publish failed")
	}
}

// Close closes the underlying Kafka writer, if any.
func (p *Publisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
