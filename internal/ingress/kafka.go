package ingress

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mofa-org/stsd/internal/config"
	"github.com/mofa-org/stsd/internal/events"
	"github.com/mofa-org/stsd/internal/logging"
)

// KafkaConfig carries everything a KafkaSource needs to subscribe to the
// reserved ports plus a fixed set of known participant topics.
// Participants are otherwise discovered dynamically, but a
// Kafka topic must exist before it can be read, so deployments declare the
// participant names they expect up front; any text event on a port not in
// this list is still accepted if its topic is added and the source is
// restarted.
type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string

	ControlTopic       string
	ResetTopic         string
	AudioCompleteTopic string
	BufferTopic        string

	// ParticipantTopics maps each known participant name to its inbound
	// topic (conventionally KAFKA_PARTICIPANT_TOPIC_PREFIX + name).
	ParticipantTopics map[string]string
}

// FromConfig builds a KafkaConfig from the STSD's loaded configuration and
// an explicit participant name list (participants are not self-describing
// in Kafka the way they are in the in-process test harness).
func FromConfig(cfg *config.Config, participants []string) KafkaConfig {
	kc := KafkaConfig{
		Brokers:            cfg.Kafka.Brokers,
		ConsumerGroup:      cfg.Kafka.ConsumerGroupID,
		ControlTopic:       cfg.Kafka.ControlTopic,
		ResetTopic:         cfg.Kafka.ResetTopic,
		AudioCompleteTopic: cfg.Kafka.AudioCompleteTopic,
		BufferTopic:        cfg.Kafka.BufferTopic,
		ParticipantTopics:  make(map[string]string, len(participants)),
	}
	for _, p := range participants {
		kc.ParticipantTopics[p] = cfg.Kafka.ParticipantPrefix + p
	}
	return kc
}

// KafkaSource runs one kafka.Reader per subscribed topic and fans their
// messages onto the single ordered channel internal/dispatcher consumes.
type KafkaSource struct {
	readers []*kafka.Reader
	out     chan RawEvent
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewKafkaSource starts consuming every reserved port plus every known
// participant topic in cfg.
func NewKafkaSource(cfg KafkaConfig) *KafkaSource {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
		Resolver:  &net.Resolver{PreferGo: true},
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &KafkaSource{
		out:    make(chan RawEvent, 256),
		cancel: cancel,
	}

	subscribe := func(port, topic string) {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.ConsumerGroup,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
			Dialer:   dialer,
		})
		s.readers = append(s.readers, r)
		s.wg.Add(1)
		go s.pump(ctx, r, port)
	}

	subscribe(events.PortControl, cfg.ControlTopic)
	subscribe(events.PortReset, cfg.ResetTopic)
	subscribe(events.PortAudioComplete, cfg.AudioCompleteTopic)
	subscribe(events.PortAudioBufferControl, cfg.BufferTopic)
	for participant, topic := range cfg.ParticipantTopics {
		subscribe(participant, topic)
	}

	return s
}

func (s *KafkaSource) pump(ctx context.Context, r *kafka.Reader, port string) {
	defer s.wg.Done()
	log := logging.WithComponent("ingress").With().Str("port", port).Logger()
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("kafka read error")
			time.Sleep(time.Second)
			continue
		}
		select {
		case s.out <- RawEvent{Port: port, Payload: msg.Value}:
		case <-ctx.Done():
			return
		}
	}
}

// Events returns the merged event channel.
func (s *KafkaSource) Events() <-chan RawEvent { return s.out }

// Close stops every reader and waits for their pump goroutines to exit.
func (s *KafkaSource) Close() error {
	s.cancel()
	s.wg.Wait()
	var firstErr error
	for _, r := range s.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	close(s.out)
	return firstErr
}
