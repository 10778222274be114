// stsdsim publishes canned dispatch scenarios onto the ingress Kafka
// topics, for exercising a running dispatcher end to end without a real
// language model or audio player upstream.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mofa-org/stsd/internal/events"
)

// step is one simulated event: the logical port it targets, its payload,
// and how long to wait before sending it.
type step struct {
	port    string
	payload any
	delay   time.Duration
}

func text(participant, body string, status events.SessionStatus, qid *string) step {
	return step{
		port: participant,
		payload: events.ParticipantText{
			Participant:   participant,
			Text:          body,
			Status:        status,
			CorrelationID: qid,
		},
		delay: 100 * time.Millisecond,
	}
}

func ack(participant string) step {
	return step{
		port:    events.PortAudioComplete,
		payload: events.AudioComplete{Participant: participant},
		delay:   250 * time.Millisecond,
	}
}

func telemetry(fill float64) step {
	return step{
		port:    events.PortAudioBufferControl,
		payload: events.BufferTelemetry{FillPercent: fill},
		delay:   100 * time.Millisecond,
	}
}

func reset(qid *string) step {
	return step{
		port:    events.PortControl,
		payload: events.Control{Verb: events.VerbReset, CorrelationID: qid},
		delay:   100 * time.Millisecond,
	}
}

var scenarios = map[string][]step{
	// Single participant, single session, ack-paced.
	"single-session": {
		text("p1", "Hello there. This is ", events.StatusStarted, nil),
		text("p1", "a test! Final bit", "chunk", nil),
		text("p1", "", events.StatusEnded, nil),
		ack("p1"), ack("p1"), ack("p1"),
	},
	// Max-length flush: run with MAX_SEGMENT_LENGTH=15, SEGMENT_MODE=punctuation.
	"max-length": {
		text("p1", "abcdefg, hij, klmnop, qrs.", events.StatusStarted, nil),
		text("p1", "", events.StatusEnded, nil),
		ack("p1"), ack("p1"),
	},
	// Two participants, interleaved sessions; pA's session started first
	// and must be spoken first.
	"two-participants": {
		text("pA", "hello ", events.StatusStarted, nil),
		text("pB", "world ", events.StatusStarted, nil),
		text("pA", "there.", "chunk", nil),
		text("pB", "peace.", "chunk", nil),
		text("pA", "", events.StatusEnded, nil),
		text("pB", "", events.StatusEnded, nil),
		ack("pA"), ack("pB"),
	},
	// Backpressure pause above the high watermark, resume kick below the low.
	"backpressure": {
		text("pA", "One.", events.StatusStarted, nil),
		text("pA", "Two.", "chunk", nil),
		text("pA", "Three.", "chunk", nil),
		text("pA", "Four.", "chunk", nil),
		text("pA", "Five.", "chunk", nil),
		ack("pA"),
		telemetry(70),
		ack("pA"),
		telemetry(25),
		ack("pA"), ack("pA"), ack("pA"),
		text("pA", "", events.StatusEnded, nil),
		ack("pA"),
	},
	// Selective reset: question q2 supersedes q1 mid-stream.
	"selective-reset": {
		text("pA", "Old answer, first part. ", events.StatusStarted, strptr("q1")),
		text("pB", "Old aside. ", events.StatusStarted, strptr("q1")),
		text("pA", "New answer. ", "chunk", strptr("q2")),
		reset(strptr("q2")),
		text("pA", "", events.StatusEnded, strptr("q2")),
		ack("pA"),
	},
	// Punctuation-only chunk is filtered; only "Done." is spoken.
	"punctuation-only": {
		text("p1", "Done.", events.StatusStarted, nil),
		text("p1", "。。。", "chunk", nil),
		text("p1", "", events.StatusEnded, nil),
		ack("p1"),
	},
}

func strptr(s string) *string { return &s }

func main() {
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	scenario := flag.String("scenario", "single-session", "scenario to publish: single-session, max-length, two-participants, backpressure, selective-reset, punctuation-only")
	participantPrefix := flag.String("participant-prefix", "participant_", "participant topic prefix")
	controlTopic := flag.String("topic-control", "control", "control topic")
	ackTopic := flag.String("topic-audio-complete", "audio_complete", "audio_complete topic")
	bufferTopic := flag.String("topic-buffer", "audio_buffer_control", "audio_buffer_control topic")
	flag.Parse()

	steps, ok := scenarios[*scenario]
	if !ok {
		log.Fatalf("unknown scenario %q", *scenario)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(*brokers, ",")...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	defer writer.Close()

	topicFor := func(port string) string {
		switch port {
		case events.PortControl, events.PortReset:
			return *controlTopic
		case events.PortAudioComplete:
			return *ackTopic
		case events.PortAudioBufferControl:
			return *bufferTopic
		default:
			return *participantPrefix + port
		}
	}

	ctx := context.Background()
	log.Printf("publishing scenario %s to %s", *scenario, *brokers)

	for i, st := range steps {
		time.Sleep(st.delay)
		payload, err := json.Marshal(st.payload)
		if err != nil {
			log.Fatalf("step %d: marshal: %v", i, err)
		}
		topic := topicFor(st.port)
		log.Printf("step %d: %s <- %s", i, topic, payload)
		if err := writer.WriteMessages(ctx, kafka.Message{Topic: topic, Value: payload}); err != nil {
			log.Fatalf("step %d: write: %v", i, err)
		}
	}

	log.Printf("scenario %s complete (%d events)", *scenario, len(steps))
}
