package egress

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/mofa-org/stsd/internal/config"
	"github.com/mofa-org/stsd/internal/events"
	"github.com/mofa-org/stsd/internal/logging"
	"github.com/mofa-org/stsd/internal/scheduler"
)

func capturingPublisher(logLevel string) (*Publisher, *[]kafka.Message) {
	var captured []kafka.Message
	p := &Publisher{
		segmentPrefix: "text_segment_",
		logTopic:      "log",
		logGate:       logging.Level(logLevel),
		write: func(_ context.Context, msgs ...kafka.Message) error {
			captured = append(captured, msgs...)
			return nil
		},
	}
	return p, &captured
}

func TestEmit_TopicAndPayload(t *testing.T) {
	p, captured := capturingPublisher("DEBUG")

	qid := "q-7"
	err := p.Emit(scheduler.OutboundSegment{
		Participant:   "alice",
		Text:          "Hello there.",
		SessionID:     "sess-1",
		CorrelationID: &qid,
		SessionStatus: events.StatusStarted,
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	if len(*captured) != 1 {
		t.Fatalf("expected 1 message, got %d", len(*captured))
	}
	msg := (*captured)[0]
	if msg.Topic != "text_segment_alice" {
		t.Errorf("expected topic text_segment_alice, got %q", msg.Topic)
	}
	if string(msg.Key) != "sess-1" {
		t.Errorf("expected key sess-1, got %q", msg.Key)
	}

	var out events.OutboundSegment
	if err := json.Unmarshal(msg.Value, &out); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if out.Text != "Hello there." || out.SessionID != "sess-1" || out.SessionStatus != events.StatusStarted {
		t.Errorf("unexpected payload: %+v", out)
	}
	if out.CorrelationID == nil || *out.CorrelationID != "q-7" {
		t.Errorf("expected question_id q-7 carried forward, got %v", out.CorrelationID)
	}
}

type staticVoices map[string]string

func (v staticVoices) VoiceFor(participant string) (string, error) {
	id, ok := v[participant]
	if !ok {
		return "", errNoVoice
	}
	return id, nil
}

var errNoVoice = errors.New("no voice registered")

func TestEmit_VoiceRouterHeader(t *testing.T) {
	p, captured := capturingPublisher("DEBUG")
	p.WithVoiceRouter(staticVoices{"alice": "en-US-warm-1"})

	if err := p.Emit(scheduler.OutboundSegment{Participant: "alice", Text: "Hi.", SessionID: "s1"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(*captured) != 1 {
		t.Fatalf("expected 1 message, got %d", len(*captured))
	}
	var voice string
	for _, h := range (*captured)[0].Headers {
		if h.Key == "voice" {
			voice = string(h.Value)
		}
	}
	if voice != "en-US-warm-1" {
		t.Errorf("expected voice header en-US-warm-1, got %q", voice)
	}
}

func TestEmit_VoiceResolutionFailureStillPublishes(t *testing.T) {
	p, captured := capturingPublisher("DEBUG")
	p.WithVoiceRouter(staticVoices{})

	if err := p.Emit(scheduler.OutboundSegment{Participant: "bob", Text: "Hi.", SessionID: "s1"}); err != nil {
		t.Fatalf("Emit should not fail on voice resolution: %v", err)
	}
	if len(*captured) != 1 {
		t.Fatalf("expected the segment published anyway, got %d messages", len(*captured))
	}
	for _, h := range (*captured)[0].Headers {
		if h.Key == "voice" {
			t.Errorf("expected no voice header, got %q", h.Value)
		}
	}
}

func TestLog_LevelGate(t *testing.T) {
	tests := []struct {
		name     string
		gate     string
		level    events.LogLevel
		expected int
	}{
		{"debug below info gate", "INFO", events.LevelDebug, 0},
		{"info at info gate", "INFO", events.LevelInfo, 1},
		{"error above warning gate", "WARNING", events.LevelError, 1},
		{"info below error gate", "ERROR", events.LevelInfo, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, captured := capturingPublisher(tt.gate)
			p.Log(tt.level, "something happened")
			if len(*captured) != tt.expected {
				t.Fatalf("expected %d messages, got %d", tt.expected, len(*captured))
			}
			if tt.expected == 1 {
				var rec events.LogRecord
				if err := json.Unmarshal((*captured)[0].Value, &rec); err != nil {
					t.Fatalf("unmarshal record: %v", err)
				}
				if rec.Node != "stsd" || rec.Level != tt.level || rec.Message != "something happened" {
					t.Errorf("unexpected record: %+v", rec)
				}
			}
		})
	}
}

func TestDisabledPublisher_EmitIsNoop(t *testing.T) {
	cfg := &config.Config{
		LogLevel: "INFO",
		Kafka:    config.KafkaConfig{Enabled: false, SegmentTopicPrefix: "text_segment_", LogTopic: "log"},
	}
	p := NewPublisher(cfg)
	if err := p.Emit(scheduler.OutboundSegment{Participant: "p1", Text: "Hi.", SessionID: "s"}); err != nil {
		t.Fatalf("log-only Emit should succeed: %v", err)
	}
	p.Log(events.LevelError, "dropped on the floor, not a panic")
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
