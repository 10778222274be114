package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mofa-org/stsd/internal/config"
	"github.com/mofa-org/stsd/internal/dispatcher"
	"github.com/mofa-org/stsd/internal/events"
	"github.com/mofa-org/stsd/internal/ingress"
	"github.com/mofa-org/stsd/internal/scheduler"
)

type sinkEmitter struct{}

func (sinkEmitter) Emit(scheduler.OutboundSegment) error { return nil }

func startDispatcher(t *testing.T) (*dispatcher.Dispatcher, *ingress.ChannelSource) {
	t.Helper()
	cfg := &config.Config{
		Mode:               config.ModeConference,
		MinSegmentLength:   5,
		MaxSegmentLength:   15,
		Terminators:        "。！？.!?",
		FallbackMarks:      "，,、；;：:",
		EnableBackpressure: true,
		LowWaterMark:       30,
		HighWaterMark:      60,
		LogLevel:           "INFO",
	}
	src := ingress.NewChannelSource(16)
	d := dispatcher.New(cfg, src, sinkEmitter{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = d.Run(ctx) }()
	return d, src
}

func TestLivenessAndReadiness(t *testing.T) {
	d, _ := startDispatcher(t)
	router := NewRouter(d)

	for _, path := range []string{"/v1/liveness", "/v1/readiness"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestStatusSnapshot(t *testing.T) {
	d, src := startDispatcher(t)
	router := NewRouter(d)

	payload, _ := json.Marshal(events.ParticipantText{
		Participant: "alice", Text: "Hello there.", Status: events.StatusStarted,
	})
	src.Publish(ingress.RawEvent{Port: "alice", Payload: payload})

	deadline := time.After(2 * time.Second)
	for {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var snap dispatcher.Snapshot
		if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
			t.Fatalf("unmarshal snapshot: %v", err)
		}
		if snap.Active == "alice" && len(snap.Participants) == 1 {
			if snap.Mode != config.ModeConference {
				t.Errorf("expected mode conference, got %q", snap.Mode)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("alice never became active: %+v", snap)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestControlReset(t *testing.T) {
	d, src := startDispatcher(t)
	router := NewRouter(d)

	payload, _ := json.Marshal(events.ParticipantText{
		Participant: "alice", Text: "Hello there.", Status: events.StatusStarted,
	})
	src.Publish(ingress.RawEvent{Port: "alice", Payload: payload})

	// Wait for the START to be processed so the reset observably undoes it.
	activeDeadline := time.After(2 * time.Second)
	for {
		snap, err := d.Status(context.Background())
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if snap.Active == "alice" {
			break
		}
		select {
		case <-activeDeadline:
			t.Fatalf("alice never became active: %+v", snap)
		case <-time.After(10 * time.Millisecond):
		}
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/control/reset", strings.NewReader(`{}`)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	deadline := time.After(2 * time.Second)
	for {
		snap, err := d.Status(context.Background())
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if snap.Active == "" {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("reset never took effect: %+v", snap)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestControlReset_MalformedBody(t *testing.T) {
	d, _ := startDispatcher(t)
	router := NewRouter(d)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/control/reset", strings.NewReader(`{not json`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
