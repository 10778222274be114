// Package dispatcher runs the STSD's single-threaded cooperative event
// loop: one goroutine consumes the totally-ordered event
// stream from internal/ingress, classifies each event, and drives the
// scheduler. All scheduler state is owned by this loop; out-of-band
// callers (the httpapi control surface) interact only by injecting events
// or requesting snapshots over channels serviced by the same loop.
package dispatcher

import (
	"context"
	"errors"

	"github.com/mofa-org/stsd/internal/config"
	"github.com/mofa-org/stsd/internal/dispatchererrors"
	"github.com/mofa-org/stsd/internal/events"
	"github.com/mofa-org/stsd/internal/ingress"
	"github.com/mofa-org/stsd/internal/logging"
	"github.com/mofa-org/stsd/internal/observability/metrics"
	"github.com/mofa-org/stsd/internal/scheduler"
	"github.com/mofa-org/stsd/internal/segmenter"
)

// LogPort is the "log" output port, fed by the loop as a side channel.
// internal/egress implements it; tests use a recorder.
type LogPort interface {
	Log(level events.LogLevel, message string)
}

// nopLogPort is used when New is given a nil log port (tests).
type nopLogPort struct{}

func (nopLogPort) Log(events.LogLevel, string) {}

// SchedulerConfig maps the loaded process configuration onto the
// scheduler's own config, resolving the SEGMENTER_MODE variants.
func SchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Segmenter: segmenter.Config{
			MinLength:          cfg.MinSegmentLength,
			MaxLength:          cfg.MaxSegmentLength,
			Terminators:        cfg.Terminators,
			FallbackMarks:      cfg.FallbackMarks,
			StripSpeakerPrefix: cfg.RemoveSpeakerID,
		},
		Sequential:         cfg.Mode == config.ModeSequential,
		Passthrough:        cfg.Mode == config.ModePassthrough,
		EnableBackpressure: cfg.EnableBackpressure,
		LowWaterMark:       cfg.LowWaterMark,
		HighWaterMark:      cfg.HighWaterMark,
	}
}

// ParticipantStatus is one participant's entry in a Snapshot.
type ParticipantStatus struct {
	Name             string `json:"name"`
	CurrentSessionID string `json:"currentSessionId,omitempty"`
	Sending          bool   `json:"sending"`
	TailBufferRunes  int    `json:"tailBufferRunes"`
}

// Snapshot is a point-in-time view of the scheduler, taken on the loop
// itself so it is always internally consistent.
type Snapshot struct {
	Mode         config.Mode         `json:"mode"`
	Active       string              `json:"active,omitempty"`
	BufferPaused bool                `json:"bufferPaused"`
	FillPercent  float64             `json:"fillPercent"`
	Participants []ParticipantStatus `json:"participants"`
}

type snapshotReq struct {
	reply chan Snapshot
}

// Dispatcher owns the event loop. Construct with New, then call Run from
// exactly one goroutine.
type Dispatcher struct {
	cfg     *config.Config
	demux   *ingress.Demuxer
	sched   *scheduler.Scheduler
	src     ingress.Source
	logPort LogPort
	m       *metrics.Metrics

	inject    chan ingress.RawEvent
	snapshots chan snapshotReq
}

// New wires a Dispatcher. emitter receives every outbound segment; pass
// the egress Publisher in production or a recorder in tests. logPort may
// be nil.
func New(cfg *config.Config, src ingress.Source, emitter scheduler.Emitter, logPort LogPort) *Dispatcher {
	if logPort == nil {
		logPort = nopLogPort{}
	}
	m := metrics.DefaultMetrics
	d := &Dispatcher{
		cfg:       cfg,
		demux:     ingress.NewDemuxer(),
		src:       src,
		logPort:   logPort,
		m:         m,
		inject:    make(chan ingress.RawEvent, 16),
		snapshots: make(chan snapshotReq),
	}
	d.sched = scheduler.New(SchedulerConfig(cfg), scheduler.NewIDGenerator(), &meteredEmitter{next: emitter, m: m})
	return d
}

// meteredEmitter records emission metrics around the real emitter.
type meteredEmitter struct {
	next scheduler.Emitter
	m    *metrics.Metrics
}

func (e *meteredEmitter) Emit(seg scheduler.OutboundSegment) error {
	if err := e.next.Emit(seg); err != nil {
		e.m.RecordEmitError("text_segment_" + seg.Participant)
		return err
	}
	e.m.RecordSegmentEmitted(seg.Participant, len([]rune(seg.Text)))
	return nil
}

// Inject feeds an out-of-band event (from the httpapi control surface or
// a test) into the loop. Safe to call from any goroutine.
func (d *Dispatcher) Inject(raw ingress.RawEvent) {
	d.inject <- raw
}

// Status requests a consistent snapshot from the loop. It blocks until
// the loop services the request or ctx is done.
func (d *Dispatcher) Status(ctx context.Context) (Snapshot, error) {
	req := snapshotReq{reply: make(chan Snapshot, 1)}
	select {
	case d.snapshots <- req:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-req.reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Run consumes events until the source closes (clean termination) or ctx
// is cancelled. It must be the only goroutine that ever touches the
// scheduler.
func (d *Dispatcher) Run(ctx context.Context) error {
	log := logging.WithComponent("dispatcher")
	log.Info().Str("mode", string(d.cfg.Mode)).Msg("event loop starting")

	for {
		select {
		case raw, ok := <-d.src.Events():
			if !ok {
				log.Info().Msg("event source closed, stopping")
				return nil
			}
			d.handle(raw)
		case raw := <-d.inject:
			d.handle(raw)
		case req := <-d.snapshots:
			req.reply <- d.snapshot()
		case <-ctx.Done():
			log.Info().Msg("context cancelled, stopping")
			return nil
		}
	}
}

func (d *Dispatcher) snapshot() Snapshot {
	state := d.sched.State()
	snap := Snapshot{
		Mode:         d.cfg.Mode,
		Active:       state.Active,
		BufferPaused: state.BufferPaused,
		FillPercent:  state.Fill,
	}
	for _, name := range d.sched.Participants() {
		p, ok := d.sched.Participant(name)
		if !ok {
			continue
		}
		snap.Participants = append(snap.Participants, ParticipantStatus{
			Name:             p.Name,
			CurrentSessionID: p.CurrentSessionID,
			Sending:          p.Sending,
			TailBufferRunes:  len([]rune(p.TailBuffer)),
		})
	}
	return snap
}

// handle processes one event to completion before the loop moves on;
// there is no concurrent handling.
func (d *Dispatcher) handle(raw ingress.RawEvent) {
	log := logging.WithComponent("dispatcher")
	d.m.RecordEvent(raw.Port)

	classified, err := d.demux.Classify(raw)
	if err != nil {
		d.dropProtocolError(raw.Port, err)
		return
	}

	switch {
	case classified.ParticipantText != nil:
		pt := classified.ParticipantText
		if pt.Status == events.StatusStarted {
			d.m.RecordSessionStarted(pt.Participant)
			d.logPort.Log(events.LevelInfo, "session started for "+pt.Participant)
		}
		if err := d.sched.HandleParticipantText(pt.Participant, pt.Text, pt.Status, pt.CorrelationID); err != nil {
			d.dropProtocolError(pt.Participant, err)
		}

	case classified.AudioComplete != nil:
		participant := classified.AudioComplete.Participant
		finishing := d.finalAckPending(participant)
		if err := d.sched.HandleAudioComplete(participant); err != nil {
			d.dropProtocolError(participant, err)
		} else if finishing {
			d.m.RecordSessionEnded(participant)
			d.logPort.Log(events.LevelInfo, "session completed for "+participant)
		}

	case classified.BufferTelemetry != nil:
		fill := classified.BufferTelemetry.FillPercent
		pausedBefore := d.sched.State().BufferPaused
		if err := d.sched.HandleBufferTelemetry(fill); err != nil {
			d.dropProtocolError(raw.Port, err)
			return
		}
		d.m.RecordBufferFill(fill)
		pausedAfter := d.sched.State().BufferPaused
		if !pausedBefore && pausedAfter {
			d.m.RecordBackpressurePause()
			d.logPort.Log(events.LevelWarning, "backpressure pause: buffer above high watermark")
		}
		if pausedBefore && !pausedAfter {
			d.m.RecordBackpressureResume()
			d.logPort.Log(events.LevelInfo, "backpressure resume: buffer below low watermark")
		}

	case classified.Control != nil:
		c := classified.Control
		if c.Verb == events.VerbResume {
			log.Debug().Msg("resume verb on reset port ignored")
			return
		}
		kind := "global"
		if c.CorrelationID != nil {
			kind = "selective"
		}
		if err := d.sched.HandleControl(c.Verb, c.CorrelationID); err != nil {
			d.dropProtocolError(raw.Port, err)
			return
		}
		d.m.RecordReset(kind)
		d.logPort.Log(events.LevelInfo, kind+" reset processed")
	}

	d.m.SetActive(d.sched.State().Active != "")
}

// finalAckPending reports whether the next AudioComplete for participant
// will retire a session (its final segment is in flight).
func (d *Dispatcher) finalAckPending(participant string) bool {
	p, ok := d.sched.Participant(participant)
	return ok && p.LastEndSent && d.sched.State().Active == participant
}

// dropProtocolError logs and counts a dropped event. Anything that is not
// actually a protocol error (unexpected internal failures) is still
// logged, just without the drop framing.
func (d *Dispatcher) dropProtocolError(subject string, err error) {
	log := logging.WithComponent("dispatcher")
	if errors.Is(err, dispatchererrors.ErrProtocol) {
		d.m.RecordProtocolError(subject)
		d.logPort.Log(events.LevelWarning, err.Error())
		log.Warn().Err(err).Str("subject", subject).Msg("event dropped")
		return
	}
	log.Error().Err(err).Str("subject", subject).Msg("event handling failed")
}
