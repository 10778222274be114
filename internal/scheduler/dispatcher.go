package scheduler

import (
	"strings"
	"time"

	"github.com/mofa-org/stsd/internal/dispatchererrors"
	"github.com/mofa-org/stsd/internal/events"
	"github.com/mofa-org/stsd/internal/logging"
	"github.com/mofa-org/stsd/internal/segmenter"
)

// Emitter delivers a segment to its downstream text_segment_<participant>
// port. A non-nil error is treated as a transient emit failure: the
// segment stays logically in-flight and the Scheduler issues no retry of
// its own.
type Emitter interface {
	Emit(seg OutboundSegment) error
}

// lane is the FIFO unit an election competes over: one queue, one session
// timeline. In "single" and "conference" mode a lane belongs to exactly one
// participant. In "sequential" mode every participant shares the single
// lane keyed by sequentialLaneKey.
type lane struct {
	queue    []Segment
	sessions []*SessionMarker
}

const sequentialLaneKey = "*"

// Scheduler is the session-FIFO scheduler, backpressure gate, and control
// handler, run from a single goroutine. It holds no internal locking
// because nothing but the dispatcher loop ever calls it.
type Scheduler struct {
	cfg          Config
	idGen        IDGenerator
	emitter      Emitter
	now          func() time.Time
	participants map[string]*Participant
	lanes        map[string]*lane
	state        State
}

// New constructs a Scheduler. now defaults to time.Now, whose readings
// carry a monotonic component, so session arrival ordering survives
// wall-clock adjustment; tests may inject a deterministic now for
// reproducible election ordering.
func New(cfg Config, idGen IDGenerator, emitter Emitter) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		idGen:        idGen,
		emitter:      emitter,
		now:          time.Now,
		participants: make(map[string]*Participant),
		lanes:        make(map[string]*lane),
	}
}

// WithClock overrides the scheduler's clock, for deterministic tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// State returns a copy of the process-lifetime SchedulerState singleton.
func (s *Scheduler) State() State { return s.state }

// Participant returns a read-only snapshot of a participant's state, for
// the httpapi status endpoint. The zero value's Name is empty if unknown.
func (s *Scheduler) Participant(name string) (Participant, bool) {
	p, ok := s.participants[name]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// Participants lists every dynamically-discovered participant name.
func (s *Scheduler) Participants() []string {
	names := make([]string, 0, len(s.participants))
	for name := range s.participants {
		names = append(names, name)
	}
	return names
}

func (s *Scheduler) laneKey(participant string) string {
	if s.cfg.Sequential {
		return sequentialLaneKey
	}
	return participant
}

func (s *Scheduler) laneFor(participant string) *lane {
	key := s.laneKey(participant)
	l, ok := s.lanes[key]
	if !ok {
		l = &lane{}
		s.lanes[key] = l
	}
	return l
}

func (s *Scheduler) getOrCreate(participant string) *Participant {
	p, ok := s.participants[participant]
	if !ok {
		p = &Participant{Name: participant}
		s.participants[participant] = p
	}
	return p
}

// --- Inbound text handling ---

// HandleParticipantText processes an inbound ParticipantText event. status
// classifies it as SESSION_START, SESSION_CHUNK, or SESSION_END.
func (s *Scheduler) HandleParticipantText(participant, text string, status events.SessionStatus, correlationID *string) error {
	p := s.getOrCreate(participant)
	l := s.laneFor(participant)
	log := logging.WithComponent("scheduler").With().Str("participant", participant).Logger()

	switch status {
	case events.StatusStarted:
		id := s.idGen.NewSessionID()
		marker := &SessionMarker{
			ID:            id,
			ArrivalTime:   s.now(),
			CorrelationID: correlationID,
			Status:        string(status),
			lifecycle:     newSessionLifecycle(),
		}
		l.sessions = append(l.sessions, marker)
		p.CurrentSessionID = id
		log.Debug().Str("sessionId", id).Msg("session started")
		s.ingest(p, l, text, id, correlationID, string(status))
		s.elect()
		return nil

	case events.StatusEnded:
		if p.CurrentSessionID == "" {
			return dispatchererrors.ProtocolError(participant, "SESSION_END with no current session")
		}
		sessionID := p.CurrentSessionID
		s.ingest(p, l, text, sessionID, correlationID, string(status))
		s.endSession(p, l, sessionID)
		p.CurrentSessionID = ""
		log.Debug().Str("sessionId", sessionID).Msg("session ended")
		s.elect()
		return nil

	default:
		if p.CurrentSessionID == "" {
			return dispatchererrors.ProtocolError(participant, "text event with no current session and non-started status")
		}
		s.ingest(p, l, text, p.CurrentSessionID, correlationID, string(status))
		s.elect()
		return nil
	}
}

// ingest runs the segmentation engine over p's tail buffer and new text,
// enqueues non-skippable segments, and updates the tail buffer, discarding
// it outright if it is itself skippable, since standalone punctuation
// would otherwise wait forever for a terminator that never upgrades it.
func (s *Scheduler) ingest(p *Participant, l *lane, text, sessionID string, correlationID *string, status string) {
	marker := findMarker(l, sessionID)

	var segs []string
	var tailOut string
	if s.cfg.Passthrough {
		chunk := text
		if s.cfg.Segmenter.StripSpeakerPrefix {
			chunk = segmenter.StripSpeakerPrefix(chunk)
		}
		if strings.TrimSpace(chunk) != "" {
			segs = []string{chunk}
		}
		tailOut = ""
	} else {
		segs, tailOut = segmenter.Segment(p.TailBuffer, text, s.cfg.Segmenter)
	}

	for _, text := range segs {
		if segmenter.Skippable(text, s.cfg.Segmenter) {
			continue
		}
		l.queue = append(l.queue, Segment{
			Text:          text,
			SessionID:     sessionID,
			IsSessionEnd:  false,
			CorrelationID: correlationID,
			Status:        status,
			Participant:   p.Name,
			marker:        marker,
		})
	}
	if segmenter.Skippable(tailOut, s.cfg.Segmenter) {
		tailOut = ""
	}
	p.TailBuffer = tailOut
}

// endSession closes out a session: flush a non-skippable tail as a final
// segment, or else mark the last queued segment as the session end, or
// else, if the session's last segment is still in flight, let its
// AudioComplete retire the session; if p is active with nothing in
// flight, retire the session here and release p; otherwise leave the
// session to be popped empty-handed at election time.
func (s *Scheduler) endSession(p *Participant, l *lane, sessionID string) {
	marker := findMarker(l, sessionID)
	if p.TailBuffer != "" && !segmenter.Skippable(p.TailBuffer, s.cfg.Segmenter) {
		l.queue = append(l.queue, Segment{
			Text:         strings.TrimSpace(p.TailBuffer),
			SessionID:    sessionID,
			IsSessionEnd: true,
			Status:       string(events.StatusEnded),
			Participant:  p.Name,
			marker:       marker,
		})
	} else {
		// Flag the last queued segment belonging to this session. The queue
		// may also hold segments of an older, undrained session of this
		// participant, or (in sequential mode) another participant's
		// segments, so scanning from the back for a session match is
		// required rather than flagging the queue's tail outright.
		marked := false
		for i := len(l.queue) - 1; i >= 0; i-- {
			if l.queue[i].SessionID == sessionID {
				l.queue[i].IsSessionEnd = true
				marked = true
				break
			}
		}
		if !marked && p.Sending && p.inFlightSessionID == sessionID {
			// The session's only/last segment was already dequeued and sent
			// before this SESSION_END arrived. It cannot be re-tagged on the
			// wire, but the scheduler must still recognize its eventual
			// AudioComplete as the session's completion.
			p.LastEndSent = true
		} else if !marked && !p.Sending && s.state.Active == p.Name &&
			len(l.sessions) > 0 && l.sessions[0].ID == sessionID {
			// Every segment of the session was already sent and acknowledged
			// before SESSION_END arrived; no AudioComplete is coming, so the
			// session is retired now and the caller's elect runs a fresh
			// election.
			s.popSessionHead(l)
			s.state.Active = ""
		}
	}
	p.TailBuffer = ""

	if marker != nil {
		marker.Closed = true
	}
}

func findMarker(l *lane, sessionID string) *SessionMarker {
	for _, m := range l.sessions {
		if m.ID == sessionID {
			return m
		}
	}
	return nil
}

// nextSegmentIndex returns the index of the first queued segment belonging
// to the lane's head session, or -1. In "single" and "conference" mode
// this is index 0 whenever the head session has segments at all; in
// "sequential" mode another participant's later-session segments may sit
// ahead of the head session's in the shared queue, so a scan is needed to
// keep sessions from interleaving at the downstream.
func nextSegmentIndex(l *lane) int {
	if len(l.sessions) == 0 {
		return -1
	}
	id := l.sessions[0].ID
	for i, seg := range l.queue {
		if seg.SessionID == id {
			return i
		}
	}
	return -1
}

func (l *lane) takeAt(i int) Segment {
	seg := l.queue[i]
	l.queue = append(l.queue[:i], l.queue[i+1:]...)
	return seg
}

// --- Election ---

// elect, when a participant is already active, only kicks that
// participant (see kick) and returns. Otherwise it repeatedly picks the
// oldest-pending lane; lanes whose head session is closed and carries no
// queued segments are popped with no emission (the "Empty sessions" rule)
// until a lane with an actual segment to emit is found, or none remain.
func (s *Scheduler) elect() {
	if s.state.Active != "" {
		// The active participant may have drained its queue mid-session and
		// gone idle waiting for more input; newly ingested text restarts
		// emission the same way a backpressure resume does.
		s.kick()
		return
	}
	for {
		key, ok := s.pickLane()
		if !ok {
			return
		}
		l := s.lanes[key]
		idx := nextSegmentIndex(l)
		if idx < 0 {
			// Candidacy requires sessions[0].Closed when it has no queued
			// segments, so this session produced none at all.
			s.popSessionHead(l)
			continue
		}
		head := l.takeAt(idx)
		p := s.getOrCreate(head.Participant)
		s.state.Active = head.Participant
		p.Sending = true
		p.inFlightSessionID = head.SessionID
		if head.IsSessionEnd {
			p.LastEndSent = true
		}
		s.emit(head)
		return
	}
}

// pickLane implements the election algorithm: among lanes whose head
// session either has a queued segment or is closed (and therefore can be
// retired without one), pick the one whose head session's arrival
// timestamp is oldest; ties break by lane key ascending.
func (s *Scheduler) pickLane() (string, bool) {
	best := ""
	var bestTime time.Time
	found := false

	for key, l := range s.lanes {
		if len(l.sessions) == 0 {
			continue
		}
		if !l.sessions[0].Closed && nextSegmentIndex(l) < 0 {
			continue
		}
		t := l.sessions[0].ArrivalTime
		if !found || t.Before(bestTime) || (t.Equal(bestTime) && key < best) {
			best, bestTime, found = key, t, true
		}
	}
	return best, found
}

func (s *Scheduler) popSessionHead(l *lane) {
	if len(l.sessions) == 0 {
		return
	}
	if lc := l.sessions[0].lifecycle; lc != nil {
		_ = lc.activate() // no-op if already active; a never-activated empty session still completes cleanly
		_ = lc.complete()
	}
	l.sessions = l.sessions[1:]
}

// emit delivers seg downstream. A refused emit leaves all scheduler
// state exactly as it was set by the caller (segment logically in-flight)
// and is only logged.
func (s *Scheduler) emit(seg Segment) {
	out := OutboundSegment{
		Participant:   seg.Participant,
		Text:          seg.Text,
		SessionID:     seg.SessionID,
		CorrelationID: seg.CorrelationID,
	}
	if st := events.SessionStatus(seg.Status); st != events.StatusStarted && st != events.StatusEnded {
		out.SessionStatus = st
	}
	if m := seg.marker; m != nil {
		if !m.firstSegmentOut {
			out.SessionStatus = events.StatusStarted
			m.firstSegmentOut = true
		}
		if m.lifecycle != nil {
			_ = m.lifecycle.activate()
		}
	}
	if seg.IsSessionEnd {
		out.SessionStatus = events.StatusEnded
	}

	log := logging.WithComponent("scheduler").With().
		Str("participant", seg.Participant).
		Str("sessionId", seg.SessionID).
		Logger()

	if err := s.emitter.Emit(out); err != nil {
		wrapped := dispatchererrors.TransientEmitError("text_segment_"+seg.Participant, err)
		log.Warn().Err(wrapped).Msg("downstream emit refused; segment remains in-flight")
		return
	}
	log.Debug().Bool("isSessionEnd", seg.IsSessionEnd).Msg("segment emitted")
}

// --- Advancement ---

// HandleAudioComplete processes an acknowledgment from the downstream
// that the previously emitted segment for participant has been accepted.
func (s *Scheduler) HandleAudioComplete(participant string) error {
	if participant == "" {
		return dispatchererrors.ProtocolError("", "AudioComplete missing participant")
	}
	p, ok := s.participants[participant]
	if !ok || s.state.Active != participant {
		return nil // stale echo from a non-active participant; ignore
	}
	l := s.laneFor(participant)

	if p.LastEndSent {
		s.popSessionHead(l)
		p.LastEndSent = false
		p.Sending = false
		s.state.Active = ""
		s.elect()
		return nil
	}

	if s.state.BufferPaused {
		p.Sending = false
		return nil
	}

	idx := nextSegmentIndex(l)
	if idx < 0 {
		p.Sending = false
		return nil
	}

	head := l.takeAt(idx)
	p.inFlightSessionID = head.SessionID
	if head.IsSessionEnd {
		p.LastEndSent = true
	}
	s.emit(head)
	return nil
}

// --- Backpressure gate ---

// HandleBufferTelemetry updates the observed buffer fill and toggles
// buffer_paused with hysteresis. A drop below the low watermark performs
// at most one "immediate resume kick" emission.
func (s *Scheduler) HandleBufferTelemetry(fillPercent float64) error {
	s.state.Fill = fillPercent
	if !s.cfg.EnableBackpressure {
		return nil
	}

	if fillPercent > s.cfg.HighWaterMark && !s.state.BufferPaused {
		s.state.BufferPaused = true
		return nil
	}

	if fillPercent < s.cfg.LowWaterMark && s.state.BufferPaused {
		s.state.BufferPaused = false
		s.kick()
	}
	return nil
}

// kick restarts a stalled emission (after a pause lifts, or when new text
// arrives for an active participant that drained its queue): if there is
// an active participant with a queued head-session segment and nothing
// currently in flight, emit right away rather than waiting for the next
// (nonexistent) AudioComplete.
func (s *Scheduler) kick() {
	if s.state.Active == "" || s.state.BufferPaused {
		return
	}
	p := s.participants[s.state.Active]
	if p == nil || p.Sending {
		return
	}
	l := s.laneFor(s.state.Active)
	idx := nextSegmentIndex(l)
	if idx < 0 {
		return
	}
	head := l.takeAt(idx)
	p.Sending = true
	p.inFlightSessionID = head.SessionID
	if head.IsSessionEnd {
		p.LastEndSent = true
	}
	s.emit(head)
}

// --- Control handler ---

// HandleControl processes a reset/cancel event. verb "resume" on the
// reset port is a no-op.
func (s *Scheduler) HandleControl(verb events.ControlVerb, correlationID *string) error {
	if verb == events.VerbResume {
		return nil
	}

	if correlationID == nil {
		s.globalReset()
		return nil
	}
	s.selectiveReset(*correlationID)
	return nil
}

func (s *Scheduler) globalReset() {
	for _, p := range s.participants {
		p.TailBuffer = ""
		p.Sending = false
		p.LastEndSent = false
		p.CurrentSessionID = ""
	}
	for _, l := range s.lanes {
		l.queue = nil
		l.sessions = nil
	}
	s.state.Active = ""
	s.state.BufferPaused = false
	s.state.Fill = 0
}

func (s *Scheduler) selectiveReset(correlationID string) {
	for name, p := range s.participants {
		l := s.laneFor(name)
		kept := l.queue[:0]
		discarded := false
		for _, seg := range l.queue {
			if seg.CorrelationID == nil || *seg.CorrelationID == correlationID {
				kept = append(kept, seg)
			} else {
				discarded = true
			}
		}
		l.queue = kept
		if discarded {
			p.TailBuffer = ""
			p.Sending = false
		}
	}
	s.state.Active = ""
	s.state.BufferPaused = false
}
