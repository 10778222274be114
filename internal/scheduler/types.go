// Package scheduler implements the session-FIFO scheduler, the
// backpressure gate, and the control handler: per-participant segment
// queues and session timelines, oldest-session-first election of the one
// active queue, acknowledgment-paced draining, and reset handling.
package scheduler

import (
	"time"

	"github.com/mofa-org/stsd/internal/events"
	"github.com/mofa-org/stsd/internal/segmenter"
)

// SessionMarker is the FIFO-ordering record for one session: the span from
// a SESSION_START to its SESSION_END on a single participant.
type SessionMarker struct {
	ID              string
	ArrivalTime     time.Time
	CorrelationID   *string
	Status          string
	Closed          bool // SESSION_END observed; current_session_id cleared
	firstSegmentOut bool // outbound status has already been marked "started"
	lifecycle       *sessionLifecycle
}

// Segment is a bounded, non-empty slice of text queued for one participant,
// tagged with the session it belongs to.
type Segment struct {
	Text          string
	SessionID     string
	IsSessionEnd  bool
	CorrelationID *string
	Status        string // the originating event's session_status, pass-through

	// Participant is the port the segment must be emitted on
	// (text_segment_<Participant>). It is redundant with the owning
	// queue's key in "single" and "conference" mode, but in "sequential"
	// mode every participant shares one queue, so each segment must carry
	// its own output routing independently of which queue it sits in.
	Participant string

	// marker is the owning SessionMarker, set by the scheduler at
	// enqueue time so emit() can decide the outbound session_status
	// without a second lookup.
	marker *SessionMarker
}

// Participant is a named logical speaker: its own input port, its own
// output port, and its own tail buffer, isolated from every other
// participant. Its queue and session timeline live on
// the scheduler's lane, which a participant shares with others only in
// "sequential" mode.
type Participant struct {
	Name             string
	CurrentSessionID string // "" when idle
	Sending          bool
	LastEndSent      bool
	TailBuffer       string

	// inFlightSessionID is the session id of the segment currently
	// sent-but-not-acknowledged (valid only while Sending is true). It lets
	// endSession retroactively recognize that the segment it would have
	// flagged is_session_end on was already dequeued for transmission
	// before SESSION_END arrived, instead of leaving the participant
	// active forever waiting on a last_end_sent that never gets set.
	inFlightSessionID string
}

// State is the process-lifetime scheduler state singleton.
type State struct {
	Active       string // "" when no participant is active
	BufferPaused bool
	Fill         float64
}

// OutboundSegment is what gets emitted on text_segment_<participant>.
type OutboundSegment struct {
	Participant   string
	Text          string
	SessionID     string
	CorrelationID *string
	SessionStatus events.SessionStatus // "started" on a session's first segment, "ended" on its last, else the inbound status
}

// Config carries the segmentation, mode, and backpressure settings the
// scheduler needs to run inline as events arrive.
type Config struct {
	Segmenter segmenter.Config

	// Sequential collapses every participant into one shared FIFO session
	// queue, the degenerate single-queue variant described for
	// SEGMENTER_MODE=sequential.
	Sequential bool

	// Passthrough disables the Segmentation Engine: SEGMENTER_MODE=passthrough
	// forwards each inbound chunk verbatim as its own segment (after speaker
	// prefix stripping, and still subject to the punctuation-only skip
	// filter) instead of accumulating a punctuation-bounded tail. Session
	// FIFO scheduling and backpressure still apply unchanged.
	Passthrough bool

	EnableBackpressure bool
	LowWaterMark       float64
	HighWaterMark      float64
}
