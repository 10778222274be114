// Package dispatchererrors implements the dispatcher's error taxonomy: the
// four outcomes an event can produce (fatal config failure, a dropped
// protocol violation, a preserved-state emit failure, and an informational
// skip) as typed, wrapped errors rather than ad-hoc strings.
package dispatchererrors

import (
	"errors"
	"fmt"
)

// Sentinel causes. Wrap these with fmt.Errorf("%w: ...", Err...) so callers
// can still errors.Is against the category while keeping a specific message.
var (
	// ErrConfig marks a fatal startup misconfiguration: unparseable numeric
	// env, inverted watermarks, an unknown segmenter mode.
	ErrConfig = errors.New("config error")

	// ErrProtocol marks an inbound event that violates the session
	// protocol: a chunk with no prior SESSION_START, an AudioComplete with
	// no participant, buffer telemetry that isn't numeric.
	ErrProtocol = errors.New("protocol error")

	// ErrTransientEmit marks a downstream emit the transport refused.
	// State is preserved; the segment remains logically in-flight and the
	// STSD issues no retry of its own.
	ErrTransientEmit = errors.New("transient emit error")

	// ErrSkipped is not a failure. It marks a segment the punctuation-only
	// filter dropped before it ever reached a queue.
	ErrSkipped = errors.New("segment skipped")
)

// ConfigError wraps ErrConfig with the offending key and the reason.
func ConfigError(key, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrConfig, key, reason)
}

// ProtocolError wraps ErrProtocol with the offending port/participant.
func ProtocolError(participant, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrProtocol, participant, reason)
}

// TransientEmitError wraps ErrTransientEmit with the port that refused.
func TransientEmitError(port string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrTransientEmit, port, cause)
}

// Skipped wraps ErrSkipped with the text that was filtered.
func Skipped(text string) error {
	return fmt.Errorf("%w: %q", ErrSkipped, text)
}

// IsConfig reports whether err is (or wraps) a ConfigError.
func IsConfig(err error) bool { return errors.Is(err, ErrConfig) }

// IsProtocol reports whether err is (or wraps) a ProtocolError.
func IsProtocol(err error) bool { return errors.Is(err, ErrProtocol) }

// IsTransientEmit reports whether err is (or wraps) a TransientEmitError.
func IsTransientEmit(err error) bool { return errors.Is(err, ErrTransientEmit) }

// IsSkipped reports whether err is (or wraps) a Skipped notice.
func IsSkipped(err error) bool { return errors.Is(err, ErrSkipped) }
