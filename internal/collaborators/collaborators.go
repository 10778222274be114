// Package collaborators declares typed interfaces for the external
// systems that surround the dispatcher: the upstream ASR that produces
// participant text, the TTS engines and audio player downstream, and the
// voice router between them. The dispatcher cuts and schedules text; it
// does not synthesize, recognize, or classify audio, so none of these is
// implemented here.
//
// A real deployment supplies concrete bindings (e.g. a gRPC TTS client, a
// cloud ASR streaming adapter) from a separate module. Within this repo
// the egress publisher consults an optional VoiceRouter; the remaining
// interfaces are the typed shapes an embedding process implements to run
// the pipeline in one binary instead of over a transport.
package collaborators

import "context"

// TextToSpeech synthesizes one bounded segment of text into audio for a
// participant's voice. The STSD never calls this directly; egress hands
// emitted segments to the external TTS engine over the
// text_segment_<participant> port. A process that embeds the STSD
// and the synthesis stack in one binary can implement this interface to
// skip the wire hop.
type TextToSpeech interface {
	Synthesize(ctx context.Context, participant, text string) (audio []byte, err error)
}

// SpeechRecognizer is the upstream ASR collaborator that produces the
// token-streamed utterances the STSD segments. Declared here only as the
// typed shape an embedding process would implement to feed participant
// text ports in-process instead of over a transport.
type SpeechRecognizer interface {
	Recognize(ctx context.Context, audio []byte) (transcript string, final bool, err error)
}

// AudioPlayer is the downstream playback collaborator that reports
// AudioComplete acknowledgments and BufferTelemetry fill percentages back
// to the STSD. Declared as the typed shape an embedding process
// implements; nothing in this repository calls it.
type AudioPlayer interface {
	Play(ctx context.Context, participant string, audio []byte) error
}

// VoiceRouter resolves a participant name to a synthesis voice id. A real
// deployment's voice-routing adapter implements this; the egress publisher
// consults it (when configured) to stamp each outbound segment with the
// voice the TTS consumer should use.
type VoiceRouter interface {
	VoiceFor(participant string) (voiceID string, err error)
}
