// Package schema validates inbound ingress events against embedded JSON
// Schemas before they reach the dispatcher loop. A payload that fails
// validation is dropped as a protocol error instead of reaching the
// scheduler with a half-decoded shape.
package schema

import (
	_ "embed"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/participant_text.json
var participantTextSchema string

//go:embed schemas/audio_complete.json
var audioCompleteSchema string

//go:embed schemas/buffer_telemetry.json
var bufferTelemetrySchema string

//go:embed schemas/control.json
var controlSchema string

// Kind identifies which embedded schema to validate a payload against.
type Kind int

const (
	KindParticipantText Kind = iota
	KindAudioComplete
	KindBufferTelemetry
	KindControl
)

// Validator validates raw JSON payloads against the STSD's event schemas.
type Validator struct {
	schemas map[Kind]*gojsonschema.Schema
}

// New compiles all embedded schemas. Compilation failure is a programmer
// error (a malformed embedded schema file), so New panics rather than
// returning an error a caller could plausibly ignore.
func New() *Validator {
	v := &Validator{schemas: make(map[Kind]*gojsonschema.Schema, 4)}
	v.mustCompile(KindParticipantText, participantTextSchema)
	v.mustCompile(KindAudioComplete, audioCompleteSchema)
	v.mustCompile(KindBufferTelemetry, bufferTelemetrySchema)
	v.mustCompile(KindControl, controlSchema)
	return v
}

func (v *Validator) mustCompile(kind Kind, raw string) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("schema: invalid embedded schema for kind %d: %v", kind, err))
	}
	v.schemas[kind] = schema
}

// Validate checks rawJSON against the schema for kind. A non-nil error
// means the payload is structurally invalid and the caller should treat it
// as a dispatchererrors.ProtocolError and drop the event.
func (v *Validator) Validate(kind Kind, rawJSON []byte) error {
	schema, ok := v.schemas[kind]
	if !ok {
		return fmt.Errorf("schema: unknown kind %d", kind)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(rawJSON))
	if err != nil {
		return fmt.Errorf("schema: validation failed: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("schema: %d violation(s): %s", len(result.Errors()), result.Errors()[0].String())
	}
	return nil
}
