package schema

import "testing"

func TestValidate_ParticipantText(t *testing.T) {
	v := New()

	valid := []byte(`{"participant":"pA","text":"hello","session_status":"started"}`)
	if err := v.Validate(KindParticipantText, valid); err != nil {
		t.Errorf("expected valid payload to pass, got %v", err)
	}

	missingParticipant := []byte(`{"text":"hello"}`)
	if err := v.Validate(KindParticipantText, missingParticipant); err == nil {
		t.Error("expected missing participant to fail validation")
	}
}

func TestValidate_AudioComplete(t *testing.T) {
	v := New()

	if err := v.Validate(KindAudioComplete, []byte(`{"participant":"pA"}`)); err != nil {
		t.Errorf("expected valid payload to pass, got %v", err)
	}
	if err := v.Validate(KindAudioComplete, []byte(`{}`)); err == nil {
		t.Error("expected missing participant to fail validation")
	}
}

func TestValidate_BufferTelemetry(t *testing.T) {
	v := New()

	if err := v.Validate(KindBufferTelemetry, []byte(`{"buffer_percentage":42.5}`)); err != nil {
		t.Errorf("expected valid payload to pass, got %v", err)
	}
	if err := v.Validate(KindBufferTelemetry, []byte(`{"buffer_percentage":"not-a-number"}`)); err == nil {
		t.Error("expected non-numeric fill percent to fail validation")
	}
	if err := v.Validate(KindBufferTelemetry, []byte(`{"buffer_percentage":150}`)); err == nil {
		t.Error("expected out-of-range fill percent to fail validation")
	}
}

func TestValidate_Control(t *testing.T) {
	v := New()

	if err := v.Validate(KindControl, []byte(`{"verb":"reset"}`)); err != nil {
		t.Errorf("expected valid payload to pass, got %v", err)
	}
	if err := v.Validate(KindControl, []byte(`{"verb":"explode"}`)); err == nil {
		t.Error("expected unknown verb to fail validation")
	}
}
