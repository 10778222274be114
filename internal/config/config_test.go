package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"SEGMENTER_MODE", "MIN_SEGMENT_LENGTH", "MAX_SEGMENT_LENGTH",
		"PUNCTUATION_MARKS", "SEGMENT_MODE", "REMOVE_SPEAKER_ID",
		"ENABLE_BACKPRESSURE", "AUDIO_BUFFER_LOW_WATER_MARK",
		"AUDIO_BUFFER_HIGH_WATER_MARK", "LOG_LEVEL", "KAFKA_ENABLED",
		"KAFKA_BROKERS",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults_Conference(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Mode != ModeConference {
		t.Errorf("expected default mode conference, got %s", cfg.Mode)
	}
	if cfg.MaxSegmentLength != 15 {
		t.Errorf("expected conference default max length 15, got %d", cfg.MaxSegmentLength)
	}
	if !cfg.RemoveSpeakerID {
		t.Error("expected REMOVE_SPEAKER_ID default true in conference mode")
	}
	if cfg.LowWaterMark != 30 || cfg.HighWaterMark != 60 {
		t.Errorf("unexpected watermark defaults: low=%v high=%v", cfg.LowWaterMark, cfg.HighWaterMark)
	}
}

func TestLoad_Defaults_Single(t *testing.T) {
	clearEnv(t)
	os.Setenv("SEGMENTER_MODE", "single")
	defer os.Unsetenv("SEGMENTER_MODE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxSegmentLength != 100 {
		t.Errorf("expected single-mode default max length 100, got %d", cfg.MaxSegmentLength)
	}
	if cfg.RemoveSpeakerID {
		t.Error("expected REMOVE_SPEAKER_ID default false in single mode")
	}
}

func TestLoad_UnknownMode(t *testing.T) {
	clearEnv(t)
	os.Setenv("SEGMENTER_MODE", "bogus")
	defer os.Unsetenv("SEGMENTER_MODE")

	if _, err := Load(); err == nil {
		t.Fatal("expected ConfigError for unknown mode")
	}
}

func TestLoad_InvertedWatermarks(t *testing.T) {
	clearEnv(t)
	os.Setenv("AUDIO_BUFFER_LOW_WATER_MARK", "70")
	os.Setenv("AUDIO_BUFFER_HIGH_WATER_MARK", "60")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected ConfigError for inverted watermarks")
	}
}

func TestLoad_NonNumericEnv(t *testing.T) {
	clearEnv(t)
	os.Setenv("MIN_SEGMENT_LENGTH", "not-a-number")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected ConfigError for unparseable MIN_SEGMENT_LENGTH")
	}
}

func TestLoad_PunctuationModeMergesFallbackMarks(t *testing.T) {
	clearEnv(t)
	os.Setenv("SEGMENT_MODE", "punctuation")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.PunctuationOnly {
		t.Error("expected PunctuationOnly true")
	}
	for _, r := range cfg.FallbackMarks {
		found := false
		for _, t2 := range cfg.Terminators {
			if t2 == r {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected fallback mark %q merged into terminators %q", r, cfg.Terminators)
		}
	}
}
