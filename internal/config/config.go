// Package config loads the STSD's environment-style configuration: the
// segmentation, scheduling, and backpressure settings plus the ambient
// Kafka, observability, and HTTP wiring around them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/mofa-org/stsd/internal/dispatchererrors"
)

// Mode selects the top-level SEGMENTER_MODE variant.
type Mode string

const (
	ModeSingle      Mode = "single"
	ModeConference  Mode = "conference"
	ModePassthrough Mode = "passthrough"
	ModeSequential  Mode = "sequential"
)

// Config holds all STSD configuration. It is read once at startup and
// never reloaded.
type Config struct {
	Mode Mode

	MinSegmentLength int
	MaxSegmentLength int
	Terminators      string
	FallbackMarks    string
	PunctuationOnly  bool // SEGMENT_MODE == "punctuation": merge fallback marks into terminators
	RemoveSpeakerID  bool

	EnableBackpressure bool
	LowWaterMark       float64
	HighWaterMark      float64

	LogLevel string

	Kafka         KafkaConfig
	Observability ObservabilityConfig
	HTTP          HTTPConfig
}

// KafkaConfig carries the ingress/egress Kafka wiring.
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	// ControlTopic, ResetTopic, AudioCompleteTopic, and BufferTopic are the
	// reserved ingress ports. The scheduler discovers participants
	// dynamically, but the Kafka source reads only the participant topics
	// it is given up front (KAFKA_PARTICIPANTS in cmd/stsd).
	// ParticipantPrefix is prepended to a participant's name to form its
	// inbound topic; SegmentTopicPrefix does the same for its
	// text_segment_<participant> outbound topic.
	ControlTopic         string
	ResetTopic           string
	AudioCompleteTopic   string
	BufferTopic          string
	ParticipantPrefix    string
	SegmentTopicPrefix   string
	LogTopic             string
	ConsumerGroupID      string
}

// ObservabilityConfig carries the metrics server and log format settings.
type ObservabilityConfig struct {
	MetricsPort    string
	MetricsEnabled bool
	LogFormat      string // json, console
}

// HTTPConfig carries the chi control/debug surface's bind address.
type HTTPConfig struct {
	Addr string
}

// defaultPunctuationMarks covers the CJK and ASCII sentence terminators;
// defaultFallbackMarks holds the secondary marks in both widths.
const defaultPunctuationMarks = "。！？.!?"
const defaultFallbackMarks = "，,、；;：:"

// Load reads configuration from the environment (after loading a local
// .env file, if present, so local development doesn't require exporting
// every variable by hand). Returns a dispatchererrors.ErrConfig wrapped
// error for any fatal misconfiguration: unparseable numeric env, inverted
// watermarks, or an unknown mode.
func Load() (*Config, error) {
	_ = godotenv.Load()

	mode := Mode(envOrDefault("SEGMENTER_MODE", string(ModeConference)))
	switch mode {
	case ModeSingle, ModeConference, ModePassthrough, ModeSequential:
	default:
		return nil, dispatchererrors.ConfigError("SEGMENTER_MODE", fmt.Sprintf("unknown mode %q", mode))
	}

	maxDefault := 15
	removeSpeakerDefault := true
	if mode == ModeSingle {
		maxDefault = 100
		removeSpeakerDefault = false
	}

	minLen, err := envOrDefaultIntErr("MIN_SEGMENT_LENGTH", 5)
	if err != nil {
		return nil, err
	}
	if minLen < 1 {
		return nil, dispatchererrors.ConfigError("MIN_SEGMENT_LENGTH", "must be >= 1")
	}

	maxLen, err := envOrDefaultIntErr("MAX_SEGMENT_LENGTH", maxDefault)
	if err != nil {
		return nil, err
	}

	segMode := envOrDefault("SEGMENT_MODE", "sentence")
	punctuationOnly := segMode == "punctuation"

	low, err := envOrDefaultFloatErr("AUDIO_BUFFER_LOW_WATER_MARK", 30)
	if err != nil {
		return nil, err
	}
	high, err := envOrDefaultFloatErr("AUDIO_BUFFER_HIGH_WATER_MARK", 60)
	if err != nil {
		return nil, err
	}
	if high <= low {
		return nil, dispatchererrors.ConfigError("AUDIO_BUFFER_HIGH_WATER_MARK",
			fmt.Sprintf("must be greater than low watermark (%v <= %v)", high, low))
	}

	removeSpeaker, err := envOrDefaultBoolErr("REMOVE_SPEAKER_ID", removeSpeakerDefault)
	if err != nil {
		return nil, err
	}
	enableBP, err := envOrDefaultBoolErr("ENABLE_BACKPRESSURE", true)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Mode:                mode,
		MinSegmentLength:    minLen,
		MaxSegmentLength:    maxLen,
		Terminators:         envOrDefault("PUNCTUATION_MARKS", defaultPunctuationMarks),
		FallbackMarks:       defaultFallbackMarks,
		PunctuationOnly:     punctuationOnly,
		RemoveSpeakerID:     removeSpeaker,
		EnableBackpressure:  enableBP,
		LowWaterMark:        low,
		HighWaterMark:       high,
		LogLevel:            envOrDefault("LOG_LEVEL", "INFO"),
		Kafka: KafkaConfig{
			Enabled:            envOrDefault("KAFKA_ENABLED", "false") == "true",
			Brokers:            strings.Split(envOrDefault("KAFKA_BROKERS", "localhost:9092"), ","),
			ControlTopic:       envOrDefault("KAFKA_TOPIC_CONTROL", "control"),
			ResetTopic:         envOrDefault("KAFKA_TOPIC_RESET", "reset"),
			AudioCompleteTopic: envOrDefault("KAFKA_TOPIC_AUDIO_COMPLETE", "audio_complete"),
			BufferTopic:        envOrDefault("KAFKA_TOPIC_BUFFER_CONTROL", "audio_buffer_control"),
			ParticipantPrefix:  envOrDefault("KAFKA_PARTICIPANT_TOPIC_PREFIX", "participant_"),
			SegmentTopicPrefix: envOrDefault("KAFKA_SEGMENT_TOPIC_PREFIX", "text_segment_"),
			LogTopic:           envOrDefault("KAFKA_TOPIC_LOG", "log"),
			ConsumerGroupID:    envOrDefault("KAFKA_CONSUMER_GROUP", "stsd"),
		},
		Observability: ObservabilityConfig{
			MetricsPort:    envOrDefault("METRICS_PORT", "9090"),
			MetricsEnabled: envOrDefault("METRICS_ENABLED", "true") == "true",
			LogFormat:      envOrDefault("LOG_FORMAT", "json"),
		},
		HTTP: HTTPConfig{
			Addr: envOrDefault("HTTP_ADDR", ":8080"),
		},
	}

	if punctuationOnly {
		cfg.Terminators = mergeRunes(cfg.Terminators, cfg.FallbackMarks)
	}

	return cfg, nil
}

// mergeRunes appends any rune of extra not already present in base.
// SEGMENT_MODE=punctuation merges the fallback marks into the terminator
// set this way.
func mergeRunes(base, extra string) string {
	seen := make(map[rune]bool, len(base))
	for _, r := range base {
		seen[r] = true
	}
	var b strings.Builder
	b.WriteString(base)
	for _, r := range extra {
		if !seen[r] {
			b.WriteRune(r)
			seen[r] = true
		}
	}
	return b.String()
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultIntErr(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, dispatchererrors.ConfigError(key, fmt.Sprintf("not an integer: %q", v))
	}
	return i, nil
}

func envOrDefaultFloatErr(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, dispatchererrors.ConfigError(key, fmt.Sprintf("not a number: %q", v))
	}
	return f, nil
}

func envOrDefaultBoolErr(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, dispatchererrors.ConfigError(key, fmt.Sprintf("not a boolean: %q", v))
	}
	return b, nil
}
