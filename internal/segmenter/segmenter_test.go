package segmenter

import (
	"reflect"
	"testing"
)

func TestSegment_SingleChunkPunctuation(t *testing.T) {
	cfg := DefaultConfig()
	segs, tail := Segment("", "Hello there. This is a test.", cfg)
	// Both runs fit under the 100-rune cap, so they accumulate into one
	// segment; runs are trimmed before they are joined.
	want := []string{"Hello there.This is a test."}
	if !reflect.DeepEqual(segs, want) {
		t.Errorf("segs = %#v, want %#v", segs, want)
	}
	if tail != "" {
		t.Errorf("tail = %q, want empty", tail)
	}
}

// A tail
// crossing a chunk boundary must rejoin at the word boundary the original
// text had, not fuse "is" and "a" together.
func TestSegment_TailCarriesAcrossChunkBoundary(t *testing.T) {
	cfg := DefaultConfig()

	segs1, tail1 := Segment("", "Hello there. This is ", cfg)
	if want := []string{"Hello there."}; !reflect.DeepEqual(segs1, want) {
		t.Fatalf("segs1 = %#v, want %#v", segs1, want)
	}
	if tail1 != "This is " {
		t.Fatalf("tail1 = %q, want %q", tail1, "This is ")
	}

	segs2, tail2 := Segment(tail1, "a test! Final bit", cfg)
	if want := []string{"This is a test!"}; !reflect.DeepEqual(segs2, want) {
		t.Fatalf("segs2 = %#v, want %#v", segs2, want)
	}
	if tail2 != "Final bit" {
		t.Fatalf("tail2 = %q, want %q", tail2, "Final bit")
	}
}

func TestSegment_MaxLengthFlush(t *testing.T) {
	// Punctuation mode merges comma into the terminator set.
	cfg := ConferenceDefaultConfig()
	cfg.MaxLength = 15
	cfg.Terminators = "。！？.!?，,、；:："

	segs, tail := Segment("", "abcdefg, hij, klmnop, qrs.", cfg)
	// The accumulator never exceeds 15 runes per flushed segment, and a
	// run is never split mid-word: "abcdefg,hij," (12) then "klmnop,qrs."
	// (11). Each candidate merge is accepted while it still fits under
	// the cap, so the boundary lands after the second run, not the first.
	want := []string{"abcdefg,hij,", "klmnop,qrs."}
	if !reflect.DeepEqual(segs, want) {
		t.Errorf("segs = %#v, want %#v", segs, want)
	}
	if tail != "" {
		t.Errorf("tail = %q, want empty", tail)
	}
}

func TestSegment_OversizedIndivisibleRunEmittedWhole(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLength = 5
	segs, _ := Segment("", "thisrunhasnointernalbreak.", cfg)
	want := []string{"thisrunhasnointernalbreak."}
	if !reflect.DeepEqual(segs, want) {
		t.Errorf("segs = %#v, want %#v", segs, want)
	}
}

func TestSegment_EmptyInput(t *testing.T) {
	cfg := DefaultConfig()
	segs, tail := Segment("", "", cfg)
	if segs != nil {
		t.Errorf("segs = %#v, want nil", segs)
	}
	if tail != "" {
		t.Errorf("tail = %q, want empty", tail)
	}
}

func TestSegment_NoTerminatorsBuffersWholeText(t *testing.T) {
	cfg := DefaultConfig()
	segs, tail := Segment("", "no terminator in sight", cfg)
	if len(segs) != 0 {
		t.Errorf("segs = %#v, want none", segs)
	}
	if tail != "no terminator in sight" {
		t.Errorf("tail = %q, want %q", tail, "no terminator in sight")
	}
}

// A chunk consisting solely of repeated terminators: each terminator
// closes a run on its own (a run needs no non-terminator rune), the runs
// accumulate into one punctuation-only segment that the caller's
// Skippable filter drops, and the residual is empty, hence skippable too.
func TestSegment_StandalonePunctuationYieldsSkippableResidual(t *testing.T) {
	cfg := DefaultConfig()
	segs, tail := Segment("", "。。。", cfg)
	if want := []string{"。。。"}; !reflect.DeepEqual(segs, want) {
		t.Errorf("segs = %#v, want %#v", segs, want)
	}
	for _, s := range segs {
		if !Skippable(s, cfg) {
			t.Errorf("segment %q should be skippable", s)
		}
	}
	if !Skippable(tail, cfg) {
		t.Errorf("residual %q should be skippable", tail)
	}
}

func TestStripSpeakerPrefix(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bracketed prefix stripped", "[Tutor] Hello there.", "Hello there."},
		{"no prefix left alone", "Hello there.", "Hello there."},
		{"only leading prefix removed", "a [b] c", "a [b] c"},
		{"CJK speaker name", "[孙老师] 你好。", "你好。"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripSpeakerPrefix(tt.in); got != tt.want {
				t.Errorf("StripSpeakerPrefix(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSkippable(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"punctuation only", "。！？", true},
		{"digits and punctuation", "123.", true},
		{"real content", "hello", false},
		{"mixed content with punctuation", "a.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Skippable(tt.text, cfg); got != tt.want {
				t.Errorf("Skippable(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
