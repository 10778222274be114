package dispatchererrors

import "testing"

func TestCategoryPredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   func(error) bool
		want bool
	}{
		{"config matches IsConfig", ConfigError("MAX_SEGMENT_LENGTH", "not an int"), IsConfig, true},
		{"config does not match IsProtocol", ConfigError("MAX_SEGMENT_LENGTH", "not an int"), IsProtocol, false},
		{"protocol matches IsProtocol", ProtocolError("pA", "chunk with no session"), IsProtocol, true},
		{"transient matches IsTransientEmit", TransientEmitError("text_segment_pA", errErr), IsTransientEmit, true},
		{"skipped matches IsSkipped", Skipped("..."), IsSkipped, true},
		{"skipped does not match IsConfig", Skipped("..."), IsConfig, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.is(tt.err); got != tt.want {
				t.Errorf("got %v, want %v for %v", got, tt.want, tt.err)
			}
		})
	}
}

var errErr = errString("write deadline exceeded")

type errString string

func (e errString) Error() string { return string(e) }
