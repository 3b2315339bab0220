package media

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Field: "quality", Value: "4000k"}

	if got, want := err.Error(), "invalid quality"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestExtractionError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ExtractionError
		want string
	}{
		{
			name: "with cause",
			err:  &ExtractionError{Kind: KindAuthRequired, URL: "https://x.test/p/1", Err: errors.New("login required")},
			want: "extraction failed (auth_required) for https://x.test/p/1: login required",
		},
		{
			name: "without cause",
			err:  &ExtractionError{Kind: KindNoMedia, URL: "https://x.test/p/1"},
			want: "extraction failed (no_media) for https://x.test/p/1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOversizeError_Error(t *testing.T) {
	err := &OversizeError{Size: 600 * 1024 * 1024, Limit: 500 * 1024 * 1024}

	if got, want := err.Error(), "file size 600 MiB exceeds the 500 MiB limit"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrors_UnwrapThroughWrapping(t *testing.T) {
	cause := errors.New("exit status 1")

	tests := []struct {
		name   string
		err    error
		target any
	}{
		{"validation", fmt.Errorf("validate: %w", &ValidationError{Field: "url"}), new(*ValidationError)},
		{"extraction", fmt.Errorf("invoke: %w", &ExtractionError{Kind: KindNetwork, Err: cause}), new(*ExtractionError)},
		{"oversize", fmt.Errorf("register: %w", &OversizeError{Size: 2, Limit: 1}), new(*OversizeError)},
		{"not found", fmt.Errorf("claim: %w", &NotFoundError{Token: "t"}), new(*NotFoundError)},
		{"internal", fmt.Errorf("register: %w", &InternalError{Op: "rename", Err: cause}), new(*InternalError)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.As(tt.err, tt.target) {
				t.Errorf("errors.As failed for %T", tt.target)
			}
		})
	}

	if !errors.Is(&ExtractionError{Err: cause}, cause) {
		t.Error("ExtractionError should unwrap to its cause")
	}

	if !errors.Is(&InternalError{Err: cause}, cause) {
		t.Error("InternalError should unwrap to its cause")
	}
}
