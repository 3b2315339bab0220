package media

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// ValidationError is returned when a request is rejected before any extraction
// is attempted.
type ValidationError struct {
	Field string // "url", "format" or "quality"
	Value string // Offending value as received
	Err   error  // Underlying parse error, if any
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ExtractionKind classifies why the engine could not produce media.
type ExtractionKind string

const (
	KindUnsupported  ExtractionKind = "unsupported"
	KindAuthRequired ExtractionKind = "auth_required"
	KindNetwork      ExtractionKind = "network"
	KindNoMedia      ExtractionKind = "no_media"
	KindTimeout      ExtractionKind = "timeout"
	KindFailed       ExtractionKind = "failed"
)

// ExtractionError represents an engine failure. Kind drives the message shown to
// the caller; Err keeps the engine output for the server log.
type ExtractionError struct {
	Kind ExtractionKind
	URL  string
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed (%s) for %s: %v", e.Kind, e.URL, e.Err)
	}

	return fmt.Sprintf("extraction failed (%s) for %s", e.Kind, e.URL)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// OversizeError is returned when a produced file exceeds the configured limit.
type OversizeError struct {
	Size  int64
	Limit int64
}

func (e *OversizeError) Error() string {
	return fmt.Sprintf("file size %s exceeds the %s limit",
		humanize.IBytes(uint64(e.Size)), humanize.IBytes(uint64(e.Limit)))
}

// NotFoundError is returned for unknown, consumed or expired delivery handles.
type NotFoundError struct {
	Token string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("file %q not found or expired", e.Token)
}

// InternalError wraps unexpected failures. Its detail is logged, never shown.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error during %s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}
