package media

import (
	"net/url"
	"slices"
	"strings"
)

// Format is the kind of media the caller wants back.
type Format string

const (
	FormatVideo Format = "VIDEO"
	FormatAudio Format = "AUDIO"
	FormatImage Format = "IMAGE"
)

// DefaultQuality is used when a request leaves quality empty.
const DefaultQuality = "best"

var qualities = map[Format][]string{
	FormatVideo: {"best", "1080p", "720p", "480p", "360p", "worst"},
	FormatAudio: {"best", "320k", "256k", "192k", "128k", "worst"},
	FormatImage: {"best", "original"},
}

// The web UI historically sent container names instead of media kinds.
var formatAliases = map[string]Format{
	"MP4": FormatVideo,
	"MP3": FormatAudio,
}

// Formats lists the supported formats in a stable order.
func Formats() []Format {
	return []Format{FormatVideo, FormatAudio, FormatImage}
}

// Qualities returns the quality values accepted for f, or nil if f is not supported.
func Qualities(f Format) []string {
	q, ok := qualities[f]
	if !ok {
		return nil
	}

	return slices.Clone(q)
}

// ParseFormat normalizes a user supplied format name.
func ParseFormat(s string) (Format, bool) {
	name := strings.ToUpper(strings.TrimSpace(s))

	if f, ok := formatAliases[name]; ok {
		return f, true
	}

	f := Format(name)
	if _, ok := qualities[f]; !ok {
		return "", false
	}

	return f, true
}

// Request is the raw payload of a download call.
type Request struct {
	URL     string `json:"url"`
	Format  string `json:"format"`
	Quality string `json:"quality"`
}

// Validated is a Request that passed every check.
type Validated struct {
	URL     *url.URL
	Format  Format
	Quality string
}

// Validate checks the url, format and quality of r. It either returns a fully
// normalized request or a *ValidationError naming the first offending field.
func (r Request) Validate() (Validated, error) {
	u, err := ValidateURL(r.URL)
	if err != nil {
		return Validated{}, err
	}

	format, ok := ParseFormat(r.Format)
	if !ok {
		return Validated{}, &ValidationError{Field: "format", Value: r.Format}
	}

	quality := strings.ToLower(strings.TrimSpace(r.Quality))
	if quality == "" {
		quality = DefaultQuality
	}

	if !slices.Contains(qualities[format], quality) {
		return Validated{}, &ValidationError{Field: "quality", Value: r.Quality}
	}

	return Validated{URL: u, Format: format, Quality: quality}, nil
}

// ValidateURL accepts only absolute http(s) URLs with a host.
func ValidateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &ValidationError{Field: "url", Value: raw}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ValidationError{Field: "url", Value: raw, Err: err}
	}

	scheme := strings.ToLower(u.Scheme)
	if !u.IsAbs() || (scheme != "http" && scheme != "https") || u.Host == "" {
		return nil, &ValidationError{Field: "url", Value: raw}
	}

	return u, nil
}
