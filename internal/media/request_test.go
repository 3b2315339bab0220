package media

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestValidate_URL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "https", url: "https://example.com/video.mp4"},
		{name: "http with query", url: "http://www.youtube.com/watch?v=abc"},
		{name: "uppercase scheme", url: "HTTPS://example.com/a"},
		{name: "surrounding spaces", url: "  https://example.com/a  "},
		{name: "empty", url: "", wantErr: true},
		{name: "blank", url: "   ", wantErr: true},
		{name: "ftp scheme", url: "ftp://example.com/file.mp4", wantErr: true},
		{name: "file scheme", url: "file:///etc/passwd", wantErr: true},
		{name: "relative", url: "/video.mp4", wantErr: true},
		{name: "no host", url: "https://", wantErr: true},
		{name: "javascript", url: "javascript:alert(1)", wantErr: true},
		{name: "garbage", url: "://nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Request{URL: tt.url, Format: "VIDEO", Quality: "best"}.Validate()
			if !tt.wantErr {
				require.NoError(t, err)

				return
			}

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "expected ValidationError, got %T", err)
			assert.Equal(t, "url", vErr.Field)
			assert.Equal(t, "invalid url", err.Error())
		})
	}
}

func TestRequestValidate_Format(t *testing.T) {
	tests := []struct {
		format string
		want   Format
		ok     bool
	}{
		{"VIDEO", FormatVideo, true},
		{"video", FormatVideo, true},
		{"Audio", FormatAudio, true},
		{"IMAGE", FormatImage, true},
		{"mp4", FormatVideo, true},
		{"MP3", FormatAudio, true},
		{"GIF", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			v, err := Request{URL: "https://example.com/x", Format: tt.format}.Validate()
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.want, v.Format)

				return
			}

			require.EqualError(t, err, "invalid format")
		})
	}
}

func TestRequestValidate_QualityPerFormat(t *testing.T) {
	for _, f := range Formats() {
		for _, q := range Qualities(f) {
			v, err := Request{URL: "https://example.com/x", Format: string(f), Quality: q}.Validate()
			require.NoError(t, err, "format %s quality %s", f, q)
			assert.Equal(t, q, v.Quality)
		}
	}

	rejected := []struct {
		format, quality string
	}{
		{"VIDEO", "4000k"},
		{"VIDEO", "320k"},
		{"VIDEO", "2160p"},
		{"AUDIO", "720p"},
		{"AUDIO", "64k"},
		{"IMAGE", "1080p"},
		{"IMAGE", "worst"},
	}

	for _, tt := range rejected {
		_, err := Request{URL: "https://example.com/x", Format: tt.format, Quality: tt.quality}.Validate()

		var vErr *ValidationError
		require.True(t, errors.As(err, &vErr), "%s/%s should be rejected", tt.format, tt.quality)
		assert.Equal(t, "quality", vErr.Field)
		assert.Equal(t, "invalid quality", err.Error())
	}
}

func TestRequestValidate_DefaultQuality(t *testing.T) {
	v, err := Request{URL: "https://example.com/x", Format: "AUDIO"}.Validate()
	require.NoError(t, err)
	assert.Equal(t, DefaultQuality, v.Quality)
}

func TestQualities_ReturnsCopy(t *testing.T) {
	q := Qualities(FormatImage)
	q[0] = "mutated"

	assert.Equal(t, "best", Qualities(FormatImage)[0])
	assert.Nil(t, Qualities("GIF"))
}
