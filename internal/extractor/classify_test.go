package extractor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/italolelis/media_downloader/internal/media"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want media.ExtractionKind
	}{
		{"ERROR: [youtube] abc: Sign in to confirm your age", media.KindAuthRequired},
		{"ERROR: [instagram] xyz: login required to access this post", media.KindAuthRequired},
		{"ERROR: This video is private", media.KindAuthRequired},
		{"ERROR: unable to download: HTTP Error 403: Forbidden", media.KindAuthRequired},
		{"ERROR: Unsupported URL: https://example.com/page", media.KindUnsupported},
		{"ERROR: [twitter] 123: No video formats found!", media.KindNoMedia},
		{"ERROR: Requested format is not available", media.KindNoMedia},
		{"ERROR: Video unavailable", media.KindNoMedia},
		{"ERROR: Unable to download webpage: <urlopen error [Errno -2] Name or service not known>", media.KindNetwork},
		{"ERROR: connection reset by peer", media.KindNetwork},
		{"ERROR: HTTP Error 503: Service Unavailable", media.KindNetwork},
		{"exit status 1", media.KindFailed},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(errors.New(tt.msg)))
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	assert.Equal(t, media.KindFailed, Classify(nil))
}
