package extractor

import (
	"errors"
	"net"
	"strings"

	"github.com/italolelis/media_downloader/internal/media"
)

// Patterns are matched against the lower-cased engine error text, in order.
var classifiers = []struct {
	kind     media.ExtractionKind
	patterns []string
}{
	{media.KindAuthRequired, []string{
		"sign in to confirm",
		"login required",
		"log in to",
		"requires authentication",
		"use --cookies",
		"private video",
		"this video is private",
		"members-only",
		"http error 401",
		"http error 403",
	}},
	{media.KindUnsupported, []string{
		"unsupported url",
		"no suitable extractor",
		"is not a valid url",
	}},
	{media.KindNoMedia, []string{
		"no video formats found",
		"requested format is not available",
		"there's no video",
		"no media found",
		"video unavailable",
		"http error 404",
		"http error 410",
	}},
	{media.KindNetwork, []string{
		"unable to download webpage",
		"unable to download video data",
		"connection refused",
		"connection reset",
		"no such host",
		"temporary failure in name resolution",
		"network is unreachable",
		"tls handshake",
		"timed out",
		"http error 5",
	}},
}

// Classify maps an engine failure to an extraction kind by inspecting its text.
func Classify(err error) media.ExtractionKind {
	if err == nil {
		return media.KindFailed
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return media.KindNetwork
	}

	msg := strings.ToLower(err.Error())

	for _, c := range classifiers {
		for _, p := range c.patterns {
			if strings.Contains(msg, p) {
				return c.kind
			}
		}
	}

	return media.KindFailed
}
