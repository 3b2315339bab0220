package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/italolelis/media_downloader/internal/logctx"
	"github.com/italolelis/media_downloader/internal/media"
	"github.com/italolelis/media_downloader/internal/progress"
)

// progressInterval is the number of bytes between progress log lines.
const progressInterval = 8 << 20

var directExtensions = map[media.Format][]string{
	media.FormatVideo: {".mp4"},
	media.FormatAudio: {".mp3"},
	media.FormatImage: {".jpg", ".jpeg", ".png", ".webp", ".gif"},
}

// DirectEngine fetches URLs that already point at a media file in the
// requested container, so no conversion is needed.
type DirectEngine struct {
	client   *http.Client
	maxBytes int64
}

// NewDirectEngine creates a DirectEngine. At most maxBytes+1 bytes are written,
// which is enough for the registry to detect an oversize file.
func NewDirectEngine(maxBytes int64) *DirectEngine {
	return &DirectEngine{
		client:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		maxBytes: maxBytes,
	}
}

func (e *DirectEngine) Name() string {
	return "direct"
}

// Supports reports whether u ends in an extension that matches opts. Empty
// options (probing) accept any known media extension.
func (e *DirectEngine) Supports(u *url.URL, opts media.Options) bool {
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" {
		return false
	}

	if opts.Format == "" {
		for _, exts := range directExtensions {
			if contains(exts, ext) {
				return true
			}
		}

		return false
	}

	return contains(directExtensions[opts.Format], ext)
}

func (e *DirectEngine) Extract(ctx context.Context, rawURL string, opts media.Options, workDir string) (*Output, error) {
	logger := logctx.LoggerFromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &media.ExtractionError{Kind: media.KindUnsupported, URL: rawURL, Err: err}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, transportError(rawURL, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(rawURL, resp); err != nil {
		return nil, err
	}

	if !matchesFormat(resp.Header.Get("Content-Type"), opts.Format) {
		return nil, &media.ExtractionError{
			Kind: media.KindNoMedia,
			URL:  rawURL,
			Err:  fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type")),
		}
	}

	name := fileName(req.URL)
	dest := filepath.Join(workDir, name)

	f, err := os.Create(dest)
	if err != nil {
		return nil, &media.InternalError{Op: "create output file", Err: err}
	}
	defer f.Close()

	pr := progress.NewReader(io.LimitReader(resp.Body, e.maxBytes+1), resp.ContentLength, progressInterval,
		func(read, total int64) {
			logger.Debug("direct download progress",
				"read", humanize.IBytes(uint64(read)),
				"total", humanize.IBytes(uint64(max(total, 0))))
		})

	written, err := io.Copy(f, pr)
	if err != nil {
		return nil, transportError(rawURL, err)
	}

	logger.Info("direct download finished", "file", name, "size", humanize.IBytes(uint64(written)))

	return &Output{
		Path:      dest,
		Title:     strings.TrimSuffix(name, filepath.Ext(name)),
		Engine:    e.Name(),
		Extractor: "direct",
	}, nil
}

// Probe issues a HEAD request and reports what the server says about the file.
func (e *DirectEngine) Probe(ctx context.Context, rawURL string) (*Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, &media.ExtractionError{Kind: media.KindUnsupported, URL: rawURL, Err: err}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, transportError(rawURL, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(rawURL, resp); err != nil {
		return nil, err
	}

	name := fileName(req.URL)

	return &Info{
		Title:    strings.TrimSuffix(name, filepath.Ext(name)),
		Platform: "direct",
		Filesize: max(resp.ContentLength, 0),
	}, nil
}

func checkStatus(rawURL string, resp *http.Response) error {
	var kind media.ExtractionKind

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		kind = media.KindAuthRequired
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		kind = media.KindNoMedia
	case resp.StatusCode >= 500:
		kind = media.KindNetwork
	default:
		kind = media.KindFailed
	}

	return &media.ExtractionError{Kind: kind, URL: rawURL, Err: fmt.Errorf("unexpected status %s", resp.Status)}
}

func transportError(rawURL string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &media.ExtractionError{Kind: media.KindNetwork, URL: rawURL, Err: err}
	}

	return &media.ExtractionError{Kind: Classify(err), URL: rawURL, Err: err}
}

// matchesFormat accepts missing and generic content types.
func matchesFormat(contentType string, f media.Format) bool {
	if contentType == "" || f == "" {
		return true
	}

	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return true
	}

	if mt == "application/octet-stream" || mt == "binary/octet-stream" {
		return true
	}

	return strings.HasPrefix(mt, strings.ToLower(string(f))+"/")
}

func fileName(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "download"
	}

	return name
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}

	return false
}
