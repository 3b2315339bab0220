// Package extractor runs the external extraction engines that turn a media URL
// into one local file.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/italolelis/media_downloader/internal/logctx"
	"github.com/italolelis/media_downloader/internal/media"
	"github.com/italolelis/media_downloader/internal/telemetry"
)

const dirPerm = 0o755

// Output describes the single file an engine produced.
type Output struct {
	Path      string
	Title     string
	Engine    string
	Extractor string // platform reported by the engine, e.g. "Youtube"
}

// Info is the metadata returned by a probe, without downloading anything.
type Info struct {
	Title     string
	Duration  time.Duration
	Thumbnail string
	Platform  string
	Uploader  string
	Filesize  int64
}

// Engine is an external capability that fetches and converts media.
type Engine interface {
	Name() string
	Extract(ctx context.Context, rawURL string, opts media.Options, workDir string) (*Output, error)
	Probe(ctx context.Context, rawURL string) (*Info, error)
}

// Selector is implemented by engines that only handle some URLs. Engines that
// don't implement it accept everything.
type Selector interface {
	Supports(u *url.URL, opts media.Options) bool
}

// Invoker runs one extraction per call under a deadline, in a private work
// directory, and maps every failure to a *media.ExtractionError. It never retries.
type Invoker struct {
	engines   []Engine
	workRoot  string
	timeout   time.Duration
	telemetry *telemetry.Telemetry
}

// NewInvoker creates an Invoker that tries engines in order and uses the first
// one that supports the URL.
func NewInvoker(workRoot string, timeout time.Duration, tel *telemetry.Telemetry, engines ...Engine) *Invoker {
	return &Invoker{
		engines:   engines,
		workRoot:  workRoot,
		timeout:   timeout,
		telemetry: tel,
	}
}

// Invoke extracts u with opts. On success the returned release func removes the
// work directory and must be called once the output file has been moved away.
func (i *Invoker) Invoke(ctx context.Context, u *url.URL, opts media.Options) (*Output, func(), error) {
	engine := i.pick(u, opts)
	if engine == nil {
		return nil, nil, &media.ExtractionError{Kind: media.KindUnsupported, URL: u.String()}
	}

	logger := logctx.LoggerFromContext(ctx).With("engine", engine.Name())

	if err := os.MkdirAll(i.workRoot, dirPerm); err != nil {
		return nil, nil, &media.InternalError{Op: "create work root", Err: err}
	}

	workDir, err := os.MkdirTemp(i.workRoot, "job-")
	if err != nil {
		return nil, nil, &media.InternalError{Op: "create work dir", Err: err}
	}

	release := func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Error("failed to remove work dir", "dir", workDir, "err", err)
		}
	}

	extractCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	logger.Info("extraction started", "format", opts.Format, "quality", opts.Quality)

	var out *Output

	err = i.telemetry.InstrumentExtraction(extractCtx, engine.Name(), kindLabel, func(ctx context.Context) error {
		var err error

		out, err = engine.Extract(ctx, u.String(), opts, workDir)
		if err != nil {
			return i.mapError(extractCtx, u, err)
		}

		return verifyOutput(u, workDir, out)
	})
	if err != nil {
		release()

		return nil, nil, err
	}

	logger.Info("extraction finished", "file", filepath.Base(out.Path), "extractor", out.Extractor)

	return out, release, nil
}

// Probe returns metadata for u from the first engine that supports it.
func (i *Invoker) Probe(ctx context.Context, u *url.URL) (*Info, error) {
	engine := i.pick(u, media.Options{})
	if engine == nil {
		return nil, &media.ExtractionError{Kind: media.KindUnsupported, URL: u.String()}
	}

	probeCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	info, err := engine.Probe(probeCtx, u.String())
	if err != nil {
		return nil, i.mapError(probeCtx, u, err)
	}

	return info, nil
}

func (i *Invoker) pick(u *url.URL, opts media.Options) Engine {
	for _, e := range i.engines {
		s, ok := e.(Selector)
		if !ok || s.Supports(u, opts) {
			return e
		}
	}

	return nil
}

func (i *Invoker) mapError(ctx context.Context, u *url.URL, err error) error {
	var oversize *media.OversizeError
	if errors.As(err, &oversize) {
		return err
	}

	var extErr *media.ExtractionError
	if errors.As(err, &extErr) {
		if extErr.URL == "" {
			extErr.URL = u.String()
		}

		return err
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &media.ExtractionError{Kind: media.KindTimeout, URL: u.String(), Err: err}
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return &media.ExtractionError{Kind: media.KindFailed, URL: u.String(), Err: ctx.Err()}
	}

	return &media.ExtractionError{Kind: Classify(err), URL: u.String(), Err: err}
}

// verifyOutput makes sure the engine reported a file that exists inside workDir.
func verifyOutput(u *url.URL, workDir string, out *Output) error {
	if out == nil || out.Path == "" {
		return &media.ExtractionError{Kind: media.KindNoMedia, URL: u.String()}
	}

	rel, err := filepath.Rel(workDir, out.Path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return &media.InternalError{Op: "verify output", Err: fmt.Errorf("engine wrote outside of work dir: %s", out.Path)}
	}

	info, err := os.Stat(out.Path)
	if err != nil || !info.Mode().IsRegular() {
		return &media.ExtractionError{Kind: media.KindNoMedia, URL: u.String(), Err: err}
	}

	return nil
}

func kindLabel(err error) string {
	var oversize *media.OversizeError
	if errors.As(err, &oversize) {
		return "oversize"
	}

	var extErr *media.ExtractionError
	if errors.As(err, &extErr) {
		return string(extErr.Kind)
	}

	return "internal"
}
