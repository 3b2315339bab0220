// Package downloader drives one request through validation, option mapping,
// extraction and registration, and later through delivery.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/italolelis/media_downloader/internal/extractor"
	"github.com/italolelis/media_downloader/internal/logctx"
	"github.com/italolelis/media_downloader/internal/media"
	"github.com/italolelis/media_downloader/internal/registry"
)

const eventBuffer = 16

var errDeliveryAborted = errors.New("delivery aborted before completion")

// Extractor produces a local file for a URL.
type Extractor interface {
	Invoke(ctx context.Context, u *url.URL, opts media.Options) (*extractor.Output, func(), error)
	Probe(ctx context.Context, u *url.URL) (*extractor.Info, error)
}

// FileStore hands produced files out once.
type FileStore interface {
	Register(ctx context.Context, out *extractor.Output, contentType string) (*registry.ManagedFile, error)
	Claim(ctx context.Context, token string) (*registry.ManagedFile, error)
	Release(ctx context.Context, f *registry.ManagedFile, delivered bool)
}

type Downloader struct {
	extractor Extractor
	files     FileStore
	now       func() time.Time

	mu     sync.Mutex
	ready  map[string]*Job // by delivery token
	closed bool

	// OnJobFailed receives jobs that failed after validation. Sends never block;
	// events are dropped when nobody keeps up.
	OnJobFailed    chan *Job
	OnJobDelivered chan *Job
}

func NewDownloader(ex Extractor, files FileStore) *Downloader {
	return &Downloader{
		extractor:      ex,
		files:          files,
		now:            time.Now,
		ready:          make(map[string]*Job),
		OnJobFailed:    make(chan *Job, eventBuffer),
		OnJobDelivered: make(chan *Job, eventBuffer),
	}
}

func (d *Downloader) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	d.closed = true
	close(d.OnJobFailed)
	close(d.OnJobDelivered)
}

// Download validates req, extracts the media and registers the produced file.
// Errors keep their media error type so callers can map them with errors.As.
func (d *Downloader) Download(ctx context.Context, req media.Request) (*registry.ManagedFile, error) {
	job := NewJob(req.URL)

	ctx, logger := logctx.With(ctx, "job_id", job.ID)

	v, err := req.Validate()
	if err != nil {
		_ = job.Fail(err)

		logger.Info("request rejected", "err", err)

		return nil, err
	}

	if err := job.Transition(StateValidated); err != nil {
		return nil, &media.InternalError{Op: "validate", Err: err}
	}

	opts := media.MapOptions(v.Format, v.Quality)

	if err := job.Transition(StateExtracting); err != nil {
		return nil, &media.InternalError{Op: "extract", Err: err}
	}

	out, release, err := d.extractor.Invoke(ctx, v.URL, opts)
	if err != nil {
		d.fail(ctx, job, err)

		return nil, fmt.Errorf("failed to extract media: %w", err)
	}
	defer release()

	f, err := d.files.Register(ctx, out, opts.ContentType)
	if err != nil {
		d.fail(ctx, job, err)

		return nil, fmt.Errorf("failed to register file: %w", err)
	}

	if err := job.ready(f); err != nil {
		return nil, &media.InternalError{Op: "register", Err: err}
	}

	d.mu.Lock()
	d.pruneLocked()
	d.ready[f.Token] = job
	d.mu.Unlock()

	logger.Info("download ready", "token", f.Token, "name", f.Name, "format", v.Format, "quality", v.Quality)

	return f, nil
}

// Collect claims the file behind token. The returned done func must be called
// once streaming ends; it deletes the file and settles the job.
func (d *Downloader) Collect(ctx context.Context, token string) (*registry.ManagedFile, func(delivered bool), error) {
	d.mu.Lock()
	job := d.ready[token]
	delete(d.ready, token)
	d.mu.Unlock()

	f, err := d.files.Claim(ctx, token)
	if err != nil {
		if job != nil {
			_ = job.Fail(err)
		}

		return nil, nil, err
	}

	done := func(delivered bool) {
		d.files.Release(ctx, f, delivered)

		if job == nil {
			return
		}

		if delivered {
			if err := job.Transition(StateDelivered); err == nil {
				d.emit(ctx, d.OnJobDelivered, job)
			}

			return
		}

		d.fail(ctx, job, errDeliveryAborted)
	}

	return f, done, nil
}

// Info validates rawURL and returns a metadata preview.
func (d *Downloader) Info(ctx context.Context, rawURL string) (*extractor.Info, error) {
	u, err := media.ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	info, err := d.extractor.Probe(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed to probe media: %w", err)
	}

	return info, nil
}

func (d *Downloader) fail(ctx context.Context, job *Job, cause error) {
	if err := job.Fail(cause); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to mark job as failed", "job_id", job.ID, "err", err)

		return
	}

	d.emit(ctx, d.OnJobFailed, job)
}

func (d *Downloader) emit(ctx context.Context, ch chan *Job, job *Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		logctx.LoggerFromContext(ctx).Debug("downloader closed, dropping job event", "job_id", job.ID)

		return
	}

	select {
	case ch <- job:
	default:
		logctx.LoggerFromContext(ctx).Warn("dropping job event", "job_id", job.ID, "state", job.State())
	}
}

// pruneLocked forgets ready jobs whose file has expired. d.mu must be held.
func (d *Downloader) pruneLocked() {
	now := d.now()

	for token, job := range d.ready {
		if f := job.File(); f != nil && !now.Before(f.ExpiresAt) {
			delete(d.ready, token)
		}
	}
}
