package downloader

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/media_downloader/internal/extractor"
	"github.com/italolelis/media_downloader/internal/media"
	"github.com/italolelis/media_downloader/internal/registry"
)

type fakeExtractor struct {
	calls int
	opts  media.Options
	err   error
	size  int
	dir   string
}

func (f *fakeExtractor) Invoke(_ context.Context, u *url.URL, opts media.Options) (*extractor.Output, func(), error) {
	f.calls++
	f.opts = opts

	if f.err != nil {
		return nil, nil, f.err
	}

	p := filepath.Join(f.dir, filepath.Base(u.Path))
	if err := os.WriteFile(p, make([]byte, f.size), 0o600); err != nil {
		return nil, nil, err
	}

	return &extractor.Output{Path: p}, func() {}, nil
}

func (f *fakeExtractor) Probe(_ context.Context, u *url.URL) (*extractor.Info, error) {
	if f.err != nil {
		return nil, f.err
	}

	return &extractor.Info{Title: u.Host}, nil
}

func newTestDownloader(t *testing.T, ex *fakeExtractor, maxSize int64) *Downloader {
	t.Helper()

	ex.dir = t.TempDir()
	reg := registry.New(filepath.Join(t.TempDir(), "files"), maxSize, time.Minute)

	return NewDownloader(ex, reg)
}

func TestDownload_ThenCollectOnce(t *testing.T) {
	ex := &fakeExtractor{size: 4}
	d := newTestDownloader(t, ex, 1024)
	ctx := context.Background()

	f, err := d.Download(ctx, media.Request{URL: "https://example.com/video.mp4", Format: "VIDEO", Quality: "720p"})
	require.NoError(t, err)
	assert.Equal(t, "video.mp4", f.Name)
	assert.Equal(t, 720, ex.opts.MaxHeight)

	got, done, err := d.Collect(ctx, f.Token)
	require.NoError(t, err)
	assert.Equal(t, f.Path, got.Path)

	done(true)

	select {
	case job := <-d.OnJobDelivered:
		assert.Equal(t, StateDelivered, job.State())
	default:
		t.Fatal("expected delivered event")
	}

	_, _, err = d.Collect(ctx, f.Token)

	var nf *media.NotFoundError
	require.True(t, errors.As(err, &nf))
}

func TestDownload_InvalidQualityNeverExtracts(t *testing.T) {
	ex := &fakeExtractor{}
	d := newTestDownloader(t, ex, 1024)

	_, err := d.Download(context.Background(), media.Request{URL: "https://example.com/v.mp4", Format: "VIDEO", Quality: "4000k"})
	require.EqualError(t, err, "invalid quality")
	assert.Zero(t, ex.calls)
	assert.Empty(t, d.OnJobFailed)
}

func TestDownload_ExtractionFailureEmitsEvent(t *testing.T) {
	ex := &fakeExtractor{err: &media.ExtractionError{Kind: media.KindAuthRequired, URL: "https://instagram.com/p/x"}}
	d := newTestDownloader(t, ex, 1024)

	_, err := d.Download(context.Background(), media.Request{URL: "https://instagram.com/p/x", Format: "IMAGE"})

	var extErr *media.ExtractionError
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, media.KindAuthRequired, extErr.Kind)

	job := <-d.OnJobFailed
	assert.Equal(t, StateFailed, job.State())
	assert.Equal(t, "https://instagram.com/p/x", job.URL)
}

func TestDownload_Oversize(t *testing.T) {
	ex := &fakeExtractor{size: 20}
	d := newTestDownloader(t, ex, 10)

	_, err := d.Download(context.Background(), media.Request{URL: "https://example.com/big.mp4", Format: "VIDEO"})

	var oversize *media.OversizeError
	require.True(t, errors.As(err, &oversize))
	assert.NoFileExists(t, filepath.Join(ex.dir, "big.mp4"))
}

func TestCollect_AbortedDeliveryFailsJob(t *testing.T) {
	d := newTestDownloader(t, &fakeExtractor{size: 1}, 1024)
	ctx := context.Background()

	f, err := d.Download(ctx, media.Request{URL: "https://example.com/song.mp3", Format: "AUDIO"})
	require.NoError(t, err)

	_, done, err := d.Collect(ctx, f.Token)
	require.NoError(t, err)

	done(false)

	job := <-d.OnJobFailed
	assert.Equal(t, StateFailed, job.State())
	assert.NoFileExists(t, f.Path)
}

func TestEmit_DoesNotBlock(t *testing.T) {
	d := NewDownloader(&fakeExtractor{}, nil)

	for range eventBuffer + 5 {
		d.emit(context.Background(), d.OnJobFailed, NewJob("u"))
	}

	assert.Len(t, d.OnJobFailed, eventBuffer)
}

func TestEmit_AfterClose(t *testing.T) {
	d := NewDownloader(&fakeExtractor{}, nil)
	d.Close()

	assert.NotPanics(t, func() {
		d.emit(context.Background(), d.OnJobDelivered, NewJob("u"))
		d.fail(context.Background(), NewJob("u"), errDeliveryAborted)
		d.Close()
	})

	_, open := <-d.OnJobFailed
	assert.False(t, open)
}

func TestClose_ConcurrentWithEmit(t *testing.T) {
	d := NewDownloader(&fakeExtractor{}, nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range eventBuffer {
				d.emit(context.Background(), d.OnJobFailed, NewJob("u"))
			}
		}()
	}

	d.Close()
	wg.Wait()

	received := 0
	for range d.OnJobFailed {
		received++
	}

	assert.LessOrEqual(t, received, eventBuffer)
}

func TestInfo(t *testing.T) {
	d := newTestDownloader(t, &fakeExtractor{}, 1024)

	info, err := d.Info(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "example.com", info.Title)

	_, err = d.Info(context.Background(), "ftp://example.com/a")
	require.EqualError(t, err, "invalid url")
}
