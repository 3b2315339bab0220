package extractor

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/media_downloader/internal/media"
)

type fakeEngine struct {
	name     string
	supports func(u *url.URL, opts media.Options) bool
	extract  func(ctx context.Context, workDir string) (*Output, error)
	calls    int
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Supports(u *url.URL, opts media.Options) bool {
	if f.supports == nil {
		return true
	}

	return f.supports(u, opts)
}

func (f *fakeEngine) Extract(ctx context.Context, _ string, _ media.Options, workDir string) (*Output, error) {
	f.calls++

	return f.extract(ctx, workDir)
}

func (f *fakeEngine) Probe(context.Context, string) (*Info, error) {
	return &Info{Title: f.name}, nil
}

func writeOutput(name string) func(context.Context, string) (*Output, error) {
	return func(_ context.Context, workDir string) (*Output, error) {
		p := filepath.Join(workDir, name)
		if err := os.WriteFile(p, []byte("media"), 0o600); err != nil {
			return nil, err
		}

		return &Output{Path: p, Title: "clip"}, nil
	}
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()

	u, err := url.Parse(raw)
	require.NoError(t, err)

	return u
}

func TestInvoker_Success(t *testing.T) {
	root := t.TempDir()
	engine := &fakeEngine{name: "fake", extract: writeOutput("clip.mp4")}
	inv := NewInvoker(root, time.Second, nil, engine)

	out, release, err := inv.Invoke(context.Background(), mustURL(t, "https://example.com/v"), media.MapOptions(media.FormatVideo, "best"))
	require.NoError(t, err)
	require.NotNil(t, release)
	assert.FileExists(t, out.Path)
	assert.Equal(t, "clip", out.Title)

	release()

	assert.NoFileExists(t, out.Path)
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInvoker_RoutesToFirstSupportingEngine(t *testing.T) {
	never := &fakeEngine{name: "never", supports: func(*url.URL, media.Options) bool { return false }}
	chosen := &fakeEngine{name: "chosen", extract: writeOutput("a.mp3")}
	inv := NewInvoker(t.TempDir(), time.Second, nil, never, chosen)

	_, release, err := inv.Invoke(context.Background(), mustURL(t, "https://example.com/a"), media.MapOptions(media.FormatAudio, "best"))
	require.NoError(t, err)
	defer release()

	assert.Equal(t, 0, never.calls)
	assert.Equal(t, 1, chosen.calls)
}

func TestInvoker_NoEngine(t *testing.T) {
	never := &fakeEngine{name: "never", supports: func(*url.URL, media.Options) bool { return false }}
	inv := NewInvoker(t.TempDir(), time.Second, nil, never)

	_, _, err := inv.Invoke(context.Background(), mustURL(t, "https://example.com/a"), media.Options{})

	var extErr *media.ExtractionError
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, media.KindUnsupported, extErr.Kind)
}

func TestInvoker_FailureIsClassifiedAndNotRetried(t *testing.T) {
	root := t.TempDir()
	engine := &fakeEngine{name: "fake", extract: func(context.Context, string) (*Output, error) {
		return nil, errors.New("ERROR: [instagram] abc: login required")
	}}
	inv := NewInvoker(root, time.Second, nil, engine)

	_, release, err := inv.Invoke(context.Background(), mustURL(t, "https://instagram.com/p/abc"), media.Options{})
	require.Error(t, err)
	assert.Nil(t, release)
	assert.Equal(t, 1, engine.calls)

	var extErr *media.ExtractionError
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, media.KindAuthRequired, extErr.Kind)
	assert.Equal(t, "https://instagram.com/p/abc", extErr.URL)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "work dir must be removed on failure")
}

func TestInvoker_Timeout(t *testing.T) {
	engine := &fakeEngine{name: "slow", extract: func(ctx context.Context, _ string) (*Output, error) {
		<-ctx.Done()

		return nil, ctx.Err()
	}}
	inv := NewInvoker(t.TempDir(), 20*time.Millisecond, nil, engine)

	_, _, err := inv.Invoke(context.Background(), mustURL(t, "https://example.com/a"), media.Options{})

	var extErr *media.ExtractionError
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, media.KindTimeout, extErr.Kind)
}

func TestInvoker_MissingOutput(t *testing.T) {
	engine := &fakeEngine{name: "fake", extract: func(_ context.Context, workDir string) (*Output, error) {
		return &Output{Path: filepath.Join(workDir, "ghost.mp4")}, nil
	}}
	inv := NewInvoker(t.TempDir(), time.Second, nil, engine)

	_, _, err := inv.Invoke(context.Background(), mustURL(t, "https://example.com/a"), media.Options{})

	var extErr *media.ExtractionError
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, media.KindNoMedia, extErr.Kind)
}

func TestInvoker_OutputOutsideWorkDir(t *testing.T) {
	outside := filepath.Join(t.TempDir(), "elsewhere.mp4")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))

	engine := &fakeEngine{name: "fake", extract: func(context.Context, string) (*Output, error) {
		return &Output{Path: outside}, nil
	}}
	inv := NewInvoker(t.TempDir(), time.Second, nil, engine)

	_, _, err := inv.Invoke(context.Background(), mustURL(t, "https://example.com/a"), media.Options{})

	var intErr *media.InternalError
	require.True(t, errors.As(err, &intErr))
}

func TestInvoker_Probe(t *testing.T) {
	inv := NewInvoker(t.TempDir(), time.Second, nil, &fakeEngine{name: "meta"})

	info, err := inv.Probe(context.Background(), mustURL(t, "https://example.com/a"))
	require.NoError(t, err)
	assert.Equal(t, "meta", info.Title)
}

func TestInvoker_OversizePassesThrough(t *testing.T) {
	engine := &fakeEngine{name: "ytdlp", extract: func(context.Context, string) (*Output, error) {
		return nil, &media.OversizeError{Size: 2048, Limit: 1024}
	}}
	inv := NewInvoker(t.TempDir(), time.Second, nil, engine)

	_, _, err := inv.Invoke(context.Background(), mustURL(t, "https://example.com/a"), media.Options{})

	var oversize *media.OversizeError
	require.True(t, errors.As(err, &oversize))
	assert.Equal(t, int64(2048), oversize.Size)
	assert.Equal(t, "oversize", kindLabel(err))
}
