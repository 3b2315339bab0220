// Package registry tracks produced files between extraction and delivery.
// Every file is reachable through one opaque token, can be collected once and
// expires after a TTL.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/italolelis/media_downloader/internal/cleanup"
	"github.com/italolelis/media_downloader/internal/extractor"
	"github.com/italolelis/media_downloader/internal/logctx"
	"github.com/italolelis/media_downloader/internal/media"
	"github.com/italolelis/media_downloader/internal/storage"
	"github.com/italolelis/media_downloader/internal/telemetry"
)

const dirPerm = 0o755

// ManagedFile is a produced file waiting to be collected.
type ManagedFile struct {
	Token       string
	Name        string // public file name used in Content-Disposition
	Path        string
	ContentType string
	Size        int64
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

func (f *ManagedFile) expired(now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}

func (f *ManagedFile) record() storage.FileRecord {
	return storage.FileRecord{
		Token:       f.Token,
		Name:        f.Name,
		Path:        f.Path,
		ContentType: f.ContentType,
		Size:        f.Size,
		CreatedAt:   f.CreatedAt,
		ExpiresAt:   f.ExpiresAt,
	}
}

// Registry owns the store directory and the token table. One mutex guards the
// table; file moves and deletes happen outside of it.
type Registry struct {
	mu       sync.Mutex
	files    map[string]*ManagedFile
	inflight map[string]struct{} // store file names claimed but not yet released

	storeDir  string
	maxSize   int64
	ttl       time.Duration
	repo      storage.FileRepository
	telemetry *telemetry.Telemetry
	now       func() time.Time
}

type Option func(*Registry)

// WithRepository journals entries so Recover can reload them after a restart.
func WithRepository(repo storage.FileRepository) Option {
	return func(r *Registry) {
		r.repo = repo
	}
}

func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(r *Registry) {
		r.telemetry = tel
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func New(storeDir string, maxSize int64, ttl time.Duration, opts ...Option) *Registry {
	r := &Registry{
		files:    make(map[string]*ManagedFile),
		inflight: make(map[string]struct{}),
		storeDir: storeDir,
		maxSize:  maxSize,
		ttl:      ttl,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register takes ownership of out.Path. Files above the size limit are deleted
// and reported as *media.OversizeError without creating an entry.
func (r *Registry) Register(ctx context.Context, out *extractor.Output, contentType string) (*ManagedFile, error) {
	logger := logctx.LoggerFromContext(ctx)

	info, err := os.Stat(out.Path)
	if err != nil {
		return nil, &media.InternalError{Op: "stat output", Err: err}
	}

	if info.Size() > r.maxSize {
		if err := os.Remove(out.Path); err != nil {
			logger.Error("failed to delete oversize file", "file", out.Path, "err", err)
		}

		return nil, &media.OversizeError{Size: info.Size(), Limit: r.maxSize}
	}

	if err := os.MkdirAll(r.storeDir, dirPerm); err != nil {
		return nil, &media.InternalError{Op: "create store dir", Err: err}
	}

	base := filepath.Base(out.Path)
	ext := strings.ToLower(filepath.Ext(base))
	token := uuid.NewString()
	dest := filepath.Join(r.storeDir, token+ext)

	// the janitor must not see the file before it is indexed
	r.mu.Lock()
	r.inflight[token+ext] = struct{}{}
	r.mu.Unlock()

	if err := moveFile(out.Path, dest); err != nil {
		r.unreserve(token + ext)

		return nil, &media.InternalError{Op: "move output", Err: err}
	}

	now := r.now()

	// engines may keep the upstream mtime; the janitor ages files by mtime
	if err := os.Chtimes(dest, now, now); err != nil {
		logger.Warn("failed to reset file times", "file", dest, "err", err)
	}

	if ct := mime.TypeByExtension(ext); ct != "" {
		contentType = ct
	}

	f := &ManagedFile{
		Token:       token,
		Path:        dest,
		ContentType: contentType,
		Size:        info.Size(),
		CreatedAt:   now,
		ExpiresAt:   now.Add(r.ttl),
	}

	r.mu.Lock()
	f.Name = uniqueName(SanitizeName(base), r.nameTaken)
	r.files[token] = f
	delete(r.inflight, token+ext)
	r.mu.Unlock()

	r.journalSave(ctx, f)
	r.telemetry.AddManagedFiles(ctx, 1, f.Size)

	logger.Info("file registered", "token", token, "name", f.Name,
		"size", humanize.IBytes(uint64(f.Size)), "expires_at", f.ExpiresAt)

	return f, nil
}

// nameTaken must be called with r.mu held.
func (r *Registry) nameTaken(name string) bool {
	for _, f := range r.files {
		if f.Name == name {
			return true
		}
	}

	return false
}

// Claim hands out the file behind token exactly once. Unknown, already claimed
// and expired tokens yield *media.NotFoundError.
func (r *Registry) Claim(ctx context.Context, token string) (*ManagedFile, error) {
	r.mu.Lock()

	f, ok := r.files[token]
	if !ok {
		r.mu.Unlock()

		return nil, &media.NotFoundError{Token: token}
	}

	delete(r.files, token)

	expired := f.expired(r.now())
	if !expired {
		r.inflight[filepath.Base(f.Path)] = struct{}{}
	}

	r.mu.Unlock()

	r.telemetry.AddManagedFiles(ctx, -1, -f.Size)
	r.journalDelete(ctx, f.Token)

	if expired {
		r.removeFile(ctx, f)

		return nil, &media.NotFoundError{Token: token}
	}

	return f, nil
}

// Release deletes a claimed file once streaming has finished or was aborted.
func (r *Registry) Release(ctx context.Context, f *ManagedFile, delivered bool) {
	r.removeFile(ctx, f)
	r.unreserve(filepath.Base(f.Path))

	logctx.LoggerFromContext(ctx).Info("file released", "token", f.Token, "delivered", delivered)
}

func (r *Registry) unreserve(name string) {
	r.mu.Lock()
	delete(r.inflight, name)
	r.mu.Unlock()
}

// Sweep removes expired entries and any untracked file in the store dir that is
// older than the TTL. It returns the number of files deleted.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	now := r.now()

	var expired []*ManagedFile

	r.mu.Lock()
	for token, f := range r.files {
		if f.expired(now) {
			expired = append(expired, f)
			delete(r.files, token)
		}
	}
	r.mu.Unlock()

	for _, f := range expired {
		r.telemetry.AddManagedFiles(ctx, -1, -f.Size)
		r.journalDelete(ctx, f.Token)
		r.removeFile(ctx, f)
	}

	orphans, err := cleanup.RemoveStale(ctx, r.storeDir, r.ttl, r.tracked)
	if err != nil {
		r.telemetry.RecordSystemError(ctx, "registry", "sweep")

		return len(expired) + orphans, fmt.Errorf("failed to sweep store dir: %w", err)
	}

	return len(expired) + orphans, nil
}

// tracked reports whether a store dir entry belongs to a live or claimed file.
func (r *Registry) tracked(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.inflight[name]; ok {
		return true
	}

	for _, f := range r.files {
		if filepath.Base(f.Path) == name {
			return true
		}
	}

	return false
}

// Run sweeps every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("registry janitor stopped")

			return nil
		case <-ticker.C:
			n, err := r.Sweep(ctx)
			if err != nil {
				logger.Error("sweep failed", "err", err)
			}

			if n > 0 {
				logger.Info("sweep removed files", "count", n)
			}
		}
	}
}

// Recover reloads journaled entries. Expired entries and entries whose file
// is gone are dropped. It returns how many entries are collectable again.
func (r *Registry) Recover(ctx context.Context) (int, error) {
	if r.repo == nil {
		return 0, nil
	}

	logger := logctx.LoggerFromContext(ctx)

	records, err := r.repo.ListFiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list journaled files: %w", err)
	}

	now := r.now()
	restored := 0

	for _, rec := range records {
		f := &ManagedFile{
			Token:       rec.Token,
			Name:        rec.Name,
			Path:        rec.Path,
			ContentType: rec.ContentType,
			Size:        rec.Size,
			CreatedAt:   rec.CreatedAt,
			ExpiresAt:   rec.ExpiresAt,
		}

		if _, err := os.Stat(f.Path); err != nil || f.expired(now) {
			logger.Info("dropping journaled file", "token", f.Token, "expired", f.expired(now))
			r.journalDelete(ctx, f.Token)
			r.removeFile(ctx, f)

			continue
		}

		r.mu.Lock()
		f.Name = uniqueName(f.Name, r.nameTaken)
		r.files[f.Token] = f
		r.mu.Unlock()

		r.telemetry.AddManagedFiles(ctx, 1, f.Size)

		restored++
	}

	return restored, nil
}

func (r *Registry) removeFile(ctx context.Context, f *ManagedFile) {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logctx.LoggerFromContext(ctx).Error("failed to delete file", "token", f.Token, "file", f.Path, "err", err)
		r.telemetry.RecordSystemError(ctx, "registry", "delete_file")
	}
}

// Journal failures are logged and otherwise ignored.
func (r *Registry) journalSave(ctx context.Context, f *ManagedFile) {
	if r.repo == nil {
		return
	}

	if err := r.repo.SaveFile(ctx, f.record()); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to journal file", "token", f.Token, "err", err)
	}
}

func (r *Registry) journalDelete(ctx context.Context, token string) {
	if r.repo == nil {
		return
	}

	if err := r.repo.DeleteFile(ctx, token); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to delete journal entry", "token", token, "err", err)
	}
}

// moveFile renames src to dst and falls back to copy+delete across devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)

		return err
	}

	if err := out.Close(); err != nil {
		os.Remove(dst)

		return err
	}

	return os.Remove(src)
}
