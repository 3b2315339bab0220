package storage

import (
	"context"
	"time"
)

// FileRecord is the persisted form of a file waiting to be collected.
type FileRecord struct {
	Token       string
	Name        string
	Path        string
	ContentType string
	Size        int64
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// FileRepository journals registry entries so they survive a restart.
type FileRepository interface {
	SaveFile(ctx context.Context, rec FileRecord) error
	DeleteFile(ctx context.Context, token string) error
	ListFiles(ctx context.Context) ([]FileRecord, error)
}
