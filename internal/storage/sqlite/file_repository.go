package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/italolelis/media_downloader/internal/storage"
)

// FileRepository implements storage.FileRepository on SQLite.
type FileRepository struct {
	db *sql.DB
}

func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) SaveFile(ctx context.Context, rec storage.FileRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO managed_files (token, name, path, content_type, size, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			content_type = excluded.content_type,
			size = excluded.size,
			expires_at = excluded.expires_at
	`,
		rec.Token, rec.Name, rec.Path, rec.ContentType, rec.Size,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.ExpiresAt.UTC().Format(time.RFC3339Nano),
	)

	return err
}

func (r *FileRepository) DeleteFile(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM managed_files WHERE token = ?`, token)

	return err
}

func (r *FileRepository) ListFiles(ctx context.Context) ([]storage.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT token, name, path, content_type, size, created_at, expires_at FROM managed_files ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []storage.FileRecord

	for rows.Next() {
		var (
			rec                  storage.FileRecord
			createdAt, expiresAt string
		)

		if err := rows.Scan(&rec.Token, &rec.Name, &rec.Path, &rec.ContentType, &rec.Size, &createdAt, &expiresAt); err != nil {
			return nil, err
		}

		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("invalid created_at for %s: %w", rec.Token, err)
		}

		if rec.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt); err != nil {
			return nil, fmt.Errorf("invalid expires_at for %s: %w", rec.Token, err)
		}

		files = append(files, rec)
	}

	return files, rows.Err()
}
