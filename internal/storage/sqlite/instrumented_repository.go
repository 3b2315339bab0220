package sqlite

import (
	"context"
	"database/sql"

	"github.com/italolelis/media_downloader/internal/storage"
	"github.com/italolelis/media_downloader/internal/telemetry"
)

// InstrumentedFileRepository wraps FileRepository with telemetry.
type InstrumentedFileRepository struct {
	repo      *FileRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedFileRepository creates a new instrumented file repository.
func NewInstrumentedFileRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedFileRepository {
	return &InstrumentedFileRepository{
		repo:      NewFileRepository(dbConn),
		telemetry: tel,
	}
}

func (r *InstrumentedFileRepository) SaveFile(ctx context.Context, rec storage.FileRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "save_file", func(ctx context.Context) error {
		return r.repo.SaveFile(ctx, rec)
	})
}

func (r *InstrumentedFileRepository) DeleteFile(ctx context.Context, token string) error {
	return r.telemetry.InstrumentDBOperation(ctx, "delete_file", func(ctx context.Context) error {
		return r.repo.DeleteFile(ctx, token)
	})
}

func (r *InstrumentedFileRepository) ListFiles(ctx context.Context) ([]storage.FileRecord, error) {
	var result []storage.FileRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "list_files", func(ctx context.Context) error {
		var err error

		result, err = r.repo.ListFiles(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
