package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abdul-hamid-achik/frameset/internal/job"
)

// PostgresStore keeps every job snapshot for as long as the row exists.
// Saves never move a row backwards: a finished job stays finished and
// counters only grow, whatever order concurrent saves arrive in.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const jobColumns = `id, archive_name, archive_key, status, created_at, started_at, finished_at,
	total_entries, images_extracted, videos_processed, frames_extracted, errors,
	output_directory, error_code, error_message, params, files`

func (s *PostgresStore) Save(ctx context.Context, snap job.Snapshot) error {
	params, err := json.Marshal(snap.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	files := snap.Files
	if files == nil {
		files = []string{}
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("encode files: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO extraction_jobs (`+jobColumns+`, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17, NOW())
		ON CONFLICT (id) DO UPDATE SET
			status = CASE WHEN extraction_jobs.status IN ('completed', 'failed')
				THEN extraction_jobs.status ELSE EXCLUDED.status END,
			started_at = COALESCE(extraction_jobs.started_at, EXCLUDED.started_at),
			finished_at = COALESCE(extraction_jobs.finished_at, EXCLUDED.finished_at),
			total_entries = GREATEST(extraction_jobs.total_entries, EXCLUDED.total_entries),
			images_extracted = GREATEST(extraction_jobs.images_extracted, EXCLUDED.images_extracted),
			videos_processed = GREATEST(extraction_jobs.videos_processed, EXCLUDED.videos_processed),
			frames_extracted = GREATEST(extraction_jobs.frames_extracted, EXCLUDED.frames_extracted),
			errors = GREATEST(extraction_jobs.errors, EXCLUDED.errors),
			error_code = CASE WHEN extraction_jobs.status IN ('completed', 'failed')
				THEN extraction_jobs.error_code ELSE EXCLUDED.error_code END,
			error_message = CASE WHEN extraction_jobs.status IN ('completed', 'failed')
				THEN extraction_jobs.error_message ELSE EXCLUDED.error_message END,
			files = CASE WHEN jsonb_array_length(EXCLUDED.files) >= jsonb_array_length(extraction_jobs.files)
				THEN EXCLUDED.files ELSE extraction_jobs.files END,
			updated_at = NOW()`,
		snap.ID, snap.ArchiveName, snap.ArchiveKey, string(snap.Status), snap.CreatedAt,
		snap.StartedAt, snap.FinishedAt,
		snap.Counters.TotalEntries, snap.Counters.ImagesExtracted, snap.Counters.VideosProcessed,
		snap.Counters.FramesExtracted, snap.Counters.Errors,
		snap.OutputDirectory, snap.ErrorCode, snap.Error, params, filesJSON,
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", snap.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*job.Snapshot, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM extraction_jobs WHERE id = $1`, id)
	snap, err := scanSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, job.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return snap, nil
}

// List returns the most recent jobs first. A non-positive limit returns all.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]job.Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM extraction_jobs ORDER BY created_at DESC LIMIT NULLIF($1::bigint, 0)`,
		int64(max(limit, 0)))
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	snaps := []job.Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		snaps = append(snaps, *snap)
	}
	return snaps, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM extraction_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return job.ErrNotFound
	}
	return nil
}

func scanSnapshot(row pgx.Row) (*job.Snapshot, error) {
	var (
		snap   job.Snapshot
		status string
		params []byte
		files  []byte
	)
	err := row.Scan(
		&snap.ID, &snap.ArchiveName, &snap.ArchiveKey, &status, &snap.CreatedAt,
		&snap.StartedAt, &snap.FinishedAt,
		&snap.Counters.TotalEntries, &snap.Counters.ImagesExtracted, &snap.Counters.VideosProcessed,
		&snap.Counters.FramesExtracted, &snap.Counters.Errors,
		&snap.OutputDirectory, &snap.ErrorCode, &snap.Error, &params, &files,
	)
	if err != nil {
		return nil, err
	}
	snap.Status = job.Status(status)
	if err := json.Unmarshal(params, &snap.Params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	if err := json.Unmarshal(files, &snap.Files); err != nil {
		return nil, fmt.Errorf("decode files: %w", err)
	}
	if len(snap.Files) == 0 {
		snap.Files = nil
	}
	return &snap, nil
}
