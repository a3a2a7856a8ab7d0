package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/augflow/internal/domain"
	_ "github.com/lib/pq"
)

const jobSchemaSQL = `
CREATE TABLE IF NOT EXISTS augment_jobs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	user_id TEXT NOT NULL DEFAULT '',
	shard_key TEXT NOT NULL,
	webhook_url TEXT NOT NULL DEFAULT '',
	spec JSONB NOT NULL,
	seed BIGINT NOT NULL DEFAULT 0,
	output_key TEXT NOT NULL DEFAULT '',
	preview_key TEXT NOT NULL DEFAULT '',
	source_records INTEGER NOT NULL DEFAULT 0,
	output_records INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_logs (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	job_id TEXT NOT NULL,
	records_read BIGINT NOT NULL,
	records_written BIGINT NOT NULL,
	bytes_written BIGINT NOT NULL,
	compute_time_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

type PostgresJobStore struct {
	db *sql.DB
}

func NewPostgresJobStore(ctx context.Context, dsn string) (*PostgresJobStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresJobStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresJobStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, jobSchemaSQL); err != nil {
		return fmt.Errorf("ensure augment_jobs schema: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) Close() error {
	return s.db.Close()
}

func (s *PostgresJobStore) Create(ctx context.Context, job domain.Job) error {
	specJSON, err := json.Marshal(job.Spec)
	if err != nil {
		return fmt.Errorf("marshal job spec: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO augment_jobs (id, status, user_id, shard_key, webhook_url, spec, seed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID,
		job.Status,
		job.UserID,
		job.ShardKey,
		job.WebhookURL,
		specJSON,
		job.Seed,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	return nil
}

func (s *PostgresJobStore) Get(ctx context.Context, id string) (domain.Job, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, status, user_id, shard_key, webhook_url, spec, seed,
		        output_key, preview_key, source_records, output_records, error,
		        created_at, updated_at
		 FROM augment_jobs
		 WHERE id = $1`,
		id,
	)

	var (
		job      domain.Job
		specJSON []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.Status,
		&job.UserID,
		&job.ShardKey,
		&job.WebhookURL,
		&specJSON,
		&job.Seed,
		&job.OutputKey,
		&job.PreviewKey,
		&job.SourceRecords,
		&job.OutputRecords,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.Job{}, false, nil
		}
		return domain.Job{}, false, fmt.Errorf("query job: %w", err)
	}

	if err := json.Unmarshal(specJSON, &job.Spec); err != nil {
		return domain.Job{}, false, fmt.Errorf("unmarshal job spec: %w", err)
	}

	return job, true, nil
}

func (s *PostgresJobStore) UpdateStatus(ctx context.Context, id, status string) (domain.Job, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE augment_jobs
		 SET status = $1, updated_at = $2
		 WHERE id = $3`,
		status,
		now,
		id,
	)
	if err != nil {
		return domain.Job{}, fmt.Errorf("update job status: %w", err)
	}

	job, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}

	return job, nil
}

func (s *PostgresJobStore) RecordResult(ctx context.Context, id string, result domain.JobResult) (domain.Job, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE augment_jobs
		 SET status = $1, seed = $2, output_key = $3, preview_key = $4,
		     source_records = $5, output_records = $6, error = $7, updated_at = $8
		 WHERE id = $9`,
		result.Status,
		result.Seed,
		result.OutputKey,
		result.PreviewKey,
		result.SourceRecords,
		result.OutputRecords,
		result.Error,
		now,
		id,
	)
	if err != nil {
		return domain.Job{}, fmt.Errorf("record job result: %w", err)
	}

	job, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}

	return job, nil
}

func (s *PostgresJobStore) CreateUsageLog(ctx context.Context, usage domain.UsageLog) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO usage_logs (user_id, job_id, records_read, records_written, bytes_written, compute_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		usage.UserID,
		usage.JobID,
		usage.RecordsRead,
		usage.RecordsWritten,
		usage.BytesWritten,
		usage.ComputeTimeMS,
		usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}
	return nil
}
