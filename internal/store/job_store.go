package store

import (
	"context"
	"errors"

	"github.com/dunamismax/augflow/internal/domain"
)

var ErrJobNotFound = errors.New("job not found")

type JobStore interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Job, error)
	// RecordResult writes a finished run's outcome, terminal status
	// included, and returns the updated job.
	RecordResult(ctx context.Context, id string, result domain.JobResult) (domain.Job, error)
}

type UsageStore interface {
	CreateUsageLog(ctx context.Context, usage domain.UsageLog) error
}
