package worker

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dunamismax/augflow/internal/config"
	"github.com/dunamismax/augflow/internal/domain"
	"github.com/dunamismax/augflow/internal/pipeline"
	"github.com/dunamismax/augflow/internal/queue"
	"github.com/dunamismax/augflow/internal/storage"
	"github.com/dunamismax/augflow/internal/store"
	"github.com/dunamismax/augflow/internal/webhook"
)

type Server struct {
	logger        *log.Logger
	server        *asynq.Server
	sem           chan struct{}
	processor     *pipeline.Processor
	webhookClient webhookSender
	jobStore      store.JobStore
	usageStore    store.UsageStore
	metrics       *metrics
	tracer        trace.Tracer
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	storageClient *storage.Client,
	webhookClient *webhook.Client,
	jobStore store.JobStore,
	usageStore store.UsageStore,
) (*Server, error) {
	if storageClient == nil {
		return nil, fmt.Errorf("storage client is required")
	}

	processor, err := pipeline.NewObjectStoreProcessor(
		pipeline.ObjectStoreFetcher{Storage: storageClient},
		pipeline.ObjectStoreEmitter{Storage: storageClient},
	)
	if err != nil {
		return nil, fmt.Errorf("initialize processor: %w", err)
	}

	if usageStore == nil {
		if jobAndUsageStore, ok := jobStore.(store.UsageStore); ok {
			usageStore = jobAndUsageStore
		}
	}

	// Keep the interface field nil for a nil client so dispatch skips it.
	var sender webhookSender
	if webhookClient != nil {
		sender = webhookClient
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:           make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		processor:     processor,
		webhookClient: sender,
		jobStore:      jobStore,
		usageStore:    usageStore,
		metrics:       newMetrics(),
		tracer:        otel.Tracer("augflow/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeAugmentDataset, s.handleAugmentDataset)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleAugmentDataset(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParseAugmentDatasetPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.augment_dataset", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.shard_key", payload.ShardKey),
		attribute.Int("job.transforms", len(payload.Spec.Transforms)),
		attribute.Int("job.passes", payload.Spec.Passes),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	s.logger.Printf(
		"Working... job_id=%s shard_key=%s transforms=%d passes=%d",
		payload.JobID,
		payload.ShardKey,
		len(payload.Spec.Transforms),
		payload.Spec.Passes,
	)

	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusProcessing)

	request := pipeline.Request{
		JobID:    payload.JobID,
		UserID:   payload.UserID,
		ShardKey: payload.ShardKey,
		Spec:     payload.Spec,
	}

	result, err := s.processor.Process(ctx, request)
	if err != nil {
		s.recordResult(ctx, payload.JobID, domain.JobResult{
			Status: domain.JobStatusFailed,
			Error:  err.Error(),
		})
		span.RecordError(err)
		span.SetStatus(codes.Error, "augmentation failed")
		s.dispatchWebhook(ctx, payload, webhook.EventJobFailed, map[string]any{
			"job_id":       payload.JobID,
			"status":       domain.JobStatusFailed,
			"shard_key":    payload.ShardKey,
			"requested_at": payload.RequestedAt,
			"failed_at":    time.Now().UTC(),
			"error":        err.Error(),
		})
		return fmt.Errorf("run augmentation: %w", err)
	}

	s.logger.Printf(
		"Processed job_id=%s records_in=%d records_out=%d seed=%d",
		payload.JobID,
		result.SourceRecords,
		result.OutputRecords,
		result.Seed,
	)
	s.recordResult(ctx, payload.JobID, domain.JobResult{
		Status:        domain.JobStatusSucceeded,
		Seed:          result.Seed,
		OutputKey:     result.OutputKey,
		PreviewKey:    result.PreviewKey,
		SourceRecords: result.SourceRecords,
		OutputRecords: result.OutputRecords,
	})
	s.metrics.recordsAugmentedTotal.Add(float64(result.OutputRecords))
	s.recordUsage(ctx, payload, result, time.Since(startedAt))

	if err := s.dispatchWebhook(ctx, payload, webhook.EventJobCompleted, map[string]any{
		"job_id":         payload.JobID,
		"status":         domain.JobStatusSucceeded,
		"shard_key":      payload.ShardKey,
		"output_key":     result.OutputKey,
		"preview_key":    result.PreviewKey,
		"seed":           result.Seed,
		"source_records": result.SourceRecords,
		"output_records": result.OutputRecords,
		"requested_at":   payload.RequestedAt,
		"completed_at":   time.Now().UTC(),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return err
	}

	outcome = domain.JobStatusSucceeded
	span.SetStatus(codes.Ok, "processed")
	return nil
}

func (s *Server) updateJobStatus(ctx context.Context, jobID, status string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		s.logger.Printf("job status update failed job_id=%s status=%s err=%v", jobID, status, err)
	}
}

func (s *Server) recordResult(ctx context.Context, jobID string, result domain.JobResult) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.RecordResult(ctx, jobID, result); err != nil {
		s.logger.Printf("job result write failed job_id=%s status=%s err=%v", jobID, result.Status, err)
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.AugmentDatasetPayload, event string, body map[string]any) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.Printf("webhook delivery failed job_id=%s event=%s err=%v", payload.JobID, event, err)
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}

func (s *Server) recordUsage(ctx context.Context, payload queue.AugmentDatasetPayload, result pipeline.Result, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	userID := strings.TrimSpace(payload.UserID)
	if userID == "" {
		userID = "anonymous"
	}

	computeTimeMS := computeDuration.Milliseconds()
	if computeTimeMS < 1 {
		computeTimeMS = 1
	}

	usage := domain.UsageLog{
		UserID:         userID,
		JobID:          payload.JobID,
		RecordsRead:    int64(result.SourceRecords),
		RecordsWritten: int64(result.OutputRecords),
		BytesWritten:   int64(result.OutputBytes + result.PreviewBytes),
		ComputeTimeMS:  computeTimeMS,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.usageStore.CreateUsageLog(ctx, usage); err != nil {
		s.logger.Printf("usage log write failed job_id=%s err=%v", payload.JobID, err)
		return
	}

	s.metrics.recordsReadTotal.Add(float64(usage.RecordsRead))
	s.metrics.bytesWrittenTotal.Add(float64(usage.BytesWritten))
	s.metrics.computeTimeMSTotal.Add(float64(usage.ComputeTimeMS))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
