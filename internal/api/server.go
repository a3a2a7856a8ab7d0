package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dunamismax/augflow/internal/domain"
	"github.com/dunamismax/augflow/internal/id"
	"github.com/dunamismax/augflow/internal/queue"
	"github.com/dunamismax/augflow/internal/storage"
	"github.com/dunamismax/augflow/internal/store"
)

// HeaderUserID attributes jobs and rate-limit budgets to a caller.
const HeaderUserID = "X-Augflow-User"

type Server struct {
	logger      *log.Logger
	queueClient queueEnqueuer
	jobStore    store.JobStore
	storage     objectStorage
	rateLimiter RateLimiter
	presignTTL  time.Duration
	metrics     *metrics
	tracer      trace.Tracer
	mux         *http.ServeMux
}

type queueEnqueuer interface {
	EnqueueAugmentDataset(ctx context.Context, payload queue.AugmentDatasetPayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	PresignedGetURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

func NewServer(
	logger *log.Logger,
	queueClient queueEnqueuer,
	jobStore store.JobStore,
	objStorage objectStorage,
	rateLimiter RateLimiter,
	presignTTL time.Duration,
) *Server {
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	if objStorage == nil {
		objStorage = unavailableObjectStorage{}
	}

	s := &Server{
		logger:      logger,
		queueClient: queueClient,
		jobStore:    jobStore,
		storage:     objStorage,
		rateLimiter: rateLimiter,
		presignTTL:  presignTTL,
		metrics:     newMetrics(),
		tracer:      otel.Tracer("augflow/api"),
		mux:         http.NewServeMux(),
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignedPutURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) PresignedGetURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ObjectExists(_ context.Context, _ string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

// Handler wraps the routes in the metrics, tracing, and rate-limit
// middleware, outermost first.
func (s *Server) Handler() http.Handler {
	return s.metrics.withHTTPMetrics(s.withTracing(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /v1/jobs", s.handleCreateJob)
	s.mux.HandleFunc("POST /v1/jobs/", s.handleStartJob)
	s.mux.HandleFunc("GET /v1/jobs/", s.handleGetJob)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	// Fill defaults before validating so a request without transforms
	// gets the stock pipeline instead of a rejection.
	req.Spec = req.Spec.WithDefaults()
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	jobID := id.New()
	shardKey := strings.TrimSpace(req.ShardKey)
	uploadState := "not_required"
	presignedPutURL := ""

	if shardKey == "" {
		shardKey = storage.IncomingShardKey(jobID)
		url, err := s.storage.PresignedPutURL(r.Context(), shardKey, s.presignTTL)
		if err != nil {
			s.logger.Printf("generate presigned url failed for job %s: %v", jobID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate upload URL"})
			return
		}
		presignedPutURL = url
		uploadState = "ready"
	}

	job := domain.Job{
		ID:         jobID,
		Status:     domain.JobStatusCreated,
		UserID:     strings.TrimSpace(r.Header.Get(HeaderUserID)),
		ShardKey:   shardKey,
		WebhookURL: req.WebhookURL,
		Spec:       req.Spec,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.jobStore.Create(r.Context(), job); err != nil {
		s.logger.Printf("create job failed for job %s: %v", job.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create job"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
		"upload": map[string]string{
			"shard_key":           job.ShardKey,
			"presigned_put_url":   presignedPutURL,
			"presigned_url_state": uploadState,
		},
		"start_url": fmt.Sprintf("/v1/jobs/%s/start", job.ID),
	})
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := extractJobIDFromStartPath(r.URL.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Printf("fetch job failed for job %s: %v", jobID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load job"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}

	switch job.Status {
	case domain.JobStatusProcessing, domain.JobStatusSucceeded:
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": fmt.Sprintf("job is already %s", job.Status),
		})
		return
	}

	exists, err := s.storage.ObjectExists(r.Context(), job.ShardKey)
	if err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": fmt.Sprintf("source shard check failed: %v", err)})
		return
	}
	if !exists {
		writeJSON(w, http.StatusConflict, map[string]string{"error": fmt.Sprintf("source shard is missing: %s", job.ShardKey)})
		return
	}

	payload := queue.AugmentDatasetPayload{
		JobID:       job.ID,
		UserID:      job.UserID,
		ShardKey:    job.ShardKey,
		WebhookURL:  job.WebhookURL,
		Spec:        job.Spec,
		RequestedAt: time.Now().UTC(),
	}

	taskInfo, err := s.queueClient.EnqueueAugmentDataset(r.Context(), payload)
	if err != nil {
		s.logger.Printf("enqueue failed for job %s: %v", job.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue job"})
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if _, err := s.jobStore.UpdateStatus(r.Context(), job.ID, domain.JobStatusQueued); err != nil {
		s.logger.Printf("update status failed for job %s: %v", job.ID, err)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"status":      domain.JobStatusQueued,
		"queue":       taskInfo.Queue,
		"task_id":     taskInfo.ID,
		"state":       taskInfo.State.String(),
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := extractJobIDFromJobPath(r.URL.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Printf("fetch job failed for job %s: %v", jobID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load job"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}

	resp := jobResponse(job)
	if job.Status == domain.JobStatusSucceeded {
		resp["download"] = s.downloadLinks(r.Context(), job)
	}
	writeJSON(w, http.StatusOK, resp)
}

func jobResponse(job domain.Job) map[string]any {
	resp := map[string]any{
		"job_id":     job.ID,
		"status":     job.Status,
		"shard_key":  job.ShardKey,
		"spec":       job.Spec,
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
	}
	if job.WebhookURL != "" {
		resp["webhook_url"] = job.WebhookURL
	}
	if job.Seed != 0 {
		resp["seed"] = job.Seed
	}
	if job.OutputKey != "" {
		resp["output_key"] = job.OutputKey
		resp["source_records"] = job.SourceRecords
		resp["output_records"] = job.OutputRecords
	}
	if job.PreviewKey != "" {
		resp["preview_key"] = job.PreviewKey
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return resp
}

// downloadLinks presigns GET URLs for a finished job's artifacts.
// Signing failures degrade to a response without links.
func (s *Server) downloadLinks(ctx context.Context, job domain.Job) map[string]string {
	links := map[string]string{}
	if job.OutputKey != "" {
		url, err := s.storage.PresignedGetURL(ctx, job.OutputKey, s.presignTTL)
		if err != nil {
			s.logger.Printf("presign output failed for job %s: %v", job.ID, err)
		} else {
			links["shard_url"] = url
		}
	}
	if job.PreviewKey != "" {
		url, err := s.storage.PresignedGetURL(ctx, job.PreviewKey, s.presignTTL)
		if err != nil {
			s.logger.Printf("presign preview failed for job %s: %v", job.ID, err)
		} else {
			links["preview_url"] = url
		}
	}
	return links
}

func extractJobIDFromStartPath(path string) (string, error) {
	trimmed := strings.TrimPrefix(path, "/v1/jobs/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "start" {
		return "", errors.New("expected path format /v1/jobs/{id}/start")
	}
	return parts[0], nil
}

func extractJobIDFromJobPath(path string) (string, error) {
	trimmed := strings.TrimPrefix(path, "/v1/jobs/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 1 || parts[0] == "" {
		return "", errors.New("expected path format /v1/jobs/{id}")
	}
	return parts[0], nil
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
