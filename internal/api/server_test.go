package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dunamismax/augflow/internal/domain"
	"github.com/dunamismax/augflow/internal/queue"
	"github.com/dunamismax/augflow/internal/ratelimit"
	"github.com/dunamismax/augflow/internal/store"
)

type stubEnqueuer struct {
	err     error
	calls   int
	payload queue.AugmentDatasetPayload
}

func (s *stubEnqueuer) EnqueueAugmentDataset(_ context.Context, payload queue.AugmentDatasetPayload) (*asynq.TaskInfo, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	s.payload = payload
	return &asynq.TaskInfo{
		ID:            "task-1",
		Queue:         "default",
		Type:          queue.TypeAugmentDataset,
		State:         asynq.TaskStatePending,
		NextProcessAt: time.Now().UTC(),
	}, nil
}

type fakeObjectStorage struct {
	exists     bool
	existsErr  error
	presignErr error
}

func (f fakeObjectStorage) PresignedPutURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return "https://objects.test/put/" + objectKey, nil
}

func (f fakeObjectStorage) PresignedGetURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return "https://objects.test/get/" + objectKey, nil
}

func (f fakeObjectStorage) ObjectExists(_ context.Context, _ string) (bool, error) {
	return f.exists, f.existsErr
}

type stubLimiter struct {
	decision ratelimit.Decision
	err      error
	subject  string
}

func (l *stubLimiter) Allow(_ context.Context, subject string) (ratelimit.Decision, error) {
	l.subject = subject
	if l.err != nil {
		return ratelimit.Decision{}, l.err
	}
	return l.decision, nil
}

func newTestServer(t *testing.T, enq queueEnqueuer, jobs store.JobStore, objStorage objectStorage, limiter RateLimiter) *Server {
	t.Helper()
	return NewServer(log.New(io.Discard, "", 0), enq, jobs, objStorage, limiter, time.Minute)
}

func seedJob(t *testing.T, jobs *store.MemoryJobStore, id, status string) domain.Job {
	t.Helper()
	now := time.Now().UTC()
	job := domain.Job{
		ID:        id,
		Status:    status,
		UserID:    "user-1",
		ShardKey:  "shards/incoming/" + id + ".bin",
		Spec:      domain.AugmentationSpec{}.WithDefaults(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

func doJSON(t *testing.T, handler http.Handler, method, target string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reqBody)
	for key, value := range header {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return body
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &stubEnqueuer{}, store.NewMemoryJobStore(), fakeObjectStorage{}, nil)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := decodeBody(t, rec)["status"]; got != "ok" {
		t.Fatalf("expected status ok, got %v", got)
	}
}

func TestCreateJobAllocatesUpload(t *testing.T) {
	jobs := store.NewMemoryJobStore()
	s := newTestServer(t, &stubEnqueuer{}, jobs, fakeObjectStorage{}, nil)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs", map[string]any{
		"spec": map[string]any{"passes": 2},
	}, map[string]string{HeaderUserID: "user-1"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d body=%s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	jobID, _ := body["job_id"].(string)
	if jobID == "" {
		t.Fatal("expected a job_id in the response")
	}
	upload, _ := body["upload"].(map[string]any)
	if upload == nil {
		t.Fatal("expected an upload block in the response")
	}
	if got := upload["presigned_url_state"]; got != "ready" {
		t.Fatalf("expected upload state ready, got %v", got)
	}
	shardKey, _ := upload["shard_key"].(string)
	if !strings.HasPrefix(shardKey, "shards/incoming/") {
		t.Fatalf("expected an incoming shard key, got %q", shardKey)
	}
	if got := upload["presigned_put_url"]; got != "https://objects.test/put/"+shardKey {
		t.Fatalf("unexpected presigned put url: %v", got)
	}
	if got := body["start_url"]; got != "/v1/jobs/"+jobID+"/start" {
		t.Fatalf("unexpected start_url: %v", got)
	}

	job, ok, err := jobs.Get(context.Background(), jobID)
	if err != nil || !ok {
		t.Fatalf("expected stored job, ok=%v err=%v", ok, err)
	}
	if job.Status != domain.JobStatusCreated {
		t.Fatalf("expected status created, got %s", job.Status)
	}
	if job.UserID != "user-1" {
		t.Fatalf("expected user-1, got %q", job.UserID)
	}
	if len(job.Spec.Transforms) != 3 {
		t.Fatalf("expected stock transforms, got %d", len(job.Spec.Transforms))
	}
	if job.Spec.Passes != 2 || job.Spec.Parallelism != domain.DefaultParallelism {
		t.Fatalf("expected defaulted spec, got passes=%d parallelism=%d", job.Spec.Passes, job.Spec.Parallelism)
	}
}

func TestCreateJobWithProvidedShardKey(t *testing.T) {
	jobs := store.NewMemoryJobStore()
	s := newTestServer(t, &stubEnqueuer{}, jobs, fakeObjectStorage{}, nil)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs", map[string]any{
		"shard_key": "shards/incoming/mine.bin",
		"spec": map[string]any{
			"transforms": []map[string]any{
				{"type": "zoom", "min_scale": 0.8, "max_scale": 0.9},
			},
		},
	}, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d body=%s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	upload, _ := body["upload"].(map[string]any)
	if upload == nil {
		t.Fatal("expected an upload block in the response")
	}
	if got := upload["presigned_url_state"]; got != "not_required" {
		t.Fatalf("expected upload state not_required, got %v", got)
	}
	if got := upload["presigned_put_url"]; got != "" {
		t.Fatalf("expected no presigned put url, got %v", got)
	}
	if got := upload["shard_key"]; got != "shards/incoming/mine.bin" {
		t.Fatalf("expected provided shard key, got %v", got)
	}

	jobID, _ := body["job_id"].(string)
	job, ok, err := jobs.Get(context.Background(), jobID)
	if err != nil || !ok {
		t.Fatalf("expected stored job, ok=%v err=%v", ok, err)
	}
	if len(job.Spec.Transforms) != 1 || job.Spec.Transforms[0].Type != domain.TransformZoom {
		t.Fatalf("expected the provided zoom transform, got %+v", job.Spec.Transforms)
	}
}

func TestCreateJobRejectsInvalidSpec(t *testing.T) {
	s := newTestServer(t, &stubEnqueuer{}, store.NewMemoryJobStore(), fakeObjectStorage{}, nil)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs", map[string]any{
		"spec": map[string]any{
			"transforms": []map[string]any{{"type": "sharpen"}},
		},
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if errMsg, _ := decodeBody(t, rec)["error"].(string); !strings.Contains(errMsg, "unsupported transform") {
		t.Fatalf("expected unsupported transform error, got %q", errMsg)
	}
}

func TestCreateJobRejectsPresignFailure(t *testing.T) {
	s := newTestServer(t, &stubEnqueuer{}, store.NewMemoryJobStore(), fakeObjectStorage{presignErr: errors.New("minio down")}, nil)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs", map[string]any{
		"spec": map[string]any{},
	}, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
}

func TestStartJobEnqueues(t *testing.T) {
	jobs := store.NewMemoryJobStore()
	enq := &stubEnqueuer{}
	s := newTestServer(t, enq, jobs, fakeObjectStorage{exists: true}, nil)
	job := seedJob(t, jobs, "job-1", domain.JobStatusCreated)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs/job-1/start", nil, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d body=%s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if got := body["task_id"]; got != "task-1" {
		t.Fatalf("expected task-1, got %v", got)
	}
	if got := body["queue"]; got != "default" {
		t.Fatalf("expected queue default, got %v", got)
	}
	if got := body["status"]; got != domain.JobStatusQueued {
		t.Fatalf("expected status queued, got %v", got)
	}

	if enq.payload.JobID != "job-1" {
		t.Fatalf("expected enqueued job-1, got %q", enq.payload.JobID)
	}
	if enq.payload.UserID != "user-1" {
		t.Fatalf("expected enqueued user-1, got %q", enq.payload.UserID)
	}
	if enq.payload.ShardKey != job.ShardKey {
		t.Fatalf("expected shard key %q, got %q", job.ShardKey, enq.payload.ShardKey)
	}
	if len(enq.payload.Spec.Transforms) != 3 {
		t.Fatalf("expected 3 transforms in the payload, got %d", len(enq.payload.Spec.Transforms))
	}

	stored, _, err := jobs.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("fetch job: %v", err)
	}
	if stored.Status != domain.JobStatusQueued {
		t.Fatalf("expected stored status queued, got %s", stored.Status)
	}
}

func TestStartJobUnknownJob(t *testing.T) {
	s := newTestServer(t, &stubEnqueuer{}, store.NewMemoryJobStore(), fakeObjectStorage{exists: true}, nil)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs/ghost/start", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestStartJobMissingShard(t *testing.T) {
	jobs := store.NewMemoryJobStore()
	enq := &stubEnqueuer{}
	s := newTestServer(t, enq, jobs, fakeObjectStorage{exists: false}, nil)
	seedJob(t, jobs, "job-1", domain.JobStatusCreated)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs/job-1/start", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
	if errMsg, _ := decodeBody(t, rec)["error"].(string); !strings.Contains(errMsg, "missing") {
		t.Fatalf("expected missing shard error, got %q", errMsg)
	}
	if enq.calls != 0 {
		t.Fatalf("expected no enqueue, got %d calls", enq.calls)
	}
}

func TestStartJobAlreadyRunning(t *testing.T) {
	for _, status := range []string{domain.JobStatusProcessing, domain.JobStatusSucceeded} {
		jobs := store.NewMemoryJobStore()
		enq := &stubEnqueuer{}
		s := newTestServer(t, enq, jobs, fakeObjectStorage{exists: true}, nil)
		seedJob(t, jobs, "job-1", status)

		rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs/job-1/start", nil, nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("status %s: expected status 409, got %d", status, rec.Code)
		}
		if enq.calls != 0 {
			t.Fatalf("status %s: expected no enqueue, got %d calls", status, enq.calls)
		}
	}
}

func TestStartJobRetriesAfterFailure(t *testing.T) {
	jobs := store.NewMemoryJobStore()
	enq := &stubEnqueuer{}
	s := newTestServer(t, enq, jobs, fakeObjectStorage{exists: true}, nil)
	seedJob(t, jobs, "job-1", domain.JobStatusFailed)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs/job-1/start", nil, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202 for a failed job restart, got %d", rec.Code)
	}
	if enq.calls != 1 {
		t.Fatalf("expected one enqueue, got %d calls", enq.calls)
	}
}

func TestGetJobIncludesDownloadLinks(t *testing.T) {
	jobs := store.NewMemoryJobStore()
	s := newTestServer(t, &stubEnqueuer{}, jobs, fakeObjectStorage{}, nil)
	seedJob(t, jobs, "job-9", domain.JobStatusCreated)
	if _, err := jobs.RecordResult(context.Background(), "job-9", domain.JobResult{
		Status:        domain.JobStatusSucceeded,
		Seed:          42,
		OutputKey:     "shards/augmented/job-9.bin",
		PreviewKey:    "previews/job-9.png",
		SourceRecords: 12,
		OutputRecords: 24,
	}); err != nil {
		t.Fatalf("record result: %v", err)
	}

	rec := doJSON(t, s.Handler(), http.MethodGet, "/v1/jobs/job-9", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	body := decodeBody(t, rec)
	if got := body["status"]; got != domain.JobStatusSucceeded {
		t.Fatalf("expected status succeeded, got %v", got)
	}
	if got := body["seed"]; got != float64(42) {
		t.Fatalf("expected seed 42, got %v", got)
	}
	if got := body["output_records"]; got != float64(24) {
		t.Fatalf("expected 24 output records, got %v", got)
	}

	download, _ := body["download"].(map[string]any)
	if download == nil {
		t.Fatal("expected download links for a succeeded job")
	}
	if got := download["shard_url"]; got != "https://objects.test/get/shards/augmented/job-9.bin" {
		t.Fatalf("unexpected shard_url: %v", got)
	}
	if got := download["preview_url"]; got != "https://objects.test/get/previews/job-9.png" {
		t.Fatalf("unexpected preview_url: %v", got)
	}
}

func TestGetJobPendingOmitsDownloadLinks(t *testing.T) {
	jobs := store.NewMemoryJobStore()
	s := newTestServer(t, &stubEnqueuer{}, jobs, fakeObjectStorage{}, nil)
	seedJob(t, jobs, "job-1", domain.JobStatusQueued)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/v1/jobs/job-1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	body := decodeBody(t, rec)
	if _, ok := body["download"]; ok {
		t.Fatal("expected no download links for a pending job")
	}
	if _, ok := body["seed"]; ok {
		t.Fatal("expected no seed before the run finishes")
	}
}

func TestGetJobNotFound(t *testing.T) {
	s := newTestServer(t, &stubEnqueuer{}, store.NewMemoryJobStore(), fakeObjectStorage{}, nil)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/v1/jobs/ghost", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestRateLimitRejects(t *testing.T) {
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: false, Remaining: 0, RetryAfter: 30 * time.Second}}
	s := newTestServer(t, &stubEnqueuer{}, store.NewMemoryJobStore(), fakeObjectStorage{}, limiter)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs", map[string]any{
		"spec": map[string]any{},
	}, map[string]string{HeaderUserID: "user-1"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("expected Retry-After 30, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected X-RateLimit-Remaining 0, got %q", got)
	}
	if limiter.subject != "user-1:/v1/jobs" {
		t.Fatalf("expected subject user-1:/v1/jobs, got %q", limiter.subject)
	}
}

func TestRateLimitAllowsAndReportsRemaining(t *testing.T) {
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: true, Remaining: 5}}
	s := newTestServer(t, &stubEnqueuer{}, store.NewMemoryJobStore(), fakeObjectStorage{}, limiter)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs", map[string]any{
		"spec": map[string]any{},
	}, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "5" {
		t.Fatalf("expected X-RateLimit-Remaining 5, got %q", got)
	}
	if limiter.subject != "anonymous:/v1/jobs" {
		t.Fatalf("expected subject anonymous:/v1/jobs, got %q", limiter.subject)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &stubLimiter{err: errors.New("redis down")}
	s := newTestServer(t, &stubEnqueuer{}, store.NewMemoryJobStore(), fakeObjectStorage{}, limiter)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/jobs", map[string]any{
		"spec": map[string]any{},
	}, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected limiter outage to fail open with 202, got %d", rec.Code)
	}
}

func TestRateLimitSkipsReads(t *testing.T) {
	jobs := store.NewMemoryJobStore()
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: false}}
	s := newTestServer(t, &stubEnqueuer{}, jobs, fakeObjectStorage{}, limiter)
	seedJob(t, jobs, "job-1", domain.JobStatusQueued)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/v1/jobs/job-1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected GET to bypass the limiter with 200, got %d", rec.Code)
	}
}

func TestExtractJobIDFromStartPath(t *testing.T) {
	jobID, err := extractJobIDFromStartPath("/v1/jobs/abc123/start")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if jobID != "abc123" {
		t.Fatalf("expected abc123, got %s", jobID)
	}

	if _, err := extractJobIDFromStartPath("/v1/jobs/abc123"); err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestExtractJobIDFromJobPath(t *testing.T) {
	jobID, err := extractJobIDFromJobPath("/v1/jobs/abc123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if jobID != "abc123" {
		t.Fatalf("expected abc123, got %s", jobID)
	}

	if _, err := extractJobIDFromJobPath("/v1/jobs/abc123/start"); err == nil {
		t.Fatal("expected error for invalid path")
	}
	if _, err := extractJobIDFromJobPath("/v1/jobs/"); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/v1/jobs":           "/v1/jobs",
		"/v1/jobs/abc":       "/v1/jobs/{id}",
		"/v1/jobs/abc/start": "/v1/jobs/{id}/start",
		"/healthz":           "/healthz",
		"/metrics":           "/metrics",
		"/other":             "/other",
	}
	for path, want := range cases {
		if got := routeLabel(path); got != want {
			t.Fatalf("routeLabel(%q): expected %q, got %q", path, want, got)
		}
	}
}
