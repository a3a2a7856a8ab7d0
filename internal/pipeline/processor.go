package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dunamismax/augflow/internal/augment"
	"github.com/dunamismax/augflow/internal/cifar"
	"github.com/dunamismax/augflow/internal/dataset"
	"github.com/dunamismax/augflow/internal/domain"
	"github.com/dunamismax/augflow/internal/preview"
)

var (
	ErrUnsupportedTransform = errors.New("unsupported transform type")
	ErrEmptyShard           = errors.New("source shard contains no records")
)

// Request describes one augmentation run over a single shard.
type Request struct {
	JobID    string
	UserID   string
	ShardKey string
	Spec     domain.AugmentationSpec
}

// Result reports what the run produced. Seed is the value that drove
// every random draw, recorded so the run can be reproduced.
type Result struct {
	Seed          int64
	SourceRecords int
	SourceBytes   int
	OutputRecords int
	OutputKey     string
	OutputBytes   int
	PreviewKey    string
	PreviewBytes  int
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

// Emitter persists the run's artifacts and returns where each one
// landed: an object key for the store-backed emitter, a file path for
// the local one.
type Emitter interface {
	EmitShard(ctx context.Context, req Request, data []byte) (string, error)
	EmitPreview(ctx context.Context, req Request, data []byte, format string) (string, error)
}

type Processor struct {
	fetcher Fetcher
	emitter Emitter
}

func NewProcessor(fetcher Fetcher, emitter Emitter) (*Processor, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if emitter == nil {
		return nil, errors.New("emitter is required")
	}
	return &Processor{fetcher: fetcher, emitter: emitter}, nil
}

func NewLocalProcessor(outputDir string) (*Processor, error) {
	if strings.TrimSpace(outputDir) == "" {
		return nil, errors.New("output directory is required")
	}
	return NewProcessor(LocalShardFetcher{}, LocalShardEmitter{OutputDir: outputDir})
}

func NewObjectStoreProcessor(fetcher ObjectStoreFetcher, emitter ObjectStoreEmitter) (*Processor, error) {
	return NewProcessor(fetcher, emitter)
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}

	spec := req.Spec.WithDefaults()
	if err := spec.Validate(); err != nil {
		return Result{}, fmt.Errorf("validate spec: %w", err)
	}

	pipe, err := BuildPipeline(spec)
	if err != nil {
		return Result{}, fmt.Errorf("build pipeline: %w", err)
	}

	raw, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}

	source, err := cifar.ReadShard(bytes.NewReader(raw))
	if err != nil {
		return Result{}, fmt.Errorf("decode shard: %w", err)
	}
	if len(source) == 0 {
		return Result{}, ErrEmptyShard
	}

	seed := ResolveSeed(spec.Seed)
	out := Result{
		Seed:          seed,
		SourceRecords: len(source),
		SourceBytes:   len(raw),
	}

	augmented := make([]dataset.Example, 0, augmentedCap(len(source), spec))
	for pass := 0; pass < spec.Passes; pass++ {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		batch, err := runPass(source, pipe, passSeed(seed, pass), spec)
		if err != nil {
			return Result{}, fmt.Errorf("augment pass %d: %w", pass, err)
		}
		augmented = append(augmented, batch...)
	}

	var buf bytes.Buffer
	if err := cifar.WriteShard(&buf, augmented); err != nil {
		return Result{}, fmt.Errorf("encode shard: %w", err)
	}
	out.OutputRecords = len(augmented)

	outputKey, err := p.emitter.EmitShard(ctx, req, buf.Bytes())
	if err != nil {
		return Result{}, fmt.Errorf("emit stage: %w", err)
	}
	out.OutputKey = outputKey
	out.OutputBytes = buf.Len()

	if spec.Preview != nil && spec.Preview.Count > 0 {
		key, size, err := p.emitPreview(ctx, req, spec, augmented)
		if err != nil {
			return Result{}, fmt.Errorf("preview stage: %w", err)
		}
		out.PreviewKey = key
		out.PreviewBytes = size
	}

	return out, nil
}

// runPass augments every selected source example once, then restores
// the source order the worker pool scrambles.
func runPass(source []dataset.Example, pipe *augment.Pipeline, seed int64, spec domain.AugmentationSpec) ([]dataset.Example, error) {
	ds := dataset.FromExamples("shard", source)
	if spec.Limit > 0 {
		ds = dataset.Take(ds, spec.Limit)
	}
	ds = dataset.Augment(ds, pipe, seed)

	par := dataset.Parallel(ds, spec.Parallelism, spec.Parallelism)
	defer par.Close()

	batch, err := dataset.Collect(par)
	if err != nil {
		return nil, err
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Index < batch[j].Index })
	return batch, nil
}

func (p *Processor) emitPreview(ctx context.Context, req Request, spec domain.AugmentationSpec, augmented []dataset.Example) (string, int, error) {
	ps := spec.Preview
	count := ps.Count
	if count > len(augmented) {
		count = len(augmented)
	}

	opts := preview.DefaultSheetOptions()
	if ps.Columns > 0 {
		opts.Columns = ps.Columns
	}
	if ps.Scale > 0 {
		opts.Scale = ps.Scale
	}
	opts.Captions = ps.Captions

	sheet, err := preview.RenderSheet(augmented[:count], opts)
	if err != nil {
		return "", 0, fmt.Errorf("render sheet: %w", err)
	}

	encoded, err := preview.EncodeSheet(sheet, ps.Format, ps.Quality)
	if err != nil {
		return "", 0, fmt.Errorf("encode sheet: %w", err)
	}

	key, err := p.emitter.EmitPreview(ctx, req, encoded, ps.Format)
	if err != nil {
		return "", 0, err
	}
	return key, len(encoded), nil
}

func augmentedCap(records int, spec domain.AugmentationSpec) int {
	if spec.Limit > 0 && spec.Limit < records {
		records = spec.Limit
	}
	return records * spec.Passes
}

type LocalShardFetcher struct{}

func (LocalShardFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(req.ShardKey)
	if err != nil {
		return nil, fmt.Errorf("read shard file %s: %w", req.ShardKey, err)
	}
	return data, nil
}

type LocalShardEmitter struct {
	OutputDir string
}

func (e LocalShardEmitter) EmitShard(_ context.Context, req Request, data []byte) (string, error) {
	jobDir, err := e.ensureJobDir(req)
	if err != nil {
		return "", err
	}

	fullPath := filepath.Join(jobDir, "augmented.bin")
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write output shard: %w", err)
	}
	return fullPath, nil
}

func (e LocalShardEmitter) EmitPreview(_ context.Context, req Request, data []byte, format string) (string, error) {
	jobDir, err := e.ensureJobDir(req)
	if err != nil {
		return "", err
	}

	fullPath := filepath.Join(jobDir, "preview."+previewExtension(format))
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write preview sheet: %w", err)
	}
	return fullPath, nil
}

func (e LocalShardEmitter) ensureJobDir(req Request) (string, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return "", errors.New("output directory is required")
	}

	jobDir := filepath.Join(e.OutputDir, sanitizePathToken(req.JobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return jobDir, nil
}

func previewExtension(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg":
		return "jpg"
	case "webp":
		return "webp"
	default:
		return "png"
	}
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
