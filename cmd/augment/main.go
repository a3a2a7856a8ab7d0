package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dunamismax/augflow/internal/domain"
	"github.com/dunamismax/augflow/internal/id"
	"github.com/dunamismax/augflow/internal/pipeline"
	"github.com/dunamismax/augflow/internal/preview"
)

// One-shot local runner: shard file in, augmented shard and optional
// contact sheet out. Needs no Redis, MinIO, or Postgres.
func main() {
	var (
		input       = flag.String("input", "", "path to the source shard (binary CIFAR-10 records)")
		output      = flag.String("output", "augflow-out", "directory for augmented shards and previews")
		specPath    = flag.String("spec", "", "optional JSON file with a full augmentation spec")
		transforms  = flag.String("transforms", "", "comma-separated transform types (default flip,rotate,color_jitter)")
		seed        = flag.Int64("seed", 0, "seed for every random draw (0 picks one)")
		passes      = flag.Int("passes", 0, "augmented copies per source example (default 1)")
		limit       = flag.Int("limit", 0, "cap on source examples read (0 reads the whole shard)")
		parallelism = flag.Int("parallelism", 0, "worker pool size for the augmentation pipeline (default 4)")
		previewN    = flag.Int("preview", 0, "render a contact sheet of the first N augmented examples")
		previewFmt  = flag.String("preview-format", "png", "contact sheet format: png, jpeg, or webp")
		columns     = flag.Int("columns", 0, "contact sheet columns (default 8)")
		scale       = flag.Int("scale", 0, "contact sheet tile scale factor (default 4)")
		captions    = flag.Bool("captions", true, "draw class labels under contact sheet tiles")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[augment] ", log.LstdFlags|log.Lmsgprefix)

	if strings.TrimSpace(*input) == "" {
		flag.Usage()
		logger.Fatal("-input is required")
	}

	spec, err := loadSpec(*specPath)
	if err != nil {
		logger.Fatalf("load spec: %v", err)
	}

	if list := parseTransforms(*transforms); len(list) > 0 {
		spec.Transforms = list
	}
	if *seed != 0 {
		spec.Seed = *seed
	}
	if *passes > 0 {
		spec.Passes = *passes
	}
	if *limit > 0 {
		spec.Limit = *limit
	}
	if *parallelism > 0 {
		spec.Parallelism = *parallelism
	}
	if *previewN > 0 {
		spec.Preview = &domain.PreviewSpec{
			Count:    *previewN,
			Columns:  *columns,
			Scale:    *scale,
			Format:   *previewFmt,
			Captions: *captions,
		}
	}

	if err := preview.Startup(); err != nil {
		logger.Fatalf("preview runtime startup failed: %v", err)
	}
	defer preview.Shutdown()

	processor, err := pipeline.NewLocalProcessor(*output)
	if err != nil {
		logger.Fatalf("processor setup failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req := pipeline.Request{
		JobID:    "local-" + id.New(),
		ShardKey: *input,
		Spec:     spec,
	}

	result, err := processor.Process(ctx, req)
	if err != nil {
		logger.Fatalf("augmentation failed: %v", err)
	}

	logger.Printf(
		"augmented job_id=%s records_in=%d records_out=%d seed=%d output=%s bytes=%d",
		req.JobID,
		result.SourceRecords,
		result.OutputRecords,
		result.Seed,
		result.OutputKey,
		result.OutputBytes,
	)
	if result.PreviewKey != "" {
		logger.Printf("preview rendered path=%s bytes=%d", result.PreviewKey, result.PreviewBytes)
	}
}

func loadSpec(path string) (domain.AugmentationSpec, error) {
	var spec domain.AugmentationSpec
	if strings.TrimSpace(path) == "" {
		return spec, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return spec, fmt.Errorf("read spec file: %w", err)
	}
	if err := json.Unmarshal(data, &spec); err != nil {
		return spec, fmt.Errorf("parse spec file: %w", err)
	}
	return spec, nil
}

func parseTransforms(list string) []domain.TransformSpec {
	var out []domain.TransformSpec
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, domain.TransformSpec{Type: name})
	}
	return out
}
