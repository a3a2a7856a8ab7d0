package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/dunamismax/augflow/internal/augment"
	"github.com/dunamismax/augflow/internal/domain"
)

// BuildPipeline turns a job's transform list into an executable
// augmentation pipeline. Zero-valued knobs keep each transform's stock
// range.
func BuildPipeline(spec domain.AugmentationSpec) (*augment.Pipeline, error) {
	transforms := make([]augment.Transform, 0, len(spec.Transforms))
	for i, ts := range spec.Transforms {
		built, err := buildTransform(ts)
		if err != nil {
			return nil, fmt.Errorf("transforms[%d]: %w", i, err)
		}
		transforms = append(transforms, built)
	}
	return augment.NewPipeline(transforms...), nil
}

func buildTransform(spec domain.TransformSpec) (augment.Transform, error) {
	switch strings.ToLower(strings.TrimSpace(spec.Type)) {
	case domain.TransformFlip:
		return augment.NewRandomFlip(), nil

	case domain.TransformRotate:
		return augment.NewRandomRotate(), nil

	case domain.TransformColorJitter:
		jitter := augment.NewColorJitter()
		if spec.HueDelta != 0 {
			jitter.HueDelta = spec.HueDelta
		}
		if spec.SaturationLow != 0 {
			jitter.SaturationLow = spec.SaturationLow
		}
		if spec.SaturationHigh != 0 {
			jitter.SaturationHigh = spec.SaturationHigh
		}
		if spec.BrightnessDelta != 0 {
			jitter.BrightnessDelta = spec.BrightnessDelta
		}
		if spec.ContrastLow != 0 {
			jitter.ContrastLow = spec.ContrastLow
		}
		if spec.ContrastHigh != 0 {
			jitter.ContrastHigh = spec.ContrastHigh
		}
		return jitter, nil

	case domain.TransformZoom:
		minScale := augment.DefaultZoomMinScale
		if spec.MinScale != 0 {
			minScale = spec.MinScale
		}
		maxScale := augment.DefaultZoomMaxScale
		if spec.MaxScale != 0 {
			maxScale = spec.MaxScale
		}
		skipProb := augment.DefaultZoomSkipProb
		if spec.SkipProb != 0 {
			skipProb = spec.SkipProb
		}
		return augment.NewRandomZoomScales(minScale, maxScale, augment.DefaultZoomStep, skipProb), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTransform, spec.Type)
	}
}

// ResolveSeed returns the seed that drives a run, picking one from the
// clock when the job left it at zero.
func ResolveSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return time.Now().UnixNano()
}

// passSeed derives the seed for one augmentation pass. Pass zero uses
// the run seed unchanged so a single-pass run is reproducible from the
// job's recorded seed alone; later passes scramble it through a
// splitmix64-style finalizer.
func passSeed(seed int64, pass int) int64 {
	if pass == 0 {
		return seed
	}
	z := uint64(seed) ^ uint64(pass)*0xd1342543de82ef95
	z = (z ^ z>>30) * 0xbf58476d1ce4e5b9
	z = (z ^ z>>27) * 0x94d049bb133111eb
	return int64(z ^ z>>31)
}
