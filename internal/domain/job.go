package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	TransformFlip        = "flip"
	TransformRotate      = "rotate"
	TransformColorJitter = "color_jitter"
	TransformZoom        = "zoom"
)

const (
	DefaultPasses      = 1
	MaxPasses          = 10
	DefaultParallelism = 4
	MaxParallelism     = 32

	DefaultPreviewCount   = 16
	MaxPreviewCount       = 64
	DefaultPreviewColumns = 8
	DefaultPreviewScale   = 4
)

type CreateJobRequest struct {
	ShardKey   string           `json:"shard_key"`
	WebhookURL string           `json:"webhook_url,omitempty"`
	Spec       AugmentationSpec `json:"spec"`
}

// AugmentationSpec describes one augmentation run over a shard: which
// transforms to apply, how many augmented passes to produce per source
// example, and whether to render a preview sheet of the output.
type AugmentationSpec struct {
	Transforms []TransformSpec `json:"transforms"`
	// Seed drives every random draw of the run. Zero asks the worker
	// to pick one, recorded on the job afterwards.
	Seed int64 `json:"seed,omitempty"`
	// Passes is the number of augmented copies per source example.
	Passes int `json:"passes,omitempty"`
	// Limit caps how many source examples are read from the shard.
	// Zero means the whole shard.
	Limit int `json:"limit,omitempty"`
	// Parallelism is the worker-pool hint for the augmentation
	// pipeline, clamped to MaxParallelism.
	Parallelism int          `json:"parallelism,omitempty"`
	Preview     *PreviewSpec `json:"preview,omitempty"`
}

// TransformSpec selects one transform by type with optional parameter
// overrides. Zero-valued knobs fall back to the transform's stock
// range.
type TransformSpec struct {
	Type string `json:"type"`

	HueDelta        float64 `json:"hue_delta,omitempty"`
	SaturationLow   float64 `json:"saturation_low,omitempty"`
	SaturationHigh  float64 `json:"saturation_high,omitempty"`
	BrightnessDelta float64 `json:"brightness_delta,omitempty"`
	ContrastLow     float64 `json:"contrast_low,omitempty"`
	ContrastHigh    float64 `json:"contrast_high,omitempty"`

	MinScale float64 `json:"min_scale,omitempty"`
	MaxScale float64 `json:"max_scale,omitempty"`
	SkipProb float64 `json:"skip_prob,omitempty"`
}

// PreviewSpec asks the worker to render a contact sheet of augmented
// examples next to the output shard.
type PreviewSpec struct {
	Count    int    `json:"count,omitempty"`
	Columns  int    `json:"columns,omitempty"`
	Scale    int    `json:"scale,omitempty"`
	Format   string `json:"format,omitempty"`
	Quality  int    `json:"quality,omitempty"`
	Captions bool   `json:"captions,omitempty"`
}

type Job struct {
	ID         string
	Status     string
	UserID     string
	ShardKey   string
	WebhookURL string
	Spec       AugmentationSpec
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Result fields, populated once the worker finishes.
	Seed          int64
	OutputKey     string
	PreviewKey    string
	SourceRecords int
	OutputRecords int
	Error         string
}

// JobResult is what a finished run reports back to the store.
type JobResult struct {
	Status        string
	Seed          int64
	OutputKey     string
	PreviewKey    string
	SourceRecords int
	OutputRecords int
	Error         string
}

// DefaultTransforms is the stock pipeline applied when a request names
// no transforms: flip, rotate, then color jitter. Zoom is opt-in.
func DefaultTransforms() []TransformSpec {
	return []TransformSpec{
		{Type: TransformFlip},
		{Type: TransformRotate},
		{Type: TransformColorJitter},
	}
}

// WithDefaults fills the spec's empty slots: stock transforms, one
// pass, and the standard parallelism hint. The receiver is not
// modified.
func (s AugmentationSpec) WithDefaults() AugmentationSpec {
	if len(s.Transforms) == 0 {
		s.Transforms = DefaultTransforms()
	}
	if s.Passes == 0 {
		s.Passes = DefaultPasses
	}
	if s.Parallelism == 0 {
		s.Parallelism = DefaultParallelism
	}
	return s
}

// Validate checks a create request. ShardKey may be empty: the API
// then allocates an incoming key and hands back a presigned upload URL.
func (r CreateJobRequest) Validate() error {
	if url := strings.TrimSpace(r.WebhookURL); url != "" {
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return errors.New("webhook_url must be an http or https URL")
		}
	}
	return r.Spec.Validate()
}

func (s AugmentationSpec) Validate() error {
	if len(s.Transforms) == 0 {
		return errors.New("spec.transforms must contain at least one transform")
	}
	for i, t := range s.Transforms {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("spec.transforms[%d]: %w", i, err)
		}
	}
	if s.Passes < 0 || s.Passes > MaxPasses {
		return fmt.Errorf("spec.passes must be between 0 and %d", MaxPasses)
	}
	if s.Limit < 0 {
		return errors.New("spec.limit must not be negative")
	}
	if s.Parallelism < 0 || s.Parallelism > MaxParallelism {
		return fmt.Errorf("spec.parallelism must be between 0 and %d", MaxParallelism)
	}
	if s.Preview != nil {
		if err := s.Preview.Validate(); err != nil {
			return fmt.Errorf("spec.preview: %w", err)
		}
	}
	return nil
}

func (t TransformSpec) Validate() error {
	switch strings.ToLower(strings.TrimSpace(t.Type)) {
	case TransformFlip, TransformRotate:
		return nil
	case TransformColorJitter:
		if t.HueDelta < 0 || t.HueDelta > 0.5 {
			return errors.New("hue_delta must be between 0 and 0.5")
		}
		if t.SaturationLow < 0 || t.BrightnessDelta < 0 || t.ContrastLow < 0 {
			return errors.New("jitter ranges must not be negative")
		}
		if t.SaturationHigh != 0 && t.SaturationHigh < t.SaturationLow {
			return errors.New("saturation_high must not be below saturation_low")
		}
		if t.ContrastHigh != 0 && t.ContrastHigh < t.ContrastLow {
			return errors.New("contrast_high must not be below contrast_low")
		}
		return nil
	case TransformZoom:
		if t.MinScale < 0 || t.MinScale > 1 || t.MaxScale < 0 || t.MaxScale > 1 {
			return errors.New("zoom scales must be between 0 and 1")
		}
		if t.MaxScale != 0 && t.MaxScale < t.MinScale {
			return errors.New("max_scale must not be below min_scale")
		}
		if t.SkipProb < 0 || t.SkipProb > 1 {
			return errors.New("skip_prob must be between 0 and 1")
		}
		return nil
	case "":
		return errors.New("type is required")
	default:
		return fmt.Errorf("unsupported transform type: %s", t.Type)
	}
}

func (p PreviewSpec) Validate() error {
	if p.Count < 0 || p.Count > MaxPreviewCount {
		return fmt.Errorf("count must be between 0 and %d", MaxPreviewCount)
	}
	if p.Columns < 0 {
		return errors.New("columns must not be negative")
	}
	if p.Scale < 0 {
		return errors.New("scale must not be negative")
	}
	if p.Quality < 0 || p.Quality > 100 {
		return errors.New("quality must be between 0 and 100")
	}
	switch strings.ToLower(strings.TrimSpace(p.Format)) {
	case "", "png", "jpeg", "jpg", "webp":
		return nil
	default:
		return fmt.Errorf("unsupported preview format: %s", p.Format)
	}
}
