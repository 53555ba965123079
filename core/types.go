package core

import (
	"context"
	"fmt"
	"time"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatBMP     Format = "bmp"
	FormatTIFF    Format = "tiff"
	FormatUnknown Format = "unknown"
)

// HasAlphaSupport reports whether the format can carry an alpha channel.
// Encoding an RGBA buffer to a format without alpha flattens onto white.
func (f Format) HasAlphaSupport() bool {
	switch f {
	case FormatPNG, FormatWebP, FormatTIFF:
		return true
	}
	return false
}

// Lossless reports whether the encode quality parameter is meaningful.
func (f Format) Lossless() bool {
	switch f {
	case FormatPNG, FormatBMP, FormatTIFF:
		return true
	}
	return false
}

// QualityTier governs filter intensity and encode quality, independent of
// scale factor.
type QualityTier string

const (
	TierSmart QualityTier = "smart"
	TierMax   QualityTier = "max"
)

// ModeKind enumerates the enhancement mode variants.
type ModeKind string

const (
	ModeHD              ModeKind = "hd"
	ModeUHD4K           ModeKind = "uhd4k"
	ModeUHD4KCompressed ModeKind = "uhd4k_compressed"
	ModeCustomScale     ModeKind = "custom_scale"
	ModeOptimize        ModeKind = "optimize"
	ModeConvertFormat   ModeKind = "convert_format"
)

// EnhancementMode is a named target profile selected by the requester.
// Immutable once constructed; build one with the mode constructors below.
type EnhancementMode struct {
	Kind         ModeKind
	ScaleFactor  int         // CustomScale only; one of 2, 3, 4, 8
	Tier         QualityTier // CustomScale only
	TargetFormat Format      // ConvertFormat, or an optional override elsewhere
}

func (m EnhancementMode) String() string {
	switch m.Kind {
	case ModeCustomScale:
		return fmt.Sprintf("%s(%dx,%s)", m.Kind, m.ScaleFactor, m.Tier)
	case ModeConvertFormat:
		return fmt.Sprintf("%s(%s)", m.Kind, m.TargetFormat)
	}
	return string(m.Kind)
}

// HD targets 1920x1080.
func HD() EnhancementMode { return EnhancementMode{Kind: ModeHD, Tier: TierSmart} }

// UHD4K targets 3840x2160 at full quality.
func UHD4K() EnhancementMode { return EnhancementMode{Kind: ModeUHD4K, Tier: TierSmart} }

// UHD4KCompressed targets 3840x2160 with a smaller output file.
func UHD4KCompressed() EnhancementMode {
	return EnhancementMode{Kind: ModeUHD4KCompressed, Tier: TierSmart}
}

// CustomScale upscales by factor (2, 3, 4 or 8) at the given tier.
func CustomScale(factor int, tier QualityTier) EnhancementMode {
	return EnhancementMode{Kind: ModeCustomScale, ScaleFactor: factor, Tier: tier}
}

// Optimize targets a byte-size reduction without resizing.
func Optimize() EnhancementMode { return EnhancementMode{Kind: ModeOptimize, Tier: TierSmart} }

// ConvertFormat re-encodes into the target format without resizing.
func ConvertFormat(target Format) EnhancementMode {
	return EnhancementMode{Kind: ModeConvertFormat, Tier: TierSmart, TargetFormat: target}
}

// WithTargetFormat returns a copy of m overriding the output format.
func (m EnhancementMode) WithTargetFormat(f Format) EnhancementMode {
	m.TargetFormat = f
	return m
}

// Metadata holds information about a decoded buffer.
type Metadata struct {
	Width     int
	Height    int
	Channels  int // 1 (gray), 3 (rgb) or 4 (rgba)
	Format    Format
	HasAlpha  bool
	SizeBytes int64
}

// ImageData is the in-memory representation passed through a pipeline.
// Exactly one instance is live per job at any time; ownership transfers
// sequentially from step to step, no sharing, no aliasing.
type ImageData struct {
	// Encoded bytes — non-nil when the image has been encoded or is raw input.
	Data   []byte
	Format Format

	// Decoded pixel buffer — populated by the decode step.
	// Using image.Image keeps the default backend CGO-free; the libvips
	// adapter wraps its own handle type and satisfies the same interfaces.
	Image interface{} // actual type: image.Image or vips-backed handle

	// Metadata extracted during decode and updated by each step.
	Meta Metadata

	// Size of the original raw input for adaptive compression decisions.
	OriginalSize int64
}

// OperationPlan is an ordered sequence of typed steps built once per job by
// the planner.  It is never mutated mid-execution; on failure a new (degraded)
// plan replaces it.
type OperationPlan struct {
	Steps []Step

	// Descriptors recorded for metadata and degradation decisions.
	TargetW, TargetH int // 0 when the plan has no scale step
	Quality          int
	Tier             QualityTier
	OutFormat        Format
	Degraded         bool
}

// JobState tracks the orchestrator's per-job state machine.
type JobState string

const (
	StatePlanned   JobState = "planned"
	StateExecuting JobState = "executing"
	StateDegrading JobState = "degrading"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
)

// ProcessingJob carries request identity and execution state for one job.
// Created when the gate admits the request; its temporary resources are
// released when the outcome is delivered.
type ProcessingJob struct {
	ID      string
	Source  []byte
	Mode    EnhancementMode
	Plan    *OperationPlan
	Attempt int // 1 = primary plan, 2 = degraded plan
	State   JobState
}

// Result is returned to the caller after a job succeeds.
type Result struct {
	Bytes     []byte
	Format    Format
	Width     int
	Height    int
	SizeBytes int64
	Degraded  bool

	// Observability.
	ProcessingTime time.Duration
	StepTimings    map[string]time.Duration
}

// Step is the fundamental pipeline building block.  Each Step consumes an
// *ImageData value and returns a new one; implementations must be safe for
// concurrent use across goroutines.
type Step interface {
	Name() string
	Execute(ctx context.Context, img *ImageData) (*ImageData, error)
}

// Hook is an optional observer invoked around pipeline steps.
type Hook interface {
	BeforeStep(ctx context.Context, stepName string, img *ImageData)
	AfterStep(ctx context.Context, stepName string, img *ImageData, d time.Duration, err error)
}
