package config

import (
	"errors"
	"time"
)

// Config is the top-level configuration struct.  All fields have safe defaults
// so callers can start with Default() and override only what they need.
type Config struct {
	// Concurrency gate controls.
	MaxConcurrentJobs int           // simultaneous pipeline executions; default 3
	QueueTimeout      time.Duration // max time a job may wait for admission; 0 = wait forever

	// Input / output limits.
	MaxUploadBytes int64 // max input and output size in bytes; default 20 MiB
	MaxPixelCount  int64 // hard ceiling on target width*height; default 96 MP

	// ScratchPixelBudget bounds intermediate buffers allocated during
	// multi-step scaling.  Exceeding it reports an out-of-memory scale
	// failure, which triggers the orchestrator's degraded retry.
	// 0 = same as MaxPixelCount.
	ScratchPixelBudget int64

	// Encode quality.
	DefaultQuality    int // 1-100 for lossy encodes; default 95
	CompressedQuality int // quality for the compressed 4K mode; default 75

	// Quality drop applied on each re-encode when output exceeds
	// MaxUploadBytes; at most two such retries happen per job.
	SizeRetryQualityDrop int

	// Optimize mode.
	Optimize OptimizeConfig

	// Filter intensity policy, keyed by resolution bucket and quality tier.
	Intensity IntensityTable

	// Temp workspace for per-job intermediate artifacts.
	TempDir string // default os.TempDir()/image-enhancer

	// Logging.
	LogLevel string // "debug", "info", "warn", "error"
}

// OptimizeConfig controls the byte-size reduction loop of Optimize mode.
type OptimizeConfig struct {
	TargetSizeBytes int64 // desired maximum output size; default 1 MiB
	MinQuality      int   // floor to prevent over-compression; default 40
	StartQuality    int   // ceiling; default 85
	StepSize        int   // quality decrement per iteration; default 5
}

// FilterIntensity holds per-filter strengths in the 0..1 range.
// Zero disables the corresponding pass.
type FilterIntensity struct {
	Denoise  float64
	Sharpen  float64
	Contrast float64
}

// IntensityBucket maps images up to MaxPixels to an intensity pair.
// Larger images get reduced intensity to bound per-pixel processing cost;
// the curve is policy, not law, and callers may replace it wholesale.
type IntensityBucket struct {
	MaxPixels int64 // inclusive upper bound; the last bucket catches the rest
	Smart     FilterIntensity
	Max       FilterIntensity
}

// IntensityTable is an ordered list of buckets, smallest first.
type IntensityTable []IntensityBucket

// Lookup returns the intensity pair for an image of w*h pixels.
func (t IntensityTable) Lookup(pixels int64, maxTier bool) FilterIntensity {
	for _, b := range t {
		if pixels <= b.MaxPixels {
			if maxTier {
				return b.Max
			}
			return b.Smart
		}
	}
	if len(t) == 0 {
		return FilterIntensity{}
	}
	last := t[len(t)-1]
	if maxTier {
		return last.Max
	}
	return last.Smart
}

// Default returns a Config populated with sensible production defaults.
// Intensity drops as pixel count grows: strong denoise/sharpen on small
// sources, reduced strength on large ones to bound per-pixel cost.
func Default() Config {
	return Config{
		MaxConcurrentJobs:    3,
		QueueTimeout:         60 * time.Second,
		MaxUploadBytes:       20 * 1024 * 1024,
		MaxPixelCount:        96_000_000,
		DefaultQuality:       95,
		CompressedQuality:    75,
		SizeRetryQualityDrop: 15,
		Optimize: OptimizeConfig{
			TargetSizeBytes: 1 * 1024 * 1024,
			MinQuality:      40,
			StartQuality:    85,
			StepSize:        5,
		},
		Intensity: IntensityTable{
			{MaxPixels: 1_000_000, // ≤1 MP
				Smart: FilterIntensity{Denoise: 0.6, Sharpen: 0.5, Contrast: 0.15},
				Max:   FilterIntensity{Denoise: 0.8, Sharpen: 0.7, Contrast: 0.25}},
			{MaxPixels: 4_000_000, // ≤4 MP
				Smart: FilterIntensity{Denoise: 0.4, Sharpen: 0.4, Contrast: 0.10},
				Max:   FilterIntensity{Denoise: 0.6, Sharpen: 0.5, Contrast: 0.20}},
			{MaxPixels: 9_000_000, // ≤9 MP (covers 4K)
				Smart: FilterIntensity{Denoise: 0.25, Sharpen: 0.3, Contrast: 0.08},
				Max:   FilterIntensity{Denoise: 0.4, Sharpen: 0.4, Contrast: 0.12}},
			{MaxPixels: 1 << 62, // everything larger
				Smart: FilterIntensity{Denoise: 0.1, Sharpen: 0.2, Contrast: 0.05},
				Max:   FilterIntensity{Denoise: 0.2, Sharpen: 0.25, Contrast: 0.08}},
		},
		LogLevel: "info",
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	if c.MaxConcurrentJobs <= 0 {
		return errors.New("config: MaxConcurrentJobs must be positive")
	}
	if c.DefaultQuality < 1 || c.DefaultQuality > 100 {
		return errors.New("config: DefaultQuality must be between 1 and 100")
	}
	if c.CompressedQuality < 1 || c.CompressedQuality > 100 {
		return errors.New("config: CompressedQuality must be between 1 and 100")
	}
	if c.MaxPixelCount <= 0 {
		return errors.New("config: MaxPixelCount must be positive")
	}
	if c.Optimize.MinQuality >= c.Optimize.StartQuality {
		return errors.New("config: Optimize.MinQuality must be less than StartQuality")
	}
	if len(c.Intensity) == 0 {
		return errors.New("config: Intensity table must not be empty")
	}
	return nil
}
