package imageenhancer

import (
	"context"
	"io"

	"github.com/bodrovdev/image-enhancer/adapters/decoder"
	"github.com/bodrovdev/image-enhancer/adapters/encoder"
	"github.com/bodrovdev/image-enhancer/adapters/storage"
	"github.com/bodrovdev/image-enhancer/config"
	"github.com/bodrovdev/image-enhancer/core"
	apperrors "github.com/bodrovdev/image-enhancer/errors"
	"github.com/bodrovdev/image-enhancer/pipeline"
	"github.com/bodrovdev/image-enhancer/utils"
)

// Re-export Format constants for convenience.
const (
	JPEG = core.FormatJPEG
	PNG  = core.FormatPNG
	WebP = core.FormatWebP
	BMP  = core.FormatBMP
	TIFF = core.FormatTIFF
)

// Re-export quality tiers.
const (
	Smart = core.TierSmart
	Max   = core.TierMax
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// ── Mode constructors ─────────────────────────────────────────────────────────

// HD upscales to exactly 1920x1080.
func HD() core.EnhancementMode { return core.HD() }

// UHD4K upscales to exactly 3840x2160 at high quality.
func UHD4K() core.EnhancementMode { return core.UHD4K() }

// UHD4KCompressed upscales to 3840x2160 with stronger compression for
// bandwidth-constrained delivery.
func UHD4KCompressed() core.EnhancementMode { return core.UHD4KCompressed() }

// CustomScale multiplies the source dimensions by factor (2, 3, 4, or 8) at
// the given quality tier.
func CustomScale(factor int, tier core.QualityTier) core.EnhancementMode {
	return core.CustomScale(factor, tier)
}

// Optimize reduces byte size at the original resolution.
func Optimize() core.EnhancementMode { return core.Optimize() }

// ConvertFormat re-encodes into the target format without resizing.
func ConvertFormat(target core.Format) core.EnhancementMode { return core.ConvertFormat(target) }

// ── Enhancer ──────────────────────────────────────────────────────────────────

// Enhancer is the primary entry point.
type Enhancer struct {
	inner     *core.Orchestrator
	reg       *core.DefaultRegistry
	workspace *storage.Local
	cfg       config.Config
}

// New creates a fully wired Enhancer with JPEG, PNG, WebP, BMP, and TIFF
// codecs registered and a local temp workspace for per-job scopes.  Pass a
// custom config.Config to override defaults.
func New(cfg config.Config) (*Enhancer, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	reg := core.NewRegistry()
	// Register built-in codecs.
	reg.RegisterDecoder(core.FormatJPEG, decoder.NewJPEG())
	reg.RegisterDecoder(core.FormatPNG, decoder.NewPNG())
	reg.RegisterDecoder(core.FormatWebP, decoder.NewWebP())
	reg.RegisterDecoder(core.FormatBMP, decoder.NewBMP())
	reg.RegisterDecoder(core.FormatTIFF, decoder.NewTIFF())
	reg.RegisterEncoder(core.FormatJPEG, encoder.NewJPEG(cfg.DefaultQuality))
	reg.RegisterEncoder(core.FormatPNG, encoder.NewPNG())
	reg.RegisterEncoder(core.FormatWebP, encoder.NewWebP(cfg.DefaultQuality))
	reg.RegisterEncoder(core.FormatBMP, encoder.NewBMP())
	reg.RegisterEncoder(core.FormatTIFF, encoder.NewTIFF())

	ws, err := storage.NewLocal(cfg.TempDir, 0)
	if err != nil {
		return nil, err
	}

	gate := core.NewGate(cfg.MaxConcurrentJobs, cfg.QueueTimeout, ws.NewScope)
	planner := pipeline.NewPlanner(cfg, reg)
	inner := core.NewOrchestrator(cfg, reg, planner, gate)

	return &Enhancer{inner: inner, reg: reg, workspace: ws, cfg: cfg}, nil
}

// SetLogger attaches a structured logger.
func (e *Enhancer) SetLogger(l core.Logger) { e.inner.SetLogger(l) }

// SetMetrics attaches a metrics collector.
func (e *Enhancer) SetMetrics(m core.MetricsCollector) { e.inner.SetMetrics(m) }

// AddHook registers an observer for pipeline step events.
func (e *Enhancer) AddHook(h core.Hook) { e.inner.AddHook(h) }

// RegisterDecoder registers a custom decoder for the given format.
func (e *Enhancer) RegisterDecoder(f core.Format, d core.Decoder) { e.reg.RegisterDecoder(f, d) }

// RegisterEncoder registers a custom encoder for the given format.
func (e *Enhancer) RegisterEncoder(f core.Format, enc core.Encoder) { e.reg.RegisterEncoder(f, enc) }

// Registry returns the codec registry for advanced wiring (e.g. swapping in
// the libvips backend).
func (e *Enhancer) Registry() core.Registry { return e.reg }

// Enhance runs one job synchronously under the concurrency gate.
func (e *Enhancer) Enhance(ctx context.Context, src []byte, mode core.EnhancementMode) (*core.Result, error) {
	return e.inner.Enhance(ctx, src, mode)
}

// EnhanceReader drains r (bounded by MaxUploadBytes) and enhances the bytes.
func (e *Enhancer) EnhanceReader(ctx context.Context, r io.Reader, mode core.EnhancementMode) (*core.Result, error) {
	bounded := r
	if e.cfg.MaxUploadBytes > 0 {
		bounded = &utils.LimitedReader{R: r, Max: e.cfg.MaxUploadBytes + 1}
	}
	buf, err := utils.DrainReader(ctx, bounded, 0)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnsupportedOrCorruptInput, "enhance.read", err)
	}
	src := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)
	return e.inner.Enhance(ctx, src, mode)
}

// Submit enqueues an asynchronous job; the outcome is delivered on
// req.ResultCh.  Parallelism stays bounded by the gate.
func (e *Enhancer) Submit(req core.JobRequest) { e.inner.Submit(req) }

// Stats returns lightweight processing statistics.
func (e *Enhancer) Stats() (processed, failed, degraded int64) {
	return e.inner.ProcessedCount(), e.inner.ErrorCount(), e.inner.DegradedCount()
}

// Workspace returns the local temp workspace provider, mainly for
// maintenance sweeps of scopes left behind by a crashed host.
func (e *Enhancer) Workspace() *storage.Local { return e.workspace }
