package pipeline

import (
	"fmt"

	"github.com/bodrovdev/image-enhancer/config"
	"github.com/bodrovdev/image-enhancer/core"
	apperrors "github.com/bodrovdev/image-enhancer/errors"
)

// Resolution targets.
const (
	hdWidth   = 1920
	hdHeight  = 1080
	uhdWidth  = 3840
	uhdHeight = 2160
)

// Planner resolves an EnhancementMode into an OperationPlan: a tagged-variant
// match over the mode, no dynamic dispatch.  It also builds the degraded
// substitute plan after a recoverable stage failure.
type Planner struct {
	cfg config.Config
	reg core.Registry
}

// NewPlanner creates a Planner bound to the codec registry.
func NewPlanner(cfg config.Config, reg core.Registry) *Planner {
	return &Planner{cfg: cfg, reg: reg}
}

var _ core.PlanBuilder = (*Planner)(nil)

// Primary builds the first plan for a job.  Target-resolution violations are
// caught here, before any pixels move, and are terminal.
func (p *Planner) Primary(mode core.EnhancementMode, meta core.Metadata) (*core.OperationPlan, error) {
	switch mode.Kind {
	case core.ModeHD:
		return p.scalePlan(mode, meta, hdWidth, hdHeight, core.TierSmart, p.cfg.DefaultQuality, false)

	case core.ModeUHD4K:
		return p.scalePlan(mode, meta, uhdWidth, uhdHeight, core.TierSmart, p.cfg.DefaultQuality, false)

	case core.ModeUHD4KCompressed:
		return p.scalePlan(mode, meta, uhdWidth, uhdHeight, core.TierSmart, p.cfg.CompressedQuality, true)

	case core.ModeCustomScale:
		switch mode.ScaleFactor {
		case 2, 3, 4, 8:
		default:
			return nil, apperrors.New(apperrors.KindTargetResolutionTooLarge, "plan",
				fmt.Errorf("unsupported scale factor %d", mode.ScaleFactor))
		}
		targetW := meta.Width * mode.ScaleFactor
		targetH := meta.Height * mode.ScaleFactor
		return p.scalePlan(mode, meta, targetW, targetH, mode.Tier, p.cfg.DefaultQuality, false)

	case core.ModeOptimize:
		return p.optimizePlan(mode, meta)

	case core.ModeConvertFormat:
		return p.convertPlan(mode, meta)
	}
	return nil, apperrors.New(apperrors.KindInternal, "plan", fmt.Errorf("unknown mode %q", mode.Kind))
}

// Degrade constructs the reduced plan: half the magnification, Smart tier,
// capped quality.  Plans without a scale step fall back to a bare re-encode.
func (p *Planner) Degrade(prev *core.OperationPlan, mode core.EnhancementMode, meta core.Metadata) (*core.OperationPlan, error) {
	quality := minOf(prev.Quality, 85)

	if prev.TargetW > 0 && prev.TargetH > 0 {
		targetW := maxOf(prev.TargetW/2, 1)
		targetH := maxOf(prev.TargetH/2, 1)
		plan, err := p.scalePlan(mode, meta, targetW, targetH, core.TierSmart, quality, false)
		if err != nil {
			return nil, err
		}
		plan.Degraded = true
		return plan, nil
	}

	// No scale step: drop the filter passes, keep the encode.
	plan := &core.OperationPlan{
		Quality:   quality,
		Tier:      core.TierSmart,
		OutFormat: prev.OutFormat,
		Degraded:  true,
	}
	plan.Steps = []core.Step{p.encodeStep(prev.OutFormat, quality, false)}
	return plan, nil
}

// scalePlan assembles Scale → denoise → sharpen → contrast → Encode.
func (p *Planner) scalePlan(mode core.EnhancementMode, meta core.Metadata, targetW, targetH int, tier core.QualityTier, quality int, interlaced bool) (*core.OperationPlan, error) {
	pixels := int64(targetW) * int64(targetH)
	if pixels > p.cfg.MaxPixelCount {
		return nil, apperrors.New(apperrors.KindTargetResolutionTooLarge, "plan",
			fmt.Errorf("target %dx%d exceeds maximum of %d pixels", targetW, targetH, p.cfg.MaxPixelCount))
	}

	outFormat := p.outputFormat(mode, meta)
	intensity := p.cfg.Intensity.Lookup(pixels, tier == core.TierMax)

	var steps []core.Step
	if backend := p.nativeBackend(meta.Format); backend != nil {
		// The decoded buffer is backend-native; run the backend's own scale
		// and sharpen instead of the pure-Go passes.
		steps = append(steps, backend.NativeScaleStep(targetW, targetH, tier))
		if intensity.Sharpen > 0 {
			steps = append(steps, backend.NativeSharpenStep(intensity.Sharpen))
		}
	} else {
		steps = append(steps, &ScaleStep{
			TargetW:       targetW,
			TargetH:       targetH,
			Tier:          tier,
			ScratchPixels: p.scratchBudget(),
		})
		steps = appendFilters(steps, intensity)
	}
	steps = append(steps, p.encodeStep(outFormat, quality, interlaced))

	return &core.OperationPlan{
		Steps:     steps,
		TargetW:   targetW,
		TargetH:   targetH,
		Quality:   quality,
		Tier:      tier,
		OutFormat: outFormat,
	}, nil
}

// optimizePlan skips scaling: a mild sharpen, then quality walks down until
// the output fits under the configured threshold.
func (p *Planner) optimizePlan(mode core.EnhancementMode, meta core.Metadata) (*core.OperationPlan, error) {
	outFormat := p.outputFormat(mode, meta)
	if outFormat.Lossless() {
		outFormat = core.FormatJPEG // size reduction needs a quality knob
	}
	var sharpenPass core.Step = &FilterStep{Kind: FilterSharpen, Intensity: 0.1}
	if backend := p.nativeBackend(meta.Format); backend != nil {
		sharpenPass = backend.NativeSharpenStep(0.1)
	}
	steps := []core.Step{
		sharpenPass,
		&AdaptiveEncodeStep{
			Registry:        p.reg,
			Format:          outFormat,
			TargetSizeBytes: p.cfg.Optimize.TargetSizeBytes,
			MinQuality:      p.cfg.Optimize.MinQuality,
			StartQuality:    p.cfg.Optimize.StartQuality,
			StepSize:        p.cfg.Optimize.StepSize,
		},
	}
	return &core.OperationPlan{
		Steps:     steps,
		Quality:   p.cfg.Optimize.StartQuality,
		Tier:      core.TierSmart,
		OutFormat: outFormat,
	}, nil
}

// convertPlan skips scaling and filtering: decode and re-encode only.
func (p *Planner) convertPlan(mode core.EnhancementMode, meta core.Metadata) (*core.OperationPlan, error) {
	target := mode.TargetFormat
	if _, ok := p.reg.EncoderFor(target); !ok {
		return nil, apperrors.New(apperrors.KindUnsupportedOrCorruptInput, "plan",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, target))
	}
	return &core.OperationPlan{
		Steps:     []core.Step{p.encodeStep(target, p.cfg.DefaultQuality, false)},
		Quality:   p.cfg.DefaultQuality,
		Tier:      core.TierSmart,
		OutFormat: target,
	}, nil
}

// outputFormat picks the encode target: an explicit override wins; RGBA
// sources keep their alpha by encoding to PNG on CustomScale; everything
// else goes to JPEG.
func (p *Planner) outputFormat(mode core.EnhancementMode, meta core.Metadata) core.Format {
	if mode.TargetFormat != "" && mode.TargetFormat != core.FormatUnknown {
		return mode.TargetFormat
	}
	if mode.Kind == core.ModeCustomScale && meta.HasAlpha {
		return core.FormatPNG
	}
	return core.FormatJPEG
}

func (p *Planner) encodeStep(format core.Format, quality int, interlaced bool) core.Step {
	return &EncodeStep{
		Registry:       p.reg,
		Format:         format,
		Options:        core.EncodeOptions{Quality: quality, Interlaced: interlaced},
		MaxOutputBytes: p.cfg.MaxUploadBytes,
		QualityDrop:    p.cfg.SizeRetryQualityDrop,
	}
}

// nativeBackend returns the step backend for the source format, or nil when
// the registered decoder produces standard image.Image buffers.
func (p *Planner) nativeBackend(f core.Format) core.StepBackend {
	d, ok := p.reg.DecoderFor(f)
	if !ok {
		return nil
	}
	backend, ok := d.(core.StepBackend)
	if !ok {
		return nil
	}
	return backend
}

func (p *Planner) scratchBudget() int64 {
	if p.cfg.ScratchPixelBudget > 0 {
		return p.cfg.ScratchPixelBudget
	}
	return p.cfg.MaxPixelCount
}

// appendFilters adds the fixed-order denoise → sharpen → contrast passes,
// skipping any with zero intensity.
func appendFilters(steps []core.Step, in config.FilterIntensity) []core.Step {
	if in.Denoise > 0 {
		steps = append(steps, &FilterStep{Kind: FilterDenoise, Intensity: in.Denoise})
	}
	if in.Sharpen > 0 {
		steps = append(steps, &FilterStep{Kind: FilterSharpen, Intensity: in.Sharpen})
	}
	if in.Contrast > 0 {
		steps = append(steps, &FilterStep{Kind: FilterContrast, Intensity: in.Contrast})
	}
	return steps
}

func minOf(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxOf(a, b int) int {
	if a > b {
		return a
	}
	return b
}
