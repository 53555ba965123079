// Package pipeline provides the built-in plan steps and the mode planner.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/bodrovdev/image-enhancer/core"
	apperrors "github.com/bodrovdev/image-enhancer/errors"
)

// maxScaleSteps is a safety bound on the multi-step ladder; with steps capped
// at 2x each it covers magnifications up to 64x, far above the supported 8x.
const maxScaleSteps = 6

// pixelsOf extracts a standard pixel buffer from img, materializing
// backend-native buffers (libvips handles) through core.GoImager.
func pixelsOf(img *core.ImageData) (image.Image, error) {
	switch v := img.Image.(type) {
	case image.Image:
		return v, nil
	case core.GoImager:
		return v.GoImage()
	}
	return nil, apperrors.ErrEmptyInput
}

// ── Scale ─────────────────────────────────────────────────────────────────────

// ScaleStep resizes the buffer to an exact target resolution.  Magnification
// beyond 2x runs as successive steps of at most 2x each to bound peak memory
// and avoid interpolation artifacts from a single large jump.  Sources
// already at or above the target are centre-cropped to the target aspect
// ratio and downscaled in one pass.
type ScaleStep struct {
	TargetW, TargetH int
	Tier             core.QualityTier

	// ScratchPixels bounds intermediate buffer allocations.  Exceeding it
	// reports an out-of-memory failure, which the orchestrator answers with
	// a degraded plan.  0 disables the check.
	ScratchPixels int64
}

func (s *ScaleStep) Name() string { return "scale" }

func (s *ScaleStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, s.Name(), err)
	}
	src, err := pixelsOf(img)
	if err != nil {
		return nil, apperrors.New(apperrors.KindInternal, s.Name(), err)
	}
	if s.TargetW <= 0 || s.TargetH <= 0 {
		return nil, apperrors.New(apperrors.KindTargetResolutionTooLarge, s.Name(), apperrors.ErrInvalidDimensions)
	}

	cur := toNRGBA(src)
	srcW, srcH := cur.Bounds().Dx(), cur.Bounds().Dy()

	if srcW == s.TargetW && srcH == s.TargetH {
		return s.done(img, cur), nil
	}

	var out *image.NRGBA
	if srcW >= s.TargetW && srcH >= s.TargetH {
		out, err = s.smartDownscale(cur)
	} else {
		out, err = s.ladderUpscale(ctx, cur)
	}
	if err != nil {
		return nil, err
	}
	return s.done(img, out), nil
}

// smartDownscale centre-crops to the target aspect ratio, then resizes once.
func (s *ScaleStep) smartDownscale(cur *image.NRGBA) (*image.NRGBA, error) {
	srcW, srcH := cur.Bounds().Dx(), cur.Bounds().Dy()
	srcRatio := float64(srcW) / float64(srcH)
	dstRatio := float64(s.TargetW) / float64(s.TargetH)

	crop := cur.Bounds()
	if math.Abs(srcRatio-dstRatio) >= 0.01 {
		if srcRatio > dstRatio {
			// Source is wider: crop left/right.
			w := int(float64(srcH) * dstRatio)
			left := (srcW - w) / 2
			crop = image.Rect(left, 0, left+w, srcH)
		} else {
			// Source is taller: crop top/bottom.
			h := int(float64(srcW) / dstRatio)
			top := (srcH - h) / 2
			crop = image.Rect(0, top, srcW, top+h)
		}
	}

	dst, err := s.alloc(s.TargetW, s.TargetH)
	if err != nil {
		return nil, err
	}
	s.interpolator().Scale(dst, dst.Bounds(), cur, crop, xdraw.Src, nil)
	return dst, nil
}

// ladderUpscale magnifies in steps of at most 2x, then snaps to the exact
// target.  The Max tier applies an edge-preserving pass after each step.
func (s *ScaleStep) ladderUpscale(ctx context.Context, cur *image.NRGBA) (*image.NRGBA, error) {
	interp := s.interpolator()

	for step := 0; step < maxScaleSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, s.Name(), err)
		}
		curW, curH := cur.Bounds().Dx(), cur.Bounds().Dy()
		if curW >= s.TargetW && curH >= s.TargetH {
			break
		}
		factor := math.Min(2.0, math.Min(
			float64(s.TargetW)/float64(curW),
			float64(s.TargetH)/float64(curH),
		))
		if factor <= 1.01 {
			break // remaining axis handled by the final exact resize
		}
		nextW := int(float64(curW) * factor)
		nextH := int(float64(curH) * factor)

		dst, err := s.alloc(nextW, nextH)
		if err != nil {
			return nil, err
		}
		interp.Scale(dst, dst.Bounds(), cur, cur.Bounds(), xdraw.Src, nil)
		if s.Tier == core.TierMax {
			dst = edgePreserve(dst)
		}
		cur = dst
	}

	if cur.Bounds().Dx() != s.TargetW || cur.Bounds().Dy() != s.TargetH {
		dst, err := s.alloc(s.TargetW, s.TargetH)
		if err != nil {
			return nil, err
		}
		interp.Scale(dst, dst.Bounds(), cur, cur.Bounds(), xdraw.Src, nil)
		cur = dst
	}
	return cur, nil
}

// alloc checks the scratch budget before allocating an intermediate buffer.
func (s *ScaleStep) alloc(w, h int) (*image.NRGBA, error) {
	if s.ScratchPixels > 0 && int64(w)*int64(h) > s.ScratchPixels {
		return nil, apperrors.Degradable(apperrors.KindOutOfMemoryDuringScale, s.Name(),
			fmt.Errorf("intermediate %dx%d exceeds scratch budget of %d pixels", w, h, s.ScratchPixels))
	}
	return image.NewNRGBA(image.Rect(0, 0, w, h)), nil
}

// interpolator selects the resampling kernel for the tier: Catmull-Rom
// (bicubic-equivalent) for Smart, Lanczos3 for Max.
func (s *ScaleStep) interpolator() xdraw.Interpolator {
	if s.Tier == core.TierMax {
		return lanczos3
	}
	return xdraw.CatmullRom
}

func (s *ScaleStep) done(img *core.ImageData, buf *image.NRGBA) *core.ImageData {
	out := *img
	out.Image = buf
	out.Meta.Width = buf.Bounds().Dx()
	out.Meta.Height = buf.Bounds().Dy()
	out.Meta.Channels = channelCount(buf)
	out.Meta.HasAlpha = img.Meta.HasAlpha
	return &out
}

// ── Filter ────────────────────────────────────────────────────────────────────

// FilterKind selects an enhancement filter pass.
type FilterKind string

const (
	FilterDenoise  FilterKind = "denoise"
	FilterSharpen  FilterKind = "sharpen"
	FilterContrast FilterKind = "contrast"
)

// FilterStep applies one enhancement pass.  The input buffer is consumed and
// a new buffer is returned.  Intensity is in the 0..1 range.
type FilterStep struct {
	Kind      FilterKind
	Intensity float64
}

func (s *FilterStep) Name() string { return "filter." + string(s.Kind) }

func (s *FilterStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, s.Name(), err)
	}
	src, err := pixelsOf(img)
	if err != nil {
		return nil, apperrors.Degradable(apperrors.KindFilterFailure, s.Name(), err)
	}
	if s.Intensity < 0 || s.Intensity > 1 {
		return nil, apperrors.Degradable(apperrors.KindFilterFailure, s.Name(),
			fmt.Errorf("intensity %.2f out of range", s.Intensity))
	}

	buf := toNRGBA(src)
	switch s.Kind {
	case FilterDenoise:
		buf = denoise(buf, s.Intensity)
	case FilterSharpen:
		buf = sharpen(buf, s.Intensity)
	case FilterContrast:
		buf = contrastBoost(buf, s.Intensity)
	default:
		return nil, apperrors.Degradable(apperrors.KindFilterFailure, s.Name(),
			fmt.Errorf("unknown filter kind %q", s.Kind))
	}

	out := *img
	out.Image = buf
	return &out, nil
}

// ── Encode ────────────────────────────────────────────────────────────────────

// EncodeStep serialises the buffer into encoded bytes.  When MaxOutputBytes
// is set and the first encode exceeds it, the step re-encodes at reduced
// quality up to two times before reporting EncodeSizeExceeded.
type EncodeStep struct {
	Registry core.Registry
	Format   core.Format
	Options  core.EncodeOptions

	MaxOutputBytes int64
	QualityDrop    int // per-retry quality reduction; default 15
}

func (s *EncodeStep) Name() string { return "encode" }

const sizeRetryLimit = 2

func (s *EncodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	enc, ok := s.Registry.EncoderFor(s.Format)
	if !ok {
		return nil, apperrors.New(apperrors.KindUnsupportedOrCorruptInput, s.Name(),
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, s.Format))
	}

	drop := s.QualityDrop
	if drop <= 0 {
		drop = 15
	}
	opts := s.Options

	data, err := enc.Encode(ctx, img, opts)
	if err != nil {
		return nil, err
	}

	if s.MaxOutputBytes > 0 {
		for retry := 0; retry < sizeRetryLimit && int64(len(data)) > s.MaxOutputBytes; retry++ {
			if s.Format.Lossless() {
				break // no quality knob to turn
			}
			opts.Quality = maxInt(opts.Quality-drop, 10)
			data, err = enc.Encode(ctx, img, opts)
			if err != nil {
				return nil, err
			}
		}
		if int64(len(data)) > s.MaxOutputBytes {
			return nil, apperrors.New(apperrors.KindEncodeSizeExceeded, s.Name(),
				fmt.Errorf("output %d bytes exceeds limit %d", len(data), s.MaxOutputBytes))
		}
	}

	out := *img
	out.Data = data
	out.Format = s.Format
	out.Meta.Format = s.Format
	out.Meta.SizeBytes = int64(len(data))
	return &out, nil
}

// ── AdaptiveEncode ────────────────────────────────────────────────────────────

// AdaptiveEncodeStep iteratively lowers encode quality until the output fits
// under TargetSizeBytes or the quality floor is reached, whichever comes
// first.  Hitting the floor while still over the target reports
// EncodeSizeExceeded.
type AdaptiveEncodeStep struct {
	Registry        core.Registry
	Format          core.Format
	TargetSizeBytes int64
	MinQuality      int
	StartQuality    int
	StepSize        int
}

func (s *AdaptiveEncodeStep) Name() string { return "adaptive_encode" }

func (s *AdaptiveEncodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	enc, ok := s.Registry.EncoderFor(s.Format)
	if !ok {
		return nil, apperrors.New(apperrors.KindUnsupportedOrCorruptInput, s.Name(),
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, s.Format))
	}

	step := s.StepSize
	if step <= 0 {
		step = 5
	}
	quality := s.StartQuality
	if quality <= 0 {
		quality = 85
	}

	var data []byte
	for {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, s.Name(), err)
		}
		var err error
		data, err = enc.Encode(ctx, img, core.EncodeOptions{Quality: quality, Interlaced: true})
		if err != nil {
			return nil, err
		}
		if s.TargetSizeBytes <= 0 || int64(len(data)) <= s.TargetSizeBytes {
			break
		}
		if quality-step < s.MinQuality {
			return nil, apperrors.New(apperrors.KindEncodeSizeExceeded, s.Name(),
				fmt.Errorf("cannot reach %d bytes at quality >= %d (best: %d bytes)",
					s.TargetSizeBytes, s.MinQuality, len(data)))
		}
		quality -= step
	}

	out := *img
	out.Data = data
	out.Format = s.Format
	out.Meta.Format = s.Format
	out.Meta.SizeBytes = int64(len(data))
	return &out, nil
}
