// Package vips provides an optional libvips-powered codec and step backend.
// Hosts with libvips installed can register it over the pure-Go codecs for
// significantly faster decode/scale/encode on large images.
package vips

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/bodrovdev/image-enhancer/core"
	apperrors "github.com/bodrovdev/image-enhancer/errors"
	"github.com/bodrovdev/image-enhancer/utils"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	DefaultQuality int
	MaxCacheSize   int
	MaxWorkers     int
	ReportLeaks    bool
}

// Backend is a libvips-powered Decoder that also supplies native scale and
// sharpen steps, so plans built over vips-decoded buffers stay on the vips
// fast path end to end.  Safe for concurrent use across goroutines.
type Backend struct {
	cfg BackendConfig
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.DefaultQuality <= 0 {
		cfg.DefaultQuality = 95
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
		CollectStats:     true,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanDecode(f core.Format) bool {
	switch f {
	case core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatUnknown:
		return true
	}
	return false
}

func (b *Backend) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnsupportedOrCorruptInput, "vips.decode", err)
	}

	buf, err := utils.DrainReader(ctx, r, 32*1024)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnsupportedOrCorruptInput, "vips.decode.drain", err)
	}
	raw := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)

	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnsupportedOrCorruptInput, "vips.decode", err)
	}

	format := vipsFormatToCore(ref.Format())
	return &core.ImageData{
		Data:   raw,
		Format: format,
		Image:  &VipsImage{ref: ref},
		Meta: core.Metadata{
			Width:    ref.Width(),
			Height:   ref.Height(),
			Channels: ref.Bands(),
			Format:   format,
			HasAlpha: ref.HasAlpha(),
		},
		OriginalSize: int64(len(raw)),
	}, nil
}

// ─── Native steps (core.StepBackend) ──────────────────────────────────────────

// NativeScaleStep returns a vips-native substitute for the pure-Go scale pass.
func (b *Backend) NativeScaleStep(targetW, targetH int, tier core.QualityTier) core.Step {
	return &VipsScaleStep{TargetW: targetW, TargetH: targetH, Tier: tier}
}

// NativeSharpenStep returns a vips-native substitute for the sharpen pass.
func (b *Backend) NativeSharpenStep(intensity float64) core.Step {
	return &VipsSharpenStep{Intensity: intensity}
}

// ─── Encoding ─────────────────────────────────────────────────────────────────

// vipsEncoder binds the backend to one output format.  The registry hands the
// same encoder back for every request of that format, so the requested target
// is unambiguous regardless of the buffer's source format.
type vipsEncoder struct {
	backend *Backend
	format  core.Format
}

func (e *vipsEncoder) CanEncode(f core.Format) bool { return f == e.format }

func (e *vipsEncoder) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	return e.backend.encodeAs(ctx, img, e.format, opts)
}

// encodeAs serialises img into the requested format.  Buffers decoded by the
// pure-Go codecs are bridged into a vips handle first.
func (b *Backend) encodeAs(ctx context.Context, img *core.ImageData, format core.Format, opts core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "vips.encode", err)
	}

	ref, borrowed, err := b.refOf(img)
	if err != nil {
		return nil, err
	}
	if !borrowed {
		defer ref.Close()
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = b.cfg.DefaultQuality
	}

	switch format {
	case core.FormatJPEG:
		ep := govips.NewJpegExportParams()
		ep.Quality = quality
		ep.Interlace = opts.Interlaced
		out, _, err := ref.ExportJpeg(ep)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "vips.encode.jpeg", err)
		}
		return out, nil

	case core.FormatPNG:
		ep := govips.NewPngExportParams()
		ep.Interlace = opts.Interlaced
		out, _, err := ref.ExportPng(ep)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "vips.encode.png", err)
		}
		return out, nil

	case core.FormatWebP:
		ep := govips.NewWebpExportParams()
		ep.Quality = quality
		ep.Lossless = opts.Lossless
		out, _, err := ref.ExportWebp(ep)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "vips.encode.webp", err)
		}
		return out, nil

	default:
		return nil, apperrors.New(apperrors.KindUnsupportedOrCorruptInput, "vips.encode",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}
}

// refOf extracts the vips handle from img.  A standard image.Image buffer is
// bridged through a lossless PNG round-trip; borrowed reports whether the
// handle is owned by img (and must not be closed here).
func (b *Backend) refOf(img *core.ImageData) (*govips.ImageRef, bool, error) {
	if vi, ok := img.Image.(*VipsImage); ok && vi != nil {
		return vi.ref, true, nil
	}
	src, ok := img.Image.(image.Image)
	if !ok || src == nil {
		return nil, false, apperrors.New(apperrors.KindInternal, "vips.encode", apperrors.ErrEmptyInput)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		return nil, false, apperrors.Wrap(apperrors.KindInternal, "vips.encode.bridge", err)
	}
	ref, err := govips.NewImageFromBuffer(buf.Bytes())
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.KindInternal, "vips.encode.bridge", err)
	}
	return ref, false, nil
}

// ─── VipsImage ────────────────────────────────────────────────────────────────

// VipsImage wraps a *govips.ImageRef for storage in core.ImageData.Image.
type VipsImage struct {
	ref *govips.ImageRef
}

func (v *VipsImage) Width() int            { return v.ref.Width() }
func (v *VipsImage) Height() int           { return v.ref.Height() }
func (v *VipsImage) Ref() *govips.ImageRef { return v.ref }
func (v *VipsImage) Close()                { v.ref.Close() }

// GoImage materializes the buffer as a standard image.Image through a
// lossless PNG round-trip, letting the pure-Go steps and encoders accept
// vips-decoded buffers (core.GoImager).
func (v *VipsImage) GoImage() (image.Image, error) {
	data, _, err := v.ref.ExportPng(govips.NewPngExportParams())
	if err != nil {
		return nil, err
	}
	return png.Decode(bytes.NewReader(data))
}

// ─── VipsScaleStep ────────────────────────────────────────────────────────────

// VipsScaleStep resizes to an exact target using vips_resize().  libvips
// handles large magnifications internally, so no explicit 2x ladder is
// needed; a drop-in replacement for ScaleStep on vips-decoded buffers.
type VipsScaleStep struct {
	TargetW, TargetH int
	Tier             core.QualityTier
}

func (s *VipsScaleStep) Name() string { return "vips.scale" }

func (s *VipsScaleStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, s.Name(), err)
	}
	vi, ok := img.Image.(*VipsImage)
	if !ok || vi == nil {
		return nil, apperrors.New(apperrors.KindInternal, s.Name(),
			fmt.Errorf("expected vips-decoded buffer; use the vips backend for decode"))
	}
	if s.TargetW <= 0 || s.TargetH <= 0 {
		return nil, apperrors.New(apperrors.KindTargetResolutionTooLarge, s.Name(), apperrors.ErrInvalidDimensions)
	}
	if s.TargetW == img.Meta.Width && s.TargetH == img.Meta.Height {
		return img, nil
	}

	hscale := float64(s.TargetW) / float64(img.Meta.Width)
	vscale := float64(s.TargetH) / float64(img.Meta.Height)
	if err := vi.ref.ResizeWithVScale(hscale, vscale, s.kernel()); err != nil {
		return nil, apperrors.Degradable(apperrors.KindOutOfMemoryDuringScale, s.Name(), err)
	}

	out := *img
	out.Meta.Width = vi.ref.Width()
	out.Meta.Height = vi.ref.Height()
	return &out, nil
}

func (s *VipsScaleStep) kernel() govips.Kernel {
	if s.Tier == core.TierMax {
		return govips.KernelLanczos3
	}
	return govips.KernelCubic
}

// ─── VipsSharpenStep ──────────────────────────────────────────────────────────

// VipsSharpenStep applies vips_sharpen(); the intensity maps onto the m2
// slope the same 0..1 way the pure-Go sharpen filter is tuned.
type VipsSharpenStep struct {
	Intensity float64
}

func (s *VipsSharpenStep) Name() string { return "vips.sharpen" }

func (s *VipsSharpenStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, s.Name(), err)
	}
	vi, ok := img.Image.(*VipsImage)
	if !ok || vi == nil {
		return nil, apperrors.Degradable(apperrors.KindFilterFailure, s.Name(), apperrors.ErrEmptyInput)
	}
	if s.Intensity <= 0 {
		return img, nil
	}
	if err := vi.ref.Sharpen(0.5, 2, 1+2*s.Intensity); err != nil {
		return nil, apperrors.Degradable(apperrors.KindFilterFailure, s.Name(), err)
	}
	return img, nil
}

// ─── RegisterVipsBackend ──────────────────────────────────────────────────────

// RegisterVipsBackend replaces the pure-Go codecs with libvips for the
// formats it handles (JPEG, PNG, WebP).  BMP and TIFF stay on x/image; the
// GoImager bridge keeps those encoders usable on vips-decoded buffers.
func RegisterVipsBackend(reg core.Registry, b *Backend) {
	for _, f := range []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatWebP} {
		reg.RegisterDecoder(f, b)
		reg.RegisterEncoder(f, &vipsEncoder{backend: b, format: f})
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func vipsFormatToCore(f govips.ImageType) core.Format {
	switch f {
	case govips.ImageTypeJPEG:
		return core.FormatJPEG
	case govips.ImageTypePNG:
		return core.FormatPNG
	case govips.ImageTypeWEBP:
		return core.FormatWebP
	case govips.ImageTypeBMP:
		return core.FormatBMP
	case govips.ImageTypeTIFF:
		return core.FormatTIFF
	}
	return core.FormatUnknown
}

// compile-time interface checks
var _ core.Decoder = (*Backend)(nil)
var _ core.StepBackend = (*Backend)(nil)
var _ core.Encoder = (*vipsEncoder)(nil)
var _ core.GoImager = (*VipsImage)(nil)
var _ core.Step = (*VipsScaleStep)(nil)
var _ core.Step = (*VipsSharpenStep)(nil)
