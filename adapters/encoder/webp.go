package encoder

import (
	"bytes"
	"context"

	"github.com/chai2010/webp"

	"github.com/bodrovdev/image-enhancer/core"
	apperrors "github.com/bodrovdev/image-enhancer/errors"
)

// WebP encodes images to WebP format using github.com/chai2010/webp.
// Alpha is preserved; Lossless switches to VP8L encoding.
type WebP struct {
	DefaultQuality int
}

func NewWebP(defaultQuality int) *WebP {
	if defaultQuality <= 0 {
		defaultQuality = 95
	}
	return &WebP{DefaultQuality: defaultQuality}
}

func (w *WebP) CanEncode(format core.Format) bool { return format == core.FormatWebP }

func (w *WebP) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "webp.encode", err)
	}
	src, err := imageOf(img, "webp.encode")
	if err != nil {
		return nil, err
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = w.DefaultQuality
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, src, &webp.Options{
		Lossless: opts.Lossless,
		Quality:  float32(quality),
	}); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "webp.encode", err)
	}
	return buf.Bytes(), nil
}
