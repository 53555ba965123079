package encoder

import (
	"bytes"
	"context"
	"image/png"

	"github.com/bodrovdev/image-enhancer/core"
	apperrors "github.com/bodrovdev/image-enhancer/errors"
)

// PNG encodes images to PNG format.  PNG is lossless; the quality option is
// ignored and alpha is preserved.
type PNG struct{}

func NewPNG() *PNG { return &PNG{} }

func (p *PNG) CanEncode(format core.Format) bool { return format == core.FormatPNG }

func (p *PNG) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "png.encode", err)
	}
	src, err := imageOf(img, "png.encode")
	if err != nil {
		return nil, err
	}

	enc := &png.Encoder{CompressionLevel: png.DefaultCompression}
	if opts.Lossless {
		enc.CompressionLevel = png.BestCompression
	}

	var buf bytes.Buffer
	if err := enc.Encode(&buf, src); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "png.encode", err)
	}
	return buf.Bytes(), nil
}
