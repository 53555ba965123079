package encoder

import (
	"bytes"
	"context"

	"golang.org/x/image/tiff"

	"github.com/bodrovdev/image-enhancer/core"
	apperrors "github.com/bodrovdev/image-enhancer/errors"
)

// TIFF encodes images to TIFF with deflate compression.  Lossless; alpha is
// preserved and quality is ignored.
type TIFF struct{}

func NewTIFF() *TIFF { return &TIFF{} }

func (t *TIFF) CanEncode(format core.Format) bool { return format == core.FormatTIFF }

func (t *TIFF) Encode(ctx context.Context, img *core.ImageData, _ core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "tiff.encode", err)
	}
	src, err := imageOf(img, "tiff.encode")
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tiff.Encode(&buf, src, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "tiff.encode", err)
	}
	return buf.Bytes(), nil
}
