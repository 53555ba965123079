package decoder

import (
	"context"
	"io"

	"golang.org/x/image/tiff"

	"github.com/bodrovdev/image-enhancer/core"
	apperrors "github.com/bodrovdev/image-enhancer/errors"
)

// TIFF decodes TIFF images using golang.org/x/image/tiff.
type TIFF struct{}

func NewTIFF() *TIFF { return &TIFF{} }

func (t *TIFF) CanDecode(format core.Format) bool {
	return format == core.FormatTIFF
}

func (t *TIFF) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnsupportedOrCorruptInput, "tiff.decode", err)
	}
	img, err := tiff.Decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnsupportedOrCorruptInput, "tiff.decode", err)
	}
	return newImageData(img, core.FormatTIFF), nil
}
