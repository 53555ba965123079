package decoder

import (
	"context"
	"image/jpeg"
	"io"

	"github.com/bodrovdev/image-enhancer/core"
	apperrors "github.com/bodrovdev/image-enhancer/errors"
)

// JPEG decodes JPEG images using the standard library.
type JPEG struct{}

// NewJPEG returns an initialised JPEG decoder.
func NewJPEG() *JPEG { return &JPEG{} }

func (j *JPEG) CanDecode(format core.Format) bool {
	return format == core.FormatJPEG || format == core.FormatUnknown
}

func (j *JPEG) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnsupportedOrCorruptInput, "jpeg.decode", err)
	}
	img, err := jpeg.Decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnsupportedOrCorruptInput, "jpeg.decode", err)
	}
	return newImageData(img, core.FormatJPEG), nil
}
