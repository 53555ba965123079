package decoder

import (
	"context"
	"io"

	"golang.org/x/image/bmp"

	"github.com/bodrovdev/image-enhancer/core"
	apperrors "github.com/bodrovdev/image-enhancer/errors"
)

// BMP decodes Windows bitmap images using golang.org/x/image/bmp.
type BMP struct{}

func NewBMP() *BMP { return &BMP{} }

func (b *BMP) CanDecode(format core.Format) bool {
	return format == core.FormatBMP
}

func (b *BMP) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnsupportedOrCorruptInput, "bmp.decode", err)
	}
	img, err := bmp.Decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnsupportedOrCorruptInput, "bmp.decode", err)
	}
	return newImageData(img, core.FormatBMP), nil
}
