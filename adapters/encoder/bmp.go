package encoder

import (
	"bytes"
	"context"

	"golang.org/x/image/bmp"

	"github.com/bodrovdev/image-enhancer/core"
	apperrors "github.com/bodrovdev/image-enhancer/errors"
)

// BMP encodes images to Windows bitmap format.  BMP has no alpha channel, so
// transparent buffers are flattened onto white; quality is ignored.
type BMP struct{}

func NewBMP() *BMP { return &BMP{} }

func (b *BMP) CanEncode(format core.Format) bool { return format == core.FormatBMP }

func (b *BMP) Encode(ctx context.Context, img *core.ImageData, _ core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "bmp.encode", err)
	}
	src, err := imageOf(img, "bmp.encode")
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := bmp.Encode(&buf, flattenAlpha(src)); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "bmp.encode", err)
	}
	return buf.Bytes(), nil
}
