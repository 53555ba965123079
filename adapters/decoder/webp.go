package decoder

import (
	"context"
	"io"

	"golang.org/x/image/webp"

	"github.com/bodrovdev/image-enhancer/core"
	apperrors "github.com/bodrovdev/image-enhancer/errors"
)

// WebP decodes WebP images using golang.org/x/image/webp.
// Animated WebP is not supported; only the first frame of such files decodes.
type WebP struct{}

func NewWebP() *WebP { return &WebP{} }

func (w *WebP) CanDecode(format core.Format) bool {
	return format == core.FormatWebP
}

func (w *WebP) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnsupportedOrCorruptInput, "webp.decode", err)
	}
	img, err := webp.Decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnsupportedOrCorruptInput, "webp.decode", err)
	}
	return newImageData(img, core.FormatWebP), nil
}
