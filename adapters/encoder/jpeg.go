package encoder

import (
	"bytes"
	"context"
	"image/jpeg"

	"github.com/bodrovdev/image-enhancer/core"
	apperrors "github.com/bodrovdev/image-enhancer/errors"
)

// JPEG encodes images to JPEG format.  Alpha is flattened onto white.
type JPEG struct {
	DefaultQuality int // used when EncodeOptions.Quality == 0
}

func NewJPEG(defaultQuality int) *JPEG {
	if defaultQuality <= 0 {
		defaultQuality = 95
	}
	return &JPEG{DefaultQuality: defaultQuality}
}

func (j *JPEG) CanEncode(format core.Format) bool {
	return format == core.FormatJPEG
}

func (j *JPEG) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "jpeg.encode", err)
	}
	src, err := imageOf(img, "jpeg.encode")
	if err != nil {
		return nil, err
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = j.DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flattenAlpha(src), &jpeg.Options{Quality: quality}); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "jpeg.encode", err)
	}
	return buf.Bytes(), nil
}
