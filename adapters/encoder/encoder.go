// Package encoder provides format-specific image encoders.
package encoder

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/bodrovdev/image-enhancer/core"
	apperrors "github.com/bodrovdev/image-enhancer/errors"
)

// imageOf extracts the decoded pixel buffer from img, materializing
// backend-native buffers (libvips handles) through core.GoImager.
func imageOf(img *core.ImageData, op string) (image.Image, error) {
	switch v := img.Image.(type) {
	case image.Image:
		return v, nil
	case core.GoImager:
		src, err := v.GoImage()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, op, err)
		}
		return src, nil
	}
	return nil, apperrors.New(apperrors.KindInternal, op, apperrors.ErrEmptyInput)
}

// flattenAlpha composites src onto a white background.  Used when encoding
// to formats without alpha support (JPEG, BMP).
func flattenAlpha(src image.Image) image.Image {
	switch src.(type) {
	case *image.NRGBA, *image.RGBA, *image.NRGBA64, *image.RGBA64:
	default:
		return src // no alpha channel to flatten
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}
