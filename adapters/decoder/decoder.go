// Package decoder provides format-specific image decoders.
package decoder

import (
	"image"

	"github.com/bodrovdev/image-enhancer/core"
)

// newImageData wraps a freshly decoded image.Image with its metadata.
func newImageData(img image.Image, format core.Format) *core.ImageData {
	bounds := img.Bounds()
	return &core.ImageData{
		Image:  img,
		Format: format,
		Meta: core.Metadata{
			Width:    bounds.Dx(),
			Height:   bounds.Dy(),
			Channels: channelCount(img),
			Format:   format,
			HasAlpha: hasAlpha(img),
		},
	}
}

// channelCount maps the pixel storage to the 1/3/4 channel invariant.
func channelCount(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return 4
	}
	return 3
}

func hasAlpha(img image.Image) bool {
	switch v := img.(type) {
	case *image.RGBA:
		return !opaqueRGBA(v.Pix)
	case *image.NRGBA:
		return !opaqueRGBA(v.Pix)
	case *image.RGBA64, *image.NRGBA64:
		return true
	}
	return false
}

// opaqueRGBA reports whether every alpha byte is 255.
func opaqueRGBA(pix []byte) bool {
	for i := 3; i < len(pix); i += 4 {
		if pix[i] != 0xFF {
			return false
		}
	}
	return true
}
