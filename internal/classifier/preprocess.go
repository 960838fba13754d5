package classifier

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/nfnt/resize"
)

// ErrUnprocessableImage marks images that decoded but cannot be turned into
// model input.
var ErrUnprocessableImage = errors.New("unprocessable image")

// Preprocess resizes img to size x size and returns RGB values scaled to
// [0,1], laid out as NHWC or NCHW with an implicit batch of one.
func Preprocess(img image.Image, size int, layout string) ([]float32, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrUnprocessableImage)
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid target size %d", size)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUnprocessableImage)
	}

	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	bounds := resized.Bounds()
	plane := size * size
	out := make([]float32, 3*plane)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.NRGBAModel.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			r := float32(c.R) / 255.0
			g := float32(c.G) / 255.0
			b := float32(c.B) / 255.0

			idx := y*size + x
			switch layout {
			case LayoutNCHW:
				out[idx] = r
				out[plane+idx] = g
				out[2*plane+idx] = b
			case LayoutNHWC:
				out[3*idx] = r
				out[3*idx+1] = g
				out[3*idx+2] = b
			default:
				return nil, fmt.Errorf("unsupported layout %q", layout)
			}
		}
	}
	return out, nil
}
