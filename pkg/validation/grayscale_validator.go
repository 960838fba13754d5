package validation

import (
	"image"
	"image/color"
)

// GrayscaleThresholds configures the ultrasound gate.
type GrayscaleThresholds struct {
	// ChannelThreshold is the exclusive upper bound, on the 8-bit scale, for
	// each of |R-G|, |G-B| and |B-R| of a grayscale-like pixel.
	ChannelThreshold float64

	// AcceptanceRatio is the fraction of grayscale-like pixels that must be
	// strictly exceeded for the image to pass.
	AcceptanceRatio float64
}

// DefaultGrayscaleThresholds returns the default gate settings
func DefaultGrayscaleThresholds() GrayscaleThresholds {
	return GrayscaleThresholds{
		ChannelThreshold: 10,
		AcceptanceRatio:  0.5,
	}
}

// GrayscaleValidator rejects images that are unlikely to be ultrasound scans
// by requiring most pixels to be near-neutral in colour.
type GrayscaleValidator struct {
	thresholds GrayscaleThresholds
}

// NewGrayscaleValidator creates a validator with default thresholds
func NewGrayscaleValidator() *GrayscaleValidator {
	return &GrayscaleValidator{thresholds: DefaultGrayscaleThresholds()}
}

// NewGrayscaleValidatorWithThresholds creates a validator with custom thresholds
func NewGrayscaleValidatorWithThresholds(thresholds GrayscaleThresholds) *GrayscaleValidator {
	return &GrayscaleValidator{thresholds: thresholds}
}

// Thresholds returns the active settings.
func (v *GrayscaleValidator) Thresholds() GrayscaleThresholds {
	return v.thresholds
}

// GrayscaleReport describes one pass over an image.
type GrayscaleReport struct {
	TotalPixels     int     `json:"total_pixels"`
	GrayscalePixels int     `json:"grayscale_pixels"`
	Fraction        float64 `json:"fraction"`
	Accepted        bool    `json:"accepted"`
}

// IsGrayscale reports whether img passes the gate. Empty images fail.
func (v *GrayscaleValidator) IsGrayscale(img image.Image) bool {
	return v.Inspect(img).Accepted
}

// Inspect counts grayscale-like pixels and applies the acceptance ratio.
func (v *GrayscaleValidator) Inspect(img image.Image) GrayscaleReport {
	var report GrayscaleReport
	if img == nil {
		return report
	}

	bounds := img.Bounds()
	report.TotalPixels = bounds.Dx() * bounds.Dy()
	if report.TotalPixels <= 0 {
		report.TotalPixels = 0
		return report
	}

	switch src := img.(type) {
	case *image.Gray, *image.Gray16:
		// single channel, every pixel is neutral
		report.GrayscalePixels = report.TotalPixels
	case *image.RGBA:
		report.GrayscalePixels = v.countRGBA(src)
	default:
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				if v.isGrayscalePixel(c.R, c.G, c.B) {
					report.GrayscalePixels++
				}
			}
		}
	}

	report.Fraction = float64(report.GrayscalePixels) / float64(report.TotalPixels)
	report.Accepted = report.Fraction > v.thresholds.AcceptanceRatio
	return report
}

func (v *GrayscaleValidator) countRGBA(img *image.RGBA) int {
	bounds := img.Bounds()
	count := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := img.Pix[img.PixOffset(bounds.Min.X, y):img.PixOffset(bounds.Max.X, y)]
		for i := 0; i+3 < len(row); i += 4 {
			r, g, b := row[i], row[i+1], row[i+2]
			if a := row[i+3]; a != 0xff && a != 0 {
				c := color.NRGBAModel.Convert(color.RGBA{r, g, b, a}).(color.NRGBA)
				r, g, b = c.R, c.G, c.B
			}
			if v.isGrayscalePixel(r, g, b) {
				count++
			}
		}
	}
	return count
}

func (v *GrayscaleValidator) isGrayscalePixel(r, g, b uint8) bool {
	t := v.thresholds.ChannelThreshold
	return absDiff(r, g) < t && absDiff(g, b) < t && absDiff(b, r) < t
}

func absDiff(a, b uint8) float64 {
	if a > b {
		return float64(a - b)
	}
	return float64(b - a)
}
