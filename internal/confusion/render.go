package confusion

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"strconv"

	"go-ultrasound-classifier/pkg/models"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Report layout, in pixels.
const (
	reportWidth  = 520
	reportHeight = 440
	cellSize     = 140
	gridLeft     = 130
	gridTop      = 60
	barLeft      = gridLeft + 2*cellSize + 40
	barWidth     = 20
)

var (
	blueLight = color.RGBA{247, 251, 255, 255}
	blueDark  = color.RGBA{8, 48, 107, 255}
	ink       = color.RGBA{33, 33, 33, 255}
)

// Render draws the matrix as an annotated heatmap: predicted labels down the
// rows, true labels across the columns, a colour bar scaled to the max cell.
func Render(m *Matrix) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, reportWidth, reportHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	maxCount := m.Max()
	names := models.LabelNames()

	drawCentered(img, face, "Confusion Matrix", gridLeft+cellSize, gridTop-30, ink)

	for _, p := range models.Labels() {
		for _, tr := range models.Labels() {
			count := m.At(p, tr)
			shade := intensity(count, maxCount)
			cell := image.Rect(
				gridLeft+tr.Index()*cellSize,
				gridTop+p.Index()*cellSize,
				gridLeft+(tr.Index()+1)*cellSize,
				gridTop+(p.Index()+1)*cellSize,
			)
			draw.Draw(img, cell, image.NewUniform(blend(shade)), image.Point{}, draw.Src)
			outline(img, cell, color.RGBA{200, 200, 200, 255})

			textColor := color.RGBA{0, 0, 0, 255}
			if shade > 0.5 {
				textColor = color.RGBA{255, 255, 255, 255}
			}
			drawCentered(img, face, strconv.FormatUint(count, 10),
				cell.Min.X+cellSize/2, cell.Min.Y+cellSize/2+4, textColor)
		}
	}

	// tick labels
	for i, name := range names {
		drawCentered(img, face, name, gridLeft+i*cellSize+cellSize/2, gridTop+2*cellSize+18, ink)
		drawRightAligned(img, face, name, gridLeft-8, gridTop+i*cellSize+cellSize/2+4, ink)
	}

	// axis labels
	drawCentered(img, face, "True", gridLeft+cellSize, gridTop+2*cellSize+45, ink)
	drawVertical(img, face, "Predicted", 20, gridTop+cellSize, ink)

	drawColorBar(img, face, maxCount)
	return img
}

// WritePNG renders m and encodes it to w.
func WritePNG(w io.Writer, m *Matrix) error {
	return png.Encode(w, Render(m))
}

func drawColorBar(img *image.RGBA, face font.Face, maxCount uint64) {
	top, bottom := gridTop, gridTop+2*cellSize
	for y := top; y < bottom; y++ {
		t := float64(bottom-1-y) / float64(bottom-1-top)
		draw.Draw(img, image.Rect(barLeft, y, barLeft+barWidth, y+1), image.NewUniform(blend(t)), image.Point{}, draw.Src)
	}
	outline(img, image.Rect(barLeft, top, barLeft+barWidth, bottom), color.RGBA{120, 120, 120, 255})

	drawText(img, face, strconv.FormatUint(maxCount, 10), barLeft+barWidth+6, top+10, ink)
	drawText(img, face, "0", barLeft+barWidth+6, bottom, ink)
}

// intensity maps a count to [0,1] relative to the max cell.
func intensity(count, maxCount uint64) float64 {
	if maxCount == 0 {
		return 0
	}
	return float64(count) / float64(maxCount)
}

func blend(t float64) color.RGBA {
	lerp := func(a, b uint8) uint8 {
		return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5)
	}
	return color.RGBA{
		R: lerp(blueLight.R, blueDark.R),
		G: lerp(blueLight.G, blueDark.G),
		B: lerp(blueLight.B, blueDark.B),
		A: 255,
	}
}

func outline(img *image.RGBA, r image.Rectangle, c color.Color) {
	for x := r.Min.X; x < r.Max.X; x++ {
		img.Set(x, r.Min.Y, c)
		img.Set(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.Set(r.Min.X, y, c)
		img.Set(r.Max.X-1, y, c)
	}
}

func drawText(img *image.RGBA, face font.Face, s string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func drawCentered(img *image.RGBA, face font.Face, s string, cx, y int, c color.Color) {
	w := font.MeasureString(face, s).Ceil()
	drawText(img, face, s, cx-w/2, y, c)
}

func drawRightAligned(img *image.RGBA, face font.Face, s string, right, y int, c color.Color) {
	w := font.MeasureString(face, s).Ceil()
	drawText(img, face, s, right-w, y, c)
}

// drawVertical stacks the letters of s top to bottom around cy.
func drawVertical(img *image.RGBA, face font.Face, s string, x, cy int, c color.Color) {
	lineHeight := face.Metrics().Height.Ceil()
	y := cy - (len(s)*lineHeight)/2 + lineHeight
	for _, r := range s {
		drawCentered(img, face, string(r), x, y, c)
		y += lineHeight
	}
}
