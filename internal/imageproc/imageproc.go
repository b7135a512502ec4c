// Package imageproc provides a couple of illustrative, equatable
// imagepipe.Processor implementations: a composition contract exercised
// end-to-end needs at least two concrete transforms.
package imageproc

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"imagepipe/internal/imagepipe"
)

// Resize scales an Image to exactly Width x Height using a fixed
// interpolation kernel, so two Resize values with the same dimensions are
// always Equal.
type Resize struct {
	Width, Height int
}

// Name implements imagepipe.Processor.
func (r Resize) Name() string { return "resize" }

// Apply implements imagepipe.Processor.
func (r Resize) Apply(img imagepipe.Image) (imagepipe.Image, error) {
	if img.Img == nil {
		return imagepipe.Image{}, imagepipe.ErrProcessingFailed
	}
	if r.Width <= 0 || r.Height <= 0 {
		return imagepipe.Image{}, imagepipe.ErrProcessingFailed
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img.Img, img.Img.Bounds(), draw.Over, nil)
	out := img
	out.Img = dst
	return out, nil
}

// Equal implements imagepipe.Processor.
func (r Resize) Equal(other imagepipe.Processor) bool {
	o, ok := other.(Resize)
	return ok && o == r
}

// Grayscale converts an Image to grayscale. It carries no configuration,
// so every Grayscale value is Equal to every other.
type Grayscale struct{}

// Name implements imagepipe.Processor.
func (Grayscale) Name() string { return "grayscale" }

// Apply implements imagepipe.Processor.
func (Grayscale) Apply(img imagepipe.Image) (imagepipe.Image, error) {
	if img.Img == nil {
		return imagepipe.Image{}, imagepipe.ErrProcessingFailed
	}
	b := img.Img.Bounds()
	dst := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(x, y, color.GrayModel.Convert(img.Img.At(x, y)))
		}
	}
	out := img
	out.Img = dst
	return out, nil
}

// Equal implements imagepipe.Processor.
func (Grayscale) Equal(other imagepipe.Processor) bool {
	_, ok := other.(Grayscale)
	return ok
}
