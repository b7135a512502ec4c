package imagepipe

import stdimage "image"

// Image is the pipeline's decoded raster result. It wraps the standard
// library's image.Image so a built-in DataDecoding implementation can use
// image/jpeg, image/png and image/gif directly, while leaving room for a
// Trace slice that the test suite uses to assert Processor ordering (§8,
// scenario 4) without requiring pixel inspection.
type Image struct {
	// Img is the decoded raster. Required for a valid Image.
	Img stdimage.Image

	// Trace records, in application order, the Name of every Processor
	// that has run on this Image. It exists purely to make composition
	// order observable in tests; production Processors are free to ignore
	// it.
	Trace []string
}

// CostBytes estimates the in-memory footprint used by the memory cache's
// cost-based eviction (§4.5): height × bytes-per-row, with bytes-per-row
// approximated as width × 4 bytes (RGBA) regardless of the underlying
// color model.
func (img Image) CostBytes() int64 {
	if img.Img == nil {
		return 0
	}
	b := img.Img.Bounds()
	width := int64(b.Dx())
	height := int64(b.Dy())
	const bytesPerPixel = 4
	return width * bytesPerPixel * height
}

// withTrace returns a copy of img with name appended to its Trace.
func (img Image) withTrace(name string) Image {
	if name == "" {
		return img
	}
	trace := make([]string, 0, len(img.Trace)+1)
	trace = append(trace, img.Trace...)
	trace = append(trace, name)
	img.Trace = trace
	return img
}
