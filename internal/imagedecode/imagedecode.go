// Package imagedecode is a minimal standard-library-backed implementation
// of imagepipe.DataDecoding, registered against the common raster formats
// so the demo binary can decode real responses end-to-end. Decoding itself
// remains a pluggable, out-of-scope concern; this is the one concrete
// decoder a complete repo ships.
package imagedecode

import (
	"bytes"
	stdimage "image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"imagepipe/internal/imagepipe"
)

// Decoder implements imagepipe.DataDecoding using image.Decode, which
// dispatches to whichever format package is blank-imported above based on
// the data's magic bytes.
type Decoder struct{}

// New returns a Decoder.
func New() Decoder { return Decoder{} }

// Decode implements imagepipe.DataDecoding.
func (Decoder) Decode(data []byte, resp imagepipe.Response) (imagepipe.Image, bool) {
	img, _, err := stdimage.Decode(bytes.NewReader(data))
	if err != nil {
		return imagepipe.Image{}, false
	}
	return imagepipe.Image{Img: img}, true
}
