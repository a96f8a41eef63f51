package encode

import (
	"bytes"
	"image"
	"image/png"
)

// PNGEncoder writes coverage maps as PNG. Output pixels outside the scene
// keep their zero alpha.
type PNGEncoder struct{}

func (e *PNGEncoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := &png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *PNGEncoder) Format() string        { return "png" }
func (e *PNGEncoder) FileExtension() string { return ".png" }
func (e *PNGEncoder) ContentType() string   { return "image/png" }
