package pixel

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	_ "image/jpeg"
)

// ErrMalformedRaster indicates a buffer that cannot be processed as an RGBA
// raster. The pipeline treats it as a post-process failure and degrades by
// passing the prior stage's buffer through.
var ErrMalformedRaster = errors.New("pixel: malformed raster")

// Image is a flat RGBA8 raster with straight (non-premultiplied) alpha:
// 4 bytes per pixel, row-major. Alpha 0 is transparent, 255 opaque, and
// intermediate values are anti-aliased edges.
type Image struct {
	Width  int
	Height int
	Pix    []byte
}

// NewImage allocates a zeroed raster; every pixel starts fully transparent.
func NewImage(width, height int) *Image {
	return &Image{Width: width, Height: height, Pix: make([]byte, width*height*4)}
}

func (im *Image) validate() error {
	if im == nil || im.Width <= 0 || im.Height <= 0 {
		return ErrMalformedRaster
	}
	if len(im.Pix) != im.Width*im.Height*4 {
		return fmt.Errorf("%w: %d bytes for %dx%d", ErrMalformedRaster, len(im.Pix), im.Width, im.Height)
	}
	return nil
}

// Decode parses encoded image bytes into a flat raster. Drawing through an
// NRGBA destination keeps alpha straight regardless of the source color
// model.
func Decode(data []byte) (*Image, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRaster, err)
	}
	bounds := src.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, ErrMalformedRaster
	}
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
	return &Image{Width: bounds.Dx(), Height: bounds.Dy(), Pix: dst.Pix}, nil
}

// Encode serializes a raster as PNG.
func Encode(im *Image) ([]byte, error) {
	if err := im.validate(); err != nil {
		return nil, err
	}
	wrapped := &image.NRGBA{
		Pix:    im.Pix,
		Stride: im.Width * 4,
		Rect:   image.Rect(0, 0, im.Width, im.Height),
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, wrapped); err != nil {
		return nil, fmt.Errorf("pixel: encode png: %w", err)
	}
	return buf.Bytes(), nil
}
