package pixel

import (
	"errors"
	"math"
)

// Resizer scales rasters into a fixed canvas with contain semantics: the
// source keeps its aspect ratio, is centered, and the padding region stays
// fully transparent. It never crops and never stretches.
type Resizer struct {
	width  int
	height int
}

// NewResizer constructs a Resizer for the given target canvas.
func NewResizer(width, height int) (*Resizer, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New("pixel: target dimensions must be positive")
	}
	return &Resizer{width: width, height: height}, nil
}

// Contain scales src into the target canvas. Output dimensions are always
// exactly the target regardless of the source aspect ratio. Every destination
// pixel whose inverse-mapped source coordinate lies within source bounds is
// bilinearly interpolated across all four channels; fractional coordinates at
// the last row or column clamp to the final valid index. Interpolated values
// are truncated to integers. Pixels outside the drawn region keep the
// canvas's initial alpha-0 state.
func (r *Resizer) Contain(src *Image) (*Image, error) {
	if err := src.validate(); err != nil {
		return nil, err
	}
	dst := NewImage(r.width, r.height)

	scale := math.Min(float64(r.width)/float64(src.Width), float64(r.height)/float64(src.Height))
	drawW := int(float64(src.Width) * scale)
	drawH := int(float64(src.Height) * scale)
	if drawW < 1 {
		drawW = 1
	}
	if drawH < 1 {
		drawH = 1
	}
	offX := (r.width - drawW) / 2
	offY := (r.height - drawH) / 2

	for dy := 0; dy < r.height; dy++ {
		srcY := float64(dy-offY) / scale
		if srcY < 0 || srcY >= float64(src.Height) {
			continue
		}
		for dx := 0; dx < r.width; dx++ {
			srcX := float64(dx-offX) / scale
			if srcX < 0 || srcX >= float64(src.Width) {
				continue
			}
			r.sample(src, dst, srcX, srcY, dx, dy)
		}
	}
	return dst, nil
}

func (r *Resizer) sample(src, dst *Image, srcX, srcY float64, dx, dy int) {
	x0 := int(srcX)
	y0 := int(srcY)
	x1 := x0 + 1
	y1 := y0 + 1
	if x1 > src.Width-1 {
		x1 = src.Width - 1
	}
	if y1 > src.Height-1 {
		y1 = src.Height - 1
	}
	fx := srcX - float64(x0)
	fy := srcY - float64(y0)

	p00 := (y0*src.Width + x0) * 4
	p10 := (y0*src.Width + x1) * 4
	p01 := (y1*src.Width + x0) * 4
	p11 := (y1*src.Width + x1) * 4
	out := (dy*dst.Width + dx) * 4

	for c := 0; c < 4; c++ {
		top := float64(src.Pix[p00+c])*(1-fx) + float64(src.Pix[p10+c])*fx
		bottom := float64(src.Pix[p01+c])*(1-fx) + float64(src.Pix[p11+c])*fx
		dst.Pix[out+c] = byte(top*(1-fy) + bottom*fy)
	}
}
