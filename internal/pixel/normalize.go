package pixel

// DefaultEdgeBand is the width of the boundary band, in pixels, that keeps
// its original anti-aliased alpha through the opacity clamp.
const DefaultEdgeBand = 2

// NormalizeOptions tunes the alpha repair. The zero value selects the
// defaults: a 2-pixel edge band and an opaque white backing for enclosed
// holes. White matches the sticker stock this service produces; callers with
// a different backing override Fill.
type NormalizeOptions struct {
	EdgeBand int
	Fill     [4]byte
}

// Normalizer repairs a raster's alpha channel in two ordered phases: enclosed
// transparent holes are filled with the backing color, then interior pixels
// are clamped to full opacity while the edge band keeps its anti-aliasing.
// Both phases are pixel-local and traversal-order independent, so identical
// input always yields identical output.
type Normalizer struct {
	band int
	fill [4]byte
}

// NewNormalizer constructs a Normalizer, applying defaults for zero options.
func NewNormalizer(opts NormalizeOptions) *Normalizer {
	band := opts.EdgeBand
	if band <= 0 {
		band = DefaultEdgeBand
	}
	fill := opts.Fill
	if fill == ([4]byte{}) {
		fill = [4]byte{255, 255, 255, 255}
	}
	return &Normalizer{band: band, fill: fill}
}

// Normalize repairs the raster in place.
func (n *Normalizer) Normalize(im *Image) error {
	if err := im.validate(); err != nil {
		return err
	}
	n.fillHoles(im)
	n.clampAlpha(im)
	return nil
}

// fillHoles classifies every transparent pixel as border-reachable or
// enclosed with a flood fill seeded from all transparent border pixels,
// expanding through 4-connected transparent neighbors. Transparent pixels the
// flood never reaches are enclosed holes and get the backing color: a
// synthesized silhouette may contain accidental interior transparency that
// must not be mistaken for background.
func (n *Normalizer) fillHoles(im *Image) {
	w, h := im.Width, im.Height
	visited := make([]bool, w*h)
	queue := make([]int32, 0, w*h)

	seed := func(idx int) {
		if !visited[idx] && im.Pix[idx*4+3] == 0 {
			visited[idx] = true
			queue = append(queue, int32(idx))
		}
	}
	for x := 0; x < w; x++ {
		seed(x)
		seed((h-1)*w + x)
	}
	for y := 0; y < h; y++ {
		seed(y * w)
		seed(y*w + w - 1)
	}

	for head := 0; head < len(queue); head++ {
		idx := int(queue[head])
		x, y := idx%w, idx/w
		if x > 0 {
			seed(idx - 1)
		}
		if x < w-1 {
			seed(idx + 1)
		}
		if y > 0 {
			seed(idx - w)
		}
		if y < h-1 {
			seed(idx + w)
		}
	}

	for idx := 0; idx < w*h; idx++ {
		if im.Pix[idx*4+3] == 0 && !visited[idx] {
			copy(im.Pix[idx*4:idx*4+4], n.fill[:])
		}
	}
}

// clampAlpha forces interior pixels to full opacity while leaving the edge
// band untouched. Edge pixels are non-transparent pixels with a transparent
// 8-neighbor or a canvas border beside them; a multi-source flood through
// 4-connected non-transparent pixels assigns each pixel its graph distance to
// the nearest edge. After this phase the only alpha values outside {0, 255}
// sit within the band adjacent to true transparency.
func (n *Normalizer) clampAlpha(im *Image) {
	w, h := im.Width, im.Height
	dist := make([]int32, w*h)
	for i := range dist {
		dist[i] = -1
	}
	queue := make([]int32, 0, w*h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if im.Pix[idx*4+3] == 0 {
				continue
			}
			if n.isEdge(im, x, y) {
				dist[idx] = 0
				queue = append(queue, int32(idx))
			}
		}
	}

	for head := 0; head < len(queue); head++ {
		idx := int(queue[head])
		x, y := idx%w, idx/w
		next := dist[idx] + 1
		step := func(nIdx int) {
			if dist[nIdx] == -1 && im.Pix[nIdx*4+3] > 0 {
				dist[nIdx] = next
				queue = append(queue, int32(nIdx))
			}
		}
		if x > 0 {
			step(idx - 1)
		}
		if x < w-1 {
			step(idx + 1)
		}
		if y > 0 {
			step(idx - w)
		}
		if y < h-1 {
			step(idx + w)
		}
	}

	for idx := 0; idx < w*h; idx++ {
		if im.Pix[idx*4+3] > 0 && dist[idx] > int32(n.band) {
			im.Pix[idx*4+3] = 255
		}
	}
}

func (n *Normalizer) isEdge(im *Image, x, y int) bool {
	w, h := im.Width, im.Height
	if x == 0 || y == 0 || x == w-1 || y == h-1 {
		return true
	}
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if im.Pix[((y+dy)*w+(x+dx))*4+3] == 0 {
				return true
			}
		}
	}
	return false
}
