package pixel

import (
	"stickerforge/internal/infra"
)

// Pipeline sequences the alpha repair and contain-resize over every image the
// generation service returns. It owns the degrade-gracefully policy: when a
// stage cannot process its input, the prior stage's buffer passes through
// unchanged rather than failing the request. A blemished sticker is
// preferable to none. Stages themselves return explicit errors and never
// swallow failures.
type Pipeline struct {
	normalizer *Normalizer
	resizer    *Resizer
	logger     infra.Logger
}

// NewPipeline wires the two stages behind the shared fallback policy.
func NewPipeline(normalizer *Normalizer, resizer *Resizer, logger infra.Logger) *Pipeline {
	return &Pipeline{normalizer: normalizer, resizer: resizer, logger: logger}
}

// Process turns raw image bytes from the generation service into a finished
// PNG sticker. Whatever bytes come back are servable; failures inside the
// pipeline only reduce how much post-processing was applied.
func (p *Pipeline) Process(raw []byte) []byte {
	im, err := Decode(raw)
	if err != nil {
		p.logger.Warn().Err(err).Msg("pipeline: undecodable image, serving raw bytes")
		return raw
	}
	if err := p.normalizer.Normalize(im); err != nil {
		p.logger.Warn().Err(err).Msg("pipeline: alpha repair failed, continuing with decoded raster")
	}
	out, err := p.resizer.Contain(im)
	if err != nil {
		p.logger.Warn().Err(err).Msg("pipeline: resize failed, keeping prior raster")
		out = im
	}
	encoded, err := Encode(out)
	if err != nil {
		p.logger.Warn().Err(err).Msg("pipeline: png encode failed, serving raw bytes")
		return raw
	}
	return encoded
}
