package renderer

import (
	"image/color"

	"github.com/achilleasa/boxtrace/types"
	"github.com/chewxy/math32"
)

const invGamma float32 = 1.0 / 2.2

// Apply simple Reinhard tone-mapping followed by gamma correction.
func tonemapSimpleReinhard(c types.RGB, exposure float32) color.RGBA {
	return color.RGBA{
		R: reinhard(c[0], exposure),
		G: reinhard(c[1], exposure),
		B: reinhard(c[2], exposure),
		A: 255,
	}
}

func reinhard(v, exposure float32) uint8 {
	v *= exposure
	if !(v > 0) {
		return 0
	}
	if math32.IsInf(v, 1) {
		return 255
	}
	v = math32.Pow(v/(1.0+v), invGamma)
	return uint8(math32.Min(math32.Round(v*255), 255))
}
