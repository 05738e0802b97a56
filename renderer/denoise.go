package renderer

import (
	"github.com/achilleasa/boxtrace/types"
	"github.com/chewxy/math32"
)

const (
	invSqrt2Pi float32 = 0.3989422804014327
	invPi      float32 = 0.3183098861837907
)

// A circular bilateral kernel. Each neighbor is weighted by a gaussian of
// its distance to the centre pixel multiplied by a gaussian of its color
// difference to the centre pixel so that edges are preserved.
type denoiseKernel struct {
	radius int

	invSigmaQx2   float32
	invSigmaQx2Pi float32

	invThresholdSqx2    float32
	invThresholdSqrt2Pi float32
}

// Build the kernel for the given accumulated frame count. Sigma and the edge
// threshold both shrink with the square root of the frame count; once the
// radius rounds down to zero the kernel becomes the identity.
func newDenoiseKernel(sigma, kSigma, threshold float32, frameCount uint32) denoiseKernel {
	if sigma <= 0 || kSigma <= 0 || threshold <= 0 || frameCount == 0 {
		return denoiseKernel{}
	}

	scale := 1.0 / math32.Sqrt(float32(frameCount))
	sigma *= scale
	threshold *= scale

	k := denoiseKernel{
		radius:              int(math32.Round(kSigma * sigma)),
		invSigmaQx2:         0.5 / (sigma * sigma),
		invThresholdSqx2:    0.5 / (threshold * threshold),
		invThresholdSqrt2Pi: invSqrt2Pi / threshold,
	}
	k.invSigmaQx2Pi = invPi * k.invSigmaQx2
	return k
}

// Filter pixel (x, y) of a packed RGB buffer. Every value read from src is
// multiplied by scale before filtering. Reads outside the frame are clamped
// to the nearest edge pixel.
func (k denoiseKernel) filter(src []float32, scale float32, frameW, frameH, x, y int) types.Vec3 {
	centre := pixelAt(src, scale, frameW, x, y)
	if k.radius == 0 {
		return centre
	}

	radQ := float32(k.radius * k.radius)
	var zBuf float32
	var aBuf types.Vec3
	for dx := -k.radius; dx <= k.radius; dx++ {
		pt := int(math32.Sqrt(radQ - float32(dx*dx)))
		for dy := -pt; dy <= pt; dy++ {
			blur := math32.Exp(-float32(dx*dx+dy*dy)*k.invSigmaQx2) * k.invSigmaQx2Pi

			walk := pixelAt(src, scale, frameW, clamp(x+dx, frameW), clamp(y+dy, frameH))
			dC := walk.Sub(centre)
			delta := math32.Exp(-dC.Dot(dC)*k.invThresholdSqx2) * k.invThresholdSqrt2Pi * blur

			zBuf += delta
			aBuf = aBuf.Add(walk.Mul(delta))
		}
	}

	if zBuf <= 0 {
		return centre
	}
	return aBuf.Mul(1.0 / zBuf)
}

func pixelAt(src []float32, scale float32, frameW, x, y int) types.Vec3 {
	offset := (y*frameW + x) * 3
	return types.XYZ(src[offset]*scale, src[offset+1]*scale, src[offset+2]*scale)
}

func clamp(v, size int) int {
	if v < 0 {
		return 0
	}
	if v >= size {
		return size - 1
	}
	return v
}
