package cpu

import (
	"math/rand/v2"

	"github.com/achilleasa/boxtrace/scene"
	"github.com/achilleasa/boxtrace/types"
)

// Paths whose throughput drops below this value are terminated.
const throughputCutoff float32 = 0.001

// Maximum attempts for rejection sampling a hemisphere direction.
const maxDirectionSamples = 16

var (
	skyHorizon = types.XYZ(1.0, 1.0, 1.0)
	skyZenith  = types.XYZ(0.5, 0.7, 1.0)
)

// Get the sky radiance for a ray leaving the scene along dir.
func skyLight(dir types.Vec3) types.RGB {
	t := 0.5 * (dir[1] + 1.0)
	return skyHorizon.Lerp(skyZenith, t)
}

// Apply the material response at hit. Metallic surfaces mirror the ray
// while everything else adds its emission, tints the path throughput and
// scatters the ray in a random direction. Returns false if the path must be
// terminated.
func (tv *Traverser) shade(p *path, hit *Hit, rng *rand.Rand) bool {
	mat := tv.material(hit.Material)
	origin := hit.Point.Add(hit.Normal.Mul(surfaceEpsilon))

	if rng.Float32() < mat.Metallic {
		p.redirect(origin, p.dir.Reflect(hit.Normal).Normalize())
		return true
	}

	p.radiance = p.radiance.Add(p.throughput.MulVec(mat.Emissive))
	p.throughput = p.throughput.MulVec(mat.Albedo)

	p.diffuseBounces++
	if p.diffuseBounces > tv.settings.MaxDiffuseBounces {
		return false
	}

	p.redirect(origin, randomHemisphereDir(hit.Normal, rng))
	return true
}

// Look up a material record falling back to the neutral material for
// out-of-range indices.
func (tv *Traverser) material(index int32) scene.MaterialRecord {
	if index < 0 || int(index) >= len(tv.sc.Materials) {
		return (*scene.Material)(nil).Record()
	}
	return tv.sc.Materials[index]
}

// Pick a random direction in the hemisphere around normal by rejection
// sampling the unit sphere and flipping samples that point below the surface.
func randomHemisphereDir(normal types.Vec3, rng *rand.Rand) types.Vec3 {
	for attempt := 0; attempt < maxDirectionSamples; attempt++ {
		dir := types.XYZ(
			2*rng.Float32()-1,
			2*rng.Float32()-1,
			2*rng.Float32()-1,
		)
		lenSq := dir.Dot(dir)
		if lenSq > 1 || lenSq < 1e-6 {
			continue
		}

		dir = dir.Normalize()
		if dir.Dot(normal) < 0 {
			dir = dir.Mul(-1)
		}
		return dir
	}
	return normal
}
