package cpu

import (
	"math/rand/v2"

	"github.com/achilleasa/boxtrace/tracer"
	"github.com/achilleasa/boxtrace/types"
)

// Trace a primary ray according to the configured debug mode.
func (tv *Traverser) trace(origin, dir types.Vec3, rng *rand.Rand) (types.RGB, uint32) {
	switch tv.settings.Debug {
	case tracer.DebugDepth:
		hit, ok := tv.Intersect(origin, dir)
		if !ok {
			return types.Vec3{}, 0
		}
		return types.Splat(1.0 / (1.0 + hit.T)), 0
	case tracer.DebugNormals:
		hit, ok := tv.Intersect(origin, dir)
		if !ok {
			return types.Vec3{}, 0
		}
		return hit.Normal.Add(types.Splat(1)).Mul(0.5), 0
	case tracer.DebugSteps:
		_, steps := tv.Sample(origin, dir, rng)
		return types.Splat(float32(steps) / float32(tv.settings.MaxSteps)), steps
	}

	return tv.Sample(origin, dir, rng)
}
