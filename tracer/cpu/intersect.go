package cpu

import (
	"github.com/achilleasa/boxtrace/types"
	"github.com/chewxy/math32"
)

const (
	// Returned by intersection tests when there is no forward hit.
	noHit float32 = -1.0

	// Ray/triangle configurations with |dot(dir, normal)| below this
	// threshold are treated as parallel.
	parallelEpsilon float32 = 1e-8

	// Tolerance used when checking whether a point lies on a box face or
	// inside a box.
	boxEpsilon float32 = 1e-5
)

// Intersect a ray with the box centered at center with the given
// half-extents. Each of the six face planes produces a candidate t that is
// only accepted if the corresponding point lies within the face extents
// along the other two axes. The smallest and largest accepted candidates form
// the hit interval.
//
// Returns noHit for both values if the ray misses the box or the box lies
// behind the ray origin.
func intersectBox(origin, dir, center, dims types.Vec3) (tMin, tMax float32) {
	tMin, tMax = math32.MaxFloat32, -math32.MaxFloat32
	lo := center.Sub(dims)
	hi := center.Add(dims)

	for axis := 0; axis < 3; axis++ {
		if dir[axis] == 0 {
			continue
		}

		u, v := (axis+1)%3, (axis+2)%3
		for _, plane := range [2]float32{lo[axis], hi[axis]} {
			t := (plane - origin[axis]) / dir[axis]
			pu := origin[u] + t*dir[u]
			pv := origin[v] + t*dir[v]
			if pu < lo[u]-boxEpsilon || pu > hi[u]+boxEpsilon || pv < lo[v]-boxEpsilon || pv > hi[v]+boxEpsilon {
				continue
			}

			if t < tMin {
				tMin = t
			}
			if t > tMax {
				tMax = t
			}
		}
	}

	if !(tMin < tMax) || tMax <= 0 {
		return noHit, noHit
	}
	return tMin, tMax
}

// Intersect a ray with a triangle using the plane equation followed by three
// same-side edge tests. Returns the hit distance and the geometric normal or
// noHit if the ray misses, runs parallel to the triangle plane or the hit is
// not strictly in front of the origin.
func intersectTriangle(origin, dir, v0, v1, v2 types.Vec3) (float32, types.Vec3) {
	normal := v1.Sub(v0).Cross(v2.Sub(v0)).Normalize()
	denom := dir.Dot(normal)
	if math32.Abs(denom) < parallelEpsilon {
		return noHit, normal
	}

	t := v0.Sub(origin).Dot(normal) / denom
	if !(t > 0) || math32.IsInf(t, 0) {
		return noHit, normal
	}

	hit := origin.Add(dir.Mul(t))
	if v1.Sub(v0).Cross(hit.Sub(v0)).Dot(normal) < 0 ||
		v2.Sub(v1).Cross(hit.Sub(v1)).Dot(normal) < 0 ||
		v0.Sub(v2).Cross(hit.Sub(v2)).Dot(normal) < 0 {
		return noHit, normal
	}

	return t, normal
}

// Check whether point lies inside the box centered at center with the given
// half-extents.
func inBox(point, center, dims types.Vec3) bool {
	for axis := 0; axis < 3; axis++ {
		if math32.Abs(point[axis]-center[axis]) > dims[axis]+boxEpsilon {
			return false
		}
	}
	return true
}
