package cpu

import (
	"math/rand/v2"

	"github.com/achilleasa/boxtrace/scene"
	"github.com/achilleasa/boxtrace/tracer"
	"github.com/achilleasa/boxtrace/types"
)

const (
	// Distance added when stepping out of a box so that the next scan does
	// not re-enter the same boundary.
	boxStepEpsilon float32 = 0.01

	// Distance a continuation ray is moved away from the surface it
	// bounced off.
	surfaceEpsilon float32 = 1e-3
)

type traversalState uint8

const (
	descendSiblings traversalState = iota
	enterChild
	intersectLeaf
	ascendParent
	terminated
)

// The reason a traversal stopped.
type outcome uint8

const (
	outcomeHit outcome = iota
	outcomeSky
	outcomeExhausted
)

// A mesh intersection.
type Hit struct {
	// Distance travelled from the ray origin.
	T float32

	Point types.Vec3

	// The geometric surface normal, oriented to face the incoming ray.
	Normal types.Vec3

	// Index of the leaf object and its material.
	Object   int32
	Material int32
}

// The state of a single in-flight sample path.
type path struct {
	origin types.Vec3
	dir    types.Vec3

	// Parent context: the node whose children are being scanned and the
	// absolute center of that node.
	parent    int32
	parentPos types.Vec3

	// Travelled distance along the current ray segment.
	distance float32

	steps          uint32
	diffuseBounces uint32

	radiance   types.RGB
	throughput types.RGB

	// The child selected by the last sibling scan.
	child    int32
	childPos types.Vec3
	tEntry   float32
	tExit    float32
}

func newPath(origin, dir types.Vec3) *path {
	return &path{
		origin:     origin,
		dir:        dir,
		parent:     scene.RootIndex,
		throughput: types.Splat(1),
	}
}

// Start a new ray segment from origin inside the current parent context.
func (p *path) redirect(origin, dir types.Vec3) {
	p.origin = origin
	p.dir = dir
	p.distance = 0
}

// Advance the ray origin by t along the ray direction.
func (p *path) advance(t float32) {
	p.origin = p.origin.Add(p.dir.Mul(t))
	p.distance += t
}

// A Traverser walks the object hierarchy of a compiled scene. Traversers are
// not safe for concurrent use but any number of them can share a scene.
type Traverser struct {
	sc       *scene.Scene
	settings tracer.Settings
}

// Create a new traverser for sc.
func NewTraverser(sc *scene.Scene, settings tracer.Settings) *Traverser {
	if settings.MaxSteps == 0 {
		settings.MaxSteps = tracer.DefaultSettings().MaxSteps
	}
	return &Traverser{
		sc:       sc,
		settings: settings,
	}
}

// Find the nearest mesh intersection for a ray starting at origin. Returns
// false if the ray escapes to the sky or exhausts its step budget.
func (tv *Traverser) Intersect(origin, dir types.Vec3) (Hit, bool) {
	p := newPath(origin, dir.Normalize())
	hit, res := tv.nextHit(p)
	return hit, res == outcomeHit
}

// Walk the hierarchy from the current path context until a mesh is hit, the
// ray escapes past the root or the step budget runs out.
func (tv *Traverser) nextHit(p *path) (Hit, outcome) {
	var hit Hit
	state := descendSiblings
	res := outcomeExhausted

	for state != terminated {
		switch state {
		case descendSiblings:
			if p.steps >= tv.settings.MaxSteps || len(tv.sc.Objects) == 0 {
				res = outcomeExhausted
				state = terminated
				continue
			}
			p.steps++

			if tv.scanSiblings(p) {
				state = enterChild
			} else {
				state = ascendParent
			}
		case enterChild:
			p.advance(p.tEntry)
			p.tExit -= p.tEntry

			child := tv.sc.Node(p.child)
			if child.Kind() == scene.InteriorNode {
				p.parent = p.child
				p.parentPos = p.childPos
				state = descendSiblings
			} else {
				state = intersectLeaf
			}
		case intersectLeaf:
			var found bool
			if hit, found = tv.intersectLeaf(p); found {
				res = outcomeHit
				state = terminated
				continue
			}

			// Skip past the leaf and keep scanning the same parent.
			p.advance(p.tExit + boxStepEpsilon)
			state = descendSiblings
		case ascendParent:
			parent := tv.sc.Node(p.parent)
			if parent.ParentObjectIndex < 0 {
				res = outcomeSky
				state = terminated
				continue
			}

			// Move to the exit point of the parent box. If the origin
			// escaped the parent (containment violation) there is no
			// forward exit and the origin stays put.
			if _, tExit := intersectBox(p.origin, p.dir, p.parentPos, parent.Dimensions); tExit > 0 {
				p.advance(tExit + boxStepEpsilon)
			}
			p.parentPos = p.parentPos.Sub(parent.Position)
			p.parent = parent.ParentObjectIndex
			state = descendSiblings
		}
	}

	return hit, res
}

// Scan the children of the current parent and select the one whose box is
// entered first. Ties keep the child found first.
func (tv *Traverser) scanSiblings(p *path) bool {
	parent := tv.sc.Node(p.parent)
	found := false
	for index := parent.InnerObjectsIndex; index < parent.InnerObjectsIndex+parent.NbInnerObjects; index++ {
		child := tv.sc.Node(index)
		childPos := p.parentPos.Add(child.Position)
		tMin, tMax := intersectBox(p.origin, p.dir, childPos, child.Dimensions)
		if tMax <= 0 {
			continue
		}

		tEntry := tMin
		if tEntry < 0 {
			tEntry = 0
		}
		if !found || tEntry < p.tEntry {
			found = true
			p.child = index
			p.childPos = childPos
			p.tEntry = tEntry
			p.tExit = tMax
		}
	}
	return found
}

// Intersect the mesh of the selected leaf. Candidate hits outside the leaf
// box are rejected.
func (tv *Traverser) intersectLeaf(p *path) (Hit, bool) {
	leaf := tv.sc.Node(p.child)
	if leaf.NbTriangles <= 0 {
		return Hit{}, false
	}

	extents := leaf.MeshExtents()
	bestT := noHit
	var bestNormal types.Vec3
	for triIndex := leaf.TriangleIndex; triIndex < leaf.TriangleIndex+leaf.NbTriangles; triIndex++ {
		tri := tv.sc.Triangles[triIndex]
		v0 := toWorld(tv.sc.Vertices[tri[0]], p.childPos, extents)
		v1 := toWorld(tv.sc.Vertices[tri[1]], p.childPos, extents)
		v2 := toWorld(tv.sc.Vertices[tri[2]], p.childPos, extents)

		t, normal := intersectTriangle(p.origin, p.dir, v0, v1, v2)
		if t <= 0 || (bestT > 0 && t >= bestT) {
			continue
		}
		if !inBox(p.origin.Add(p.dir.Mul(t)), p.childPos, leaf.Dimensions) {
			continue
		}
		bestT = t
		bestNormal = normal
	}

	if bestT <= 0 {
		return Hit{}, false
	}

	if bestNormal.Dot(p.dir) > 0 {
		bestNormal = bestNormal.Mul(-1)
	}
	return Hit{
		T:        p.distance + bestT,
		Point:    p.origin.Add(p.dir.Mul(bestT)),
		Normal:   bestNormal,
		Object:   p.child,
		Material: leaf.MaterialIndex,
	}, true
}

// Map a unit cube vertex to the world space box of a leaf.
func toWorld(v, center, extents types.Vec3) types.Vec3 {
	return center.Add(v.Mul(2).Sub(types.Splat(1)).MulVec(extents))
}

// Trace a full sample path for a primary ray and return the collected
// radiance together with the number of traversal steps it used.
func (tv *Traverser) Sample(origin, dir types.Vec3, rng *rand.Rand) (types.RGB, uint32) {
	p := newPath(origin, dir.Normalize())
	for {
		hit, res := tv.nextHit(p)
		switch res {
		case outcomeSky:
			if p.diffuseBounces == 0 || tv.settings.SkyLighting {
				p.radiance = p.radiance.Add(p.throughput.MulVec(skyLight(p.dir)))
			}
			return p.radiance, p.steps
		case outcomeExhausted:
			return p.radiance, p.steps
		}

		if !tv.shade(p, &hit, rng) {
			return p.radiance, p.steps
		}
		if p.throughput.Len() <= throughputCutoff {
			return p.radiance, p.steps
		}
	}
}
