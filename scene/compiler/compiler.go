package compiler

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/achilleasa/boxtrace/log"
	"github.com/achilleasa/boxtrace/scene"
	"github.com/achilleasa/boxtrace/types"
	"github.com/chewxy/math32"
)

var (
	ErrMalformedTopology = errors.New("compiler: malformed scene topology")
	ErrTooManyObjects    = errors.New("compiler: object count exceeds the addressable index range")
)

// Name assigned to the synthetic node that holds all top level objects.
const rootName = "world"

type workItem struct {
	obj    *scene.Object
	parent int32
}

type sceneCompiler struct {
	roots          []*scene.Object
	optimizedScene *scene.Scene
	defaultMat     *scene.Material
	logger         log.Logger
}

// Compile a tree of scene objects into a flattened scene. Objects are
// assigned indices in breadth-first order under a synthetic root so that the
// children of each node occupy a contiguous index run. Meshes and materials
// shared by multiple objects are emitted once.
//
// Compile updates the load state of the meshes and materials it encounters so
// it must not be invoked concurrently on trees that share them.
func Compile(roots []*scene.Object) (*scene.Scene, error) {
	compiler := &sceneCompiler{
		roots:          roots,
		optimizedScene: &scene.Scene{},
		defaultMat:     scene.NewMaterial("default"),
		logger:         log.New("scene compiler"),
	}

	start := time.Now()
	compiler.logger.Noticef("compiling scene (%d top level objects)", len(roots))

	count, err := compiler.validate()
	if err != nil {
		return nil, err
	}
	if count+1 > math.MaxInt32/scene.SlotsPerObject {
		return nil, ErrTooManyObjects
	}

	compiler.flatten(count + 1)
	compiler.checkContainment()

	compiler.logger.Noticef(
		"compiled scene in %d ms (%d objects, %d triangles, %d materials)",
		time.Since(start).Nanoseconds()/1e6,
		len(compiler.optimizedScene.Objects),
		len(compiler.optimizedScene.Triangles),
		len(compiler.optimizedScene.Materials),
	)
	return compiler.optimizedScene, nil
}

// Walk the object tree and reject structures that cannot be flattened into a
// tree. Returns the number of visited objects.
func (sc *sceneCompiler) validate() (int, error) {
	start := time.Now()

	visited := make(map[*scene.Object]bool)
	stack := make([]*scene.Object, 0, len(sc.roots))
	for index, obj := range sc.roots {
		if obj == nil {
			return 0, fmt.Errorf("%w: top level object %d is nil", ErrMalformedTopology, index)
		}
		stack = append(stack, obj)
	}

	for len(stack) > 0 {
		obj := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[obj] {
			return 0, fmt.Errorf("%w: object %q is reachable through more than one parent", ErrMalformedTopology, obj.Name)
		}
		visited[obj] = true

		if err := validateObject(obj); err != nil {
			return 0, err
		}

		for index, child := range obj.Children {
			if child == nil {
				return 0, fmt.Errorf("%w: child %d of object %q is nil", ErrMalformedTopology, index, obj.Name)
			}
			stack = append(stack, child)
		}
	}

	sc.logger.Debugf("validated %d objects in %d ms", len(visited), time.Since(start).Nanoseconds()/1e6)
	return len(visited), nil
}

func validateObject(obj *scene.Object) error {
	if obj.Position.IsInvalid() {
		return fmt.Errorf("%w: object %q has an invalid position %v", ErrMalformedTopology, obj.Name, obj.Position)
	}
	if obj.Dimensions.IsInvalid() {
		return fmt.Errorf("%w: object %q has invalid dimensions %v", ErrMalformedTopology, obj.Name, obj.Dimensions)
	}
	if obj.Dimensions[0] < 0 || obj.Dimensions[1] < 0 || obj.Dimensions[2] < 0 {
		return fmt.Errorf("%w: object %q has negative dimensions %v", ErrMalformedTopology, obj.Name, obj.Dimensions)
	}
	if len(obj.Children) > 0 && obj.Mesh != nil {
		return fmt.Errorf("%w: object %q defines both a mesh and child objects", ErrMalformedTopology, obj.Name)
	}
	if obj.Mesh != nil {
		if err := obj.Mesh.Validate(); err != nil {
			return fmt.Errorf("%w: object %q: %s", ErrMalformedTopology, obj.Name, err.Error())
		}
	}
	return nil
}

// Emit object records in breadth-first order.
func (sc *sceneCompiler) flatten(capacity int) {
	start := time.Now()
	os := sc.optimizedScene
	os.Objects = make([]scene.ObjectNode, 0, capacity)

	root := &scene.Object{
		Name:       rootName,
		Dimensions: rootExtents(sc.roots),
		Children:   sc.roots,
	}

	queue := make([]workItem, 0, capacity)
	queue = append(queue, workItem{obj: root, parent: scene.NoParent})
	for index := 0; index < len(queue); index++ {
		item := queue[index]
		obj := item.obj

		node := scene.ObjectNode{
			ParentObjectIndex: item.parent,
			Position:          obj.Position,
			Dimensions:        obj.Dimensions.Add(types.Splat(scene.BoxInflation)),
		}

		switch {
		case len(obj.Children) > 0:
			node.SetChildNodes(uint32(len(queue)), uint32(len(obj.Children)))
			for _, child := range obj.Children {
				queue = append(queue, workItem{obj: child, parent: int32(index)})
			}
		case obj.Mesh != nil && len(obj.Mesh.Triangles()) > 0:
			triOffset := obj.Mesh.Load(os)
			mat := obj.Material
			if mat == nil {
				mat = sc.defaultMat
			}
			matIndex := mat.Load(os)
			node.SetPrimitives(uint32(triOffset), uint32(len(obj.Mesh.Triangles())), uint32(matIndex))
		default:
			sc.logger.Debugf("object %q has no geometry; it will never be hit", obj.Name)
		}

		os.Objects = append(os.Objects, node)
	}

	sc.logger.Infof("flattened %d objects in %d ms", len(os.Objects), time.Since(start).Nanoseconds()/1e6)
}

// Log a warning for each child whose box is not fully contained inside its
// parent's inflated box. Such scenes still render but rays may skip the
// parts that stick out.
func (sc *sceneCompiler) checkContainment() {
	os := sc.optimizedScene
	for index := range os.Objects {
		parent := &os.Objects[index]
		if parent.Kind() != scene.InteriorNode || index == int(scene.RootIndex) {
			continue
		}

		for childIndex := parent.InnerObjectsIndex; childIndex < parent.InnerObjectsIndex+parent.NbInnerObjects; childIndex++ {
			child := &os.Objects[childIndex]
			authored := child.MeshExtents()
			for axis := 0; axis < 3; axis++ {
				if math32.Abs(child.Position[axis])+authored[axis] > parent.Dimensions[axis] {
					sc.logger.Warningf("object %d is not contained inside its parent %d along axis %d", childIndex, index, axis)
					break
				}
			}
		}
	}
}

// Calculate the half-extents of a box centered at the origin that contains
// all top level objects.
func rootExtents(roots []*scene.Object) types.Vec3 {
	var extents types.Vec3
	for _, obj := range roots {
		for axis := 0; axis < 3; axis++ {
			extents[axis] = math32.Max(extents[axis], math32.Abs(obj.Position[axis])+obj.Dimensions[axis])
		}
	}
	return extents
}
