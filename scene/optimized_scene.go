package scene

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"github.com/achilleasa/boxtrace/types"
	"github.com/chewxy/math32"
	"github.com/olekukonko/tablewriter"
)

const (
	// Index of the synthetic world object that contains all top level objects.
	RootIndex int32 = 0

	// Parent index used by the root node.
	NoParent int32 = -1

	// Each flattened object box is grown by this amount along each side so
	// that geometry lying on the box faces is never clipped.
	BoxInflation float32 = 0.1

	// Number of Vec3 slots used by each object in the packed layout.
	SlotsPerObject = 4
)

type NodeKind uint8

const (
	InteriorNode NodeKind = iota
	LeafNode
)

func (k NodeKind) String() string {
	if k == LeafNode {
		return "leaf"
	}
	return "interior"
}

// Object nodes use a set of multipurpose int32 fields whose meaning depends on
// the node type:
//
//   - Interior nodes: InnerObjectsIndex points to the first child and
//     NbInnerObjects > 0 holds the child count. Children are stored contiguously.
//   - Leaf nodes: NbInnerObjects is 0 and TriangleIndex, NbTriangles and
//     MaterialIndex describe the mesh triangle run and its material.
//
// ParentObjectIndex points to the parent node or is NoParent for the root.
// Position is relative to the parent center and Dimensions holds the
// inflated box half-extents.
type ObjectNode struct {
	InnerObjectsIndex int32
	NbInnerObjects    int32
	ParentObjectIndex int32

	TriangleIndex int32
	NbTriangles   int32
	MaterialIndex int32

	Position   types.Vec3
	Dimensions types.Vec3
}

// Set the child run for an interior node.
func (n *ObjectNode) SetChildNodes(first, count uint32) {
	n.InnerObjectsIndex = int32(first)
	n.NbInnerObjects = int32(count)
}

// Set the triangle run and material for a leaf node.
func (n *ObjectNode) SetPrimitives(firstTriangle, count, material uint32) {
	n.TriangleIndex = int32(firstTriangle)
	n.NbTriangles = int32(count)
	n.MaterialIndex = int32(material)
}

// Get the node type.
func (n *ObjectNode) Kind() NodeKind {
	if n.NbInnerObjects > 0 {
		return InteriorNode
	}
	return LeafNode
}

// Get the half-extents that leaf meshes are scaled to. This is the authored
// box size before inflation.
func (n *ObjectNode) MeshExtents() types.Vec3 {
	return types.MaxVec3(n.Dimensions.Sub(types.Splat(BoxInflation)), types.Vec3{})
}

// The flattened scene. All lists are read-only once the scene has been
// compiled; edits require compiling a new scene.
type Scene struct {
	// Mesh vertices in unit cube space.
	Vertices []types.Vec3

	// Triangles as triplets of indices into Vertices.
	Triangles [][3]uint32

	// Object nodes in breadth-first order. Objects[RootIndex] is the root.
	Objects []ObjectNode

	Materials []MaterialRecord
}

// Get the node at index.
func (sc *Scene) Node(index int32) *ObjectNode {
	return &sc.Objects[index]
}

// Calculate the absolute center of a node by walking the parent chain.
func (sc *Scene) AbsolutePosition(index int32) types.Vec3 {
	var pos types.Vec3
	for index >= 0 {
		node := &sc.Objects[index]
		pos = pos.Add(node.Position)
		index = node.ParentObjectIndex
	}
	return pos
}

// Pack the object list into the slot layout used by GPU tracers: each object
// occupies 4 consecutive Vec3 slots (children info, triangle info, position,
// dimensions) and object references are encoded as slot offsets (4 * index).
func (sc *Scene) Pack() []types.Vec3 {
	out := make([]types.Vec3, 0, len(sc.Objects)*SlotsPerObject)
	for _, node := range sc.Objects {
		var firstChild float32
		if node.NbInnerObjects > 0 {
			firstChild = float32(SlotsPerObject * node.InnerObjectsIndex)
		}
		parent := float32(NoParent)
		if node.ParentObjectIndex >= 0 {
			parent = float32(SlotsPerObject * node.ParentObjectIndex)
		}

		out = append(out,
			types.XYZ(firstChild, float32(node.NbInnerObjects), parent),
			types.XYZ(float32(node.TriangleIndex), float32(node.NbTriangles), float32(node.MaterialIndex)),
			node.Position,
			node.Dimensions,
		)
	}
	return out
}

// Unpack an object list generated by Pack.
func Unpack(slots []types.Vec3) ([]ObjectNode, error) {
	if len(slots)%SlotsPerObject != 0 {
		return nil, fmt.Errorf("scene: packed object list length %d is not a multiple of %d", len(slots), SlotsPerObject)
	}

	nodes := make([]ObjectNode, len(slots)/SlotsPerObject)
	for index := range nodes {
		s := slots[index*SlotsPerObject : (index+1)*SlotsPerObject]
		node := &nodes[index]

		var err error
		fields := []struct {
			name string
			val  float32
			dst  *int32
		}{
			{"child count", s[0][1], &node.NbInnerObjects},
			{"triangle index", s[1][0], &node.TriangleIndex},
			{"triangle count", s[1][1], &node.NbTriangles},
			{"material index", s[1][2], &node.MaterialIndex},
		}
		for _, f := range fields {
			if *f.dst, err = unpackIndex(f.val); err != nil {
				return nil, fmt.Errorf("scene: packed object %d: %s: %w", index, f.name, err)
			}
		}

		if node.InnerObjectsIndex, err = unpackSlot(s[0][0]); err != nil {
			return nil, fmt.Errorf("scene: packed object %d: child slot: %w", index, err)
		}
		node.ParentObjectIndex = NoParent
		if s[0][2] != float32(NoParent) {
			if node.ParentObjectIndex, err = unpackSlot(s[0][2]); err != nil {
				return nil, fmt.Errorf("scene: packed object %d: parent slot: %w", index, err)
			}
		}
		node.Position = s[2]
		node.Dimensions = s[3]

		if node.NbInnerObjects > 0 && int(node.InnerObjectsIndex)+int(node.NbInnerObjects) > len(nodes) {
			return nil, fmt.Errorf("scene: packed object %d references children outside the object list", index)
		}
		if int(node.ParentObjectIndex) >= len(nodes) {
			return nil, fmt.Errorf("scene: packed object %d references parent outside the object list", index)
		}
	}
	return nodes, nil
}

// Decode a non-negative integral count or index.
func unpackIndex(v float32) (int32, error) {
	if !(v >= 0) || v >= math32.MaxInt32 || v != math32.Trunc(v) {
		return 0, fmt.Errorf("invalid value %v", v)
	}
	return int32(v), nil
}

// Decode an object reference encoded as a slot offset.
func unpackSlot(v float32) (int32, error) {
	slot, err := unpackIndex(v)
	if err != nil {
		return 0, err
	}
	if slot%SlotsPerObject != 0 {
		return 0, fmt.Errorf("slot offset %d is not a multiple of %d", slot, SlotsPerObject)
	}
	return slot / SlotsPerObject, nil
}

// Build a tabular representation of scene statistics.
func (sc *Scene) Stats() string {
	var interior, leafs, empty int
	for index := range sc.Objects {
		node := &sc.Objects[index]
		switch {
		case node.Kind() == InteriorNode:
			interior++
		case node.NbTriangles == 0:
			empty++
		default:
			leafs++
		}
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Asset Type", "Asset", "Count", "Size"})
	table.Append([]string{"Geometry", "---", "", fmtSize(sc.Vertices, sc.Triangles)})
	table.Append([]string{"", "Vertices", fmt.Sprint(len(sc.Vertices)), fmtSize(sc.Vertices)})
	table.Append([]string{"", "Triangles", fmt.Sprint(len(sc.Triangles)), fmtSize(sc.Triangles)})
	table.Append([]string{" ", " ", " ", " "})
	table.Append([]string{"Hierarchy", "---", fmt.Sprint(len(sc.Objects)), fmtSize(sc.Objects)})
	table.Append([]string{"", "Interior nodes", fmt.Sprint(interior), ""})
	table.Append([]string{"", "Leafs", fmt.Sprint(leafs), ""})
	table.Append([]string{"", "Empty leafs", fmt.Sprint(empty), ""})
	table.Append([]string{" ", " ", " ", " "})
	table.Append([]string{"Materials", "---", fmt.Sprint(len(sc.Materials)), fmtSize(sc.Materials)})
	table.SetFooter([]string{"Total", " ", " ", strings.TrimLeft(fmtSize(sc.Vertices, sc.Triangles, sc.Objects, sc.Materials), " ")})

	table.Render()
	return buf.String()
}

// Sum the total space used by a set of slices and return back a formatted
// value with the appropriate byte/kb/mb unit.
func fmtSize(items ...interface{}) string {
	var totalBytes float32 = 0.0
	for _, item := range items {
		t := reflect.TypeOf(item)
		v := reflect.ValueOf(item)
		if v.Len() == 0 {
			continue
		}

		totalBytes += float32(int(t.Elem().Size()) * v.Len())
	}

	if totalBytes < 1e3 {
		return fmt.Sprintf("%3d bytes", int(totalBytes))
	} else if totalBytes < 1e6 {
		return fmt.Sprintf("%3.1f kb", totalBytes/1e3)
	}
	return fmt.Sprintf("%5.1f mb", totalBytes/1e6)
}
