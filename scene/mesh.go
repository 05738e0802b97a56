package scene

import (
	"fmt"

	"github.com/achilleasa/boxtrace/types"
)

// The offset assigned to a mesh or material when it gets loaded into a scene.
// Offsets are only meaningful for the scene they were assigned by.
type loadState struct {
	sink   *Scene
	offset int
}

func (ls *loadState) lookup(sc *Scene) (int, bool) {
	if ls.sink != nil && ls.sink == sc {
		return ls.offset, true
	}
	return -1, false
}

// A Mesh is a triangle list whose vertices are normalized into the [0, 1]
// unit cube. Objects scale the unit cube to their own bounding box.
type Mesh struct {
	Name string

	vertices  []types.Vec3
	triangles [][3]uint32

	state loadState
}

// Create a new mesh. Vertices are normalized by the mesh bounding box; axes
// with a zero extent collapse to 0.
func NewMesh(name string, vertices []types.Vec3, triangles [][3]uint32) *Mesh {
	bbox := types.EmptyBBox()
	for _, v := range vertices {
		bbox[0] = types.MinVec3(bbox[0], v)
		bbox[1] = types.MaxVec3(bbox[1], v)
	}
	scale := bbox[1].Sub(bbox[0])

	normalized := make([]types.Vec3, len(vertices))
	for index, v := range vertices {
		normalized[index] = v.Sub(bbox[0]).DivVec(scale)
	}

	return &Mesh{
		Name:      name,
		vertices:  normalized,
		triangles: append([][3]uint32(nil), triangles...),
	}
}

// Get the normalized mesh vertices.
func (m *Mesh) Vertices() []types.Vec3 {
	return m.vertices
}

// Get the mesh triangles. Indices are local to the mesh vertex list.
func (m *Mesh) Triangles() [][3]uint32 {
	return m.triangles
}

// Check that all triangle indices reference a mesh vertex.
func (m *Mesh) Validate() error {
	for triIndex, tri := range m.triangles {
		for _, vIndex := range tri {
			if int(vIndex) >= len(m.vertices) {
				return fmt.Errorf("mesh %q: triangle %d references vertex %d; mesh only defines %d vertices", m.Name, triIndex, vIndex, len(m.vertices))
			}
		}
	}
	return nil
}

// Load the mesh into the scene vertex and triangle lists and return the index
// of its first triangle. Loading an already loaded mesh is a no-op that returns
// the previously assigned offset.
func (m *Mesh) Load(sc *Scene) int {
	if offset, loaded := m.state.lookup(sc); loaded {
		return offset
	}

	triOffset := len(sc.Triangles)
	vertexOffset := uint32(len(sc.Vertices))
	sc.Vertices = append(sc.Vertices, m.vertices...)
	for _, tri := range m.triangles {
		sc.Triangles = append(sc.Triangles, [3]uint32{
			vertexOffset + tri[0],
			vertexOffset + tri[1],
			vertexOffset + tri[2],
		})
	}

	m.state = loadState{sink: sc, offset: triOffset}
	return triOffset
}

// Get the triangle offset assigned to this mesh by sc.
func (m *Mesh) Offset(sc *Scene) (int, bool) {
	return m.state.lookup(sc)
}
