package scene

import "github.com/achilleasa/boxtrace/types"

// Create a unit cube mesh with 8 vertices and 12 outward facing triangles.
func CubeMesh() *Mesh {
	vertices := []types.Vec3{
		{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
		{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
	}
	triangles := [][3]uint32{
		// -z
		{0, 2, 1}, {0, 3, 2},
		// +z
		{4, 5, 6}, {4, 6, 7},
		// -x
		{0, 4, 7}, {0, 7, 3},
		// +x
		{1, 2, 6}, {1, 6, 5},
		// -y
		{0, 1, 5}, {0, 5, 4},
		// +y
		{3, 7, 6}, {3, 6, 2},
	}
	return NewMesh("cube", vertices, triangles)
}

// Create a single sided quad lying on the y = 0 plane. Once normalized the
// quad maps to the bottom face of the owning object's box.
func QuadMesh() *Mesh {
	vertices := []types.Vec3{
		{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1},
	}
	triangles := [][3]uint32{
		{0, 2, 1}, {0, 3, 2},
	}
	return NewMesh("quad", vertices, triangles)
}

// Create a height field mesh by sampling heightFn on an (n+1) x (n+1) grid
// over [0, 1] x [0, 1]. Heights are normalized along with the rest of the
// mesh so the highest sample touches the top of the owning object's box.
func HeightfieldMesh(n uint32, heightFn func(x, z float32) float32) *Mesh {
	if n == 0 {
		n = 1
	}

	stride := n + 1
	vertices := make([]types.Vec3, 0, stride*stride)
	for zi := uint32(0); zi <= n; zi++ {
		for xi := uint32(0); xi <= n; xi++ {
			x := float32(xi) / float32(n)
			z := float32(zi) / float32(n)
			vertices = append(vertices, types.XYZ(x, heightFn(x, z), z))
		}
	}

	triangles := make([][3]uint32, 0, 2*n*n)
	for zi := uint32(0); zi < n; zi++ {
		for xi := uint32(0); xi < n; xi++ {
			v0 := zi*stride + xi
			v1 := v0 + 1
			v2 := v0 + stride
			v3 := v2 + 1
			triangles = append(triangles,
				[3]uint32{v0, v2, v1},
				[3]uint32{v1, v2, v3},
			)
		}
	}

	return NewMesh("heightfield", vertices, triangles)
}
