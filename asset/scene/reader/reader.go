package reader

import (
	"fmt"

	"github.com/achilleasa/boxtrace/asset"
	"github.com/achilleasa/boxtrace/scene"
	"github.com/achilleasa/boxtrace/types"
)

// A Description holds the objects and the initial camera of a scene file.
type Description struct {
	Roots  []*scene.Object
	Camera *scene.Camera
}

// A Model is a mesh read from a model file together with its material and its
// bounding box in model coordinates.
type Model struct {
	Mesh     *scene.Mesh
	Material *scene.Material
	BBox     [2]types.Vec3
}

// Create an object that places the model mesh at its original location
// relative to origin.
func (m *Model) Object(origin types.Vec3) *scene.Object {
	center := m.BBox[0].Add(m.BBox[1]).Mul(0.5)
	dims := m.BBox[1].Sub(m.BBox[0]).Mul(0.5)
	return scene.NewObject(m.Mesh.Name, center.Sub(origin), dims, m.Mesh, m.Material)
}

// Group a list of models under a single object whose box encloses all of
// them.
func groupModels(name string, models []*Model) *scene.Object {
	bbox := types.EmptyBBox()
	for _, m := range models {
		bbox[0] = types.MinVec3(bbox[0], m.BBox[0])
		bbox[1] = types.MaxVec3(bbox[1], m.BBox[1])
	}
	center := bbox[0].Add(bbox[1]).Mul(0.5)

	group := scene.NewGroup(name, center, bbox[1].Sub(bbox[0]).Mul(0.5))
	for _, m := range models {
		group.Add(m.Object(center))
	}
	return group
}

// Read scene from file. The reader is selected based on the file extension:
// yaml scene descriptors or wavefront obj models.
func ReadScene(filename string) (*Description, error) {
	res, err := asset.NewResource(filename, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	return Read(res)
}

// Read scene from a resource.
func Read(res *asset.Resource) (*Description, error) {
	switch res.Ext() {
	case ".yaml", ".yml":
		return readYAML(res)
	case ".obj":
		models, err := ReadWavefront(res)
		if err != nil {
			return nil, err
		}
		if len(models) == 0 {
			return nil, fmt.Errorf("readScene: %s does not define any meshes", res.Path())
		}
		return &Description{
			Roots: []*scene.Object{groupModels(res.Name(), models)},
		}, nil
	}
	return nil, fmt.Errorf("readScene: unsupported file format %q", res.Ext())
}
