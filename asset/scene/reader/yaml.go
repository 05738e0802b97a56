package reader

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/achilleasa/boxtrace/asset"
	"github.com/achilleasa/boxtrace/log"
	"github.com/achilleasa/boxtrace/scene"
	"github.com/achilleasa/boxtrace/types"
	"github.com/chewxy/math32"
	"gopkg.in/yaml.v3"
)

// Mesh types that can be referenced by name without a declaration.
const (
	builtinCube = "cube"
	builtinQuad = "quad"
)

const defaultFOV float32 = 45

// vec3 accepts either a [x, y, z] sequence or a single scalar that is
// copied to all components.
type vec3 types.Vec3

func (v *vec3) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var s float32
		if err := value.Decode(&s); err != nil {
			return err
		}
		*v = vec3(types.Splat(s))
		return nil
	}

	var list []float32
	if err := value.Decode(&list); err != nil {
		return err
	}
	if len(list) != 3 {
		return fmt.Errorf("line %d: expected 3 vector components; got %d", value.Line, len(list))
	}
	*v = vec3(types.XYZ(list[0], list[1], list[2]))
	return nil
}

type cameraDesc struct {
	Position *vec3   `yaml:"position"`
	LookAt   *vec3   `yaml:"look_at"`
	Up       *vec3   `yaml:"up"`
	FOV      float32 `yaml:"fov"`
}

type materialDesc struct {
	Albedo       *vec3   `yaml:"albedo"`
	Emissive     *vec3   `yaml:"emissive"`
	Transparency *vec3   `yaml:"transparency"`
	Metallic     float32 `yaml:"metallic"`
	Roughness    float32 `yaml:"roughness"`
	IOR          float32 `yaml:"ior"`
}

type meshDesc struct {
	Type string `yaml:"type"`

	// Wavefront meshes.
	Path   string `yaml:"path"`
	Object string `yaml:"object"`

	// Height fields.
	Resolution uint32  `yaml:"resolution"`
	Frequency  float32 `yaml:"frequency"`
}

type objectDesc struct {
	Name       string       `yaml:"name"`
	Position   vec3         `yaml:"position"`
	Dimensions *vec3        `yaml:"dimensions"`
	Mesh       string       `yaml:"mesh"`
	Material   string       `yaml:"material"`
	Model      string       `yaml:"model"`
	Children   []objectDesc `yaml:"children"`
}

type sceneDesc struct {
	Camera    *cameraDesc             `yaml:"camera"`
	Materials map[string]materialDesc `yaml:"materials"`
	Meshes    map[string]meshDesc     `yaml:"meshes"`
	Objects   []objectDesc            `yaml:"objects"`
}

type yamlSceneReader struct {
	logger log.Logger

	res *asset.Resource

	// Resolved meshes and materials by name. Objects referencing the same
	// name share the same instance.
	meshes        map[string]*scene.Mesh
	meshMaterials map[string]*scene.Material
	materials     map[string]*scene.Material
}

func readYAML(res *asset.Resource) (*Description, error) {
	r := &yamlSceneReader{
		logger:        log.New("yaml scene reader"),
		res:           res,
		meshes:        make(map[string]*scene.Mesh),
		meshMaterials: make(map[string]*scene.Material),
		materials:     make(map[string]*scene.Material),
	}

	r.logger.Noticef(`parsing scene from "%s"`, res.Path())
	start := time.Now()

	var desc sceneDesc
	dec := yaml.NewDecoder(res)
	dec.KnownFields(true)
	if err := dec.Decode(&desc); err != nil {
		return nil, fmt.Errorf("yaml reader: parsing %s: %w", res.Path(), err)
	}

	out, err := r.build(&desc)
	if err != nil {
		return nil, fmt.Errorf("yaml reader: %s: %w", res.Path(), err)
	}

	r.logger.Noticef("parsed scene in %d ms", time.Since(start).Nanoseconds()/1e6)
	return out, nil
}

func (r *yamlSceneReader) build(desc *sceneDesc) (*Description, error) {
	for name, md := range desc.Materials {
		r.materials[name] = md.material(name)
	}

	for name, md := range desc.Meshes {
		if err := r.loadMesh(name, md); err != nil {
			return nil, err
		}
	}

	out := &Description{
		Roots:  make([]*scene.Object, 0, len(desc.Objects)),
		Camera: desc.Camera.camera(),
	}
	for index := range desc.Objects {
		obj, err := r.buildObject(&desc.Objects[index], fmt.Sprintf("objects[%d]", index))
		if err != nil {
			return nil, err
		}
		out.Roots = append(out.Roots, obj)
	}

	return out, nil
}

func (r *yamlSceneReader) loadMesh(name string, md meshDesc) error {
	var mesh *scene.Mesh
	switch strings.ToLower(md.Type) {
	case builtinCube:
		mesh = scene.CubeMesh()
	case builtinQuad:
		mesh = scene.QuadMesh()
	case "heightfield":
		resolution := md.Resolution
		if resolution == 0 {
			resolution = 16
		}
		freq := md.Frequency
		if freq == 0 {
			freq = 1
		}
		mesh = scene.HeightfieldMesh(resolution, func(x, z float32) float32 {
			return math32.Sin(2*math32.Pi*freq*x) * math32.Cos(2*math32.Pi*freq*z)
		})
	case "wavefront", "obj":
		model, err := r.loadModelMesh(md)
		if err != nil {
			return fmt.Errorf("mesh %q: %w", name, err)
		}
		mesh = model.Mesh
		if model.Material != nil {
			r.meshMaterials[name] = model.Material
		}
	default:
		return fmt.Errorf("mesh %q: unsupported mesh type %q", name, md.Type)
	}

	mesh.Name = name
	r.meshes[name] = mesh
	return nil
}

func (r *yamlSceneReader) loadModelMesh(md meshDesc) (*Model, error) {
	if md.Path == "" {
		return nil, errors.New("wavefront meshes require a path")
	}

	models, err := r.readModels(md.Path)
	if err != nil {
		return nil, err
	}

	for _, m := range models {
		if md.Object == "" || m.Mesh.Name == md.Object {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%s does not define a mesh named %q", md.Path, md.Object)
}

func (r *yamlSceneReader) readModels(path string) ([]*Model, error) {
	res, err := asset.NewResource(path, r.res)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	models, err := ReadWavefront(res)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("%s does not define any meshes", path)
	}
	return models, nil
}

func (r *yamlSceneReader) buildObject(od *objectDesc, path string) (*scene.Object, error) {
	if od.Name != "" {
		path = od.Name
	}

	if od.Model != "" {
		if od.Mesh != "" || len(od.Children) != 0 {
			return nil, fmt.Errorf("object %q: a model object cannot define a mesh or children", path)
		}
		models, err := r.readModels(od.Model)
		if err != nil {
			return nil, fmt.Errorf("object %q: %w", path, err)
		}
		obj := groupModels(path, models)
		obj.Position = types.Vec3(od.Position)
		return obj, nil
	}

	if od.Dimensions == nil {
		return nil, fmt.Errorf("object %q: missing dimensions", path)
	}

	obj := &scene.Object{
		Name:       path,
		Position:   types.Vec3(od.Position),
		Dimensions: types.Vec3(*od.Dimensions),
	}

	if od.Mesh != "" {
		mesh, exists := r.meshes[od.Mesh]
		if !exists {
			switch od.Mesh {
			case builtinCube:
				mesh = scene.CubeMesh()
			case builtinQuad:
				mesh = scene.QuadMesh()
			default:
				return nil, fmt.Errorf("object %q: undefined mesh %q", path, od.Mesh)
			}
			r.meshes[od.Mesh] = mesh
		}
		obj.Mesh = mesh
		obj.Material = r.meshMaterials[od.Mesh]
	}

	if od.Material != "" {
		mat, exists := r.materials[od.Material]
		if !exists {
			return nil, fmt.Errorf("object %q: undefined material %q", path, od.Material)
		}
		obj.Material = mat
	}

	for index := range od.Children {
		child, err := r.buildObject(&od.Children[index], fmt.Sprintf("%s/children[%d]", path, index))
		if err != nil {
			return nil, err
		}
		obj.Add(child)
	}

	return obj, nil
}

func (md materialDesc) material(name string) *scene.Material {
	mat := scene.NewMaterial(name)
	if md.Albedo != nil {
		mat.Albedo = types.Vec3(*md.Albedo)
	}
	if md.Emissive != nil {
		mat.Emissive = types.Vec3(*md.Emissive)
	}
	if md.Transparency != nil {
		mat.Transparency = types.Vec3(*md.Transparency)
	}
	mat.Metallic = md.Metallic
	mat.Roughness = md.Roughness
	if md.IOR != 0 {
		mat.IOR = md.IOR
	}
	return mat
}

func (cd *cameraDesc) camera() *scene.Camera {
	if cd == nil {
		return nil
	}

	fov := cd.FOV
	if fov <= 0 {
		fov = defaultFOV
	}
	cam := scene.NewCamera(fov)
	if cd.Position != nil {
		cam.Position = types.Vec3(*cd.Position)
	}
	if cd.LookAt != nil {
		cam.LookAt = types.Vec3(*cd.LookAt)
	}
	if cd.Up != nil {
		cam.Up = types.Vec3(*cd.Up)
	}
	return cam
}
