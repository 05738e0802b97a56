package reader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/achilleasa/boxtrace/asset"
	"github.com/achilleasa/boxtrace/scene/compiler"
	"github.com/achilleasa/boxtrace/types"
)

const testScene = `
camera:
  position: [0, 1, 8]
  look_at: [0, 0, 0]
  fov: 60

materials:
  red:
    albedo: [1, 0, 0]
  mirror:
    metallic: 1
  lamp:
    emissive: 5

meshes:
  ground:
    type: heightfield
    resolution: 4
  panel:
    type: wavefront
    path: models/panel.obj

objects:
  - name: room
    position: [0, 0, 0]
    dimensions: [5, 5, 5]
    children:
      - name: floor
        position: [0, -4.5, 0]
        dimensions: [5, 0.5, 5]
        mesh: ground
      - name: box
        position: [1, 0, 0]
        dimensions: 1
        mesh: cube
        material: red
      - name: ball
        position: [-1, 0, 0]
        dimensions: 1
        mesh: cube
        material: mirror
  - name: light
    position: [0, 10, 0]
    dimensions: [2, 0.1, 2]
    mesh: panel
  - name: model
    position: [0, 0, -10]
    model: models/panel.obj
`

const testPanel = `
mtllib panel.mtl
o panel
usemtl glow
v -1 0 -1
v 1 0 -1
v 1 0 1
v -1 0 1
f 1 2 3 4
`

const testPanelMtl = `
newmtl glow
Ke 2 2 2
`

func writeTestScene(t *testing.T) string {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "models"), 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "models", "panel.obj"), testPanel)
	writeFile(t, filepath.Join(dir, "models", "panel.mtl"), testPanelMtl)
	writeFile(t, filepath.Join(dir, "scene.yaml"), testScene)
	return filepath.Join(dir, "scene.yaml")
}

func TestReadYAMLScene(t *testing.T) {
	desc, err := ReadScene(writeTestScene(t))
	if err != nil {
		t.Fatal(err)
	}

	if desc.Camera == nil {
		t.Fatal("expected camera to be defined")
	}
	if desc.Camera.Position != types.XYZ(0, 1, 8) || desc.Camera.FOV != 60 || desc.Camera.Up != types.XYZ(0, 1, 0) {
		t.Fatalf("unexpected camera %+v", desc.Camera)
	}

	if len(desc.Roots) != 3 {
		t.Fatalf("expected 3 root objects; got %d", len(desc.Roots))
	}

	room := desc.Roots[0]
	if len(room.Children) != 3 {
		t.Fatalf("expected room to contain 3 objects; got %d", len(room.Children))
	}
	floor, box, ball := room.Children[0], room.Children[1], room.Children[2]
	if floor.Mesh == nil || floor.Mesh.Name != "ground" || len(floor.Mesh.Triangles()) != 32 {
		t.Fatalf("expected floor to use a 4x4 height field; got %+v", floor.Mesh)
	}
	if box.Dimensions != types.Splat(1) || box.Material == nil || box.Material.Albedo != types.XYZ(1, 0, 0) {
		t.Fatalf("unexpected box %+v", box)
	}
	if box.Mesh != ball.Mesh {
		t.Fatal("expected objects referencing the same builtin mesh to share it")
	}
	if ball.Material.Metallic != 1 {
		t.Fatalf("expected metallic ball; got %+v", ball.Material)
	}

	light := desc.Roots[1]
	if light.Material == nil || light.Material.Emissive != types.Splat(2) {
		t.Fatalf("expected light to inherit the wavefront material; got %+v", light.Material)
	}

	model := desc.Roots[2]
	if model.Position != types.XYZ(0, 0, -10) || model.Dimensions != types.XYZ(1, 0, 1) || len(model.Children) != 1 {
		t.Fatalf("unexpected model group %+v", model)
	}
	if child := model.Children[0]; child.Position != (types.Vec3{}) || child.Dimensions != types.XYZ(1, 0, 1) {
		t.Fatalf("unexpected model child %+v", child)
	}

	// The scene must be accepted by the compiler
	sc, err := compiler.Compile(desc.Roots)
	if err != nil {
		t.Fatal(err)
	}
	if len(sc.Objects) != 8 {
		t.Fatalf("expected 8 compiled nodes; got %d", len(sc.Objects))
	}
}

func TestReadWavefrontScene(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "panel.obj"), "v 0 0 0\nv 2 0 0\nv 2 2 0\no a\nf 1 2 3\no b\nv 0 0 4\nf 1 2 4\n")

	desc, err := ReadScene(filepath.Join(dir, "panel.obj"))
	if err != nil {
		t.Fatal(err)
	}
	if desc.Camera != nil {
		t.Fatal("expected no camera for wavefront scenes")
	}
	if len(desc.Roots) != 1 || len(desc.Roots[0].Children) != 2 {
		t.Fatalf("expected a single group with 2 meshes; got %+v", desc.Roots)
	}

	group := desc.Roots[0]
	if group.Position != types.XYZ(1, 1, 2) || group.Dimensions != types.XYZ(1, 1, 2) {
		t.Fatalf("expected group box centered at (1, 1, 2) with dims (1, 1, 2); got %v and %v", group.Position, group.Dimensions)
	}
}

func TestReadSceneErrors(t *testing.T) {
	type spec struct {
		name    string
		payload string
		expErr  string
	}
	specs := []spec{
		{"scene.txt", "", `unsupported file format ".txt"`},
		{"scene.yaml", "objects:\n  - name: a\n", `object "a": missing dimensions`},
		{"scene.yaml", "objects:\n  - name: a\n    dimensions: 1\n    mesh: sphere\n", `object "a": undefined mesh "sphere"`},
		{"scene.yaml", "objects:\n  - name: a\n    dimensions: 1\n    material: gold\n", `object "a": undefined material "gold"`},
		{"scene.yaml", "objects:\n  - dimensions: [1, 2]\n", "expected 3 vector components; got 2"},
		{"scene.yaml", "meshes:\n  m:\n    type: teapot\n", `mesh "m": unsupported mesh type "teapot"`},
		{"scene.yaml", "meshes:\n  m:\n    type: wavefront\n", `mesh "m": wavefront meshes require a path`},
		{"scene.yaml", "objects:\n  - name: a\n    dims: 1\n", "field dims not found"},
		{"scene.yaml", "objects:\n  - name: a\n    model: a.obj\n    mesh: cube\n", `object "a": a model object cannot define a mesh or children`},
		{"scene.obj", "# nothing here\n", "does not define any meshes"},
	}

	for index, s := range specs {
		_, err := Read(asset.NewResourceFromStream(s.name, strings.NewReader(s.payload)))
		if err == nil || !strings.Contains(err.Error(), s.expErr) {
			t.Fatalf("[spec %d] expected error containing %q; got %v", index, s.expErr, err)
		}
	}
}

func TestNestedChildNames(t *testing.T) {
	payload := "objects:\n  - dimensions: 4\n    children:\n      - dimensions: 1\n        mesh: nope\n"
	_, err := Read(asset.NewResourceFromStream("scene.yaml", strings.NewReader(payload)))
	expErr := `object "objects[0]/children[0]": undefined mesh "nope"`
	if err == nil || !strings.Contains(err.Error(), expErr) {
		t.Fatalf("expected error containing %q; got %v", expErr, err)
	}
}
