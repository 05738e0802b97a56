package reader

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/achilleasa/boxtrace/asset"
	"github.com/achilleasa/boxtrace/log"
	"github.com/achilleasa/boxtrace/scene"
	"github.com/achilleasa/boxtrace/types"
)

type wavefrontMaterial struct {
	Name string

	// Diffuse/Albedo color.
	Kd types.Vec3

	// Specular color.
	Ks types.Vec3

	// Emissive color.
	Ke types.Vec3

	// Transmission filter and dissolve factor.
	Tf types.Vec3
	D  float32

	// Index of refraction and specular exponent.
	Ni float32
	Ns float32

	// PBR extension parameters. Negative values mean "not set".
	Pm float32
	Pr float32
}

func newWavefrontMaterial(name string) *wavefrontMaterial {
	return &wavefrontMaterial{
		Name: name,
		Kd:   types.Splat(0.7),
		D:    1,
		Pm:   -1,
		Pr:   -1,
	}
}

// Convert the wavefront material into a scene material. Materials with a
// specular color and no index of refraction are treated as metals.
func (wf *wavefrontMaterial) material() *scene.Material {
	mat := scene.NewMaterial(wf.Name)
	mat.Albedo = wf.Kd
	mat.Emissive = wf.Ke
	mat.Transparency = wf.Tf.Mul(1 - wf.D)
	if wf.Ni > 0 {
		mat.IOR = wf.Ni
	}

	switch {
	case wf.Pm >= 0:
		mat.Metallic = wf.Pm
	case wf.Ks.MaxComponent() > 0 && wf.Ni == 0:
		mat.Metallic = wf.Ks.MaxComponent()
	}

	switch {
	case wf.Pr >= 0:
		mat.Roughness = wf.Pr
	case wf.Ns > 0:
		mat.Roughness = 1 - min(wf.Ns/1000, 1)
	}

	return mat
}

type wavefrontMesh struct {
	name     string
	group    string
	material *scene.Material

	// Maps indices into the reader vertex list to local vertex indices.
	vertexMap map[int]uint32
	vertices  []types.Vec3
	triangles [][3]uint32
}

func (m *wavefrontMesh) addVertex(globalIndex int, v types.Vec3) uint32 {
	if local, exists := m.vertexMap[globalIndex]; exists {
		return local
	}
	local := uint32(len(m.vertices))
	m.vertices = append(m.vertices, v)
	m.vertexMap[globalIndex] = local
	return local
}

type wavefrontReader struct {
	logger log.Logger

	meshes []*wavefrontMesh

	// Parsed materials and the currently selected one.
	materials   map[string]*scene.Material
	curMaterial *scene.Material

	vertexList []types.Vec3

	// An error stack that provides additional error information when
	// model files include other files (models, mat libs e.t.c)
	errStack []string
}

func newWavefrontReader() *wavefrontReader {
	return &wavefrontReader{
		logger:    log.New("wavefront reader"),
		materials: make(map[string]*scene.Material),
	}
}

// Read the meshes defined in a wavefront obj resource. Each "o" or "g"
// statement starts a new mesh; a material change within a mesh also splits
// it so that each returned model references a single material.
func ReadWavefront(res *asset.Resource) ([]*Model, error) {
	r := newWavefrontReader()

	r.logger.Noticef(`parsing wavefront model from "%s"`, res.Path())
	start := time.Now()

	if err := r.parse(res); err != nil {
		return nil, err
	}

	models := make([]*Model, 0, len(r.meshes))
	for _, wm := range r.meshes {
		if len(wm.triangles) == 0 {
			r.logger.Warningf(`dropping mesh "%s" as it contains no polygons`, wm.name)
			continue
		}

		bbox := types.EmptyBBox()
		for _, v := range wm.vertices {
			bbox[0] = types.MinVec3(bbox[0], v)
			bbox[1] = types.MaxVec3(bbox[1], v)
		}
		models = append(models, &Model{
			Mesh:     scene.NewMesh(wm.name, wm.vertices, wm.triangles),
			Material: wm.material,
			BBox:     bbox,
		})
	}

	r.logger.Noticef("parsed %d meshes in %d ms", len(models), time.Since(start).Nanoseconds()/1e6)
	return models, nil
}

// Generate an error message that also includes any data in the error stack.
func (r *wavefrontReader) emitError(file string, line int, msgFormat string, args ...interface{}) error {
	msg := fmt.Sprintf(msgFormat, args...)
	return fmt.Errorf("%s", strings.Trim(
		fmt.Sprintf("[%s: %d] error: %s\n%s", file, line, msg, strings.Join(r.errStack, "\n")),
		"\n",
	))
}

// Push a frame to the error stack.
func (r *wavefrontReader) pushFrame(msg string) {
	r.errStack = append([]string{msg}, r.errStack...)
}

// Pop a frame from the error stack.
func (r *wavefrontReader) popFrame() {
	r.errStack = r.errStack[1:]
}

// Get the mesh that receives new faces, creating it if required.
func (r *wavefrontReader) activeMesh() *wavefrontMesh {
	if len(r.meshes) == 0 {
		r.startMesh("default")
	}

	mesh := r.meshes[len(r.meshes)-1]
	if mesh.material != r.curMaterial {
		if len(mesh.triangles) != 0 {
			group := mesh.group
			r.startMesh(fmt.Sprintf("%s.%s", group, r.curMaterial.Name))
			mesh = r.meshes[len(r.meshes)-1]
			mesh.group = group
		}
		mesh.material = r.curMaterial
	}
	return mesh
}

func (r *wavefrontReader) startMesh(name string) {
	// Reuse the last mesh if no faces were added to it
	if last := len(r.meshes) - 1; last >= 0 && len(r.meshes[last].triangles) == 0 {
		r.meshes[last].name = name
		r.meshes[last].group = name
		return
	}
	r.meshes = append(r.meshes, &wavefrontMesh{
		name:      name,
		group:     name,
		material:  r.curMaterial,
		vertexMap: make(map[int]uint32),
	})
}

func (r *wavefrontReader) parse(res *asset.Resource) error {
	var lineNum int

	// Included object files use 1-based indices relative to their own
	// vertex list.
	relVertexOffset := len(r.vertexList)

	scanner := bufio.NewScanner(res)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "call", "mtllib":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
			}

			r.pushFrame(fmt.Sprintf("referenced from %s:%d [%s]", res.Path(), lineNum, lineTokens[0]))
			incRes, err := asset.NewResource(lineTokens[1], res)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}

			if lineTokens[0] == "call" {
				err = r.parse(incRes)
			} else {
				err = r.parseMaterials(incRes)
			}
			incRes.Close()
			if err != nil {
				return err
			}
			r.popFrame()
		case "usemtl":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "usemtl"; expected 1 argument; got %d`, len(lineTokens)-1)
			}
			mat, exists := r.materials[lineTokens[1]]
			if !exists {
				return r.emitError(res.Path(), lineNum, `undefined material with name "%s"`, lineTokens[1])
			}
			r.curMaterial = mat
		case "v":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.vertexList = append(r.vertexList, v)
		case "g", "o":
			if len(lineTokens) < 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument for object name; got %d`, lineTokens[0], len(lineTokens)-1)
			}
			r.startMesh(lineTokens[1])
		case "f":
			if err := r.parseFace(lineTokens, relVertexOffset); err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
		}
	}

	return scanner.Err()
}

// Parse face definition. Each vertex argument is comprised of up to 3
// slash-separated indices (vertex/uv/normal); only the vertex index is used.
// Indices start from 1 and may be negative to indicate an offset off the end
// of the vertex list. Polygons with more than 3 vertices are triangulated as
// a fan around the first vertex.
func (r *wavefrontReader) parseFace(lineTokens []string, relVertexOffset int) error {
	if len(lineTokens) < 4 {
		return fmt.Errorf(`unsupported syntax for "f"; expected at least 3 arguments; got %d`, len(lineTokens)-1)
	}

	mesh := r.activeMesh()
	indices := make([]uint32, 0, len(lineTokens)-1)
	for _, token := range lineTokens[1:] {
		vTokens := strings.Split(token, "/")
		globalIndex, err := selectFaceCoordIndex(vTokens[0], len(r.vertexList), relVertexOffset)
		if err != nil {
			return fmt.Errorf("could not parse vertex index %q: %w", token, err)
		}
		indices = append(indices, mesh.addVertex(globalIndex, r.vertexList[globalIndex]))
	}

	for i := 2; i < len(indices); i++ {
		mesh.triangles = append(mesh.triangles, [3]uint32{indices[0], indices[i-1], indices[i]})
	}
	return nil
}

// Parse a wavefront material library.
func (r *wavefrontReader) parseMaterials(res *asset.Resource) error {
	var lineNum int
	var curMaterial *wavefrontMaterial
	var err error

	flush := func() {
		if curMaterial != nil {
			r.materials[curMaterial.Name] = curMaterial.material()
		}
	}

	scanner := bufio.NewScanner(res)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		if lineTokens[0] == "newmtl" {
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "newmtl"; expected 1 argument; got %d`, len(lineTokens)-1)
			}
			flush()
			curMaterial = newWavefrontMaterial(lineTokens[1])
			continue
		}

		if curMaterial == nil {
			return r.emitError(res.Path(), lineNum, `got "%s" without a "newmtl"`, lineTokens[0])
		}

		switch lineTokens[0] {
		case "Kd":
			curMaterial.Kd, err = parseVec3(lineTokens)
		case "Ks":
			curMaterial.Ks, err = parseVec3(lineTokens)
		case "Ke":
			curMaterial.Ke, err = parseVec3(lineTokens)
		case "Tf":
			curMaterial.Tf, err = parseVec3(lineTokens)
		case "d":
			curMaterial.D, err = parseFloat32(lineTokens)
		case "Tr":
			var tr float32
			tr, err = parseFloat32(lineTokens)
			curMaterial.D = 1 - tr
		case "Ni":
			curMaterial.Ni, err = parseFloat32(lineTokens)
		case "Ns":
			curMaterial.Ns, err = parseFloat32(lineTokens)
		case "Pm":
			curMaterial.Pm, err = parseFloat32(lineTokens)
		case "Pr":
			curMaterial.Pr, err = parseFloat32(lineTokens)
		}

		if err != nil {
			return r.emitError(res.Path(), lineNum, "%s", err.Error())
		}
	}
	flush()

	return scanner.Err()
}

// Given an index for a face coord calculate the proper offset into the
// coord list. Wavefront format can also use negative indices to reference
// elements from the end of the coord list.
func selectFaceCoordIndex(indexToken string, coordListLen int, relOffset int) (int, error) {
	index, err := strconv.ParseInt(indexToken, 10, 32)
	if err != nil {
		return -1, err
	}

	var vOffset int
	if index < 0 {
		vOffset = coordListLen + int(index)
	} else {
		vOffset = relOffset + int(index-1)
	}
	if index == 0 || vOffset < 0 || vOffset >= coordListLen {
		return -1, fmt.Errorf("index out of bounds")
	}
	return vOffset, nil
}

// Parse a float scalar value.
func parseFloat32(lineTokens []string) (float32, error) {
	if len(lineTokens) < 2 {
		return 0, fmt.Errorf(`unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	val, err := strconv.ParseFloat(lineTokens[1], 32)
	if err != nil {
		return 0, err
	}

	return float32(val), nil
}

// Parse a Vec3 row.
func parseVec3(lineTokens []string) (types.Vec3, error) {
	if len(lineTokens) < 4 {
		return types.Vec3{}, fmt.Errorf(`unsupported syntax for "%s"; expected 3 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec3{}
	for tokIdx := 1; tokIdx <= 3; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}
