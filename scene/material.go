package scene

import (
	"github.com/achilleasa/boxtrace/types"
	"github.com/chewxy/math32"
)

// The flattened material representation used by the tracer.
type MaterialRecord struct {
	// The diffuse color of the material.
	Albedo types.RGB

	// The amount of light that passes through the surface. Stored for
	// completeness; the tracer treats all surfaces as opaque.
	Transparency types.RGB

	// The amount of light emitted by the surface.
	Emissive types.RGB

	// The probability that a ray is reflected like a mirror.
	Metallic float32

	Roughness float32
	IOR       float32
}

// A scene material.
type Material struct {
	Name string

	Albedo       types.RGB
	Transparency types.RGB
	Emissive     types.RGB
	Metallic     float32
	Roughness    float32
	IOR          float32

	state loadState
}

// Create a new neutral material: white albedo, no emission, fully diffuse.
func NewMaterial(name string) *Material {
	return &Material{
		Name:   name,
		Albedo: types.Splat(1),
		IOR:    1,
	}
}

// Return the flattened material record. Invalid values are replaced with the
// neutral defaults and the metallic probability is clamped to [0, 1].
func (m *Material) Record() MaterialRecord {
	def := defaultMaterialRecord()
	if m == nil {
		return def
	}

	rec := MaterialRecord{
		Albedo:       sanitizeColor(m.Albedo, def.Albedo),
		Transparency: sanitizeColor(m.Transparency, def.Transparency),
		Emissive:     sanitizeColor(m.Emissive, def.Emissive),
		Metallic:     sanitizeScalar(m.Metallic, def.Metallic),
		Roughness:    sanitizeScalar(m.Roughness, def.Roughness),
		IOR:          sanitizeScalar(m.IOR, def.IOR),
	}
	rec.Metallic = math32.Max(0, math32.Min(1, rec.Metallic))
	return rec
}

// Load the material into the scene material list and return its index.
// Loading an already loaded material is a no-op.
func (m *Material) Load(sc *Scene) int {
	if offset, loaded := m.state.lookup(sc); loaded {
		return offset
	}

	offset := len(sc.Materials)
	sc.Materials = append(sc.Materials, m.Record())
	m.state = loadState{sink: sc, offset: offset}
	return offset
}

// Get the material index assigned to this material by sc.
func (m *Material) Offset(sc *Scene) (int, bool) {
	return m.state.lookup(sc)
}

func defaultMaterialRecord() MaterialRecord {
	return MaterialRecord{
		Albedo: types.Splat(1),
		IOR:    1,
	}
}

func sanitizeColor(c, def types.RGB) types.RGB {
	if c.IsInvalid() {
		return def
	}
	return c
}

func sanitizeScalar(v, def float32) float32 {
	if math32.IsNaN(v) || math32.IsInf(v, 0) {
		return def
	}
	return v
}
