package scene

import (
	"fmt"

	"github.com/achilleasa/boxtrace/types"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Pitch rotations that would bring the view direction closer than this to the
// up vector are rejected.
const maxPitchCos = 0.999

// The ray basis consumed by tracers for a single frame. Views are compared by
// value; any field change between two frames invalidates the accumulated
// samples.
type View struct {
	Origin  types.Vec3
	Forward types.Vec3
	Right   types.Vec3
	Up      types.Vec3

	// Vertical field of view in degrees.
	FOV float32

	Width  uint32
	Height uint32
}

func (v View) String() string {
	return fmt.Sprintf(
		"View %dx%d fov %.1f\nOrigin : (%3.3f, %3.3f, %3.3f)\nForward: (%3.3f, %3.3f, %3.3f)\nRight  : (%3.3f, %3.3f, %3.3f)\nUp     : (%3.3f, %3.3f, %3.3f)",
		v.Width, v.Height, v.FOV,
		v.Origin[0], v.Origin[1], v.Origin[2],
		v.Forward[0], v.Forward[1], v.Forward[2],
		v.Right[0], v.Right[1], v.Right[2],
		v.Up[0], v.Up[1], v.Up[2],
	)
}

// Generate the primary ray direction through pixel (x, y). The jitter
// offsets are expected to be in [-0.5, 0.5) and are added to the pixel
// center.
func (v View) Ray(x, y uint32, jx, jy float32) types.Vec3 {
	tanHalfFov := math32.Tan(0.5 * v.FOV * math32.Pi / 180.0)
	aspect := float32(v.Width) / float32(v.Height)

	u := (2.0*(float32(x)+0.5+jx)/float32(v.Width) - 1.0) * aspect * tanHalfFov
	w := (1.0 - 2.0*(float32(y)+0.5+jy)/float32(v.Height)) * tanHalfFov

	return v.Forward.Add(v.Right.Mul(u)).Add(v.Up.Mul(w)).Normalize()
}

// The camera type controls the scene camera.
type Camera struct {
	Position types.Vec3
	LookAt   types.Vec3
	Up       types.Vec3

	// Vertical field of view in degrees.
	FOV float32
}

func NewCamera(fov float32) *Camera {
	return &Camera{
		Position: types.Vec3{0, 0, 0},
		LookAt:   types.Vec3{0, 0, -1},
		Up:       types.Vec3{0, 1, 0},
		FOV:      fov,
	}
}

// Translate both the camera position and its look-at target.
func (c *Camera) Move(delta types.Vec3) {
	c.Position = c.Position.Add(delta)
	c.LookAt = c.LookAt.Add(delta)
}

// Rotate the view direction by yaw radians around the up vector and by pitch
// radians around the camera right vector.
func (c *Camera) Rotate(yaw, pitch float32) {
	toTarget := c.LookAt.Sub(c.Position)
	dist := toTarget.Len()
	if dist == 0 {
		return
	}
	dir := toTarget.Mul(1.0 / dist)

	up := mgl32.Vec3(c.Up.Normalize())
	pitchAxis := mgl32.Vec3(dir).Cross(up)
	if pitchAxis.Len() < 1e-6 {
		pitchAxis = mgl32.Vec3{1, 0, 0}
	}
	pitchQuat := mgl32.QuatRotate(pitch, pitchAxis.Normalize())
	yawQuat := mgl32.QuatRotate(yaw, up)
	orientQuat := pitchQuat.Mul(yawQuat).Normalize()

	newDir := types.Vec3(orientQuat.Rotate(mgl32.Vec3(dir))).Normalize()
	if math32.Abs(newDir.Dot(types.Vec3(up))) > maxPitchCos {
		// Drop the pitch component instead of flipping over the pole.
		newDir = types.Vec3(yawQuat.Rotate(mgl32.Vec3(dir))).Normalize()
	}
	c.LookAt = c.Position.Add(newDir.Mul(dist))
}

// Build the per-frame ray basis for a width x height viewport.
func (c *Camera) View(width, height uint32) View {
	forward := c.LookAt.Sub(c.Position).Normalize()
	right := forward.Cross(c.Up).Normalize()
	if right.Len() == 0 {
		right = types.Vec3{1, 0, 0}
	}
	up := right.Cross(forward).Normalize()

	return View{
		Origin:  c.Position,
		Forward: forward,
		Right:   right,
		Up:      up,
		FOV:     c.FOV,
		Width:   width,
		Height:  height,
	}
}
