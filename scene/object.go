package scene

import "github.com/achilleasa/boxtrace/types"

// An Object is a node of the authored scene hierarchy. Its box is centered at
// Position (relative to the parent center) and extends by Dimensions along
// each axis. Objects with children are pure containers; objects without
// children are leafs that render their mesh scaled to the box.
type Object struct {
	Name string

	Position   types.Vec3
	Dimensions types.Vec3

	Mesh     *Mesh
	Material *Material

	Children []*Object
}

// Create a new leaf object.
func NewObject(name string, position, dimensions types.Vec3, mesh *Mesh, material *Material) *Object {
	return &Object{
		Name:       name,
		Position:   position,
		Dimensions: dimensions,
		Mesh:       mesh,
		Material:   material,
	}
}

// Create a new container object.
func NewGroup(name string, position, dimensions types.Vec3, children ...*Object) *Object {
	return &Object{
		Name:       name,
		Position:   position,
		Dimensions: dimensions,
		Children:   children,
	}
}

// Append a child object and return the receiver.
func (o *Object) Add(children ...*Object) *Object {
	o.Children = append(o.Children, children...)
	return o
}

// Get the object box relative to its parent center.
func (o *Object) BBox() [2]types.Vec3 {
	return [2]types.Vec3{o.Position.Sub(o.Dimensions), o.Position.Add(o.Dimensions)}
}
