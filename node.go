package gridpath

import "math"

// Vec3 is a world-space position. The grid lies on the X/Z plane; Y carries the
// grid origin's elevation.
type Vec3 struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Distance returns the Euclidean distance between v and o.
func (v Vec3) Distance(o Vec3) float64 {
	d := v.Sub(o)
	return math.Sqrt(d.X*d.X + d.Y*d.Y + d.Z*d.Z)
}

// Node is one cell of a Grid. All fields are fixed when the grid is built.
type Node struct {
	GridX    int
	GridY    int
	World    Vec3
	Walkable bool
	// Penalty is the additive movement surcharge for entering this cell.
	Penalty int
}

// NodeRef identifies a cell by grid coordinates.
type NodeRef struct {
	X int `json:"x" msgpack:"x"`
	Y int `json:"y" msgpack:"y"`
}

// Ref returns the node's grid coordinates.
func (n Node) Ref() NodeRef { return NodeRef{X: n.GridX, Y: n.GridY} }

const (
	straightCost = 10
	diagonalCost = 14
)

// OctileDistance is the integer step metric used for both step costs and the
// heuristic: 10 per orthogonal step, 14 per diagonal step.
func OctileDistance(a, b NodeRef) int {
	dx := abs(a.X - b.X)
	dy := abs(a.Y - b.Y)
	if dx > dy {
		return diagonalCost*dy + straightCost*(dx-dy)
	}
	return diagonalCost*dx + straightCost*(dy-dx)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
