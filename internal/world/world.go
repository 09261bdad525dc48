// Package world samples traversability from static 2D geometry held in a
// chipmunk space. The grid's X/Z plane maps onto the space's X/Y plane.
package world

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jakecoffman/cp"

	"github.com/pdrpinto/gridpath"
	"github.com/pdrpinto/gridpath/internal/config"
)

const (
	categoryObstacle uint = 1 << iota
	categoryFloor
	categoryTerrain
)

const allCategories = ^uint(0)

// World answers IsWalkable and GroundPenalty queries against its shapes. It is
// safe for concurrent use.
type World struct {
	mu      sync.Mutex
	space   *cp.Space
	terrain gridpath.TerrainTable

	obstacles, floors, regions int
}

// New adds every shape in spec to a fresh space. Terrain regions resolve their
// penalty through terrain.
func New(spec config.WorldSpec, terrain gridpath.TerrainTable) (*World, error) {
	w := &World{space: cp.NewSpace(), terrain: terrain}
	for i, shape := range spec.Obstacles {
		if err := w.add(shape, categoryObstacle, nil); err != nil {
			return nil, fmt.Errorf("world: obstacles[%d]: %w", i, err)
		}
		w.obstacles++
	}
	for i, shape := range spec.Floors {
		if err := w.add(shape, categoryFloor, nil); err != nil {
			return nil, fmt.Errorf("world: floors[%d]: %w", i, err)
		}
		w.floors++
	}
	for i, region := range spec.Terrain {
		if err := w.add(region.Shape, categoryTerrain, region.Classification); err != nil {
			return nil, fmt.Errorf("world: terrain[%d]: %w", i, err)
		}
		w.regions++
	}
	return w, nil
}

// FromConfig builds the world described by file, resolving terrain through the
// file's penalty table.
func FromConfig(file *config.File) (*World, error) {
	table, err := file.TerrainTable()
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	return New(file.World, table)
}

func (w *World) add(spec config.Shape, category uint, classification any) error {
	var shape *cp.Shape
	switch {
	case spec.Box != nil && spec.Circle != nil:
		return errors.New("shape has both box and circle")
	case spec.Box != nil:
		bb := cp.BB{L: spec.Box.Min.X, B: spec.Box.Min.Z, R: spec.Box.Max.X, T: spec.Box.Max.Z}
		shape = cp.NewBox2(w.space.StaticBody, bb, 0)
	case spec.Circle != nil:
		center := cp.Vector{X: spec.Circle.Center.X, Y: spec.Circle.Center.Z}
		shape = cp.NewCircle(w.space.StaticBody, spec.Circle.Radius, center)
	default:
		return errors.New("shape has neither box nor circle")
	}
	shape.SetFilter(cp.NewShapeFilter(0, category, allCategories))
	shape.UserData = classification
	w.space.AddShape(shape)
	return nil
}

// IsWalkable reports whether point has no obstacle within skin and some floor
// within skin.
func (w *World) IsWalkable(point gridpath.Vec3, skin float64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	at := cp.Vector{X: point.X, Y: point.Z}
	return !w.touches(at, skin, categoryObstacle) && w.touches(at, skin, categoryFloor)
}

// GroundPenalty returns the penalty of the terrain region nearest point within
// twice skin, or 0 when there is none.
func (w *World) GroundPenalty(point gridpath.Vec3, skin float64) int {
	classification, ok := w.Classify(point, skin*2)
	if !ok {
		return 0
	}
	return w.terrain.PenaltyFor(classification)
}

// Classify returns the classification of the terrain region nearest point
// within radius.
func (w *World) Classify(point gridpath.Vec3, radius float64) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	at := cp.Vector{X: point.X, Y: point.Z}
	info := w.space.PointQueryNearest(at, radius, cp.NewShapeFilter(0, allCategories, categoryTerrain))
	if info == nil || info.Shape == nil {
		return "", false
	}
	classification, ok := info.Shape.UserData.(string)
	return classification, ok
}

func (w *World) touches(at cp.Vector, radius float64, category uint) bool {
	hit := false
	w.space.PointQuery(at, radius, cp.NewShapeFilter(0, allCategories, category),
		func(*cp.Shape, cp.Vector, float64, cp.Vector, interface{}) { hit = true }, nil)
	return hit
}

// Counts returns how many obstacles, floors and terrain regions were added.
func (w *World) Counts() (obstacles, floors, regions int) {
	return w.obstacles, w.floors, w.regions
}
