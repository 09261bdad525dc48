package gridpath

import (
	"errors"
	"fmt"
	"iter"
	"math"

	"github.com/pdrpinto/gridpath/internal"
)

// ErrInvalidConfig is matched by every grid construction failure.
var ErrInvalidConfig = errors.New("gridpath: invalid grid config")

// ConfigError names the offending GridConfig field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("gridpath: invalid grid config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// MaxCells bounds width*height of a grid. Search scratch stores node ids as
// int32, and a grid this size already holds about a gigabyte of nodes.
const MaxCells = 1 << 24

// WalkableFunc reports whether an agent can stand at point. skin is the probe
// radius around the point.
type WalkableFunc func(point Vec3, skin float64) bool

// PenaltyFunc returns the movement penalty of the ground under point. It is only
// consulted for walkable cells.
type PenaltyFunc func(point Vec3, skin float64) int

// Size is a world-space extent on the X (Width) and Z (Height) axes.
type Size struct {
	Width  float64 `json:"width" msgpack:"width"`
	Height float64 `json:"height" msgpack:"height"`
}

// GridConfig describes how to sample a Grid from the host world.
type GridConfig struct {
	// Origin is the world position of the grid centre.
	Origin     Vec3
	WorldSize  Size
	CellRadius float64
	SkinMargin float64

	IsWalkable    WalkableFunc
	GroundPenalty PenaltyFunc

	// TerrainPenalties is kept on the built grid as a lookup table for hosts
	// that classify ground surfaces.
	TerrainPenalties []TerrainPenalty
}

// Validate checks everything Build can check without sampling.
func (cfg GridConfig) Validate() error {
	switch {
	case !(cfg.WorldSize.Width > 0) || math.IsInf(cfg.WorldSize.Width, 0):
		return &ConfigError{Field: "world_size.width", Reason: "must be positive and finite"}
	case !(cfg.WorldSize.Height > 0) || math.IsInf(cfg.WorldSize.Height, 0):
		return &ConfigError{Field: "world_size.height", Reason: "must be positive and finite"}
	case !(cfg.CellRadius > 0) || math.IsInf(cfg.CellRadius, 0):
		return &ConfigError{Field: "cell_radius", Reason: "must be positive and finite"}
	case !(cfg.SkinMargin >= 0) || math.IsInf(cfg.SkinMargin, 0):
		return &ConfigError{Field: "skin_margin", Reason: "must be non-negative and finite"}
	case cfg.IsWalkable == nil:
		return &ConfigError{Field: "is_walkable", Reason: "predicate is required"}
	}
	diameter := cfg.CellRadius * 2
	columns, rows := math.RoundToEven(cfg.WorldSize.Width/diameter), math.RoundToEven(cfg.WorldSize.Height/diameter)
	if columns*rows > MaxCells {
		return &ConfigError{
			Field:  "world_size",
			Reason: fmt.Sprintf("%gx%g with cell radius %g yields %gx%g cells, more than %d", cfg.WorldSize.Width, cfg.WorldSize.Height, cfg.CellRadius, columns, rows, MaxCells),
		}
	}
	width, height := cfg.dimensions()
	if width <= 0 || height <= 0 {
		return &ConfigError{
			Field:  "world_size",
			Reason: fmt.Sprintf("%gx%g with cell radius %g yields no cells", cfg.WorldSize.Width, cfg.WorldSize.Height, cfg.CellRadius),
		}
	}
	if _, err := NewTerrainTable(cfg.TerrainPenalties); err != nil {
		return err
	}
	return nil
}

func (cfg GridConfig) dimensions() (int, int) {
	diameter := cfg.CellRadius * 2
	return internal.RoundIndex(cfg.WorldSize.Width / diameter), internal.RoundIndex(cfg.WorldSize.Height / diameter)
}

// TerrainPenalty assigns a movement penalty to a ground classification.
type TerrainPenalty struct {
	Classification string `json:"classification" msgpack:"classification"`
	Penalty        int    `json:"penalty" msgpack:"penalty"`
}

// TerrainTable resolves classifications to penalties, preserving the order the
// entries were declared in.
type TerrainTable struct {
	entries []TerrainPenalty
	lookup  map[string]int
}

// NewTerrainTable validates entries: classifications must be non-empty and
// unique, penalties non-negative.
func NewTerrainTable(entries []TerrainPenalty) (TerrainTable, error) {
	table := TerrainTable{
		entries: append([]TerrainPenalty(nil), entries...),
		lookup:  make(map[string]int, len(entries)),
	}
	for i, entry := range entries {
		field := fmt.Sprintf("terrain_penalties[%d]", i)
		if entry.Classification == "" {
			return TerrainTable{}, &ConfigError{Field: field, Reason: "classification is empty"}
		}
		if entry.Penalty < 0 {
			return TerrainTable{}, &ConfigError{Field: field, Reason: fmt.Sprintf("penalty %d is negative", entry.Penalty)}
		}
		if _, dup := table.lookup[entry.Classification]; dup {
			return TerrainTable{}, &ConfigError{Field: field, Reason: fmt.Sprintf("duplicate classification %q", entry.Classification)}
		}
		table.lookup[entry.Classification] = entry.Penalty
	}
	return table, nil
}

// PenaltyFor returns the penalty for classification, or 0 if it is unknown.
func (t TerrainTable) PenaltyFor(classification string) int {
	return t.lookup[classification]
}

// Entries returns the declared entries in order.
func (t TerrainTable) Entries() []TerrainPenalty {
	return append([]TerrainPenalty(nil), t.entries...)
}

// Grid is an immutable traversability map. It is safe for concurrent use.
type Grid struct {
	origin     Vec3
	worldSize  Size
	cellRadius float64
	skinMargin float64
	width      int
	height     int
	nodes      []Node
	walkable   int
	terrain    TerrainTable
}

// Build samples cfg.IsWalkable once per cell, spaced 2×CellRadius apart, and
// cfg.GroundPenalty once per walkable cell. Predicates are called sequentially.
func Build(cfg GridConfig) (*Grid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	terrain, _ := NewTerrainTable(cfg.TerrainPenalties)
	width, height := cfg.dimensions()

	g := &Grid{
		origin:     cfg.Origin,
		worldSize:  cfg.WorldSize,
		cellRadius: cfg.CellRadius,
		skinMargin: cfg.SkinMargin,
		width:      width,
		height:     height,
		nodes:      make([]Node, width*height),
		terrain:    terrain,
	}

	diameter := cfg.CellRadius * 2
	bottomLeft := Vec3{
		X: cfg.Origin.X - cfg.WorldSize.Width/2,
		Y: cfg.Origin.Y,
		Z: cfg.Origin.Z - cfg.WorldSize.Height/2,
	}
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			point := Vec3{
				X: bottomLeft.X + float64(x)*diameter + cfg.CellRadius,
				Y: bottomLeft.Y,
				Z: bottomLeft.Z + float64(y)*diameter + cfg.CellRadius,
			}
			walkable := cfg.IsWalkable(point, cfg.SkinMargin)
			penalty := 0
			if walkable {
				g.walkable++
				if cfg.GroundPenalty != nil {
					penalty = max(cfg.GroundPenalty(point, cfg.SkinMargin), 0)
				}
			}
			g.nodes[y*width+x] = Node{GridX: x, GridY: y, World: point, Walkable: walkable, Penalty: penalty}
		}
	}
	return g, nil
}

// Width is the number of cells along X.
func (g *Grid) Width() int { return g.width }

// Height is the number of cells along Z.
func (g *Grid) Height() int { return g.height }

// MaxSize is Width × Height.
func (g *Grid) MaxSize() int { return len(g.nodes) }

// Origin is the world position of the grid centre.
func (g *Grid) Origin() Vec3 { return g.origin }

// WorldSize is the sampled extent.
func (g *Grid) WorldSize() Size { return g.worldSize }

// CellRadius is half the spacing between samples.
func (g *Grid) CellRadius() float64 { return g.cellRadius }

// SkinMargin is the probe radius handed to the predicates.
func (g *Grid) SkinMargin() float64 { return g.skinMargin }

// WalkableCount is the number of walkable cells.
func (g *Grid) WalkableCount() int { return g.walkable }

// Terrain returns the grid's terrain penalty table.
func (g *Grid) Terrain() TerrainTable { return g.terrain }

// ID returns the dense index of n.
func (g *Grid) ID(n Node) int { return n.GridY*g.width + n.GridX }

// NodeByID returns the node with dense index id.
func (g *Grid) NodeByID(id int) Node { return g.nodes[id] }

// Node returns the node at (x, y).
func (g *Grid) Node(x, y int) (Node, bool) {
	if !g.inBounds(x, y) {
		return Node{}, false
	}
	return g.nodes[y*g.width+x], true
}

func (g *Grid) inBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.width && y < g.height
}

// WorldToNode maps a world position to the nearest node. Positions outside the
// sampled extent are clamped to the nearest edge node.
func (g *Grid) WorldToNode(p Vec3) Node {
	percentX := (p.X - g.origin.X + g.worldSize.Width/2) / g.worldSize.Width
	percentY := (p.Z - g.origin.Z + g.worldSize.Height/2) / g.worldSize.Height
	percentX = internal.Clamp01(percentX)
	percentY = internal.Clamp01(percentY)

	x := internal.RoundIndex(float64(g.width-1) * percentX)
	y := internal.RoundIndex(float64(g.height-1) * percentY)
	return g.nodes[y*g.width+x]
}

// Neighbors returns the up to eight in-bounds cells around n.
func (g *Grid) Neighbors(n Node) []Node {
	return g.AppendNeighbors(make([]Node, 0, 8), n)
}

// AppendNeighbors appends the neighbours of n to dst, scanning x then y from -1
// to 1. Diagonals are included even when both adjacent orthogonals are blocked.
func (g *Grid) AppendNeighbors(dst []Node, n Node) []Node {
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			x, y := n.GridX+dx, n.GridY+dy
			if g.inBounds(x, y) {
				dst = append(dst, g.nodes[y*g.width+x])
			}
		}
	}
	return dst
}

// Nodes iterates every node in id order.
func (g *Grid) Nodes() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		for _, n := range g.nodes {
			if !yield(n) {
				return
			}
		}
	}
}
