package gridpath

import (
	"errors"
	"math"
	"testing"
)

// maskConfig builds a config whose cells follow rows: '.' walkable, '#' blocked,
// '1'..'9' walkable with penalty digit*10. rows[0] is grid row y=0. Cells are
// 1x1 world units centred on the origin.
func maskConfig(rows ...string) GridConfig {
	height := len(rows)
	width := len(rows[0])
	cell := func(p Vec3) byte {
		x := int(math.Floor(p.X + float64(width)/2))
		y := int(math.Floor(p.Z + float64(height)/2))
		return rows[y][x]
	}
	return GridConfig{
		WorldSize:  Size{Width: float64(width), Height: float64(height)},
		CellRadius: 0.5,
		SkinMargin: 0.45,
		IsWalkable: func(p Vec3, _ float64) bool { return cell(p) != '#' },
		GroundPenalty: func(p Vec3, _ float64) int {
			if c := cell(p); c >= '1' && c <= '9' {
				return int(c-'0') * 10
			}
			return 0
		},
	}
}

func mustGrid(t *testing.T, rows ...string) *Grid {
	t.Helper()
	g, err := Build(maskConfig(rows...))
	if err != nil {
		t.Fatalf("build grid: %v", err)
	}
	return g
}

func cellPos(t *testing.T, g *Grid, x, y int) Vec3 {
	t.Helper()
	n, ok := g.Node(x, y)
	if !ok {
		t.Fatalf("cell (%d,%d) out of bounds", x, y)
	}
	return n.World
}

func openRows(width, height int) []string {
	rows := make([]string, height)
	for y := range rows {
		row := make([]byte, width)
		for x := range row {
			row[x] = '.'
		}
		rows[y] = string(row)
	}
	return rows
}

func TestBuild_Dimensions(t *testing.T) {
	g, err := Build(GridConfig{
		Origin:     Vec3{X: 10, Y: 2, Z: -4},
		WorldSize:  Size{Width: 100, Height: 50},
		CellRadius: 0.5,
		IsWalkable: func(Vec3, float64) bool { return true },
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if g.Width() != 100 || g.Height() != 50 {
		t.Fatalf("expected 100x50 cells, got %dx%d", g.Width(), g.Height())
	}
	if g.MaxSize() != 5000 {
		t.Fatalf("expected 5000 nodes, got %d", g.MaxSize())
	}
	first, _ := g.Node(0, 0)
	want := Vec3{X: 10 - 50 + 0.5, Y: 2, Z: -4 - 25 + 0.5}
	if first.World != want {
		t.Fatalf("cell (0,0) at %+v, want %+v", first.World, want)
	}
	last, _ := g.Node(99, 49)
	want = Vec3{X: 10 + 50 - 0.5, Y: 2, Z: -4 + 25 - 0.5}
	if last.World != want {
		t.Fatalf("cell (99,49) at %+v, want %+v", last.World, want)
	}
}

func TestBuild_PenaltyOnlyForWalkable(t *testing.T) {
	calls := 0
	cfg := maskConfig(
		"..#",
		"5#.",
	)
	inner := cfg.GroundPenalty
	cfg.GroundPenalty = func(p Vec3, skin float64) int {
		calls++
		return inner(p, skin)
	}
	g, err := Build(cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected penalty lookups for 4 walkable cells, got %d", calls)
	}
	if g.WalkableCount() != 4 {
		t.Fatalf("expected 4 walkable cells, got %d", g.WalkableCount())
	}
	n, _ := g.Node(0, 1)
	if n.Penalty != 50 {
		t.Fatalf("expected penalty 50 at (0,1), got %d", n.Penalty)
	}
	blocked, _ := g.Node(2, 0)
	if blocked.Walkable || blocked.Penalty != 0 {
		t.Fatalf("blocked cell should have no penalty: %+v", blocked)
	}
}

func TestBuild_NegativePenaltyClamped(t *testing.T) {
	cfg := maskConfig("..")
	cfg.GroundPenalty = func(Vec3, float64) int { return -7 }
	g, err := Build(cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for n := range g.Nodes() {
		if n.Penalty != 0 {
			t.Fatalf("expected clamped penalty, got %d", n.Penalty)
		}
	}
}

func TestBuild_ConfigErrors(t *testing.T) {
	walkable := func(Vec3, float64) bool { return true }
	cases := []struct {
		name  string
		cfg   GridConfig
		field string
	}{
		{"zero width", GridConfig{WorldSize: Size{0, 10}, CellRadius: 1, IsWalkable: walkable}, "world_size.width"},
		{"negative height", GridConfig{WorldSize: Size{10, -1}, CellRadius: 1, IsWalkable: walkable}, "world_size.height"},
		{"zero radius", GridConfig{WorldSize: Size{10, 10}, IsWalkable: walkable}, "cell_radius"},
		{"nan radius", GridConfig{WorldSize: Size{10, 10}, CellRadius: math.NaN(), IsWalkable: walkable}, "cell_radius"},
		{"negative skin", GridConfig{WorldSize: Size{10, 10}, CellRadius: 1, SkinMargin: -1, IsWalkable: walkable}, "skin_margin"},
		{"nil predicate", GridConfig{WorldSize: Size{10, 10}, CellRadius: 1}, "is_walkable"},
		{"too many cells", GridConfig{WorldSize: Size{1e9, 1e9}, CellRadius: 0.5, IsWalkable: walkable}, "world_size"},
		{"tiny radius", GridConfig{WorldSize: Size{10, 10}, CellRadius: 1e-300, IsWalkable: walkable}, "world_size"},
		{"one cell past the cap", GridConfig{WorldSize: Size{MaxCells + 1, 1}, CellRadius: 0.5, IsWalkable: walkable}, "world_size"},
		{"rounds to nothing", GridConfig{WorldSize: Size{0.4, 10}, CellRadius: 1, IsWalkable: walkable}, "world_size"},
		{"duplicate terrain", GridConfig{
			WorldSize: Size{10, 10}, CellRadius: 1, IsWalkable: walkable,
			TerrainPenalties: []TerrainPenalty{{"grass", 1}, {"grass", 2}},
		}, "terrain_penalties[1]"},
		{"negative terrain", GridConfig{
			WorldSize: Size{10, 10}, CellRadius: 1, IsWalkable: walkable,
			TerrainPenalties: []TerrainPenalty{{"mud", -3}},
		}, "terrain_penalties[0]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, err := Build(tc.cfg)
			if g != nil {
				t.Fatal("expected no grid on config error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) || cfgErr.Field != tc.field {
				t.Fatalf("expected field %q, got %v", tc.field, err)
			}
		})
	}
}

func TestBuild_AtCellCap(t *testing.T) {
	cfg := GridConfig{WorldSize: Size{MaxCells, 1}, CellRadius: 0.5, IsWalkable: func(Vec3, float64) bool { return false }}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("grid of exactly MaxCells should validate: %v", err)
	}
}

func TestWorldToNode_RoundTripsCellCentres(t *testing.T) {
	for _, size := range [][2]int{{5, 5}, {7, 3}, {40, 24}} {
		g := mustGrid(t, openRows(size[0], size[1])...)
		for n := range g.Nodes() {
			got := g.WorldToNode(n.World)
			if got.Ref() != n.Ref() {
				t.Fatalf("%dx%d: centre of %+v resolved to %+v", size[0], size[1], n.Ref(), got.Ref())
			}
		}
	}
}

func TestWorldToNode_ClampsOutOfRange(t *testing.T) {
	g := mustGrid(t, openRows(5, 5)...)
	cases := []struct {
		pos  Vec3
		want NodeRef
	}{
		{Vec3{X: -1000, Z: -1000}, NodeRef{0, 0}},
		{Vec3{X: 1000, Z: 1000}, NodeRef{4, 4}},
		{Vec3{X: 1000, Z: -1000}, NodeRef{4, 0}},
		{Vec3{X: math.NaN(), Z: math.Inf(1)}, NodeRef{0, 4}},
		{Vec3{X: 0, Y: 99, Z: 0}, NodeRef{2, 2}},
	}
	for _, tc := range cases {
		if got := g.WorldToNode(tc.pos).Ref(); got != tc.want {
			t.Fatalf("WorldToNode(%+v) = %+v, want %+v", tc.pos, got, tc.want)
		}
	}
}

func TestNeighbors_Counts(t *testing.T) {
	g := mustGrid(t, openRows(4, 4)...)
	cases := []struct {
		x, y, want int
	}{
		{0, 0, 3},
		{3, 3, 3},
		{1, 0, 5},
		{0, 2, 5},
		{1, 1, 8},
	}
	for _, tc := range cases {
		n, _ := g.Node(tc.x, tc.y)
		if got := len(g.Neighbors(n)); got != tc.want {
			t.Fatalf("(%d,%d): expected %d neighbours, got %d", tc.x, tc.y, tc.want, got)
		}
	}
}

func TestNeighbors_IncludeBlockedAndDiagonals(t *testing.T) {
	g := mustGrid(t,
		".#.",
		"#.#",
		".#.",
	)
	centre, _ := g.Node(1, 1)
	neighbors := g.Neighbors(centre)
	if len(neighbors) != 8 {
		t.Fatalf("expected 8 neighbours regardless of walkability, got %d", len(neighbors))
	}
	if neighbors[0].Ref() != (NodeRef{0, 0}) || neighbors[7].Ref() != (NodeRef{2, 2}) {
		t.Fatalf("unexpected neighbour order: %+v ... %+v", neighbors[0].Ref(), neighbors[7].Ref())
	}
}

func TestTerrainTable(t *testing.T) {
	table, err := NewTerrainTable([]TerrainPenalty{{"road", 0}, {"grass", 5}, {"swamp", 40}})
	if err != nil {
		t.Fatalf("terrain table: %v", err)
	}
	if table.PenaltyFor("swamp") != 40 || table.PenaltyFor("grass") != 5 {
		t.Fatal("unexpected penalties")
	}
	if table.PenaltyFor("lava") != 0 {
		t.Fatal("unknown classification should cost nothing")
	}
	entries := table.Entries()
	if len(entries) != 3 || entries[2].Classification != "swamp" {
		t.Fatalf("entries lost their order: %+v", entries)
	}
}
