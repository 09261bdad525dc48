// Package config loads the pathd YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/pdrpinto/gridpath"
)

// File is the root of the configuration document.
type File struct {
	Server ServerConfig `yaml:"server" json:"server"`
	Log    LogConfig    `yaml:"log" json:"log"`
	Grid   GridSection  `yaml:"grid" json:"grid"`
	World  WorldSpec    `yaml:"world" json:"world"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr" jsonschema:"description=HTTP listen address"`
	// MaxConcurrentSearches of 0 uses one search per CPU.
	MaxConcurrentSearches int      `yaml:"max_concurrent_searches" json:"max_concurrent_searches" jsonschema:"minimum=0"`
	ResultTTL             Duration `yaml:"result_ttl" json:"result_ttl" jsonschema:"description=How long finished path requests stay pollable"`
	ShutdownTimeout       Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Format string `yaml:"format" json:"format" jsonschema:"enum=text,enum=json"`
}

// GridSection mirrors gridpath.GridConfig plus the search options.
type GridSection struct {
	Origin           gridpath.Vec3        `yaml:"origin" json:"origin" jsonschema:"description=World position of the grid centre"`
	WorldSize        gridpath.Size        `yaml:"world_size" json:"world_size" jsonschema:"required"`
	CellRadius       float64              `yaml:"cell_radius" json:"cell_radius" jsonschema:"required,exclusiveMinimum=0"`
	SkinMargin       float64              `yaml:"skin_margin" json:"skin_margin" jsonschema:"minimum=0"`
	WeightPenalties  bool                 `yaml:"weight_penalties" json:"weight_penalties"`
	SimplifyPaths    bool                 `yaml:"simplify_paths" json:"simplify_paths"`
	MaxExpansions    int                  `yaml:"max_expansions" json:"max_expansions" jsonschema:"minimum=0"`
	TerrainPenalties []TerrainPenaltySpec `yaml:"terrain_penalties" json:"terrain_penalties"`
}

type TerrainPenaltySpec struct {
	Classification string `yaml:"classification" json:"classification" jsonschema:"required,minLength=1"`
	Penalty        int    `yaml:"penalty" json:"penalty" jsonschema:"minimum=0"`
}

// WorldSpec lays out the static geometry the grid is sampled from, on the X/Z
// plane.
type WorldSpec struct {
	Obstacles []Shape         `yaml:"obstacles" json:"obstacles"`
	Floors    []Shape         `yaml:"floors" json:"floors"`
	Terrain   []TerrainRegion `yaml:"terrain" json:"terrain"`
}

// Shape is exactly one of Box or Circle.
type Shape struct {
	Box    *Box    `yaml:"box,omitempty" json:"box,omitempty"`
	Circle *Circle `yaml:"circle,omitempty" json:"circle,omitempty"`
}

type Box struct {
	Min Point `yaml:"min" json:"min" jsonschema:"required"`
	Max Point `yaml:"max" json:"max" jsonschema:"required"`
}

type Circle struct {
	Center Point   `yaml:"center" json:"center" jsonschema:"required"`
	Radius float64 `yaml:"radius" json:"radius" jsonschema:"required,exclusiveMinimum=0"`
}

type Point struct {
	X float64 `yaml:"x" json:"x"`
	Z float64 `yaml:"z" json:"z"`
}

// TerrainRegion classifies the ground inside its shape.
type TerrainRegion struct {
	Classification string `yaml:"classification" json:"classification" jsonschema:"required,minLength=1"`
	Shape          `yaml:",inline"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "Go duration string, e.g. 30s or 5m",
	}
}

// Default returns a configuration that validates: a 30x30 floor with no
// obstacles.
func Default() *File {
	return &File{
		Server: ServerConfig{
			Addr:            ":8080",
			ResultTTL:       Duration(5 * time.Minute),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Grid: GridSection{
			WorldSize:  gridpath.Size{Width: 30, Height: 30},
			CellRadius: 0.5,
			SkinMargin: 0.45,
		},
		World: WorldSpec{
			Floors: []Shape{{Box: &Box{Min: Point{X: -15, Z: -15}, Max: Point{X: 15, Z: 15}}}},
		},
	}
}

// Load reads and validates the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	file, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	return file, nil
}

// Parse decodes data over Default() and validates the result. Unknown keys are
// rejected.
func Parse(data []byte) (*File, error) {
	file := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return file, nil
}

// FieldError names an invalid configuration key by its YAML path.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Validate reports every invalid field, joined.
func (f *File) Validate() error {
	var errs []error
	invalid := func(field, format string, args ...any) {
		errs = append(errs, &FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if f.Server.Addr == "" {
		invalid("server.addr", "is empty")
	}
	if f.Server.MaxConcurrentSearches < 0 {
		invalid("server.max_concurrent_searches", "must not be negative")
	}
	if f.Server.ResultTTL <= 0 {
		invalid("server.result_ttl", "must be positive")
	}
	if f.Server.ShutdownTimeout < 0 {
		invalid("server.shutdown_timeout", "must not be negative")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(f.Log.Level)); err != nil {
		invalid("log.level", "unknown level %q", f.Log.Level)
	}
	if f.Log.Format != "text" && f.Log.Format != "json" {
		invalid("log.format", "must be text or json, got %q", f.Log.Format)
	}

	if f.Grid.MaxExpansions < 0 {
		invalid("grid.max_expansions", "must not be negative")
	}
	probe := f.GridConfig(nil)
	probe.IsWalkable = func(gridpath.Vec3, float64) bool { return true }
	if err := probe.Validate(); err != nil {
		var cfgErr *gridpath.ConfigError
		if errors.As(err, &cfgErr) {
			invalid("grid."+cfgErr.Field, "%s", cfgErr.Reason)
		} else {
			errs = append(errs, fmt.Errorf("config: grid: %w", err))
		}
	}

	for i, shape := range f.World.Obstacles {
		if reason := shape.problem(); reason != "" {
			invalid(fmt.Sprintf("world.obstacles[%d]", i), "%s", reason)
		}
	}
	for i, shape := range f.World.Floors {
		if reason := shape.problem(); reason != "" {
			invalid(fmt.Sprintf("world.floors[%d]", i), "%s", reason)
		}
	}
	known := make(map[string]bool, len(f.Grid.TerrainPenalties))
	for _, entry := range f.Grid.TerrainPenalties {
		known[entry.Classification] = true
	}
	for i, region := range f.World.Terrain {
		field := fmt.Sprintf("world.terrain[%d]", i)
		switch {
		case region.Classification == "":
			invalid(field+".classification", "is empty")
		case !known[region.Classification]:
			invalid(field+".classification", "%q is not listed in grid.terrain_penalties", region.Classification)
		}
		if reason := region.Shape.problem(); reason != "" {
			invalid(field, "%s", reason)
		}
	}
	return errors.Join(errs...)
}

func (s Shape) problem() string {
	switch {
	case s.Box != nil && s.Circle != nil:
		return "set either box or circle, not both"
	case s.Box != nil:
		if !(s.Box.Min.X < s.Box.Max.X) || !(s.Box.Min.Z < s.Box.Max.Z) {
			return "box min must be below max on both axes"
		}
	case s.Circle != nil:
		if !(s.Circle.Radius > 0) {
			return "circle radius must be positive"
		}
	default:
		return "needs a box or a circle"
	}
	return ""
}

// Sampler answers the traversability questions a grid build asks of the world.
type Sampler interface {
	IsWalkable(point gridpath.Vec3, skin float64) bool
	GroundPenalty(point gridpath.Vec3, skin float64) int
}

// GridConfig assembles the grid build configuration with sampler supplying the
// predicates. A nil sampler leaves them unset.
func (f *File) GridConfig(sampler Sampler) gridpath.GridConfig {
	cfg := gridpath.GridConfig{
		Origin:           f.Grid.Origin,
		WorldSize:        f.Grid.WorldSize,
		CellRadius:       f.Grid.CellRadius,
		SkinMargin:       f.Grid.SkinMargin,
		TerrainPenalties: f.terrainPenalties(),
	}
	if sampler != nil {
		cfg.IsWalkable = sampler.IsWalkable
		cfg.GroundPenalty = sampler.GroundPenalty
	}
	return cfg
}

func (f *File) terrainPenalties() []gridpath.TerrainPenalty {
	if len(f.Grid.TerrainPenalties) == 0 {
		return nil
	}
	penalties := make([]gridpath.TerrainPenalty, len(f.Grid.TerrainPenalties))
	for i, entry := range f.Grid.TerrainPenalties {
		penalties[i] = gridpath.TerrainPenalty{Classification: entry.Classification, Penalty: entry.Penalty}
	}
	return penalties
}

// TerrainTable returns the validated terrain penalty table.
func (f *File) TerrainTable() (gridpath.TerrainTable, error) {
	return gridpath.NewTerrainTable(f.terrainPenalties())
}

// SearchOptions returns the search options the grid section selects.
func (f *File) SearchOptions() []gridpath.Option {
	return []gridpath.Option{
		gridpath.WithPenaltyWeighting(f.Grid.WeightPenalties),
		gridpath.WithSimplify(f.Grid.SimplifyPaths),
		gridpath.WithMaxExpansions(f.Grid.MaxExpansions),
	}
}

// Logger builds the slog logger the log section describes.
func (c LogConfig) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	options := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, options))
	}
	return slog.New(slog.NewTextHandler(w, options))
}

// Schema returns the JSON Schema of the configuration file.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(File))
	schema.Title = "pathd configuration"
	schema.Description = "Grid, world geometry and server settings for the pathd path service"
	return schema
}
