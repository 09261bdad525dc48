package gridpath

import (
	"context"
	"errors"
	"time"
)

// ErrNilGrid is returned when a search is attempted without a grid.
var ErrNilGrid = errors.New("gridpath: nil grid")

// cancelCheckInterval is how many expansions run between context checks.
const cancelCheckInterval = 256

// Result contains the outcome of a search.
type Result struct {
	// Waypoints are the world positions to visit in order. The start cell is
	// not included; the last waypoint is the target cell.
	Waypoints []Vec3
	// Cells are the grid cells behind Waypoints before any simplification.
	Cells         []NodeRef
	TotalCost     int
	ExpandedNodes int
	Found         bool
	// Truncated is set when the search gave up after MaxExpansions.
	Truncated bool
	Duration  time.Duration
}

// Options defines parameters for the search.
type Options struct {
	// WeightPenalties adds each entered cell's Penalty to the step cost.
	WeightPenalties bool
	// Simplify drops waypoints that continue straight on from the previous step.
	Simplify bool
	// MaxExpansions bounds the number of expanded nodes. Zero means unbounded.
	MaxExpansions int
}

// Option is a function that modifies Options.
type Option func(*Options)

// WithPenaltyWeighting toggles whether cell penalties contribute to path cost.
func WithPenaltyWeighting(enabled bool) Option {
	return func(options *Options) { options.WeightPenalties = enabled }
}

// WithSimplify toggles collinear waypoint removal.
func WithSimplify(enabled bool) Option {
	return func(options *Options) { options.Simplify = enabled }
}

// WithMaxExpansions caps how many nodes a search may expand before reporting
// the target as unreachable.
func WithMaxExpansions(limit int) Option {
	return func(options *Options) { options.MaxExpansions = max(limit, 0) }
}

func applyOptions(options []Option) Options {
	var searchOptions Options
	for _, option := range options {
		option(&searchOptions)
	}
	return searchOptions
}

// FindPath runs A* on grid from the node nearest start to the node nearest
// target. An unreachable target is reported with Found set to false and a nil
// error; the only errors are a nil grid and ctx ending mid-search.
func FindPath(
	contextObject context.Context,
	grid *Grid,
	start Vec3,
	target Vec3,
	options ...Option,
) (Result, error) {
	if grid == nil {
		return Result{}, ErrNilGrid
	}
	began := time.Now()

	state := newSearch(grid, start, target, applyOptions(options))
	defer state.release()

	for iteration := 0; !state.step(); iteration++ {
		if iteration%cancelCheckInterval == 0 {
			if err := contextObject.Err(); err != nil {
				return Result{ExpandedNodes: state.expanded, Duration: time.Since(began)}, err
			}
		}
	}

	result := state.result()
	result.Duration = time.Since(began)
	return result, nil
}
