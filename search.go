package gridpath

import (
	"sync"

	"github.com/pdrpinto/gridpath/internal"
)

// scratch is the per-search bookkeeping, indexed by node id. It never lives on
// the grid, so concurrent searches over one grid share nothing mutable.
type scratch struct {
	gCost     []int
	parent    []int32
	closed    []bool
	open      *PriorityQueue
	neighbors []Node
}

// scratchPools holds one *sync.Pool per grid size.
var scratchPools sync.Map

func acquireScratch(size int) *scratch {
	pool, _ := scratchPools.LoadOrStore(size, &sync.Pool{
		New: func() any {
			return &scratch{
				gCost:     make([]int, size),
				parent:    make([]int32, size),
				closed:    make([]bool, size),
				open:      NewPriorityQueue(size),
				neighbors: make([]Node, 0, 8),
			}
		},
	})
	return pool.(*sync.Pool).Get().(*scratch)
}

func releaseScratch(s *scratch) {
	clear(s.closed)
	s.open.Reset()
	if pool, ok := scratchPools.Load(len(s.closed)); ok {
		pool.(*sync.Pool).Put(s)
	}
}

// search is one A* execution. FindPath drives it to completion; Stepper drives
// it one expansion at a time.
type search struct {
	grid     *Grid
	options  Options
	start    Node
	target   Node
	startID  int
	targetID int
	scratch  *scratch

	current   int
	expanded  int
	done      bool
	found     bool
	truncated bool
}

func newSearch(grid *Grid, start, target Vec3, options Options) *search {
	state := &search{grid: grid, options: options, current: -1}
	state.start = grid.WorldToNode(start)
	state.target = grid.WorldToNode(target)
	state.startID = grid.ID(state.start)
	state.targetID = grid.ID(state.target)

	if !state.start.Walkable || !state.target.Walkable {
		state.done = true
		return state
	}

	state.scratch = acquireScratch(grid.MaxSize())
	state.scratch.gCost[state.startID] = 0
	state.scratch.parent[state.startID] = -1
	h := OctileDistance(state.start.Ref(), state.target.Ref())
	state.scratch.open.Insert(state.startID, Key{F: h, H: h})
	return state
}

func (s *search) release() {
	if s.scratch != nil {
		releaseScratch(s.scratch)
		s.scratch = nil
	}
}

// step expands one node and reports whether the search has finished.
func (s *search) step() bool {
	if s.done {
		return true
	}
	open := s.scratch.open
	currentID, _, ok := open.ExtractMin()
	if !ok {
		s.done = true
		return true
	}
	s.current = currentID
	s.expanded++

	if currentID == s.targetID {
		s.done, s.found = true, true
		return true
	}
	s.scratch.closed[currentID] = true
	if s.options.MaxExpansions > 0 && s.expanded >= s.options.MaxExpansions {
		s.done, s.truncated = true, true
		return true
	}

	current := s.grid.nodes[currentID]
	currentG := s.scratch.gCost[currentID]
	s.scratch.neighbors = s.grid.AppendNeighbors(s.scratch.neighbors[:0], current)
	for _, neighbor := range s.scratch.neighbors {
		neighborID := s.grid.ID(neighbor)
		if !neighbor.Walkable || s.scratch.closed[neighborID] {
			continue
		}

		tentativeG := currentG + OctileDistance(current.Ref(), neighbor.Ref())
		if s.options.WeightPenalties {
			tentativeG += neighbor.Penalty
		}
		inOpen := open.Contains(neighborID)
		if inOpen && tentativeG >= s.scratch.gCost[neighborID] {
			continue
		}

		h := OctileDistance(neighbor.Ref(), s.target.Ref())
		s.scratch.gCost[neighborID] = tentativeG
		s.scratch.parent[neighborID] = int32(currentID)
		key := Key{F: tentativeG + h, H: h}
		if inOpen {
			open.UpdateKey(neighborID, key)
		} else {
			open.Insert(neighborID, key)
		}
	}
	return false
}

// pathIDs returns the ids from the first step after start up to target.
func (s *search) pathIDs() []int {
	if !s.found {
		return nil
	}
	return internal.ReconstructPath(s.scratch.parent, s.targetID, s.startID)[1:]
}

func (s *search) result() Result {
	result := Result{
		ExpandedNodes: s.expanded,
		Found:         s.found,
		Truncated:     s.truncated,
	}
	if !s.found {
		return result
	}

	ids := s.pathIDs()
	result.TotalCost = s.scratch.gCost[s.targetID]
	result.Cells = make([]NodeRef, len(ids))
	result.Waypoints = make([]Vec3, len(ids))
	for i, id := range ids {
		node := s.grid.nodes[id]
		result.Cells[i] = node.Ref()
		result.Waypoints[i] = node.World
	}
	if s.options.Simplify {
		result.Waypoints = Simplify(s.start.Ref(), result.Cells, result.Waypoints)
	}
	return result
}
