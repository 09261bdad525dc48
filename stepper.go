package gridpath

import "time"

// StepSnapshot exposes the per-iteration state of the search
type StepSnapshot struct {
	Current   NodeRef
	Open      []NodeRef
	Closed    []NodeRef
	Done      bool
	Found     bool
	Path      []NodeRef
	StepIndex int
	// Result is filled in once Done is set.
	Result Result
}

// Stepper advances a grid search one expansion at a time. It is not safe for
// concurrent use; the grid it reads may be shared freely.
type Stepper struct {
	grid      *Grid
	search    *search
	began     time.Time
	stepCount int
	last      StepSnapshot
	closed    bool
}

// NewStepper prepares a search with the same semantics as FindPath.
func NewStepper(grid *Grid, start, target Vec3, options ...Option) (*Stepper, error) {
	if grid == nil {
		return nil, ErrNilGrid
	}
	return &Stepper{
		grid:   grid,
		search: newSearch(grid, start, target, applyOptions(options)),
		began:  time.Now(),
	}, nil
}

// Close returns the search's scratch buffers. Step after Close repeats the
// last snapshot, marked done.
func (s *Stepper) Close() {
	s.closed = true
	if s.search != nil {
		s.search.release()
	}
}

// Start is the resolved start cell.
func (s *Stepper) Start() NodeRef { return s.search.start.Ref() }

// Target is the resolved target cell.
func (s *Stepper) Target() NodeRef { return s.search.target.Ref() }

// Step advances the search by one node expansion and returns a snapshot
func (s *Stepper) Step() StepSnapshot {
	if s.closed {
		last := s.last
		last.Done = true
		last.StepIndex = s.stepCount
		return last
	}
	if !s.search.done {
		s.stepCount++
		s.search.step()
	}
	snapshot := StepSnapshot{
		Done:      s.search.done,
		Found:     s.search.found,
		StepIndex: s.stepCount,
	}
	if s.search.current >= 0 {
		snapshot.Current = s.grid.nodes[s.search.current].Ref()
	}
	if s.search.scratch != nil {
		snapshot.Open = s.openRefs()
		snapshot.Closed = s.closedRefs()
	}
	if snapshot.Done {
		snapshot.Result = s.search.result()
		snapshot.Result.Duration = time.Since(s.began)
		snapshot.Path = snapshot.Result.Cells
	}
	s.last = snapshot
	return snapshot
}

func (s *Stepper) openRefs() []NodeRef {
	items := s.search.scratch.open.heap.items
	refs := make([]NodeRef, 0, len(items))
	for _, item := range items {
		refs = append(refs, s.grid.nodes[item.ID].Ref())
	}
	return refs
}

func (s *Stepper) closedRefs() []NodeRef {
	var refs []NodeRef
	for id, closed := range s.search.scratch.closed {
		if closed {
			refs = append(refs, s.grid.nodes[id].Ref())
		}
	}
	return refs
}
