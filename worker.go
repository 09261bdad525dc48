package gridpath

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PathRequest is the handle returned by Service.RequestPath. Its result is
// delivered exactly once; a caller that issued a newer request may simply stop
// looking at an older handle.
type PathRequest struct {
	ID          uuid.UUID
	Start       Vec3
	Target      Vec3
	GridVersion uint64
	Submitted   time.Time

	done   chan struct{}
	result Result
	err    error
}

func newPathRequest(start, target Vec3, version uint64) *PathRequest {
	return &PathRequest{
		ID:          uuid.New(),
		Start:       start,
		Target:      target,
		GridVersion: version,
		Submitted:   time.Now(),
		done:        make(chan struct{}),
	}
}

// Done is closed once the result is available.
func (r *PathRequest) Done() <-chan struct{} { return r.done }

// Wait blocks until the result is available or ctx ends. Ending ctx does not
// stop the search.
func (r *PathRequest) Wait(ctx context.Context) (Result, error) {
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Poll returns the result and error if the request is done. A not-found
// result is reported with a nil error.
func (r *PathRequest) Poll() (Result, error, bool) {
	select {
	case <-r.done:
		return r.result, r.err, true
	default:
		return Result{}, nil, false
	}
}

// Err returns the request's error once it is done, nil before.
func (r *PathRequest) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

func (r *PathRequest) complete(result Result, err error) {
	r.result, r.err = result, err
	close(r.done)
}

// Regeneration is the handle returned by Service.RegenerateGrid. It completes
// after the new grid is published, or after the build fails.
type Regeneration struct {
	done    chan struct{}
	grid    *Grid
	version uint64
	err     error
}

// Done is closed once the regeneration has finished.
func (r *Regeneration) Done() <-chan struct{} { return r.done }

// Wait blocks until the regeneration finishes or ctx ends, and returns the
// published grid.
func (r *Regeneration) Wait(ctx context.Context) (*Grid, error) {
	select {
	case <-r.done:
		return r.grid, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Version blocks until Done and returns the published grid version, or 0 if
// nothing was published.
func (r *Regeneration) Version() uint64 {
	<-r.done
	return r.version
}

func (r *Regeneration) complete(grid *Grid, version uint64, err error) {
	r.grid, r.version, r.err = grid, version, err
	close(r.done)
}

// searchTask carries one request from RequestPath to its worker goroutine,
// together with the grid snapshot it was issued against.
type searchTask struct {
	ctx     context.Context
	cancel  context.CancelFunc
	stop    func() bool
	request *PathRequest
	grid    *Grid
}
