package gridpath

import "math"

// DefaultArrivalDistance is how close an agent must come to a waypoint before
// the follower moves on to the next one.
const DefaultArrivalDistance = 0.125

// Follower walks an agent along a found path. The host calls Update once per
// tick with the agent's position and moves it along the returned direction.
// Distances are measured on the grid's X/Z plane. A Follower is not safe for
// concurrent use.
type Follower struct {
	grid      *Grid
	waypoints []Vec3
	visited   []Vec3
	arrival   float64
	cell      Node
}

// NewFollower copies waypoints, usually Result.Waypoints. An arrival distance
// of zero or less means DefaultArrivalDistance.
func NewFollower(grid *Grid, waypoints []Vec3, arrival float64) (*Follower, error) {
	if grid == nil {
		return nil, ErrNilGrid
	}
	if !(arrival > 0) {
		arrival = DefaultArrivalDistance
	}
	return &Follower{
		grid:      grid,
		waypoints: append([]Vec3(nil), waypoints...),
		arrival:   arrival,
	}, nil
}

// Update records the agent's cell and returns the unit direction towards the
// current waypoint. When the agent is within the arrival distance the waypoint
// is marked visited and the zero vector is returned for this tick; the next
// waypoint is steered towards on the following Update.
func (f *Follower) Update(position Vec3) Vec3 {
	f.cell = f.grid.WorldToNode(position)
	if len(f.waypoints) == 0 {
		return Vec3{}
	}
	dx, dz := f.waypoints[0].X-position.X, f.waypoints[0].Z-position.Z
	distance := math.Hypot(dx, dz)
	if distance > f.arrival {
		return Vec3{X: dx / distance, Z: dz / distance}
	}
	f.visited = append(f.visited, f.waypoints[0])
	f.waypoints = f.waypoints[1:]
	return Vec3{}
}

// Waypoint returns the waypoint being steered towards.
func (f *Follower) Waypoint() (Vec3, bool) {
	if len(f.waypoints) == 0 {
		return Vec3{}, false
	}
	return f.waypoints[0], true
}

// Destination is the last waypoint of the path, visited or not.
func (f *Follower) Destination() (Vec3, bool) {
	switch {
	case len(f.waypoints) > 0:
		return f.waypoints[len(f.waypoints)-1], true
	case len(f.visited) > 0:
		return f.visited[len(f.visited)-1], true
	}
	return Vec3{}, false
}

// Done reports whether every waypoint has been visited.
func (f *Follower) Done() bool { return len(f.waypoints) == 0 }

// Cell is the grid node the agent occupied at the last Update.
func (f *Follower) Cell() Node { return f.cell }

func (f *Follower) Remaining() []Vec3 { return append([]Vec3(nil), f.waypoints...) }

func (f *Follower) Visited() []Vec3 { return append([]Vec3(nil), f.visited...) }
