package gridpath

// Simplify keeps only the waypoints where the path turns, plus the last one.
// from is the start cell; cells and waypoints are parallel slices as produced
// by a search. Waypoints are returned unchanged if the slices disagree in length.
func Simplify(from NodeRef, cells []NodeRef, waypoints []Vec3) []Vec3 {
	if len(cells) != len(waypoints) || len(cells) < 2 {
		return waypoints
	}
	simplified := make([]Vec3, 0, len(waypoints))
	previous := from
	for i := 0; i < len(cells)-1; i++ {
		here := NodeRef{X: cells[i].X - previous.X, Y: cells[i].Y - previous.Y}
		next := NodeRef{X: cells[i+1].X - cells[i].X, Y: cells[i+1].Y - cells[i].Y}
		if here != next {
			simplified = append(simplified, waypoints[i])
		}
		previous = cells[i]
	}
	return append(simplified, waypoints[len(waypoints)-1])
}
