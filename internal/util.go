package internal

import "math"

// ReconstructPath rebuilds the id path ending at current by following parent
// links until start. parent[id] is -1 for ids with no predecessor. The returned
// slice runs from start to current.
func ReconstructPath(parent []int32, current, start int) []int {
	path := []int{current}
	for current != start {
		previous := parent[current]
		if previous < 0 {
			break
		}
		path = append(path, int(previous))
		current = int(previous)
	}
	// reverse path
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	return path
}

// Clamp01 clamps v into [0, 1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// RoundIndex rounds half to even, which keeps exact cell boundaries on the
// same side regardless of sign.
func RoundIndex(v float64) int {
	return int(math.RoundToEven(v))
}
