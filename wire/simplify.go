package wire

import "math"

// SimplifyPath reduces a path to at most maxPoints vertices using
// Douglas-Peucker reduction, doubling the distance threshold until the
// result fits. Endpoints are always preserved and every output point is
// one of the input points. Paths already within the limit are returned
// unchanged.
func SimplifyPath(points []PathPoint, maxPoints int) []PathPoint {
	if maxPoints < 2 || len(points) <= maxPoints {
		return points
	}
	epsilon := 0.01
	simplified := points
	for len(simplified) > maxPoints {
		simplified = douglasPeucker(points, epsilon)
		epsilon *= 2
	}
	return simplified
}

func douglasPeucker(points []PathPoint, epsilon float64) []PathPoint {
	if len(points) < 3 {
		return points
	}
	maxDist := 0.0
	maxIdx := 0
	first, last := points[0], points[len(points)-1]
	for i := 1; i < len(points)-1; i++ {
		if d := perpendicularDistance(points[i], first, last); d > maxDist {
			maxDist = d
			maxIdx = i
		}
	}
	if maxDist <= epsilon {
		return []PathPoint{first, last}
	}
	left := douglasPeucker(points[:maxIdx+1], epsilon)
	right := douglasPeucker(points[maxIdx:], epsilon)
	// left and right can alias the input; merge into a fresh slice.
	out := make([]PathPoint, 0, len(left)+len(right)-1)
	out = append(out, left[:len(left)-1]...)
	out = append(out, right...)
	return out
}

func perpendicularDistance(p, a, b PathPoint) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	return math.Abs(dx*(a.Y-p.Y)-dy*(a.X-p.X)) / length
}
