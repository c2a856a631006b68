package posture

import "math"

// Angle returns the interior angle in degrees at vertex b formed by the rays b->a and
// b->c. The result is in [0, 180] and Angle(a, b, c) == Angle(c, b, a).
func Angle(a, b, c Point) float64 {
	radians := math.Atan2(c.Y-b.Y, c.X-b.X) - math.Atan2(a.Y-b.Y, a.X-b.X)
	deg := math.Abs(radians * 180.0 / math.Pi)
	if deg > 180.0 {
		deg = 360.0 - deg
	}
	return deg
}

// Midpoint is the arithmetic mean of two points.
func Midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

func degrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}
