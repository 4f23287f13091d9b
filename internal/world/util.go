package world

import "math"

// Clamp restricts v to [min, max]
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Wrap folds v into [0, size).
func Wrap(v, size float64) float64 {
	v = math.Mod(v, size)
	if v < 0 {
		v += size
	}
	// -tiny + size rounds to size
	if v >= size {
		v = 0
	}
	return v
}

// NormalizeAngle folds a to [0, 2*PI)
func NormalizeAngle(a float64) float64 {
	return Wrap(a, 2*math.Pi)
}
