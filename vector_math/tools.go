package vector_math

import "math"

// ToRad is a helper function to turn degree to radians
func ToRad(deg float64) float64 {
	return deg * math.Pi / 180
}
