package utils

import (
	"math"

	"conquest/domain"
)

// FiniteCamera はカメラの座標と表示範囲がすべて有限値かを返す
func FiniteCamera(c domain.Camera) bool {
	return IsFinite(c.X) && IsFinite(c.Y) && IsFinite(c.Width) && IsFinite(c.Height)
}

func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
