package utils

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

func FiniteVec(v mgl64.Vec3) bool {
	return IsFinite(v[0]) && IsFinite(v[1]) && IsFinite(v[2])
}

func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
