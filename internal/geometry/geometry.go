// Package geometry maps points on the life map to the areas that contain them.
package geometry

import (
	"math"
	"math/rand"

	"lifemap/internal/model"
)

// PointInCircle reports whether p lies inside or on the circle.
func PointInCircle(p, center model.Point, radius float64) bool {
	return distance(p, center) <= radius
}

// ResolveAreas returns the areas containing p in the order of areas, at most two.
// A point outside every circle yields an empty slice.
func ResolveAreas(p model.Point, areas []model.Area) []model.AreaID {
	out := make([]model.AreaID, 0, model.MaxTaskAreas)
	for _, a := range areas {
		if len(out) == model.MaxTaskAreas {
			break
		}
		if PointInCircle(p, a.Center, a.Radius) {
			out = append(out, a.ID)
		}
	}
	return out
}

// CirclesIntersect reports whether the outlines of two circles cross.
func CirclesIntersect(a, b model.Area) bool {
	d := distance(a.Center, b.Center)
	return d < a.Radius+b.Radius && d > math.Abs(a.Radius-b.Radius)
}

// DefaultPosition places a new pin near the centre of area id, within a quarter radius.
// Unknown areas map to the origin.
func DefaultPosition(id model.AreaID, areas []model.Area, rnd *rand.Rand) model.Point {
	for _, a := range areas {
		if a.ID != id {
			continue
		}
		jitter := func() float64 {
			if rnd == nil {
				return 0
			}
			return (rnd.Float64() - 0.5) * a.Radius * 0.5
		}
		return model.Point{X: a.Center.X + jitter(), Y: a.Center.Y + jitter()}
	}
	return model.Point{}
}

func distance(a, b model.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
