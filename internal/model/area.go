package model

// AreaID names one of the five life areas on the map.
type AreaID string

const (
	AreaSchool   AreaID = "school"
	AreaSport    AreaID = "sport"
	AreaBusiness AreaID = "business"
	AreaProjects AreaID = "projects"
	AreaLeisure  AreaID = "leisure"
)

// MaxTaskAreas is the upper bound for hybrid tasks.
const MaxTaskAreas = 2

func (a AreaID) Valid() bool {
	switch a {
	case AreaSchool, AreaSport, AreaBusiness, AreaProjects, AreaLeisure:
		return true
	}
	return false
}

// Area is a circular region of the map.
type Area struct {
	ID     AreaID  `json:"id"`
	Name   string  `json:"name"`
	Color  string  `json:"color"`
	Center Point   `json:"position"`
	Radius float64 `json:"radius"`
}

// DefaultAreas returns the stock map layout: four overlapping domains inside the leisure circle.
func DefaultAreas() []Area {
	return []Area{
		{ID: AreaSchool, Name: "Schule", Color: "#003049", Center: Point{X: 280, Y: 220}, Radius: 160},
		{ID: AreaSport, Name: "Sport", Color: "#669bbc", Center: Point{X: 520, Y: 220}, Radius: 160},
		{ID: AreaBusiness, Name: "Geschäft", Color: "#c1121f", Center: Point{X: 280, Y: 460}, Radius: 160},
		{ID: AreaProjects, Name: "Projekte", Color: "#780000", Center: Point{X: 520, Y: 460}, Radius: 160},
		{ID: AreaLeisure, Name: "Freizeitaktivitäten", Color: "#669bbc", Center: Point{X: 400, Y: 340}, Radius: 400},
	}
}

// IsHybrid is the single source of truth for the hybrid flag.
func IsHybrid(areas []AreaID) bool {
	return len(areas) > 1
}
