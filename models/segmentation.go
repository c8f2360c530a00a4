package models

// SourceLogMeal tags every confirmation made against the vision vendor.
const SourceLogMeal = "logmeal"

// BoundingBox is a rectangle in image pixel coordinates.
type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Geometry is either a polygon or a bounding box, whichever the vendor sent.
type Geometry struct {
	Polygon [][2]float64 `json:"polygon,omitempty"`
	BBox    *BoundingBox `json:"bbox,omitempty"`
}

// SubClass is a finer-grained variant of a candidate dish.
type SubClass struct {
	DishID     int     `json:"dishId"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Candidate is one ranked dish identity for a region.
type Candidate struct {
	DishID     int        `json:"dishId"`
	Name       string     `json:"name"`
	Confidence float64    `json:"confidence"`
	SubClasses []SubClass `json:"subClasses,omitempty"`
}

// DetectedRegion is one food item found in an uploaded image.
// Candidates keep the vendor's order.
type DetectedRegion struct {
	Position   int         `json:"position"`
	Geometry   Geometry    `json:"boundingGeometry"`
	Candidates []Candidate `json:"candidates"`
}

// Selection is the user's choice for one region.
type Selection struct {
	Position     int    `json:"position"`
	DishID       int    `json:"dishId"`
	Name         string `json:"name"`
	SubClassID   *int   `json:"subClassId,omitempty"`
	SubClassName string `json:"subClassName,omitempty"`
	Source       string `json:"source"`
}

// HasSubClass reports whether the selection refines its candidate.
func (s Selection) HasSubClass() bool { return s.SubClassID != nil }
