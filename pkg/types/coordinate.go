package types

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IsZero reports whether the coordinate carries no position.
func (c Coordinate) IsZero() bool {
	return c.Latitude == 0 && c.Longitude == 0
}
