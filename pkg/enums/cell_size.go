package enums

import "fmt"

// CellSize classifies a locker cell (and the parcel it can hold).
type CellSize string

const (
	CellSizeS CellSize = "S"
	CellSizeM CellSize = "M"
	CellSizeL CellSize = "L"
)

var validCellSizes = []CellSize{CellSizeS, CellSizeM, CellSizeL}

// String implements fmt.Stringer.
func (c CellSize) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CellSize.
func (c CellSize) IsValid() bool {
	for _, candidate := range validCellSizes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCellSize converts raw input into a CellSize.
func ParseCellSize(value string) (CellSize, error) {
	for _, candidate := range validCellSizes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cell size %q", value)
}
