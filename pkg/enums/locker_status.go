package enums

import "fmt"

// LockerStatus describes whether a physical locker site accepts new cells and orders.
type LockerStatus string

const (
	LockerStatusActive   LockerStatus = "Active"
	LockerStatusInactive LockerStatus = "Inactive"
)

var validLockerStatuses = []LockerStatus{LockerStatusActive, LockerStatusInactive}

// String implements fmt.Stringer.
func (l LockerStatus) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LockerStatus.
func (l LockerStatus) IsValid() bool {
	for _, candidate := range validLockerStatuses {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLockerStatus converts raw input into a LockerStatus.
func ParseLockerStatus(value string) (LockerStatus, error) {
	for _, candidate := range validLockerStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid locker status %q", value)
}
