package lockers

import (
	"time"

	"github.com/google/uuid"

	"github.com/parcelhive/parcelhive-backend/pkg/db/models"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
)

// CreateLockerInput carries the fields an admin supplies for a new locker site.
type CreateLockerInput struct {
	Address   string
	Latitude  float64
	Longitude float64
}

// UpdateLockerInput carries the optional fields of a partial locker update.
type UpdateLockerInput struct {
	Address   *string
	Latitude  *float64
	Longitude *float64
	Status    *enums.LockerStatus
}

// LockerDTO is the transport shape of a locker site.
type LockerDTO struct {
	ID        uuid.UUID          `json:"id"`
	Address   string             `json:"address"`
	Latitude  float64            `json:"latitude"`
	Longitude float64            `json:"longitude"`
	Status    enums.LockerStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
}

// CellDTO is the transport shape of a cell.
type CellDTO struct {
	ID       uuid.UUID      `json:"id"`
	LockerID uuid.UUID      `json:"locker_id"`
	Size     enums.CellSize `json:"size"`
	Occupied bool           `json:"occupied"`
}

// LockerList wraps a locker page plus the next page cursor.
type LockerList struct {
	Lockers    []LockerDTO `json:"lockers"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// CellList wraps a cell page plus the next page cursor.
type CellList struct {
	Cells      []CellDTO `json:"cells"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// SizeDensity reports occupancy for one size class of a locker.
type SizeDensity struct {
	Size     enums.CellSize `json:"size"`
	Total    int64          `json:"total"`
	Occupied int64          `json:"occupied"`
	Ratio    float64        `json:"ratio"`
	Status   DensityStatus  `json:"status"`
}

// DensityStatus buckets a size class by how full it is.
type DensityStatus string

const (
	DensityStatusFree DensityStatus = "Free"
	DensityStatusBusy DensityStatus = "Busy"
	DensityStatusFull DensityStatus = "Full"
)

// DensityReport aggregates the per-size occupancy of one locker.
type DensityReport struct {
	LockerID uuid.UUID     `json:"locker_id"`
	Sizes    []SizeDensity `json:"sizes"`
}

func lockerToDTO(locker *models.Locker) LockerDTO {
	return LockerDTO{
		ID:        locker.ID,
		Address:   locker.Address,
		Latitude:  locker.Latitude,
		Longitude: locker.Longitude,
		Status:    locker.Status,
		CreatedAt: locker.CreatedAt,
	}
}

func cellToDTO(cell *models.Cell) CellDTO {
	return CellDTO{
		ID:       cell.ID,
		LockerID: cell.LockerID,
		Size:     cell.Size,
		Occupied: cell.Occupied,
	}
}
