package lockers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parcelhive/parcelhive-backend/pkg/db/models"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
	"github.com/parcelhive/parcelhive-backend/pkg/pagination"
)

// SizeCount holds the occupancy counters for one size class.
type SizeCount struct {
	Size     enums.CellSize
	Total    int64
	Occupied int64
}

// Repository defines persistence operations for locker administration.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateLocker(ctx context.Context, locker *models.Locker) (*models.Locker, error)
	FindLocker(ctx context.Context, lockerID uuid.UUID) (*models.Locker, error)
	FindLockerByCoordinates(ctx context.Context, latitude, longitude float64) (*models.Locker, error)
	UpdateLocker(ctx context.Context, lockerID uuid.UUID, updates map[string]any) error
	DeleteLocker(ctx context.Context, lockerID uuid.UUID) error
	ListLockers(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.Locker, error)
	CreateCell(ctx context.Context, cell *models.Cell) (*models.Cell, error)
	ListCells(ctx context.Context, lockerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Cell, error)
	CountCellsBySize(ctx context.Context, lockerID uuid.UUID) ([]SizeCount, error)
}
