package cells

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parcelhive/parcelhive-backend/pkg/db/models"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
)

// Repository defines persistence operations for the cell directory.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindAvailableCell(ctx context.Context, lockerID uuid.UUID, size enums.CellSize) (*models.Cell, error)
	FindCell(ctx context.Context, cellID uuid.UUID) (*models.Cell, error)
	SetOccupied(ctx context.Context, cellID uuid.UUID, occupied bool) error
	CountActiveOrdersForCell(ctx context.Context, cellID uuid.UUID) (int64, error)
}
