package cells

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/parcelhive/parcelhive-backend/pkg/db/models"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a cell directory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindAvailableCell returns a free cell of the requested locker and size. A
// cell is free when no non-terminal order references it; the occupied flag is
// a secondary index kept in sync by SetOccupied. The row is locked so two
// concurrent allocations cannot claim the same last free cell.
func (r *repository) FindAvailableCell(ctx context.Context, lockerID uuid.UUID, size enums.CellSize) (*models.Cell, error) {
	var cell models.Cell
	query := r.db.WithContext(ctx).
		Where("locker_id = ? AND size = ? AND occupied = ?", lockerID, size, false).
		Where(`NOT EXISTS (
			SELECT 1 FROM orders
			WHERE (orders.sending_cell_id = cells.id OR orders.receiving_cell_id = cells.id)
			AND orders.status NOT IN ?
		)`, enums.TerminalOrderStatuses()).
		Order("created_at ASC")
	// sqlite (tests) does not parse FOR UPDATE
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := query.Take(&cell).Error; err != nil {
		return nil, err
	}
	return &cell, nil
}

func (r *repository) FindCell(ctx context.Context, cellID uuid.UUID) (*models.Cell, error) {
	var cell models.Cell
	if err := r.db.WithContext(ctx).Where("id = ?", cellID).First(&cell).Error; err != nil {
		return nil, err
	}
	return &cell, nil
}

func (r *repository) SetOccupied(ctx context.Context, cellID uuid.UUID, occupied bool) error {
	return r.db.WithContext(ctx).
		Model(&models.Cell{}).
		Where("id = ?", cellID).
		Update("occupied", occupied).Error
}

func (r *repository) CountActiveOrdersForCell(ctx context.Context, cellID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("(sending_cell_id = ? OR receiving_cell_id = ?)", cellID, cellID).
		Where("status NOT IN ?", enums.TerminalOrderStatuses()).
		Count(&count).Error
	return count, err
}
