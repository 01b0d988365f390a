package cells

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parcelhive/parcelhive-backend/pkg/db/models"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
	pkgerrors "github.com/parcelhive/parcelhive-backend/pkg/errors"
)

// Directory is the single entry point for cell occupancy. No other component
// may flip the occupied flag directly.
type Directory interface {
	FindAvailableCell(ctx context.Context, lockerID uuid.UUID, size enums.CellSize) (*models.Cell, error)
	Allocate(ctx context.Context, tx *gorm.DB, lockerID uuid.UUID, size enums.CellSize) (*models.Cell, error)
	Release(ctx context.Context, tx *gorm.DB, cellID uuid.UUID) error
}

type directory struct {
	repo Repository
}

// NewDirectory builds the cell directory service.
func NewDirectory(repo Repository) (Directory, error) {
	if repo == nil {
		return nil, fmt.Errorf("cells repository required")
	}
	return &directory{repo: repo}, nil
}

func (d *directory) FindAvailableCell(ctx context.Context, lockerID uuid.UUID, size enums.CellSize) (*models.Cell, error) {
	if lockerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "locker id required")
	}
	if !size.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cell size")
	}
	cell, err := d.repo.FindAvailableCell(ctx, lockerID, size)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "no available cell")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find available cell")
	}
	return cell, nil
}

// Allocate claims a free cell of the requested size inside the caller's
// transaction. The row lock taken by the lookup keeps two concurrent
// allocations from claiming the same last free cell.
func (d *directory) Allocate(ctx context.Context, tx *gorm.DB, lockerID uuid.UUID, size enums.CellSize) (*models.Cell, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for cell allocation")
	}
	repo := d.repo.WithTx(tx)
	cell, err := repo.FindAvailableCell(ctx, lockerID, size)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "no available cell")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find available cell")
	}
	if err := repo.SetOccupied(ctx, cell.ID, true); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark cell occupied")
	}
	cell.Occupied = true
	return cell, nil
}

// Release clears the occupancy flag and confirms the cell ended up free.
// Idempotent: releasing an already-free cell succeeds.
func (d *directory) Release(ctx context.Context, tx *gorm.DB, cellID uuid.UUID) error {
	if cellID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "cell id required")
	}
	repo := d.repo
	if tx != nil {
		repo = d.repo.WithTx(tx)
	}
	if err := repo.SetOccupied(ctx, cellID, false); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release cell")
	}
	cell, err := repo.FindCell(ctx, cellID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cell not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm cell release")
	}
	if cell.Occupied {
		return pkgerrors.New(pkgerrors.CodeIntegrity, "cell release could not be confirmed")
	}
	return nil
}
