package lockers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parcelhive/parcelhive-backend/pkg/db/models"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
	"github.com/parcelhive/parcelhive-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a locker administration repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateLocker(ctx context.Context, locker *models.Locker) (*models.Locker, error) {
	if err := r.db.WithContext(ctx).Create(locker).Error; err != nil {
		return nil, err
	}
	return locker, nil
}

func (r *repository) FindLocker(ctx context.Context, lockerID uuid.UUID) (*models.Locker, error) {
	var locker models.Locker
	if err := r.db.WithContext(ctx).Where("id = ?", lockerID).First(&locker).Error; err != nil {
		return nil, err
	}
	return &locker, nil
}

func (r *repository) FindLockerByCoordinates(ctx context.Context, latitude, longitude float64) (*models.Locker, error) {
	var locker models.Locker
	err := r.db.WithContext(ctx).
		Where("latitude = ? AND longitude = ?", latitude, longitude).
		First(&locker).Error
	if err != nil {
		return nil, err
	}
	return &locker, nil
}

func (r *repository) UpdateLocker(ctx context.Context, lockerID uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Locker{}).
		Where("id = ?", lockerID).
		Updates(updates).Error
}

func (r *repository) DeleteLocker(ctx context.Context, lockerID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", lockerID).
		Delete(&models.Locker{}).Error
}

func (r *repository) ListLockers(ctx context.Context, cursor *pagination.Cursor, limit int) ([]models.Locker, error) {
	query := r.db.WithContext(ctx).Model(&models.Locker{})
	if cursor != nil {
		query = query.Where("(created_at, id) > (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var lockers []models.Locker
	if err := query.Order("created_at ASC, id ASC").Limit(limit).Find(&lockers).Error; err != nil {
		return nil, err
	}
	return lockers, nil
}

func (r *repository) CreateCell(ctx context.Context, cell *models.Cell) (*models.Cell, error) {
	if err := r.db.WithContext(ctx).Create(cell).Error; err != nil {
		return nil, err
	}
	return cell, nil
}

func (r *repository) ListCells(ctx context.Context, lockerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Cell, error) {
	query := r.db.WithContext(ctx).Model(&models.Cell{}).Where("locker_id = ?", lockerID)
	if cursor != nil {
		query = query.Where("(created_at, id) > (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var cells []models.Cell
	if err := query.Order("created_at ASC, id ASC").Limit(limit).Find(&cells).Error; err != nil {
		return nil, err
	}
	return cells, nil
}

func (r *repository) CountCellsBySize(ctx context.Context, lockerID uuid.UUID) ([]SizeCount, error) {
	type row struct {
		Size     enums.CellSize
		Total    int64
		Occupied int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.Cell{}).
		Select("size, COUNT(*) AS total, SUM(CASE WHEN occupied THEN 1 ELSE 0 END) AS occupied").
		Where("locker_id = ?", lockerID).
		Group("size").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make([]SizeCount, 0, len(rows))
	for _, r := range rows {
		counts = append(counts, SizeCount{Size: r.Size, Total: r.Total, Occupied: r.Occupied})
	}
	return counts, nil
}
