package lockers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parcelhive/parcelhive-backend/pkg/db/models"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
	pkgerrors "github.com/parcelhive/parcelhive-backend/pkg/errors"
	"github.com/parcelhive/parcelhive-backend/pkg/pagination"
)

const busyDensityThreshold = 0.7

// Service exposes the administrative locker operations.
type Service interface {
	CreateLocker(ctx context.Context, input CreateLockerInput) (*LockerDTO, error)
	UpdateLocker(ctx context.Context, lockerID uuid.UUID, input UpdateLockerInput) (*LockerDTO, error)
	GetLocker(ctx context.Context, lockerID uuid.UUID) (*LockerDTO, error)
	DeleteLocker(ctx context.Context, lockerID uuid.UUID) error
	ListLockers(ctx context.Context, params pagination.Params) (*LockerList, error)
	CreateCell(ctx context.Context, lockerID uuid.UUID, size enums.CellSize) (*CellDTO, error)
	ListCells(ctx context.Context, lockerID uuid.UUID, params pagination.Params) (*CellList, error)
	Density(ctx context.Context, lockerID uuid.UUID) (*DensityReport, error)
}

type service struct {
	repo Repository
}

// NewService builds the locker administration service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("lockers repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) CreateLocker(ctx context.Context, input CreateLockerInput) (*LockerDTO, error) {
	if input.Address == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "locker address required")
	}

	if _, err := s.repo.FindLockerByCoordinates(ctx, input.Latitude, input.Longitude); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "a locker already exists at these coordinates")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check locker coordinates")
	}

	locker := &models.Locker{
		ID:        uuid.New(),
		Address:   input.Address,
		Latitude:  input.Latitude,
		Longitude: input.Longitude,
		Status:    enums.LockerStatusActive,
	}
	created, err := s.repo.CreateLocker(ctx, locker)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create locker")
	}
	dto := lockerToDTO(created)
	return &dto, nil
}

func (s *service) UpdateLocker(ctx context.Context, lockerID uuid.UUID, input UpdateLockerInput) (*LockerDTO, error) {
	if lockerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "locker id required")
	}

	updates := map[string]any{}
	if input.Address != nil {
		if *input.Address == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "locker address cannot be empty")
		}
		updates["address"] = *input.Address
	}
	if input.Latitude != nil {
		updates["latitude"] = *input.Latitude
	}
	if input.Longitude != nil {
		updates["longitude"] = *input.Longitude
	}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid locker status")
		}
		updates["status"] = *input.Status
	}

	if _, err := s.findLocker(ctx, lockerID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateLocker(ctx, lockerID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update locker")
	}
	return s.GetLocker(ctx, lockerID)
}

func (s *service) GetLocker(ctx context.Context, lockerID uuid.UUID) (*LockerDTO, error) {
	locker, err := s.findLocker(ctx, lockerID)
	if err != nil {
		return nil, err
	}
	dto := lockerToDTO(locker)
	return &dto, nil
}

func (s *service) DeleteLocker(ctx context.Context, lockerID uuid.UUID) error {
	if _, err := s.findLocker(ctx, lockerID); err != nil {
		return err
	}
	if err := s.repo.DeleteLocker(ctx, lockerID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete locker")
	}
	return nil
}

func (s *service) ListLockers(ctx context.Context, params pagination.Params) (*LockerList, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	lockers, err := s.repo.ListLockers(ctx, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list lockers")
	}

	list := &LockerList{Lockers: make([]LockerDTO, 0, len(lockers))}
	if len(lockers) > limit {
		next := lockers[limit]
		lockers = lockers[:limit]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID})
	}
	for i := range lockers {
		list.Lockers = append(list.Lockers, lockerToDTO(&lockers[i]))
	}
	return list, nil
}

func (s *service) CreateCell(ctx context.Context, lockerID uuid.UUID, size enums.CellSize) (*CellDTO, error) {
	if !size.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cell size")
	}
	locker, err := s.findLocker(ctx, lockerID)
	if err != nil {
		return nil, err
	}
	if locker.Status != enums.LockerStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "locker is not active")
	}

	cell := &models.Cell{
		ID:       uuid.New(),
		LockerID: locker.ID,
		Size:     size,
	}
	created, err := s.repo.CreateCell(ctx, cell)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cell")
	}
	dto := cellToDTO(created)
	return &dto, nil
}

func (s *service) ListCells(ctx context.Context, lockerID uuid.UUID, params pagination.Params) (*CellList, error) {
	if _, err := s.findLocker(ctx, lockerID); err != nil {
		return nil, err
	}
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	cells, err := s.repo.ListCells(ctx, lockerID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cells")
	}

	list := &CellList{Cells: make([]CellDTO, 0, len(cells))}
	if len(cells) > limit {
		next := cells[limit]
		cells = cells[:limit]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID})
	}
	for i := range cells {
		list.Cells = append(list.Cells, cellToDTO(&cells[i]))
	}
	return list, nil
}

func (s *service) Density(ctx context.Context, lockerID uuid.UUID) (*DensityReport, error) {
	if _, err := s.findLocker(ctx, lockerID); err != nil {
		return nil, err
	}
	counts, err := s.repo.CountCellsBySize(ctx, lockerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count cells")
	}

	bySize := make(map[enums.CellSize]SizeCount, len(counts))
	for _, count := range counts {
		bySize[count.Size] = count
	}

	report := &DensityReport{LockerID: lockerID}
	for _, size := range []enums.CellSize{enums.CellSizeS, enums.CellSizeM, enums.CellSizeL} {
		count, ok := bySize[size]
		if !ok {
			continue
		}
		ratio := 0.0
		if count.Total > 0 {
			ratio = float64(count.Occupied) / float64(count.Total)
		}
		report.Sizes = append(report.Sizes, SizeDensity{
			Size:     size,
			Total:    count.Total,
			Occupied: count.Occupied,
			Ratio:    ratio,
			Status:   densityStatus(ratio),
		})
	}
	return report, nil
}

func densityStatus(ratio float64) DensityStatus {
	switch {
	case ratio >= 1:
		return DensityStatusFull
	case ratio >= busyDensityThreshold:
		return DensityStatusBusy
	default:
		return DensityStatusFree
	}
}

func (s *service) findLocker(ctx context.Context, lockerID uuid.UUID) (*models.Locker, error) {
	locker, err := s.repo.FindLocker(ctx, lockerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "locker not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load locker")
	}
	return locker, nil
}
