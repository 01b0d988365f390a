package lockers

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/parcelhive/parcelhive-backend/pkg/db/models"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
	pkgerrors "github.com/parcelhive/parcelhive-backend/pkg/errors"
	"github.com/parcelhive/parcelhive-backend/pkg/pagination"
)

func setupLockersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:lockers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	lockers := `
CREATE TABLE IF NOT EXISTS lockers (
  id TEXT PRIMARY KEY,
  address TEXT NOT NULL,
  latitude REAL NOT NULL DEFAULT 0,
  longitude REAL NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'Active',
  created_at DATETIME,
  updated_at DATETIME
);`
	cells := `
CREATE TABLE IF NOT EXISTS cells (
  id TEXT PRIMARY KEY,
  locker_id TEXT NOT NULL,
  size TEXT NOT NULL,
  occupied INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(lockers).Error)
	require.NoError(t, db.Exec(cells).Error)
	return db
}

func newLockersService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	return svc
}

func TestCreateLockerRejectsDuplicateCoordinates(t *testing.T) {
	db := setupLockersTestDB(t)
	svc := newLockersService(t, db)
	ctx := context.Background()

	input := CreateLockerInput{Address: "1 Pier Road", Latitude: 51.5, Longitude: -0.1}
	created, err := svc.CreateLocker(ctx, input)
	require.NoError(t, err)
	require.Equal(t, enums.LockerStatusActive, created.Status)

	_, err = svc.CreateLocker(ctx, CreateLockerInput{Address: "Another", Latitude: 51.5, Longitude: -0.1})
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeConflict, appErr.Code())
}

func TestUpdateLockerPartial(t *testing.T) {
	db := setupLockersTestDB(t)
	svc := newLockersService(t, db)
	ctx := context.Background()

	created, err := svc.CreateLocker(ctx, CreateLockerInput{Address: "1 Pier Road", Latitude: 1, Longitude: 2})
	require.NoError(t, err)

	inactive := enums.LockerStatusInactive
	updated, err := svc.UpdateLocker(ctx, created.ID, UpdateLockerInput{Status: &inactive})
	require.NoError(t, err)
	require.Equal(t, enums.LockerStatusInactive, updated.Status)
	require.Equal(t, "1 Pier Road", updated.Address)
}

func TestCreateCellRejectsInactiveLocker(t *testing.T) {
	db := setupLockersTestDB(t)
	svc := newLockersService(t, db)
	ctx := context.Background()

	created, err := svc.CreateLocker(ctx, CreateLockerInput{Address: "1 Pier Road", Latitude: 1, Longitude: 2})
	require.NoError(t, err)
	inactive := enums.LockerStatusInactive
	_, err = svc.UpdateLocker(ctx, created.ID, UpdateLockerInput{Status: &inactive})
	require.NoError(t, err)

	_, err = svc.CreateCell(ctx, created.ID, enums.CellSizeS)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())
}

func TestDensityBuckets(t *testing.T) {
	db := setupLockersTestDB(t)
	svc := newLockersService(t, db)
	ctx := context.Background()

	created, err := svc.CreateLocker(ctx, CreateLockerInput{Address: "1 Pier Road", Latitude: 1, Longitude: 2})
	require.NoError(t, err)

	// S: 2 cells, both occupied -> Full. M: 10 cells, 7 occupied -> Busy.
	// L: 2 cells, none occupied -> Free.
	seed := func(size enums.CellSize, total, occupied int) {
		for i := 0; i < total; i++ {
			cell := &models.Cell{ID: uuid.New(), LockerID: created.ID, Size: size, Occupied: i < occupied}
			require.NoError(t, db.Create(cell).Error)
		}
	}
	seed(enums.CellSizeS, 2, 2)
	seed(enums.CellSizeM, 10, 7)
	seed(enums.CellSizeL, 2, 0)

	report, err := svc.Density(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, report.Sizes, 3)

	byStatus := map[enums.CellSize]DensityStatus{}
	for _, size := range report.Sizes {
		byStatus[size.Size] = size.Status
	}
	require.Equal(t, DensityStatusFull, byStatus[enums.CellSizeS])
	require.Equal(t, DensityStatusBusy, byStatus[enums.CellSizeM])
	require.Equal(t, DensityStatusFree, byStatus[enums.CellSizeL])
}

func TestListLockersPaginates(t *testing.T) {
	db := setupLockersTestDB(t)
	svc := newLockersService(t, db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreateLocker(ctx, CreateLockerInput{
			Address:   fmt.Sprintf("%d Pier Road", i),
			Latitude:  float64(i),
			Longitude: float64(i),
		})
		require.NoError(t, err)
	}

	first, err := svc.ListLockers(ctx, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Lockers, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.ListLockers(ctx, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Lockers, 1)
	require.Empty(t, second.NextCursor)

	seen := map[uuid.UUID]bool{}
	for _, l := range append(first.Lockers, second.Lockers...) {
		seen[l.ID] = true
	}
	require.Len(t, seen, 3)
}

func TestDeleteLockerNotFound(t *testing.T) {
	db := setupLockersTestDB(t)
	svc := newLockersService(t, db)

	err := svc.DeleteLocker(context.Background(), uuid.New())
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeNotFound, appErr.Code())
}
