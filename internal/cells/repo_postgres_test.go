//go:build postgres

package cells

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/parcelhive/parcelhive-backend/pkg/db/models"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
	pkgerrors "github.com/parcelhive/parcelhive-backend/pkg/errors"
)

// These tests exercise the FOR UPDATE branch of FindAvailableCell, which the
// sqlite suite cannot reach. Run them against a disposable database:
//
//	PARCELHIVE_TEST_POSTGRES_DSN=postgres://... go test -tags postgres ./internal/cells/
func setupCellsPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("PARCELHIVE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PARCELHIVE_TEST_POSTGRES_DSN not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Locker{}, &models.Cell{}, &models.Order{}))
	return db
}

// One free cell, many concurrent claims: the row lock inside the allocating
// transaction must hand the cell to exactly one of them, and every loser must
// see the locker-full conflict rather than a double allocation.
func TestAllocateIsExclusiveUnderConcurrency(t *testing.T) {
	db := setupCellsPostgresDB(t)
	dir, err := NewDirectory(NewRepository(db))
	require.NoError(t, err)
	ctx := context.Background()

	locker := &models.Locker{ID: uuid.New(), Address: "12 Dock Street", Status: enums.LockerStatusActive}
	require.NoError(t, db.Create(locker).Error)
	cell := &models.Cell{ID: uuid.New(), LockerID: locker.ID, Size: enums.CellSizeS}
	require.NoError(t, db.Create(cell).Error)

	const claimants = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		won  []uuid.UUID
		lost int
	)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Transaction(func(tx *gorm.DB) error {
				got, err := dir.Allocate(ctx, tx, locker.ID, enums.CellSizeS)
				if err != nil {
					return err
				}
				mu.Lock()
				won = append(won, got.ID)
				mu.Unlock()
				return nil
			})
			if err != nil {
				appErr := pkgerrors.As(err)
				require.NotNil(t, appErr)
				require.Equal(t, pkgerrors.CodeConflict, appErr.Code())
				mu.Lock()
				lost++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, won, 1)
	require.Equal(t, cell.ID, won[0])
	require.Equal(t, claimants-1, lost)

	var stored models.Cell
	require.NoError(t, db.Where("id = ?", cell.ID).First(&stored).Error)
	require.True(t, stored.Occupied)
}
