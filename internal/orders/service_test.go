package orders

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/parcelhive/parcelhive-backend/internal/cells"
	"github.com/parcelhive/parcelhive-backend/internal/users"
	"github.com/parcelhive/parcelhive-backend/pkg/db/models"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
	pkgerrors "github.com/parcelhive/parcelhive-backend/pkg/errors"
	"github.com/parcelhive/parcelhive-backend/pkg/logger"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// stubCache is an in-memory stand-in for the redis client.
type stubCache struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}
}

func newStubCache() *stubCache {
	return &stubCache{
		hashes: map[string]map[string]string{},
		sets:   map[string]map[string]struct{}{},
	}
}

func (c *stubCache) HSetAll(_ context.Context, key string, fields map[string]string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	hash := map[string]string{}
	for field, value := range fields {
		hash[field] = value
	}
	c.hashes[key] = hash
	return nil
}

func (c *stubCache) HSetField(_ context.Context, key, field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hashes[key] == nil {
		c.hashes[key] = map[string]string{}
	}
	c.hashes[key][field] = value
	return nil
}

func (c *stubCache) HGetAll(_ context.Context, key string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]string{}
	for field, value := range c.hashes[key] {
		out[field] = value
	}
	return out, nil
}

func (c *stubCache) SAdd(_ context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sets[key] == nil {
		c.sets[key] = map[string]struct{}{}
	}
	for _, member := range members {
		c.sets[key][member] = struct{}{}
	}
	return nil
}

func (c *stubCache) SRem(_ context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, member := range members {
		delete(c.sets[key], member)
	}
	return nil
}

func (c *stubCache) SIsMember(_ context.Context, key, member string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sets[key][member]
	return ok, nil
}

func (c *stubCache) SMembers(_ context.Context, key string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	members := make([]string, 0, len(c.sets[key]))
	for member := range c.sets[key] {
		members = append(members, member)
	}
	return members, nil
}

func (c *stubCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.hashes, key)
		delete(c.sets, key)
	}
	return nil
}

func (c *stubCache) OrderKey(orderID string) string {
	return "ph:order:" + orderID
}

func (c *stubCache) ShipperKey(shipperID string) string {
	return "ph:shipper:" + shipperID
}

type ordersFixture struct {
	db    *gorm.DB
	svc   Service
	cache *stubCache
}

func setupOrdersService(t *testing.T) *ordersFixture {
	t.Helper()
	db := setupOrdersTestDB(t)
	directory, err := cells.NewDirectory(cells.NewRepository(db))
	require.NoError(t, err)
	cache := newStubCache()
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	svc, err := NewService(NewRepository(db), users.NewRepository(db), directory, cache, gormTxRunner{db: db}, logg)
	require.NoError(t, err)
	return &ordersFixture{db: db, svc: svc, cache: cache}
}

func TestCreateOrderClaimsCellsAndWarmsCache(t *testing.T) {
	f := setupOrdersService(t)
	ctx := context.Background()

	sendingLocker := seedLocker(t, f.db, "1 Dock Street", 1, 2)
	receivingLocker := seedLocker(t, f.db, "2 Dock Street", 3, 4)
	sendingCell := seedCell(t, f.db, sendingLocker.ID, enums.CellSizeS)
	receivingCell := seedCell(t, f.db, receivingLocker.ID, enums.CellSizeS)
	sender := seedUser(t, f.db, "+100", enums.MemberRoleCustomer)
	seedUser(t, f.db, "+200", enums.MemberRoleCustomer)

	detail, err := f.svc.CreateOrder(ctx, CreateOrderInput{
		SenderID:          sender.ID,
		RecipientPhone:    "+200",
		SendingLockerID:   sendingLocker.ID,
		ReceivingLockerID: receivingLocker.ID,
		Parcel:            ParcelSpec{LengthCM: 10, WidthCM: 10, HeightCM: 10, WeightKG: 2},
	})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPackaging, detail.Status)
	require.Equal(t, enums.CellSizeS, detail.Parcel.Size)
	require.Equal(t, sendingCell.ID, detail.SendingCellID)
	require.Equal(t, receivingCell.ID, detail.ReceivingCellID)

	var stored models.Cell
	require.NoError(t, f.db.Where("id = ?", sendingCell.ID).Take(&stored).Error)
	require.True(t, stored.Occupied)

	fields, err := f.cache.HGetAll(ctx, f.cache.OrderKey(detail.ID.String()))
	require.NoError(t, err)
	require.Equal(t, "Packaging", fields["status"])
	require.Equal(t, sendingLocker.ID.String(), fields["sending_locker_id"])
}

func TestCreateOrderRollsBackFirstClaimWhenSecondLockerFull(t *testing.T) {
	f := setupOrdersService(t)
	ctx := context.Background()

	sendingLocker := seedLocker(t, f.db, "1 Dock Street", 1, 2)
	receivingLocker := seedLocker(t, f.db, "2 Dock Street", 3, 4)
	sendingCell := seedCell(t, f.db, sendingLocker.ID, enums.CellSizeS)
	// receiving locker has no S cell at all
	sender := seedUser(t, f.db, "+100", enums.MemberRoleCustomer)
	seedUser(t, f.db, "+200", enums.MemberRoleCustomer)

	_, err := f.svc.CreateOrder(ctx, CreateOrderInput{
		SenderID:          sender.ID,
		RecipientPhone:    "+200",
		SendingLockerID:   sendingLocker.ID,
		ReceivingLockerID: receivingLocker.ID,
		Parcel:            ParcelSpec{LengthCM: 10, WidthCM: 10, HeightCM: 10, WeightKG: 2},
	})
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeConflict, appErr.Code())

	var stored models.Cell
	require.NoError(t, f.db.Where("id = ?", sendingCell.ID).Take(&stored).Error)
	require.False(t, stored.Occupied)

	var orderCount int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orderCount).Error)
	require.Zero(t, orderCount)
}

func TestCreateOrderRejectsOversizedParcel(t *testing.T) {
	f := setupOrdersService(t)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		SenderID:          uuid.New(),
		RecipientPhone:    "+200",
		SendingLockerID:   uuid.New(),
		ReceivingLockerID: uuid.New(),
		Parcel:            ParcelSpec{LengthCM: 40, WidthCM: 25, HeightCM: 35, WeightKG: 60},
	})
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeValidation, appErr.Code())
}

func TestCreateOrderUnknownRecipient(t *testing.T) {
	f := setupOrdersService(t)

	sendingLocker := seedLocker(t, f.db, "1 Dock Street", 1, 2)
	receivingLocker := seedLocker(t, f.db, "2 Dock Street", 3, 4)
	sender := seedUser(t, f.db, "+100", enums.MemberRoleCustomer)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		SenderID:          sender.ID,
		RecipientPhone:    "+999",
		SendingLockerID:   sendingLocker.ID,
		ReceivingLockerID: receivingLocker.ID,
		Parcel:            ParcelSpec{LengthCM: 10, WidthCM: 10, HeightCM: 10, WeightKG: 2},
	})
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeNotFound, appErr.Code())
}

func createTestOrder(t *testing.T, f *ordersFixture) *OrderDetail {
	t.Helper()
	sendingLocker := seedLocker(t, f.db, "1 Dock Street", 1, 2)
	receivingLocker := seedLocker(t, f.db, "2 Dock Street", 3, 4)
	seedCell(t, f.db, sendingLocker.ID, enums.CellSizeS)
	seedCell(t, f.db, receivingLocker.ID, enums.CellSizeS)
	sender := seedUser(t, f.db, "+100", enums.MemberRoleCustomer)
	seedUser(t, f.db, "+200", enums.MemberRoleCustomer)

	detail, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		SenderID:          sender.ID,
		RecipientPhone:    "+200",
		SendingLockerID:   sendingLocker.ID,
		ReceivingLockerID: receivingLocker.ID,
		Parcel:            ParcelSpec{LengthCM: 10, WidthCM: 10, HeightCM: 10, WeightKG: 2},
	})
	require.NoError(t, err)
	return detail
}

func TestAdvanceStatusGuardsStaleSubmits(t *testing.T) {
	f := setupOrdersService(t)
	ctx := context.Background()
	detail := createTestOrder(t, f)

	require.NoError(t, f.svc.AdvanceStatus(ctx, detail.ID, enums.OrderStatusPackaging, enums.OrderStatusWaiting))

	// A second submit with the stale expectation must fail.
	err := f.svc.AdvanceStatus(ctx, detail.ID, enums.OrderStatusPackaging, enums.OrderStatusWaiting)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())

	fields, err := f.cache.HGetAll(ctx, f.cache.OrderKey(detail.ID.String()))
	require.NoError(t, err)
	require.Equal(t, "Waiting", fields["status"])
}

// staleSnapshotRepo replays an outdated row status, standing in for a
// concurrent transaction that commits between this one's read and update.
type staleSnapshotRepo struct {
	Repository
	staleStatus enums.OrderStatus
}

func (r *staleSnapshotRepo) WithTx(tx *gorm.DB) Repository {
	return &staleSnapshotRepo{Repository: r.Repository.WithTx(tx), staleStatus: r.staleStatus}
}

func (r *staleSnapshotRepo) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := r.Repository.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.Status = r.staleStatus
	return order, nil
}

// Two racing submits can both read the same status before either commits.
// The in-Go guard passes for both, so the row predicate on the UPDATE has
// to stop the loser: here the read reports Packaging while the committed
// row is already Waiting, and the advance must come back a state conflict
// without touching the row.
func TestAdvanceStatusRefusesStaleSnapshot(t *testing.T) {
	f := setupOrdersService(t)
	ctx := context.Background()
	detail := createTestOrder(t, f)

	require.NoError(t, f.svc.AdvanceStatus(ctx, detail.ID, enums.OrderStatusPackaging, enums.OrderStatusWaiting))

	directory, err := cells.NewDirectory(cells.NewRepository(f.db))
	require.NoError(t, err)
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	repo := &staleSnapshotRepo{Repository: NewRepository(f.db), staleStatus: enums.OrderStatusPackaging}
	lagging, err := NewService(repo, users.NewRepository(f.db), directory, f.cache, gormTxRunner{db: f.db}, logg)
	require.NoError(t, err)

	err = lagging.AdvanceStatus(ctx, detail.ID, enums.OrderStatusPackaging, enums.OrderStatusWaiting)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())

	stored, err := f.svc.GetOrder(ctx, detail.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusWaiting, stored.Status)
}

func TestAdvanceStatusRejectsIllegalTransition(t *testing.T) {
	f := setupOrdersService(t)
	detail := createTestOrder(t, f)

	err := f.svc.AdvanceStatus(context.Background(), detail.ID, enums.OrderStatusPackaging, enums.OrderStatusDelivered)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())
}

func TestTerminalTransitionReleasesCells(t *testing.T) {
	f := setupOrdersService(t)
	ctx := context.Background()
	detail := createTestOrder(t, f)

	require.NoError(t, f.svc.AdvanceStatus(ctx, detail.ID, enums.OrderStatusPackaging, enums.OrderStatusCanceled))

	for _, cellID := range []uuid.UUID{detail.SendingCellID, detail.ReceivingCellID} {
		var stored models.Cell
		require.NoError(t, f.db.Where("id = ?", cellID).Take(&stored).Error)
		require.False(t, stored.Occupied)
	}
}

func TestPickUpAndDropShipperFlow(t *testing.T) {
	f := setupOrdersService(t)
	ctx := context.Background()
	detail := createTestOrder(t, f)
	shipper := seedUser(t, f.db, "+300", enums.MemberRoleShipper)

	require.NoError(t, f.svc.AdvanceStatus(ctx, detail.ID, enums.OrderStatusPackaging, enums.OrderStatusWaiting))

	// Unassigned shipper may not pick up.
	err := f.svc.PickUp(ctx, shipper.ID, detail.ID)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeForbidden, appErr.Code())

	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.AssignShipper(ctx, tx, []uuid.UUID{detail.ID}, shipper.ID)
	}))
	require.NoError(t, f.cache.SAdd(ctx, f.cache.ShipperKey(shipper.ID.String()), detail.ID.String()))

	require.NoError(t, f.svc.PickUp(ctx, shipper.ID, detail.ID))
	require.NoError(t, f.svc.Drop(ctx, shipper.ID, detail.ID))

	stored, err := f.svc.GetOrder(ctx, detail.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusDelivered, stored.Status)

	members, err := f.cache.SMembers(ctx, f.cache.ShipperKey(shipper.ID.String()))
	require.NoError(t, err)
	require.Empty(t, members)
}

// A cold active-set projection must not lock an assigned shipper out: the
// membership check falls back to the order row.
func TestPickUpFallsBackToOrderRowWhenSetCold(t *testing.T) {
	f := setupOrdersService(t)
	ctx := context.Background()
	detail := createTestOrder(t, f)
	shipper := seedUser(t, f.db, "+300", enums.MemberRoleShipper)

	require.NoError(t, f.svc.AdvanceStatus(ctx, detail.ID, enums.OrderStatusPackaging, enums.OrderStatusWaiting))
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.AssignShipper(ctx, tx, []uuid.UUID{detail.ID}, shipper.ID)
	}))

	// No SAdd: the set write after assignment failed or was flushed.
	require.NoError(t, f.svc.PickUp(ctx, shipper.ID, detail.ID))

	stored, err := f.svc.GetOrder(ctx, detail.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusOngoing, stored.Status)
}

func TestCachedRecordFallsBackToRelationalStore(t *testing.T) {
	f := setupOrdersService(t)
	ctx := context.Background()
	detail := createTestOrder(t, f)

	// Simulate a cache flush.
	require.NoError(t, f.cache.Del(ctx, f.cache.OrderKey(detail.ID.String())))

	record, err := f.svc.CachedRecord(ctx, detail.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPackaging, record.Status)
	require.Equal(t, detail.SendingLockerID, record.SendingLockerID)

	// The fallback rewarms the projection.
	fields, err := f.cache.HGetAll(ctx, f.cache.OrderKey(detail.ID.String()))
	require.NoError(t, err)
	require.Equal(t, "Packaging", fields["status"])
}

func TestDeleteOrderReleasesCellsAndDropsProjection(t *testing.T) {
	f := setupOrdersService(t)
	ctx := context.Background()
	detail := createTestOrder(t, f)

	require.NoError(t, f.svc.DeleteOrder(ctx, detail.ID))

	for _, cellID := range []uuid.UUID{detail.SendingCellID, detail.ReceivingCellID} {
		var stored models.Cell
		require.NoError(t, f.db.Where("id = ?", cellID).Take(&stored).Error)
		require.False(t, stored.Occupied)
	}

	fields, err := f.cache.HGetAll(ctx, f.cache.OrderKey(detail.ID.String()))
	require.NoError(t, err)
	require.Empty(t, fields)

	err = f.svc.DeleteOrder(ctx, detail.ID)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeNotFound, appErr.Code())
}

func TestDeriveSizePicksSmallestFit(t *testing.T) {
	cases := []struct {
		name string
		spec ParcelSpec
		want enums.CellSize
	}{
		{"small", ParcelSpec{LengthCM: 13, WidthCM: 15, HeightCM: 30, WeightKG: 5}, enums.CellSizeS},
		{"medium by length", ParcelSpec{LengthCM: 20, WidthCM: 15, HeightCM: 30, WeightKG: 5}, enums.CellSizeM},
		{"medium by weight", ParcelSpec{LengthCM: 10, WidthCM: 10, HeightCM: 10, WeightKG: 12}, enums.CellSizeM},
		{"large", ParcelSpec{LengthCM: 33, WidthCM: 20, HeightCM: 30, WeightKG: 50}, enums.CellSizeL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DeriveSize(tc.spec)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	_, err := DeriveSize(ParcelSpec{LengthCM: 34, WidthCM: 10, HeightCM: 10, WeightKG: 1})
	require.Error(t, err)
	_, err = DeriveSize(ParcelSpec{})
	require.Error(t, err)
}
