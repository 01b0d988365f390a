package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parcelhive/parcelhive-backend/pkg/db/models"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
	"github.com/parcelhive/parcelhive-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and parcels.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateParcel(ctx context.Context, parcel *models.Parcel) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderDetail(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error)
	FindShipperOrderInfo(ctx context.Context, orderID uuid.UUID) (*ShipperOrderInfo, error)
	ListOrdersForUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, from enums.OrderStatus, updates map[string]any) (int64, error)
	AssignShipper(ctx context.Context, orderIDs []uuid.UUID, shipperID uuid.UUID) error
	DeleteOrder(ctx context.Context, orderID uuid.UUID) error
}

// txRunner abstracts pkg/db transaction handling so tests can run against a
// plain gorm handle.
type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// recipientFinder resolves the recipient account during order creation.
type recipientFinder interface {
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
}

// Cache is the slice of the redis client the order projection needs.
type Cache interface {
	HSetAll(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	HSetField(ctx context.Context, key, field, value string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	Del(ctx context.Context, keys ...string) error
	OrderKey(orderID string) string
	ShipperKey(shipperID string) string
}

// Service drives the order lifecycle. Status and cell occupancy move only
// through these entry points.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderDetail, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error)
	CachedRecord(ctx context.Context, orderID uuid.UUID) (*CachedOrderRecord, error)
	ListOrdersForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	AdvanceStatus(ctx context.Context, orderID uuid.UUID, fromExpected, to enums.OrderStatus) error
	PickUp(ctx context.Context, shipperID, orderID uuid.UUID) error
	Drop(ctx context.Context, shipperID, orderID uuid.UUID) error
	ShipperOrderInfo(ctx context.Context, orderID uuid.UUID) (*ShipperOrderInfo, error)
	AssignShipper(ctx context.Context, tx *gorm.DB, orderIDs []uuid.UUID, shipperID uuid.UUID) error
	DeleteOrder(ctx context.Context, orderID uuid.UUID) error
}
