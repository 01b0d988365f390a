package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parcelhive/parcelhive-backend/pkg/db/models"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
	"github.com/parcelhive/parcelhive-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds the gorm-backed orders repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Omit("Parcel").Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) CreateParcel(ctx context.Context, parcel *models.Parcel) error {
	return r.db.WithContext(ctx).Create(parcel).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Parcel").
		Where("id = ?", orderID).
		Take(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderDetail(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error) {
	order, err := r.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var row struct {
		SendingLockerID   uuid.UUID
		ReceivingLockerID uuid.UUID
	}
	err = r.db.WithContext(ctx).
		Table("orders").
		Select("sc.locker_id AS sending_locker_id, rc.locker_id AS receiving_locker_id").
		Joins("JOIN cells sc ON sc.id = orders.sending_cell_id").
		Joins("JOIN cells rc ON rc.id = orders.receiving_cell_id").
		Where("orders.id = ?", orderID).
		Take(&row).Error
	if err != nil {
		return nil, err
	}

	detail := &OrderDetail{
		ID:                order.ID,
		SenderID:          order.SenderID,
		RecipientID:       order.RecipientID,
		ShipperID:         order.ShipperID,
		Status:            order.Status,
		SendingLockerID:   row.SendingLockerID,
		SendingCellID:     order.SendingCellID,
		ReceivingLockerID: row.ReceivingLockerID,
		ReceivingCellID:   order.ReceivingCellID,
		OrderingDate:      order.OrderingDate,
		SendingDate:       order.SendingDate,
		ReceivingDate:     order.ReceivingDate,
	}
	if order.Parcel != nil {
		detail.Parcel = ParcelDTO{
			LengthCM: order.Parcel.LengthCM,
			WidthCM:  order.Parcel.WidthCM,
			HeightCM: order.Parcel.HeightCM,
			WeightKG: order.Parcel.WeightKG,
			Size:     order.Parcel.Size,
		}
	}
	return detail, nil
}

// shipperInfoRow flattens the order/cell/locker join for trip preparation.
type shipperInfoRow struct {
	OrderID            uuid.UUID
	Status             enums.OrderStatus
	Size               enums.CellSize
	WeightKG           float64
	SendingLockerID    uuid.UUID
	SendingAddress     string
	SendingLatitude    float64
	SendingLongitude   float64
	ReceivingLockerID  uuid.UUID
	ReceivingAddress   string
	ReceivingLatitude  float64
	ReceivingLongitude float64
}

func (r *repository) FindShipperOrderInfo(ctx context.Context, orderID uuid.UUID) (*ShipperOrderInfo, error) {
	var row shipperInfoRow
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select(`orders.id AS order_id, orders.status, parcels.size, parcels.weight_kg,
			sl.id AS sending_locker_id, sl.address AS sending_address,
			sl.latitude AS sending_latitude, sl.longitude AS sending_longitude,
			rl.id AS receiving_locker_id, rl.address AS receiving_address,
			rl.latitude AS receiving_latitude, rl.longitude AS receiving_longitude`).
		Joins("JOIN parcels ON parcels.order_id = orders.id").
		Joins("JOIN cells sc ON sc.id = orders.sending_cell_id").
		Joins("JOIN lockers sl ON sl.id = sc.locker_id").
		Joins("JOIN cells rc ON rc.id = orders.receiving_cell_id").
		Joins("JOIN lockers rl ON rl.id = rc.locker_id").
		Where("orders.id = ?", orderID).
		Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &ShipperOrderInfo{
		OrderID:            row.OrderID,
		Status:             row.Status,
		Size:               row.Size,
		WeightKG:           row.WeightKG,
		SendingLockerID:    row.SendingLockerID,
		SendingAddress:     row.SendingAddress,
		SendingLatitude:    row.SendingLatitude,
		SendingLongitude:   row.SendingLongitude,
		ReceivingLockerID:  row.ReceivingLockerID,
		ReceivingAddress:   row.ReceivingAddress,
		ReceivingLatitude:  row.ReceivingLatitude,
		ReceivingLongitude: row.ReceivingLongitude,
	}, nil
}

func (r *repository) ListOrdersForUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	query := r.db.WithContext(ctx).
		Preload("Parcel").
		Where("sender_id = ? OR recipient_id = ?", userID, userID)
	if cursor != nil {
		query = query.Where("(created_at, id) > (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var orders []models.Order
	err := query.
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrderStatus applies updates only while the row still carries the
// expected status. A zero row count means a concurrent transition won the
// row first; the caller decides how to report it.
func (r *repository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, from enums.OrderStatus, updates map[string]any) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Where("status = ?", from).
		Updates(updates)
	return result.RowsAffected, result.Error
}

// AssignShipper stamps the shipper on every order of a route. All rows must
// still be unassigned and Waiting: a shortfall means another assignment got
// there first, and the whole update is reported as a failure so the caller's
// transaction rolls back.
func (r *repository) AssignShipper(ctx context.Context, orderIDs []uuid.UUID, shipperID uuid.UUID) error {
	if len(orderIDs) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id IN ?", orderIDs).
		Where("shipper_id IS NULL").
		Where("status = ?", enums.OrderStatusWaiting).
		Update("shipper_id", shipperID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != int64(len(orderIDs)) {
		return fmt.Errorf("assigned %d of %d orders", result.RowsAffected, len(orderIDs))
	}
	return nil
}

func (r *repository) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Delete(&models.Parcel{}).Error; err != nil {
		return err
	}
	result := r.db.WithContext(ctx).
		Where("id = ?", orderID).
		Delete(&models.Order{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
