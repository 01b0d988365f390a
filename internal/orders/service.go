package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parcelhive/parcelhive-backend/internal/cells"
	"github.com/parcelhive/parcelhive-backend/pkg/db/models"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
	pkgerrors "github.com/parcelhive/parcelhive-backend/pkg/errors"
	"github.com/parcelhive/parcelhive-backend/pkg/logger"
	"github.com/parcelhive/parcelhive-backend/pkg/pagination"
)

type service struct {
	repo      Repository
	users     recipientFinder
	directory cells.Directory
	cache     Cache
	tx        txRunner
	logg      *logger.Logger
}

// NewService wires the order lifecycle manager.
func NewService(repo Repository, users recipientFinder, directory cells.Directory, cache Cache, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if users == nil {
		return nil, fmt.Errorf("recipient finder required")
	}
	if directory == nil {
		return nil, fmt.Errorf("cell directory required")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache client required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, users: users, directory: directory, cache: cache, tx: tx, logg: logg}, nil
}

// CreateOrder claims one cell in each locker, persists the order and parcel,
// and warms the cache projection. Every failure before commit leaves no
// persisted state: the claims happen inside the same transaction.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderDetail, error) {
	if input.SenderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sender id required")
	}
	if input.RecipientPhone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient phone required")
	}
	if input.SendingLockerID == uuid.Nil || input.ReceivingLockerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sending and receiving locker ids required")
	}
	if input.SendingLockerID == input.ReceivingLockerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sending and receiving lockers must differ")
	}

	size, err := DeriveSize(input.Parcel)
	if err != nil {
		return nil, err
	}

	recipient, err := s.users.FindByPhone(ctx, input.RecipientPhone)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "recipient not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve recipient")
	}
	if recipient.ID == input.SenderID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient must differ from sender")
	}

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sendingCell, err := s.directory.Allocate(ctx, tx, input.SendingLockerID, size)
		if err != nil {
			return err
		}
		receivingCell, err := s.directory.Allocate(ctx, tx, input.ReceivingLockerID, size)
		if err != nil {
			return err
		}

		repo := s.repo.WithTx(tx)
		order = &models.Order{
			ID:              uuid.New(),
			SenderID:        input.SenderID,
			RecipientID:     recipient.ID,
			SendingCellID:   sendingCell.ID,
			ReceivingCellID: receivingCell.ID,
			Status:          enums.OrderStatusPackaging,
		}
		if _, err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
		}
		order.Parcel = &models.Parcel{
			OrderID:  order.ID,
			LengthCM: input.Parcel.LengthCM,
			WidthCM:  input.Parcel.WidthCM,
			HeightCM: input.Parcel.HeightCM,
			WeightKG: input.Parcel.WeightKG,
			Size:     size,
		}
		if err := repo.CreateParcel(ctx, order.Parcel); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist parcel")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	record := CachedOrderRecord{
		OrderID:           order.ID,
		Status:            order.Status,
		SendingLockerID:   input.SendingLockerID,
		SendingCellID:     order.SendingCellID,
		ReceivingLockerID: input.ReceivingLockerID,
		ReceivingCellID:   order.ReceivingCellID,
		Size:              size,
		WeightKG:          input.Parcel.WeightKG,
	}
	s.writeProjection(ctx, record)

	return &OrderDetail{
		ID:                order.ID,
		SenderID:          order.SenderID,
		RecipientID:       order.RecipientID,
		Status:            order.Status,
		SendingLockerID:   input.SendingLockerID,
		SendingCellID:     order.SendingCellID,
		ReceivingLockerID: input.ReceivingLockerID,
		ReceivingCellID:   order.ReceivingCellID,
		Parcel: ParcelDTO{
			LengthCM: input.Parcel.LengthCM,
			WidthCM:  input.Parcel.WidthCM,
			HeightCM: input.Parcel.HeightCM,
			WeightKG: input.Parcel.WeightKG,
			Size:     size,
		},
		OrderingDate: order.OrderingDate,
	}, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error) {
	detail, err := s.repo.FindOrderDetail(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return detail, nil
}

// CachedRecord serves the fast-path projection, falling back to the
// relational store (and rewarming the cache) when the hash is missing or
// unreadable.
func (s *service) CachedRecord(ctx context.Context, orderID uuid.UUID) (*CachedOrderRecord, error) {
	fields, err := s.cache.HGetAll(ctx, s.cache.OrderKey(orderID.String()))
	if err == nil && len(fields) > 0 {
		record, parseErr := RecordFromFields(orderID, fields)
		if parseErr == nil {
			return record, nil
		}
		s.logg.Error(ctx, "unreadable order projection, falling back", parseErr)
	}

	detail, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	record := &CachedOrderRecord{
		OrderID:           detail.ID,
		Status:            detail.Status,
		SendingLockerID:   detail.SendingLockerID,
		SendingCellID:     detail.SendingCellID,
		ReceivingLockerID: detail.ReceivingLockerID,
		ReceivingCellID:   detail.ReceivingCellID,
		Size:              detail.Parcel.Size,
		WeightKG:          detail.Parcel.WeightKG,
	}
	s.writeProjection(ctx, *record)
	return record, nil
}

func (s *service) ListOrdersForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.ListOrdersForUser(ctx, userID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	list := &OrderList{Orders: make([]OrderSummary, 0, len(rows))}
	if len(rows) > limit {
		next := rows[limit]
		rows = rows[:limit]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID})
	}
	for i := range rows {
		list.Orders = append(list.Orders, orderToSummary(&rows[i]))
	}
	return list, nil
}

// AdvanceStatus moves the order along the lifecycle. The expected current
// status is enforced twice: in Go for a precise error message, and again as
// a predicate on the UPDATE itself so two concurrent submits cannot both
// pass off the same snapshot. Reaching a terminal status releases both
// cells in the same transaction.
func (s *service) AdvanceStatus(ctx context.Context, orderID uuid.UUID, fromExpected, to enums.OrderStatus) error {
	if !fromExpected.IsValid() || !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if !fromExpected.CanTransitionTo(to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("transition %s -> %s is not allowed", fromExpected, to))
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status != fromExpected {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order is %s, expected %s", order.Status, fromExpected))
		}

		updates := map[string]any{"status": to}
		now := time.Now().UTC()
		switch to {
		case enums.OrderStatusWaiting:
			updates["sending_date"] = now
		case enums.OrderStatusCompleted:
			updates["receiving_date"] = now
		}
		changed, err := repo.UpdateOrderStatus(ctx, orderID, fromExpected, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if changed == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order left %s under a concurrent update", fromExpected))
		}

		if to.IsTerminal() {
			if err := s.directory.Release(ctx, tx, order.SendingCellID); err != nil {
				return err
			}
			if err := s.directory.Release(ctx, tx, order.ReceivingCellID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.cache.HSetField(ctx, s.cache.OrderKey(orderID.String()), fieldStatus, to.String()); err != nil {
		s.logg.Error(ctx, "order projection status update failed", err)
	}
	return nil
}

// PickUp is the shipper collecting the parcel from the sending locker.
func (s *service) PickUp(ctx context.Context, shipperID, orderID uuid.UUID) error {
	if err := s.requireAssignedShipper(ctx, shipperID, orderID); err != nil {
		return err
	}
	return s.AdvanceStatus(ctx, orderID, enums.OrderStatusWaiting, enums.OrderStatusOngoing)
}

// Drop is the shipper depositing the parcel at the receiving locker. The
// order leaves the shipper's active set; an emptied set is removed outright.
func (s *service) Drop(ctx context.Context, shipperID, orderID uuid.UUID) error {
	if err := s.requireAssignedShipper(ctx, shipperID, orderID); err != nil {
		return err
	}
	if err := s.AdvanceStatus(ctx, orderID, enums.OrderStatusOngoing, enums.OrderStatusDelivered); err != nil {
		return err
	}

	shipperKey := s.cache.ShipperKey(shipperID.String())
	if err := s.cache.SRem(ctx, shipperKey, orderID.String()); err != nil {
		s.logg.Error(ctx, "remove order from shipper set failed", err)
		return nil
	}
	remaining, err := s.cache.SMembers(ctx, shipperKey)
	if err != nil {
		s.logg.Error(ctx, "inspect shipper set failed", err)
		return nil
	}
	if len(remaining) == 0 {
		if err := s.cache.Del(ctx, shipperKey); err != nil {
			s.logg.Error(ctx, "delete empty shipper set failed", err)
		}
	}
	return nil
}

func (s *service) ShipperOrderInfo(ctx context.Context, orderID uuid.UUID) (*ShipperOrderInfo, error) {
	info, err := s.repo.FindShipperOrderInfo(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipper order info")
	}
	return info, nil
}

// AssignShipper runs inside the caller's transaction so a route is assigned
// to its shipper all-or-nothing.
func (s *service) AssignShipper(ctx context.Context, tx *gorm.DB, orderIDs []uuid.UUID, shipperID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for shipper assignment")
	}
	if shipperID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipper id required")
	}
	if err := s.repo.WithTx(tx).AssignShipper(ctx, orderIDs, shipperID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "assign shipper")
	}
	return nil
}

// DeleteOrder is the administrative removal path. Both cells must be
// confirmed free before the order rows go away; an unconfirmed release
// aborts the whole delete.
func (s *service) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if err := s.directory.Release(ctx, tx, order.SendingCellID); err != nil {
			return err
		}
		if err := s.directory.Release(ctx, tx, order.ReceivingCellID); err != nil {
			return err
		}
		if err := repo.DeleteOrder(ctx, orderID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.cache.Del(ctx, s.cache.OrderKey(orderID.String())); err != nil {
		s.logg.Error(ctx, "delete order projection failed", err)
	}
	return nil
}

func (s *service) requireAssignedShipper(ctx context.Context, shipperID, orderID uuid.UUID) error {
	// The active set is only ever written after a committed assignment, so
	// a hit is as authoritative as the order row. A miss or a cache error
	// falls through to the relational store.
	member, err := s.cache.SIsMember(ctx, s.cache.ShipperKey(shipperID.String()), orderID.String())
	if err == nil && member {
		return nil
	}

	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.ShipperID == nil || *order.ShipperID != shipperID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order is not assigned to this shipper")
	}
	return nil
}

// writeProjection is best-effort: a cache failure after a relational commit
// is logged and never surfaced.
func (s *service) writeProjection(ctx context.Context, record CachedOrderRecord) {
	key := s.cache.OrderKey(record.OrderID.String())
	if err := s.cache.HSetAll(ctx, key, record.Fields(), 0); err != nil {
		s.logg.Error(ctx, "write order projection failed", err)
	}
}
