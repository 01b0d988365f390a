package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/parcelhive/parcelhive-backend/internal/orders"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
	pkgerrors "github.com/parcelhive/parcelhive-backend/pkg/errors"
	"github.com/parcelhive/parcelhive-backend/pkg/logger"
	"github.com/parcelhive/parcelhive-backend/pkg/redis"
)

// Actor identifies the authenticated caller of an OTP operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.MemberRole
}

// orderManager is the slice of the order lifecycle the coordinator drives.
type orderManager interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*orders.OrderDetail, error)
	AdvanceStatus(ctx context.Context, orderID uuid.UUID, fromExpected, to enums.OrderStatus) error
}

// Cache is the slice of the redis client used for OTP storage.
type Cache interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	OTPKey(orderID string) string
}

// hardwareChannel issues physical locker commands.
type hardwareChannel interface {
	PrintQR(ctx context.Context, lockerID, orderID uuid.UUID, code string) error
	Unlock(ctx context.Context, lockerID, cellID uuid.UUID) error
}

// Service coordinates OTP issue and verification. It is the one place where
// the relational store, the cache, and the hardware channel must appear
// consistent to the person standing at a locker.
type Service interface {
	Generate(ctx context.Context, actor Actor, orderID uuid.UUID) (string, error)
	Verify(ctx context.Context, actor Actor, orderID uuid.UUID, code string) error
}

type service struct {
	orders   orderManager
	cache    Cache
	hardware hardwareChannel
	ttl      time.Duration
	logg     *logger.Logger
}

const (
	minTTL     = 60 * time.Second
	maxTTL     = 300 * time.Second
	defaultTTL = 120 * time.Second
)

// NewService wires the OTP coordinator. A TTL outside the allowed window is
// clamped to the default.
func NewService(orderSvc orderManager, cache Cache, hardware hardwareChannel, ttl time.Duration, logg *logger.Logger) (Service, error) {
	if orderSvc == nil {
		return nil, fmt.Errorf("order manager required")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache client required")
	}
	if hardware == nil {
		return nil, fmt.Errorf("hardware channel required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ttl < minTTL || ttl > maxTTL {
		ttl = defaultTTL
	}
	return &service{orders: orderSvc, cache: cache, hardware: hardware, ttl: ttl, logg: logg}, nil
}

// unlockStage resolves which cell an OTP opens at the order's current status
// and what the successful verification advances the order to.
type unlockStage struct {
	lockerID uuid.UUID
	cellID   uuid.UUID
	next     enums.OrderStatus
}

// stageFor applies the role/status gate shared by Generate and Verify:
// the sender opens the sending cell before drop-off, the assigned shipper
// opens it for pickup, and the recipient opens the receiving cell at the end.
func stageFor(actor Actor, detail *orders.OrderDetail) (*unlockStage, error) {
	isSender := actor.UserID == detail.SenderID
	isRecipient := actor.UserID == detail.RecipientID
	isAssignedShipper := detail.ShipperID != nil && actor.UserID == *detail.ShipperID
	if !isSender && !isRecipient && !isAssignedShipper {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "not a participant of this order")
	}

	switch detail.Status {
	case enums.OrderStatusPackaging:
		if isSender {
			return &unlockStage{
				lockerID: detail.SendingLockerID,
				cellID:   detail.SendingCellID,
				next:     enums.OrderStatusWaiting,
			}, nil
		}
	case enums.OrderStatusWaiting:
		if isAssignedShipper {
			return &unlockStage{
				lockerID: detail.SendingLockerID,
				cellID:   detail.SendingCellID,
				next:     enums.OrderStatusOngoing,
			}, nil
		}
	case enums.OrderStatusDelivered:
		if isRecipient {
			return &unlockStage{
				lockerID: detail.ReceivingLockerID,
				cellID:   detail.ReceivingCellID,
				next:     enums.OrderStatusCompleted,
			}, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("no unlock operation for role %s while order is %s", actor.Role, detail.Status))
}

// Generate issues a fresh 6-digit code, overwriting any live one, and asks
// the target locker to print the matching QR. The QR print is best-effort:
// a failed publish leaves the code usable via manual entry.
func (s *service) Generate(ctx context.Context, actor Actor, orderID uuid.UUID) (string, error) {
	detail, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	stage, err := stageFor(actor, detail)
	if err != nil {
		return "", err
	}

	code, err := generateCode()
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate otp code")
	}
	if err := s.cache.Set(ctx, s.cache.OTPKey(orderID.String()), code, s.ttl); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store otp")
	}

	if err := s.hardware.PrintQR(ctx, stage.lockerID, orderID, code); err != nil {
		s.logg.Error(ctx, "print qr command failed", err)
	}
	return code, nil
}

// Verify checks the submitted code, burns it, unlocks the target cell, and
// advances the order. The code is deleted before the unlock and the status
// advance is a compare-and-set on the order row, so a second submit can
// never open the cell twice even when both read the code before the burn.
func (s *service) Verify(ctx context.Context, actor Actor, orderID uuid.UUID, code string) error {
	detail, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	stage, err := stageFor(actor, detail)
	if err != nil {
		return err
	}

	key := s.cache.OTPKey(orderID.String())
	stored, err := s.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no live otp for this order")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read otp")
	}
	if stored != code {
		return pkgerrors.New(pkgerrors.CodeValidation, "otp does not match")
	}
	if err := s.cache.Del(ctx, key); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "burn otp")
	}

	if err := s.orders.AdvanceStatus(ctx, orderID, detail.Status, stage.next); err != nil {
		return err
	}

	if err := s.hardware.Unlock(ctx, stage.lockerID, stage.cellID); err != nil {
		s.logg.Error(ctx, "unlock command failed", err)
	}
	return nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
