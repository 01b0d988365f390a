package otp

import (
	"context"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/parcelhive/parcelhive-backend/internal/orders"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
	pkgerrors "github.com/parcelhive/parcelhive-backend/pkg/errors"
	"github.com/parcelhive/parcelhive-backend/pkg/logger"
	"github.com/parcelhive/parcelhive-backend/pkg/redis"
)

type stubOrderManager struct {
	detail   *orders.OrderDetail
	advanced [][2]enums.OrderStatus
}

func (m *stubOrderManager) GetOrder(_ context.Context, _ uuid.UUID) (*orders.OrderDetail, error) {
	if m.detail == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return m.detail, nil
}

func (m *stubOrderManager) AdvanceStatus(_ context.Context, _ uuid.UUID, from, to enums.OrderStatus) error {
	m.advanced = append(m.advanced, [2]enums.OrderStatus{from, to})
	m.detail.Status = to
	return nil
}

type stubOTPCache struct {
	values map[string]string
}

func newStubOTPCache() *stubOTPCache {
	return &stubOTPCache{values: map[string]string{}}
}

func (c *stubOTPCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	c.values[key] = value.(string)
	return nil
}

func (c *stubOTPCache) Get(_ context.Context, key string) (string, error) {
	value, ok := c.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (c *stubOTPCache) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.values, key)
	}
	return nil
}

func (c *stubOTPCache) OTPKey(orderID string) string {
	return "ph:otp:" + orderID
}

type hardwareCall struct {
	op       string
	lockerID uuid.UUID
	targetID uuid.UUID
}

type stubHardware struct {
	calls []hardwareCall
}

func (h *stubHardware) PrintQR(_ context.Context, lockerID, orderID uuid.UUID, _ string) error {
	h.calls = append(h.calls, hardwareCall{op: "print_qr", lockerID: lockerID, targetID: orderID})
	return nil
}

func (h *stubHardware) Unlock(_ context.Context, lockerID, cellID uuid.UUID) error {
	h.calls = append(h.calls, hardwareCall{op: "open", lockerID: lockerID, targetID: cellID})
	return nil
}

type otpFixture struct {
	svc      Service
	orders   *stubOrderManager
	cache    *stubOTPCache
	hardware *stubHardware
	detail   *orders.OrderDetail
}

func setupOTP(t *testing.T, status enums.OrderStatus) *otpFixture {
	t.Helper()
	detail := &orders.OrderDetail{
		ID:                uuid.New(),
		SenderID:          uuid.New(),
		RecipientID:       uuid.New(),
		Status:            status,
		SendingLockerID:   uuid.New(),
		SendingCellID:     uuid.New(),
		ReceivingLockerID: uuid.New(),
		ReceivingCellID:   uuid.New(),
	}
	manager := &stubOrderManager{detail: detail}
	cache := newStubOTPCache()
	hardware := &stubHardware{}
	logg := logger.New(logger.Options{ServiceName: "otp-test", Output: io.Discard})
	svc, err := NewService(manager, cache, hardware, 120*time.Second, logg)
	require.NoError(t, err)
	return &otpFixture{svc: svc, orders: manager, cache: cache, hardware: hardware, detail: detail}
}

func (f *otpFixture) sender() Actor {
	return Actor{UserID: f.detail.SenderID, Role: enums.MemberRoleCustomer}
}

func (f *otpFixture) recipient() Actor {
	return Actor{UserID: f.detail.RecipientID, Role: enums.MemberRoleCustomer}
}

func TestGeneratePrintsQRAtSendingLocker(t *testing.T) {
	f := setupOTP(t, enums.OrderStatusPackaging)

	code, err := f.svc.Generate(context.Background(), f.sender(), f.detail.ID)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^\d{6}$`), code)

	require.Len(t, f.hardware.calls, 1)
	require.Equal(t, "print_qr", f.hardware.calls[0].op)
	require.Equal(t, f.detail.SendingLockerID, f.hardware.calls[0].lockerID)
}

func TestGenerateOverwritesLiveCode(t *testing.T) {
	f := setupOTP(t, enums.OrderStatusPackaging)
	ctx := context.Background()

	_, err := f.svc.Generate(ctx, f.sender(), f.detail.ID)
	require.NoError(t, err)
	second, err := f.svc.Generate(ctx, f.sender(), f.detail.ID)
	require.NoError(t, err)

	stored, err := f.cache.Get(ctx, f.cache.OTPKey(f.detail.ID.String()))
	require.NoError(t, err)
	require.Equal(t, second, stored)
	require.NoError(t, f.svc.Verify(ctx, f.sender(), f.detail.ID, second))
}

func TestGenerateRejectsStrangers(t *testing.T) {
	f := setupOTP(t, enums.OrderStatusPackaging)

	_, err := f.svc.Generate(context.Background(), Actor{UserID: uuid.New(), Role: enums.MemberRoleCustomer}, f.detail.ID)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeUnauthorized, appErr.Code())
}

func TestGenerateRejectsWrongStage(t *testing.T) {
	// The recipient has nothing to unlock while the parcel is still being packed.
	f := setupOTP(t, enums.OrderStatusPackaging)

	_, err := f.svc.Generate(context.Background(), f.recipient(), f.detail.ID)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())
}

func TestVerifyAdvancesSenderDropOff(t *testing.T) {
	f := setupOTP(t, enums.OrderStatusPackaging)
	ctx := context.Background()

	code, err := f.svc.Generate(ctx, f.sender(), f.detail.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Verify(ctx, f.sender(), f.detail.ID, code))
	require.Equal(t,
		[][2]enums.OrderStatus{{enums.OrderStatusPackaging, enums.OrderStatusWaiting}},
		f.orders.advanced)

	last := f.hardware.calls[len(f.hardware.calls)-1]
	require.Equal(t, "open", last.op)
	require.Equal(t, f.detail.SendingLockerID, last.lockerID)
	require.Equal(t, f.detail.SendingCellID, last.targetID)
}

func TestVerifyIsSingleUse(t *testing.T) {
	f := setupOTP(t, enums.OrderStatusPackaging)
	ctx := context.Background()

	code, err := f.svc.Generate(ctx, f.sender(), f.detail.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Verify(ctx, f.sender(), f.detail.ID, code))

	// The order moved to Waiting, so replay the sender stage manually: reset
	// the status and submit the burnt code again.
	f.detail.Status = enums.OrderStatusPackaging
	err = f.svc.Verify(ctx, f.sender(), f.detail.ID, code)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeNotFound, appErr.Code())
}

func TestVerifyMismatch(t *testing.T) {
	f := setupOTP(t, enums.OrderStatusPackaging)
	ctx := context.Background()

	code, err := f.svc.Generate(ctx, f.sender(), f.detail.ID)
	require.NoError(t, err)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	err = f.svc.Verify(ctx, f.sender(), f.detail.ID, wrong)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeValidation, appErr.Code())

	// A mismatch does not burn the live code.
	require.NoError(t, f.svc.Verify(ctx, f.sender(), f.detail.ID, code))
}

func TestShipperPickupStage(t *testing.T) {
	f := setupOTP(t, enums.OrderStatusWaiting)
	ctx := context.Background()
	shipperID := uuid.New()
	f.detail.ShipperID = &shipperID
	shipper := Actor{UserID: shipperID, Role: enums.MemberRoleShipper}

	code, err := f.svc.Generate(ctx, shipper, f.detail.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Verify(ctx, shipper, f.detail.ID, code))
	require.Equal(t,
		[][2]enums.OrderStatus{{enums.OrderStatusWaiting, enums.OrderStatusOngoing}},
		f.orders.advanced)
}

func TestRecipientPickupStage(t *testing.T) {
	f := setupOTP(t, enums.OrderStatusDelivered)
	ctx := context.Background()

	code, err := f.svc.Generate(ctx, f.recipient(), f.detail.ID)
	require.NoError(t, err)

	require.Len(t, f.hardware.calls, 1)
	require.Equal(t, f.detail.ReceivingLockerID, f.hardware.calls[0].lockerID)

	require.NoError(t, f.svc.Verify(ctx, f.recipient(), f.detail.ID, code))
	require.Equal(t,
		[][2]enums.OrderStatus{{enums.OrderStatusDelivered, enums.OrderStatusCompleted}},
		f.orders.advanced)

	last := f.hardware.calls[len(f.hardware.calls)-1]
	require.Equal(t, f.detail.ReceivingCellID, last.targetID)
}

func TestTTLClampedToDefault(t *testing.T) {
	manager := &stubOrderManager{}
	logg := logger.New(logger.Options{ServiceName: "otp-test", Output: io.Discard})
	svc, err := NewService(manager, newStubOTPCache(), &stubHardware{}, time.Second, logg)
	require.NoError(t, err)
	require.Equal(t, defaultTTL, svc.(*service).ttl)
}
