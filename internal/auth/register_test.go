package auth

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/parcelhive/parcelhive-backend/pkg/config"
	"github.com/parcelhive/parcelhive-backend/pkg/db/models"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
	pkgerrors "github.com/parcelhive/parcelhive-backend/pkg/errors"
	"github.com/parcelhive/parcelhive-backend/pkg/security"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func setupAuthTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:auth_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  phone TEXT NOT NULL UNIQUE,
  full_name TEXT NOT NULL,
  password_hash TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL,
  last_login_at DATETIME,
  created_at DATETIME
);`).Error)

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func sampleRegisterRequest(email, phone string) RegisterRequest {
	return RegisterRequest{
		FullName: "Jamie Rivera",
		Email:    email,
		Phone:    phone,
		Password: "Secret123!",
	}
}

func TestRegisterCreatesCustomerAccount(t *testing.T) {
	db := setupAuthTestDB(t)
	svc, err := NewRegisterService(RegisterServiceParams{
		TxRunner:       gormTxRunner{db: db},
		PasswordConfig: config.PasswordConfig{},
	})
	require.NoError(t, err)

	created, err := svc.Register(context.Background(), sampleRegisterRequest("New@Example.com", "+1 555 000 2222"))
	require.NoError(t, err)
	require.Equal(t, enums.MemberRoleCustomer, created.Role)
	require.Equal(t, "new@example.com", created.Email)
	require.Equal(t, "+15550002222", created.Phone)

	var stored models.User
	require.NoError(t, db.First(&stored, "id = ?", created.ID).Error)
	require.NotEqual(t, "Secret123!", stored.PasswordHash)

	ok, err := security.VerifyPassword("Secret123!", stored.PasswordHash)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	db := setupAuthTestDB(t)
	svc, err := NewRegisterService(RegisterServiceParams{
		TxRunner:       gormTxRunner{db: db},
		PasswordConfig: config.PasswordConfig{},
	})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), sampleRegisterRequest("dupe@example.com", "+15550003333"))
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), sampleRegisterRequest("dupe@example.com", "+15550004444"))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeConflict, typed.Code())
}

func TestRegisterRejectsDuplicatePhone(t *testing.T) {
	db := setupAuthTestDB(t)
	svc, err := NewRegisterService(RegisterServiceParams{
		TxRunner:       gormTxRunner{db: db},
		PasswordConfig: config.PasswordConfig{},
	})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), sampleRegisterRequest("first@example.com", "+15550005555"))
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), sampleRegisterRequest("second@example.com", "+1 555 000 5555"))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeConflict, typed.Code())
}

func TestShipperRegisterIssuesTempPassword(t *testing.T) {
	db := setupAuthTestDB(t)
	svc, err := NewShipperRegisterService(ShipperRegisterServiceParams{
		TxRunner:       gormTxRunner{db: db},
		PasswordConfig: config.PasswordConfig{},
	})
	require.NoError(t, err)

	resp, err := svc.Register(context.Background(), ShipperRegisterRequest{
		FullName: "Sam Courier",
		Email:    "courier@example.com",
		Phone:    "+15550006666",
	})
	require.NoError(t, err)
	require.Equal(t, enums.MemberRoleShipper, resp.User.Role)
	require.Len(t, resp.TempPassword, tempPasswordLength)

	var stored models.User
	require.NoError(t, db.First(&stored, "id = ?", resp.User.ID).Error)

	ok, err := security.VerifyPassword(resp.TempPassword, stored.PasswordHash)
	require.NoError(t, err)
	require.True(t, ok)
}
