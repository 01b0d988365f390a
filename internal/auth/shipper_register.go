package auth

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/parcelhive/parcelhive-backend/internal/users"
	"github.com/parcelhive/parcelhive-backend/pkg/config"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
	pkgerrors "github.com/parcelhive/parcelhive-backend/pkg/errors"
	"github.com/parcelhive/parcelhive-backend/pkg/security"
)

const tempPasswordLength = 12

// ShipperRegisterRequest contains the payload for the admin-driven shipper
// onboarding flow. The account receives a generated temporary password.
type ShipperRegisterRequest struct {
	FullName string `json:"full_name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required"`
}

// ShipperRegisterResponse returns the created account and its one-time credentials.
type ShipperRegisterResponse struct {
	User         users.UserDTO `json:"user"`
	TempPassword string        `json:"temp_password"`
}

// ShipperRegisterService handles creating shipper accounts.
type ShipperRegisterService interface {
	Register(ctx context.Context, req ShipperRegisterRequest) (*ShipperRegisterResponse, error)
}

// ShipperRegisterServiceParams names the dependencies for the shipper onboarding flow.
type ShipperRegisterServiceParams struct {
	TxRunner       txRunner
	PasswordConfig config.PasswordConfig
}

type shipperRegisterService struct {
	tx          txRunner
	passwordCfg config.PasswordConfig
}

// NewShipperRegisterService builds a shipper onboarding service.
func NewShipperRegisterService(params ShipperRegisterServiceParams) (ShipperRegisterService, error) {
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &shipperRegisterService{
		tx:          params.TxRunner,
		passwordCfg: params.PasswordConfig,
	}, nil
}

func (s *shipperRegisterService) Register(ctx context.Context, req ShipperRegisterRequest) (*ShipperRegisterResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	phone := normalizePhone(req.Phone)
	if phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone is required")
	}
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "full_name is required")
	}

	tempPassword, err := security.GenerateTempPassword(tempPasswordLength)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate temp password")
	}
	passwordHash, err := security.HashPassword(tempPassword, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var created users.UserDTO
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := users.NewRepository(tx)

		if err := ensureIdentityFree(ctx, userRepo, email, phone); err != nil {
			return err
		}

		user, err := userRepo.Create(ctx, users.CreateUserDTO{
			Email:        email,
			Phone:        phone,
			FullName:     fullName,
			PasswordHash: passwordHash,
			Role:         enums.MemberRoleShipper,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
		}

		created = users.FromModel(user)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ShipperRegisterResponse{User: created, TempPassword: tempPassword}, nil
}
