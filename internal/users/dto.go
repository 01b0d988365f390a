package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/parcelhive/parcelhive-backend/pkg/db/models"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
)

// UserDTO is the transport shape returned to clients.
type UserDTO struct {
	ID        uuid.UUID        `json:"id"`
	Email     string           `json:"email"`
	Phone     string           `json:"phone"`
	FullName  string           `json:"full_name"`
	Role      enums.MemberRole `json:"role"`
	CreatedAt time.Time        `json:"created_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email        string
	Phone        string
	FullName     string
	PasswordHash string
	Role         enums.MemberRole
}

// ToModel maps the DTO onto the persistence model.
func (d CreateUserDTO) ToModel() *models.User {
	role := d.Role
	if role == "" {
		role = enums.MemberRoleCustomer
	}
	return &models.User{
		ID:           uuid.New(),
		Email:        d.Email,
		Phone:        d.Phone,
		FullName:     d.FullName,
		PasswordHash: d.PasswordHash,
		Role:         role,
	}
}

// FromModel converts the persistence model to the transport shape.
func FromModel(user *models.User) UserDTO {
	return UserDTO{
		ID:        user.ID,
		Email:     user.Email,
		Phone:     user.Phone,
		FullName:  user.FullName,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}
}
