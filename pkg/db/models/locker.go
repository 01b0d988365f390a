package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/parcelhive/parcelhive-backend/pkg/enums"
)

// Locker is a physical multi-cell installation at a geographic site.
type Locker struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Address   string             `gorm:"column:address;not null"`
	Latitude  float64            `gorm:"column:latitude;not null"`
	Longitude float64            `gorm:"column:longitude;not null"`
	Status    enums.LockerStatus `gorm:"column:status;type:text;not null;default:'Active'"`
	Cells     []Cell             `gorm:"foreignKey:LockerID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
