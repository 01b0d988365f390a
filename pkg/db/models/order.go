package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/parcelhive/parcelhive-backend/pkg/enums"
)

// Order is the central delivery aggregate. The sending and receiving cells
// always match the parcel's size class and stay claimed until the order
// reaches a terminal status.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SenderID        uuid.UUID         `gorm:"column:sender_id;type:uuid;not null"`
	RecipientID     uuid.UUID         `gorm:"column:recipient_id;type:uuid;not null"`
	SendingCellID   uuid.UUID         `gorm:"column:sending_cell_id;type:uuid;not null"`
	ReceivingCellID uuid.UUID         `gorm:"column:receiving_cell_id;type:uuid;not null"`
	ShipperID       *uuid.UUID        `gorm:"column:shipper_id;type:uuid"`
	Status          enums.OrderStatus `gorm:"column:status;type:text;not null;default:'Packaging'"`
	OrderingDate    time.Time         `gorm:"column:ordering_date;autoCreateTime"`
	SendingDate     *time.Time        `gorm:"column:sending_date"`
	ReceivingDate   *time.Time        `gorm:"column:receiving_date"`
	Parcel          *Parcel           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
