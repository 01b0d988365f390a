package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/parcelhive/parcelhive-backend/pkg/enums"
)

// Parcel is the 1:1 child of an Order. The size class is computed once at
// order creation from the fit thresholds and never recomputed.
type Parcel struct {
	OrderID   uuid.UUID      `gorm:"column:order_id;type:uuid;primaryKey"`
	LengthCM  int            `gorm:"column:length_cm;not null"`
	WidthCM   int            `gorm:"column:width_cm;not null"`
	HeightCM  int            `gorm:"column:height_cm;not null"`
	WeightKG  float64        `gorm:"column:weight_kg;not null"`
	Size      enums.CellSize `gorm:"column:size;type:text;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
}
