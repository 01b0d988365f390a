package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/parcelhive/parcelhive-backend/pkg/enums"
)

// Cell is an individually lockable slot inside a Locker. A cell belongs to
// exactly one locker for its lifetime; the Occupied flag is maintained as a
// secondary index of the live-order scan and is only flipped by the cell
// directory.
type Cell struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LockerID  uuid.UUID      `gorm:"column:locker_id;type:uuid;not null"`
	Size      enums.CellSize `gorm:"column:size;type:text;not null"`
	Occupied  bool           `gorm:"column:occupied;not null;default:false"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
}
