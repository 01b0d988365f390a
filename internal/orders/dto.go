package orders

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/parcelhive/parcelhive-backend/pkg/db/models"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
	pkgerrors "github.com/parcelhive/parcelhive-backend/pkg/errors"
)

// ParcelSpec carries the physical measurements submitted at order creation.
type ParcelSpec struct {
	LengthCM int     `json:"length_cm"`
	WidthCM  int     `json:"width_cm"`
	HeightCM int     `json:"height_cm"`
	WeightKG float64 `json:"weight_kg"`
}

// sizeLimit is a fit threshold for one size class. A parcel fits the first
// class whose dimensions and weight ceiling it stays within.
type sizeLimit struct {
	size     enums.CellSize
	lengthCM int
	widthCM  int
	heightCM int
	weightKG float64
}

var sizeLimits = []sizeLimit{
	{size: enums.CellSizeS, lengthCM: 13, widthCM: 15, heightCM: 30, weightKG: 5},
	{size: enums.CellSizeM, lengthCM: 23, widthCM: 15, heightCM: 30, weightKG: 20},
	{size: enums.CellSizeL, lengthCM: 33, widthCM: 20, heightCM: 30, weightKG: 50},
}

// DeriveSize maps a parcel spec onto the smallest size class it fits.
func DeriveSize(spec ParcelSpec) (enums.CellSize, error) {
	if spec.LengthCM <= 0 || spec.WidthCM <= 0 || spec.HeightCM <= 0 || spec.WeightKG <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "parcel dimensions and weight must be positive")
	}
	for _, limit := range sizeLimits {
		if spec.LengthCM <= limit.lengthCM &&
			spec.WidthCM <= limit.widthCM &&
			spec.HeightCM <= limit.heightCM &&
			spec.WeightKG <= limit.weightKG {
			return limit.size, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, "parcel too large for any cell size")
}

// CreateOrderInput is everything CreateOrder needs from the caller.
type CreateOrderInput struct {
	SenderID          uuid.UUID
	RecipientPhone    string
	SendingLockerID   uuid.UUID
	ReceivingLockerID uuid.UUID
	Parcel            ParcelSpec
}

// ParcelDTO is the parcel slice of an order detail.
type ParcelDTO struct {
	LengthCM int            `json:"length_cm"`
	WidthCM  int            `json:"width_cm"`
	HeightCM int            `json:"height_cm"`
	WeightKG float64        `json:"weight_kg"`
	Size     enums.CellSize `json:"size"`
}

// OrderDetail is the full relational view of one order.
type OrderDetail struct {
	ID                uuid.UUID         `json:"id"`
	SenderID          uuid.UUID         `json:"sender_id"`
	RecipientID       uuid.UUID         `json:"recipient_id"`
	ShipperID         *uuid.UUID        `json:"shipper_id,omitempty"`
	Status            enums.OrderStatus `json:"status"`
	SendingLockerID   uuid.UUID         `json:"sending_locker_id"`
	SendingCellID     uuid.UUID         `json:"sending_cell_id"`
	ReceivingLockerID uuid.UUID         `json:"receiving_locker_id"`
	ReceivingCellID   uuid.UUID         `json:"receiving_cell_id"`
	Parcel            ParcelDTO         `json:"parcel"`
	OrderingDate      time.Time         `json:"ordering_date"`
	SendingDate       *time.Time        `json:"sending_date,omitempty"`
	ReceivingDate     *time.Time        `json:"receiving_date,omitempty"`
}

// OrderSummary is the list-row view returned by user order listings.
type OrderSummary struct {
	ID           uuid.UUID         `json:"id"`
	Status       enums.OrderStatus `json:"status"`
	Size         enums.CellSize    `json:"size,omitempty"`
	OrderingDate time.Time         `json:"ordering_date"`
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ShipperOrderInfo is what a shipper sees when preparing a trip: the order
// plus both locker addresses and coordinates.
type ShipperOrderInfo struct {
	OrderID            uuid.UUID         `json:"order_id"`
	Status             enums.OrderStatus `json:"status"`
	Size               enums.CellSize    `json:"size"`
	WeightKG           float64           `json:"weight_kg"`
	SendingLockerID    uuid.UUID         `json:"sending_locker_id"`
	SendingAddress     string            `json:"sending_address"`
	SendingLatitude    float64           `json:"sending_latitude"`
	SendingLongitude   float64           `json:"sending_longitude"`
	ReceivingLockerID  uuid.UUID         `json:"receiving_locker_id"`
	ReceivingAddress   string            `json:"receiving_address"`
	ReceivingLatitude  float64           `json:"receiving_latitude"`
	ReceivingLongitude float64           `json:"receiving_longitude"`
}

// CachedOrderRecord is the fast-path projection of an order held in the
// cache hash. The relational store stays the system of record.
type CachedOrderRecord struct {
	OrderID           uuid.UUID
	Status            enums.OrderStatus
	SendingLockerID   uuid.UUID
	SendingCellID     uuid.UUID
	ReceivingLockerID uuid.UUID
	ReceivingCellID   uuid.UUID
	Size              enums.CellSize
	WeightKG          float64
	Latitude          *float64
	Longitude         *float64
}

// StatusField is the hash field carrying the order status. Scanners read it
// on its own to filter projections before pulling the whole hash.
const StatusField = fieldStatus

const (
	fieldStatus            = "status"
	fieldSendingLockerID   = "sending_locker_id"
	fieldSendingCellID     = "sending_cell_id"
	fieldReceivingLockerID = "receiving_locker_id"
	fieldReceivingCellID   = "receiving_cell_id"
	fieldSize              = "size"
	fieldWeightKG          = "weight_kg"
	fieldLatitude          = "latitude"
	fieldLongitude         = "longitude"
)

// Fields flattens the record into the hash layout stored in the cache.
func (r CachedOrderRecord) Fields() map[string]string {
	fields := map[string]string{
		fieldStatus:            r.Status.String(),
		fieldSendingLockerID:   r.SendingLockerID.String(),
		fieldSendingCellID:     r.SendingCellID.String(),
		fieldReceivingLockerID: r.ReceivingLockerID.String(),
		fieldReceivingCellID:   r.ReceivingCellID.String(),
		fieldSize:              string(r.Size),
		fieldWeightKG:          strconv.FormatFloat(r.WeightKG, 'f', -1, 64),
	}
	if r.Latitude != nil {
		fields[fieldLatitude] = strconv.FormatFloat(*r.Latitude, 'f', -1, 64)
	}
	if r.Longitude != nil {
		fields[fieldLongitude] = strconv.FormatFloat(*r.Longitude, 'f', -1, 64)
	}
	return fields
}

// RecordFromFields rebuilds a projection from its cache hash. Unparseable
// hashes come back as an error so callers fall through to the relational
// store instead of acting on garbage.
func RecordFromFields(orderID uuid.UUID, fields map[string]string) (*CachedOrderRecord, error) {
	status, err := enums.ParseOrderStatus(fields[fieldStatus])
	if err != nil {
		return nil, err
	}
	record := &CachedOrderRecord{OrderID: orderID, Status: status}
	if record.SendingLockerID, err = uuid.Parse(fields[fieldSendingLockerID]); err != nil {
		return nil, err
	}
	if record.SendingCellID, err = uuid.Parse(fields[fieldSendingCellID]); err != nil {
		return nil, err
	}
	if record.ReceivingLockerID, err = uuid.Parse(fields[fieldReceivingLockerID]); err != nil {
		return nil, err
	}
	if record.ReceivingCellID, err = uuid.Parse(fields[fieldReceivingCellID]); err != nil {
		return nil, err
	}
	if record.Size, err = enums.ParseCellSize(fields[fieldSize]); err != nil {
		return nil, err
	}
	if record.WeightKG, err = strconv.ParseFloat(fields[fieldWeightKG], 64); err != nil {
		return nil, err
	}
	if raw, ok := fields[fieldLatitude]; ok {
		lat, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, err
		}
		record.Latitude = &lat
	}
	if raw, ok := fields[fieldLongitude]; ok {
		lon, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, err
		}
		record.Longitude = &lon
	}
	return record, nil
}

func orderToSummary(order *models.Order) OrderSummary {
	summary := OrderSummary{
		ID:           order.ID,
		Status:       order.Status,
		OrderingDate: order.OrderingDate,
	}
	if order.Parcel != nil {
		summary.Size = order.Parcel.Size
	}
	return summary
}
