package tracking

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parcelhive/parcelhive-backend/pkg/logger"
	"github.com/parcelhive/parcelhive-backend/pkg/types"
)

// Conn is the slice of a websocket connection the hub needs. Satisfied by
// *websocket.Conn.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Cache is the slice of the redis client used for shipper locations.
type Cache interface {
	HSetAll(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	HSetField(ctx context.Context, key, field, value string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	ShipperKey(shipperID string) string
	ShipperLocationKey(shipperID string) string
	OrderKey(orderID string) string
}

// LocationUpdate is the payload fanned out to order viewers.
type LocationUpdate struct {
	ShipperID uuid.UUID `json:"shipper_id"`
	OrderID   uuid.UUID `json:"order_id"`
	types.Coordinate
	RecordedAt time.Time `json:"recorded_at"`
}

// Hub relays shipper positions to order viewers. Delivery is best-effort,
// at-most-once: a failed write drops the viewer, the next update supersedes
// the missed one.
type Hub struct {
	mu             sync.RWMutex
	viewersByOrder map[uuid.UUID]map[Conn]struct{}
	orderByConn    map[Conn]uuid.UUID

	cache Cache
	logg  *logger.Logger
}

// NewHub wires the live tracking hub.
func NewHub(cache Cache, logg *logger.Logger) (*Hub, error) {
	if cache == nil {
		return nil, fmt.Errorf("cache client required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Hub{
		viewersByOrder: map[uuid.UUID]map[Conn]struct{}{},
		orderByConn:    map[Conn]uuid.UUID{},
		cache:          cache,
		logg:           logg,
	}, nil
}

// RegisterViewer subscribes the connection to one order. A connection watches
// at most one order: re-registering moves it.
func (h *Hub) RegisterViewer(orderID uuid.UUID, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(conn)
	if h.viewersByOrder[orderID] == nil {
		h.viewersByOrder[orderID] = map[Conn]struct{}{}
	}
	h.viewersByOrder[orderID][conn] = struct{}{}
	h.orderByConn[conn] = orderID
}

// Unregister drops the connection from whatever order it watches. Idempotent.
func (h *Hub) Unregister(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(conn)
}

func (h *Hub) removeLocked(conn Conn) {
	orderID, ok := h.orderByConn[conn]
	if !ok {
		return
	}
	delete(h.orderByConn, conn)
	viewers := h.viewersByOrder[orderID]
	delete(viewers, conn)
	if len(viewers) == 0 {
		delete(h.viewersByOrder, orderID)
	}
}

// ViewerCount reports how many connections watch the order.
func (h *Hub) ViewerCount(orderID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewersByOrder[orderID])
}

// UpdateShipperLocation persists the shipper's last-known coordinate and
// fans it out to the viewers of every order on the shipper's active set.
func (h *Hub) UpdateShipperLocation(ctx context.Context, shipperID uuid.UUID, latitude, longitude float64) error {
	recordedAt := time.Now().UTC()
	lat := strconv.FormatFloat(latitude, 'f', -1, 64)
	lon := strconv.FormatFloat(longitude, 'f', -1, 64)

	fields := map[string]string{
		"latitude":    lat,
		"longitude":   lon,
		"recorded_at": recordedAt.Format(time.RFC3339Nano),
	}
	if err := h.cache.HSetAll(ctx, h.cache.ShipperLocationKey(shipperID.String()), fields, 0); err != nil {
		return fmt.Errorf("store shipper location: %w", err)
	}

	members, err := h.cache.SMembers(ctx, h.cache.ShipperKey(shipperID.String()))
	if err != nil {
		return fmt.Errorf("load shipper active set: %w", err)
	}

	for _, member := range members {
		orderID, err := uuid.Parse(member)
		if err != nil {
			continue
		}
		h.annotateOrder(ctx, orderID, lat, lon)
		h.broadcast(ctx, LocationUpdate{
			ShipperID:  shipperID,
			OrderID:    orderID,
			Coordinate: types.Coordinate{Latitude: latitude, Longitude: longitude},
			RecordedAt: recordedAt,
		})
	}
	return nil
}

// annotateOrder stamps the last-known coordinate onto the order projection.
// Best-effort: a stale coordinate on the hash is harmless.
func (h *Hub) annotateOrder(ctx context.Context, orderID uuid.UUID, lat, lon string) {
	key := h.cache.OrderKey(orderID.String())
	if err := h.cache.HSetField(ctx, key, "latitude", lat); err != nil {
		h.logg.Error(ctx, "annotate order latitude failed", err)
		return
	}
	if err := h.cache.HSetField(ctx, key, "longitude", lon); err != nil {
		h.logg.Error(ctx, "annotate order longitude failed", err)
	}
}

// broadcast writes the update to every viewer of one order. Failed writers
// are dropped: the client is expected to reconnect.
func (h *Hub) broadcast(ctx context.Context, update LocationUpdate) {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.viewersByOrder[update.OrderID]))
	for conn := range h.viewersByOrder[update.OrderID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(update); err != nil {
			h.logg.Error(ctx, "viewer write failed, dropping connection", err)
			h.Unregister(conn)
			_ = conn.Close()
		}
	}
}
