package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parcelhive/parcelhive-backend/internal/orders"
	"github.com/parcelhive/parcelhive-backend/pkg/db/models"
	"github.com/parcelhive/parcelhive-backend/pkg/enums"
	pkgerrors "github.com/parcelhive/parcelhive-backend/pkg/errors"
	"github.com/parcelhive/parcelhive-backend/pkg/logger"
	"github.com/parcelhive/parcelhive-backend/pkg/redis"
	"github.com/parcelhive/parcelhive-backend/pkg/types"
)

// Cache is the slice of the redis client the route queue needs.
type Cache interface {
	Keys(ctx context.Context, pattern string) ([]string, error)
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Get(ctx context.Context, key string) (string, error)
	GetDel(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	SAdd(ctx context.Context, key string, members ...string) error
	OrderKeyPattern() string
	RouteKey(routeID int64) string
	RouteKeyPattern() string
	RouteSequenceKey() string
	ShipperKey(shipperID string) string
}

// shipperAssigner is the slice of the order lifecycle the engine drives.
type shipperAssigner interface {
	AssignShipper(ctx context.Context, tx *gorm.DB, orderIDs []uuid.UUID, shipperID uuid.UUID) error
}

// lockerLocator resolves the lockers behind route stops so queued routes
// carry their coordinates.
type lockerLocator interface {
	FindLocker(ctx context.Context, lockerID uuid.UUID) (*models.Locker, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the route batching engine: it turns Waiting orders into queued
// routes and hands them to shippers in FIFO order.
type Service interface {
	CollectWaitingOrders(ctx context.Context) ([]orders.CachedOrderRecord, error)
	BuildRoutes(records []orders.CachedOrderRecord) []Route
	EnqueueRoute(ctx context.Context, route Route) (int64, error)
	DequeueNextRoute(ctx context.Context) (*Route, error)
	AssignRouteToShipper(ctx context.Context, shipperID uuid.UUID, route Route) error
	Sweep(ctx context.Context) (int, error)
}

type service struct {
	cache    Cache
	strategy Strategy
	orders   shipperAssigner
	lockers  lockerLocator
	tx       txRunner
	logg     *logger.Logger
}

// NewService wires the batching engine. A nil strategy falls back to
// same-pair grouping.
func NewService(cache Cache, strategy Strategy, orderSvc shipperAssigner, lockers lockerLocator, tx txRunner, logg *logger.Logger) (Service, error) {
	if cache == nil {
		return nil, fmt.Errorf("cache client required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("shipper assigner required")
	}
	if lockers == nil {
		return nil, fmt.Errorf("locker locator required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strategy == nil {
		strategy = SamePairStrategy{}
	}
	return &service{cache: cache, strategy: strategy, orders: orderSvc, lockers: lockers, tx: tx, logg: logg}, nil
}

// CollectWaitingOrders scans the order projections for everything a shipper
// could pick up right now. Unreadable projections are skipped, not fatal:
// the relational store will rewarm them on the next read.
func (s *service) CollectWaitingOrders(ctx context.Context) ([]orders.CachedOrderRecord, error) {
	keys, err := s.cache.Keys(ctx, s.cache.OrderKeyPattern())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan order projections")
	}

	var waiting []orders.CachedOrderRecord
	for _, key := range keys {
		orderID, err := uuid.Parse(key[strings.LastIndex(key, ":")+1:])
		if err != nil {
			continue
		}
		// Most projections are past Waiting, so the status field is read
		// on its own before pulling the whole hash.
		status, err := s.cache.HGet(ctx, key, orders.StatusField)
		if err != nil || status != enums.OrderStatusWaiting.String() {
			continue
		}
		fields, err := s.cache.HGetAll(ctx, key)
		if err != nil || len(fields) == 0 {
			continue
		}
		record, err := orders.RecordFromFields(orderID, fields)
		if err != nil {
			s.logg.Error(ctx, "skipping unreadable order projection", err)
			continue
		}
		if record.Status != enums.OrderStatusWaiting {
			continue
		}
		waiting = append(waiting, *record)
	}
	return waiting, nil
}

func (s *service) BuildRoutes(records []orders.CachedOrderRecord) []Route {
	return s.strategy.BuildRoutes(records)
}

// EnqueueRoute stamps every stop with its locker coordinate and stores the
// route under the next sequence id. Empty routes are discarded and report
// id 0.
func (s *service) EnqueueRoute(ctx context.Context, route Route) (int64, error) {
	if len(route.Locations) == 0 || len(route.OrderIDs()) == 0 {
		return 0, nil
	}
	if err := s.stampCoordinates(ctx, route.Locations); err != nil {
		return 0, err
	}
	id, err := s.cache.Incr(ctx, s.cache.RouteSequenceKey())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate route id")
	}
	route.ID = id
	payload, err := json.Marshal(route)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode route")
	}
	if err := s.cache.Set(ctx, s.cache.RouteKey(id), string(payload), 0); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store route")
	}
	return id, nil
}

func (s *service) stampCoordinates(ctx context.Context, stops []Location) error {
	resolved := map[uuid.UUID]types.Coordinate{}
	for i := range stops {
		lockerID := stops[i].LockerID
		coord, ok := resolved[lockerID]
		if !ok {
			locker, err := s.lockers.FindLocker(ctx, lockerID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve route stop locker")
			}
			coord = types.Coordinate{Latitude: locker.Latitude, Longitude: locker.Longitude}
			resolved[lockerID] = coord
		}
		stops[i].Coordinate = coord
	}
	return nil
}

// DequeueNextRoute pops the lowest-numbered pending route. A nil route with
// a nil error is the normal empty-queue result.
func (s *service) DequeueNextRoute(ctx context.Context) (*Route, error) {
	keys, err := s.cache.Keys(ctx, s.cache.RouteKeyPattern())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan route queue")
	}

	ids := make([]int64, 0, len(keys))
	for _, key := range keys {
		id, err := strconv.ParseInt(key[strings.LastIndex(key, ":")+1:], 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	for len(ids) > 0 {
		lowest := 0
		for i := range ids {
			if ids[i] < ids[lowest] {
				lowest = i
			}
		}
		id := ids[lowest]
		ids = append(ids[:lowest], ids[lowest+1:]...)

		// GETDEL makes the pop atomic per key: of two shippers racing for
		// the same id, only one gets the payload, the other sees Nil and
		// moves on to the next id.
		payload, err := s.cache.GetDel(ctx, s.cache.RouteKey(id))
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "pop route")
		}
		var route Route
		if err := json.Unmarshal([]byte(payload), &route); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode route")
		}
		return &route, nil
	}
	return nil, nil
}

// AssignRouteToShipper stamps the shipper onto every order of the route in
// one transaction and registers the orders in the shipper's active set. The
// set write is a best-effort projection of the committed assignment.
func (s *service) AssignRouteToShipper(ctx context.Context, shipperID uuid.UUID, route Route) error {
	orderIDs := route.OrderIDs()
	if len(orderIDs) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "route references no orders")
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.orders.AssignShipper(ctx, tx, orderIDs, shipperID)
	})
	if err != nil {
		return err
	}

	members := make([]string, 0, len(orderIDs))
	for _, id := range orderIDs {
		members = append(members, id.String())
	}
	if err := s.cache.SAdd(ctx, s.cache.ShipperKey(shipperID.String()), members...); err != nil {
		s.logg.Error(ctx, "register shipper active set failed", err)
	}
	return nil
}

// Sweep is one batching pass: collect, group, enqueue. It returns the number
// of routes enqueued.
func (s *service) Sweep(ctx context.Context) (int, error) {
	waiting, err := s.CollectWaitingOrders(ctx)
	if err != nil {
		return 0, err
	}
	if len(waiting) == 0 {
		return 0, nil
	}

	// Orders already in a queued route must not be re-batched; otherwise a
	// second sweep would enqueue them twice before any shipper dequeues.
	queued, err := s.queuedOrderIDs(ctx)
	if err != nil {
		return 0, err
	}
	fresh := waiting[:0]
	for _, record := range waiting {
		if _, ok := queued[record.OrderID]; ok {
			continue
		}
		fresh = append(fresh, record)
	}

	enqueued := 0
	for _, route := range s.BuildRoutes(fresh) {
		id, err := s.EnqueueRoute(ctx, route)
		if err != nil {
			return enqueued, err
		}
		if id > 0 {
			enqueued++
		}
	}
	return enqueued, nil
}

func (s *service) queuedOrderIDs(ctx context.Context) (map[uuid.UUID]struct{}, error) {
	keys, err := s.cache.Keys(ctx, s.cache.RouteKeyPattern())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan route queue")
	}
	queued := map[uuid.UUID]struct{}{}
	for _, key := range keys {
		payload, err := s.cache.Get(ctx, key)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read queued route")
		}
		var route Route
		if err := json.Unmarshal([]byte(payload), &route); err != nil {
			continue
		}
		for _, id := range route.OrderIDs() {
			queued[id] = struct{}{}
		}
	}
	return queued, nil
}
