package dispatch

import (
	"sort"

	"github.com/google/uuid"

	"github.com/parcelhive/parcelhive-backend/internal/orders"
	"github.com/parcelhive/parcelhive-backend/pkg/types"
)

// Location is one stop of a route. A stop at a sending locker lists the
// orders to pick up there; a stop at a receiving locker lists the same
// orders as dropoffs. The coordinate is stamped at enqueue time so a
// shipper reads the whole trip from the queued payload.
type Location struct {
	LockerID uuid.UUID `json:"locker_id"`
	types.Coordinate
	Pickups  []uuid.UUID `json:"pickups,omitempty"`
	Dropoffs []uuid.UUID `json:"dropoffs,omitempty"`
}

// Route is a cache-native batch of orders for one shipper trip. Routes have
// no relational counterpart: losing one only means re-batching.
type Route struct {
	ID        int64      `json:"id"`
	Locations []Location `json:"locations"`
}

// OrderIDs returns every order referenced by the route, deduplicated.
func (r Route) OrderIDs() []uuid.UUID {
	seen := map[uuid.UUID]struct{}{}
	var ids []uuid.UUID
	for _, location := range r.Locations {
		for _, id := range append(location.Pickups, location.Dropoffs...) {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// Strategy turns the current Waiting orders into routes. Implementations
// must emit routes whose stops reference only the given orders; id
// assignment happens at enqueue time.
type Strategy interface {
	BuildRoutes(records []orders.CachedOrderRecord) []Route
}

// SamePairStrategy groups orders sharing the (sending, receiving) locker
// pair into one two-stop route. It is a placeholder batching policy, kept
// behind the Strategy interface so a real optimizer can replace it without
// touching the queue contract.
type SamePairStrategy struct{}

func (SamePairStrategy) BuildRoutes(records []orders.CachedOrderRecord) []Route {
	type pair struct {
		sending   uuid.UUID
		receiving uuid.UUID
	}
	groups := map[pair][]uuid.UUID{}
	for _, record := range records {
		key := pair{sending: record.SendingLockerID, receiving: record.ReceivingLockerID}
		groups[key] = append(groups[key], record.OrderID)
	}

	pairs := make([]pair, 0, len(groups))
	for key := range groups {
		pairs = append(pairs, key)
	}
	// Stable output: map iteration order would otherwise shuffle route ids
	// between sweeps.
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].sending != pairs[j].sending {
			return pairs[i].sending.String() < pairs[j].sending.String()
		}
		return pairs[i].receiving.String() < pairs[j].receiving.String()
	})

	routes := make([]Route, 0, len(pairs))
	for _, key := range pairs {
		ids := groups[key]
		routes = append(routes, Route{
			Locations: []Location{
				{LockerID: key.sending, Pickups: ids},
				{LockerID: key.receiving, Dropoffs: ids},
			},
		})
	}
	return routes
}
