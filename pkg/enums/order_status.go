package enums

import "fmt"

// OrderStatus tracks the delivery lifecycle of an order.
type OrderStatus string

const (
	OrderStatusPackaging OrderStatus = "Packaging"
	OrderStatusWaiting   OrderStatus = "Waiting"
	OrderStatusOngoing   OrderStatus = "Ongoing"
	OrderStatusDelivered OrderStatus = "Delivered"
	OrderStatusCompleted OrderStatus = "Completed"
	OrderStatusCanceled  OrderStatus = "Canceled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPackaging,
	OrderStatusWaiting,
	OrderStatusOngoing,
	OrderStatusDelivered,
	OrderStatusCompleted,
	OrderStatusCanceled,
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPackaging: {OrderStatusWaiting, OrderStatusCanceled},
	OrderStatusWaiting:   {OrderStatusOngoing, OrderStatusCanceled},
	OrderStatusOngoing:   {OrderStatusDelivered},
	OrderStatusDelivered: {OrderStatusCompleted},
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status is absorbing.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCanceled
}

// TerminalOrderStatuses lists the absorbing statuses, for query filters.
func TerminalOrderStatuses() []OrderStatus {
	return []OrderStatus{OrderStatusCompleted, OrderStatusCanceled}
}

// CanTransitionTo reports whether the lifecycle allows moving to the target status.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, candidate := range orderTransitions[s] {
		if candidate == target {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
