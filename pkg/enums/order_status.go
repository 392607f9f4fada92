package enums

import "fmt"

// OrderStatus tracks the lifecycle of a patient order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusPaid       OrderStatus = "PAID"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusPreparing  OrderStatus = "PREPARING"
	OrderStatusReady      OrderStatus = "READY"
	OrderStatusInDelivery OrderStatus = "IN_DELIVERY"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusInDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// orderStatusEdges is the full transition graph. PAID sits between PENDING
// and CONFIRMED; pharmacies that confirm unpaid orders (cash on delivery)
// keep the direct PENDING -> CONFIRMED edge.
var orderStatusEdges = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusPaid, OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusPaid:       {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing:  {OrderStatusReady, OrderStatusCancelled},
	OrderStatusReady:      {OrderStatusInDelivery, OrderStatusCancelled},
	OrderStatusInDelivery: {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (o OrderStatus) IsTerminal() bool {
	edges, ok := orderStatusEdges[o]
	return ok && len(edges) == 0
}

// CanTransitionTo reports whether the state machine allows moving to next.
// A same-state transition is always allowed and treated as a no-op by callers.
func (o OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if o == next {
		return true
	}
	for _, candidate := range orderStatusEdges[o] {
		if candidate == next {
			return true
		}
	}
	return false
}

// TransitionDeductsStock reports whether the edge from -> next commits stock.
// Deduction is attached to the edges that leave PENDING into a paid or
// confirmed state, so it runs exactly once per order.
func TransitionDeductsStock(from, next OrderStatus) bool {
	if from != OrderStatusPending {
		return false
	}
	return next == OrderStatusPaid || next == OrderStatusConfirmed
}

// StockCommitted reports whether an order in this status has had its stock
// deducted. Cancelling such an order must restock.
func (o OrderStatus) StockCommitted() bool {
	switch o {
	case OrderStatusPaid, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusReady, OrderStatusInDelivery, OrderStatusDelivered:
		return true
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
