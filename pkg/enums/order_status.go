package enums

import "fmt"

// OrderStatus is assigned by the backend; the client renders whatever it receives.
type OrderStatus string

const (
	OrderStatusReady           OrderStatus = "READY"
	OrderStatusPaid            OrderStatus = "PAID"
	OrderStatusProcessing      OrderStatus = "PROCESSING"
	OrderStatusShipped         OrderStatus = "SHIPPED"
	OrderStatusDelivered       OrderStatus = "DELIVERED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusReturnRequested OrderStatus = "RETURN_REQUESTED"
	OrderStatusReturned        OrderStatus = "RETURNED"
	OrderStatusRefunded        OrderStatus = "REFUNDED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusReady,
	OrderStatusPaid,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCanceled,
	OrderStatusReturnRequested,
	OrderStatusReturned,
	OrderStatusRefunded,
}

var orderStatusLabels = map[OrderStatus]string{
	OrderStatusReady:           "Ready",
	OrderStatusPaid:            "Paid",
	OrderStatusProcessing:      "Processing",
	OrderStatusShipped:         "Shipped",
	OrderStatusDelivered:       "Delivered",
	OrderStatusCanceled:        "Canceled",
	OrderStatusReturnRequested: "Return requested",
	OrderStatusReturned:        "Returned",
	OrderStatusRefunded:        "Refunded",
}

// OrderStatuses lists every status the backend may report.
func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(validOrderStatuses))
	copy(out, validOrderStatuses)
	return out
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// Label returns a display label; unknown values render verbatim.
func (o OrderStatus) Label() string {
	if label, ok := orderStatusLabels[o]; ok {
		return label
	}
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

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
