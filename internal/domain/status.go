package domain

// Status is the order lifecycle state. The first five values form a
// totally ordered prefix the saga uses to decide idempotence: a step is
// skipped once the order's current status has advanced at or past it.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusCMSRegistered   Status = "CMS_REGISTERED"
	StatusWMSReceived     Status = "WMS_RECEIVED"
	StatusRouteOptimized  Status = "ROUTE_OPTIMIZED"
	StatusReady           Status = "READY"
	StatusPickupAssigned  Status = "PICKUP_ASSIGNED"
	StatusPickingUp       Status = "PICKING_UP"
	StatusPickedUp        Status = "PICKED_UP"
	StatusAtWarehouse     Status = "AT_WAREHOUSE"
	StatusOutForDelivery  Status = "OUT_FOR_DELIVERY"
	StatusDeliveryAttempt Status = "DELIVERY_ATTEMPTED"
	StatusDelivered       Status = "DELIVERED"
	StatusFailed          Status = "FAILED"
	StatusCancelled       Status = "CANCELLED"
)

// sagaPrefix is the totally ordered prefix spec.md §4.2 refers to for the
// idempotence probe. Index -1 (not found) means the status is outside the
// prefix and therefore disables skipping.
var sagaPrefix = []Status{
	StatusPending,
	StatusCMSRegistered,
	StatusWMSReceived,
	StatusRouteOptimized,
	StatusReady,
}

// PrefixIndex returns the index of status in the saga's ordered prefix, or
// -1 if status is not one of the five prefix states (e.g. FAILED).
func PrefixIndex(status Status) int {
	for i, s := range sagaPrefix {
		if s == status {
			return i
		}
	}
	return -1
}

// PickupDriverRequired reports whether status implies a non-null
// pickup_driver_id, per invariant 5.
func PickupDriverRequired(status Status) bool {
	switch status {
	case StatusPickupAssigned, StatusPickingUp, StatusPickedUp, StatusAtWarehouse,
		StatusOutForDelivery, StatusDeliveryAttempt, StatusDelivered:
		return true
	default:
		return false
	}
}

// DeliveryDriverRequired reports whether status implies a non-null
// delivery_driver_id, per invariant 5.
func DeliveryDriverRequired(status Status) bool {
	switch status {
	case StatusOutForDelivery, StatusDeliveryAttempt, StatusDelivered:
		return true
	default:
		return false
	}
}

// PickupActiveStatuses are the statuses the Auto-Assigner counts as active
// pickup load for a driver.
var PickupActiveStatuses = []Status{StatusPickupAssigned, StatusPickingUp, StatusPickedUp}

// DeliveryActiveStatuses are the statuses the Auto-Assigner counts as
// active delivery load for a driver.
var DeliveryActiveStatuses = []Status{StatusOutForDelivery, StatusDeliveryAttempt}
