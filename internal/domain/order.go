package domain

import "time"

// Order is the authoritative record the Order Store owns. See spec.md §3.
type Order struct {
	ID                  string     `json:"id"`
	ClientID            string     `json:"client_id"`
	Status              Status     `json:"status"`
	PickupAddress       string     `json:"pickup_address"`
	DeliveryAddress     string     `json:"delivery_address"`
	PackageDetails      Document   `json:"package_details,omitempty"`
	CMSReference        *string    `json:"cms_reference,omitempty"`
	WMSReference        *string    `json:"wms_reference,omitempty"`
	RouteID             *string    `json:"route_id,omitempty"`
	PickupDriverID      *string    `json:"pickup_driver_id,omitempty"`
	DeliveryDriverID    *string    `json:"delivery_driver_id,omitempty"`
	DeliveryAttempts    int        `json:"delivery_attempts"`
	MaxDeliveryAttempts int        `json:"max_delivery_attempts"`
	DeliveryNotes       *string    `json:"delivery_notes,omitempty"`
	ProofOfDelivery     Document   `json:"proof_of_delivery,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	History             []StatusHistoryEntry `json:"history,omitempty"`
}

// StatusHistoryEntry is an append-only record of one status transition,
// owned by and cascade-deleted with its Order.
type StatusHistoryEntry struct {
	ID        int64     `json:"id"`
	OldStatus *Status   `json:"old_status,omitempty"`
	NewStatus Status    `json:"new_status"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultMaxDeliveryAttempts is the default bound on delivery_attempts.
const DefaultMaxDeliveryAttempts = 3

// TransitionFields carries the optional flat-field writes that accompany a
// status transition (cms_reference, wms_reference, route_id, driver ids,
// attempt counters, notes, proof of delivery). Nil/zero fields are left
// untouched by the store.
type TransitionFields struct {
	CMSReference     *string
	WMSReference     *string
	RouteID          *string
	PickupDriverID   *string
	DeliveryDriverID *string
	DeliveryAttempts *int
	DeliveryNotes    *string
	ProofOfDelivery  Document
}
