package domain

import "testing"

func TestPrefixIndexOrdering(t *testing.T) {
	cases := []struct {
		status Status
		want   int
	}{
		{StatusPending, 0},
		{StatusCMSRegistered, 1},
		{StatusWMSReceived, 2},
		{StatusRouteOptimized, 3},
		{StatusReady, 4},
		{StatusFailed, -1},
		{StatusPickupAssigned, -1},
	}
	for _, c := range cases {
		if got := PrefixIndex(c.status); got != c.want {
			t.Errorf("PrefixIndex(%s) = %d, want %d", c.status, got, c.want)
		}
	}
}

func TestPickupDriverRequired(t *testing.T) {
	required := []Status{StatusPickupAssigned, StatusPickingUp, StatusPickedUp, StatusAtWarehouse, StatusOutForDelivery, StatusDeliveryAttempt, StatusDelivered}
	for _, s := range required {
		if !PickupDriverRequired(s) {
			t.Errorf("expected pickup driver required for %s", s)
		}
	}
	notRequired := []Status{StatusPending, StatusCMSRegistered, StatusReady, StatusFailed, StatusCancelled}
	for _, s := range notRequired {
		if PickupDriverRequired(s) {
			t.Errorf("expected pickup driver not required for %s", s)
		}
	}
}

func TestDeliveryDriverRequired(t *testing.T) {
	required := []Status{StatusOutForDelivery, StatusDeliveryAttempt, StatusDelivered}
	for _, s := range required {
		if !DeliveryDriverRequired(s) {
			t.Errorf("expected delivery driver required for %s", s)
		}
	}
	if DeliveryDriverRequired(StatusPickupAssigned) {
		t.Error("pickup assigned should not require delivery driver")
	}
}
