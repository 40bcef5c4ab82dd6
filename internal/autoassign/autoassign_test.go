package autoassign

import (
	"context"
	"testing"
)

type fakeCounter struct {
	loads map[string]int
}

func (f fakeCounter) ActiveLoadByDriver(ctx context.Context, phase Phase) (map[string]int, error) {
	return f.loads, nil
}

func TestAssignPicksMinimumLoad(t *testing.T) {
	a := New([]string{"d1", "d2", "d3"})
	counter := fakeCounter{loads: map[string]int{"d1": 2}}

	driver, ok, err := a.Assign(context.Background(), counter, Pickup)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected an assignment")
	}
	if driver != "d2" {
		t.Errorf("driver = %q, want d2 (first tie in roster order)", driver)
	}
}

func TestAssignEmptyRosterNoOps(t *testing.T) {
	a := New(nil)
	driver, ok, err := a.Assign(context.Background(), fakeCounter{}, Pickup)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected no-op for empty roster")
	}
	if driver != "" {
		t.Errorf("driver = %q, want empty", driver)
	}
}

func TestAssignRosterOfOneAlwaysWins(t *testing.T) {
	a := New([]string{"solo"})
	counter := fakeCounter{loads: map[string]int{"solo": 99}}

	driver, ok, err := a.Assign(context.Background(), counter, Delivery)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || driver != "solo" {
		t.Errorf("driver = %q, ok = %v, want solo/true regardless of load", driver, ok)
	}
}
