// Package autoassign implements the load-balanced driver assignment
// described in spec.md §4.5: pick the least-loaded driver from a fixed
// roster, ties broken by roster order.
package autoassign

import (
	"context"
)

// Phase selects which half of a delivery the assignment is for.
type Phase string

const (
	Pickup   Phase = "pickup"
	Delivery Phase = "delivery"
)

// LoadCounter counts how many active orders are currently assigned to
// each driver for a phase. Implemented by the Order Store.
type LoadCounter interface {
	ActiveLoadByDriver(ctx context.Context, phase Phase) (map[string]int, error)
}

// Assigner picks the least-loaded driver from a fixed roster.
type Assigner struct {
	roster []string
}

// New builds an Assigner over roster, in the order drivers should be
// tie-broken.
func New(roster []string) *Assigner {
	return &Assigner{roster: roster}
}

// Assign returns the driver with the minimum active load for phase,
// ties broken by roster order. An empty roster yields ("", false) —
// callers should no-op and leave the order unassigned, per spec.md's
// "empty roster" edge case.
func (a *Assigner) Assign(ctx context.Context, counter LoadCounter, phase Phase) (string, bool, error) {
	if len(a.roster) == 0 {
		return "", false, nil
	}

	loads, err := counter.ActiveLoadByDriver(ctx, phase)
	if err != nil {
		return "", false, err
	}

	best := a.roster[0]
	bestLoad := loads[best]
	for _, driver := range a.roster[1:] {
		load := loads[driver]
		if load < bestLoad {
			best = driver
			bestLoad = load
		}
	}

	return best, true, nil
}
