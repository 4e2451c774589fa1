package models

import (
	"fmt"

	"github.com/google/uuid"
)

// ScopeKind distinguishes the two capacity ledgers.
type ScopeKind string

const (
	ScopeKindNone     ScopeKind = "none"
	ScopeKindPool     ScopeKind = "edition_pool"
	ScopeKindDistance ScopeKind = "distance"
)

// ReservationScope names the row whose lock serialises admissions and the set of
// registrations counted against one limit.
type ReservationScope struct {
	Kind       ScopeKind
	EditionID  uuid.UUID
	DistanceID uuid.UUID
	// Limit is nil for uncapped scopes.
	Limit *int
}

// Capped reports whether the scope enforces a limit.
func (s ReservationScope) Capped() bool {
	return s.Kind != ScopeKindNone && s.Limit != nil
}

// Key is a stable identity used to group rows that share a ledger.
func (s ReservationScope) Key() string {
	switch s.Kind {
	case ScopeKindPool:
		return fmt.Sprintf("pool:%s", s.EditionID)
	case ScopeKindDistance:
		return fmt.Sprintf("distance:%s", s.DistanceID)
	}
	return fmt.Sprintf("none:%s", s.DistanceID)
}

// ScopeFor resolves which ledger a distance draws from. An edition with a shared
// capacity pools all of its shared-pool distances; anything else is checked per
// distance, and a distance without a capacity is uncapped.
func ScopeFor(e *Edition, d *Distance) ReservationScope {
	if e.SharedCapacity != nil && d.CapacityScope == ScopeSharedPool {
		limit := *e.SharedCapacity
		return ReservationScope{Kind: ScopeKindPool, EditionID: e.ID, Limit: &limit}
	}
	if d.Capacity != nil {
		limit := *d.Capacity
		return ReservationScope{Kind: ScopeKindDistance, EditionID: e.ID, DistanceID: d.ID, Limit: &limit}
	}
	return ReservationScope{Kind: ScopeKindNone, EditionID: e.ID, DistanceID: d.ID}
}
