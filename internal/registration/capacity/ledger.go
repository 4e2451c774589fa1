// Package capacity implements admission control over the reservation ledger.
//
// Counting happens only under a row lock: Lock takes the edition row first and then
// every per-distance row in ascending id order, so all writers (single admissions,
// batches, capacity edits) acquire locks in one global order.
package capacity

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"raceday/internal/registration/models"
	"raceday/internal/registration/ports"
	"raceday/pkg/platform/sentinel"
)

// IsReserved is the ledger's definition of a held slot.
func IsReserved(r *models.Registration, now time.Time) bool {
	if r.DeletedAt != nil {
		return false
	}
	if r.Status == models.StatusConfirmed {
		return true
	}
	return r.Status.IsProvisional() && r.ExpiresAt != nil && r.ExpiresAt.After(now)
}

// Locked is the set of rows locked for one unit of work.
type Locked struct {
	Edition   *models.Edition
	Distances map[uuid.UUID]*models.Distance
}

// Lock locks editionID and the given distances. Distances outside the edition
// surface as sentinel.ErrNotFound.
func Lock(ctx context.Context, s ports.EditionStore, editionID uuid.UUID, distanceIDs ...uuid.UUID) (*Locked, error) {
	edition, err := s.LockEdition(ctx, editionID)
	if err != nil {
		return nil, fmt.Errorf("lock edition: %w", err)
	}

	ids := dedupeSorted(distanceIDs)
	locked := &Locked{Edition: edition, Distances: make(map[uuid.UUID]*models.Distance, len(ids))}
	for _, id := range ids {
		d, err := s.LockDistance(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lock distance: %w", err)
		}
		if d.EditionID != editionID {
			return nil, fmt.Errorf("distance %s not in edition: %w", id, sentinel.ErrNotFound)
		}
		locked.Distances[id] = d
	}
	return locked, nil
}

// Scope returns the ledger a locked distance draws from.
func (l *Locked) Scope(distanceID uuid.UUID) (models.ReservationScope, bool) {
	d, ok := l.Distances[distanceID]
	if !ok {
		return models.ReservationScope{}, false
	}
	return models.ScopeFor(l.Edition, d), true
}

// Result is the outcome of a capacity check.
type Result struct {
	Scope     models.ReservationScope
	Reserved  int
	Requested int
	Admitted  bool
}

// Remaining is the number of free slots, or -1 for uncapped scopes.
func (r Result) Remaining() int {
	if !r.Scope.Capped() {
		return -1
	}
	rem := *r.Scope.Limit - r.Reserved
	if rem < 0 {
		return 0
	}
	return rem
}

// Check counts reservations in scope and decides whether requested more fit.
// The caller must hold the scope's lock for the answer to be authoritative.
func Check(ctx context.Context, s ports.EditionStore, scope models.ReservationScope, now time.Time, requested int, exclude *uuid.UUID) (Result, error) {
	res := Result{Scope: scope, Requested: requested}
	if !scope.Capped() {
		res.Admitted = true
		return res, nil
	}
	reserved, err := s.CountReserved(ctx, scope, now, exclude)
	if err != nil {
		return Result{}, fmt.Errorf("count reserved: %w", err)
	}
	res.Reserved = reserved
	res.Admitted = reserved+requested <= *scope.Limit
	return res, nil
}

// Demand aggregates requested slots per scope, keyed by ReservationScope.Key.
type Demand struct {
	scopes map[string]models.ReservationScope
	counts map[string]int
	order  []string
}

// NewDemand returns an empty demand tally.
func NewDemand() *Demand {
	return &Demand{scopes: map[string]models.ReservationScope{}, counts: map[string]int{}}
}

// Add requests n slots in scope.
func (d *Demand) Add(scope models.ReservationScope, n int) {
	key := scope.Key()
	if _, ok := d.scopes[key]; !ok {
		d.scopes[key] = scope
		d.order = append(d.order, key)
	}
	d.counts[key] += n
}

// CheckAll verifies every scope in the demand and returns the first shortfall, if any.
func (d *Demand) CheckAll(ctx context.Context, s ports.EditionStore, now time.Time) (*Result, error) {
	for _, key := range d.order {
		res, err := Check(ctx, s, d.scopes[key], now, d.counts[key], nil)
		if err != nil {
			return nil, err
		}
		if !res.Admitted {
			return &res, nil
		}
	}
	return nil, nil
}

func dedupeSorted(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}
