package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"raceday/internal/registration/access"
	"raceday/internal/registration/capacity"
	"raceday/internal/registration/models"
	"raceday/internal/registration/ports"
	dErrors "raceday/pkg/domain-errors"
	"raceday/pkg/platform/audit"
	"raceday/pkg/platform/sentinel"
	"raceday/pkg/requestcontext"
)

// Availability is a point-in-time view of a distance's capacity. It is read without
// the scope lock and is advisory only.
type Availability struct {
	DistanceID uuid.UUID
	EditionID  uuid.UUID
	Label      string
	PriceCents int64
	Window     models.WindowState
	Scope      models.ScopeKind
	Limit      *int
	Reserved   int
	// Remaining is nil for uncapped scopes.
	Remaining *int
}

// SoldOut reports whether no slot is currently free.
func (a *Availability) SoldOut() bool {
	return a.Remaining != nil && *a.Remaining == 0
}

// GetAvailability reports price and remaining slots for a distance.
func (s *Service) GetAvailability(ctx context.Context, distanceID uuid.UUID) (out *Availability, err error) {
	ctx, span := s.startSpan(ctx, "GetAvailability", attribute.String("distance_id", distanceID.String()))
	defer func() { endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
		d, err := st.GetDistance(ctx, distanceID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "distance not found")
			}
			return internal(err, "failed to load distance")
		}
		e, err := st.GetEdition(ctx, d.EditionID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeEventNotFound, "event not found")
			}
			return internal(err, "failed to load edition")
		}
		scope := models.ScopeFor(e, d)
		res, err := capacity.Check(ctx, st, scope, now, 0, nil)
		if err != nil {
			return internal(err, "failed to count reservations")
		}
		out = &Availability{
			DistanceID: d.ID,
			EditionID:  e.ID,
			Label:      d.Label,
			PriceCents: d.PriceAt(now),
			Window:     e.Window(now),
			Scope:      scope.Kind,
			Limit:      scope.Limit,
			Reserved:   res.Reserved,
		}
		if rem := res.Remaining(); rem >= 0 {
			out.Remaining = &rem
		}
		return nil
	})
	if err != nil {
		return nil, internal(err, "failed to load availability")
	}
	return out, nil
}

// SetDistanceCapacity changes a distance's own limit. Nil removes the limit.
func (s *Service) SetDistanceCapacity(ctx context.Context, callerID, distanceID uuid.UUID, limit *int) (err error) {
	ctx, span := s.startSpan(ctx, "SetDistanceCapacity", attribute.String("distance_id", distanceID.String()))
	defer func() { endSpan(span, err) }()

	if err := validateLimit(limit); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)
	var editionID uuid.UUID
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
		d, err := st.GetDistance(ctx, distanceID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "distance not found")
			}
			return internal(err, "failed to load distance")
		}
		editionID = d.EditionID
		if err := access.AuthorizeOrganizer(ctx, st, callerID, editionID); err != nil {
			return err
		}
		locked, err := capacity.Lock(ctx, st, editionID, distanceID)
		if err != nil {
			return internal(err, "failed to lock capacity")
		}
		prior := locked.Distances[distanceID].Capacity

		reserved := 0
		if limit != nil {
			scope := models.ReservationScope{Kind: models.ScopeKindDistance, EditionID: editionID, DistanceID: distanceID, Limit: limit}
			res, err := capacity.Check(ctx, st, scope, now, 0, nil)
			if err != nil {
				return internal(err, "failed to count reservations")
			}
			if !res.Admitted {
				return dErrors.Newf(dErrors.CodeCapacityBelowReserved, "capacity %d is below the %d places already reserved", *limit, res.Reserved)
			}
			reserved = res.Reserved
		}
		if err := st.UpdateDistanceCapacity(ctx, distanceID, limit); err != nil {
			return internal(err, "failed to update capacity")
		}
		return s.auditCapacity(ctx, st, editionID, "distance:"+distanceID.String(), prior, limit, reserved)
	})
	if err != nil {
		return internal(err, "failed to set distance capacity")
	}
	s.revalidate(ctx, editionID)
	return nil
}

// SetSharedCapacity changes the edition-wide pool limit. Nil removes the pool.
func (s *Service) SetSharedCapacity(ctx context.Context, callerID, editionID uuid.UUID, limit *int) (err error) {
	ctx, span := s.startSpan(ctx, "SetSharedCapacity", attribute.String("edition_id", editionID.String()))
	defer func() { endSpan(span, err) }()

	if err := validateLimit(limit); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
		if err := access.AuthorizeOrganizer(ctx, st, callerID, editionID); err != nil {
			return err
		}
		locked, err := capacity.Lock(ctx, st, editionID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeEventNotFound, "event not found")
			}
			return internal(err, "failed to lock capacity")
		}
		prior := locked.Edition.SharedCapacity

		reserved := 0
		if limit != nil {
			scope := models.ReservationScope{Kind: models.ScopeKindPool, EditionID: editionID, Limit: limit}
			res, err := capacity.Check(ctx, st, scope, now, 0, nil)
			if err != nil {
				return internal(err, "failed to count reservations")
			}
			if !res.Admitted {
				return dErrors.Newf(dErrors.CodeCapacityBelowReserved, "capacity %d is below the %d places already reserved", *limit, res.Reserved)
			}
			reserved = res.Reserved
		}
		if err := st.UpdateEditionSharedCapacity(ctx, editionID, limit); err != nil {
			return internal(err, "failed to update capacity")
		}
		return s.auditCapacity(ctx, st, editionID, "edition:"+editionID.String(), prior, limit, reserved)
	})
	if err != nil {
		return internal(err, "failed to set shared capacity")
	}
	s.revalidate(ctx, editionID)
	return nil
}

func validateLimit(limit *int) error {
	if limit != nil && *limit < 0 {
		return dErrors.New(dErrors.CodeValidation, "capacity must not be negative")
	}
	return nil
}

func (s *Service) auditCapacity(ctx context.Context, st ports.Store, editionID uuid.UUID, subject string, prior, next *int, reserved int) error {
	ev := audit.New(audit.EventCapacityChanged, requestcontext.Now(ctx))
	ev.ActorID = requestcontext.UserID(ctx)
	ev.EditionID = editionID
	ev.Subject = subject
	ev.RequestID = requestcontext.RequestID(ctx)
	ev.Details = map[string]any{
		"from":     limitDetail(prior),
		"to":       limitDetail(next),
		"reserved": reserved,
	}
	if err := st.AppendAudit(ctx, ev); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write audit record")
	}
	return nil
}

func limitDetail(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
