package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"raceday/internal/registration/models"
	"raceday/internal/registration/ports"
	"raceday/pkg/platform/audit"
	"raceday/pkg/requestcontext"
)

const defaultSweepBatch = 500

// ExpireStaleHolds rewrites up to limit lapsed provisional registrations to cancelled.
// Capacity never depends on it: lapsed holds are already excluded from counts.
func (s *Service) ExpireStaleHolds(ctx context.Context, limit int) (expired int, err error) {
	ctx, span := s.startSpan(ctx, "ExpireStaleHolds")
	defer func() { endSpan(span, err) }()

	if limit <= 0 {
		limit = defaultSweepBatch
	}
	now := requestcontext.Now(ctx)
	var regs []*models.Registration
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
		regs, err = st.ExpireStaleHolds(ctx, now, limit)
		if err != nil {
			return internal(err, "failed to expire holds")
		}
		for _, reg := range regs {
			if err := s.appendAudit(ctx, st, audit.EventHoldExpired, reg, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, internal(err, "failed to expire holds")
	}

	s.metrics.AddHoldsExpired(len(regs))
	seen := map[uuid.UUID]struct{}{}
	for _, reg := range regs {
		if _, ok := seen[reg.EditionID]; ok {
			continue
		}
		seen[reg.EditionID] = struct{}{}
		s.revalidate(ctx, reg.EditionID)
	}
	if len(regs) > 0 {
		s.logger.InfoContext(ctx, "expired stale holds", "count", len(regs))
	}
	return len(regs), nil
}

// RunSweeper expires stale holds every interval until ctx is cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration, batch int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.ExpireStaleHolds(ctx, batch); err != nil {
				s.logger.ErrorContext(ctx, "hold sweep failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
