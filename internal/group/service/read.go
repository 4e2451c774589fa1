package service

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"raceday/internal/registration/access"
	"raceday/internal/registration/models"
	"raceday/internal/registration/ports"
)

// BatchResult is a batch with its rows in file order.
type BatchResult struct {
	Batch *models.GroupBatch
	Rows  []*models.BatchRow
}

// Admitted counts rows stamped with a registration.
func (r *BatchResult) Admitted() int {
	n := 0
	for _, row := range r.Rows {
		if row.CreatedRegistrationID != nil {
			n++
		}
	}
	return n
}

// GetBatch returns the batch with per-row errors and created registration ids.
func (s *Service) GetBatch(ctx context.Context, callerID, batchID uuid.UUID) (result *BatchResult, err error) {
	ctx, span := s.startSpan(ctx, "GetBatch", attribute.String("batch_id", batchID.String()))
	defer func() { endSpan(span, err) }()

	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
		batch, err := loadBatch(ctx, st, batchID, false)
		if err != nil {
			return err
		}
		if err := access.AuthorizeOrganizer(ctx, st, callerID, batch.EditionID); err != nil {
			return err
		}
		rows, err := st.ListBatchRows(ctx, batchID)
		if err != nil {
			return internal(err, "failed to load batch rows")
		}
		result = &BatchResult{Batch: batch, Rows: rows}
		return nil
	})
	if err != nil {
		return nil, internal(err, "failed to load batch")
	}
	return result, nil
}
