package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"raceday/internal/registration/models"
	"raceday/pkg/platform/sentinel"
)

const batchColumns = `id, edition_id, created_by_user_id, source_filename, status, row_count, error_count,
	failure_reason, processed_at, created_at, updated_at`

func scanBatch(row scanner) (*models.GroupBatch, error) {
	var (
		b           models.GroupBatch
		status      string
		processedAt sql.NullTime
	)
	if err := row.Scan(&b.ID, &b.EditionID, &b.CreatedByUserID, &b.SourceFilename, &status, &b.RowCount,
		&b.ErrorCount, &b.FailureReason, &processedAt, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Status = models.BatchStatus(status)
	b.ProcessedAt = nullTimePtr(processedAt)
	return &b, nil
}

func (s *PostgresStore) InsertBatch(ctx context.Context, batch *models.GroupBatch, rows []*models.BatchRow) error {
	query := `INSERT INTO group_registration_batches (` + batchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := s.q(ctx).ExecContext(ctx, query,
		batch.ID, batch.EditionID, batch.CreatedByUserID, batch.SourceFilename, string(batch.Status),
		batch.RowCount, batch.ErrorCount, batch.FailureReason, batch.ProcessedAt, batch.CreatedAt, batch.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	rowQuery := `
		INSERT INTO group_registration_batch_rows (id, batch_id, row_index, raw, validation_errors, created_registration_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, r := range rows {
		errs := r.ValidationErrors
		if errs == nil {
			errs = []string{}
		}
		errJSON, err := json.Marshal(errs)
		if err != nil {
			return fmt.Errorf("marshal row errors: %w", err)
		}
		if _, err := s.q(ctx).ExecContext(ctx, rowQuery,
			r.ID, batch.ID, r.RowIndex, []byte(r.Raw), errJSON, r.CreatedRegistrationID); err != nil {
			return fmt.Errorf("insert batch row %d: %w", r.RowIndex, err)
		}
	}
	return nil
}

func (s *PostgresStore) GetBatch(ctx context.Context, id uuid.UUID) (*models.GroupBatch, error) {
	b, err := scanBatch(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM group_registration_batches WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "get batch")
	}
	return b, nil
}

func (s *PostgresStore) LockBatch(ctx context.Context, id uuid.UUID) (*models.GroupBatch, error) {
	b, err := scanBatch(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM group_registration_batches WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "lock batch")
	}
	return b, nil
}

func (s *PostgresStore) ListBatchRows(ctx context.Context, batchID uuid.UUID) ([]*models.BatchRow, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, batch_id, row_index, raw, validation_errors, created_registration_id
		FROM group_registration_batch_rows WHERE batch_id = $1 ORDER BY row_index`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch rows: %w", err)
	}
	defer rows.Close()

	var out []*models.BatchRow
	for rows.Next() {
		var (
			r       models.BatchRow
			raw     []byte
			errJSON []byte
			created uuid.NullUUID
		)
		if err := rows.Scan(&r.ID, &r.BatchID, &r.RowIndex, &raw, &errJSON, &created); err != nil {
			return nil, fmt.Errorf("scan batch row: %w", err)
		}
		r.Raw = json.RawMessage(raw)
		if len(errJSON) > 0 {
			if err := json.Unmarshal(errJSON, &r.ValidationErrors); err != nil {
				return nil, fmt.Errorf("unmarshal row errors: %w", err)
			}
		}
		r.CreatedRegistrationID = nullUUIDPtr(created)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetBatchRowRegistration(ctx context.Context, rowID, registrationID uuid.UUID) error {
	res, err := s.q(ctx).ExecContext(ctx,
		`UPDATE group_registration_batch_rows SET created_registration_id = $2 WHERE id = $1`, rowID, registrationID)
	if err != nil {
		return fmt.Errorf("set batch row registration: %w", err)
	}
	return expectOne(res, sentinel.ErrNotFound)
}

func (s *PostgresStore) CompareAndSetBatchStatus(ctx context.Context, id uuid.UUID, from []models.BatchStatus, to models.BatchStatus, reason string, processedAt *time.Time, now time.Time) error {
	query := `
		UPDATE group_registration_batches
		SET status = $2, failure_reason = $3, processed_at = COALESCE($4, processed_at), updated_at = $5
		WHERE id = $1 AND status = ANY($6::text[])
	`
	res, err := s.q(ctx).ExecContext(ctx, query, id, string(to), reason, processedAt, now, textArray(from))
	if err != nil {
		return fmt.Errorf("compare and set batch status: %w", err)
	}
	return expectOne(res, sentinel.ErrStaleState)
}
