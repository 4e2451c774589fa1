package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"raceday/internal/group/parser"
	"raceday/internal/registration/access"
	"raceday/internal/registration/models"
	"raceday/internal/registration/ports"
	"raceday/pkg/identity"
	"raceday/pkg/platform/audit"
	"raceday/pkg/requestcontext"
)

// Upload parses file, validates every row and persists the batch. Row problems never
// fail the call: they are stored per row and the batch lands in failed.
func (s *Service) Upload(ctx context.Context, callerID, editionID uuid.UUID, filename string, file io.Reader) (result *BatchResult, err error) {
	ctx, span := s.startSpan(ctx, "Upload",
		attribute.String("edition_id", editionID.String()),
		attribute.String("filename", filename),
	)
	defer func() { endSpan(span, err) }()
	defer s.metrics.ObserveOperation("batch_upload", time.Now())

	// Permission first so a caller without access learns nothing about file format rules.
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
		return access.AuthorizeOrganizer(ctx, st, callerID, editionID)
	})
	if err != nil {
		return nil, internal(err, "failed to check permissions")
	}

	rows, err := parser.Parse(filename, file)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
		cat, err := loadCatalog(ctx, st, editionID)
		if err != nil {
			return err
		}
		remaining, err := remainingSnapshot(ctx, st, cat, now)
		if err != nil {
			return internal(err, "failed to count reservations")
		}

		batchRows, err := s.validateRows(ctx, st, cat, remaining, rows, now)
		if err != nil {
			return err
		}

		batch := &models.GroupBatch{
			ID:              uuid.New(),
			EditionID:       editionID,
			CreatedByUserID: callerID,
			SourceFilename:  filename,
			Status:          models.BatchValidated,
			RowCount:        len(batchRows),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		for _, r := range batchRows {
			r.BatchID = batch.ID
			if r.HasErrors() {
				batch.ErrorCount++
			}
		}
		if batch.ErrorCount > 0 {
			batch.Status = models.BatchFailed
			batch.FailureReason = fmt.Sprintf("%d of %d rows failed validation", batch.ErrorCount, batch.RowCount)
		}
		if err := st.InsertBatch(ctx, batch, batchRows); err != nil {
			return internal(err, "failed to save batch")
		}
		if err := s.appendAudit(ctx, st, audit.EventGroupBatchUploaded, editionID, batchSubject(batch.ID), map[string]any{
			"filename":    filename,
			"row_count":   batch.RowCount,
			"error_count": batch.ErrorCount,
			"status":      string(batch.Status),
		}); err != nil {
			return err
		}
		result = &BatchResult{Batch: batch, Rows: batchRows}
		return nil
	})
	if err != nil {
		return nil, internal(err, "failed to upload batch")
	}

	s.metrics.AddBatchRows("invalid", result.Batch.ErrorCount)
	s.metrics.AddBatchRows("valid", result.Batch.RowCount-result.Batch.ErrorCount)
	s.logger.InfoContext(ctx, "group batch uploaded",
		"batch_id", result.Batch.ID,
		"edition_id", editionID,
		"rows", result.Batch.RowCount,
		"errors", result.Batch.ErrorCount,
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}

// validateRows checks every row independently and collects all of its problems.
// Stored rows carry the normalized email, canonical DOB and resolved distance id.
func (s *Service) validateRows(ctx context.Context, st ports.Store, cat *catalog, remaining map[uuid.UUID]int, rows []parser.Row, now time.Time) ([]*models.BatchRow, error) {
	firstSeen := map[string]int{}
	out := make([]*models.BatchRow, 0, len(rows))
	for i, row := range rows {
		var problems []string
		if row.FirstName == "" {
			problems = append(problems, "firstName is required")
		}
		if row.LastName == "" {
			problems = append(problems, "lastName is required")
		}

		emailOK := false
		switch {
		case row.Email == "":
			problems = append(problems, "email is required")
		case !identity.ValidEmail(row.Email):
			problems = append(problems, "email is not a valid address")
		default:
			row.Email = identity.NormalizeEmail(row.Email)
			emailOK = true
		}

		dobOK := false
		if row.DateOfBirth == "" {
			problems = append(problems, "dateOfBirth is required")
		} else if dob, ok := identity.ParseISODate(row.DateOfBirth); ok {
			row.DateOfBirth = dob
			dobOK = true
		} else {
			problems = append(problems, "dateOfBirth must be YYYY-MM-DD")
		}

		distance, msg := cat.resolveDistance(row)
		if msg != "" {
			problems = append(problems, msg)
		} else {
			row.DistanceID = distance.ID.String()
			row.DistanceLabel = distance.Label
			if rem, capped := remaining[distance.ID]; capped && rem <= 0 {
				problems = append(problems, fmt.Sprintf("distance %q is sold out", distance.Label))
			}
		}

		_, addOnProblems := cat.selections(row.AddOnSelections, distance)
		problems = append(problems, addOnProblems...)

		if emailOK && dobOK {
			key := row.Email + "|" + row.DateOfBirth
			if first, dup := firstSeen[key]; dup {
				problems = append(problems, fmt.Sprintf("duplicate of row %d (same email and date of birth)", first+1))
			} else {
				firstSeen[key] = i
				registered, err := alreadyRegistered(ctx, st, cat.edition.ID, row, now)
				if err != nil {
					return nil, internal(err, "failed to match participant")
				}
				if registered {
					problems = append(problems, "participant already has an active registration for this event")
				}
			}
		}

		raw, err := json.Marshal(row)
		if err != nil {
			return nil, internal(err, "failed to encode row")
		}
		out = append(out, &models.BatchRow{
			ID:               uuid.New(),
			RowIndex:         i,
			Raw:              raw,
			ValidationErrors: problems,
		})
	}
	return out, nil
}

func alreadyRegistered(ctx context.Context, st ports.Store, editionID uuid.UUID, row parser.Row, now time.Time) (bool, error) {
	u, err := matchAccount(ctx, st, row.Email, row.DateOfBirth)
	if err != nil || u == nil {
		return false, err
	}
	return st.HasActiveRegistration(ctx, editionID, u.ID, now, nil)
}
