package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"raceday/internal/group/parser"
	"raceday/internal/registration/access"
	"raceday/internal/registration/capacity"
	"raceday/internal/registration/models"
	"raceday/internal/registration/ports"
	dErrors "raceday/pkg/domain-errors"
	"raceday/pkg/platform/audit"
	"raceday/pkg/platform/sentinel"
	"raceday/pkg/requestcontext"
)

// admission is one decoded row ready to be written.
type admission struct {
	row      *models.BatchRow
	data     parser.Row
	distance *models.Distance
	addOns   []models.AddOnSelection
	buyer    *uuid.UUID
	userID   *uuid.UUID
}

// Process admits every row of a clean batch in one transaction. A processed batch
// returns its stored result. Domain failures mark the batch failed in a separate
// transaction and are returned unchanged.
func (s *Service) Process(ctx context.Context, callerID, batchID uuid.UUID) (result *BatchResult, err error) {
	ctx, span := s.startSpan(ctx, "Process", attribute.String("batch_id", batchID.String()))
	defer func() { endSpan(span, err) }()
	defer s.metrics.ObserveOperation("batch_process", time.Now())

	var batch *models.GroupBatch
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
		b, err := loadBatch(ctx, st, batchID, false)
		if err != nil {
			return err
		}
		batch = b
		return access.AuthorizeOrganizer(ctx, st, callerID, b.EditionID)
	})
	if err != nil {
		return nil, internal(err, "failed to load batch")
	}
	if batch.Status == models.BatchProcessed {
		return s.GetBatch(ctx, callerID, batchID)
	}

	buyerID, err := s.systemBuyer.resolve(ctx, s.tx)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var (
		admitted  int
		replayed  bool
		discount  *models.GroupDiscountRule
		editionID = batch.EditionID
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
		b, err := loadBatch(ctx, st, batchID, true)
		if err != nil {
			return err
		}
		switch b.Status {
		case models.BatchProcessed:
			replayed = true
			return nil
		case models.BatchValidated, models.BatchFailed:
		default:
			return dErrors.Newf(dErrors.CodeInvalidState, "batch is %s", b.Status)
		}

		rows, err := st.ListBatchRows(ctx, batchID)
		if err != nil {
			return internal(err, "failed to load batch rows")
		}
		if n := countRowErrors(rows); n > 0 {
			return dErrors.Newf(dErrors.CodeInvalidState, "batch has %d rows with validation errors; fix and upload again", n)
		}
		if len(rows) == 0 {
			return dErrors.New(dErrors.CodeInvalidState, "batch has no rows")
		}

		admissions, cat, err := s.admit(ctx, st, b, rows, buyerID, now)
		if err != nil {
			return err
		}
		discount, err = s.selectDiscount(ctx, st, b.EditionID, len(admissions))
		if err != nil {
			return err
		}
		percent := 0
		if discount != nil {
			percent = discount.PercentOff
		}

		for _, a := range admissions {
			if err := s.insertAdmission(ctx, st, cat, b, a, percent, now); err != nil {
				return err
			}
		}

		processedAt := now
		if err := st.CompareAndSetBatchStatus(ctx, batchID, []models.BatchStatus{models.BatchValidated, models.BatchFailed},
			models.BatchProcessed, "", &processedAt, now); err != nil {
			if errors.Is(err, sentinel.ErrStaleState) {
				return dErrors.New(dErrors.CodeInvalidState, "batch changed while processing")
			}
			return internal(err, "failed to mark batch processed")
		}
		admitted = len(admissions)
		details := map[string]any{"admitted": admitted}
		if discount != nil {
			details["discount_rule_id"] = discount.ID.String()
			details["percent_off"] = discount.PercentOff
		}
		return s.appendAudit(ctx, st, audit.EventGroupBatchProcessed, b.EditionID, batchSubject(b.ID), details)
	})
	if err != nil {
		s.metrics.IncrementAdmission("batch", string(dErrors.CodeOf(err)))
		if dErrors.IsDomain(err) && failsBatch(err) {
			s.markFailed(ctx, batchID, editionID, err)
		}
		return nil, internal(err, "failed to process batch")
	}
	if replayed {
		return s.GetBatch(ctx, callerID, batchID)
	}

	s.metrics.IncrementAdmission("batch", "admitted")
	s.metrics.AddBatchRows("admitted", admitted)
	s.logger.InfoContext(ctx, "group batch processed",
		"batch_id", batchID,
		"edition_id", editionID,
		"admitted", admitted,
		"discount_applied", discount != nil,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.revalidate(ctx, editionID)
	return s.GetBatch(ctx, callerID, batchID)
}

// admit decodes rows, locks every scope they touch and checks aggregate demand.
func (s *Service) admit(ctx context.Context, st ports.Store, b *models.GroupBatch, rows []*models.BatchRow, systemBuyer uuid.UUID, now time.Time) ([]*admission, *catalog, error) {
	if _, err := st.GetEdition(ctx, b.EditionID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeEventNotFound, "event not found")
		}
		return nil, nil, internal(err, "failed to load event")
	}

	admissions := make([]*admission, 0, len(rows))
	distanceIDs := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		var data parser.Row
		if err := json.Unmarshal(r.Raw, &data); err != nil {
			return nil, nil, dErrors.Newf(dErrors.CodeInvalidRow, "%s is unreadable", data.Label(r.RowIndex))
		}
		id, err := uuid.Parse(data.DistanceID)
		if err != nil {
			return nil, nil, dErrors.Newf(dErrors.CodeInvalidRow, "%s has no resolved distance", data.Label(r.RowIndex))
		}
		distanceIDs = append(distanceIDs, id)
		admissions = append(admissions, &admission{row: r, data: data})
	}

	locked, err := capacity.Lock(ctx, st, b.EditionID, distanceIDs...)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeInvalidRow, "a row references a distance that no longer belongs to this event")
		}
		return nil, nil, internal(err, "failed to lock capacity")
	}

	cat, err := loadCatalog(ctx, st, b.EditionID)
	if err != nil {
		return nil, nil, err
	}
	demand := capacity.NewDemand()
	for i, a := range admissions {
		id := distanceIDs[i]
		a.distance = locked.Distances[id]
		scope, _ := locked.Scope(id)
		demand.Add(scope, 1)

		sel, problems := cat.selections(a.data.AddOnSelections, a.distance)
		if len(problems) > 0 {
			return nil, nil, dErrors.Newf(dErrors.CodeInvalidRow, "%s: %s", a.data.Label(a.row.RowIndex), problems[0])
		}
		a.addOns = sel

		u, err := matchAccount(ctx, st, a.data.Email, a.data.DateOfBirth)
		if err != nil {
			return nil, nil, internal(err, "failed to match participant")
		}
		buyer := systemBuyer
		if u != nil {
			active, err := st.HasActiveRegistration(ctx, b.EditionID, u.ID, now, nil)
			if err != nil {
				return nil, nil, internal(err, "failed to check existing registrations")
			}
			if active {
				return nil, nil, dErrors.Newf(dErrors.CodeInvalidRow, "%s already has an active registration for this event", a.data.Label(a.row.RowIndex))
			}
			buyer = u.ID
			userID := u.ID
			a.userID = &userID
		}
		a.buyer = &buyer
	}

	short, err := demand.CheckAll(ctx, st, now)
	if err != nil {
		return nil, nil, internal(err, "failed to count reservations")
	}
	if short != nil {
		return nil, nil, dErrors.Newf(dErrors.CodeInsufficientCapacity,
			"not enough capacity: %d requested, %d remaining", short.Requested, short.Remaining())
	}
	return admissions, cat, nil
}

func (s *Service) selectDiscount(ctx context.Context, st ports.CatalogStore, editionID uuid.UUID, participants int) (*models.GroupDiscountRule, error) {
	rules, err := st.ListGroupDiscountRules(ctx, editionID)
	if err != nil {
		return nil, internal(err, "failed to load discount rules")
	}
	return models.SelectDiscountRule(rules, participants), nil
}

// admittedStatus is confirmed without a payment step, else payment_pending.
func (s *Service) admittedStatus() models.Status {
	if s.paymentsEnabled {
		return models.StatusPaymentPending
	}
	return models.StatusConfirmed
}

func (s *Service) insertAdmission(ctx context.Context, st ports.Store, cat *catalog, b *models.GroupBatch, a *admission, percentOff int, now time.Time) error {
	status := s.admittedStatus()
	quote := models.QuoteFor(a.distance, now, percentOff)
	reg := models.NewRegistration(b.EditionID, a.distance.ID, a.buyer, models.PaymentCentralPay, status,
		quote, s.policy.ExpiresAtFor(now, status), now)

	lines, addOnsTotal := cat.addOnLines(reg.ID, a.addOns)
	quote.AddOnsCents = addOnsTotal
	quote.Apply(reg)

	if err := st.InsertRegistration(ctx, reg); err != nil {
		return internal(err, "failed to create registration")
	}
	for _, line := range lines {
		if err := st.InsertRegistrationAddOn(ctx, line); err != nil {
			return internal(err, "failed to save add-on")
		}
	}

	registrant := &models.Registrant{
		ID:             uuid.New(),
		RegistrationID: reg.ID,
		UserID:         a.userID,
		Profile: models.ProfileSnapshot{
			FirstName:             a.data.FirstName,
			LastName:              a.data.LastName,
			Email:                 a.data.Email,
			DateOfBirth:           a.data.DateOfBirth,
			Phone:                 a.data.Phone,
			Gender:                a.data.Gender,
			City:                  a.data.City,
			State:                 a.data.State,
			Country:               a.data.Country,
			EmergencyContactName:  a.data.EmergencyContactName,
			EmergencyContactPhone: a.data.EmergencyContactPhone,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if a.data.GenderIdentity != "" {
		gi := a.data.GenderIdentity
		registrant.GenderIdentity = &gi
	}
	if err := st.UpsertRegistrant(ctx, registrant); err != nil {
		return internal(err, "failed to save registrant")
	}

	if err := s.appendAudit(ctx, st, audit.EventGroupRegistrationAdmitted, b.EditionID, reg.ID.String(), map[string]any{
		"batch_id":     b.ID.String(),
		"row_index":    a.row.RowIndex,
		"distance_id":  a.distance.ID.String(),
		"status":       string(status),
		"total_cents":  reg.TotalCents,
		"matched_user": a.userID != nil,
	}); err != nil {
		return err
	}

	if err := st.SetBatchRowRegistration(ctx, a.row.ID, reg.ID); err != nil {
		return internal(err, "failed to stamp batch row")
	}
	return nil
}

// failsBatch lists the processing failures that leave the batch in failed.
func failsBatch(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInsufficientCapacity, dErrors.CodeInvalidRow, dErrors.CodeEventNotFound:
		return true
	}
	return false
}

// markFailed records a processing failure in its own transaction. Losing the CAS
// means another process already moved the batch on, which is fine.
func (s *Service) markFailed(ctx context.Context, batchID, editionID uuid.UUID, cause error) {
	now := requestcontext.Now(ctx)
	reason := fmt.Sprintf("%s: %s", dErrors.CodeOf(cause), messageOf(cause))
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
		if err := st.CompareAndSetBatchStatus(ctx, batchID, []models.BatchStatus{models.BatchValidated, models.BatchFailed},
			models.BatchFailed, reason, nil, now); err != nil {
			return err
		}
		return s.appendAudit(ctx, st, audit.EventGroupBatchFailed, editionID, batchSubject(batchID), map[string]any{
			"code":   string(dErrors.CodeOf(cause)),
			"reason": reason,
		})
	})
	if err != nil && !errors.Is(err, sentinel.ErrStaleState) {
		s.logger.ErrorContext(ctx, "failed to mark batch failed",
			"batch_id", batchID,
			"error", err,
		)
	}
}

func messageOf(err error) string {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

func countRowErrors(rows []*models.BatchRow) int {
	n := 0
	for _, r := range rows {
		if r.HasErrors() {
			n++
		}
	}
	return n
}
