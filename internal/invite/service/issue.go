package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"raceday/internal/group/parser"
	"raceday/internal/registration/access"
	"raceday/internal/registration/hold"
	"raceday/internal/registration/models"
	"raceday/internal/registration/ports"
	dErrors "raceday/pkg/domain-errors"
	"raceday/pkg/identity"
	"raceday/pkg/platform/audit"
	"raceday/pkg/platform/sentinel"
	"raceday/pkg/requestcontext"
)

// IssueResult summarizes one IssueInvites call.
type IssueResult struct {
	BatchID uuid.UUID
	Invites []*models.Invite
	// Skipped counts admitted rows that need no invite: claimed, matched at admission,
	// no longer active, or whose email already holds a current invite to another
	// registration of the edition.
	Skipped int
}

// IssueInvites sends a fresh invite for every admitted row of a processed batch whose
// registration is still held by the placeholder buyer. Earlier invites for those
// registrations are superseded.
func (s *Service) IssueInvites(ctx context.Context, callerID, batchID uuid.UUID) (result *IssueResult, err error) {
	ctx, span := s.startSpan(ctx, "IssueInvites", attribute.String("batch_id", batchID.String()))
	defer func() { endSpan(span, err) }()
	defer s.metrics.ObserveOperation("invite_issue", time.Now())

	now := requestcontext.Now(ctx)
	var outbox []ports.InviteEmail
	var editionID uuid.UUID
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
		batch, err := st.LockBatch(ctx, batchID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "batch not found")
			}
			return internal(err, "failed to load batch")
		}
		editionID = batch.EditionID
		if err := access.AuthorizeOrganizer(ctx, st, callerID, batch.EditionID); err != nil {
			return err
		}
		if batch.Status != models.BatchProcessed {
			return dErrors.Newf(dErrors.CodeInvalidState, "invites can only be issued for a processed batch (status %s)", batch.Status)
		}
		rows, err := st.ListBatchRows(ctx, batchID)
		if err != nil {
			return internal(err, "failed to load batch rows")
		}

		result = &IssueResult{BatchID: batchID}
		for _, row := range rows {
			if row.CreatedRegistrationID == nil {
				continue
			}
			inv, msg, err := s.issueForRow(ctx, st, batch, row, now)
			if err != nil {
				return err
			}
			if inv == nil {
				result.Skipped++
				continue
			}
			result.Invites = append(result.Invites, inv)
			outbox = append(outbox, *msg)
		}

		ev := newEvent(ctx, audit.EventInviteIssued, batch.EditionID, "batch:"+batchID.String(), map[string]any{
			"issued":  len(result.Invites),
			"skipped": result.Skipped,
		})
		if err := st.AppendAudit(ctx, ev); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write audit record")
		}
		return nil
	})
	if err != nil {
		return nil, internal(err, "failed to issue invites")
	}

	s.send(ctx, outbox)
	s.logger.InfoContext(ctx, "invites issued",
		"batch_id", batchID,
		"edition_id", editionID,
		"issued", len(result.Invites),
		"skipped", result.Skipped,
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}

// issueForRow returns a nil invite when the row's registration needs none.
func (s *Service) issueForRow(ctx context.Context, st ports.Store, batch *models.GroupBatch, row *models.BatchRow, now time.Time) (*models.Invite, *ports.InviteEmail, error) {
	reg, err := st.LockRegistration(ctx, *row.CreatedRegistrationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, internal(err, "failed to load registration")
	}
	if reg.Status == models.StatusCancelled || hold.IsExpired(reg, now) {
		return nil, nil, nil
	}
	if reg.BuyerUserID != nil {
		buyer, err := st.GetUser(ctx, *reg.BuyerUserID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, internal(err, "failed to load buyer")
		}
		if buyer != nil && !buyer.IsSystem {
			return nil, nil, nil
		}
	}

	var data parser.Row
	if err := json.Unmarshal(row.Raw, &data); err != nil {
		return nil, nil, internal(err, "failed to decode batch row")
	}
	email := identity.NormalizeEmail(data.Email)

	// One current invite per edition and email.
	other, err := st.CurrentInviteForEmail(ctx, batch.EditionID, email)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil, internal(err, "failed to load current invite")
	}
	if other != nil && other.RegistrationID != reg.ID {
		return nil, nil, nil
	}

	if _, err := st.SupersedeCurrentInvites(ctx, reg.ID); err != nil {
		return nil, nil, internal(err, "failed to supersede invites")
	}
	token, hash, err := s.hasher.Generate()
	if err != nil {
		return nil, nil, internal(err, "failed to generate invite token")
	}
	expiresAt := now.Add(s.inviteTTL)
	sentAt := now
	rowID := row.ID
	inv := &models.Invite{
		ID:             uuid.New(),
		EditionID:      batch.EditionID,
		RegistrationID: reg.ID,
		BatchRowID:     &rowID,
		Email:          email,
		DateOfBirth:    data.DateOfBirth,
		TokenHash:      hash,
		Status:         models.InviteSent,
		IsCurrent:      true,
		ExpiresAt:      &expiresAt,
		SentAt:         &sentAt,
		CreatedAt:      now,
	}
	if err := st.InsertInvite(ctx, inv); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, nil, dErrors.Newf(dErrors.CodeInvalidState, "another invite to %s was issued concurrently", email)
		}
		return nil, nil, internal(err, "failed to save invite")
	}
	msg := &ports.InviteEmail{
		To:        inv.Email,
		FirstName: data.FirstName,
		EditionID: batch.EditionID,
		Token:     token,
		ExpiresAt: expiresAt,
	}
	return inv, msg, nil
}

// send is best effort: the invites are committed and can be reissued.
func (s *Service) send(ctx context.Context, outbox []ports.InviteEmail) {
	if s.mailer == nil {
		return
	}
	for _, msg := range outbox {
		if err := s.mailer.SendInvite(ctx, msg); err != nil {
			s.logger.WarnContext(ctx, "invite email failed",
				"to", msg.To,
				"edition_id", msg.EditionID,
				"error", err,
			)
		}
	}
}
