package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"raceday/internal/platform/postgres"
	"raceday/internal/registration/models"
	"raceday/pkg/platform/sentinel"
)

const inviteColumns = `id, edition_id, registration_id, batch_row_id, email, date_of_birth, token_hash, status,
	is_current, expires_at, sent_at, claimed_at, claimed_by_user_id, created_at`

func scanInvite(row scanner) (*models.Invite, error) {
	var (
		inv       models.Invite
		batchRow  uuid.NullUUID
		status    string
		expiresAt sql.NullTime
		sentAt    sql.NullTime
		claimedAt sql.NullTime
		claimedBy uuid.NullUUID
	)
	if err := row.Scan(&inv.ID, &inv.EditionID, &inv.RegistrationID, &batchRow, &inv.Email, &inv.DateOfBirth,
		&inv.TokenHash, &status, &inv.IsCurrent, &expiresAt, &sentAt, &claimedAt, &claimedBy, &inv.CreatedAt); err != nil {
		return nil, err
	}
	inv.BatchRowID = nullUUIDPtr(batchRow)
	inv.Status = models.InviteStatus(status)
	inv.ExpiresAt = nullTimePtr(expiresAt)
	inv.SentAt = nullTimePtr(sentAt)
	inv.ClaimedAt = nullTimePtr(claimedAt)
	inv.ClaimedByUserID = nullUUIDPtr(claimedBy)
	return &inv, nil
}

// InsertInvite maps a collision on the current-invite indexes to sentinel.ErrConflict.
func (s *PostgresStore) InsertInvite(ctx context.Context, inv *models.Invite) error {
	query := `INSERT INTO registration_invites (` + inviteColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := s.q(ctx).ExecContext(ctx, query,
		inv.ID, inv.EditionID, inv.RegistrationID, inv.BatchRowID, inv.Email, inv.DateOfBirth,
		inv.TokenHash, string(inv.Status), inv.IsCurrent, inv.ExpiresAt, inv.SentAt, inv.ClaimedAt,
		inv.ClaimedByUserID, inv.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("insert invite (%s): %w", postgres.ConstraintName(err), sentinel.ErrConflict)
		}
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

func (s *PostgresStore) SupersedeCurrentInvites(ctx context.Context, registrationID uuid.UUID) (int, error) {
	query := `
		UPDATE registration_invites
		SET is_current = FALSE,
		    status = CASE WHEN status IN ('draft', 'sent') THEN 'superseded' ELSE status END
		WHERE registration_id = $1 AND is_current
	`
	res, err := s.q(ctx).ExecContext(ctx, query, registrationID)
	if err != nil {
		return 0, fmt.Errorf("supersede invites: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) CurrentInviteForEmail(ctx context.Context, editionID uuid.UUID, email string) (*models.Invite, error) {
	inv, err := scanInvite(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+inviteColumns+` FROM registration_invites
		WHERE edition_id = $1 AND lower(email) = lower($2) AND is_current`, editionID, email))
	if err != nil {
		return nil, notFound(err, "current invite for email")
	}
	return inv, nil
}

func (s *PostgresStore) LockInviteByTokenHash(ctx context.Context, tokenHash string) (*models.Invite, error) {
	inv, err := scanInvite(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+inviteColumns+` FROM registration_invites WHERE token_hash = $1 FOR UPDATE`, tokenHash))
	if err != nil {
		return nil, notFound(err, "lock invite")
	}
	return inv, nil
}

func (s *PostgresStore) MarkInviteClaimed(ctx context.Context, id, userID uuid.UUID, now time.Time) error {
	query := `
		UPDATE registration_invites
		SET status = 'claimed', claimed_at = $3, claimed_by_user_id = $2
		WHERE id = $1 AND status = 'sent' AND is_current
	`
	res, err := s.q(ctx).ExecContext(ctx, query, id, userID, now)
	if err != nil {
		return fmt.Errorf("mark invite claimed: %w", err)
	}
	return expectOne(res, sentinel.ErrStaleState)
}
