package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"raceday/internal/registration/models"
	"raceday/pkg/platform/sentinel"
)

const registrationColumns = `id, edition_id, distance_id, buyer_user_id, payment_responsibility, status,
	base_price_cents, fees_cents, tax_cents, total_cents, expires_at, created_at, updated_at, deleted_at`

func scanRegistration(row scanner) (*models.Registration, error) {
	var (
		r         models.Registration
		buyer     uuid.NullUUID
		payResp   string
		status    string
		expiresAt sql.NullTime
		deletedAt sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.EditionID, &r.DistanceID, &buyer, &payResp, &status,
		&r.BasePriceCents, &r.FeesCents, &r.TaxCents, &r.TotalCents,
		&expiresAt, &r.CreatedAt, &r.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	r.BuyerUserID = nullUUIDPtr(buyer)
	r.PaymentResponsibility = models.PaymentResponsibility(payResp)
	r.Status = models.Status(status)
	r.ExpiresAt = nullTimePtr(expiresAt)
	r.DeletedAt = nullTimePtr(deletedAt)
	return &r, nil
}

func (s *PostgresStore) InsertRegistration(ctx context.Context, reg *models.Registration) error {
	query := `
		INSERT INTO registrations (` + registrationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.q(ctx).ExecContext(ctx, query,
		reg.ID, reg.EditionID, reg.DistanceID, reg.BuyerUserID,
		string(reg.PaymentResponsibility), string(reg.Status),
		reg.BasePriceCents, reg.FeesCents, reg.TaxCents, reg.TotalCents,
		reg.ExpiresAt, reg.CreatedAt, reg.UpdatedAt, reg.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1 AND deleted_at IS NULL`
	r, err := scanRegistration(s.q(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "get registration")
	}
	return r, nil
}

func (s *PostgresStore) LockRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	r, err := scanRegistration(s.q(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "lock registration")
	}
	return r, nil
}

func (s *PostgresStore) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from []models.Status, to models.Status, expiresAt *time.Time, now time.Time) error {
	query := `
		UPDATE registrations
		SET status = $2, expires_at = $3, updated_at = $4
		WHERE id = $1 AND deleted_at IS NULL AND status = ANY($5::text[])
	`
	res, err := s.q(ctx).ExecContext(ctx, query, id, string(to), expiresAt, now, textArray(from))
	if err != nil {
		return fmt.Errorf("compare and set status: %w", err)
	}
	return expectOne(res, sentinel.ErrStaleState)
}

func (s *PostgresStore) AssignBuyer(ctx context.Context, id uuid.UUID, buyer uuid.UUID, replaceable []uuid.UUID, now time.Time) error {
	query := `
		UPDATE registrations
		SET buyer_user_id = $2, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL
		  AND (buyer_user_id IS NULL OR buyer_user_id = $2 OR buyer_user_id = ANY($4::uuid[]))
	`
	res, err := s.q(ctx).ExecContext(ctx, query, id, buyer, now, uuidArray(replaceable))
	if err != nil {
		return fmt.Errorf("assign buyer: %w", err)
	}
	return expectOne(res, sentinel.ErrStaleState)
}

func (s *PostgresStore) HasActiveRegistration(ctx context.Context, editionID, userID uuid.UUID, now time.Time, exclude *uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM registrations r
			LEFT JOIN registrants rt ON rt.registration_id = r.id
			WHERE r.edition_id = $1 AND ` + reservedPredicate + `
			  AND (r.buyer_user_id = $3 OR rt.user_id = $3)
			  AND ($4::uuid IS NULL OR r.id <> $4)
		)
	`
	var exists bool
	if err := s.q(ctx).QueryRowContext(ctx, query, editionID, now, userID, exclude).Scan(&exists); err != nil {
		return false, fmt.Errorf("has active registration: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ExpireStaleHolds(ctx context.Context, now time.Time, limit int) ([]*models.Registration, error) {
	query := `
		UPDATE registrations SET status = 'cancelled', updated_at = $1
		WHERE id IN (
			SELECT id FROM registrations
			WHERE deleted_at IS NULL
			  AND status IN ('started', 'submitted', 'payment_pending')
			  AND expires_at IS NOT NULL AND expires_at < $1
			ORDER BY expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + registrationColumns
	rows, err := s.q(ctx).QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("expire stale holds: %w", err)
	}
	defer rows.Close()

	var out []*models.Registration
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired registration: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired registrations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpsertRegistrant(ctx context.Context, r *models.Registrant) error {
	profile, err := json.Marshal(r.Profile)
	if err != nil {
		return fmt.Errorf("marshal registrant profile: %w", err)
	}
	query := `
		INSERT INTO registrants (id, registration_id, user_id, profile, division, gender_identity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (registration_id) DO UPDATE SET
			user_id = COALESCE(EXCLUDED.user_id, registrants.user_id),
			profile = EXCLUDED.profile,
			division = EXCLUDED.division,
			gender_identity = EXCLUDED.gender_identity,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.q(ctx).ExecContext(ctx, query,
		r.ID, r.RegistrationID, r.UserID, profile, r.Division, r.GenderIdentity, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert registrant: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRegistrant(ctx context.Context, registrationID uuid.UUID) (*models.Registrant, error) {
	query := `
		SELECT id, registration_id, user_id, profile, division, gender_identity, created_at, updated_at
		FROM registrants WHERE registration_id = $1
	`
	var (
		r        models.Registrant
		userID   uuid.NullUUID
		profile  []byte
		division sql.NullString
		gender   sql.NullString
	)
	err := s.q(ctx).QueryRowContext(ctx, query, registrationID).Scan(
		&r.ID, &r.RegistrationID, &userID, &profile, &division, &gender, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "get registrant")
	}
	if err := json.Unmarshal(profile, &r.Profile); err != nil {
		return nil, fmt.Errorf("unmarshal registrant profile: %w", err)
	}
	r.UserID = nullUUIDPtr(userID)
	r.Division = nullStringPtr(division)
	r.GenderIdentity = nullStringPtr(gender)
	return &r, nil
}

func (s *PostgresStore) SetRegistrantUser(ctx context.Context, registrationID, userID uuid.UUID, now time.Time) error {
	res, err := s.q(ctx).ExecContext(ctx,
		`UPDATE registrants SET user_id = $2, updated_at = $3 WHERE registration_id = $1`,
		registrationID, userID, now)
	if err != nil {
		return fmt.Errorf("set registrant user: %w", err)
	}
	return expectOne(res, sentinel.ErrNotFound)
}

func (s *PostgresStore) InsertRegistrationAddOn(ctx context.Context, line *models.RegistrationAddOn) error {
	query := `
		INSERT INTO registration_add_ons (id, registration_id, option_id, quantity, line_total_cents)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.q(ctx).ExecContext(ctx, query,
		line.ID, line.RegistrationID, line.OptionID, line.Quantity, line.LineTotalCents); err != nil {
		return fmt.Errorf("insert registration add-on: %w", err)
	}
	return nil
}

func textArray[T ~string](vals []T) any {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return pq.Array(out)
}

func uuidArray(ids []uuid.UUID) any {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return pq.Array(out)
}
