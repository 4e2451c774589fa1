package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"raceday/internal/registration/models"
	"raceday/pkg/platform/sentinel"
)

const userColumns = `id, email, email_verified, is_system, created_at`

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.EmailVerified, &u.IsSystem, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(s.q(ctx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "get user")
	}
	return u, nil
}

// FindUserByEmail expects an already normalized email; stored emails are compared lowercased.
func (s *PostgresStore) FindUserByEmail(ctx context.Context, normalizedEmail string) (*models.User, error) {
	u, err := scanUser(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(TRIM(email)) = $1 AND NOT is_system ORDER BY created_at LIMIT 1`,
		normalizedEmail))
	if err != nil {
		return nil, notFound(err, "find user by email")
	}
	return u, nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var (
		p   models.Profile
		dob sql.NullString
	)
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT user_id, date_of_birth FROM profiles WHERE user_id = $1`, userID).Scan(&p.UserID, &dob)
	if err != nil {
		return nil, notFound(err, "get profile")
	}
	p.DateOfBirth = dob.String
	return &p, nil
}

func (s *PostgresStore) BackfillProfileDOB(ctx context.Context, userID uuid.UUID, dob string) error {
	query := `
		INSERT INTO profiles (user_id, date_of_birth) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET date_of_birth = EXCLUDED.date_of_birth
		WHERE profiles.date_of_birth IS NULL
		   OR profiles.date_of_birth = ''
		   OR profiles.date_of_birth = EXCLUDED.date_of_birth
	`
	res, err := s.q(ctx).ExecContext(ctx, query, userID, dob)
	if err != nil {
		return fmt.Errorf("backfill profile dob: %w", err)
	}
	return expectOne(res, sentinel.ErrStaleState)
}

func (s *PostgresStore) EnsureSystemUser(ctx context.Context, email string) (*models.User, error) {
	query := `
		INSERT INTO users (id, email, email_verified, is_system, created_at)
		VALUES ($1, $2, TRUE, TRUE, NOW())
		ON CONFLICT (email) DO UPDATE SET is_system = TRUE
		RETURNING ` + userColumns
	u, err := scanUser(s.q(ctx).QueryRowContext(ctx, query, uuid.New(), email))
	if err != nil {
		return nil, fmt.Errorf("ensure system user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) CanEditRegistrationSettings(ctx context.Context, userID, editionID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM organization_memberships m
			JOIN editions e ON e.organization_id = m.organization_id
			WHERE e.id = $1 AND m.user_id = $2 AND m.role IN ('owner', 'admin', 'editor')
		)
	`
	var ok bool
	if err := s.q(ctx).QueryRowContext(ctx, query, editionID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("check registration settings permission: %w", err)
	}
	return ok, nil
}
