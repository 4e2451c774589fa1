package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"raceday/internal/registration/models"
)

const waiverColumns = `id, edition_id, title, body, signature_type, version_hash, display_order`

func scanWaiver(row scanner) (*models.Waiver, error) {
	var (
		w       models.Waiver
		sigType string
	)
	if err := row.Scan(&w.ID, &w.EditionID, &w.Title, &w.Body, &sigType, &w.VersionHash, &w.DisplayOrder); err != nil {
		return nil, err
	}
	w.SignatureType = models.SignatureType(sigType)
	return &w, nil
}

func (s *PostgresStore) GetWaiver(ctx context.Context, id uuid.UUID) (*models.Waiver, error) {
	w, err := scanWaiver(s.q(ctx).QueryRowContext(ctx, `SELECT `+waiverColumns+` FROM waivers WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "get waiver")
	}
	return w, nil
}

func (s *PostgresStore) ListWaivers(ctx context.Context, editionID uuid.UUID) ([]*models.Waiver, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+waiverColumns+` FROM waivers WHERE edition_id = $1 ORDER BY display_order, id`, editionID)
	if err != nil {
		return nil, fmt.Errorf("list waivers: %w", err)
	}
	defer rows.Close()

	var out []*models.Waiver
	for rows.Next() {
		w, err := scanWaiver(rows)
		if err != nil {
			return nil, fmt.Errorf("scan waiver: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListWaiverAcceptances(ctx context.Context, registrationID uuid.UUID) ([]*models.WaiverAcceptance, error) {
	query := `
		SELECT id, registration_id, waiver_id, waiver_version_hash, signature_type, signature_value,
		       ip_address, user_agent, user_agent_summary, accepted_at
		FROM waiver_acceptances WHERE registration_id = $1 ORDER BY accepted_at
	`
	rows, err := s.q(ctx).QueryContext(ctx, query, registrationID)
	if err != nil {
		return nil, fmt.Errorf("list waiver acceptances: %w", err)
	}
	defer rows.Close()

	var out []*models.WaiverAcceptance
	for rows.Next() {
		var (
			a       models.WaiverAcceptance
			sigType string
			sigVal  sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.RegistrationID, &a.WaiverID, &a.WaiverVersionHash, &sigType, &sigVal,
			&a.IPAddress, &a.UserAgent, &a.UserAgentSummary, &a.AcceptedAt); err != nil {
			return nil, fmt.Errorf("scan waiver acceptance: %w", err)
		}
		a.SignatureType = models.SignatureType(sigType)
		a.SignatureValue = nullStringPtr(sigVal)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// InsertWaiverAcceptance relies on the (registration_id, waiver_id) unique key so that
// concurrent accepts of the same waiver leave exactly one row.
func (s *PostgresStore) InsertWaiverAcceptance(ctx context.Context, a *models.WaiverAcceptance) (bool, error) {
	query := `
		INSERT INTO waiver_acceptances (id, registration_id, waiver_id, waiver_version_hash, signature_type,
			signature_value, ip_address, user_agent, user_agent_summary, accepted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (registration_id, waiver_id) DO NOTHING
	`
	res, err := s.q(ctx).ExecContext(ctx, query,
		a.ID, a.RegistrationID, a.WaiverID, a.WaiverVersionHash, string(a.SignatureType),
		a.SignatureValue, a.IPAddress, a.UserAgent, a.UserAgentSummary, a.AcceptedAt)
	if err != nil {
		return false, fmt.Errorf("insert waiver acceptance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

const questionColumns = `id, edition_id, distance_id, prompt, is_required, is_active, sort_order`

func scanQuestion(row scanner) (*models.Question, error) {
	var (
		q          models.Question
		distanceID uuid.NullUUID
	)
	if err := row.Scan(&q.ID, &q.EditionID, &distanceID, &q.Prompt, &q.IsRequired, &q.IsActive, &q.SortOrder); err != nil {
		return nil, err
	}
	q.DistanceID = nullUUIDPtr(distanceID)
	return &q, nil
}

func (s *PostgresStore) GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	q, err := scanQuestion(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM registration_questions WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "get question")
	}
	return q, nil
}

func (s *PostgresStore) ListQuestions(ctx context.Context, editionID uuid.UUID) ([]*models.Question, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+questionColumns+` FROM registration_questions WHERE edition_id = $1 ORDER BY sort_order, id`, editionID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []*models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertAnswer(ctx context.Context, a *models.Answer) error {
	query := `
		INSERT INTO registration_answers (id, registration_id, question_id, value, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (registration_id, question_id) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.q(ctx).ExecContext(ctx, query, a.ID, a.RegistrationID, a.QuestionID, a.Value, a.UpdatedAt); err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAnswers(ctx context.Context, registrationID uuid.UUID) ([]*models.Answer, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, registration_id, question_id, value, updated_at
		FROM registration_answers WHERE registration_id = $1`, registrationID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var out []*models.Answer
	for rows.Next() {
		var a models.Answer
		if err := rows.Scan(&a.ID, &a.RegistrationID, &a.QuestionID, &a.Value, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListAddOnOptions(ctx context.Context, editionID uuid.UUID) ([]*models.AddOnOption, error) {
	query := `
		SELECT o.id, o.add_on_id, a.edition_id, o.distance_id, o.label, o.price_cents, o.max_qty_per_order, o.is_active
		FROM add_on_options o
		JOIN add_ons a ON a.id = o.add_on_id
		WHERE a.edition_id = $1
		ORDER BY o.id
	`
	rows, err := s.q(ctx).QueryContext(ctx, query, editionID)
	if err != nil {
		return nil, fmt.Errorf("list add-on options: %w", err)
	}
	defer rows.Close()

	var out []*models.AddOnOption
	for rows.Next() {
		var (
			o          models.AddOnOption
			distanceID uuid.NullUUID
		)
		if err := rows.Scan(&o.ID, &o.AddOnID, &o.EditionID, &distanceID, &o.Label, &o.PriceCents,
			&o.MaxQtyPerOrder, &o.IsActive); err != nil {
			return nil, fmt.Errorf("scan add-on option: %w", err)
		}
		o.DistanceID = nullUUIDPtr(distanceID)
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListGroupDiscountRules(ctx context.Context, editionID uuid.UUID) ([]models.GroupDiscountRule, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, edition_id, min_participants, percent_off, is_active
		FROM group_discount_rules WHERE edition_id = $1 ORDER BY min_participants`, editionID)
	if err != nil {
		return nil, fmt.Errorf("list group discount rules: %w", err)
	}
	defer rows.Close()

	var out []models.GroupDiscountRule
	for rows.Next() {
		var r models.GroupDiscountRule
		if err := rows.Scan(&r.ID, &r.EditionID, &r.MinParticipants, &r.PercentOff, &r.IsActive); err != nil {
			return nil, fmt.Errorf("scan group discount rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
