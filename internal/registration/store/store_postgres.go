package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"raceday/internal/registration/models"
	"raceday/internal/registration/ports"
	"raceday/pkg/platform/audit"
	auditpostgres "raceday/pkg/platform/audit/store/postgres"
	"raceday/pkg/platform/sentinel"
	txcontext "raceday/pkg/platform/tx"
)

// PostgresStore persists the registration engine in PostgreSQL.
// Every query runs on the transaction carried in ctx when one is open.
// This store is pure I/O: guards, pricing and capacity decisions belong in the services.
type PostgresStore struct {
	db    *sql.DB
	audit *auditpostgres.Store
}

var _ ports.Store = (*PostgresStore)(nil)

// NewPostgres constructs a PostgreSQL-backed store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, audit: auditpostgres.New(db)}
}

func (s *PostgresStore) q(ctx context.Context) txcontext.Executor {
	return txcontext.Pick(ctx, s.db)
}

type scanner interface {
	Scan(dest ...any) error
}

// AppendAudit writes the event to the outbox inside the caller's transaction.
func (s *PostgresStore) AppendAudit(ctx context.Context, event audit.Event) error {
	return s.audit.Append(ctx, event)
}

const editionColumns = `id, organization_id, name, visibility, is_registration_paused,
	registration_opens_at, registration_closes_at, shared_capacity, created_at`

func scanEdition(row scanner) (*models.Edition, error) {
	var (
		e          models.Edition
		visibility string
		opensAt    sql.NullTime
		closesAt   sql.NullTime
		shared     sql.NullInt64
	)
	if err := row.Scan(&e.ID, &e.OrganizationID, &e.Name, &visibility, &e.IsPaused,
		&opensAt, &closesAt, &shared, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Visibility = models.Visibility(visibility)
	e.RegistrationOpensAt = nullTimePtr(opensAt)
	e.RegistrationClosesAt = nullTimePtr(closesAt)
	e.SharedCapacity = nullIntPtr(shared)
	return &e, nil
}

func (s *PostgresStore) GetEdition(ctx context.Context, id uuid.UUID) (*models.Edition, error) {
	query := `SELECT ` + editionColumns + ` FROM editions WHERE id = $1`
	e, err := scanEdition(s.q(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "get edition")
	}
	return e, nil
}

func (s *PostgresStore) LockEdition(ctx context.Context, id uuid.UUID) (*models.Edition, error) {
	query := `SELECT ` + editionColumns + ` FROM editions WHERE id = $1 FOR UPDATE`
	e, err := scanEdition(s.q(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "lock edition")
	}
	return e, nil
}

func (s *PostgresStore) UpdateEditionSharedCapacity(ctx context.Context, id uuid.UUID, capacity *int) error {
	res, err := s.q(ctx).ExecContext(ctx, `UPDATE editions SET shared_capacity = $2 WHERE id = $1`, id, capacity)
	if err != nil {
		return fmt.Errorf("update shared capacity: %w", err)
	}
	return expectOne(res, sentinel.ErrNotFound)
}

const distanceColumns = `id, edition_id, label, capacity, capacity_scope, sort_order`

func scanDistance(row scanner) (*models.Distance, error) {
	var (
		d        models.Distance
		capacity sql.NullInt64
		scope    string
	)
	if err := row.Scan(&d.ID, &d.EditionID, &d.Label, &capacity, &scope, &d.SortOrder); err != nil {
		return nil, err
	}
	d.Capacity = nullIntPtr(capacity)
	d.CapacityScope = models.CapacityScope(scope)
	return &d, nil
}

func (s *PostgresStore) GetDistance(ctx context.Context, id uuid.UUID) (*models.Distance, error) {
	return s.loadDistance(ctx, `SELECT `+distanceColumns+` FROM distances WHERE id = $1`, id, "get distance")
}

func (s *PostgresStore) LockDistance(ctx context.Context, id uuid.UUID) (*models.Distance, error) {
	return s.loadDistance(ctx, `SELECT `+distanceColumns+` FROM distances WHERE id = $1 FOR UPDATE`, id, "lock distance")
}

func (s *PostgresStore) loadDistance(ctx context.Context, query string, id uuid.UUID, op string) (*models.Distance, error) {
	d, err := scanDistance(s.q(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, op)
	}
	tiers, err := s.listTiers(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	d.PricingTiers = tiers[id]
	return d, nil
}

func (s *PostgresStore) ListDistances(ctx context.Context, editionID uuid.UUID) ([]*models.Distance, error) {
	query := `SELECT ` + distanceColumns + ` FROM distances WHERE edition_id = $1 ORDER BY sort_order, id`
	rows, err := s.q(ctx).QueryContext(ctx, query, editionID)
	if err != nil {
		return nil, fmt.Errorf("list distances: %w", err)
	}
	defer rows.Close()

	var (
		out []*models.Distance
		ids []uuid.UUID
	)
	for rows.Next() {
		d, err := scanDistance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan distance: %w", err)
		}
		out = append(out, d)
		ids = append(ids, d.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distances: %w", err)
	}
	if len(ids) == 0 {
		return out, nil
	}
	tiers, err := s.listTiers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, d := range out {
		d.PricingTiers = tiers[d.ID]
	}
	return out, nil
}

func (s *PostgresStore) listTiers(ctx context.Context, distanceIDs []uuid.UUID) (map[uuid.UUID][]models.PricingTier, error) {
	query := `
		SELECT id, distance_id, label, price_cents, starts_at, ends_at, sort_order
		FROM pricing_tiers
		WHERE distance_id = ANY($1::uuid[])
		ORDER BY sort_order, id
	`
	rows, err := s.q(ctx).QueryContext(ctx, query, uuidArray(distanceIDs))
	if err != nil {
		return nil, fmt.Errorf("list pricing tiers: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]models.PricingTier)
	for rows.Next() {
		var (
			t        models.PricingTier
			startsAt sql.NullTime
			endsAt   sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.DistanceID, &t.Label, &t.PriceCents, &startsAt, &endsAt, &t.SortOrder); err != nil {
			return nil, fmt.Errorf("scan pricing tier: %w", err)
		}
		t.StartsAt = nullTimePtr(startsAt)
		t.EndsAt = nullTimePtr(endsAt)
		out[t.DistanceID] = append(out[t.DistanceID], t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pricing tiers: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateDistanceCapacity(ctx context.Context, id uuid.UUID, capacity *int) error {
	res, err := s.q(ctx).ExecContext(ctx, `UPDATE distances SET capacity = $2 WHERE id = $1`, id, capacity)
	if err != nil {
		return fmt.Errorf("update distance capacity: %w", err)
	}
	return expectOne(res, sentinel.ErrNotFound)
}

// reservedPredicate mirrors capacity.IsReserved.
const reservedPredicate = `r.deleted_at IS NULL AND (
		r.status = 'confirmed'
		OR (r.status IN ('started', 'submitted', 'payment_pending') AND r.expires_at > $2)
	)`

func (s *PostgresStore) CountReserved(ctx context.Context, scope models.ReservationScope, now time.Time, exclude *uuid.UUID) (int, error) {
	var (
		query string
		key   uuid.UUID
	)
	switch scope.Kind {
	case models.ScopeKindPool:
		query = `
			SELECT COUNT(*) FROM registrations r
			JOIN distances d ON d.id = r.distance_id
			WHERE r.edition_id = $1 AND d.capacity_scope = 'shared_pool' AND ` + reservedPredicate + `
			AND ($3::uuid IS NULL OR r.id <> $3)`
		key = scope.EditionID
	case models.ScopeKindDistance:
		query = `
			SELECT COUNT(*) FROM registrations r
			WHERE r.distance_id = $1 AND ` + reservedPredicate + `
			AND ($3::uuid IS NULL OR r.id <> $3)`
		key = scope.DistanceID
	default:
		return 0, nil
	}

	var count int
	if err := s.q(ctx).QueryRowContext(ctx, query, key, now, exclude).Scan(&count); err != nil {
		return 0, fmt.Errorf("count reserved: %w", err)
	}
	return count, nil
}

func notFound(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func expectOne(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return none
	}
	return nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullIntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullUUIDPtr(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	v := n.UUID
	return &v
}

func nullStringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}
