//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"raceday/internal/registration/capacity"
	"raceday/internal/registration/models"
	"raceday/internal/registration/ports"
	"raceday/internal/registration/store"
	"raceday/pkg/platform/audit"
	"raceday/pkg/platform/sentinel"
	"raceday/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	tx       *store.PostgresTx
	ctx      context.Context

	editionID  uuid.UUID
	distanceID uuid.UUID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.tx = store.NewPostgresTx(s.postgres.DB, s.store, 10*time.Second)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, containers.AllTables()...))

	s.editionID = uuid.New()
	s.distanceID = uuid.New()
	_, err := s.postgres.DB.ExecContext(s.ctx, `
		INSERT INTO editions (id, organization_id, name, visibility) VALUES ($1, $2, 'Spring 10K', 'published')`,
		s.editionID, uuid.New())
	s.Require().NoError(err)
	_, err = s.postgres.DB.ExecContext(s.ctx, `
		INSERT INTO distances (id, edition_id, label, capacity, capacity_scope) VALUES ($1, $2, '10K', 5, 'per_distance')`,
		s.distanceID, s.editionID)
	s.Require().NoError(err)
	_, err = s.postgres.DB.ExecContext(s.ctx, `
		INSERT INTO pricing_tiers (id, distance_id, label, price_cents, sort_order) VALUES ($1, $2, 'Early', 4500, 0)`,
		uuid.New(), s.distanceID)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newRegistration(status models.Status, expiresAt *time.Time) *models.Registration {
	now := time.Now().UTC()
	return &models.Registration{
		ID:                    uuid.New(),
		EditionID:             s.editionID,
		DistanceID:            s.distanceID,
		PaymentResponsibility: models.PaymentSelfPay,
		Status:                status,
		ExpiresAt:             expiresAt,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func (s *PostgresStoreSuite) TestDistanceLoadsPricingTiers() {
	d, err := s.store.GetDistance(s.ctx, s.distanceID)
	s.Require().NoError(err)
	s.Require().Len(d.PricingTiers, 1)
	s.Equal(int64(4500), d.PriceAt(time.Now()))
	s.Require().NotNil(d.Capacity)
	s.Equal(5, *d.Capacity)

	_, err = s.store.GetDistance(s.ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestCountReservedHonoursLazyExpiry() {
	now := time.Now().UTC()
	future := now.Add(time.Hour)
	past := now.Add(-time.Minute)

	for _, reg := range []*models.Registration{
		s.newRegistration(models.StatusConfirmed, nil),
		s.newRegistration(models.StatusStarted, &future),
		s.newRegistration(models.StatusStarted, &past),
		s.newRegistration(models.StatusCancelled, nil),
	} {
		s.Require().NoError(s.store.InsertRegistration(s.ctx, reg))
	}

	scope := models.ReservationScope{Kind: models.ScopeKindDistance, EditionID: s.editionID, DistanceID: s.distanceID}
	count, err := s.store.CountReserved(s.ctx, scope, now, nil)
	s.Require().NoError(err)
	s.Equal(2, count)
}

func (s *PostgresStoreSuite) TestRollbackDropsOutboxRow() {
	boom := errors.New("boom")
	err := s.tx.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
		s.Require().NoError(st.InsertRegistration(ctx, s.newRegistration(models.StatusConfirmed, nil)))
		s.Require().NoError(st.AppendAudit(ctx, audit.New(audit.EventRegistrationStarted, time.Now())))
		return boom
	})
	s.ErrorIs(err, boom)

	var regs, outbox int
	s.Require().NoError(s.postgres.DB.QueryRowContext(s.ctx, `SELECT COUNT(*) FROM registrations`).Scan(&regs))
	s.Require().NoError(s.postgres.DB.QueryRowContext(s.ctx, `SELECT COUNT(*) FROM outbox`).Scan(&outbox))
	s.Zero(regs)
	s.Zero(outbox)
}

func (s *PostgresStoreSuite) TestCompareAndSetStatusIsExclusive() {
	exp := time.Now().Add(time.Hour)
	reg := s.newRegistration(models.StatusStarted, &exp)
	s.Require().NoError(s.store.InsertRegistration(s.ctx, reg))

	const goroutines = 20
	var wg sync.WaitGroup
	var wins, stale atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := time.Now().Add(time.Hour)
			err := s.store.CompareAndSetStatus(s.ctx, reg.ID, []models.Status{models.StatusStarted}, models.StatusSubmitted, &next, time.Now())
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrStaleState):
				stale.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
	s.Equal(int32(goroutines-1), stale.Load())
}

// TestLockedAdmissionNeverOverbooks races admissions for a distance of capacity 5 and
// verifies the row lock keeps the reserved count within the limit.
func (s *PostgresStoreSuite) TestLockedAdmissionNeverOverbooks() {
	const goroutines = 30
	var wg sync.WaitGroup
	var admitted, soldOut atomic.Int32
	errSoldOut := errors.New("sold out")

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.tx.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
				now := time.Now().UTC()
				locked, err := capacity.Lock(ctx, st, s.editionID, s.distanceID)
				if err != nil {
					return err
				}
				scope, _ := locked.Scope(s.distanceID)
				res, err := capacity.Check(ctx, st, scope, now, 1, nil)
				if err != nil {
					return err
				}
				if !res.Admitted {
					return errSoldOut
				}
				exp := now.Add(30 * time.Minute)
				return st.InsertRegistration(ctx, s.newRegistration(models.StatusStarted, &exp))
			})
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, errSoldOut):
				soldOut.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(5), admitted.Load())
	s.Equal(int32(goroutines-5), soldOut.Load())

	scope := models.ReservationScope{Kind: models.ScopeKindDistance, EditionID: s.editionID, DistanceID: s.distanceID}
	count, err := s.store.CountReserved(s.ctx, scope, time.Now().UTC(), nil)
	s.Require().NoError(err)
	s.Equal(5, count)
}

func (s *PostgresStoreSuite) TestAssignBuyerReplacesPlaceholderOnce() {
	const claimants = 8
	systemID := uuid.New()
	_, err := s.postgres.DB.ExecContext(s.ctx,
		`INSERT INTO users (id, email, email_verified, is_system) VALUES ($1, 'group-registrations@system.raceday.local', TRUE, TRUE)`, systemID)
	s.Require().NoError(err)

	users := make([]uuid.UUID, claimants)
	for i := range users {
		users[i] = uuid.New()
		_, err := s.postgres.DB.ExecContext(s.ctx,
			`INSERT INTO users (id, email, email_verified) VALUES ($1, $2, TRUE)`, users[i], users[i].String()+"@example.com")
		s.Require().NoError(err)
	}

	reg := s.newRegistration(models.StatusConfirmed, nil)
	reg.BuyerUserID = &systemID
	s.Require().NoError(s.store.InsertRegistration(s.ctx, reg))

	var wg sync.WaitGroup
	var won, stale atomic.Int32
	for _, userID := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.tx.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
				if _, err := st.LockRegistration(ctx, reg.ID); err != nil {
					return err
				}
				return st.AssignBuyer(ctx, reg.ID, userID, []uuid.UUID{systemID}, time.Now().UTC())
			})
			switch {
			case err == nil:
				won.Add(1)
			case errors.Is(err, sentinel.ErrStaleState):
				stale.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), won.Load())
	s.Equal(int32(claimants-1), stale.Load())

	got, err := s.store.GetRegistration(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.BuyerUserID)
	s.NotEqual(systemID, *got.BuyerUserID)
}

func (s *PostgresStoreSuite) TestWaiverAcceptanceOnConflictDoNothing() {
	reg := s.newRegistration(models.StatusConfirmed, nil)
	s.Require().NoError(s.store.InsertRegistration(s.ctx, reg))
	waiverID := uuid.New()
	_, err := s.postgres.DB.ExecContext(s.ctx, `
		INSERT INTO waivers (id, edition_id, title, body, version_hash) VALUES ($1, $2, 'Release', 'text', 'v1')`,
		waiverID, s.editionID)
	s.Require().NoError(err)

	accept := func() bool {
		ok, err := s.store.InsertWaiverAcceptance(s.ctx, &models.WaiverAcceptance{
			ID: uuid.New(), RegistrationID: reg.ID, WaiverID: waiverID, WaiverVersionHash: "v1",
			SignatureType: models.SignatureCheckbox, AcceptedAt: time.Now(),
		})
		s.Require().NoError(err)
		return ok
	}
	s.True(accept())
	s.False(accept())

	list, err := s.store.ListWaiverAcceptances(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Len(list, 1)
}

func (s *PostgresStoreSuite) TestCurrentInviteUniqueIndex() {
	reg := s.newRegistration(models.StatusPaymentPending, ptr(time.Now().Add(time.Hour)))
	s.Require().NoError(s.store.InsertRegistration(s.ctx, reg))

	newInvite := func(hash string) *models.Invite {
		return &models.Invite{
			ID: uuid.New(), EditionID: s.editionID, RegistrationID: reg.ID, Email: "a@example.com",
			TokenHash: hash, Status: models.InviteSent, IsCurrent: true, CreatedAt: time.Now(),
		}
	}
	s.Require().NoError(s.store.InsertInvite(s.ctx, newInvite("h1")))
	s.ErrorIs(s.store.InsertInvite(s.ctx, newInvite("h2")), sentinel.ErrConflict)

	n, err := s.store.SupersedeCurrentInvites(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.NoError(s.store.InsertInvite(s.ctx, newInvite("h2")))

	s.Run("one current invite per edition and email", func() {
		other := s.newRegistration(models.StatusPaymentPending, ptr(time.Now().Add(time.Hour)))
		s.Require().NoError(s.store.InsertRegistration(s.ctx, other))
		inv := newInvite("h3")
		inv.RegistrationID = other.ID
		inv.Email = "A@Example.com"
		err := s.store.InsertInvite(s.ctx, inv)
		s.ErrorIs(err, sentinel.ErrConflict)
		s.Contains(err.Error(), "uq_registration_invites_current_email")

		current, err := s.store.CurrentInviteForEmail(s.ctx, s.editionID, "a@example.com")
		s.Require().NoError(err)
		s.Equal(reg.ID, current.RegistrationID)
		s.Equal("h2", current.TokenHash)

		_, err = s.store.CurrentInviteForEmail(s.ctx, s.editionID, "b@example.com")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func ptr[T any](v T) *T { return &v }
