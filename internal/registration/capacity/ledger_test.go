package capacity_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"raceday/internal/registration/capacity"
	"raceday/internal/registration/models"
	"raceday/internal/registration/ports"
	"raceday/internal/registration/store"
	"raceday/pkg/platform/sentinel"
)

type LedgerSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	mem     *store.InMemoryStore
	tx      *store.MemoryTx
	edition models.Edition
	pooled  models.Distance
	pooled2 models.Distance
	solo    models.Distance
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func intPtr(v int) *int { return &v }

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.mem = store.NewInMemoryStore()
	s.tx = store.NewMemoryTx(s.mem)

	s.edition = models.Edition{ID: uuid.New(), Visibility: models.VisibilityPublished, SharedCapacity: intPtr(3)}
	s.pooled = models.Distance{ID: uuid.New(), EditionID: s.edition.ID, Label: "10K", CapacityScope: models.ScopeSharedPool}
	s.pooled2 = models.Distance{ID: uuid.New(), EditionID: s.edition.ID, Label: "5K", CapacityScope: models.ScopeSharedPool}
	s.solo = models.Distance{ID: uuid.New(), EditionID: s.edition.ID, Label: "Kids", Capacity: intPtr(1), CapacityScope: models.ScopePerDistance}
	s.mem.SeedEdition(s.edition)
	s.mem.SeedDistance(s.pooled)
	s.mem.SeedDistance(s.pooled2)
	s.mem.SeedDistance(s.solo)
}

func (s *LedgerSuite) seed(distance models.Distance, status models.Status, expiresAt *time.Time) uuid.UUID {
	id := uuid.New()
	s.mem.SeedRegistration(models.Registration{
		ID:         id,
		EditionID:  distance.EditionID,
		DistanceID: distance.ID,
		Status:     status,
		ExpiresAt:  expiresAt,
		CreatedAt:  s.now,
		UpdatedAt:  s.now,
	})
	return id
}

func (s *LedgerSuite) TestIsReserved() {
	future := s.now.Add(time.Minute)
	past := s.now.Add(-time.Minute)
	deleted := s.now

	cases := []struct {
		name string
		reg  models.Registration
		want bool
	}{
		{"confirmed", models.Registration{Status: models.StatusConfirmed}, true},
		{"live hold", models.Registration{Status: models.StatusStarted, ExpiresAt: &future}, true},
		{"payment pending hold", models.Registration{Status: models.StatusPaymentPending, ExpiresAt: &future}, true},
		{"lapsed hold", models.Registration{Status: models.StatusSubmitted, ExpiresAt: &past}, false},
		{"hold expiring now", models.Registration{Status: models.StatusStarted, ExpiresAt: &s.now}, false},
		{"provisional without expiry", models.Registration{Status: models.StatusStarted}, false},
		{"cancelled", models.Registration{Status: models.StatusCancelled}, false},
		{"soft deleted", models.Registration{Status: models.StatusConfirmed, DeletedAt: &deleted}, false},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.Equal(tc.want, capacity.IsReserved(&tc.reg, s.now))
		})
	}
}

func (s *LedgerSuite) TestPoolCountsAcrossSharedDistances() {
	future := s.now.Add(10 * time.Minute)
	s.seed(s.pooled, models.StatusConfirmed, nil)
	s.seed(s.pooled2, models.StatusStarted, &future)
	s.seed(s.solo, models.StatusConfirmed, nil)

	err := s.tx.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
		locked, err := capacity.Lock(ctx, st, s.edition.ID, s.pooled.ID)
		s.Require().NoError(err)
		scope, ok := locked.Scope(s.pooled.ID)
		s.Require().True(ok)
		s.Equal(models.ScopeKindPool, scope.Kind)

		res, err := capacity.Check(ctx, st, scope, s.now, 1, nil)
		s.Require().NoError(err)
		s.Equal(2, res.Reserved)
		s.True(res.Admitted)
		s.Equal(1, res.Remaining())

		res, err = capacity.Check(ctx, st, scope, s.now, 2, nil)
		s.Require().NoError(err)
		s.False(res.Admitted)
		return nil
	})
	s.Require().NoError(err)
}

func (s *LedgerSuite) TestExcludeSelf() {
	own := s.seed(s.solo, models.StatusSubmitted, ptrTime(s.now.Add(time.Minute)))

	err := s.tx.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
		locked, err := capacity.Lock(ctx, st, s.edition.ID, s.solo.ID)
		s.Require().NoError(err)
		scope, _ := locked.Scope(s.solo.ID)

		res, err := capacity.Check(ctx, st, scope, s.now, 1, nil)
		s.Require().NoError(err)
		s.False(res.Admitted, "own hold fills the single slot")

		res, err = capacity.Check(ctx, st, scope, s.now, 1, &own)
		s.Require().NoError(err)
		s.True(res.Admitted, "re-entrant check ignores own reservation")
		return nil
	})
	s.Require().NoError(err)
}

func (s *LedgerSuite) TestUncappedAlwaysAdmits() {
	open := models.Distance{ID: uuid.New(), EditionID: s.edition.ID, CapacityScope: models.ScopePerDistance}
	s.mem.SeedDistance(open)

	err := s.tx.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
		locked, err := capacity.Lock(ctx, st, s.edition.ID, open.ID)
		s.Require().NoError(err)
		scope, _ := locked.Scope(open.ID)
		s.False(scope.Capped())

		res, err := capacity.Check(ctx, st, scope, s.now, 500, nil)
		s.Require().NoError(err)
		s.True(res.Admitted)
		s.Equal(-1, res.Remaining())
		return nil
	})
	s.Require().NoError(err)
}

func (s *LedgerSuite) TestLockRejectsForeignDistance() {
	other := models.Edition{ID: uuid.New()}
	foreign := models.Distance{ID: uuid.New(), EditionID: other.ID}
	s.mem.SeedEdition(other)
	s.mem.SeedDistance(foreign)

	err := s.tx.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
		_, err := capacity.Lock(ctx, st, s.edition.ID, foreign.ID)
		return err
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *LedgerSuite) TestDemandAggregatesPerScope() {
	s.seed(s.pooled, models.StatusConfirmed, nil)

	err := s.tx.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
		locked, err := capacity.Lock(ctx, st, s.edition.ID, s.pooled2.ID, s.pooled.ID, s.solo.ID)
		s.Require().NoError(err)

		demand := capacity.NewDemand()
		for _, id := range []uuid.UUID{s.pooled.ID, s.pooled2.ID} {
			scope, _ := locked.Scope(id)
			demand.Add(scope, 1)
		}
		shortfall, err := demand.CheckAll(ctx, st, s.now)
		s.Require().NoError(err)
		s.Nil(shortfall, "1 reserved + 2 requested fits a pool of 3")

		scope, _ := locked.Scope(s.pooled.ID)
		demand.Add(scope, 1)
		shortfall, err = demand.CheckAll(ctx, st, s.now)
		s.Require().NoError(err)
		s.Require().NotNil(shortfall)
		s.Equal(3, shortfall.Requested)
		s.Equal(1, shortfall.Reserved)
		return nil
	})
	s.Require().NoError(err)
}

func ptrTime(t time.Time) *time.Time { return &t }
