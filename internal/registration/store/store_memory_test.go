package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"raceday/internal/registration/models"
	"raceday/internal/registration/ports"
	"raceday/pkg/platform/audit"
	"raceday/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	ctx   context.Context
	now   time.Time
	store *InMemoryStore
	tx    *MemoryTx
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.store = NewInMemoryStore()
	s.tx = NewMemoryTx(s.store)
}

func (s *InMemoryStoreSuite) newRegistration(status models.Status) models.Registration {
	exp := s.now.Add(30 * time.Minute)
	return models.Registration{
		ID:         uuid.New(),
		EditionID:  uuid.New(),
		DistanceID: uuid.New(),
		Status:     status,
		ExpiresAt:  &exp,
		CreatedAt:  s.now,
		UpdatedAt:  s.now,
	}
}

func (s *InMemoryStoreSuite) TestRollbackDiscardsWritesAndAudit() {
	reg := s.newRegistration(models.StatusStarted)
	boom := errors.New("boom")

	err := s.tx.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
		s.Require().NoError(st.InsertRegistration(ctx, &reg))
		s.Require().NoError(st.AppendAudit(ctx, audit.New(audit.EventRegistrationStarted, s.now)))
		return boom
	})
	s.ErrorIs(err, boom)
	s.Empty(s.store.Registrations())
	s.Empty(s.store.Audit().ListAll(s.ctx))
}

func (s *InMemoryStoreSuite) TestCommitPublishesWritesAndAudit() {
	reg := s.newRegistration(models.StatusStarted)

	err := s.tx.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
		if err := st.InsertRegistration(ctx, &reg); err != nil {
			return err
		}
		return st.AppendAudit(ctx, audit.New(audit.EventRegistrationStarted, s.now))
	})
	s.Require().NoError(err)
	s.Len(s.store.Registrations(), 1)
	s.Len(s.store.Audit().ListByAction(s.ctx, audit.EventRegistrationStarted), 1)
}

func (s *InMemoryStoreSuite) TestNestedRunJoinsOuterUnit() {
	reg := s.newRegistration(models.StatusStarted)

	err := s.tx.RunInTx(s.ctx, func(ctx context.Context, _ ports.Store) error {
		return s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
			return st.InsertRegistration(ctx, &reg)
		})
	})
	s.Require().NoError(err)
	s.Len(s.store.Registrations(), 1)
}

func (s *InMemoryStoreSuite) TestCompareAndSetStatus() {
	reg := s.newRegistration(models.StatusStarted)
	s.store.SeedRegistration(reg)

	s.Run("moves from an expected status", func() {
		err := s.tx.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
			return st.CompareAndSetStatus(ctx, reg.ID, []models.Status{models.StatusStarted}, models.StatusSubmitted, nil, s.now)
		})
		s.Require().NoError(err)
		s.Equal(models.StatusSubmitted, s.store.Registrations()[0].Status)
		s.Nil(s.store.Registrations()[0].ExpiresAt)
	})

	s.Run("stale expectation matches no row", func() {
		err := s.tx.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
			return st.CompareAndSetStatus(ctx, reg.ID, []models.Status{models.StatusStarted}, models.StatusSubmitted, nil, s.now)
		})
		s.ErrorIs(err, sentinel.ErrStaleState)
	})
}

func (s *InMemoryStoreSuite) TestConcurrentCompareAndSetHasOneWinner() {
	reg := s.newRegistration(models.StatusStarted)
	s.store.SeedRegistration(reg)

	const goroutines = 20
	var wg sync.WaitGroup
	var wins, stale atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.tx.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
				return st.CompareAndSetStatus(ctx, reg.ID, []models.Status{models.StatusStarted}, models.StatusSubmitted, nil, s.now)
			})
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

func (s *InMemoryStoreSuite) TestAssignBuyer() {
	systemBuyer := uuid.New()
	claimant := uuid.New()
	other := uuid.New()
	reg := s.newRegistration(models.StatusPaymentPending)
	reg.BuyerUserID = &systemBuyer
	s.store.SeedRegistration(reg)

	run := func(buyer uuid.UUID, replaceable ...uuid.UUID) error {
		return s.tx.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
			return st.AssignBuyer(ctx, reg.ID, buyer, replaceable, s.now)
		})
	}

	s.ErrorIs(run(claimant), sentinel.ErrStaleState, "system buyer is not replaceable unless named")
	s.NoError(run(claimant, systemBuyer))
	s.NoError(run(claimant, systemBuyer), "re-assigning the same buyer is idempotent")
	s.ErrorIs(run(other, systemBuyer), sentinel.ErrStaleState)
}

func (s *InMemoryStoreSuite) TestWaiverAcceptanceIsAtMostOnce() {
	regID, waiverID := uuid.New(), uuid.New()

	var inserted []bool
	for i := 0; i < 2; i++ {
		err := s.tx.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
			ok, err := st.InsertWaiverAcceptance(ctx, &models.WaiverAcceptance{
				ID: uuid.New(), RegistrationID: regID, WaiverID: waiverID, AcceptedAt: s.now,
			})
			inserted = append(inserted, ok)
			return err
		})
		s.Require().NoError(err)
	}
	s.Equal([]bool{true, false}, inserted)
}

func (s *InMemoryStoreSuite) TestCurrentInviteUniqueness() {
	regID, rowID := uuid.New(), uuid.New()
	insert := func(hash string) error {
		return s.tx.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
			return st.InsertInvite(ctx, &models.Invite{
				ID: uuid.New(), RegistrationID: regID, BatchRowID: &rowID, TokenHash: hash,
				Status: models.InviteSent, IsCurrent: true, CreatedAt: s.now,
			})
		})
	}

	s.Require().NoError(insert("a"))
	s.ErrorIs(insert("b"), sentinel.ErrConflict)

	err := s.tx.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
		n, err := st.SupersedeCurrentInvites(ctx, regID)
		s.Equal(1, n)
		return err
	})
	s.Require().NoError(err)
	s.NoError(insert("b"))
	s.ErrorIs(insert("b"), sentinel.ErrConflict, "token hashes are unique")
}

func (s *InMemoryStoreSuite) TestCurrentInvitePerEditionEmail() {
	editionID := uuid.New()
	insert := func(editionID uuid.UUID, email, hash string) error {
		return s.tx.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
			return st.InsertInvite(ctx, &models.Invite{
				ID: uuid.New(), EditionID: editionID, RegistrationID: uuid.New(), Email: email,
				TokenHash: hash, Status: models.InviteSent, IsCurrent: true, CreatedAt: s.now,
			})
		})
	}

	s.Run("a second current invite to the same email conflicts", func() {
		s.Require().NoError(insert(editionID, "ada@example.com", "e1"))
		s.ErrorIs(insert(editionID, " Ada@Example.com ", "e2"), sentinel.ErrConflict)
	})

	s.Run("other editions and emails are independent", func() {
		s.NoError(insert(uuid.New(), "ada@example.com", "e3"))
		s.NoError(insert(editionID, "alan@example.com", "e4"))
	})

	s.Run("lookup finds the current invite by normalized email", func() {
		err := s.tx.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
			inv, err := st.CurrentInviteForEmail(ctx, editionID, "ADA@example.com")
			s.Require().NoError(err)
			s.Equal("e1", inv.TokenHash)

			_, err = st.CurrentInviteForEmail(ctx, editionID, "nobody@example.com")
			s.ErrorIs(err, sentinel.ErrNotFound)
			return nil
		})
		s.Require().NoError(err)
	})
}

func (s *InMemoryStoreSuite) TestBackfillProfileDOB() {
	userID := uuid.New()
	s.store.SeedUser(models.User{ID: userID, Email: "a@example.com"}, "")

	backfill := func(dob string) error {
		return s.tx.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
			return st.BackfillProfileDOB(ctx, userID, dob)
		})
	}
	s.NoError(backfill("1990-01-15"))
	s.NoError(backfill("1990-01-15"))
	s.ErrorIs(backfill("1991-02-02"), sentinel.ErrStaleState)

	p, ok := s.store.Profile(userID)
	s.True(ok)
	s.Equal("1990-01-15", p.DateOfBirth)
}

func (s *InMemoryStoreSuite) TestExpireStaleHolds() {
	lapsed := s.newRegistration(models.StatusStarted)
	past := s.now.Add(-time.Minute)
	lapsed.ExpiresAt = &past
	live := s.newRegistration(models.StatusSubmitted)
	s.store.SeedRegistration(lapsed)
	s.store.SeedRegistration(live)

	var expired []*models.Registration
	err := s.tx.RunInTx(s.ctx, func(ctx context.Context, st ports.Store) error {
		var err error
		expired, err = st.ExpireStaleHolds(ctx, s.now, 10)
		return err
	})
	s.Require().NoError(err)
	s.Require().Len(expired, 1)
	s.Equal(lapsed.ID, expired[0].ID)
	s.Equal(models.StatusCancelled, expired[0].Status)
	s.Require().NotNil(expired[0].ExpiresAt)
	s.Equal(past, *expired[0].ExpiresAt)
}
