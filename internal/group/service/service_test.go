package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"raceday/internal/group/parser"
	"raceday/internal/registration/metrics"
	"raceday/internal/registration/models"
	"raceday/internal/registration/store"
	dErrors "raceday/pkg/domain-errors"
	"raceday/pkg/platform/audit"
	"raceday/pkg/requestcontext"
)

type GroupServiceSuite struct {
	suite.Suite
	ctx       context.Context
	now       time.Time
	store     *store.InMemoryStore
	service   *Service
	edition   models.Edition
	fiveK     models.Distance
	tenK      models.Distance
	shirt     models.AddOnOption
	organizer uuid.UUID
}

func TestGroupServiceSuite(t *testing.T) {
	suite.Run(t, new(GroupServiceSuite))
}

func (s *GroupServiceSuite) SetupTest() {
	s.now = time.Date(2026, 4, 12, 8, 30, 0, 0, time.UTC)
	s.store = store.NewInMemoryStore()
	s.organizer = uuid.New()
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	s.edition = models.Edition{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		Name:           "River Run 2026",
		Visibility:     models.VisibilityPublished,
		CreatedAt:      s.now.Add(-48 * time.Hour),
	}
	s.store.SeedEdition(s.edition)
	s.store.SeedUser(models.User{ID: s.organizer, Email: "organizer@example.com", EmailVerified: true}, "")
	s.store.SeedMembership(s.edition.OrganizationID, s.organizer, "admin")

	s.fiveK = s.seedDistance("5K", 10, 4000)
	s.tenK = s.seedDistance("10K", 10, 6000)

	s.shirt = models.AddOnOption{
		ID:             uuid.New(),
		AddOnID:        uuid.New(),
		EditionID:      s.edition.ID,
		Label:          "Technical shirt",
		PriceCents:     1500,
		MaxQtyPerOrder: 2,
		IsActive:       true,
	}
	s.store.SeedAddOnOption(s.shirt)

	s.store.SeedDiscountRule(models.GroupDiscountRule{ID: uuid.New(), EditionID: s.edition.ID, MinParticipants: 5, PercentOff: 5, IsActive: true})
	s.store.SeedDiscountRule(models.GroupDiscountRule{ID: uuid.New(), EditionID: s.edition.ID, MinParticipants: 7, PercentOff: 10, IsActive: true})
	s.store.SeedDiscountRule(models.GroupDiscountRule{ID: uuid.New(), EditionID: s.edition.ID, MinParticipants: 2, PercentOff: 50, IsActive: false})

	s.service = s.newService()
}

func (s *GroupServiceSuite) newService(opts ...Option) *Service {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(metrics.NewWith(prometheus.NewRegistry())),
	}
	return New(store.NewMemoryTx(s.store), append(base, opts...)...)
}

func (s *GroupServiceSuite) seedDistance(label string, capacity int, price int64) models.Distance {
	id := uuid.New()
	d := models.Distance{
		ID:            id,
		EditionID:     s.edition.ID,
		Label:         label,
		Capacity:      &capacity,
		CapacityScope: models.ScopePerDistance,
		PricingTiers:  []models.PricingTier{{ID: uuid.New(), DistanceID: id, Label: "Standard", PriceCents: price}},
	}
	s.store.SeedDistance(d)
	return d
}

const csvHeader = "firstName,lastName,email,dateOfBirth,distanceLabel,addOnSelections\n"

// team renders n clean rows on distance.
func team(n int, distance string) string {
	var b strings.Builder
	b.WriteString(csvHeader)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Runner,No%d,runner%d@example.com,1990-01-%02d,%s,\n", i, i, i+1, distance)
	}
	return b.String()
}

func (s *GroupServiceSuite) upload(csv string) *BatchResult {
	res, err := s.service.Upload(s.ctx, s.organizer, s.edition.ID, "team.csv", strings.NewReader(csv))
	s.Require().NoError(err)
	return res
}

func (s *GroupServiceSuite) requireCode(err error, code dErrors.Code) {
	s.T().Helper()
	s.Require().Error(err)
	s.Equal(code, dErrors.CodeOf(err), err.Error())
}

func decodeRow(r *models.BatchRow) parser.Row {
	var out parser.Row
	_ = json.Unmarshal(r.Raw, &out)
	return out
}

func (s *GroupServiceSuite) TestUpload() {
	s.Run("clean file is validated and rows carry the resolved distance", func() {
		res := s.upload(csvHeader +
			"Ada,Lovelace, Ada@Example.com ,1990-12-10,5k,\n" +
			"Alan,Turing,alan@example.com,1985-06-23,10K,\n")

		s.Equal(models.BatchValidated, res.Batch.Status)
		s.Equal(2, res.Batch.RowCount)
		s.Zero(res.Batch.ErrorCount)
		s.Require().Len(res.Rows, 2)

		first := decodeRow(res.Rows[0])
		s.Equal("ada@example.com", first.Email)
		s.Equal(s.fiveK.ID.String(), first.DistanceID)
		s.Equal("5K", first.DistanceLabel)
		s.Empty(s.store.Registrations(), "upload never consumes capacity")
		s.Len(s.store.Audit().ListByAction(s.ctx, audit.EventGroupBatchUploaded), 1)
	})

	s.Run("every row problem is collected and the batch fails", func() {
		s.SetupTest()
		existing := uuid.New()
		s.store.SeedUser(models.User{ID: existing, Email: "taken@example.com", EmailVerified: true}, "1980-02-02")
		s.store.SeedRegistration(models.Registration{
			ID: uuid.New(), EditionID: s.edition.ID, DistanceID: s.tenK.ID, BuyerUserID: &existing,
			PaymentResponsibility: models.PaymentSelfPay, Status: models.StatusConfirmed, CreatedAt: s.now,
		})

		res := s.upload(csvHeader +
			",Lovelace,ada@example.com,1990-12-10,5K,\n" +
			"Alan,Turing,not-an-email,1985-06-23,5K,\n" +
			"Grace,Hopper,grace@example.com,12/09/1906,5K,\n" +
			"Linus,T,linus@example.com,1969-12-28,Marathon,\n" +
			"Ken,Thompson,ken@example.com,1943-02-04,5K,\n" +
			"Ken,Thompson,KEN@example.com,1943-02-04,10K,\n" +
			fmt.Sprintf(`Rob,Pike,rob@example.com,1956-01-01,5K,"[{""optionId"":""%s"",""quantity"":3}]"`, s.shirt.ID) + "\n" +
			"Taken,User,taken@example.com,1980-02-02,5K,\n" +
			"Bad,Json,bad@example.com,1970-01-01,5K,[oops\n")

		s.Equal(models.BatchFailed, res.Batch.Status)
		s.Equal(9, res.Batch.RowCount)
		s.Equal(8, res.Batch.ErrorCount)
		s.Require().Len(res.Rows, 9)

		expect := map[int]string{
			0: "firstName is required",
			1: "email is not a valid address",
			2: "dateOfBirth must be YYYY-MM-DD",
			3: `distanceLabel "Marathon" does not match any distance`,
			5: "duplicate of row 5",
			6: "allows at most 2 per order",
			7: "already has an active registration",
			8: "must be a JSON array",
		}
		for idx, want := range expect {
			s.Require().NotEmpty(res.Rows[idx].ValidationErrors, "row %d", idx)
			s.Contains(strings.Join(res.Rows[idx].ValidationErrors, "; "), want, "row %d", idx)
		}
		s.Empty(res.Rows[4].ValidationErrors)
	})

	s.Run("a distance that is already full is flagged from a snapshot", func() {
		s.SetupTest()
		full := s.seedDistance("Kids", 1, 1000)
		buyer := uuid.New()
		s.store.SeedRegistration(models.Registration{
			ID: uuid.New(), EditionID: s.edition.ID, DistanceID: full.ID, BuyerUserID: &buyer,
			PaymentResponsibility: models.PaymentSelfPay, Status: models.StatusConfirmed, CreatedAt: s.now,
		})

		res := s.upload(team(1, "kids"))
		s.Equal(models.BatchFailed, res.Batch.Status)
		s.Contains(res.Rows[0].ValidationErrors[0], "sold out")
	})

	s.Run("file level problems reject the upload", func() {
		s.SetupTest()
		_, err := s.service.Upload(s.ctx, s.organizer, s.edition.ID, "team.csv", strings.NewReader("firstName,lastName\nA,B\n"))
		s.requireCode(err, dErrors.CodeInvalidHeaders)

		_, err = s.service.Upload(s.ctx, s.organizer, s.edition.ID, "team.csv", strings.NewReader(csvHeader))
		s.requireCode(err, dErrors.CodeNoRows)
	})

	s.Run("callers without event access are forbidden", func() {
		s.SetupTest()
		stranger := uuid.New()
		_, err := s.service.Upload(s.ctx, stranger, s.edition.ID, "team.csv", strings.NewReader(team(1, "5K")))
		s.requireCode(err, dErrors.CodeForbidden)
	})

	s.Run("platform staff bypass membership", func() {
		s.SetupTest()
		staff := uuid.New()
		ctx := requestcontext.WithCaller(s.ctx, requestcontext.CallerIdentity{
			UserID:      staff,
			Permissions: []requestcontext.Permission{requestcontext.PermManageAllEvents},
		})
		_, err := s.service.Upload(ctx, staff, s.edition.ID, "team.csv", strings.NewReader(team(1, "5K")))
		s.Require().NoError(err)
	})
}

func (s *GroupServiceSuite) TestProcess() {
	s.Run("seven participants get the ten percent rule", func() {
		csv := team(6, "5K") + fmt.Sprintf(`Last,Runner,last@example.com,1991-05-05,5K,"[{""optionId"":""%s"",""quantity"":2}]"`, s.shirt.ID) + "\n"
		up := s.upload(csv)

		res, err := s.service.Process(s.ctx, s.organizer, up.Batch.ID)
		s.Require().NoError(err)
		s.Equal(models.BatchProcessed, res.Batch.Status)
		s.Require().NotNil(res.Batch.ProcessedAt)
		s.Equal(7, res.Admitted())

		regs := s.store.Registrations()
		s.Require().Len(regs, 7)
		var withShirts int
		for _, reg := range regs {
			s.Equal(models.StatusConfirmed, reg.Status)
			s.Equal(models.PaymentCentralPay, reg.PaymentResponsibility)
			s.Nil(reg.ExpiresAt)
			s.Equal(int64(3600), reg.BasePriceCents)
			s.Equal(int64(180), reg.FeesCents)
			switch reg.TotalCents {
			case 3780:
			case 3780 + 3000:
				withShirts++
				lines := s.store.AddOnLines(reg.ID)
				s.Require().Len(lines, 1)
				s.Equal(int64(3000), lines[0].LineTotalCents)
			default:
				s.Failf("unexpected total", "%d", reg.TotalCents)
			}
			rt, ok := s.store.Registrant(reg.ID)
			s.Require().True(ok)
			s.Nil(rt.UserID)
		}
		s.Equal(1, withShirts)

		buyer := regs[0].BuyerUserID
		s.Require().NotNil(buyer)
		for _, reg := range regs {
			s.Equal(*buyer, *reg.BuyerUserID, "unmatched rows share the system buyer")
		}
		s.Len(s.store.Audit().ListByAction(s.ctx, audit.EventGroupRegistrationAdmitted), 7)
		processed := s.store.Audit().ListByAction(s.ctx, audit.EventGroupBatchProcessed)
		s.Require().Len(processed, 1)
		s.Equal(10, processed[0].Details["percent_off"])
	})

	s.Run("processing twice returns the first result", func() {
		s.SetupTest()
		up := s.upload(team(3, "10K"))
		first, err := s.service.Process(s.ctx, s.organizer, up.Batch.ID)
		s.Require().NoError(err)

		again, err := s.service.Process(s.ctx, s.organizer, up.Batch.ID)
		s.Require().NoError(err)
		s.Len(s.store.Registrations(), 3)
		s.Equal(first.Batch.ProcessedAt, again.Batch.ProcessedAt)
		for i := range first.Rows {
			s.Equal(first.Rows[i].CreatedRegistrationID, again.Rows[i].CreatedRegistrationID)
		}
	})

	s.Run("a shortfall admits nobody and leaves the batch failed", func() {
		s.SetupTest()
		tight := s.seedDistance("Trail", 2, 5000)
		up := s.upload(team(3, "Trail"))
		s.Require().Equal(models.BatchValidated, up.Batch.Status)

		_, err := s.service.Process(s.ctx, s.organizer, up.Batch.ID)
		s.requireCode(err, dErrors.CodeInsufficientCapacity)
		s.Empty(s.store.Registrations())

		got, err := s.service.GetBatch(s.ctx, s.organizer, up.Batch.ID)
		s.Require().NoError(err)
		s.Equal(models.BatchFailed, got.Batch.Status)
		s.Contains(got.Batch.FailureReason, string(dErrors.CodeInsufficientCapacity))
		s.Zero(got.Admitted())
		s.Len(s.store.Audit().ListByAction(s.ctx, audit.EventGroupBatchFailed), 1)
		s.Empty(s.store.Audit().ListByAction(s.ctx, audit.EventGroupRegistrationAdmitted))

		// Raising the limit makes the failed batch retryable.
		tight.Capacity = new(int)
		*tight.Capacity = 3
		s.store.SeedDistance(tight)
		res, err := s.service.Process(s.ctx, s.organizer, up.Batch.ID)
		s.Require().NoError(err)
		s.Equal(models.BatchProcessed, res.Batch.Status)
		s.Len(s.store.Registrations(), 3)
	})

	s.Run("shared pool demand is checked in aggregate", func() {
		s.SetupTest()
		pool := 3
		e := s.edition
		e.SharedCapacity = &pool
		s.store.SeedEdition(e)
		for _, d := range []models.Distance{s.fiveK, s.tenK} {
			d.CapacityScope = models.ScopeSharedPool
			s.store.SeedDistance(d)
		}
		up := s.upload(csvHeader +
			"A,One,a1@example.com,1990-01-01,5K,\n" +
			"A,Two,a2@example.com,1990-01-02,5K,\n" +
			"B,One,b1@example.com,1990-01-03,10K,\n" +
			"B,Two,b2@example.com,1990-01-04,10K,\n")

		_, err := s.service.Process(s.ctx, s.organizer, up.Batch.ID)
		s.requireCode(err, dErrors.CodeInsufficientCapacity)
		s.Empty(s.store.Registrations())
	})

	s.Run("a batch with row errors cannot be processed", func() {
		s.SetupTest()
		up := s.upload(csvHeader + "Ada,Lovelace,nope,1990-12-10,5K,\n")
		_, err := s.service.Process(s.ctx, s.organizer, up.Batch.ID)
		s.requireCode(err, dErrors.CodeInvalidState)

		got, err := s.service.GetBatch(s.ctx, s.organizer, up.Batch.ID)
		s.Require().NoError(err)
		s.Equal("1 of 1 rows failed validation", got.Batch.FailureReason)
	})

	s.Run("rows matching an account are bought by that account", func() {
		s.SetupTest()
		runner := uuid.New()
		s.store.SeedUser(models.User{ID: runner, Email: "runner0@example.com", EmailVerified: true}, "1990-01-01")
		up := s.upload(team(2, "5K"))

		_, err := s.service.Process(s.ctx, s.organizer, up.Batch.ID)
		s.Require().NoError(err)

		var matched int
		for _, reg := range s.store.Registrations() {
			if reg.OwnedBy(runner) {
				matched++
				rt, ok := s.store.Registrant(reg.ID)
				s.Require().True(ok)
				s.Require().NotNil(rt.UserID)
				s.Equal(runner, *rt.UserID)
			}
		}
		s.Equal(1, matched)
	})

	s.Run("payments enabled admits rows as payment pending holds", func() {
		s.SetupTest()
		s.service = s.newService(WithPaymentsEnabled(true))
		up := s.upload(team(1, "5K"))

		_, err := s.service.Process(s.ctx, s.organizer, up.Batch.ID)
		s.Require().NoError(err)
		regs := s.store.Registrations()
		s.Require().Len(regs, 1)
		s.Equal(models.StatusPaymentPending, regs[0].Status)
		s.Require().NotNil(regs[0].ExpiresAt)
		s.Equal(s.now.Add(24*time.Hour), *regs[0].ExpiresAt)
		s.Equal(int64(4200), regs[0].TotalCents)
	})

	s.Run("unknown batch", func() {
		_, err := s.service.Process(s.ctx, s.organizer, uuid.New())
		s.requireCode(err, dErrors.CodeNotFound)
	})
}
