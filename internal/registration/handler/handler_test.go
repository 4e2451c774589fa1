package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"raceday/internal/registration/handler/mocks"
	"raceday/internal/registration/models"
	"raceday/internal/registration/service"
	dErrors "raceday/pkg/domain-errors"
	"raceday/pkg/requestcontext"
	"raceday/pkg/testutil"
)

type RegistrationHandlerSuite struct {
	suite.Suite
	router  chi.Router
	service *mocks.MockService
	caller  uuid.UUID
	now     time.Time
}

func TestRegistrationHandlerSuite(t *testing.T) {
	suite.Run(t, new(RegistrationHandlerSuite))
}

func (s *RegistrationHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.caller = uuid.New()
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	h := New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.RegisterPublic(r)
	r.Group(func(r chi.Router) {
		r.Use(testutil.AsCaller(requestcontext.CallerIdentity{UserID: s.caller}))
		h.Register(r)
	})
	s.router = r
}

func (s *RegistrationHandlerSuite) do(method, path string, body any) (*httptest.ResponseRecorder, testutil.Envelope) {
	return testutil.DoRequest(s.T(), s.router, testutil.NewJSONRequest(s.T(), method, path, body))
}

func (s *RegistrationHandlerSuite) registration(status models.Status) *models.Registration {
	exp := s.now.Add(30 * time.Minute)
	return &models.Registration{
		ID:                    uuid.New(),
		EditionID:             uuid.New(),
		DistanceID:            uuid.New(),
		BuyerUserID:           &s.caller,
		PaymentResponsibility: models.PaymentSelfPay,
		Status:                status,
		BasePriceCents:        5000,
		FeesCents:             250,
		TotalCents:            5250,
		ExpiresAt:             &exp,
		CreatedAt:             s.now,
		UpdatedAt:             s.now,
	}
}

func (s *RegistrationHandlerSuite) TestStart() {
	s.Run("creates a hold for the caller", func() {
		reg := s.registration(models.StatusStarted)
		s.service.EXPECT().Start(gomock.Any(), s.caller, reg.DistanceID).Return(reg, nil)

		w, env := s.do(http.MethodPost, "/registrations", StartRequest{DistanceID: reg.DistanceID.String()})
		s.Equal(http.StatusCreated, w.Code)
		s.True(env.OK)

		var data RegistrationResponse
		s.Require().NoError(json.Unmarshal(env.Data, &data))
		s.Equal("started", data.Status)
		s.Equal(int64(5250), data.TotalCents)
		s.Equal(reg.ID.String(), data.ID)
	})

	s.Run("missing distance is rejected before the service", func() {
		w, env := s.do(http.MethodPost, "/registrations", StartRequest{})
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("VALIDATION_ERROR", env.Code)
	})

	s.Run("sold out", func() {
		s.service.EXPECT().Start(gomock.Any(), s.caller, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeSoldOut, "distance is sold out"))

		w, env := s.do(http.MethodPost, "/registrations", StartRequest{DistanceID: uuid.NewString()})
		s.Equal(http.StatusConflict, w.Code)
		s.False(env.OK)
		s.Equal("SOLD_OUT", env.Code)
		s.Equal("distance is sold out", env.Error)
	})

	s.Run("unexpected failures hide their cause", func() {
		s.service.EXPECT().Start(gomock.Any(), s.caller, gomock.Any()).
			Return(nil, dErrors.Wrap(errors.New("connection reset"), dErrors.CodeInternal, "failed to start"))

		w, env := s.do(http.MethodPost, "/registrations", StartRequest{DistanceID: uuid.NewString()})
		s.Equal(http.StatusInternalServerError, w.Code)
		s.Equal("INTERNAL_ERROR", env.Code)
		s.NotContains(env.Error, "connection reset")
	})
}

func (s *RegistrationHandlerSuite) TestSubmit() {
	reg := s.registration(models.StatusSubmitted)
	division := "M40"
	s.service.EXPECT().SubmitRegistrantInfo(gomock.Any(), s.caller, reg.ID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ uuid.UUID, in service.RegistrantInput) (*models.Registration, error) {
			s.Equal("Ada", in.Profile.FirstName)
			s.Equal("1990-12-10", in.Profile.DateOfBirth)
			s.Equal(&division, in.Division)
			return reg, nil
		})

	w, env := s.do(http.MethodPost, "/registrations/"+reg.ID.String()+"/registrant", SubmitRegistrantRequest{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Email:       "ada@example.com",
		DateOfBirth: "1990-12-10",
		Division:    &division,
	})
	s.Equal(http.StatusOK, w.Code)
	s.True(env.OK)
}

func (s *RegistrationHandlerSuite) TestAcceptWaiver() {
	reg := s.registration(models.StatusStarted)
	waiverID := uuid.New()
	initials := "AL"
	s.service.EXPECT().AcceptWaiver(gomock.Any(), s.caller, reg.ID, service.WaiverInput{
		WaiverID:       waiverID,
		SignatureType:  models.SignatureInitials,
		SignatureValue: &initials,
	}).Return(&models.WaiverAcceptance{WaiverID: waiverID, WaiverVersionHash: "v1", SignatureType: models.SignatureInitials, AcceptedAt: s.now}, nil)

	w, env := s.do(http.MethodPost, "/registrations/"+reg.ID.String()+"/waivers/"+waiverID.String()+"/accept",
		AcceptWaiverRequest{SignatureType: "initials", SignatureValue: &initials})
	s.Equal(http.StatusOK, w.Code)

	var data AcceptanceResponse
	s.Require().NoError(json.Unmarshal(env.Data, &data))
	s.Equal("v1", data.WaiverVersionHash)
}

func (s *RegistrationHandlerSuite) TestAnswer() {
	regID, questionID := uuid.New(), uuid.New()
	s.service.EXPECT().AnswerQuestion(gomock.Any(), s.caller, regID, questionID, "XL").
		Return(&models.Answer{QuestionID: questionID, Value: "XL"}, nil)

	w, _ := s.do(http.MethodPut, "/registrations/"+regID.String()+"/answers/"+questionID.String(), AnswerRequest{Value: "XL"})
	s.Equal(http.StatusOK, w.Code)
}

func (s *RegistrationHandlerSuite) TestFinalize() {
	s.Run("incomplete registrations are unprocessable", func() {
		id := uuid.New()
		s.service.EXPECT().FinalizeRegistration(gomock.Any(), s.caller, id).
			Return(nil, dErrors.New(dErrors.CodeMissingWaiver, `waiver "Liability" has not been accepted`))

		w, env := s.do(http.MethodPost, "/registrations/"+id.String()+"/finalize", nil)
		s.Equal(http.StatusUnprocessableEntity, w.Code)
		s.Equal("MISSING_WAIVER", env.Code)
	})

	s.Run("lapsed holds are gone", func() {
		id := uuid.New()
		s.service.EXPECT().FinalizeRegistration(gomock.Any(), s.caller, id).
			Return(nil, dErrors.New(dErrors.CodeRegistrationExpired, "registration hold has expired"))

		w, env := s.do(http.MethodPost, "/registrations/"+id.String()+"/finalize", nil)
		s.Equal(http.StatusGone, w.Code)
		s.Equal("REGISTRATION_EXPIRED", env.Code)
	})

	s.Run("confirmed", func() {
		reg := s.registration(models.StatusConfirmed)
		reg.ExpiresAt = nil
		s.service.EXPECT().FinalizeRegistration(gomock.Any(), s.caller, reg.ID).Return(reg, nil)

		w, env := s.do(http.MethodPost, "/registrations/"+reg.ID.String()+"/finalize", nil)
		s.Equal(http.StatusOK, w.Code)
		var data RegistrationResponse
		s.Require().NoError(json.Unmarshal(env.Data, &data))
		s.Equal("confirmed", data.Status)
		s.Nil(data.ExpiresAt)
	})
}

func (s *RegistrationHandlerSuite) TestGetRegistration() {
	reg := s.registration(models.StatusStarted)
	waiver := &models.Waiver{ID: uuid.New(), Title: "Liability"}
	s.service.EXPECT().GetRegistration(gomock.Any(), s.caller, reg.ID).Return(&service.RegistrationView{
		Registration:   reg,
		PendingWaivers: []*models.Waiver{waiver},
	}, nil)

	w, env := s.do(http.MethodGet, "/registrations/"+reg.ID.String(), nil)
	s.Equal(http.StatusOK, w.Code)

	var data RegistrationViewResponse
	s.Require().NoError(json.Unmarshal(env.Data, &data))
	s.False(data.Complete)
	s.Nil(data.Registrant)
	s.Require().Len(data.PendingWaivers, 1)
	s.Equal("Liability", data.PendingWaivers[0].Title)
	s.Empty(data.MissingQuestions)
}

func (s *RegistrationHandlerSuite) TestInvalidPathID() {
	w, env := s.do(http.MethodGet, "/registrations/not-a-uuid", nil)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("BAD_REQUEST", env.Code)
}

func (s *RegistrationHandlerSuite) TestAvailability() {
	distanceID := uuid.New()
	remaining := 0
	s.service.EXPECT().GetAvailability(gomock.Any(), distanceID).Return(&service.Availability{
		DistanceID: distanceID,
		Label:      "10K",
		PriceCents: 3000,
		Window:     models.WindowOpen,
		Scope:      models.ScopeKindDistance,
		Limit:      intPtr(100),
		Reserved:   100,
		Remaining:  &remaining,
	}, nil)

	w, env := s.do(http.MethodGet, "/distances/"+distanceID.String()+"/availability", nil)
	s.Equal(http.StatusOK, w.Code)
	var data AvailabilityResponse
	s.Require().NoError(json.Unmarshal(env.Data, &data))
	s.True(data.SoldOut)
	s.Equal("open", data.Window)
}

func (s *RegistrationHandlerSuite) TestSetCapacity() {
	distanceID := uuid.New()
	s.service.EXPECT().SetDistanceCapacity(gomock.Any(), s.caller, distanceID, intPtr(1)).
		Return(dErrors.New(dErrors.CodeCapacityBelowReserved, "capacity 1 is below the 3 places already reserved"))

	w, env := s.do(http.MethodPut, "/distances/"+distanceID.String()+"/capacity", CapacityRequest{Capacity: intPtr(1)})
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("CAPACITY_BELOW_RESERVED", env.Code)
}

func intPtr(v int) *int { return &v }
