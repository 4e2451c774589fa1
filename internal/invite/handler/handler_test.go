package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"raceday/internal/invite/handler/mocks"
	"raceday/internal/invite/service"
	"raceday/internal/registration/models"
	dErrors "raceday/pkg/domain-errors"
	"raceday/pkg/testutil"
)

type InviteHandlerSuite struct {
	suite.Suite
	router  chi.Router
	service *mocks.MockService
	caller  uuid.UUID
}

func TestInviteHandlerSuite(t *testing.T) {
	suite.Run(t, new(InviteHandlerSuite))
}

func (s *InviteHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.caller = uuid.New()

	h := New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Use(testutil.AsCaller(testutil.Verified(s.caller, "ada@example.com")))
	h.Register(r)
	s.router = r
}

func (s *InviteHandlerSuite) serve(req *http.Request) (*httptest.ResponseRecorder, testutil.Envelope) {
	return testutil.DoRequest(s.T(), s.router, req)
}

func (s *InviteHandlerSuite) TestClaim() {
	s.Run("passes token and DOB through", func() {
		regID, editionID := uuid.New(), uuid.New()
		s.service.EXPECT().Claim(gomock.Any(), s.caller, "tok", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ uuid.UUID, _ string, dob *string) (*service.ClaimResult, error) {
				s.Require().NotNil(dob)
				s.Equal("1990-01-15", *dob)
				return &service.ClaimResult{RegistrationID: regID, EditionID: editionID}, nil
			})

		req := httptest.NewRequest(http.MethodPost, "/invites/claim", strings.NewReader(`{"token":"tok","dateOfBirth":"1990-01-15"}`))
		w, env := s.serve(req)
		s.Equal(http.StatusOK, w.Code)

		var data ClaimResponse
		s.Require().NoError(json.Unmarshal(env.Data, &data))
		s.Equal(regID.String(), data.RegistrationID)
		s.False(data.AlreadyClaimed)
	})

	s.Run("domain failures map to status codes", func() {
		cases := []struct {
			code   dErrors.Code
			status int
		}{
			{dErrors.CodeAlreadyClaimed, http.StatusConflict},
			{dErrors.CodeDOBMismatch, http.StatusForbidden},
			{dErrors.CodeDOBRequired, http.StatusBadRequest},
			{dErrors.CodeInviteInvalid, http.StatusNotFound},
			{dErrors.CodeRateLimited, http.StatusTooManyRequests},
		}
		for _, tc := range cases {
			s.service.EXPECT().Claim(gomock.Any(), s.caller, "tok", nil).Return(nil, dErrors.New(tc.code, "nope"))
			w, env := s.serve(httptest.NewRequest(http.MethodPost, "/invites/claim", strings.NewReader(`{"token":"tok"}`)))
			testutil.AssertStatusAndCode(s.T(), w, env, tc.status, string(tc.code))
		}
	})

	s.Run("malformed body", func() {
		w, env := s.serve(httptest.NewRequest(http.MethodPost, "/invites/claim", strings.NewReader(`{`)))
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("BAD_REQUEST", env.Code)
	})
}

func (s *InviteHandlerSuite) TestIssue() {
	batchID := uuid.New()
	expires := time.Date(2026, 4, 26, 8, 30, 0, 0, time.UTC)
	s.service.EXPECT().IssueInvites(gomock.Any(), s.caller, batchID).Return(&service.IssueResult{
		BatchID: batchID,
		Skipped: 1,
		Invites: []*models.Invite{{
			ID: uuid.New(), RegistrationID: uuid.New(), Email: "ada@example.com",
			Status: models.InviteSent, ExpiresAt: &expires, TokenHash: "secret-hash",
		}},
	}, nil)

	w, env := s.serve(httptest.NewRequest(http.MethodPost, "/group-batches/"+batchID.String()+"/invites", nil))
	s.Equal(http.StatusOK, w.Code)
	s.NotContains(string(env.Data), "secret-hash")

	var data IssueResponse
	s.Require().NoError(json.Unmarshal(env.Data, &data))
	s.Equal(1, data.Issued)
	s.Equal(1, data.Skipped)
	s.Equal("sent", data.Invites[0].Status)
}
