package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	rlmodels "raceday/internal/ratelimit/models"
	"raceday/internal/registration/hold"
	"raceday/internal/registration/models"
	"raceday/internal/registration/ports"
	dErrors "raceday/pkg/domain-errors"
	"raceday/pkg/identity"
	"raceday/pkg/platform/audit"
	"raceday/pkg/platform/sentinel"
	"raceday/pkg/requestcontext"
)

// ClaimResult identifies the registration now owned by the caller.
type ClaimResult struct {
	RegistrationID uuid.UUID
	EditionID      uuid.UUID
	// Replayed is true when the caller had already claimed this invite.
	Replayed bool
}

// Claim binds the invite's registration to callerID. dateOfBirth is only consulted
// when the caller's profile has none, in which case it is required and backfilled.
func (s *Service) Claim(ctx context.Context, callerID uuid.UUID, token string, dateOfBirth *string) (result *ClaimResult, err error) {
	ctx, span := s.startSpan(ctx, "Claim", attribute.String("caller_id", callerID.String()))
	defer func() { endSpan(span, err) }()
	defer s.metrics.ObserveOperation("invite_claim", time.Now())
	defer func() {
		switch {
		case err != nil:
			s.metrics.IncrementInviteClaim(string(dErrors.CodeOf(err)))
		case result.Replayed:
			s.metrics.IncrementInviteClaim("replayed")
		default:
			s.metrics.IncrementInviteClaim("claimed")
		}
	}()

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "token is required")
	}
	tokenHash := s.hasher.Hash(token)
	if err := s.checkLimits(ctx, callerID, tokenHash); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var inv *models.Invite
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Store) error {
		var err error
		inv, result, err = claimInTx(ctx, st, callerID, tokenHash, dateOfBirth, now)
		return err
	})
	if err != nil {
		return nil, internal(err, "failed to claim invite")
	}
	if result.Replayed {
		return result, nil
	}

	ev := newEvent(ctx, audit.EventInviteClaimed, result.EditionID, registrationSubject(result.RegistrationID), map[string]any{
		"invite_id": inv.ID.String(),
	})
	ev.UserID = callerID
	s.recordAudit(ctx, ev)
	s.revalidate(ctx, result.EditionID)
	s.logger.InfoContext(ctx, "invite claimed",
		"invite_id", inv.ID,
		"registration_id", result.RegistrationID,
		"user_id", callerID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}

// checkLimits spends one slot of the caller budget, then one of the token budget.
// A denied caller does not consume the token's budget.
func (s *Service) checkLimits(ctx context.Context, callerID uuid.UUID, tokenHash string) error {
	checks := []struct {
		key   string
		limit Limit
		scope string
	}{
		{rlmodels.Key("invite_claim", "user", callerID.String()), s.callerLimit, "caller"},
		{rlmodels.Key("invite_claim", "token", tokenHash), s.tokenLimit, "token"},
	}
	for _, c := range checks {
		res, err := s.limiter.Allow(ctx, c.key, c.limit.Requests, c.limit.Window)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check rate limit")
		}
		if res.Allowed {
			continue
		}

		ev := newEvent(ctx, audit.EventInviteRateLimited, uuid.Nil, "invite_claim:"+c.scope, map[string]any{
			"scope":       c.scope,
			"limit":       res.Limit,
			"retry_after": res.RetryAfter.String(),
			"client_ip":   requestcontext.ClientIP(ctx),
		})
		ev.UserID = callerID
		s.recordAudit(ctx, ev)
		return dErrors.Newf(dErrors.CodeRateLimited, "too many claim attempts, retry in %d seconds", retrySeconds(res.RetryAfter))
	}
	return nil
}

func retrySeconds(d time.Duration) int {
	secs := int(d.Round(time.Second) / time.Second)
	return max(secs, 1)
}

func claimInTx(ctx context.Context, st ports.Store, callerID uuid.UUID, tokenHash string, dateOfBirth *string, now time.Time) (*models.Invite, *ClaimResult, error) {
	caller, err := st.GetUser(ctx, callerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeUnauthenticated, "account not found")
		}
		return nil, nil, internal(err, "failed to load account")
	}
	if !caller.EmailVerified {
		return nil, nil, dErrors.New(dErrors.CodeEmailNotVerified, "verify your email address before claiming an invite")
	}

	inv, err := st.LockInviteByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeInviteInvalid, "invite not found")
		}
		return nil, nil, internal(err, "failed to load invite")
	}
	result := &ClaimResult{RegistrationID: inv.RegistrationID, EditionID: inv.EditionID}

	switch inv.Status {
	case models.InviteClaimed:
		if inv.ClaimedByUserID != nil && *inv.ClaimedByUserID == callerID {
			result.Replayed = true
			return inv, result, nil
		}
		return nil, nil, dErrors.New(dErrors.CodeAlreadyClaimed, "invite has already been claimed")
	case models.InviteCancelled:
		return nil, nil, dErrors.New(dErrors.CodeInviteCancelled, "invite was cancelled")
	case models.InviteExpired:
		return nil, nil, dErrors.New(dErrors.CodeInviteExpired, "invite has expired")
	case models.InviteSuperseded:
		return nil, nil, dErrors.New(dErrors.CodeInviteInvalid, "invite was replaced by a newer one")
	case models.InviteSent:
	default:
		return nil, nil, dErrors.New(dErrors.CodeInviteInvalid, "invite has not been sent")
	}
	if !inv.IsCurrent {
		return nil, nil, dErrors.New(dErrors.CodeInviteInvalid, "invite was replaced by a newer one")
	}
	if inv.IsPastExpiry(now) {
		return nil, nil, dErrors.New(dErrors.CodeInviteExpired, "invite has expired")
	}

	reg, err := st.LockRegistration(ctx, inv.RegistrationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeInviteExpired, "the invited registration no longer exists")
		}
		return nil, nil, internal(err, "failed to load registration")
	}
	if reg.Status == models.StatusCancelled || hold.IsExpired(reg, now) {
		return nil, nil, dErrors.New(dErrors.CodeInviteExpired, "the invited registration is no longer active")
	}
	replaceable, err := placeholderBuyer(ctx, st, reg, callerID)
	if err != nil {
		return nil, nil, err
	}

	if identity.NormalizeEmail(caller.Email) != identity.NormalizeEmail(inv.Email) {
		return nil, nil, dErrors.New(dErrors.CodeEmailMismatch, "this invite was sent to a different email address")
	}
	if err := matchDateOfBirth(ctx, st, callerID, inv.DateOfBirth, dateOfBirth); err != nil {
		return nil, nil, err
	}

	active, err := st.HasActiveRegistration(ctx, reg.EditionID, callerID, now, &reg.ID)
	if err != nil {
		return nil, nil, internal(err, "failed to check existing registrations")
	}
	if active {
		return nil, nil, dErrors.New(dErrors.CodeAlreadyRegistered, "you already have an active registration for this event")
	}

	if err := st.AssignBuyer(ctx, reg.ID, callerID, replaceable, now); err != nil {
		if errors.Is(err, sentinel.ErrStaleState) {
			return nil, nil, dErrors.New(dErrors.CodeAlreadyClaimed, "registration has already been claimed")
		}
		return nil, nil, internal(err, "failed to assign registration")
	}
	if err := st.SetRegistrantUser(ctx, reg.ID, callerID, now); err != nil {
		return nil, nil, internal(err, "failed to link registrant")
	}
	if err := st.MarkInviteClaimed(ctx, inv.ID, callerID, now); err != nil {
		if errors.Is(err, sentinel.ErrStaleState) {
			return nil, nil, dErrors.New(dErrors.CodeAlreadyClaimed, "invite has already been claimed")
		}
		return nil, nil, internal(err, "failed to mark invite claimed")
	}
	return inv, result, nil
}

// placeholderBuyer returns the buyer AssignBuyer may overwrite. A registration held by
// a real account other than the caller is already claimed.
func placeholderBuyer(ctx context.Context, st ports.AccountStore, reg *models.Registration, callerID uuid.UUID) ([]uuid.UUID, error) {
	if reg.BuyerUserID == nil || *reg.BuyerUserID == callerID {
		return nil, nil
	}
	buyer, err := st.GetUser(ctx, *reg.BuyerUserID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, internal(err, "failed to load buyer")
	}
	if buyer == nil || !buyer.IsSystem {
		return nil, dErrors.New(dErrors.CodeAlreadyClaimed, "registration has already been claimed")
	}
	return []uuid.UUID{buyer.ID}, nil
}

// matchDateOfBirth compares the profile DOB to the invite's, or requires a supplied one
// and backfills the profile with it.
func matchDateOfBirth(ctx context.Context, st ports.AccountStore, callerID uuid.UUID, expected string, supplied *string) error {
	profile, err := st.GetProfile(ctx, callerID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return internal(err, "failed to load profile")
	}
	if profile != nil && profile.DateOfBirth != "" {
		if !identity.SameDate(profile.DateOfBirth, expected) {
			return dErrors.New(dErrors.CodeDOBMismatch, "date of birth does not match the invite")
		}
		return nil
	}

	if supplied == nil || strings.TrimSpace(*supplied) == "" {
		return dErrors.New(dErrors.CodeDOBRequired, "date of birth is required to claim this invite")
	}
	dob, ok := identity.ParseISODate(*supplied)
	if !ok {
		return dErrors.New(dErrors.CodeValidation, "dateOfBirth must be YYYY-MM-DD")
	}
	if !identity.SameDate(dob, expected) {
		return dErrors.New(dErrors.CodeDOBMismatch, "date of birth does not match the invite")
	}
	if err := st.BackfillProfileDOB(ctx, callerID, dob); err != nil {
		if errors.Is(err, sentinel.ErrStaleState) {
			return dErrors.New(dErrors.CodeDOBMismatch, "date of birth does not match the invite")
		}
		return internal(err, fmt.Sprintf("failed to save date of birth for %s", callerID))
	}
	return nil
}
