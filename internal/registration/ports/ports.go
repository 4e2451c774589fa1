// Package ports defines the persistence contract shared by the registration, group and
// invite services. Every method runs against the transaction the TxRunner opened; the
// Lock* methods take an exclusive row lock that lasts until that transaction ends.
package ports

//go:generate mockgen -destination=mocks/mocks.go -package=mocks raceday/internal/registration/ports Mailer,Revalidator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"raceday/internal/registration/models"
	"raceday/pkg/platform/audit"
)

// EditionStore reads and locks the capacity-bearing rows.
type EditionStore interface {
	GetEdition(ctx context.Context, id uuid.UUID) (*models.Edition, error)
	// LockEdition is SELECT ... FOR UPDATE on the edition row (shared pool scope).
	LockEdition(ctx context.Context, id uuid.UUID) (*models.Edition, error)
	UpdateEditionSharedCapacity(ctx context.Context, id uuid.UUID, capacity *int) error

	GetDistance(ctx context.Context, id uuid.UUID) (*models.Distance, error)
	// LockDistance is SELECT ... FOR UPDATE on the distance row (per-distance scope).
	LockDistance(ctx context.Context, id uuid.UUID) (*models.Distance, error)
	ListDistances(ctx context.Context, editionID uuid.UUID) ([]*models.Distance, error)
	UpdateDistanceCapacity(ctx context.Context, id uuid.UUID, capacity *int) error

	// CountReserved counts confirmed registrations plus unexpired provisional holds in
	// scope, optionally excluding one registration.
	CountReserved(ctx context.Context, scope models.ReservationScope, now time.Time, exclude *uuid.UUID) (int, error)
}

// RegistrationStore persists registrations and their owned rows.
type RegistrationStore interface {
	InsertRegistration(ctx context.Context, reg *models.Registration) error
	GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	// LockRegistration is SELECT ... FOR UPDATE on the registration row.
	LockRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	// CompareAndSetStatus moves id to `to` only if its status is one of from.
	// Returns sentinel.ErrStaleState when no row matched.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from []models.Status, to models.Status, expiresAt *time.Time, now time.Time) error
	// AssignBuyer sets the buyer only if it is NULL, the new buyer, or one of replaceable.
	// Returns sentinel.ErrStaleState when no row matched.
	AssignBuyer(ctx context.Context, id uuid.UUID, buyer uuid.UUID, replaceable []uuid.UUID, now time.Time) error
	HasActiveRegistration(ctx context.Context, editionID, userID uuid.UUID, now time.Time, exclude *uuid.UUID) (bool, error)
	// ExpireStaleHolds rewrites up to limit lapsed provisional registrations to cancelled.
	ExpireStaleHolds(ctx context.Context, now time.Time, limit int) ([]*models.Registration, error)

	UpsertRegistrant(ctx context.Context, r *models.Registrant) error
	GetRegistrant(ctx context.Context, registrationID uuid.UUID) (*models.Registrant, error)
	SetRegistrantUser(ctx context.Context, registrationID, userID uuid.UUID, now time.Time) error

	InsertRegistrationAddOn(ctx context.Context, line *models.RegistrationAddOn) error
}

// CompletenessStore backs the waiver and question requirements of finalize.
type CompletenessStore interface {
	GetWaiver(ctx context.Context, id uuid.UUID) (*models.Waiver, error)
	ListWaivers(ctx context.Context, editionID uuid.UUID) ([]*models.Waiver, error)
	ListWaiverAcceptances(ctx context.Context, registrationID uuid.UUID) ([]*models.WaiverAcceptance, error)
	// InsertWaiverAcceptance returns false when an acceptance for the pair already exists.
	InsertWaiverAcceptance(ctx context.Context, a *models.WaiverAcceptance) (bool, error)

	GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error)
	ListQuestions(ctx context.Context, editionID uuid.UUID) ([]*models.Question, error)
	UpsertAnswer(ctx context.Context, a *models.Answer) error
	ListAnswers(ctx context.Context, registrationID uuid.UUID) ([]*models.Answer, error)
}

// CatalogStore reads pricing extras.
type CatalogStore interface {
	ListAddOnOptions(ctx context.Context, editionID uuid.UUID) ([]*models.AddOnOption, error)
	ListGroupDiscountRules(ctx context.Context, editionID uuid.UUID) ([]models.GroupDiscountRule, error)
}

// AccountStore reads accounts owned by the auth collaborator.
type AccountStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByEmail(ctx context.Context, normalizedEmail string) (*models.User, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	// BackfillProfileDOB sets the profile DOB when it is empty; a different existing
	// value yields sentinel.ErrStaleState.
	BackfillProfileDOB(ctx context.Context, userID uuid.UUID, dob string) error
	EnsureSystemUser(ctx context.Context, email string) (*models.User, error)
	CanEditRegistrationSettings(ctx context.Context, userID, editionID uuid.UUID) (bool, error)
}

// BatchStore persists group batches.
type BatchStore interface {
	InsertBatch(ctx context.Context, batch *models.GroupBatch, rows []*models.BatchRow) error
	GetBatch(ctx context.Context, id uuid.UUID) (*models.GroupBatch, error)
	LockBatch(ctx context.Context, id uuid.UUID) (*models.GroupBatch, error)
	ListBatchRows(ctx context.Context, batchID uuid.UUID) ([]*models.BatchRow, error)
	SetBatchRowRegistration(ctx context.Context, rowID, registrationID uuid.UUID) error
	// CompareAndSetBatchStatus returns sentinel.ErrStaleState when the batch is not in from.
	CompareAndSetBatchStatus(ctx context.Context, id uuid.UUID, from []models.BatchStatus, to models.BatchStatus, reason string, processedAt *time.Time, now time.Time) error
}

// InviteStore persists registration invites.
type InviteStore interface {
	InsertInvite(ctx context.Context, inv *models.Invite) error
	// SupersedeCurrentInvites clears the current flag on every current invite of the registration.
	SupersedeCurrentInvites(ctx context.Context, registrationID uuid.UUID) (int, error)
	// CurrentInviteForEmail returns the edition's current invite to email, or
	// sentinel.ErrNotFound.
	CurrentInviteForEmail(ctx context.Context, editionID uuid.UUID, email string) (*models.Invite, error)
	LockInviteByTokenHash(ctx context.Context, tokenHash string) (*models.Invite, error)
	MarkInviteClaimed(ctx context.Context, id, userID uuid.UUID, now time.Time) error
}

// AuditSink appends audit rows inside the current transaction.
type AuditSink interface {
	AppendAudit(ctx context.Context, event audit.Event) error
}

// Store is everything a unit of work may touch.
type Store interface {
	EditionStore
	RegistrationStore
	CompletenessStore
	CatalogStore
	AccountStore
	BatchStore
	InviteStore
	AuditSink
}

// TxRunner opens a unit of work. fn receives a context bound to the transaction and
// the store to use with it; returning an error rolls everything back, audit rows included.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

// Revalidator is the cache-invalidation collaborator notified after state changes.
type Revalidator interface {
	RevalidateTags(ctx context.Context, tags ...string) error
}

// Mailer is the email-notification collaborator.
type Mailer interface {
	SendRegistrationConfirmation(ctx context.Context, msg ConfirmationEmail) error
	SendInvite(ctx context.Context, msg InviteEmail) error
}

// ConfirmationEmail is sent after a successful finalize.
type ConfirmationEmail struct {
	To             string
	FirstName      string
	RegistrationID uuid.UUID
	EditionID      uuid.UUID
	DistanceLabel  string
	Status         models.Status
	TotalCents     int64
}

// InviteEmail carries the one-time claim token to the invitee.
type InviteEmail struct {
	To        string
	FirstName string
	EditionID uuid.UUID
	Token     string
	ExpiresAt time.Time
}

// Tags returns the cache tags touched by a change to an edition's registrations.
func Tags(editionID uuid.UUID) []string {
	return []string{
		"edition:" + editionID.String() + ":detail",
		"edition:" + editionID.String() + ":registrations",
		"public:events",
	}
}
