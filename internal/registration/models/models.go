// Package models defines the registration engine's persisted types and their invariants.
package models

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Visibility of an edition.
type Visibility string

const (
	VisibilityDraft     Visibility = "draft"
	VisibilityPublished Visibility = "published"
	VisibilityUnlisted  Visibility = "unlisted"
	VisibilityArchived  Visibility = "archived"
)

// AcceptsRegistrations reports whether registrants may reach this edition.
// Unlisted editions are live but reachable only by direct link.
func (v Visibility) AcceptsRegistrations() bool {
	return v == VisibilityPublished || v == VisibilityUnlisted
}

// CapacityScope says which ledger a distance draws from.
type CapacityScope string

const (
	ScopePerDistance CapacityScope = "per_distance"
	ScopeSharedPool  CapacityScope = "shared_pool"
)

// Edition is one instance of an event series.
type Edition struct {
	ID                   uuid.UUID
	OrganizationID       uuid.UUID
	Name                 string
	Visibility           Visibility
	IsPaused             bool
	RegistrationOpensAt  *time.Time
	RegistrationClosesAt *time.Time
	SharedCapacity       *int
	CreatedAt            time.Time
}

// PricingTier is a time-windowed price for a distance.
type PricingTier struct {
	ID         uuid.UUID
	DistanceID uuid.UUID
	Label      string
	PriceCents int64
	StartsAt   *time.Time
	EndsAt     *time.Time
	SortOrder  int
}

// Contains reports whether now falls in the tier's window. Bounds are [start, end).
func (t PricingTier) Contains(now time.Time) bool {
	if t.StartsAt != nil && now.Before(*t.StartsAt) {
		return false
	}
	if t.EndsAt != nil && !now.Before(*t.EndsAt) {
		return false
	}
	return true
}

// Distance is a purchasable race within an edition.
type Distance struct {
	ID            uuid.UUID
	EditionID     uuid.UUID
	Label         string
	Capacity      *int
	CapacityScope CapacityScope
	SortOrder     int
	PricingTiers  []PricingTier
}

// ActiveTier returns the first tier by sort order whose window contains now.
func (d *Distance) ActiveTier(now time.Time) *PricingTier {
	tiers := make([]PricingTier, len(d.PricingTiers))
	copy(tiers, d.PricingTiers)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].SortOrder < tiers[j].SortOrder })
	for i := range tiers {
		if tiers[i].Contains(now) {
			return &tiers[i]
		}
	}
	return nil
}

// PriceAt is the active tier's price, or 0 when no tier is active.
func (d *Distance) PriceAt(now time.Time) int64 {
	if t := d.ActiveTier(now); t != nil {
		return t.PriceCents
	}
	return 0
}

// MatchesLabel compares labels case-insensitively.
func (d *Distance) MatchesLabel(label string) bool {
	return strings.EqualFold(strings.TrimSpace(d.Label), strings.TrimSpace(label))
}

// Registration is one buyer's attempt to hold a slot in one distance.
type Registration struct {
	ID                    uuid.UUID
	EditionID             uuid.UUID
	DistanceID            uuid.UUID
	BuyerUserID           *uuid.UUID
	PaymentResponsibility PaymentResponsibility
	Status                Status
	BasePriceCents        int64
	FeesCents             int64
	TaxCents              int64
	TotalCents            int64
	ExpiresAt             *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
	DeletedAt             *time.Time
}

// OwnedBy reports whether userID is the registration's buyer.
func (r *Registration) OwnedBy(userID uuid.UUID) bool {
	return r.BuyerUserID != nil && *r.BuyerUserID == userID
}

// ProfileSnapshot is the person-level data captured at submission.
type ProfileSnapshot struct {
	FirstName             string `json:"first_name"`
	LastName              string `json:"last_name"`
	Email                 string `json:"email"`
	DateOfBirth           string `json:"date_of_birth"`
	Phone                 string `json:"phone,omitempty"`
	Gender                string `json:"gender,omitempty"`
	City                  string `json:"city,omitempty"`
	State                 string `json:"state,omitempty"`
	Country               string `json:"country,omitempty"`
	EmergencyContactName  string `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string `json:"emergency_contact_phone,omitempty"`
}

// Registrant is the person attached to a registration. One per registration.
type Registrant struct {
	ID             uuid.UUID
	RegistrationID uuid.UUID
	UserID         *uuid.UUID
	Profile        ProfileSnapshot
	Division       *string
	GenderIdentity *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SignatureType of a waiver.
type SignatureType string

const (
	SignatureCheckbox  SignatureType = "checkbox"
	SignatureInitials  SignatureType = "initials"
	SignatureSignature SignatureType = "signature"
)

// RequiresValue reports whether a typed signature value must accompany acceptance.
func (t SignatureType) RequiresValue() bool {
	return t == SignatureInitials || t == SignatureSignature
}

// Waiver is a document registrants must accept before finalizing.
type Waiver struct {
	ID            uuid.UUID
	EditionID     uuid.UUID
	Title         string
	Body          string
	SignatureType SignatureType
	VersionHash   string
	DisplayOrder  int
}

// WaiverAcceptance records acceptance of a specific waiver version.
type WaiverAcceptance struct {
	ID                uuid.UUID
	RegistrationID    uuid.UUID
	WaiverID          uuid.UUID
	WaiverVersionHash string
	SignatureType     SignatureType
	SignatureValue    *string
	IPAddress         string
	UserAgent         string
	UserAgentSummary  string
	AcceptedAt        time.Time
}

// Question is a per-edition prompt, optionally scoped to one distance.
type Question struct {
	ID         uuid.UUID
	EditionID  uuid.UUID
	DistanceID *uuid.UUID
	Prompt     string
	IsRequired bool
	IsActive   bool
	SortOrder  int
}

// AppliesTo reports whether the question is asked for distanceID.
func (q *Question) AppliesTo(distanceID uuid.UUID) bool {
	return q.IsActive && (q.DistanceID == nil || *q.DistanceID == distanceID)
}

// Answer is a registrant's response to a question.
type Answer struct {
	ID             uuid.UUID
	RegistrationID uuid.UUID
	QuestionID     uuid.UUID
	Value          string
	UpdatedAt      time.Time
}

// AddOnOption is a purchasable extra. DistanceID nil means edition-wide.
type AddOnOption struct {
	ID             uuid.UUID
	AddOnID        uuid.UUID
	EditionID      uuid.UUID
	DistanceID     *uuid.UUID
	Label          string
	PriceCents     int64
	MaxQtyPerOrder int
	IsActive       bool
}

// AvailableFor reports whether the option may be bought with distanceID.
func (o *AddOnOption) AvailableFor(distanceID uuid.UUID) bool {
	return o.IsActive && (o.DistanceID == nil || *o.DistanceID == distanceID)
}

// AddOnSelection is a requested (option, quantity) pair.
type AddOnSelection struct {
	OptionID uuid.UUID `json:"optionId"`
	Quantity int       `json:"quantity"`
}

// RegistrationAddOn is a purchased add-on line.
type RegistrationAddOn struct {
	ID             uuid.UUID
	RegistrationID uuid.UUID
	OptionID       uuid.UUID
	Quantity       int
	LineTotalCents int64
}

// GroupDiscountRule grants percentOff once a batch reaches MinParticipants.
type GroupDiscountRule struct {
	ID              uuid.UUID
	EditionID       uuid.UUID
	MinParticipants int
	PercentOff      int
	IsActive        bool
}

// SelectDiscountRule picks the single active rule with the highest threshold that
// participants meets. Rules never stack.
func SelectDiscountRule(rules []GroupDiscountRule, participants int) *GroupDiscountRule {
	var best *GroupDiscountRule
	for i := range rules {
		r := rules[i]
		if !r.IsActive || r.MinParticipants > participants {
			continue
		}
		if best == nil || r.MinParticipants > best.MinParticipants {
			best = &rules[i]
		}
	}
	return best
}

// User is an account known to the auth collaborator.
type User struct {
	ID            uuid.UUID
	Email         string
	EmailVerified bool
	IsSystem      bool
	CreatedAt     time.Time
}

// Profile holds the account's person data relevant to matching.
type Profile struct {
	UserID      uuid.UUID
	DateOfBirth string
}

// BatchStatus is the lifecycle of an uploaded group batch.
type BatchStatus string

const (
	BatchUploaded  BatchStatus = "uploaded"
	BatchValidated BatchStatus = "validated"
	BatchFailed    BatchStatus = "failed"
	BatchProcessed BatchStatus = "processed"
)

// GroupBatch is an uploaded set of rows admitted together.
type GroupBatch struct {
	ID              uuid.UUID
	EditionID       uuid.UUID
	CreatedByUserID uuid.UUID
	SourceFilename  string
	Status          BatchStatus
	RowCount        int
	ErrorCount      int
	FailureReason   string
	ProcessedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BatchRow is one parsed row with its validation outcome.
type BatchRow struct {
	ID                    uuid.UUID
	BatchID               uuid.UUID
	RowIndex              int
	Raw                   json.RawMessage
	ValidationErrors      []string
	CreatedRegistrationID *uuid.UUID
}

// HasErrors reports whether the row failed validation.
func (r *BatchRow) HasErrors() bool {
	return len(r.ValidationErrors) > 0
}

// InviteStatus is the lifecycle of a registration invite.
type InviteStatus string

const (
	InviteDraft      InviteStatus = "draft"
	InviteSent       InviteStatus = "sent"
	InviteClaimed    InviteStatus = "claimed"
	InviteCancelled  InviteStatus = "cancelled"
	InviteExpired    InviteStatus = "expired"
	InviteSuperseded InviteStatus = "superseded"
)

// Invite binds a pre-created registration to an expected claimant.
type Invite struct {
	ID              uuid.UUID
	EditionID       uuid.UUID
	RegistrationID  uuid.UUID
	BatchRowID      *uuid.UUID
	Email           string
	DateOfBirth     string
	TokenHash       string
	Status          InviteStatus
	IsCurrent       bool
	ExpiresAt       *time.Time
	SentAt          *time.Time
	ClaimedAt       *time.Time
	ClaimedByUserID *uuid.UUID
	CreatedAt       time.Time
}

// IsPastExpiry reports whether the invite's own deadline passed.
func (i *Invite) IsPastExpiry(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}

// NewRegistration builds a registration entering the ledger in status, priced by q.
func NewRegistration(editionID, distanceID uuid.UUID, buyer *uuid.UUID, resp PaymentResponsibility, status Status, q Quote, expiresAt *time.Time, now time.Time) *Registration {
	r := &Registration{
		ID:                    uuid.New(),
		EditionID:             editionID,
		DistanceID:            distanceID,
		BuyerUserID:           buyer,
		PaymentResponsibility: resp,
		Status:                status,
		ExpiresAt:             expiresAt,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	q.Apply(r)
	return r
}
