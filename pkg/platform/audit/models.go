package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing downstream of the outbox.
type EventCategory string

const (
	// CategoryCompliance covers events with legal significance: waivers signed, accounts
	// bound to registrations, privileged organizer admissions.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to abuse monitoring.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine lifecycle activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// UserID is the account the action was performed for, when there is one.
	UserID uuid.UUID
	// ActorID is who performed the action when different from UserID (organizers).
	ActorID   uuid.UUID
	EditionID uuid.UUID
	Subject   string
	Action    string
	Decision  string
	Reason    string
	RequestID string
	// Details carries action-specific fields (row counts, discount applied, ...).
	Details map[string]any
}

// Store persists audit events. Implementations backed by a database must join the
// transaction carried in ctx so a mutation and its audit row commit together.
type Store interface {
	Append(ctx context.Context, event Event) error
}

type AuditEvent string

const (
	// Single registration flow
	EventRegistrationStarted   AuditEvent = "registration_started"
	EventRegistrantSubmitted   AuditEvent = "registrant_submitted"
	EventWaiverAccepted        AuditEvent = "waiver_accepted"
	EventQuestionAnswered      AuditEvent = "question_answered"
	EventRegistrationFinalized AuditEvent = "registration_finalized"
	EventHoldExpired           AuditEvent = "hold_expired"

	// Group batches
	EventGroupBatchUploaded        AuditEvent = "group_batch_uploaded"
	EventGroupBatchProcessed       AuditEvent = "group_batch_processed"
	EventGroupBatchFailed          AuditEvent = "group_batch_failed"
	EventGroupRegistrationAdmitted AuditEvent = "group_registration_admitted"

	// Invites
	EventInviteIssued      AuditEvent = "invite_issued"
	EventInviteClaimed     AuditEvent = "invite_claimed"
	EventInviteRateLimited AuditEvent = "invite_claim_rate_limited"

	// Capacity administration
	EventCapacityChanged AuditEvent = "capacity_changed"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventWaiverAccepted:            CategoryCompliance,
	EventGroupRegistrationAdmitted: CategoryCompliance,
	EventGroupBatchProcessed:       CategoryCompliance,
	EventInviteClaimed:             CategoryCompliance,
	EventCapacityChanged:           CategoryCompliance,

	EventInviteRateLimited: CategorySecurity,
	EventGroupBatchFailed:  CategorySecurity,

	EventRegistrationStarted:   CategoryOperations,
	EventRegistrantSubmitted:   CategoryOperations,
	EventQuestionAnswered:      CategoryOperations,
	EventRegistrationFinalized: CategoryOperations,
	EventHoldExpired:           CategoryOperations,
	EventGroupBatchUploaded:    CategoryOperations,
	EventInviteIssued:          CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// New builds an event for action with its category filled in.
func New(action AuditEvent, at time.Time) Event {
	return Event{
		Category:  action.Category(),
		Timestamp: at,
		Action:    string(action),
	}
}
