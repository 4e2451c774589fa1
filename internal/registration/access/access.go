// Package access holds the organizer permission check shared by capacity
// administration, group batches and invite issuance.
package access

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"raceday/internal/registration/ports"
	dErrors "raceday/pkg/domain-errors"
	"raceday/pkg/platform/sentinel"
	"raceday/pkg/requestcontext"
)

// AuthorizeOrganizer allows members who can edit the edition's registration
// settings and callers holding the platform-wide events override.
func AuthorizeOrganizer(ctx context.Context, st ports.AccountStore, callerID, editionID uuid.UUID) error {
	if requestcontext.Caller(ctx).Has(requestcontext.PermManageAllEvents) {
		return nil
	}
	ok, err := st.CanEditRegistrationSettings(ctx, callerID, editionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeEventNotFound, "event not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check permissions")
	}
	if !ok {
		return dErrors.New(dErrors.CodeForbidden, "not allowed to manage this event")
	}
	return nil
}
