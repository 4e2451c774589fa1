package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"raceday/internal/group/parser"
	"raceday/internal/registration/models"
	"raceday/internal/registration/ports"
	dErrors "raceday/pkg/domain-errors"
	"raceday/pkg/identity"
	"raceday/pkg/platform/sentinel"
)

// catalog is the edition data rows are resolved against.
type catalog struct {
	edition   *models.Edition
	distances []*models.Distance
	byID      map[uuid.UUID]*models.Distance
	options   map[uuid.UUID]*models.AddOnOption
}

func loadCatalog(ctx context.Context, st ports.Store, editionID uuid.UUID) (*catalog, error) {
	edition, err := st.GetEdition(ctx, editionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeEventNotFound, "event not found")
		}
		return nil, internal(err, "failed to load event")
	}
	distances, err := st.ListDistances(ctx, editionID)
	if err != nil {
		return nil, internal(err, "failed to load distances")
	}
	options, err := st.ListAddOnOptions(ctx, editionID)
	if err != nil {
		return nil, internal(err, "failed to load add-ons")
	}

	c := &catalog{
		edition:   edition,
		distances: distances,
		byID:      make(map[uuid.UUID]*models.Distance, len(distances)),
		options:   make(map[uuid.UUID]*models.AddOnOption, len(options)),
	}
	for _, d := range distances {
		c.byID[d.ID] = d
	}
	for _, o := range options {
		c.options[o.ID] = o
	}
	return c, nil
}

// resolveDistance finds the row's distance by id, else by case-insensitive label.
func (c *catalog) resolveDistance(row parser.Row) (*models.Distance, string) {
	if row.DistanceID != "" {
		id, err := uuid.Parse(row.DistanceID)
		if err != nil {
			return nil, "distanceId is not a valid id"
		}
		d, ok := c.byID[id]
		if !ok {
			return nil, "distanceId does not belong to this event"
		}
		if row.DistanceLabel != "" && !d.MatchesLabel(row.DistanceLabel) {
			return nil, "distanceId and distanceLabel name different distances"
		}
		return d, ""
	}
	if row.DistanceLabel == "" {
		return nil, "distanceId or distanceLabel is required"
	}
	var found *models.Distance
	for _, d := range c.distances {
		if !d.MatchesLabel(row.DistanceLabel) {
			continue
		}
		if found != nil {
			return nil, fmt.Sprintf("distanceLabel %q matches more than one distance", row.DistanceLabel)
		}
		found = d
	}
	if found == nil {
		return nil, fmt.Sprintf("distanceLabel %q does not match any distance", row.DistanceLabel)
	}
	return found, ""
}

// selections parses and checks a row's addOnSelections against distance. Availability
// is only checked when the distance resolved.
func (c *catalog) selections(raw string, distance *models.Distance) ([]models.AddOnSelection, []string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var sel []models.AddOnSelection
	if err := json.Unmarshal([]byte(raw), &sel); err != nil {
		return nil, []string{"addOnSelections must be a JSON array of {optionId, quantity}"}
	}

	var problems []string
	seen := map[uuid.UUID]bool{}
	for _, s := range sel {
		opt, ok := c.options[s.OptionID]
		switch {
		case !ok || (distance != nil && !opt.AvailableFor(distance.ID)):
			problems = append(problems, fmt.Sprintf("add-on option %s is not available for this distance", s.OptionID))
			continue
		case seen[s.OptionID]:
			problems = append(problems, fmt.Sprintf("add-on %q is listed more than once", opt.Label))
			continue
		case s.Quantity < 1:
			problems = append(problems, fmt.Sprintf("add-on %q quantity must be at least 1", opt.Label))
		case opt.MaxQtyPerOrder > 0 && s.Quantity > opt.MaxQtyPerOrder:
			problems = append(problems, fmt.Sprintf("add-on %q allows at most %d per order", opt.Label, opt.MaxQtyPerOrder))
		}
		seen[s.OptionID] = true
	}
	if len(problems) > 0 {
		return nil, problems
	}
	return sel, nil
}

// addOnLines prices selections for registrationID.
func (c *catalog) addOnLines(registrationID uuid.UUID, sel []models.AddOnSelection) ([]*models.RegistrationAddOn, int64) {
	lines := make([]*models.RegistrationAddOn, 0, len(sel))
	var total int64
	for _, s := range sel {
		line := &models.RegistrationAddOn{
			ID:             uuid.New(),
			RegistrationID: registrationID,
			OptionID:       s.OptionID,
			Quantity:       s.Quantity,
			LineTotalCents: c.options[s.OptionID].PriceCents * int64(s.Quantity),
		}
		total += line.LineTotalCents
		lines = append(lines, line)
	}
	return lines, total
}

// matchAccount finds the account a row's (email, dateOfBirth) belongs to. A profile
// without a DOB never matches; system accounts never match.
func matchAccount(ctx context.Context, st ports.AccountStore, email, dob string) (*models.User, error) {
	u, err := st.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if u.IsSystem {
		return nil, nil
	}
	p, err := st.GetProfile(ctx, u.ID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !identity.SameDate(p.DateOfBirth, dob) {
		return nil, nil
	}
	return u, nil
}

// remainingSnapshot counts free slots per capped scope without locks. Upload uses it
// only to flag distances that are already full.
func remainingSnapshot(ctx context.Context, st ports.EditionStore, c *catalog, now time.Time) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int, len(c.distances))
	byScope := map[string]int{}
	for _, d := range c.distances {
		scope := models.ScopeFor(c.edition, d)
		if !scope.Capped() {
			continue
		}
		rem, ok := byScope[scope.Key()]
		if !ok {
			reserved, err := st.CountReserved(ctx, scope, now, nil)
			if err != nil {
				return nil, err
			}
			rem = *scope.Limit - reserved
			byScope[scope.Key()] = rem
		}
		out[d.ID] = rem
	}
	return out, nil
}
