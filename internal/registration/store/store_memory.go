package store

import (
	"context"
	"encoding/json"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"raceday/internal/registration/capacity"
	"raceday/internal/registration/models"
	"raceday/internal/registration/ports"
	"raceday/pkg/identity"
	"raceday/pkg/platform/audit"
	auditmemory "raceday/pkg/platform/audit/store/memory"
	"raceday/pkg/platform/sentinel"
)

// InMemoryStore keeps the whole engine state in maps. A unit of work runs against a
// private copy under one mutex and is swapped in on commit, so rollback and audit
// atomicity behave like the Postgres store.
type InMemoryStore struct {
	mu    sync.Mutex
	state *memoryState
	audit *auditmemory.InMemoryStore
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{state: newMemoryState(), audit: auditmemory.NewInMemoryStore()}
}

// Audit exposes committed audit events.
func (s *InMemoryStore) Audit() *auditmemory.InMemoryStore {
	return s.audit
}

type memoryState struct {
	editions      map[uuid.UUID]models.Edition
	distances     map[uuid.UUID]models.Distance
	registrations map[uuid.UUID]models.Registration
	registrants   map[uuid.UUID]models.Registrant // keyed by registration id
	waivers       map[uuid.UUID]models.Waiver
	acceptances   map[uuid.UUID]models.WaiverAcceptance
	questions     map[uuid.UUID]models.Question
	answers       map[uuid.UUID]models.Answer
	addOnOptions  map[uuid.UUID]models.AddOnOption
	addOnLines    map[uuid.UUID]models.RegistrationAddOn
	discountRules map[uuid.UUID]models.GroupDiscountRule
	users         map[uuid.UUID]models.User
	profiles      map[uuid.UUID]models.Profile
	memberships   map[uuid.UUID]map[uuid.UUID]string // org -> user -> role
	batches       map[uuid.UUID]models.GroupBatch
	batchRows     map[uuid.UUID]models.BatchRow
	invites       map[uuid.UUID]models.Invite
}

func newMemoryState() *memoryState {
	return &memoryState{
		editions:      map[uuid.UUID]models.Edition{},
		distances:     map[uuid.UUID]models.Distance{},
		registrations: map[uuid.UUID]models.Registration{},
		registrants:   map[uuid.UUID]models.Registrant{},
		waivers:       map[uuid.UUID]models.Waiver{},
		acceptances:   map[uuid.UUID]models.WaiverAcceptance{},
		questions:     map[uuid.UUID]models.Question{},
		answers:       map[uuid.UUID]models.Answer{},
		addOnOptions:  map[uuid.UUID]models.AddOnOption{},
		addOnLines:    map[uuid.UUID]models.RegistrationAddOn{},
		discountRules: map[uuid.UUID]models.GroupDiscountRule{},
		users:         map[uuid.UUID]models.User{},
		profiles:      map[uuid.UUID]models.Profile{},
		memberships:   map[uuid.UUID]map[uuid.UUID]string{},
		batches:       map[uuid.UUID]models.GroupBatch{},
		batchRows:     map[uuid.UUID]models.BatchRow{},
		invites:       map[uuid.UUID]models.Invite{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone copies every table. Values are structs replaced wholesale on write, so a
// shallow copy per map is enough.
func (st *memoryState) clone() *memoryState {
	memberships := make(map[uuid.UUID]map[uuid.UUID]string, len(st.memberships))
	for org, m := range st.memberships {
		memberships[org] = cloneMap(m)
	}
	return &memoryState{
		editions:      cloneMap(st.editions),
		distances:     cloneMap(st.distances),
		registrations: cloneMap(st.registrations),
		registrants:   cloneMap(st.registrants),
		waivers:       cloneMap(st.waivers),
		acceptances:   cloneMap(st.acceptances),
		questions:     cloneMap(st.questions),
		answers:       cloneMap(st.answers),
		addOnOptions:  cloneMap(st.addOnOptions),
		addOnLines:    cloneMap(st.addOnLines),
		discountRules: cloneMap(st.discountRules),
		users:         cloneMap(st.users),
		profiles:      cloneMap(st.profiles),
		memberships:   memberships,
		batches:       cloneMap(st.batches),
		batchRows:     cloneMap(st.batchRows),
		invites:       cloneMap(st.invites),
	}
}

// Seed helpers write committed state directly. They exist for fixtures and the CLI demo data.

func (s *InMemoryStore) SeedEdition(e models.Edition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.editions[e.ID] = e
}

func (s *InMemoryStore) SeedDistance(d models.Distance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.PricingTiers = append([]models.PricingTier(nil), d.PricingTiers...)
	s.state.distances[d.ID] = d
}

func (s *InMemoryStore) SeedRegistration(r models.Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.registrations[r.ID] = r
}

func (s *InMemoryStore) SeedWaiver(w models.Waiver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.waivers[w.ID] = w
}

func (s *InMemoryStore) SeedQuestion(q models.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.questions[q.ID] = q
}

func (s *InMemoryStore) SeedAddOnOption(o models.AddOnOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.addOnOptions[o.ID] = o
}

func (s *InMemoryStore) SeedDiscountRule(r models.GroupDiscountRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.discountRules[r.ID] = r
}

func (s *InMemoryStore) SeedUser(u models.User, dateOfBirth string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[u.ID] = u
	if dateOfBirth != "" {
		s.state.profiles[u.ID] = models.Profile{UserID: u.ID, DateOfBirth: dateOfBirth}
	}
}

func (s *InMemoryStore) SeedMembership(orgID, userID uuid.UUID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.memberships[orgID] == nil {
		s.state.memberships[orgID] = map[uuid.UUID]string{}
	}
	s.state.memberships[orgID][userID] = role
}

func (s *InMemoryStore) SeedInvite(inv models.Invite) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.invites[inv.ID] = inv
}

// Registrations returns committed registrations ordered by creation time.
func (s *InMemoryStore) Registrations() []models.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Registration, 0, len(s.state.registrations))
	for _, r := range s.state.registrations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Profile returns the committed profile for userID.
func (s *InMemoryStore) Profile(userID uuid.UUID) (models.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.profiles[userID]
	return p, ok
}

// Registrant returns the committed registrant of registrationID.
func (s *InMemoryStore) Registrant(registrationID uuid.UUID) (models.Registrant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.state.registrants[registrationID]
	return r, ok
}

// AddOnLines returns the committed add-on lines of registrationID.
func (s *InMemoryStore) AddOnLines(registrationID uuid.UUID) []models.RegistrationAddOn {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RegistrationAddOn
	for _, l := range s.state.addOnLines {
		if l.RegistrationID == registrationID {
			out = append(out, l)
		}
	}
	return out
}

// Invites returns committed invites ordered by creation time.
func (s *InMemoryStore) Invites() []models.Invite {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Invite, 0, len(s.state.invites))
	for _, inv := range s.state.invites {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// memoryView is the ports.Store handed to one unit of work.
type memoryView struct {
	st      *memoryState
	pending []audit.Event
}

var _ ports.Store = (*memoryView)(nil)

func (v *memoryView) AppendAudit(_ context.Context, event audit.Event) error {
	v.pending = append(v.pending, event)
	return nil
}

func (v *memoryView) GetEdition(_ context.Context, id uuid.UUID) (*models.Edition, error) {
	e, ok := v.st.editions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &e, nil
}

func (v *memoryView) LockEdition(ctx context.Context, id uuid.UUID) (*models.Edition, error) {
	return v.GetEdition(ctx, id)
}

func (v *memoryView) UpdateEditionSharedCapacity(_ context.Context, id uuid.UUID, limit *int) error {
	e, ok := v.st.editions[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	e.SharedCapacity = copyInt(limit)
	v.st.editions[id] = e
	return nil
}

func (v *memoryView) GetDistance(_ context.Context, id uuid.UUID) (*models.Distance, error) {
	d, ok := v.st.distances[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	d.PricingTiers = append([]models.PricingTier(nil), d.PricingTiers...)
	return &d, nil
}

func (v *memoryView) LockDistance(ctx context.Context, id uuid.UUID) (*models.Distance, error) {
	return v.GetDistance(ctx, id)
}

func (v *memoryView) ListDistances(ctx context.Context, editionID uuid.UUID) ([]*models.Distance, error) {
	var out []*models.Distance
	for id, d := range v.st.distances {
		if d.EditionID == editionID {
			copied, _ := v.GetDistance(ctx, id)
			out = append(out, copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (v *memoryView) UpdateDistanceCapacity(_ context.Context, id uuid.UUID, limit *int) error {
	d, ok := v.st.distances[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	d.Capacity = copyInt(limit)
	v.st.distances[id] = d
	return nil
}

func (v *memoryView) CountReserved(_ context.Context, scope models.ReservationScope, now time.Time, exclude *uuid.UUID) (int, error) {
	count := 0
	for id, r := range v.st.registrations {
		if exclude != nil && id == *exclude {
			continue
		}
		switch scope.Kind {
		case models.ScopeKindPool:
			d, ok := v.st.distances[r.DistanceID]
			if r.EditionID != scope.EditionID || !ok || d.CapacityScope != models.ScopeSharedPool {
				continue
			}
		case models.ScopeKindDistance:
			if r.DistanceID != scope.DistanceID {
				continue
			}
		default:
			return 0, nil
		}
		if capacity.IsReserved(&r, now) {
			count++
		}
	}
	return count, nil
}

func (v *memoryView) InsertRegistration(_ context.Context, reg *models.Registration) error {
	if _, exists := v.st.registrations[reg.ID]; exists {
		return sentinel.ErrConflict
	}
	v.st.registrations[reg.ID] = *reg
	return nil
}

func (v *memoryView) GetRegistration(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	r, ok := v.st.registrations[id]
	if !ok || r.DeletedAt != nil {
		return nil, sentinel.ErrNotFound
	}
	return &r, nil
}

func (v *memoryView) LockRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	return v.GetRegistration(ctx, id)
}

func (v *memoryView) CompareAndSetStatus(_ context.Context, id uuid.UUID, from []models.Status, to models.Status, expiresAt *time.Time, now time.Time) error {
	r, ok := v.st.registrations[id]
	if !ok || r.DeletedAt != nil || !slices.Contains(from, r.Status) {
		return sentinel.ErrStaleState
	}
	r.Status = to
	r.ExpiresAt = copyTime(expiresAt)
	r.UpdatedAt = now
	v.st.registrations[id] = r
	return nil
}

func (v *memoryView) AssignBuyer(_ context.Context, id uuid.UUID, buyer uuid.UUID, replaceable []uuid.UUID, now time.Time) error {
	r, ok := v.st.registrations[id]
	if !ok || r.DeletedAt != nil {
		return sentinel.ErrStaleState
	}
	if r.BuyerUserID != nil && *r.BuyerUserID != buyer && !slices.Contains(replaceable, *r.BuyerUserID) {
		return sentinel.ErrStaleState
	}
	b := buyer
	r.BuyerUserID = &b
	r.UpdatedAt = now
	v.st.registrations[id] = r
	return nil
}

func (v *memoryView) HasActiveRegistration(_ context.Context, editionID, userID uuid.UUID, now time.Time, exclude *uuid.UUID) (bool, error) {
	for id, r := range v.st.registrations {
		if r.EditionID != editionID || (exclude != nil && id == *exclude) || !capacity.IsReserved(&r, now) {
			continue
		}
		if r.OwnedBy(userID) {
			return true, nil
		}
		if rt, ok := v.st.registrants[id]; ok && rt.UserID != nil && *rt.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (v *memoryView) ExpireStaleHolds(_ context.Context, now time.Time, limit int) ([]*models.Registration, error) {
	var stale []models.Registration
	for _, r := range v.st.registrations {
		if r.DeletedAt == nil && r.Status.IsProvisional() && r.ExpiresAt != nil && r.ExpiresAt.Before(now) {
			stale = append(stale, r)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ExpiresAt.Before(*stale[j].ExpiresAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}

	out := make([]*models.Registration, 0, len(stale))
	for _, r := range stale {
		r.Status = models.StatusCancelled
		r.UpdatedAt = now
		v.st.registrations[r.ID] = r
		copied := r
		out = append(out, &copied)
	}
	return out, nil
}

func (v *memoryView) UpsertRegistrant(_ context.Context, r *models.Registrant) error {
	next := *r
	if existing, ok := v.st.registrants[r.RegistrationID]; ok {
		next.ID = existing.ID
		next.CreatedAt = existing.CreatedAt
		if next.UserID == nil {
			next.UserID = existing.UserID
		}
	}
	v.st.registrants[r.RegistrationID] = next
	return nil
}

func (v *memoryView) GetRegistrant(_ context.Context, registrationID uuid.UUID) (*models.Registrant, error) {
	r, ok := v.st.registrants[registrationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &r, nil
}

func (v *memoryView) SetRegistrantUser(_ context.Context, registrationID, userID uuid.UUID, now time.Time) error {
	r, ok := v.st.registrants[registrationID]
	if !ok {
		return sentinel.ErrNotFound
	}
	u := userID
	r.UserID = &u
	r.UpdatedAt = now
	v.st.registrants[registrationID] = r
	return nil
}

func (v *memoryView) InsertRegistrationAddOn(_ context.Context, line *models.RegistrationAddOn) error {
	v.st.addOnLines[line.ID] = *line
	return nil
}

func (v *memoryView) GetWaiver(_ context.Context, id uuid.UUID) (*models.Waiver, error) {
	w, ok := v.st.waivers[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &w, nil
}

func (v *memoryView) ListWaivers(_ context.Context, editionID uuid.UUID) ([]*models.Waiver, error) {
	var out []*models.Waiver
	for _, w := range v.st.waivers {
		if w.EditionID == editionID {
			copied := w
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out, nil
}

func (v *memoryView) ListWaiverAcceptances(_ context.Context, registrationID uuid.UUID) ([]*models.WaiverAcceptance, error) {
	var out []*models.WaiverAcceptance
	for _, a := range v.st.acceptances {
		if a.RegistrationID == registrationID {
			copied := a
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AcceptedAt.Before(out[j].AcceptedAt) })
	return out, nil
}

func (v *memoryView) InsertWaiverAcceptance(_ context.Context, a *models.WaiverAcceptance) (bool, error) {
	for _, existing := range v.st.acceptances {
		if existing.RegistrationID == a.RegistrationID && existing.WaiverID == a.WaiverID {
			return false, nil
		}
	}
	v.st.acceptances[a.ID] = *a
	return true, nil
}

func (v *memoryView) GetQuestion(_ context.Context, id uuid.UUID) (*models.Question, error) {
	q, ok := v.st.questions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &q, nil
}

func (v *memoryView) ListQuestions(_ context.Context, editionID uuid.UUID) ([]*models.Question, error) {
	var out []*models.Question
	for _, q := range v.st.questions {
		if q.EditionID == editionID {
			copied := q
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (v *memoryView) UpsertAnswer(_ context.Context, a *models.Answer) error {
	for id, existing := range v.st.answers {
		if existing.RegistrationID == a.RegistrationID && existing.QuestionID == a.QuestionID {
			existing.Value = a.Value
			existing.UpdatedAt = a.UpdatedAt
			v.st.answers[id] = existing
			return nil
		}
	}
	v.st.answers[a.ID] = *a
	return nil
}

func (v *memoryView) ListAnswers(_ context.Context, registrationID uuid.UUID) ([]*models.Answer, error) {
	var out []*models.Answer
	for _, a := range v.st.answers {
		if a.RegistrationID == registrationID {
			copied := a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (v *memoryView) ListAddOnOptions(_ context.Context, editionID uuid.UUID) ([]*models.AddOnOption, error) {
	var out []*models.AddOnOption
	for _, o := range v.st.addOnOptions {
		if o.EditionID == editionID {
			copied := o
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (v *memoryView) ListGroupDiscountRules(_ context.Context, editionID uuid.UUID) ([]models.GroupDiscountRule, error) {
	var out []models.GroupDiscountRule
	for _, r := range v.st.discountRules {
		if r.EditionID == editionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MinParticipants < out[j].MinParticipants })
	return out, nil
}

func (v *memoryView) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := v.st.users[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &u, nil
}

func (v *memoryView) FindUserByEmail(_ context.Context, normalizedEmail string) (*models.User, error) {
	var found *models.User
	for _, u := range v.st.users {
		if u.IsSystem || identity.NormalizeEmail(u.Email) != normalizedEmail {
			continue
		}
		if found == nil || u.CreatedAt.Before(found.CreatedAt) {
			copied := u
			found = &copied
		}
	}
	if found == nil {
		return nil, sentinel.ErrNotFound
	}
	return found, nil
}

func (v *memoryView) GetProfile(_ context.Context, userID uuid.UUID) (*models.Profile, error) {
	p, ok := v.st.profiles[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

func (v *memoryView) BackfillProfileDOB(_ context.Context, userID uuid.UUID, dob string) error {
	p, ok := v.st.profiles[userID]
	if ok && p.DateOfBirth != "" && p.DateOfBirth != dob {
		return sentinel.ErrStaleState
	}
	v.st.profiles[userID] = models.Profile{UserID: userID, DateOfBirth: dob}
	return nil
}

func (v *memoryView) EnsureSystemUser(_ context.Context, email string) (*models.User, error) {
	for id, u := range v.st.users {
		if strings.EqualFold(u.Email, email) {
			u.IsSystem = true
			v.st.users[id] = u
			return &u, nil
		}
	}
	u := models.User{ID: uuid.New(), Email: email, EmailVerified: true, IsSystem: true, CreatedAt: time.Now()}
	v.st.users[u.ID] = u
	return &u, nil
}

func (v *memoryView) CanEditRegistrationSettings(_ context.Context, userID, editionID uuid.UUID) (bool, error) {
	e, ok := v.st.editions[editionID]
	if !ok {
		return false, nil
	}
	switch v.st.memberships[e.OrganizationID][userID] {
	case "owner", "admin", "editor":
		return true, nil
	}
	return false, nil
}

func (v *memoryView) InsertBatch(_ context.Context, batch *models.GroupBatch, rows []*models.BatchRow) error {
	if _, exists := v.st.batches[batch.ID]; exists {
		return sentinel.ErrConflict
	}
	v.st.batches[batch.ID] = *batch
	for _, r := range rows {
		copied := *r
		copied.BatchID = batch.ID
		copied.Raw = append(json.RawMessage(nil), r.Raw...)
		copied.ValidationErrors = append([]string(nil), r.ValidationErrors...)
		v.st.batchRows[r.ID] = copied
	}
	return nil
}

func (v *memoryView) GetBatch(_ context.Context, id uuid.UUID) (*models.GroupBatch, error) {
	b, ok := v.st.batches[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &b, nil
}

func (v *memoryView) LockBatch(ctx context.Context, id uuid.UUID) (*models.GroupBatch, error) {
	return v.GetBatch(ctx, id)
}

func (v *memoryView) ListBatchRows(_ context.Context, batchID uuid.UUID) ([]*models.BatchRow, error) {
	var out []*models.BatchRow
	for _, r := range v.st.batchRows {
		if r.BatchID == batchID {
			copied := r
			copied.ValidationErrors = append([]string(nil), r.ValidationErrors...)
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowIndex < out[j].RowIndex })
	return out, nil
}

func (v *memoryView) SetBatchRowRegistration(_ context.Context, rowID, registrationID uuid.UUID) error {
	r, ok := v.st.batchRows[rowID]
	if !ok {
		return sentinel.ErrNotFound
	}
	id := registrationID
	r.CreatedRegistrationID = &id
	v.st.batchRows[rowID] = r
	return nil
}

func (v *memoryView) CompareAndSetBatchStatus(_ context.Context, id uuid.UUID, from []models.BatchStatus, to models.BatchStatus, reason string, processedAt *time.Time, now time.Time) error {
	b, ok := v.st.batches[id]
	if !ok {
		return sentinel.ErrStaleState
	}
	if !slices.Contains(from, b.Status) {
		return sentinel.ErrStaleState
	}
	b.Status = to
	b.FailureReason = reason
	if processedAt != nil {
		b.ProcessedAt = copyTime(processedAt)
	}
	b.UpdatedAt = now
	v.st.batches[id] = b
	return nil
}

func (v *memoryView) InsertInvite(_ context.Context, inv *models.Invite) error {
	for _, existing := range v.st.invites {
		if existing.TokenHash == inv.TokenHash {
			return sentinel.ErrConflict
		}
		if inv.IsCurrent && existing.IsCurrent {
			if existing.RegistrationID == inv.RegistrationID {
				return sentinel.ErrConflict
			}
			if inv.BatchRowID != nil && existing.BatchRowID != nil && *inv.BatchRowID == *existing.BatchRowID {
				return sentinel.ErrConflict
			}
			if existing.EditionID == inv.EditionID && identity.NormalizeEmail(existing.Email) == identity.NormalizeEmail(inv.Email) {
				return sentinel.ErrConflict
			}
		}
	}
	v.st.invites[inv.ID] = *inv
	return nil
}

func (v *memoryView) SupersedeCurrentInvites(_ context.Context, registrationID uuid.UUID) (int, error) {
	n := 0
	for id, inv := range v.st.invites {
		if inv.RegistrationID != registrationID || !inv.IsCurrent {
			continue
		}
		inv.IsCurrent = false
		if inv.Status == models.InviteDraft || inv.Status == models.InviteSent {
			inv.Status = models.InviteSuperseded
		}
		v.st.invites[id] = inv
		n++
	}
	return n, nil
}

func (v *memoryView) CurrentInviteForEmail(_ context.Context, editionID uuid.UUID, email string) (*models.Invite, error) {
	email = identity.NormalizeEmail(email)
	for _, inv := range v.st.invites {
		if inv.IsCurrent && inv.EditionID == editionID && identity.NormalizeEmail(inv.Email) == email {
			copied := inv
			return &copied, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (v *memoryView) LockInviteByTokenHash(_ context.Context, tokenHash string) (*models.Invite, error) {
	for _, inv := range v.st.invites {
		if inv.TokenHash == tokenHash {
			copied := inv
			return &copied, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (v *memoryView) MarkInviteClaimed(_ context.Context, id, userID uuid.UUID, now time.Time) error {
	inv, ok := v.st.invites[id]
	if !ok || inv.Status != models.InviteSent || !inv.IsCurrent {
		return sentinel.ErrStaleState
	}
	u := userID
	at := now
	inv.Status = models.InviteClaimed
	inv.ClaimedByUserID = &u
	inv.ClaimedAt = &at
	v.st.invites[id] = inv
	return nil
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
