package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"medrelief/internal/models"
	"medrelief/internal/repository"
)

// memStore keeps rows in maps and applies a unit of work only when it succeeds.
type memStore struct {
	mu    sync.Mutex
	clock time.Time

	users map[uuid.UUID]models.User
	orgs  map[uuid.UUID]models.Organization
	teams map[uuid.UUID]models.Team

	locked    []string
	lastOrgQ  models.OrganizationQuery
	lastTeamQ models.TeamQuery

	// failPhone makes any contact upsert with this phone fail.
	failPhone string
}

var errInjected = errors.New("injected failure")

func newMemStore() *memStore {
	return &memStore{
		clock: time.Date(2020, 1, 30, 8, 0, 0, 0, time.UTC),
		users: map[uuid.UUID]models.User{},
		orgs:  map[uuid.UUID]models.Organization{},
		teams: map[uuid.UUID]models.Team{},
	}
}

func (m *memStore) addUser(phone string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.users[id] = models.User{Id: id, Phone: phone, CreatedAt: m.clock}
	return id
}

func (m *memStore) organizationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orgs)
}

func (m *memStore) WithLock(ctx context.Context, key string, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.locked = append(m.locked, key)
	tx := &memTx{store: m, orgs: cloneOrganizations(m.orgs), teams: cloneTeams(m.teams)}
	err := fn(ctx, tx)
	if err != nil {
		return err
	}
	m.orgs, m.teams = tx.orgs, tx.teams
	return nil
}

func (m *memStore) GetOrganizations(ctx context.Context, q models.OrganizationQuery) ([]models.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastOrgQ = q

	result := []models.Organization{}
	for _, org := range cloneOrganizations(m.orgs) {
		if q.Owner.Valid && !models.Owns(org.Inspector, q.Owner.UUID) {
			continue
		}
		result = append(result, org)
	}
	return result, nil
}

func (m *memStore) GetOrganizationByUUID(ctx context.Context, id uuid.UUID) (models.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := cloneOrganizations(m.orgs)[id]
	if !ok {
		return org, fmt.Errorf("organization %s: %w", id, models.ErrNotFound)
	}
	return org, nil
}

func (m *memStore) GetTeams(ctx context.Context, q models.TeamQuery) ([]models.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTeamQ = q

	result := []models.Team{}
	for _, team := range cloneTeams(m.teams) {
		if q.Owner.Valid && !models.Owns(team.Inspector, q.Owner.UUID) {
			continue
		}
		result = append(result, team)
	}
	return result, nil
}

func (m *memStore) GetTeamByUUID(ctx context.Context, id uuid.UUID) (models.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	team, ok := cloneTeams(m.teams)[id]
	if !ok {
		return team, fmt.Errorf("team %s: %w", id, models.ErrNotFound)
	}
	return team, nil
}

func (m *memStore) UserByUUID(ctx context.Context, id uuid.UUID) (models.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	return user, ok, nil
}

func (m *memStore) AddUser(ctx context.Context, phone string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Phone == phone {
			return user, nil
		}
	}
	user := models.User{Id: uuid.New(), Phone: phone, CreatedAt: m.tick()}
	m.users[user.Id] = user
	return user, nil
}

func (m *memStore) GetUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := []models.User{}
	for _, user := range m.users {
		result = append(result, user)
	}
	return result, nil
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

type memTx struct {
	store *memStore
	orgs  map[uuid.UUID]models.Organization
	teams map[uuid.UUID]models.Team
}

//// Organizations

func (t *memTx) findOrganization(key string) (models.Organization, bool) {
	for _, org := range t.orgs {
		if org.NaturalKey() == key {
			return org, true
		}
	}
	return models.Organization{}, false
}

func (t *memTx) GetOrCreateOrganization(ctx context.Context, org models.Organization) (models.Organization, bool, error) {
	if found, ok := t.findOrganization(org.NaturalKey()); ok {
		return found, false, nil
	}
	created, err := t.AddOrganization(ctx, org)
	return created, err == nil, err
}

func (t *memTx) OrganizationForUpdate(ctx context.Context, id uuid.UUID) (models.Organization, error) {
	org, ok := t.orgs[id]
	if !ok {
		return org, fmt.Errorf("organization %s: %w", id, models.ErrNotFound)
	}
	return org, nil
}

func (t *memTx) LoadOrganization(ctx context.Context, id uuid.UUID) (models.Organization, error) {
	org, err := t.OrganizationForUpdate(ctx, id)
	if err != nil {
		return org, err
	}
	return cloneOrganization(org), nil
}

func (t *memTx) AddOrganization(ctx context.Context, org models.Organization) (models.Organization, error) {
	if _, ok := t.findOrganization(org.NaturalKey()); ok {
		return models.Organization{}, models.ErrConflict
	}
	org.Id = uuid.New()
	org.AddTime = t.store.tick()
	org.Contacts = []models.OrganizationContact{}
	org.Demands = []models.OrganizationDemand{}
	org.Supplied = nil
	t.orgs[org.Id] = org
	return org, nil
}

func (t *memTx) UpdateOrganization(ctx context.Context, org models.Organization) error {
	stored, ok := t.orgs[org.Id]
	if !ok {
		return fmt.Errorf("organization %s: %w", org.Id, models.ErrNotFound)
	}
	if found, ok := t.findOrganization(org.NaturalKey()); ok && found.Id != org.Id {
		return models.ErrConflict
	}
	org.AddTime = stored.AddTime
	org.Contacts = stored.Contacts
	org.Demands = stored.Demands
	org.Supplied = nil
	t.orgs[org.Id] = org
	return nil
}

func (t *memTx) DeleteOrganization(ctx context.Context, id uuid.UUID) error {
	delete(t.orgs, id)
	return nil
}

func (t *memTx) UpsertOrganizationContact(ctx context.Context, orgId uuid.UUID, contact models.OrganizationContact) (models.OrganizationContact, error) {
	if len(t.store.failPhone) > 0 && contact.Phone == t.store.failPhone {
		return contact, errInjected
	}
	org := t.orgs[orgId]
	for i, c := range org.Contacts {
		if c.Phone == contact.Phone {
			org.Contacts[i].Name = contact.Name
			return org.Contacts[i], nil
		}
	}
	contact.Id = uuid.New()
	contact.OrganizationId = orgId
	contact.AddTime = t.store.tick()
	org.Contacts = append(org.Contacts, contact)
	t.orgs[orgId] = org
	return contact, nil
}

func (t *memTx) DeleteOrganizationContactsExcept(ctx context.Context, orgId uuid.UUID, phones []string) error {
	org := t.orgs[orgId]
	kept := []models.OrganizationContact{}
	for _, c := range org.Contacts {
		if contains(phones, c.Phone) {
			kept = append(kept, c)
		}
	}
	org.Contacts = kept
	t.orgs[orgId] = org
	return nil
}

func (t *memTx) DeleteOrganizationContact(ctx context.Context, orgId, contactId uuid.UUID) (bool, error) {
	org := t.orgs[orgId]
	for i, c := range org.Contacts {
		if c.Id == contactId {
			org.Contacts = append(org.Contacts[:i], org.Contacts[i+1:]...)
			t.orgs[orgId] = org
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) UpsertOrganizationDemand(ctx context.Context, orgId uuid.UUID, demand models.OrganizationDemand) (models.OrganizationDemand, error) {
	org := t.orgs[orgId]
	for i, d := range org.Demands {
		if d.Name == demand.Name {
			org.Demands[i].Remark = demand.Remark
			org.Demands[i].Amount = demand.Amount
			org.Demands[i].ReceiveAmount = demand.ReceiveAmount
			return org.Demands[i], nil
		}
	}
	demand.Id = uuid.New()
	demand.OrganizationId = orgId
	demand.AddTime = t.store.tick()
	org.Demands = append(org.Demands, demand)
	t.orgs[orgId] = org
	return demand, nil
}

func (t *memTx) DeleteOrganizationDemandsExcept(ctx context.Context, orgId uuid.UUID, names []string) error {
	org := t.orgs[orgId]
	kept := []models.OrganizationDemand{}
	for _, d := range org.Demands {
		if contains(names, d.Name) {
			kept = append(kept, d)
		}
	}
	org.Demands = kept
	t.orgs[orgId] = org
	return nil
}

func (t *memTx) DeleteOrganizationDemand(ctx context.Context, orgId, demandId uuid.UUID) (bool, error) {
	org := t.orgs[orgId]
	for i, d := range org.Demands {
		if d.Id == demandId {
			org.Demands = append(org.Demands[:i], org.Demands[i+1:]...)
			t.orgs[orgId] = org
			return true, nil
		}
	}
	return false, nil
}

//// Teams

func (t *memTx) findTeam(key string) (models.Team, bool) {
	for _, team := range t.teams {
		if team.NaturalKey() == key {
			return team, true
		}
	}
	return models.Team{}, false
}

func (t *memTx) GetOrCreateTeam(ctx context.Context, team models.Team) (models.Team, bool, error) {
	if found, ok := t.findTeam(team.NaturalKey()); ok {
		return found, false, nil
	}
	created, err := t.AddTeam(ctx, team)
	return created, err == nil, err
}

func (t *memTx) TeamForUpdate(ctx context.Context, id uuid.UUID) (models.Team, error) {
	team, ok := t.teams[id]
	if !ok {
		return team, fmt.Errorf("team %s: %w", id, models.ErrNotFound)
	}
	return team, nil
}

func (t *memTx) LoadTeam(ctx context.Context, id uuid.UUID) (models.Team, error) {
	team, err := t.TeamForUpdate(ctx, id)
	if err != nil {
		return team, err
	}
	return cloneTeam(team), nil
}

func (t *memTx) AddTeam(ctx context.Context, team models.Team) (models.Team, error) {
	if _, ok := t.findTeam(team.NaturalKey()); ok {
		return models.Team{}, models.ErrConflict
	}
	team.Id = uuid.New()
	team.AddTime = t.store.tick()
	team.Contacts = []models.TeamContact{}
	team.Supplied = nil
	t.teams[team.Id] = team
	return team, nil
}

func (t *memTx) UpdateTeam(ctx context.Context, team models.Team) error {
	stored, ok := t.teams[team.Id]
	if !ok {
		return fmt.Errorf("team %s: %w", team.Id, models.ErrNotFound)
	}
	if found, ok := t.findTeam(team.NaturalKey()); ok && found.Id != team.Id {
		return models.ErrConflict
	}
	team.AddTime = stored.AddTime
	team.Contacts = stored.Contacts
	team.Supplied = nil
	t.teams[team.Id] = team
	return nil
}

func (t *memTx) DeleteTeam(ctx context.Context, id uuid.UUID) error {
	delete(t.teams, id)
	return nil
}

func (t *memTx) UpsertTeamContact(ctx context.Context, teamId uuid.UUID, contact models.TeamContact) (models.TeamContact, error) {
	if len(t.store.failPhone) > 0 && contact.Phone == t.store.failPhone {
		return contact, errInjected
	}
	team := t.teams[teamId]
	for i, c := range team.Contacts {
		if c.Phone == contact.Phone {
			team.Contacts[i].Name = contact.Name
			return team.Contacts[i], nil
		}
	}
	contact.Id = uuid.New()
	contact.TeamId = teamId
	contact.AddTime = t.store.tick()
	team.Contacts = append(team.Contacts, contact)
	t.teams[teamId] = team
	return contact, nil
}

func (t *memTx) DeleteTeamContactsExcept(ctx context.Context, teamId uuid.UUID, phones []string) error {
	team := t.teams[teamId]
	kept := []models.TeamContact{}
	for _, c := range team.Contacts {
		if contains(phones, c.Phone) {
			kept = append(kept, c)
		}
	}
	team.Contacts = kept
	t.teams[teamId] = team
	return nil
}

func (t *memTx) DeleteTeamContact(ctx context.Context, teamId, contactId uuid.UUID) (bool, error) {
	team := t.teams[teamId]
	for i, c := range team.Contacts {
		if c.Id == contactId {
			team.Contacts = append(team.Contacts[:i], team.Contacts[i+1:]...)
			t.teams[teamId] = team
			return true, nil
		}
	}
	return false, nil
}

//// Helpers

type recordingInvalidator struct {
	mu       sync.Mutex
	prefixes []string
}

func (r *recordingInvalidator) Invalidate(prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefixes = append(r.prefixes, prefix)
}

func (r *recordingInvalidator) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.prefixes...)
}

func (r *recordingInvalidator) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefixes = nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func cloneOrganization(org models.Organization) models.Organization {
	org.Contacts = append([]models.OrganizationContact{}, org.Contacts...)
	org.Demands = append([]models.OrganizationDemand{}, org.Demands...)
	return org
}

func cloneOrganizations(src map[uuid.UUID]models.Organization) map[uuid.UUID]models.Organization {
	dst := make(map[uuid.UUID]models.Organization, len(src))
	for id, org := range src {
		dst[id] = cloneOrganization(org)
	}
	return dst
}

func cloneTeam(team models.Team) models.Team {
	team.Contacts = append([]models.TeamContact{}, team.Contacts...)
	return team
}

func cloneTeams(src map[uuid.UUID]models.Team) map[uuid.UUID]models.Team {
	dst := make(map[uuid.UUID]models.Team, len(src))
	for id, team := range src {
		dst[id] = cloneTeam(team)
	}
	return dst
}
