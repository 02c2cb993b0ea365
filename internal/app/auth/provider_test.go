package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsonner/restauth-bridge/internal/app"
	appsync "github.com/fsonner/restauth-bridge/internal/app/sync"
	"github.com/fsonner/restauth-bridge/internal/config"
	"github.com/fsonner/restauth-bridge/internal/domain"
)

// --- Test mocks ---

type mockBus struct {
	published []string
}

func (b *mockBus) Publish(topic string, args ...any) {
	b.published = append(b.published, topic)
}

type mockService struct {
	exists       bool
	passwordOk   bool
	verifyErr    error
	createErr    error
	groupMembers map[string][]string
	knownGroups  map[string]bool

	createdUsers map[domain.UserIdentifier]map[string]string
	setPasswords []string
}

func newMockService() *mockService {
	return &mockService{
		groupMembers: make(map[string][]string),
		knownGroups:  make(map[string]bool),
		createdUsers: make(map[domain.UserIdentifier]map[string]string),
	}
}

func (s *mockService) UserExists(_ context.Context, _ domain.UserIdentifier) (bool, error) {
	return s.exists, nil
}

func (s *mockService) VerifyPassword(_ context.Context, _ domain.UserIdentifier, _ string) (bool, error) {
	if s.verifyErr != nil {
		return false, s.verifyErr
	}
	return s.passwordOk, nil
}

func (s *mockService) SetPassword(_ context.Context, _ domain.UserIdentifier, password string) error {
	s.setPasswords = append(s.setPasswords, password)
	return nil
}

func (s *mockService) CreateUser(
	_ context.Context,
	name domain.UserIdentifier,
	_ string,
	properties map[string]string,
) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.createdUsers[name] = properties
	return nil
}

func (s *mockService) CreateGroup(_ context.Context, group string) error {
	s.knownGroups[group] = true
	return nil
}

func (s *mockService) AddUserToGroup(_ context.Context, group string, name domain.UserIdentifier) error {
	if !s.knownGroups[group] {
		return domain.NewServiceError(domain.ServiceErrNotFound, 404, "group not found")
	}
	s.groupMembers[group] = append(s.groupMembers[group], string(name))
	return nil
}

func (s *mockService) RemoveUserFromGroup(_ context.Context, group string, _ domain.UserIdentifier) error {
	if !s.knownGroups[group] {
		return domain.NewServiceError(domain.ServiceErrNotFound, 404, "group not found")
	}
	return nil
}

type mockUserDB struct {
	users  map[domain.UserIdentifier]*domain.User
	groups map[string][]string
}

func newMockUserDB(users ...*domain.User) *mockUserDB {
	db := &mockUserDB{
		users:  make(map[domain.UserIdentifier]*domain.User),
		groups: make(map[string][]string),
	}
	for _, u := range users {
		db.users[u.Identifier] = u
	}
	return db
}

func (db *mockUserDB) GetUser(_ context.Context, id domain.UserIdentifier) (*domain.User, error) {
	if u, ok := db.users[id]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (db *mockUserDB) SaveUser(
	_ context.Context,
	id domain.UserIdentifier,
	updateFunc func(u *domain.User) (*domain.User, error),
) error {
	existing := db.users[id]
	if existing == nil {
		existing = &domain.User{Identifier: id}
	}
	updated, err := updateFunc(existing)
	if err != nil {
		return err
	}
	db.users[id] = updated
	return nil
}

func (db *mockUserDB) AddUserGroup(_ context.Context, id domain.UserIdentifier, group string) error {
	db.groups[string(id)] = append(db.groups[string(id)], group)
	return nil
}

func (db *mockUserDB) RemoveUserGroup(_ context.Context, id domain.UserIdentifier, group string) error {
	kept := make([]string, 0, len(db.groups[string(id)]))
	for _, g := range db.groups[string(id)] {
		if g != group {
			kept = append(kept, g)
		}
	}
	db.groups[string(id)] = kept
	return nil
}

func (db *mockUserDB) RecordFormerUserGroup(_ context.Context, _ domain.UserIdentifier, _ string) error {
	return nil
}

func (db *mockUserDB) GetUserPreferences(
	_ context.Context,
	id domain.UserIdentifier,
) ([]domain.UserPreference, error) {
	if u, ok := db.users[id]; ok {
		return u.Preferences, nil
	}
	return nil, nil
}

func (db *mockUserDB) SaveUserPreference(_ context.Context, _ domain.UserPreference) error {
	return nil
}

func (db *mockUserDB) DeleteUserPreference(_ context.Context, _ domain.UserIdentifier, _ string) error {
	return nil
}

type mockSyncer struct {
	refreshed []domain.UserIdentifier
	pushed    []domain.UserIdentifier
	synced    []domain.UserIdentifier
	pageViews []domain.UserIdentifier
}

func (s *mockSyncer) HandlePageView(_ context.Context, id domain.UserIdentifier, _ appsync.PageView) error {
	s.pageViews = append(s.pageViews, id)
	return nil
}

func (s *mockSyncer) RefreshUser(_ context.Context, id domain.UserIdentifier) error {
	s.refreshed = append(s.refreshed, id)
	return nil
}

func (s *mockSyncer) PushPreferences(_ context.Context, id domain.UserIdentifier) error {
	s.pushed = append(s.pushed, id)
	return nil
}

func (s *mockSyncer) SyncGroups(_ context.Context, id domain.UserIdentifier) error {
	s.synced = append(s.synced, id)
	return nil
}

func (s *mockSyncer) SeedProperties(realName, email string) map[string]string {
	props := make(map[string]string)
	if realName != "" {
		props["real name"] = realName
	}
	if email != "" {
		props["email"] = email
	}
	return props
}

// --- Tests ---

func newTestProvider(
	t *testing.T,
	service *mockService,
	db *mockUserDB,
) (*Provider, *mockBus, *mockSyncer) {
	t.Helper()

	bus := &mockBus{}
	syncer := &mockSyncer{}

	p, err := NewProvider(&config.Config{}, bus, service, db, syncer)
	require.NoError(t, err)

	return p, bus, syncer
}

func TestProvider_AuthenticateSuccess(t *testing.T) {
	service := newMockService()
	service.passwordOk = true
	db := newMockUserDB()

	p, bus, syncer := newTestProvider(t, service, db)

	user, err := p.Authenticate(context.Background(), "alice", "secret")
	require.NoError(t, err)

	assert.Equal(t, domain.UserIdentifier("Alice"), user.Identifier)
	assert.Contains(t, db.users, domain.UserIdentifier("Alice"))
	assert.Equal(t, []domain.UserIdentifier{"Alice"}, syncer.refreshed)
	assert.Contains(t, bus.published, app.TopicAuthLogin)
}

func TestProvider_AuthenticateWrongPassword(t *testing.T) {
	service := newMockService()
	service.passwordOk = false
	db := newMockUserDB()

	p, bus, _ := newTestProvider(t, service, db)

	_, err := p.Authenticate(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Contains(t, bus.published, app.TopicAuthLoginFailed)
	assert.Empty(t, db.users)
}

func TestProvider_AuthenticateInvalidUsername(t *testing.T) {
	service := newMockService()
	service.passwordOk = true

	p, _, _ := newTestProvider(t, service, newMockUserDB())

	_, err := p.Authenticate(context.Background(), "  ", "secret")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestProvider_AuthenticateServiceOutage(t *testing.T) {
	service := newMockService()
	service.verifyErr = domain.NewServiceError(domain.ServiceErrServerError, 500, "boom")

	p, _, _ := newTestProvider(t, service, newMockUserDB())

	_, err := p.Authenticate(context.Background(), "alice", "secret")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.True(t, domain.IsServiceUnavailable(err))
}

func TestProvider_ChangePasswordVerifiesOldPassword(t *testing.T) {
	service := newMockService()
	service.passwordOk = false

	p, _, _ := newTestProvider(t, service, newMockUserDB())

	err := p.ChangePassword(context.Background(), "alice", "wrong", "newpw")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Empty(t, service.setPasswords)
}

func TestProvider_ChangePasswordSuccess(t *testing.T) {
	service := newMockService()
	service.passwordOk = true

	p, bus, _ := newTestProvider(t, service, newMockUserDB())

	err := p.ChangePassword(context.Background(), "alice", "old", "newpw")
	require.NoError(t, err)
	assert.Equal(t, []string{"newpw"}, service.setPasswords)
	assert.Contains(t, bus.published, app.TopicPasswordChanged)
}

func TestProvider_CreateUserSeedsProperties(t *testing.T) {
	service := newMockService()
	db := newMockUserDB()

	p, bus, _ := newTestProvider(t, service, db)

	user, err := p.CreateUser(context.Background(), "alice_smith", "secret", "Alice Smith", "alice@example.com")
	require.NoError(t, err)

	assert.Equal(t, domain.UserIdentifier("Alice smith"), user.Identifier)
	props := service.createdUsers["Alice smith"]
	assert.Equal(t, "Alice Smith", props["real name"])
	assert.Equal(t, "alice@example.com", props["email"])
	assert.Contains(t, bus.published, app.TopicUserCreated)
}

func TestProvider_CreateUserConflict(t *testing.T) {
	service := newMockService()
	service.createErr = domain.NewServiceError(domain.ServiceErrConflict, 409, "user exists")
	db := newMockUserDB()

	p, _, _ := newTestProvider(t, service, db)

	_, err := p.CreateUser(context.Background(), "alice", "secret", "", "")
	assert.ErrorIs(t, err, domain.ErrNotUnique)
	assert.Empty(t, db.users)
}

func TestProvider_InitUserStoresLegacyIdAndSyncsGroups(t *testing.T) {
	service := newMockService()
	db := newMockUserDB(&domain.User{Identifier: "Alice"})

	p, _, syncer := newTestProvider(t, service, db)

	err := p.InitUser(context.Background(), "alice", 42)
	require.NoError(t, err)

	assert.Equal(t, int64(42), db.users["Alice"].LegacyId)
	assert.Equal(t, []domain.UserIdentifier{"Alice"}, syncer.synced)
}

func TestProvider_AddUserToGroupCreatesMissingGroup(t *testing.T) {
	service := newMockService()
	db := newMockUserDB(&domain.User{Identifier: "Alice", LegacyId: 7})

	p, _, _ := newTestProvider(t, service, db)

	err := p.AddUserToGroup(context.Background(), "alice", "sysop")
	require.NoError(t, err)

	assert.True(t, service.knownGroups["sysop"])
	assert.Contains(t, service.groupMembers["sysop"], "Alice")
	assert.Contains(t, db.groups["Alice"], "sysop")
}

func TestProvider_RemoveUserFromGroupToleratesMissingRemoteGroup(t *testing.T) {
	service := newMockService()
	db := newMockUserDB(&domain.User{Identifier: "Alice", LegacyId: 7})
	db.groups["Alice"] = []string{"sysop"}

	p, _, _ := newTestProvider(t, service, db)

	err := p.RemoveUserFromGroup(context.Background(), "alice", "sysop")
	require.NoError(t, err)

	assert.Empty(t, db.groups["Alice"])
}

func TestProvider_UserExistsInvalidName(t *testing.T) {
	service := newMockService()
	service.exists = true

	p, _, _ := newTestProvider(t, service, newMockUserDB())

	exists, err := p.UserExists(context.Background(), "###")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestProvider_HandlePageViewDelegates(t *testing.T) {
	p, _, syncer := newTestProvider(t, newMockService(), newMockUserDB())

	err := p.HandlePageView(context.Background(), "alice", appsync.PageView{OwnPreferencesPage: true})
	require.NoError(t, err)
	assert.Equal(t, []domain.UserIdentifier{"Alice"}, syncer.pageViews)
}

func TestProvider_SavePreferencesPushes(t *testing.T) {
	db := newMockUserDB(&domain.User{Identifier: "Alice", LegacyId: 7})

	p, _, syncer := newTestProvider(t, newMockService(), db)

	err := p.SavePreferences(context.Background(), "alice", "Alice Smith", "alice@example.com", true,
		map[string]domain.PreferenceValue{"skin": domain.StringValue("monobook")})
	require.NoError(t, err)

	assert.Equal(t, "Alice Smith", db.users["Alice"].RealName)
	assert.True(t, db.users["Alice"].EmailConfirmed)
	assert.Equal(t, []domain.UserIdentifier{"Alice"}, syncer.pushed)
}
