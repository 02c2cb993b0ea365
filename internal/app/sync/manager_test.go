package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsonner/restauth-bridge/internal/app"
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

type mockUserDB struct {
	users        map[domain.UserIdentifier]*domain.User
	prefs        map[string]domain.UserPreference
	formerGroups map[string]int
	savedBy      []domain.UserIdentifier
}

func newMockUserDB(users ...*domain.User) *mockUserDB {
	db := &mockUserDB{
		users:        make(map[domain.UserIdentifier]*domain.User),
		prefs:        make(map[string]domain.UserPreference),
		formerGroups: make(map[string]int),
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
	ctx context.Context,
	id domain.UserIdentifier,
	updateFunc func(u *domain.User) (*domain.User, error),
) error {
	db.savedBy = append(db.savedBy, domain.GetUserInfo(ctx).Id)
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

func (db *mockUserDB) GetUserGroups(_ context.Context, id domain.UserIdentifier) ([]domain.UserGroup, error) {
	if u, ok := db.users[id]; ok {
		return u.Groups, nil
	}
	return nil, nil
}

func (db *mockUserDB) AddUserGroup(_ context.Context, id domain.UserIdentifier, group string) error {
	u := db.users[id]
	u.Groups = append(u.Groups, domain.UserGroup{UserIdentifier: string(id), Group: group})
	return nil
}

func (db *mockUserDB) RemoveUserGroup(_ context.Context, id domain.UserIdentifier, group string) error {
	u := db.users[id]
	kept := make([]domain.UserGroup, 0, len(u.Groups))
	for _, g := range u.Groups {
		if g.Group != group {
			kept = append(kept, g)
		}
	}
	u.Groups = kept
	return nil
}

func (db *mockUserDB) RecordFormerUserGroup(_ context.Context, id domain.UserIdentifier, group string) error {
	db.formerGroups[string(id)+"/"+group]++
	return nil
}

func (db *mockUserDB) SaveUserPreference(_ context.Context, pref domain.UserPreference) error {
	db.prefs[pref.UserIdentifier+"/"+pref.Key] = pref
	return nil
}

func (db *mockUserDB) DeleteUserPreference(_ context.Context, id domain.UserIdentifier, key string) error {
	delete(db.prefs, string(id)+"/"+key)
	return nil
}

type mockPropertyStore struct {
	props  map[string]string
	groups []string
	err    error

	setCalls    []map[string]string
	removeCalls []string
}

func (s *mockPropertyStore) GetProperties(_ context.Context, _ domain.UserIdentifier) (map[string]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.props, nil
}

func (s *mockPropertyStore) SetProperties(_ context.Context, _ domain.UserIdentifier, props map[string]string) error {
	if s.err != nil {
		return s.err
	}
	s.setCalls = append(s.setCalls, props)
	return nil
}

func (s *mockPropertyStore) RemoveProperty(_ context.Context, _ domain.UserIdentifier, key string) error {
	if s.err != nil {
		return s.err
	}
	s.removeCalls = append(s.removeCalls, key)
	return nil
}

func (s *mockPropertyStore) GetGroupsForUser(_ context.Context, _ domain.UserIdentifier) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.groups, nil
}

type mockMetrics struct {
	refreshErrs int
	refreshOks  int
	pushErrs    int
	pushOks     int
	sets        int
	deletes     int
}

func (m *mockMetrics) CountRefresh(err error) {
	if err != nil {
		m.refreshErrs++
	} else {
		m.refreshOks++
	}
}

func (m *mockMetrics) CountPush(err error) {
	if err != nil {
		m.pushErrs++
	} else {
		m.pushOks++
	}
}

func (m *mockMetrics) CountReconcileActions(sets, deletes int) {
	m.sets += sets
	m.deletes += deletes
}

func (m *mockMetrics) CountGroupChanges(added, removed int) {}

type mockMailer struct {
	sent []string
}

func (m *mockMailer) Send(_ context.Context, subject, _ string, _ []string) error {
	m.sent = append(m.sent, subject)
	return nil
}

// --- Tests ---

func testManagerConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Sync = *testSyncConfig()
	cfg.Sync.RefreshInterval = 300 * time.Second
	return cfg
}

func newTestManager(
	t *testing.T,
	db *mockUserDB,
	store *mockPropertyStore,
) (*Manager, *mockBus, *mockMetrics, *mockMailer) {
	t.Helper()

	bus := &mockBus{}
	metrics := &mockMetrics{}
	mailer := &mockMailer{}

	m, err := NewManager(testManagerConfig(), testDefaults(), bus, db, store, metrics, mailer)
	require.NoError(t, err)

	return m, bus, metrics, mailer
}

func TestManager_RefreshUserPullsRemoteState(t *testing.T) {
	user := &domain.User{
		Identifier: "Alice",
		LegacyId:   7,
		Preferences: []domain.UserPreference{
			{UserIdentifier: "Alice", Key: "rows", RawValue: "50", Kind: domain.KindInt},
		},
		Groups: []domain.UserGroup{
			{UserIdentifier: "Alice", Group: "sysop"},
			{UserIdentifier: "Alice", Group: "editor"},
		},
	}
	db := newMockUserDB(user)
	store := &mockPropertyStore{
		props: map[string]string{
			"real name":           "Alice Smith",
			"email":               "alice@example.com",
			"email confirmed":     "1",
			"mediawiki skin":      "monobook",
			"mediawiki hideminor": "1",
		},
		groups: []string{"editor", "bot"},
	}

	m, bus, metrics, _ := newTestManager(t, db, store)

	err := m.RefreshUser(context.Background(), "Alice")
	require.NoError(t, err)

	require.NotEmpty(t, db.savedBy)
	assert.Equal(t, domain.UserIdentifier(domain.CtxSystemSyncerId), db.savedBy[0])

	saved := db.users["Alice"]
	assert.Equal(t, "Alice Smith", saved.RealName)
	assert.Equal(t, "alice@example.com", saved.Email)
	assert.True(t, saved.EmailConfirmed)
	assert.NotNil(t, saved.LastRefresh)

	// remote overrides became local preference rows
	assert.Equal(t, "monobook", db.prefs["Alice/skin"].RawValue)
	assert.Equal(t, "1", db.prefs["Alice/hideminor"].RawValue)
	// the stale local override without a remote counterpart is gone
	assert.NotContains(t, db.prefs, "Alice/rows")
	// the refresh got stamped as a preference as well
	assert.Contains(t, db.prefs, "Alice/"+domain.LastRefreshKey)

	// groups follow the remote membership
	assert.ElementsMatch(t, []string{"editor", "bot"}, saved.GroupNames())
	assert.Equal(t, 1, db.formerGroups["Alice/sysop"])

	assert.Equal(t, 1, metrics.refreshOks)
	assert.Contains(t, bus.published, app.TopicUserRefreshed)
	assert.Contains(t, bus.published, app.TopicUserGroupsChanged)
}

func TestManager_RefreshFailureIsCountedAndAlerted(t *testing.T) {
	user := &domain.User{Identifier: "Alice", LegacyId: 7}
	db := newMockUserDB(user)
	store := &mockPropertyStore{
		err: domain.NewServiceError(domain.ServiceErrServerError, 500, "boom"),
	}

	m, _, metrics, mailer := newTestManager(t, db, store)
	m.cfg.Sync.AlertThreshold = 2
	m.cfg.Sync.AlertRecipients = []string{"admin@example.com"}

	err := m.RefreshUser(context.Background(), "Alice")
	require.Error(t, err)
	assert.Empty(t, mailer.sent)

	err = m.RefreshUser(context.Background(), "Alice")
	require.Error(t, err)
	assert.Len(t, mailer.sent, 1)

	// no duplicate alert on further failures
	_ = m.RefreshUser(context.Background(), "Alice")
	assert.Len(t, mailer.sent, 1)

	assert.Equal(t, 3, metrics.refreshErrs)
}

func TestManager_HandlePageViewSwallowsRemoteFailures(t *testing.T) {
	user := &domain.User{Identifier: "Alice", LegacyId: 7}
	db := newMockUserDB(user)
	store := &mockPropertyStore{
		err: domain.NewServiceError(domain.ServiceErrServerError, 500, "boom"),
	}

	m, _, _, _ := newTestManager(t, db, store)

	err := m.HandlePageView(context.Background(), "Alice", PageView{})
	assert.NoError(t, err)
}

func TestManager_HandlePageViewSkipsFreshUsers(t *testing.T) {
	now := time.Now()
	user := &domain.User{Identifier: "Alice", LegacyId: 7, LastRefresh: &now}
	db := newMockUserDB(user)
	store := &mockPropertyStore{
		err: domain.NewServiceError(domain.ServiceErrServerError, 500, "boom"),
	}

	m, _, metrics, _ := newTestManager(t, db, store)

	err := m.HandlePageView(context.Background(), "Alice", PageView{})
	assert.NoError(t, err)
	assert.Zero(t, metrics.refreshErrs, "no remote call must happen for fresh users")
}

func TestManager_HandlePageViewIgnoresUnknownUsers(t *testing.T) {
	db := newMockUserDB()
	store := &mockPropertyStore{}

	m, _, _, _ := newTestManager(t, db, store)

	err := m.HandlePageView(context.Background(), "Nobody", PageView{})
	assert.NoError(t, err)
}

func TestManager_PushPreferencesBatchesSetsBeforeDeletes(t *testing.T) {
	user := &domain.User{
		Identifier: "Alice",
		LegacyId:   7,
		RealName:   "Alice Smith",
		Preferences: []domain.UserPreference{
			{UserIdentifier: "Alice", Key: "skin", RawValue: "monobook", Kind: domain.KindString},
			{UserIdentifier: "Alice", Key: "rows", RawValue: "25", Kind: domain.KindInt},
		},
	}
	db := newMockUserDB(user)
	store := &mockPropertyStore{
		props: map[string]string{
			"mediawiki rows": "50", // reverted to the default of 25
		},
	}

	m, bus, metrics, _ := newTestManager(t, db, store)

	err := m.PushPreferences(context.Background(), "Alice")
	require.NoError(t, err)

	require.Len(t, store.setCalls, 1)
	assert.Equal(t, "Alice Smith", store.setCalls[0]["real name"])
	assert.Equal(t, "monobook", store.setCalls[0]["mediawiki skin"])
	assert.Equal(t, []string{"mediawiki rows"}, store.removeCalls)

	assert.Equal(t, 1, metrics.pushOks)
	assert.Equal(t, 2, metrics.sets)
	assert.Equal(t, 1, metrics.deletes)
	assert.Contains(t, bus.published, app.TopicPreferencesPushed)
}

func TestManager_PushPreferencesNoDriftNoCalls(t *testing.T) {
	user := &domain.User{
		Identifier: "Alice",
		LegacyId:   7,
		RealName:   "Alice Smith",
	}
	db := newMockUserDB(user)
	store := &mockPropertyStore{
		props: map[string]string{"real name": "Alice Smith"},
	}

	m, _, _, _ := newTestManager(t, db, store)

	err := m.PushPreferences(context.Background(), "Alice")
	require.NoError(t, err)

	assert.Empty(t, store.setCalls)
	assert.Empty(t, store.removeCalls)
}

func TestManager_SyncGroupsAppliesRemoteMembership(t *testing.T) {
	user := &domain.User{
		Identifier: "Alice",
		LegacyId:   7,
		Groups: []domain.UserGroup{
			{UserIdentifier: "Alice", Group: "sysop"},
		},
	}
	db := newMockUserDB(user)
	store := &mockPropertyStore{groups: []string{"bot"}}

	m, bus, _, _ := newTestManager(t, db, store)

	err := m.SyncGroups(context.Background(), "Alice")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"bot"}, db.users["Alice"].GroupNames())
	assert.Equal(t, 1, db.formerGroups["Alice/sysop"])
	assert.Contains(t, bus.published, app.TopicUserGroupsChanged)
}
