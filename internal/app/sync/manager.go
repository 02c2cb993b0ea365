package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fsonner/restauth-bridge/internal/app"
	"github.com/fsonner/restauth-bridge/internal/config"
	"github.com/fsonner/restauth-bridge/internal/domain"
)

// Manager orchestrates the two synchronization directions: the refresh flow
// pulls remote state into the local database, the push flow writes local
// preference changes to the remote property store.
type Manager struct {
	cfg *config.Config
	bus EventBus

	users   UserDatabaseRepo
	props   PropertyStore
	metrics Metrics
	mailer  Mailer

	mapper    PropertyMapper
	settings  SettingReconciler
	options   OptionReconciler
	groups    GroupSynchronizer
	scheduler RefreshScheduler

	refreshFailures atomic.Int64
}

func NewManager(
	cfg *config.Config,
	defaults domain.DefaultPreferences,
	bus EventBus,
	users UserDatabaseRepo,
	props PropertyStore,
	metrics Metrics,
	mailer Mailer,
) (*Manager, error) {
	mapper := NewPropertyMapper(&cfg.Sync)
	m := &Manager{
		cfg:     cfg,
		bus:     bus,
		users:   users,
		props:   props,
		metrics: metrics,
		mailer:  mailer,

		mapper:    mapper,
		settings:  NewSettingReconciler(mapper),
		options:   NewOptionReconciler(&cfg.Sync, mapper, defaults),
		groups:    NewGroupSynchronizer(users),
		scheduler: NewRefreshScheduler(&cfg.Sync),
	}

	return m, nil
}

// HandlePageView runs a refresh if one is due for the given page view. A
// failing refresh is not fatal, it is logged and the stale local state keeps
// serving until the next attempt.
func (m *Manager) HandlePageView(ctx context.Context, id domain.UserIdentifier, view PageView) error {
	user, err := m.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil // nothing to refresh for unknown users
		}
		return fmt.Errorf("failed to load user %s: %w", id, err)
	}

	if !m.scheduler.Due(user.LastRefresh, time.Now(), view) {
		return nil
	}

	if err := m.RefreshUser(ctx, id); err != nil {
		slog.Error("failed to refresh user from remote service", "user", id, "error", err)
		return nil
	}

	return nil
}

// RefreshUser pulls the remote properties and group memberships of the user
// into the local database and stamps the last-refresh timestamp.
func (m *Manager) RefreshUser(ctx context.Context, id domain.UserIdentifier) error {
	ctx = domain.SetUserInfo(ctx, domain.SyncContextUserInfo())

	user, err := m.users.GetUser(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load user %s: %w", id, err)
	}

	remoteProps, err := m.props.GetProperties(ctx, id)
	if err != nil {
		m.countRefreshFailure(ctx, id, err)
		return fmt.Errorf("failed to fetch remote properties for %s: %w", id, err)
	}

	remoteGroups, err := m.props.GetGroupsForUser(ctx, id)
	if err != nil {
		m.countRefreshFailure(ctx, id, err)
		return fmt.Errorf("failed to fetch remote groups for %s: %w", id, err)
	}

	now := time.Now()

	err = m.users.SaveUser(ctx, id, func(u *domain.User) (*domain.User, error) {
		m.settings.ApplySnapshot(u, remoteProps)
		u.LastRefresh = &now
		return u, nil
	})
	if err != nil {
		return fmt.Errorf("failed to store settings for %s: %w", id, err)
	}

	if err := m.storePreferences(ctx, user, m.options.Load(remoteProps), now); err != nil {
		return err
	}

	added, removed, err := m.groups.Apply(ctx, user, remoteGroups)
	if err != nil {
		return fmt.Errorf("failed to synchronize groups for %s: %w", id, err)
	}
	m.metrics.CountGroupChanges(len(added), len(removed))
	if len(added) > 0 || len(removed) > 0 {
		m.bus.Publish(app.TopicUserGroupsChanged, id, added, removed)
	}

	m.refreshFailures.Store(0)
	m.metrics.CountRefresh(nil)
	m.bus.Publish(app.TopicUserRefreshed, id)

	slog.Debug("refreshed user from remote service",
		"user", id, "properties", len(remoteProps),
		"groups-added", added, "groups-removed", removed)

	return nil
}

// storePreferences replaces the local preference rows with the loaded remote
// override set. Rows without a remote counterpart are removed so that the
// platform default applies again; ignored preferences and the bookkeeping
// keys stay untouched.
func (m *Manager) storePreferences(
	ctx context.Context,
	user *domain.User,
	loaded map[string]domain.PreferenceValue,
	now time.Time,
) error {
	for key, value := range loaded {
		pref := domain.NewUserPreference(user.Identifier, key, value)
		if err := m.users.SaveUserPreference(ctx, pref); err != nil {
			return fmt.Errorf("failed to store preference %s: %w", key, err)
		}
	}

	for _, existing := range user.Preferences {
		if existing.Key == domain.LastRefreshKey || m.cfg.Sync.IsIgnored(existing.Key) {
			continue
		}
		if _, stillSet := loaded[existing.Key]; stillSet {
			continue
		}
		if err := m.users.DeleteUserPreference(ctx, user.Identifier, existing.Key); err != nil {
			return fmt.Errorf("failed to remove stale preference %s: %w", existing.Key, err)
		}
	}

	stamp := domain.NewUserPreference(user.Identifier, domain.LastRefreshKey,
		domain.StringValue(strconv.FormatInt(now.Unix(), 10)))
	if err := m.users.SaveUserPreference(ctx, stamp); err != nil {
		return fmt.Errorf("failed to stamp last refresh: %w", err)
	}

	return nil
}

// PushPreferences reconciles the user's local settings and preferences
// against the remote property store and applies the resulting writes, one
// batched set request followed by the individual deletes.
func (m *Manager) PushPreferences(ctx context.Context, id domain.UserIdentifier) error {
	ctx = domain.SetUserInfo(ctx, domain.SyncContextUserInfo())

	user, err := m.users.GetUser(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load user %s: %w", id, err)
	}

	remoteProps, err := m.props.GetProperties(ctx, id)
	if err != nil {
		m.metrics.CountPush(err)
		return fmt.Errorf("failed to fetch remote properties for %s: %w", id, err)
	}

	actions := m.settings.Reconcile(user, remoteProps)
	actions.Merge(m.options.Reconcile(user.PreferenceMap(), remoteProps))

	m.metrics.CountReconcileActions(len(actions.Set), len(actions.Delete))

	if actions.Empty() {
		slog.Debug("no preference drift, nothing to push", "user", id)
		return nil
	}

	if err := m.props.SetProperties(ctx, id, actions.Set); err != nil {
		m.metrics.CountPush(err)
		return fmt.Errorf("failed to store remote properties for %s: %w", id, err)
	}

	for _, key := range actions.Delete {
		err := m.props.RemoveProperty(ctx, id, key)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			m.metrics.CountPush(err)
			return fmt.Errorf("failed to remove remote property %s for %s: %w", key, id, err)
		}
	}

	m.metrics.CountPush(nil)
	m.bus.Publish(app.TopicPreferencesPushed, id, actions.Count())

	slog.Debug("pushed preferences to remote service",
		"user", id, "sets", len(actions.Set), "deletes", len(actions.Delete))

	return nil
}

// SyncGroups pulls the remote group memberships and reconciles the local
// membership rows, used after account creation and on demand.
func (m *Manager) SyncGroups(ctx context.Context, id domain.UserIdentifier) error {
	ctx = domain.SetUserInfo(ctx, domain.SyncContextUserInfo())

	user, err := m.users.GetUser(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load user %s: %w", id, err)
	}

	remoteGroups, err := m.props.GetGroupsForUser(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch remote groups for %s: %w", id, err)
	}

	added, removed, err := m.groups.Apply(ctx, user, remoteGroups)
	if err != nil {
		return fmt.Errorf("failed to synchronize groups for %s: %w", id, err)
	}
	m.metrics.CountGroupChanges(len(added), len(removed))
	if len(added) > 0 || len(removed) > 0 {
		m.bus.Publish(app.TopicUserGroupsChanged, id, added, removed)
	}

	return nil
}

// SeedProperties builds the initial remote property map for a new account.
func (m *Manager) SeedProperties(realName, email string) map[string]string {
	return m.settings.SeedProperties(realName, email)
}

// countRefreshFailure tracks consecutive remote failures during refresh and
// notifies the configured recipients once the alert threshold is reached.
// The counter resets on the next successful refresh.
func (m *Manager) countRefreshFailure(ctx context.Context, id domain.UserIdentifier, err error) {
	m.metrics.CountRefresh(err)

	failures := m.refreshFailures.Add(1)
	threshold := int64(m.cfg.Sync.AlertThreshold)
	if threshold == 0 || failures != threshold {
		return
	}
	if len(m.cfg.Sync.AlertRecipients) == 0 {
		return
	}

	subject := "RestAuth bridge: remote service unreachable"
	body := fmt.Sprintf(
		"The remote authentication service failed %d consecutive refresh attempts.\r\n"+
			"Last failing user: %s\r\nLast error: %v\r\n", failures, id, err)

	if mailErr := m.mailer.Send(ctx, subject, body, m.cfg.Sync.AlertRecipients); mailErr != nil {
		slog.Error("failed to send refresh failure alert", "error", mailErr)
	}
}
