package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsonner/restauth-bridge/internal/app"
	appsync "github.com/fsonner/restauth-bridge/internal/app/sync"
	"github.com/fsonner/restauth-bridge/internal/config"
	"github.com/fsonner/restauth-bridge/internal/domain"
)

// region dependencies

// AuthService is the remote side of all credential and group operations. It
// is implemented by the RestAuth client adapter.
type AuthService interface {
	// UserExists checks if the user is known to the remote service.
	UserExists(ctx context.Context, name domain.UserIdentifier) (bool, error)
	// VerifyPassword checks the given credentials against the remote service.
	VerifyPassword(ctx context.Context, name domain.UserIdentifier, password string) (bool, error)
	// SetPassword updates the remote password.
	SetPassword(ctx context.Context, name domain.UserIdentifier, password string) error
	// CreateUser registers a new remote user, optionally with initial properties.
	CreateUser(ctx context.Context, name domain.UserIdentifier, password string, properties map[string]string) error
	// CreateGroup creates a remote group.
	CreateGroup(ctx context.Context, group string) error
	// AddUserToGroup adds a remote group membership.
	AddUserToGroup(ctx context.Context, group string, name domain.UserIdentifier) error
	// RemoveUserFromGroup removes a remote group membership.
	RemoveUserFromGroup(ctx context.Context, group string, name domain.UserIdentifier) error
}

type UserDatabaseRepo interface {
	// GetUser returns a user with preference and group rows preloaded.
	GetUser(ctx context.Context, id domain.UserIdentifier) (*domain.User, error)
	// SaveUser creates or updates a user record within a transaction.
	SaveUser(ctx context.Context, id domain.UserIdentifier, updateFunc func(u *domain.User) (*domain.User, error)) error
	// AddUserGroup adds a local group membership.
	AddUserGroup(ctx context.Context, id domain.UserIdentifier, group string) error
	// RemoveUserGroup removes a local group membership.
	RemoveUserGroup(ctx context.Context, id domain.UserIdentifier, group string) error
	// RecordFormerUserGroup appends an entry to the former-groups history.
	RecordFormerUserGroup(ctx context.Context, id domain.UserIdentifier, group string) error
	// GetUserPreferences returns all persisted preference rows.
	GetUserPreferences(ctx context.Context, id domain.UserIdentifier) ([]domain.UserPreference, error)
	// SaveUserPreference creates or updates a preference row.
	SaveUserPreference(ctx context.Context, pref domain.UserPreference) error
	// DeleteUserPreference removes a preference row.
	DeleteUserPreference(ctx context.Context, id domain.UserIdentifier, key string) error
}

// Synchronizer is the bridge to the preference and group synchronization.
type Synchronizer interface {
	// HandlePageView runs a refresh if one is due for the given page view.
	HandlePageView(ctx context.Context, id domain.UserIdentifier, view appsync.PageView) error
	// RefreshUser pulls remote state into the local database.
	RefreshUser(ctx context.Context, id domain.UserIdentifier) error
	// PushPreferences writes local preference drift to the remote service.
	PushPreferences(ctx context.Context, id domain.UserIdentifier) error
	// SyncGroups reconciles local group rows with the remote membership.
	SyncGroups(ctx context.Context, id domain.UserIdentifier) error
	// SeedProperties builds the initial remote property map for a new account.
	SeedProperties(realName, email string) map[string]string
}

type EventBus interface {
	// Publish sends a message to the message bus.
	Publish(topic string, args ...any)
}

// endregion dependencies

// Provider implements the host platform's pluggable authentication contract
// against the remote service. All username input is canonicalized before it
// reaches the remote service or the local database.
type Provider struct {
	cfg *config.Config
	bus EventBus

	service AuthService
	users   UserDatabaseRepo
	syncer  Synchronizer
}

func NewProvider(
	cfg *config.Config,
	bus EventBus,
	service AuthService,
	users UserDatabaseRepo,
	syncer Synchronizer,
) (*Provider, error) {
	return &Provider{
		cfg:     cfg,
		bus:     bus,
		service: service,
		users:   users,
		syncer:  syncer,
	}, nil
}

// NormalizeUsername validates and canonicalizes a raw username the way the
// host platform expects before any account operation.
func (p *Provider) NormalizeUsername(raw string) (domain.UserIdentifier, error) {
	return domain.CanonicalizeUsername(raw)
}

// UserExists checks whether the account is known to the remote service. An
// unknown user is a negative answer, not an error.
func (p *Provider) UserExists(ctx context.Context, raw string) (bool, error) {
	id, err := domain.CanonicalizeUsername(raw)
	if err != nil {
		return false, nil
	}

	return p.service.UserExists(ctx, id)
}

// Authenticate verifies the given credentials. Wrong password, unknown user
// and invalid username all yield ErrInvalidCredentials so that callers cannot
// distinguish them; remote infrastructure failures surface as a ServiceError
// instead. On success the local user record is created or refreshed.
func (p *Provider) Authenticate(ctx context.Context, raw, password string) (*domain.User, error) {
	id, err := domain.CanonicalizeUsername(raw)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	ok, err := p.service.VerifyPassword(ctx, id, password)
	if err != nil {
		if domain.IsServiceUnavailable(err) {
			return nil, fmt.Errorf("authentication service unavailable: %w", err)
		}
		ok = false
	}
	if !ok {
		p.bus.Publish(app.TopicAuthLoginFailed, id)
		return nil, domain.ErrInvalidCredentials
	}

	if err := p.ensureLocalUser(ctx, id); err != nil {
		return nil, err
	}

	if err := p.syncer.RefreshUser(ctx, id); err != nil {
		slog.Error("failed to refresh user after login", "user", id, "error", err)
	}

	user, err := p.users.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}

	p.bus.Publish(app.TopicAuthLogin, id)

	return user, nil
}

// ChangePassword verifies the old password before storing the new one. A
// failing verification is reported as invalid credentials.
func (p *Provider) ChangePassword(ctx context.Context, raw, oldPassword, newPassword string) error {
	id, err := domain.CanonicalizeUsername(raw)
	if err != nil {
		return domain.ErrInvalidCredentials
	}

	ok, err := p.service.VerifyPassword(ctx, id, oldPassword)
	if err != nil {
		if domain.IsServiceUnavailable(err) {
			return fmt.Errorf("authentication service unavailable: %w", err)
		}
		ok = false
	}
	if !ok {
		return domain.ErrInvalidCredentials
	}

	return p.SetPassword(ctx, raw, newPassword)
}

// SetPassword stores a new password without verifying the old one, the
// administrative reset path.
func (p *Provider) SetPassword(ctx context.Context, raw, newPassword string) error {
	id, err := domain.CanonicalizeUsername(raw)
	if err != nil {
		return err
	}

	if err := p.service.SetPassword(ctx, id, newPassword); err != nil {
		return fmt.Errorf("failed to set password for %s: %w", id, err)
	}

	p.bus.Publish(app.TopicPasswordChanged, id)

	return nil
}

// CreateUser registers a new account with the remote service, seeding real
// name and email as initial properties, and creates the local user record.
// A taken username surfaces as a conflict error.
func (p *Provider) CreateUser(ctx context.Context, raw, password, realName, email string) (*domain.User, error) {
	id, err := domain.CanonicalizeUsername(raw)
	if err != nil {
		return nil, err
	}

	props := p.syncer.SeedProperties(realName, email)
	if err := p.service.CreateUser(ctx, id, password, props); err != nil {
		return nil, fmt.Errorf("failed to create remote user %s: %w", id, err)
	}

	err = p.users.SaveUser(ctx, id, func(u *domain.User) (*domain.User, error) {
		u.RealName = realName
		u.Email = email
		return u, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create local user %s: %w", id, err)
	}

	user, err := p.users.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}

	p.bus.Publish(app.TopicUserCreated, id)

	return user, nil
}

// InitUser finishes account setup once the host platform assigned its numeric
// id: the id is stored and the remote group memberships are pulled in. It is
// called after CreateUser, or on first login of an externally created account.
func (p *Provider) InitUser(ctx context.Context, raw string, legacyId int64) error {
	id, err := domain.CanonicalizeUsername(raw)
	if err != nil {
		return err
	}

	err = p.users.SaveUser(ctx, id, func(u *domain.User) (*domain.User, error) {
		u.LegacyId = legacyId
		return u, nil
	})
	if err != nil {
		return fmt.Errorf("failed to store legacy id for %s: %w", id, err)
	}

	if err := p.syncer.SyncGroups(ctx, id); err != nil {
		slog.Error("failed to synchronize groups after user init", "user", id, "error", err)
	}

	return nil
}

// HandlePageView triggers a refresh if one is due for the given page view.
func (p *Provider) HandlePageView(ctx context.Context, raw string, view appsync.PageView) error {
	id, err := domain.CanonicalizeUsername(raw)
	if err != nil {
		return nil // anonymous or invalid viewers never refresh
	}

	return p.syncer.HandlePageView(ctx, id, view)
}

// SavePreferences stores the submitted settings and preferences locally and
// pushes the resulting drift to the remote property store. This is the
// preference-save hook of the host platform, the local-to-remote direction.
func (p *Provider) SavePreferences(
	ctx context.Context,
	raw string,
	realName, email string,
	emailConfirmed bool,
	prefs map[string]domain.PreferenceValue,
) error {
	id, err := domain.CanonicalizeUsername(raw)
	if err != nil {
		return err
	}

	user, err := p.users.GetUser(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load user %s: %w", id, err)
	}

	err = p.users.SaveUser(ctx, id, func(u *domain.User) (*domain.User, error) {
		u.RealName = realName
		u.Email = email
		u.EmailConfirmed = emailConfirmed
		return u, nil
	})
	if err != nil {
		return fmt.Errorf("failed to store settings for %s: %w", id, err)
	}

	if err := p.replacePreferences(ctx, user, prefs); err != nil {
		return err
	}

	return p.syncer.PushPreferences(ctx, id)
}

// replacePreferences swaps the stored preference rows for the submitted set.
// Ignored preferences and the refresh bookkeeping key stay untouched.
func (p *Provider) replacePreferences(
	ctx context.Context,
	user *domain.User,
	prefs map[string]domain.PreferenceValue,
) error {
	for key, value := range prefs {
		if key == domain.LastRefreshKey {
			continue
		}
		pref := domain.NewUserPreference(user.Identifier, key, value)
		if err := p.users.SaveUserPreference(ctx, pref); err != nil {
			return fmt.Errorf("failed to store preference %s: %w", key, err)
		}
	}

	stored, err := p.users.GetUserPreferences(ctx, user.Identifier)
	if err != nil {
		return fmt.Errorf("failed to load stored preferences: %w", err)
	}
	for _, existing := range stored {
		if existing.Key == domain.LastRefreshKey || p.cfg.Sync.IsIgnored(existing.Key) {
			continue
		}
		if _, stillSet := prefs[existing.Key]; stillSet {
			continue
		}
		if err := p.users.DeleteUserPreference(ctx, user.Identifier, existing.Key); err != nil {
			return fmt.Errorf("failed to remove preference %s: %w", existing.Key, err)
		}
	}

	return nil
}

// AddUserToGroup is the administrative hook for granting a group membership.
// The remote group is created on demand, retrying the membership once.
func (p *Provider) AddUserToGroup(ctx context.Context, raw, group string) error {
	id, err := domain.CanonicalizeUsername(raw)
	if err != nil {
		return err
	}

	err = p.service.AddUserToGroup(ctx, group, id)
	if errors.Is(err, domain.ErrNotFound) {
		if err := p.service.CreateGroup(ctx, group); err != nil && !errors.Is(err, domain.ErrNotUnique) {
			return fmt.Errorf("failed to create remote group %s: %w", group, err)
		}
		err = p.service.AddUserToGroup(ctx, group, id)
	}
	if err != nil {
		return fmt.Errorf("failed to add %s to group %s: %w", id, group, err)
	}

	if err := p.users.AddUserGroup(ctx, id, group); err != nil {
		return fmt.Errorf("failed to store group membership: %w", err)
	}

	p.bus.Publish(app.TopicUserGroupsChanged, id, []string{group}, []string(nil))

	return nil
}

// RemoveUserFromGroup is the administrative hook for revoking a group
// membership. A membership that is already gone remotely is not an error.
func (p *Provider) RemoveUserFromGroup(ctx context.Context, raw, group string) error {
	id, err := domain.CanonicalizeUsername(raw)
	if err != nil {
		return err
	}

	err = p.service.RemoveUserFromGroup(ctx, group, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("failed to remove %s from group %s: %w", id, group, err)
	}

	if err := p.users.RemoveUserGroup(ctx, id, group); err != nil {
		return fmt.Errorf("failed to remove group membership: %w", err)
	}
	if err := p.users.RecordFormerUserGroup(ctx, id, group); err != nil {
		return fmt.Errorf("failed to record former group: %w", err)
	}

	p.bus.Publish(app.TopicUserGroupsChanged, id, []string(nil), []string{group})

	return nil
}

// ensureLocalUser creates the local user record on first login.
func (p *Provider) ensureLocalUser(ctx context.Context, id domain.UserIdentifier) error {
	_, err := p.users.GetUser(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("failed to load user %s: %w", id, err)
	}

	slog.Debug("creating local user on first login", "user", id)

	err = p.users.SaveUser(ctx, id, func(u *domain.User) (*domain.User, error) {
		u.CreatedAt = time.Now()
		return u, nil
	})
	if err != nil {
		return fmt.Errorf("failed to create local user %s: %w", id, err)
	}

	return nil
}
