package sync

import (
	"context"

	"github.com/fsonner/restauth-bridge/internal/domain"
)

type UserDatabaseRepo interface {
	// GetUser returns a user with preference and group rows preloaded.
	GetUser(ctx context.Context, id domain.UserIdentifier) (*domain.User, error)
	// SaveUser updates a user record within a transaction.
	SaveUser(ctx context.Context, id domain.UserIdentifier, updateFunc func(u *domain.User) (*domain.User, error)) error
	// GetUserGroups returns the current local group memberships.
	GetUserGroups(ctx context.Context, id domain.UserIdentifier) ([]domain.UserGroup, error)
	// AddUserGroup adds a local group membership.
	AddUserGroup(ctx context.Context, id domain.UserIdentifier, group string) error
	// RemoveUserGroup removes a local group membership.
	RemoveUserGroup(ctx context.Context, id domain.UserIdentifier, group string) error
	// RecordFormerUserGroup appends an entry to the former-groups history.
	RecordFormerUserGroup(ctx context.Context, id domain.UserIdentifier, group string) error
	// SaveUserPreference creates or updates a preference row.
	SaveUserPreference(ctx context.Context, pref domain.UserPreference) error
	// DeleteUserPreference removes a preference row.
	DeleteUserPreference(ctx context.Context, id domain.UserIdentifier, key string) error
}

// PropertyStore is the remote side of the synchronization. It is implemented
// by the RestAuth client adapter.
type PropertyStore interface {
	// GetProperties returns all remote properties of a user.
	GetProperties(ctx context.Context, name domain.UserIdentifier) (map[string]string, error)
	// SetProperties stores multiple remote properties in one batch.
	SetProperties(ctx context.Context, name domain.UserIdentifier, props map[string]string) error
	// RemoveProperty deletes a single remote property.
	RemoveProperty(ctx context.Context, name domain.UserIdentifier, key string) error
	// GetGroupsForUser returns the remote group memberships of a user.
	GetGroupsForUser(ctx context.Context, name domain.UserIdentifier) ([]string, error)
}

type EventBus interface {
	// Publish sends a message to the message bus.
	Publish(topic string, args ...any)
}

// Metrics receives counters about synchronization activity. All methods must
// be safe for concurrent use.
type Metrics interface {
	CountRefresh(err error)
	CountPush(err error)
	CountReconcileActions(sets, deletes int)
	CountGroupChanges(added, removed int)
}

// Mailer delivers admin notification mails.
type Mailer interface {
	Send(ctx context.Context, subject, body string, to []string) error
}
