package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsonner/restauth-bridge/internal"
	"github.com/fsonner/restauth-bridge/internal/domain"
)

// GroupSynchronizer makes local group membership match the remote membership,
// treating the remote service as authoritative. It only ever writes locally;
// remote membership is changed through the explicit admin hooks on the
// provider facade.
type GroupSynchronizer struct {
	users UserDatabaseRepo
}

func NewGroupSynchronizer(users UserDatabaseRepo) GroupSynchronizer {
	return GroupSynchronizer{users: users}
}

// Apply reconciles the user's local group rows with the remote membership
// list. Memberships missing remotely are removed and recorded in the
// append-only former-groups history, memberships missing locally are added,
// but only for users the host platform has already persisted. It returns the
// groups that were added and removed locally.
func (s GroupSynchronizer) Apply(ctx context.Context, user *domain.User, remoteGroups []string) (added, removed []string, err error) {
	remoteGroups = internal.UniqueStringSlice(remoteGroups)
	localGroups := user.GroupNames()

	toRemove := internal.StringSliceDiff(localGroups, remoteGroups)
	toAdd := internal.StringSliceDiff(remoteGroups, localGroups)

	for _, group := range toRemove {
		if err := s.users.RemoveUserGroup(ctx, user.Identifier, group); err != nil {
			return added, removed, fmt.Errorf("failed to remove group %s: %w", group, err)
		}
		if err := s.users.RecordFormerUserGroup(ctx, user.Identifier, group); err != nil {
			return added, removed, fmt.Errorf("failed to record former group %s: %w", group, err)
		}
		removed = append(removed, group)
	}

	if !user.IsPersisted() && len(toAdd) > 0 {
		slog.Debug("skipping group additions for unpersisted user",
			"user", user.Identifier, "groups", toAdd)
		toAdd = nil
	}

	for _, group := range toAdd {
		if err := s.users.AddUserGroup(ctx, user.Identifier, group); err != nil {
			return added, removed, fmt.Errorf("failed to add group %s: %w", group, err)
		}
		added = append(added, group)
	}

	return added, removed, nil
}
