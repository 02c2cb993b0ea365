package sync

import (
	"github.com/fsonner/restauth-bridge/internal/domain"
)

const (
	settingRealName       = "real name"
	settingEmail          = "email"
	settingEmailConfirmed = "email confirmed"
)

// SettingReconciler diffs the fixed account settings (real name, email,
// email-confirmed) against the remote property snapshot and produces the
// remote writes needed to bring the remote copy in line. It never mutates
// local state.
type SettingReconciler struct {
	mapper PropertyMapper
}

func NewSettingReconciler(mapper PropertyMapper) SettingReconciler {
	return SettingReconciler{mapper: mapper}
}

// Reconcile computes the set/delete actions for the given user against the
// remote snapshot. An empty local value for a setting that exists remotely is
// a deletion request, empty local and absent remote means no action.
func (r SettingReconciler) Reconcile(user *domain.User, remoteProps map[string]string) *Actions {
	actions := NewActions()

	r.reconcileOne(actions, r.mapper.RemoteKey(settingRealName), user.RealName, remoteProps)
	r.reconcileOne(actions, r.mapper.RemoteKey(settingEmail), user.Email, remoteProps)

	confirmed := ""
	if user.EmailConfirmed {
		confirmed = "1"
	}
	r.reconcileOne(actions, r.confirmedKey(), confirmed, remoteProps)

	return actions
}

func (r SettingReconciler) reconcileOne(actions *Actions, remoteKey, localValue string, remoteProps map[string]string) {
	remoteValue, exists := remoteProps[remoteKey]

	switch {
	case localValue != "" && (!exists || remoteValue != localValue):
		actions.AddSet(remoteKey, localValue)
	case localValue == "" && exists:
		actions.AddDelete(remoteKey)
	}
}

// confirmedKey returns the remote key of the email-confirmed flag. The flag
// inherits the scope of the email setting: it is only stored under its bare
// name if the email itself is.
func (r SettingReconciler) confirmedKey() string {
	if r.mapper.IsGlobal(settingEmail) {
		return settingEmailConfirmed
	}
	return r.mapper.prefix + settingEmailConfirmed
}

// ApplySnapshot writes the remote settings snapshot into the local user
// record, the remote-to-local direction used by the refresh flow. Missing
// remote keys clear the local value.
func (r SettingReconciler) ApplySnapshot(user *domain.User, remoteProps map[string]string) {
	user.RealName = r.readSetting(remoteProps, settingRealName)
	user.Email = r.readSetting(remoteProps, settingEmail)
	user.EmailConfirmed = domain.ParseBoolProperty(remoteProps[r.confirmedKey()])
}

// SeedProperties builds the initial remote property map used when a new
// account is registered, so that real name and email do not need a second
// round trip after creation.
func (r SettingReconciler) SeedProperties(realName, email string) map[string]string {
	props := make(map[string]string)
	if realName != "" {
		props[r.mapper.RemoteKey(settingRealName)] = realName
	}
	if email != "" {
		props[r.mapper.RemoteKey(settingEmail)] = email
	}
	return props
}

// readSetting honours the shadowing rule: a namespaced property wins over a
// global property of the same bare name.
func (r SettingReconciler) readSetting(remoteProps map[string]string, key string) string {
	if v, ok := remoteProps[r.mapper.prefix+key]; ok {
		return v
	}
	return remoteProps[r.mapper.RemoteKey(key)]
}
