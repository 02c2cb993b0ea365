package sync

import (
	"strconv"

	"github.com/fsonner/restauth-bridge/internal/config"
	"github.com/fsonner/restauth-bridge/internal/domain"
)

// OptionReconciler diffs the open-ended preference set against the remote
// property snapshot. The remote store is an override store, not a mirror:
// values equal to the platform default are never written and stale remote
// overrides of default values are deleted.
type OptionReconciler struct {
	cfg      *config.SyncConfig
	mapper   PropertyMapper
	defaults domain.DefaultPreferences
}

func NewOptionReconciler(cfg *config.SyncConfig, mapper PropertyMapper, defaults domain.DefaultPreferences) OptionReconciler {
	return OptionReconciler{cfg: cfg, mapper: mapper, defaults: defaults}
}

// Reconcile computes the remote writes needed to make the remote override
// store match the local preference map. Ignored preferences and the refresh
// bookkeeping key are skipped in both directions.
func (r OptionReconciler) Reconcile(prefs map[string]domain.PreferenceValue, remoteProps map[string]string) *Actions {
	actions := NewActions()

	for key, value := range prefs {
		if r.skip(key) {
			continue
		}

		remoteKey := r.mapper.RemoteKey(key)
		normalized := value.Normalize()
		normalizedDefault := r.defaults.Get(key).NormalizeAsDefault(value)

		remoteValue, exists := remoteProps[remoteKey]

		switch {
		case exists && normalized == normalizedDefault:
			// reverted to the default, the remote override is stale
			actions.AddDelete(remoteKey)
		case exists && remoteValue != normalized:
			actions.AddSet(remoteKey, normalized)
		case !exists && normalized != normalizedDefault:
			actions.AddSet(remoteKey, normalized)
		}
	}

	return actions
}

// Load maps the remote property snapshot back to local preference values, the
// remote-to-local direction used by the refresh flow. Remote keys that do not
// map to a usable local preference (unknown globals, shadowed globals) and
// ignored preferences are dropped. The returned values carry the type of the
// platform default for the key so that booleans and numbers survive the
// string-only remote store.
func (r OptionReconciler) Load(remoteProps map[string]string) map[string]domain.PreferenceValue {
	prefs := make(map[string]domain.PreferenceValue)

	for remoteKey, raw := range remoteProps {
		key, ok := r.mapper.LocalKey(remoteKey, remoteProps)
		if !ok {
			continue
		}
		if r.skip(key) {
			continue
		}
		if isSettingKey(key) {
			continue
		}

		prefs[key] = r.typedValue(key, raw)
	}

	return prefs
}

func (r OptionReconciler) skip(key string) bool {
	return key == domain.LastRefreshKey || r.cfg.IsIgnored(key)
}

// typedValue restores the scalar type of a remote string value using the
// platform default for the key as the type oracle.
func (r OptionReconciler) typedValue(key, raw string) domain.PreferenceValue {
	def := r.defaults.Get(key)
	switch def.Kind {
	case domain.KindBool:
		return domain.BoolValue(domain.ParseBoolProperty(raw))
	case domain.KindInt:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return domain.IntValue(n)
		}
		return domain.StringValue(raw)
	case domain.KindFloat:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return domain.FloatValue(f)
		}
		return domain.StringValue(raw)
	case domain.KindNull:
		// null defaults cover both checkboxes and text inputs; the canonical
		// boolean encodings are unambiguous, anything else stays a string
		if raw == "0" || raw == "1" {
			return domain.BoolValue(raw == "1")
		}
		return domain.StringValue(raw)
	default:
		return domain.StringValue(raw)
	}
}

func isSettingKey(key string) bool {
	switch key {
	case settingRealName, settingEmail, settingEmailConfirmed:
		return true
	default:
		return false
	}
}
