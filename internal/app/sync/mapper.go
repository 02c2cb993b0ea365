package sync

import (
	"strings"

	"github.com/fsonner/restauth-bridge/internal/config"
)

// PropertyMapper translates between local preference keys and the keys used
// in the remote property store. Preferences marked as global are stored under
// their bare name and shared with other services; everything else is
// namespaced with the configured prefix.
type PropertyMapper struct {
	prefix string
	global map[string]bool
}

func NewPropertyMapper(cfg *config.SyncConfig) PropertyMapper {
	return PropertyMapper{
		prefix: cfg.PropertyPrefix,
		global: cfg.GlobalProperties,
	}
}

// IsGlobal reports whether the preference key is stored under its bare name.
func (m PropertyMapper) IsGlobal(preferenceKey string) bool {
	return m.global[preferenceKey]
}

// RemoteKey returns the remote storage key for a local preference key.
func (m PropertyMapper) RemoteKey(preferenceKey string) string {
	if m.global[preferenceKey] {
		return preferenceKey
	}
	return m.prefix + preferenceKey
}

// LocalKey maps a remote property key back to the local preference key, or
// returns false if the property must not be used locally. A namespaced
// property always shadows the global property of the same bare name: if both
// exist in the remote snapshot, only the namespaced one maps back.
func (m PropertyMapper) LocalKey(remoteKey string, remoteProps map[string]string) (string, bool) {
	if strings.HasPrefix(remoteKey, m.prefix) {
		return remoteKey[len(m.prefix):], true
	}

	// a bare key is only usable if it is a known global property
	if !m.global[remoteKey] {
		return "", false
	}

	// shadowed by a namespaced sibling
	if _, exists := remoteProps[m.prefix+remoteKey]; exists {
		return "", false
	}

	return remoteKey, true
}
