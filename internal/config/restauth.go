package config

import (
	"strings"
	"time"

	"github.com/fsonner/restauth-bridge/internal/domain"
)

const defaultTimeoutUnit = time.Second

// RestAuthConfig describes the connection to the remote authentication
// service. The service authenticates itself with a service name and password
// that have to be registered on the RestAuth server.
type RestAuthConfig struct {
	// Url is the base URL of the RestAuth server, e.g. https://auth.example.com.
	Url string `yaml:"url" validate:"required,url"`
	// Service is the name of this service as known to the RestAuth server.
	Service string `yaml:"service"`
	// ServicePassword is the credential used for the service account. The
	// value is redacted when the config is logged or serialized.
	ServicePassword domain.PrivateString `yaml:"service_password"`
	// Timeout limits the duration of a single remote call. Remote outages
	// surface as a retryable service-unavailable error after this duration.
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
}

func (c *RestAuthConfig) Sanitize() {
	c.Url = strings.TrimRight(c.Url, "/")
}

// SyncConfig controls the preference and group synchronization behaviour.
type SyncConfig struct {
	// RefreshInterval is the maximum age of the local copy of the remote
	// state before a page view triggers a refresh.
	RefreshInterval time.Duration `yaml:"refresh_interval" validate:"min=0"`
	// PropertyPrefix is prepended to non-global preference keys when they are
	// stored remotely, to avoid collisions with other services sharing the
	// same property store.
	PropertyPrefix string `yaml:"property_prefix"`
	// IgnoredPreferences are never synchronized in either direction.
	IgnoredPreferences []string `yaml:"ignored_preferences"`
	// GlobalProperties marks preference keys that are stored remotely under
	// their bare name, shared with other services. Keys missing from the map
	// or mapped to false are namespaced with PropertyPrefix.
	GlobalProperties map[string]bool `yaml:"global_properties"`
	// DefaultPreferences is the platform's default value table. Values keep
	// their YAML scalar type (string, int, float, bool or null); preferences
	// matching their default are never written to the remote store.
	DefaultPreferences map[string]any `yaml:"default_preferences"`
	// AlertThreshold is the number of consecutive refresh failures after
	// which an admin notification mail is sent. Zero disables alerting.
	AlertThreshold int `yaml:"alert_threshold" validate:"min=0"`
	// AlertRecipients receive the notification mails.
	AlertRecipients []string `yaml:"alert_recipients"`
}

func defaultSyncConfig() SyncConfig {
	return SyncConfig{
		RefreshInterval: 300 * time.Second,
		PropertyPrefix:  "mediawiki ",
		IgnoredPreferences: []string{
			"watchlisttoken",
		},
		GlobalProperties: map[string]bool{
			"language":        true,
			"real name":       true,
			"email":           true,
			"email confirmed": true,
		},
	}
}

// IsIgnored reports whether the given preference key is excluded from
// synchronization.
func (c *SyncConfig) IsIgnored(key string) bool {
	for _, ignored := range c.IgnoredPreferences {
		if ignored == key {
			return true
		}
	}
	return false
}
