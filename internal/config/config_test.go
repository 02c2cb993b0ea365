package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestGetConfig_Defaults(t *testing.T) {
	path := writeConfigFile(t, `
restauth:
  url: https://auth.example.com
`)
	t.Setenv("RESTAUTH_BRIDGE_CONFIG", path)

	cfg, err := GetConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://auth.example.com", cfg.RestAuth.Url)
	assert.Equal(t, 10*time.Second, cfg.RestAuth.Timeout)
	assert.Equal(t, 300*time.Second, cfg.Sync.RefreshInterval)
	assert.Equal(t, "mediawiki ", cfg.Sync.PropertyPrefix)
	assert.True(t, cfg.Sync.GlobalProperties["email"])
	assert.True(t, cfg.Sync.IsIgnored("watchlisttoken"))
	assert.Equal(t, "sqlite", string(cfg.Database.Type))
}

func TestGetConfig_EnvSubstitution(t *testing.T) {
	path := writeConfigFile(t, `
restauth:
  url: https://auth.example.com
  service: wiki
  service_password: ${RA_SERVICE_PASSWORD}
`)
	t.Setenv("RESTAUTH_BRIDGE_CONFIG", path)
	t.Setenv("RA_SERVICE_PASSWORD", "super-secret")

	cfg, err := GetConfig()
	require.NoError(t, err)

	assert.Equal(t, "super-secret", string(cfg.RestAuth.ServicePassword))
}

func TestGetConfig_InvalidUrl(t *testing.T) {
	path := writeConfigFile(t, `
restauth:
  url: not-a-url
`)
	t.Setenv("RESTAUTH_BRIDGE_CONFIG", path)

	_, err := GetConfig()
	assert.Error(t, err)
}

func TestGetConfig_TypedDefaultPreferences(t *testing.T) {
	path := writeConfigFile(t, `
restauth:
  url: https://auth.example.com
sync:
  default_preferences:
    skin: vector
    rows: 25
    watchdefault: false
    nickname: null
`)
	t.Setenv("RESTAUTH_BRIDGE_CONFIG", path)

	cfg, err := GetConfig()
	require.NoError(t, err)

	assert.Equal(t, "vector", cfg.Sync.DefaultPreferences["skin"])
	assert.Equal(t, 25, cfg.Sync.DefaultPreferences["rows"])
	assert.Equal(t, false, cfg.Sync.DefaultPreferences["watchdefault"])
	assert.Contains(t, cfg.Sync.DefaultPreferences, "nickname")
	assert.Nil(t, cfg.Sync.DefaultPreferences["nickname"])
}

func TestSyncConfig_IsIgnored(t *testing.T) {
	cfg := defaultSyncConfig()

	assert.True(t, cfg.IsIgnored("watchlisttoken"))
	assert.False(t, cfg.IsIgnored("skin"))
}
