package sync

import (
	"time"

	"github.com/fsonner/restauth-bridge/internal/config"
)

// PageView describes the request that may trigger a refresh of the local copy
// of the remote state.
type PageView struct {
	// OwnPreferencesPage is true if the user is viewing their own
	// preferences page.
	OwnPreferencesPage bool
	// FormSubmission is true for write requests. Form submissions never
	// trigger a refresh, they would overwrite the values the user is about
	// to save.
	FormSubmission bool
}

// RefreshScheduler decides whether a remote-to-local refresh is due for a
// given page view.
type RefreshScheduler struct {
	interval time.Duration
}

func NewRefreshScheduler(cfg *config.SyncConfig) RefreshScheduler {
	return RefreshScheduler{interval: cfg.RefreshInterval}
}

// Due reports whether a refresh should run. A refresh is due when the user
// reads their own preferences page, or when the last refresh is older than
// the configured interval. A nil lastRefresh means the user was never
// refreshed.
func (s RefreshScheduler) Due(lastRefresh *time.Time, now time.Time, view PageView) bool {
	if view.OwnPreferencesPage && !view.FormSubmission {
		return true
	}
	if lastRefresh == nil {
		return true
	}
	return now.Sub(*lastRefresh) > s.interval
}
