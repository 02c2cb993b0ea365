package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRefreshScheduler_DueAfterInterval(t *testing.T) {
	cfg := testSyncConfig()
	cfg.RefreshInterval = 300 * time.Second
	s := NewRefreshScheduler(cfg)

	now := time.Now()
	stale := now.Add(-301 * time.Second)
	fresh := now.Add(-100 * time.Second)

	assert.True(t, s.Due(&stale, now, PageView{}))
	assert.False(t, s.Due(&fresh, now, PageView{}))
}

func TestRefreshScheduler_DueOnOwnPreferencesPage(t *testing.T) {
	cfg := testSyncConfig()
	cfg.RefreshInterval = 300 * time.Second
	s := NewRefreshScheduler(cfg)

	now := time.Now()
	fresh := now.Add(-10 * time.Second)

	assert.True(t, s.Due(&fresh, now, PageView{OwnPreferencesPage: true}))
}

func TestRefreshScheduler_FormSubmissionDoesNotForceRefresh(t *testing.T) {
	cfg := testSyncConfig()
	cfg.RefreshInterval = 300 * time.Second
	s := NewRefreshScheduler(cfg)

	now := time.Now()
	fresh := now.Add(-10 * time.Second)

	view := PageView{OwnPreferencesPage: true, FormSubmission: true}
	assert.False(t, s.Due(&fresh, now, view))
}

func TestRefreshScheduler_NeverRefreshedUserIsDue(t *testing.T) {
	s := NewRefreshScheduler(testSyncConfig())

	assert.True(t, s.Due(nil, time.Now(), PageView{}))
}
