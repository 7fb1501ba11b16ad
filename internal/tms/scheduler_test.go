package tms

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logi-track/internal/config"
)

func TestNewSchedulerInvalidSchedule(t *testing.T) {
	_, err := NewScheduler(&Service{}, "not a schedule")
	assert.Error(t, err)
}

func TestSchedulerSkipsWhileRunning(t *testing.T) {
	svc := NewService(config.TMSConfig{}, newTestProvider(t))
	s, err := NewScheduler(svc, "@every 1h")
	require.NoError(t, err)

	// A run in flight makes the tick a no-op.
	s.running.Store(true)
	s.run()
	assert.True(t, s.running.Load())
	assert.Nil(t, s.lastSync.Load())

	// Unconfigured service: the run fails and does not record a sync time.
	s.running.Store(false)
	s.run()
	assert.False(t, s.running.Load())
	assert.Nil(t, s.lastSync.Load())
}

func TestSchedulerKeepsWindowAfterSkippedRecords(t *testing.T) {
	s, err := NewScheduler(&Service{}, "@every 1h")
	require.NoError(t, err)

	first := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.advance(first, &Result{Synced: 3, Created: 3})
	assert.Equal(t, "2025-03-01T12:00:00Z", s.lastSync.Load())

	s.advance(first.Add(time.Hour), &Result{Synced: 2, Created: 1, Skipped: 1})
	assert.Equal(t, "2025-03-01T12:00:00Z", s.lastSync.Load())

	s.advance(first.Add(2*time.Hour), &Result{Synced: 2, Updated: 2})
	assert.Equal(t, "2025-03-01T14:00:00Z", s.lastSync.Load())
}
