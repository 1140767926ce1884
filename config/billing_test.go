package config

import (
	"testing"
	"time"

	"github.com/cakedayhq/cakeday_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBillingConfigDefaults(t *testing.T) {
	t.Setenv("BILLING_TIMEZONE", "UTC")

	cfg := LoadBillingConfig()
	assert.Equal(t, 8, cfg.BillingHour)
	assert.Equal(t, 6*time.Hour, cfg.RetrySweepInterval)
	assert.Equal(t, []time.Duration{6 * time.Hour, 24 * time.Hour, 72 * time.Hour}, cfg.Backoffs)
	assert.Equal(t, 24*time.Hour, cfg.ReconcileAfter)
	assert.True(t, cfg.SuccessStatuses["success"])
	assert.True(t, cfg.FailureStatuses["expired"])
}

func TestLoadBillingConfigOverrides(t *testing.T) {
	t.Setenv("BILLING_TIMEZONE", "UTC")
	t.Setenv("BILLING_HOUR", "2")
	t.Setenv("RETRY_SWEEP_INTERVAL", "30m")
	t.Setenv("RETRY_BACKOFF_HOURS", "1, 2, 3")
	t.Setenv("RECONCILE_AFTER_HOURS", "6")
	t.Setenv("WEBHOOK_SUCCESS_STATUSES", "ok, Paid")

	cfg := LoadBillingConfig()
	assert.Equal(t, 2, cfg.BillingHour)
	assert.Equal(t, 30*time.Minute, cfg.RetrySweepInterval)
	assert.Equal(t, []time.Duration{time.Hour, 2 * time.Hour, 3 * time.Hour}, cfg.Backoffs)
	assert.Equal(t, 6*time.Hour, cfg.ReconcileAfter)
	assert.True(t, cfg.SuccessStatuses["ok"])
	assert.True(t, cfg.SuccessStatuses["paid"], "status vocabulary is lowercased and trimmed")
	assert.False(t, cfg.SuccessStatuses["success"], "overriding replaces the defaults")
}

func TestCanonicalStatus(t *testing.T) {
	cfg := BillingConfig{
		SuccessStatuses: map[string]bool{"success": true, "collected": true},
		FailureStatuses: map[string]bool{"failed": true, "expired": true},
	}

	assert.Equal(t, models.OutcomeFinished, cfg.CanonicalStatus("success"))
	assert.Equal(t, models.OutcomeFinished, cfg.CanonicalStatus("  Collected "))
	assert.Equal(t, models.OutcomeFailed, cfg.CanonicalStatus("FAILED"))
	assert.Equal(t, models.OutcomeUnknown, cfg.CanonicalStatus("onhold"))
	assert.Equal(t, models.OutcomeUnknown, cfg.CanonicalStatus(""))
}

func TestBackoffFor(t *testing.T) {
	cfg := BillingConfig{Backoffs: []time.Duration{6 * time.Hour, 24 * time.Hour, 72 * time.Hour}}

	assert.Equal(t, 6*time.Hour, cfg.BackoffFor(0))
	assert.Equal(t, 24*time.Hour, cfg.BackoffFor(1))
	assert.Equal(t, 72*time.Hour, cfg.BackoffFor(2))
	assert.Equal(t, 72*time.Hour, cfg.BackoffFor(10), "out-of-range counts clamp to the last rung")
	assert.Equal(t, 6*time.Hour, cfg.BackoffFor(-1))
}

func TestBillingDayUsesBillingTimezone(t *testing.T) {
	loc := time.FixedZone("EET", 2*3600)
	cfg := BillingConfig{Location: loc}

	// 23:30 UTC is already the next day in the billing timezone
	utcEvening := time.Date(2026, 8, 30, 23, 30, 0, 0, time.UTC)
	day := cfg.BillingDay(utcEvening)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, loc).Unix(), day.Unix())
}

func TestNextRun(t *testing.T) {
	loc := time.UTC
	cfg := BillingConfig{Location: loc, BillingHour: 8}

	before := time.Date(2026, 8, 31, 6, 0, 0, 0, loc)
	require.Equal(t, time.Date(2026, 8, 31, 8, 0, 0, 0, loc), cfg.NextRun(before))

	after := time.Date(2026, 8, 31, 9, 0, 0, 0, loc)
	require.Equal(t, time.Date(2026, 9, 1, 8, 0, 0, 0, loc), cfg.NextRun(after))

	exactly := time.Date(2026, 8, 31, 8, 0, 0, 0, loc)
	require.Equal(t, time.Date(2026, 9, 1, 8, 0, 0, 0, loc), cfg.NextRun(exactly), "a run at the boundary schedules the next day")
}
