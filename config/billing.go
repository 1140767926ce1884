// config/billing.go
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cakedayhq/cakeday_backend/models"
)

// GatewayConfig holds the payment provider credentials. Every field is
// required; billing cannot run half-configured, so absence is fatal.
type GatewayConfig struct {
	BaseURL         string
	Secret          string
	MerchantID      string
	CallbackBaseURL string
}

// LoadGatewayConfig reads the gateway configuration from the environment
func LoadGatewayConfig() GatewayConfig {
	cfg := GatewayConfig{
		BaseURL:         os.Getenv("GATEWAY_BASE_URL"),
		Secret:          os.Getenv("GATEWAY_SECRET"),
		MerchantID:      os.Getenv("GATEWAY_MERCHANT_ID"),
		CallbackBaseURL: os.Getenv("GATEWAY_CALLBACK_BASE_URL"),
	}

	missing := []string{}
	if cfg.BaseURL == "" {
		missing = append(missing, "GATEWAY_BASE_URL")
	}
	if cfg.Secret == "" {
		missing = append(missing, "GATEWAY_SECRET")
	}
	if cfg.MerchantID == "" {
		missing = append(missing, "GATEWAY_MERCHANT_ID")
	}
	if cfg.CallbackBaseURL == "" {
		missing = append(missing, "GATEWAY_CALLBACK_BASE_URL")
	}
	if len(missing) > 0 {
		log.Fatalf("Gateway configuration incomplete, missing: %s", strings.Join(missing, ", "))
	}

	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	cfg.CallbackBaseURL = strings.TrimSuffix(cfg.CallbackBaseURL, "/")

	log.Printf("Gateway configuration:")
	log.Printf("  Base URL: %s", cfg.BaseURL)
	log.Printf("  Merchant ID: %s", cfg.MerchantID)
	log.Printf("  Callback base URL: %s", cfg.CallbackBaseURL)
	log.Printf("  Secret: [CONFIGURED]")

	return cfg
}

// BillingConfig holds the billing cadence and the provider status
// vocabulary. The retry ladder and status strings are provider-specific, so
// they stay configurable; defaults match the current provider.
type BillingConfig struct {
	Location           *time.Location
	BillingHour        int
	RetrySweepInterval time.Duration
	Backoffs           []time.Duration
	ReconcileAfter     time.Duration
	SuccessStatuses    map[string]bool
	FailureStatuses    map[string]bool
}

// LoadBillingConfig reads the billing configuration from the environment,
// applying defaults for everything that is not set
func LoadBillingConfig() BillingConfig {
	tzName := os.Getenv("BILLING_TIMEZONE")
	if tzName == "" {
		tzName = "Asia/Beirut"
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		log.Fatalf("Invalid BILLING_TIMEZONE %q: %v", tzName, err)
	}

	cfg := BillingConfig{
		Location:           loc,
		BillingHour:        8,
		RetrySweepInterval: 6 * time.Hour,
		Backoffs:           []time.Duration{6 * time.Hour, 24 * time.Hour, 72 * time.Hour},
		ReconcileAfter:     24 * time.Hour,
		SuccessStatuses:    statusSet(os.Getenv("WEBHOOK_SUCCESS_STATUSES"), "success", "collected", "finished"),
		FailureStatuses:    statusSet(os.Getenv("WEBHOOK_FAILURE_STATUSES"), "failed", "failure", "expired", "cancelled"),
	}

	if hourStr := os.Getenv("BILLING_HOUR"); hourStr != "" {
		if hour, err := strconv.Atoi(hourStr); err == nil && hour >= 0 && hour < 24 {
			cfg.BillingHour = hour
		}
	}

	if intervalStr := os.Getenv("RETRY_SWEEP_INTERVAL"); intervalStr != "" {
		if interval, err := time.ParseDuration(intervalStr); err == nil && interval > 0 {
			cfg.RetrySweepInterval = interval
		}
	}

	if hoursStr := os.Getenv("RETRY_BACKOFF_HOURS"); hoursStr != "" {
		var backoffs []time.Duration
		for _, part := range strings.Split(hoursStr, ",") {
			hours, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || hours <= 0 {
				log.Fatalf("Invalid RETRY_BACKOFF_HOURS entry %q", part)
			}
			backoffs = append(backoffs, time.Duration(hours)*time.Hour)
		}
		if len(backoffs) != models.MaxRetryCount {
			log.Fatalf("RETRY_BACKOFF_HOURS must list exactly %d delays", models.MaxRetryCount)
		}
		cfg.Backoffs = backoffs
	}

	if afterStr := os.Getenv("RECONCILE_AFTER_HOURS"); afterStr != "" {
		if hours, err := strconv.Atoi(afterStr); err == nil && hours > 0 {
			cfg.ReconcileAfter = time.Duration(hours) * time.Hour
		}
	}

	return cfg
}

// CanonicalStatus maps a provider status string to the canonical outcome set.
// Anything not in the configured vocabulary is unknown and never applied.
func (c BillingConfig) CanonicalStatus(raw string) string {
	status := strings.ToLower(strings.TrimSpace(raw))
	if c.SuccessStatuses[status] {
		return models.OutcomeFinished
	}
	if c.FailureStatuses[status] {
		return models.OutcomeFailed
	}
	return models.OutcomeUnknown
}

// BackoffFor returns the delay before the retry following a failure of a
// payment with the given retry count
func (c BillingConfig) BackoffFor(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= len(c.Backoffs) {
		retryCount = len(c.Backoffs) - 1
	}
	return c.Backoffs[retryCount]
}

// BillingDay truncates a point in time to midnight of that day in the
// billing timezone. All due-date comparisons go through this so server-local
// time can never shift billing by a day.
func (c BillingConfig) BillingDay(t time.Time) time.Time {
	local := t.In(c.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.Location)
}

// NextRun returns the next daily sweep time after t
func (c BillingConfig) NextRun(t time.Time) time.Time {
	local := t.In(c.Location)
	run := time.Date(local.Year(), local.Month(), local.Day(), c.BillingHour, 0, 0, 0, c.Location)
	if !run.After(local) {
		run = run.AddDate(0, 0, 1)
	}
	return run
}

func statusSet(csv string, defaults ...string) map[string]bool {
	values := defaults
	if csv != "" {
		values = strings.Split(csv, ",")
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = true
		}
	}
	return set
}
