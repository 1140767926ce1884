package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cakedayhq/cakeday_backend/config"
	"github.com/cakedayhq/cakeday_backend/models"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// BillingScheduler runs the daily billing sweep. It owns its own lifecycle
// (Start/Stop) and coordinates with other instances through a Redis day-lock
// plus the billing-date compare-and-swap, so no process-wide running flag is
// needed.
type BillingScheduler struct {
	store   SubscriptionStore
	ledger  PaymentLedger
	gateway Gateway
	events  EventSink
	redis   *redis.Client
	cfg     config.BillingConfig

	now  func() time.Time
	stop chan struct{}
	done chan struct{}
}

// NewBillingScheduler creates a scheduler. redisClient may be nil; the sweep
// then relies on the billing-date CAS alone.
func NewBillingScheduler(store SubscriptionStore, ledger PaymentLedger, gateway Gateway, events EventSink, redisClient *redis.Client, cfg config.BillingConfig) *BillingScheduler {
	return &BillingScheduler{
		store:   store,
		ledger:  ledger,
		gateway: gateway,
		events:  events,
		redis:   redisClient,
		cfg:     cfg,
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the daily sweep loop
func (s *BillingScheduler) Start() {
	go func() {
		defer close(s.done)
		for {
			next := s.cfg.NextRun(s.now())
			log.Printf("Billing sweep scheduled for %s", next.Format(time.RFC3339))

			timer := time.NewTimer(time.Until(next))
			select {
			case <-timer.C:
				if err := s.RunOnce(context.Background()); err != nil {
					log.Printf("Billing sweep error: %v", err)
				}
			case <-s.stop:
				timer.Stop()
				return
			}
		}
	}()
}

// Stop shuts the sweep loop down and waits for it to exit
func (s *BillingScheduler) Stop() {
	close(s.stop)
	<-s.done
}

// RunOnce executes a single billing sweep. A company failing never aborts
// the sweep for the others.
func (s *BillingScheduler) RunOnce(ctx context.Context) error {
	today := s.cfg.BillingDay(s.now())

	if !s.acquireDayLock(ctx, today) {
		log.Printf("Billing sweep for %s already claimed by another instance", today.Format("2006-01-02"))
		return nil
	}

	companies, err := s.store.FindDueCompanies(ctx, today)
	if err != nil {
		return fmt.Errorf("failed to query due companies: %w", err)
	}

	log.Printf("Billing sweep %s: %d companies due", today.Format("2006-01-02"), len(companies))

	for i := range companies {
		company := companies[i]
		dispatched, err := s.BillCompany(ctx, &company)
		if err != nil {
			log.Printf("Billing company %s (%s) failed: %v", company.ID.Hex(), company.Name, err)
			continue
		}
		if dispatched {
			log.Printf("Dispatched charge for company %s (%s)", company.ID.Hex(), company.Name)
		}
	}

	return nil
}

// BillCompany dispatches at most one charge for the company's current
// billing cycle. The billing-date advance acts as the cycle claim: it runs
// before the dispatch, so a concurrent sweep or manual bill-now loses the
// CAS and aborts without dispatching. Reports whether a charge was
// dispatched.
func (s *BillingScheduler) BillCompany(ctx context.Context, company *models.Company) (bool, error) {
	if company.Status != models.SubscriptionActive {
		return false, nil
	}

	open, err := s.ledger.HasOpenChain(ctx, company.ID)
	if err != nil {
		return false, fmt.Errorf("failed to check open chain: %w", err)
	}
	if open {
		// A previous attempt for this period is still being retried or
		// settled; the chain owns the cycle
		log.Printf("Company %s has an open payment chain, skipping", company.ID.Hex())
		return false, nil
	}

	cycle := company.NextBillingDate
	if err := s.store.AdvanceBillingDate(ctx, company.ID, cycle); err != nil {
		if errors.Is(err, ErrBillingConflict) {
			log.Printf("Company %s cycle %s already claimed", company.ID.Hex(), cycle.Format("2006-01-02"))
			return false, nil
		}
		return false, fmt.Errorf("failed to claim billing cycle: %w", err)
	}

	now := s.now()
	payment := &models.Payment{
		OrderID:     uuid.NewString(),
		CompanyID:   company.ID,
		Amount:      company.MonthlyCost,
		Status:      models.PaymentPending,
		RetryCount:  0,
		IsRecurring: true,
		PeriodStart: cycle,
		PeriodEnd:   cycle.AddDate(0, 0, 30),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.ledger.Create(ctx, payment); err != nil {
		s.rollbackClaim(ctx, company, cycle)
		return false, fmt.Errorf("failed to record payment: %w", err)
	}

	description := fmt.Sprintf("Cakeday %s subscription %s", company.Tier, cycle.Format("2006-01"))
	token, err := s.gateway.CreateCharge(ctx, company.Phone, company.MonthlyCost, description, payment.OrderID)
	if err != nil {
		s.recordDispatchFailure(ctx, payment, err)
		s.rollbackClaim(ctx, company, cycle)
		return false, err
	}

	if err := s.ledger.MarkProcessing(ctx, payment.OrderID, token); err != nil {
		return true, fmt.Errorf("charge dispatched but failed to record token: %w", err)
	}

	return true, nil
}

// recordDispatchFailure marks the payment failed. Transport and provider
// failures are retry-eligible; validation failures are surfaced to the
// operator and left without a retry schedule.
func (s *BillingScheduler) recordDispatchFailure(ctx context.Context, payment *models.Payment, dispatchErr error) {
	details := TerminalDetails{
		FailureReason: dispatchErr.Error(),
		ErrorCode:     ErrorCode(dispatchErr),
	}
	if IsRetryable(dispatchErr) && payment.RetryCount < models.MaxRetryCount {
		retryAt := s.now().Add(s.cfg.BackoffFor(payment.RetryCount))
		details.NextRetryAt = &retryAt
	} else {
		log.Printf("OPERATOR ATTENTION: payment %s failed validation, no retry scheduled: %v", payment.OrderID, dispatchErr)
	}

	if _, err := s.ledger.UpsertTerminal(ctx, payment.OrderID, models.PaymentFailed, details); err != nil {
		log.Printf("Failed to record dispatch failure for %s: %v", payment.OrderID, err)
		return
	}

	s.events.Enqueue(models.PaymentEvent{
		OrderID:   payment.OrderID,
		Status:    models.OutcomeFailed,
		Amount:    payment.Amount,
		Timestamp: s.now(),
		ErrorCode: details.ErrorCode,
	})
}

// rollbackClaim compensates the billing-date advance after a dispatch that
// never reached the provider. The open-chain check keeps the restored date
// from double-billing while the retry chain is live.
func (s *BillingScheduler) rollbackClaim(ctx context.Context, company *models.Company, cycle time.Time) {
	if err := s.store.RevertBillingDate(ctx, company.ID, cycle); err != nil {
		log.Printf("Failed to revert billing date for company %s: %v", company.ID.Hex(), err)
	}
}

func (s *BillingScheduler) acquireDayLock(ctx context.Context, day time.Time) bool {
	if s.redis == nil {
		return true
	}
	key := "billing:sweep:" + day.Format("2006-01-02")
	ok, err := s.redis.SetNX(ctx, key, s.now().Format(time.RFC3339), 23*time.Hour).Result()
	if err != nil {
		log.Printf("Warning: sweep lock unavailable (%v), relying on billing-date conflicts", err)
		return true
	}
	return ok
}
