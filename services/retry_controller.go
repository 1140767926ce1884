package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cakedayhq/cakeday_backend/config"
	"github.com/cakedayhq/cakeday_backend/models"
	"github.com/google/uuid"
)

// RetryController re-dispatches failed payments on the configured backoff
// ladder and reconciles payments stuck in processing. Chains that exhaust
// the ladder suspend the owning subscription through the event processor.
type RetryController struct {
	store   SubscriptionStore
	ledger  PaymentLedger
	gateway Gateway
	events  EventSink
	cfg     config.BillingConfig

	now  func() time.Time
	stop chan struct{}
	done chan struct{}
}

// NewRetryController creates a retry controller
func NewRetryController(store SubscriptionStore, ledger PaymentLedger, gateway Gateway, events EventSink, cfg config.BillingConfig) *RetryController {
	return &RetryController{
		store:   store,
		ledger:  ledger,
		gateway: gateway,
		events:  events,
		cfg:     cfg,
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the periodic retry sweep
func (r *RetryController) Start() {
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.cfg.RetrySweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := r.RunOnce(context.Background()); err != nil {
					log.Printf("Retry sweep error: %v", err)
				}
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop shuts the sweep loop down and waits for it to exit
func (r *RetryController) Stop() {
	close(r.stop)
	<-r.done
}

// RunOnce executes a single retry-and-reconcile sweep. A single payment's
// failure never aborts the sweep for the others.
func (r *RetryController) RunOnce(ctx context.Context) error {
	now := r.now()

	retryable, err := r.ledger.FindRetryable(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to query retryable payments: %w", err)
	}
	for i := range retryable {
		if err := r.retryPayment(ctx, &retryable[i]); err != nil {
			log.Printf("Retry of payment %s failed: %v", retryable[i].OrderID, err)
		}
	}

	stale, err := r.ledger.FindStaleProcessing(ctx, now.Add(-r.cfg.ReconcileAfter))
	if err != nil {
		return fmt.Errorf("failed to query stale payments: %w", err)
	}
	for i := range stale {
		if err := r.reconcilePayment(ctx, &stale[i]); err != nil {
			log.Printf("Reconciliation of payment %s failed: %v", stale[i].OrderID, err)
		}
	}

	return nil
}

// retryPayment creates and dispatches the successor of a failed payment
func (r *RetryController) retryPayment(ctx context.Context, parent *models.Payment) error {
	company, err := r.store.FindByID(ctx, parent.CompanyID)
	if err != nil {
		return fmt.Errorf("failed to load company: %w", err)
	}

	// Retries only run while the subscription is still active; a cancelled
	// or paused subscription must not be resurrected by the sweep
	if company.Status != models.SubscriptionActive {
		log.Printf("Company %s is %s, abandoning retry of %s", company.ID.Hex(), company.Status, parent.OrderID)
		if _, err := r.ledger.ClaimForRetry(ctx, parent.ID); err != nil {
			log.Printf("Failed to close abandoned chain %s: %v", parent.OrderID, err)
		}
		return nil
	}

	claimed, err := r.ledger.ClaimForRetry(ctx, parent.ID)
	if err != nil {
		return fmt.Errorf("failed to claim payment: %w", err)
	}
	if !claimed {
		// Another sweep already spawned the successor
		return nil
	}

	now := r.now()
	parentID := parent.ID
	successor := &models.Payment{
		OrderID:         uuid.NewString(),
		CompanyID:       parent.CompanyID,
		Amount:          parent.Amount,
		Status:          models.PaymentPending,
		RetryCount:      parent.RetryCount + 1,
		IsRecurring:     parent.IsRecurring,
		ParentPaymentID: &parentID,
		PeriodStart:     parent.PeriodStart,
		PeriodEnd:       parent.PeriodEnd,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := r.ledger.Create(ctx, successor); err != nil {
		return fmt.Errorf("failed to record retry payment: %w", err)
	}

	description := fmt.Sprintf("Cakeday %s subscription %s (retry %d)", company.Tier, successor.PeriodStart.Format("2006-01"), successor.RetryCount)
	token, err := r.gateway.CreateCharge(ctx, company.Phone, successor.Amount, description, successor.OrderID)
	if err != nil {
		r.recordRetryFailure(ctx, successor, err)
		return err
	}

	if err := r.ledger.MarkProcessing(ctx, successor.OrderID, token); err != nil {
		return fmt.Errorf("charge dispatched but failed to record token: %w", err)
	}

	// The sweep reverted the billing date when the original dispatch failed;
	// a successful re-dispatch re-claims the cycle
	if company.NextBillingDate.Equal(successor.PeriodStart) {
		if err := r.store.AdvanceBillingDate(ctx, company.ID, successor.PeriodStart); err != nil && !errors.Is(err, ErrBillingConflict) {
			log.Printf("Failed to advance billing date after retry of %s: %v", successor.OrderID, err)
		}
	}

	return nil
}

func (r *RetryController) recordRetryFailure(ctx context.Context, payment *models.Payment, dispatchErr error) {
	details := TerminalDetails{
		FailureReason: dispatchErr.Error(),
		ErrorCode:     ErrorCode(dispatchErr),
	}
	if IsRetryable(dispatchErr) && payment.RetryCount < models.MaxRetryCount {
		retryAt := r.now().Add(r.cfg.BackoffFor(payment.RetryCount))
		details.NextRetryAt = &retryAt
	} else if !IsRetryable(dispatchErr) {
		log.Printf("OPERATOR ATTENTION: retry payment %s failed validation, no retry scheduled: %v", payment.OrderID, dispatchErr)
	}

	if _, err := r.ledger.UpsertTerminal(ctx, payment.OrderID, models.PaymentFailed, details); err != nil {
		log.Printf("Failed to record retry failure for %s: %v", payment.OrderID, err)
		return
	}

	// Exhausted chains escalate to suspension in the event processor
	r.events.Enqueue(models.PaymentEvent{
		OrderID:   payment.OrderID,
		Status:    models.OutcomeFailed,
		Amount:    payment.Amount,
		Timestamp: r.now(),
		ErrorCode: details.ErrorCode,
	})
}

// reconcilePayment resolves a payment left processing past the expected
// window by polling the gateway, feeding the result through the same
// terminal-once path a webhook would take
func (r *RetryController) reconcilePayment(ctx context.Context, payment *models.Payment) error {
	rawStatus, data, err := r.gateway.CheckStatus(ctx, payment.GatewayToken)
	if err != nil {
		return fmt.Errorf("status poll failed: %w", err)
	}

	canonical := r.cfg.CanonicalStatus(rawStatus)
	if canonical == models.OutcomeUnknown {
		log.Printf("OPERATOR ATTENTION: payment %s polled status %q is not in the configured vocabulary", payment.OrderID, rawStatus)
		return nil
	}

	details := TerminalDetails{}
	if txID, ok := data["transactionId"].(string); ok {
		details.TransactionID = txID
	}
	if canonical == models.OutcomeFailed {
		details.FailureReason = fmt.Sprintf("gateway reported %s on reconciliation", rawStatus)
		if payment.RetryCount < models.MaxRetryCount {
			retryAt := r.now().Add(r.cfg.BackoffFor(payment.RetryCount))
			details.NextRetryAt = &retryAt
		}
	}

	applied, err := r.ledger.UpsertTerminal(ctx, payment.OrderID, canonical, details)
	if err != nil {
		return fmt.Errorf("failed to record reconciled status: %w", err)
	}
	if !applied {
		// A webhook beat the poll; first terminal status wins
		return nil
	}

	r.events.Enqueue(models.PaymentEvent{
		OrderID:       payment.OrderID,
		Status:        canonical,
		TransactionID: details.TransactionID,
		Amount:        payment.Amount,
		Timestamp:     r.now(),
	})
	return nil
}
