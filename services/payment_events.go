package services

import (
	"context"
	"log"
	"time"

	"github.com/cakedayhq/cakeday_backend/models"
)

// Notifier delivers payment-outcome notifications to companies. Delivery is
// fire-and-forget; implementations log their own failures.
type Notifier interface {
	NotifyPaymentReceived(company *models.Company, payment *models.Payment)
	NotifySubscriptionSuspended(company *models.Company, payment *models.Payment)
}

// Broadcaster pushes canonical events to connected dashboard clients
type Broadcaster interface {
	BroadcastPaymentEvent(event models.PaymentEvent)
}

// PaymentEventProcessor consumes canonical payment events after they were
// durably recorded. The webhook handler only verifies, records, and
// enqueues; every slow reaction (suspension, notifications, dashboard push)
// happens here so the HTTP response to the gateway is never blocked on
// business logic.
type PaymentEventProcessor struct {
	store    SubscriptionStore
	ledger   PaymentLedger
	notifier Notifier
	hub      Broadcaster

	events chan models.PaymentEvent
	stop   chan struct{}
	done   chan struct{}
}

// NewPaymentEventProcessor creates an event processor. notifier and hub may
// be nil.
func NewPaymentEventProcessor(store SubscriptionStore, ledger PaymentLedger, notifier Notifier, hub Broadcaster) *PaymentEventProcessor {
	return &PaymentEventProcessor{
		store:    store,
		ledger:   ledger,
		notifier: notifier,
		hub:      hub,
		events:   make(chan models.PaymentEvent, 256),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Enqueue hands an event to the processor without blocking the caller. A
// full queue is logged and dropped; the retry sweep's reconciliation pass
// re-derives anything lost from ledger state.
func (p *PaymentEventProcessor) Enqueue(event models.PaymentEvent) {
	select {
	case p.events <- event:
	default:
		log.Printf("Payment event queue full, dropping event for order %s", event.OrderID)
	}
}

// Start launches the processing loop
func (p *PaymentEventProcessor) Start() {
	go func() {
		defer close(p.done)
		for {
			select {
			case event := <-p.events:
				p.handle(event)
			case <-p.stop:
				// Drain what is already queued before exiting
				for {
					select {
					case event := <-p.events:
						p.handle(event)
					default:
						return
					}
				}
			}
		}
	}()
}

// Stop shuts the processing loop down and waits for it to drain
func (p *PaymentEventProcessor) Stop() {
	close(p.stop)
	<-p.done
}

func (p *PaymentEventProcessor) handle(event models.PaymentEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payment, err := p.ledger.FindByOrderID(ctx, event.OrderID)
	if err != nil {
		log.Printf("Event for unknown order %s dropped: %v", event.OrderID, err)
		return
	}

	company, err := p.store.FindByID(ctx, payment.CompanyID)
	if err != nil {
		log.Printf("Event for order %s: failed to load company %s: %v", event.OrderID, payment.CompanyID.Hex(), err)
		return
	}

	switch event.Status {
	case models.OutcomeFinished:
		if p.notifier != nil {
			p.notifier.NotifyPaymentReceived(company, payment)
		}
	case models.OutcomeFailed:
		// Suspension fires only when the chain exhausted its retries and is
		// still failed; a single failure never suspends
		if payment.Status == models.PaymentFailed && payment.RetryCount >= models.MaxRetryCount {
			if err := p.store.Suspend(ctx, company.ID); err != nil {
				log.Printf("Failed to suspend company %s: %v", company.ID.Hex(), err)
			} else {
				log.Printf("Company %s suspended after %d failed payment attempts", company.ID.Hex(), payment.RetryCount+1)
				if p.notifier != nil {
					p.notifier.NotifySubscriptionSuspended(company, payment)
				}
			}
		}
	}

	if p.hub != nil {
		p.hub.BroadcastPaymentEvent(event)
	}
}
