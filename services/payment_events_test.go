package services

import (
	"sync"
	"testing"
	"time"

	"github.com/cakedayhq/cakeday_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu        sync.Mutex
	received  []string
	suspended []string
}

func (n *fakeNotifier) NotifyPaymentReceived(company *models.Company, payment *models.Payment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.received = append(n.received, payment.OrderID)
}

func (n *fakeNotifier) NotifySubscriptionSuspended(company *models.Company, payment *models.Payment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.suspended = append(n.suspended, payment.OrderID)
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []models.PaymentEvent
}

func (b *fakeBroadcaster) BroadcastPaymentEvent(event models.PaymentEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *fakeBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func TestProcessorNotifiesOnFinished(t *testing.T) {
	cycle := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	company := testCompany(cycle)
	payment := &models.Payment{
		OrderID:   "order-1",
		CompanyID: company.ID,
		Amount:    5000,
		Status:    models.PaymentFinished,
	}

	store := newFakeStore(company)
	notifier := &fakeNotifier{}
	hub := &fakeBroadcaster{}
	p := NewPaymentEventProcessor(store, newFakeLedger(payment), notifier, hub)

	p.handle(models.PaymentEvent{OrderID: "order-1", Status: models.OutcomeFinished, Amount: 5000})

	assert.Equal(t, []string{"order-1"}, notifier.received)
	assert.Empty(t, notifier.suspended)
	assert.Equal(t, models.SubscriptionActive, store.get(company.ID).Status)
	assert.Equal(t, 1, hub.count())
}

func TestProcessorSuspendsOnlyWhenChainExhausted(t *testing.T) {
	cycle := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name        string
		status      string
		retryCount  int
		wantSuspend bool
	}{
		{"first failure", models.PaymentFailed, 0, false},
		{"mid-chain failure", models.PaymentFailed, 2, false},
		{"exhausted chain", models.PaymentFailed, models.MaxRetryCount, true},
		{"finished at max retries", models.PaymentFinished, models.MaxRetryCount, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			company := testCompany(cycle)
			payment := &models.Payment{
				OrderID:    "order-1",
				CompanyID:  company.ID,
				Amount:     5000,
				Status:     tc.status,
				RetryCount: tc.retryCount,
			}

			store := newFakeStore(company)
			notifier := &fakeNotifier{}
			p := NewPaymentEventProcessor(store, newFakeLedger(payment), notifier, nil)

			p.handle(models.PaymentEvent{OrderID: "order-1", Status: models.OutcomeFailed, Amount: 5000})

			if tc.wantSuspend {
				assert.Equal(t, models.SubscriptionSuspended, store.get(company.ID).Status)
				assert.Equal(t, []string{"order-1"}, notifier.suspended)
			} else {
				assert.Equal(t, models.SubscriptionActive, store.get(company.ID).Status)
				assert.Empty(t, notifier.suspended)
			}
		})
	}
}

func TestProcessorDropsUnknownOrder(t *testing.T) {
	cycle := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	company := testCompany(cycle)

	store := newFakeStore(company)
	hub := &fakeBroadcaster{}
	p := NewPaymentEventProcessor(store, newFakeLedger(), &fakeNotifier{}, hub)

	p.handle(models.PaymentEvent{OrderID: "order-nobody", Status: models.OutcomeFailed})
	assert.Equal(t, models.SubscriptionActive, store.get(company.ID).Status)
	assert.Zero(t, hub.count())
}

func TestProcessorDrainsQueueOnStop(t *testing.T) {
	cycle := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	company := testCompany(cycle)
	payment := &models.Payment{
		OrderID:   "order-1",
		CompanyID: company.ID,
		Amount:    5000,
		Status:    models.PaymentFinished,
	}

	notifier := &fakeNotifier{}
	p := NewPaymentEventProcessor(newFakeStore(company), newFakeLedger(payment), notifier, nil)
	p.Start()

	p.Enqueue(models.PaymentEvent{OrderID: "order-1", Status: models.OutcomeFinished, Amount: 5000})
	p.Stop()

	require.Equal(t, []string{"order-1"}, notifier.received, "Stop drains queued events before returning")
}
