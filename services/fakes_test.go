package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cakedayhq/cakeday_backend/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var errTestDialFailed = errors.New("connection refused")

// In-memory SubscriptionStore used by the scheduler and retry tests
type fakeStore struct {
	mu        sync.Mutex
	companies map[primitive.ObjectID]*models.Company
}

func newFakeStore(companies ...*models.Company) *fakeStore {
	s := &fakeStore{companies: make(map[primitive.ObjectID]*models.Company)}
	for _, c := range companies {
		if c.ID.IsZero() {
			c.ID = primitive.NewObjectID()
		}
		s.companies[c.ID] = c
	}
	return s
}

func (s *fakeStore) FindDueCompanies(ctx context.Context, asOf time.Time) ([]models.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.Company
	for _, c := range s.companies {
		if c.Status == models.SubscriptionActive && !c.NextBillingDate.After(asOf) {
			due = append(due, *c)
		}
	}
	return due, nil
}

func (s *fakeStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *c
	return &copy, nil
}

func (s *fakeStore) AdvanceBillingDate(ctx context.Context, companyID primitive.ObjectID, cycle time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[companyID]
	if !ok || c.Status != models.SubscriptionActive || !c.NextBillingDate.Equal(cycle) {
		return ErrBillingConflict
	}
	c.NextBillingDate = cycle.AddDate(0, 0, 30)
	c.BillingVersion++
	return nil
}

func (s *fakeStore) RevertBillingDate(ctx context.Context, companyID primitive.ObjectID, cycle time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[companyID]
	if !ok || !c.NextBillingDate.Equal(cycle.AddDate(0, 0, 30)) {
		return ErrBillingConflict
	}
	c.NextBillingDate = cycle
	c.BillingVersion++
	return nil
}

func (s *fakeStore) Suspend(ctx context.Context, companyID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.companies[companyID]; ok {
		c.Status = models.SubscriptionSuspended
	}
	return nil
}

func (s *fakeStore) get(id primitive.ObjectID) models.Company {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.companies[id]
}

// In-memory PaymentLedger
type fakeLedger struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
}

func newFakeLedger(payments ...*models.Payment) *fakeLedger {
	l := &fakeLedger{payments: make(map[string]*models.Payment)}
	for _, p := range payments {
		if p.ID.IsZero() {
			p.ID = primitive.NewObjectID()
		}
		l.payments[p.OrderID] = p
	}
	return l
}

func (l *fakeLedger) Create(ctx context.Context, payment *models.Payment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if payment.ID.IsZero() {
		payment.ID = primitive.NewObjectID()
	}
	copy := *payment
	l.payments[payment.OrderID] = &copy
	return nil
}

func (l *fakeLedger) MarkProcessing(ctx context.Context, orderID, gatewayToken string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.payments[orderID]
	if !ok || p.Status != models.PaymentPending {
		return ErrNotFound
	}
	p.Status = models.PaymentProcessing
	p.GatewayToken = gatewayToken
	p.UpdatedAt = time.Now()
	return nil
}

func (l *fakeLedger) UpsertTerminal(ctx context.Context, orderID, status string, details TerminalDetails) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.payments[orderID]
	if !ok {
		return false, nil
	}
	if p.Status != models.PaymentPending && p.Status != models.PaymentProcessing {
		return false, nil
	}
	p.Status = status
	if details.TransactionID != "" {
		p.TransactionID = details.TransactionID
	}
	p.FailureReason = details.FailureReason
	p.ErrorCode = details.ErrorCode
	p.NextRetryAt = details.NextRetryAt
	p.UpdatedAt = time.Now()
	return true, nil
}

func (l *fakeLedger) ClaimForRetry(ctx context.Context, paymentID primitive.ObjectID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.payments {
		if p.ID == paymentID {
			if p.Superseded {
				return false, nil
			}
			p.Superseded = true
			return true, nil
		}
	}
	return false, nil
}

func (l *fakeLedger) FindRetryable(ctx context.Context, now time.Time) ([]models.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Payment
	for _, p := range l.payments {
		if p.Status == models.PaymentFailed && !p.Superseded && p.RetryCount < models.MaxRetryCount &&
			p.NextRetryAt != nil && !p.NextRetryAt.After(now) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (l *fakeLedger) FindStaleProcessing(ctx context.Context, olderThan time.Time) ([]models.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Payment
	for _, p := range l.payments {
		if p.Status == models.PaymentProcessing && !p.UpdatedAt.After(olderThan) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (l *fakeLedger) FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.payments[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *p
	return &copy, nil
}

func (l *fakeLedger) HasOpenChain(ctx context.Context, companyID primitive.ObjectID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.payments {
		if p.CompanyID != companyID {
			continue
		}
		if p.Status == models.PaymentPending || p.Status == models.PaymentProcessing {
			return true, nil
		}
		if p.Status == models.PaymentFailed && !p.Superseded && p.RetryCount < models.MaxRetryCount && p.NextRetryAt != nil {
			return true, nil
		}
	}
	return false, nil
}

func (l *fakeLedger) ListByCompany(ctx context.Context, companyID primitive.ObjectID) ([]models.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Payment
	for _, p := range l.payments {
		if p.CompanyID == companyID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (l *fakeLedger) all() []models.Payment {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Payment
	for _, p := range l.payments {
		out = append(out, *p)
	}
	return out
}

// Scripted Gateway
type fakeGateway struct {
	mu          sync.Mutex
	chargeCalls int
	chargeErr   error
	failMsisdn  string
	token       string
	pollStatus  string
	pollErr     error
}

func (g *fakeGateway) CreateCharge(ctx context.Context, msisdn string, amount int64, description, orderID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chargeCalls++
	if g.failMsisdn != "" && msisdn == g.failMsisdn {
		return "", &GatewayError{Kind: ErrKindTransport, Err: errTestDialFailed}
	}
	if g.chargeErr != nil {
		return "", g.chargeErr
	}
	if g.token != "" {
		return g.token, nil
	}
	return "tok_" + orderID, nil
}

func (g *fakeGateway) CheckStatus(ctx context.Context, token string) (string, map[string]interface{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pollErr != nil {
		return "", nil, g.pollErr
	}
	return g.pollStatus, map[string]interface{}{"transactionId": "tx_" + token}, nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.chargeCalls
}

// Collecting EventSink
type fakeSink struct {
	mu     sync.Mutex
	events []models.PaymentEvent
}

func (s *fakeSink) Enqueue(event models.PaymentEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *fakeSink) all() []models.PaymentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PaymentEvent{}, s.events...)
}
