package services_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/meridianinvest/platform/internal/models"
	"github.com/meridianinvest/platform/internal/payments"
	"github.com/meridianinvest/platform/internal/repositories"
	"github.com/meridianinvest/platform/internal/services"
	"github.com/meridianinvest/platform/pkg/logger"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func newTestAudit() *logger.AuditLogger {
	return logger.NewAuditLogger(newTestLogger())
}

// mockEventStore keeps security events in memory and can be told to fail
type mockEventStore struct {
	events    []*models.SecurityEvent
	createErr error
}

func (m *mockEventStore) Create(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.events = append(m.events, event)
	return event, nil
}

func (m *mockEventStore) CountByUserAndType(ctx context.Context, userID uuid.UUID, eventType string, since time.Time) (int, error) {
	count := 0
	for _, e := range m.events {
		if e.UserID != nil && *e.UserID == userID && e.EventType == eventType && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *mockEventStore) HasEscalationSince(ctx context.Context, userID uuid.UUID, originalType string, since time.Time) (bool, error) {
	for _, e := range m.events {
		if e.UserID == nil || *e.UserID != userID || e.EventType != models.EventRateLimitExceeded {
			continue
		}
		if orig, ok := e.Details["original_event"].(string); ok && orig == originalType && !e.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// mockAuditStore records audit rows and can be told to fail
type mockAuditStore struct {
	rows      []*models.AuditLog
	createErr error
}

func (m *mockAuditStore) Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.rows = append(m.rows, log)
	return log, nil
}

// mockAlertSender records dispatched alerts and can be told to fail
type mockAlertSender struct {
	alerts  []*models.SecurityEvent
	sendErr error
}

func (m *mockAlertSender) SendSecurityAlert(ctx context.Context, recipient string, event *models.SecurityEvent) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.alerts = append(m.alerts, event)
	return nil
}

// mockSecurityLog records events handed to the pipeline by other services
type mockSecurityLog struct {
	inputs []services.EventInput
}

func (m *mockSecurityLog) LogEvent(ctx context.Context, input services.EventInput) *models.SecurityEvent {
	m.inputs = append(m.inputs, input)
	return &models.SecurityEvent{
		ID:        uuid.New(),
		UserID:    input.UserID,
		EventType: input.EventType,
		Severity:  input.Severity,
		Details:   input.Details,
		CreatedAt: time.Now(),
	}
}

// mockCheckoutStore keeps checkout sessions keyed by intent id
type mockCheckoutStore struct {
	sessions map[string]*models.CheckoutSession
}

func newMockCheckoutStore() *mockCheckoutStore {
	return &mockCheckoutStore{sessions: make(map[string]*models.CheckoutSession)}
}

func (m *mockCheckoutStore) Create(ctx context.Context, session *models.CheckoutSession) (*models.CheckoutSession, error) {
	s := *session
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	m.sessions[s.ProviderIntentID] = &s
	return &s, nil
}

func (m *mockCheckoutStore) GetByIntentID(ctx context.Context, intentID string) (*models.CheckoutSession, error) {
	s, ok := m.sessions[intentID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *mockCheckoutStore) UpdateState(ctx context.Context, intentID string, state models.CheckoutState, failureMessage *string) error {
	s, ok := m.sessions[intentID]
	if !ok {
		return models.ErrNotFound
	}
	s.State = state
	s.FailureMessage = failureMessage
	s.UpdatedAt = time.Now()
	return nil
}

func (m *mockCheckoutStore) SetVerified(ctx context.Context, intentID string) error {
	s, ok := m.sessions[intentID]
	if !ok {
		return models.ErrNotFound
	}
	s.Verified = true
	return nil
}

// mockVerificationStore keeps hashed codes keyed by intent id
type mockVerificationStore struct {
	hashes  map[string]string
	expires map[string]time.Time
	used    map[string]bool
}

func newMockVerificationStore() *mockVerificationStore {
	return &mockVerificationStore{
		hashes:  make(map[string]string),
		expires: make(map[string]time.Time),
		used:    make(map[string]bool),
	}
}

func (m *mockVerificationStore) Create(ctx context.Context, intentID, codeHash string, expiresAt time.Time) error {
	m.hashes[intentID] = codeHash
	m.expires[intentID] = expiresAt
	m.used[intentID] = false
	return nil
}

func (m *mockVerificationStore) Consume(ctx context.Context, intentID, codeHash string) error {
	hash, ok := m.hashes[intentID]
	if !ok || hash != codeHash || m.used[intentID] || time.Now().After(m.expires[intentID]) {
		return models.ErrVerificationInvalid
	}
	m.used[intentID] = true
	return nil
}

// mockProductStore serves a fixed catalog
type mockProductStore struct {
	products map[string]*models.Product
}

func (m *mockProductStore) GetByID(ctx context.Context, id string) (*models.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return p, nil
}

// mockCustomerStore keeps users keyed by id
type mockCustomerStore struct {
	users map[uuid.UUID]*models.User
}

func (m *mockCustomerStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *mockCustomerStore) SetCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error {
	u, ok := m.users[userID]
	if !ok {
		return models.ErrNotFound
	}
	u.CustomerID = &customerID
	return nil
}

// mockEmailService records sent codes
type mockEmailService struct {
	codes   map[string]string // email -> last code
	sendErr error
}

func newMockEmailService() *mockEmailService {
	return &mockEmailService{codes: make(map[string]string)}
}

func (m *mockEmailService) SendVerificationCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.codes[email] = code
	return nil
}

func (m *mockEmailService) SendSecurityAlert(ctx context.Context, recipient string, event *models.SecurityEvent) error {
	return m.sendErr
}

// mockProvider implements payments.Provider in memory
type mockProvider struct {
	nextIntent int
	intents    map[string]*models.PaymentIntent
	confirmErr error
}

func newMockProvider() *mockProvider {
	return &mockProvider{intents: make(map[string]*models.PaymentIntent)}
}

func (m *mockProvider) FindOrCreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (*models.Customer, error) {
	return &models.Customer{ID: "cus_test_1", Email: email, Name: name}, nil
}

func (m *mockProvider) CreateIntent(ctx context.Context, params payments.CreateIntentParams) (*models.PaymentIntent, error) {
	m.nextIntent++
	intent := &models.PaymentIntent{
		ID:           fmt.Sprintf("pi_test_%d", m.nextIntent),
		ClientSecret: fmt.Sprintf("pi_test_%d_secret", m.nextIntent),
		Amount:       params.Amount,
		Currency:     params.Currency,
		Status:       payments.IntentStatusRequiresPaymentMethod,
		CustomerID:   params.CustomerID,
	}
	m.intents[intent.ID] = intent
	return intent, nil
}

func (m *mockProvider) ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (*models.PaymentIntent, error) {
	if m.confirmErr != nil {
		return nil, m.confirmErr
	}
	intent, ok := m.intents[intentID]
	if !ok {
		return nil, errors.New("no such intent")
	}
	intent.Status = payments.IntentStatusSucceeded
	return intent, nil
}

func (m *mockProvider) GetIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	intent, ok := m.intents[intentID]
	if !ok {
		return nil, errors.New("no such intent")
	}
	return intent, nil
}

func (m *mockProvider) ListCardPaymentMethods(ctx context.Context, customerID string) ([]models.PaymentMethod, error) {
	return []models.PaymentMethod{}, nil
}

// mockPurchaseStore records written purchase bookkeeping
type mockPurchaseStore struct {
	payments map[string]*models.Payment
	records  []repositories.PurchaseRecords
	failed   []string
}

func newMockPurchaseStore() *mockPurchaseStore {
	return &mockPurchaseStore{payments: make(map[string]*models.Payment)}
}

func (m *mockPurchaseStore) GetByProviderIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	p, ok := m.payments[intentID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return p, nil
}

func (m *mockPurchaseStore) CreatePurchaseRecords(ctx context.Context, records repositories.PurchaseRecords) error {
	m.records = append(m.records, records)
	m.payments[records.Payment.ProviderIntentID] = records.Payment
	return nil
}

func (m *mockPurchaseStore) MarkFailed(ctx context.Context, intentID string) error {
	p, ok := m.payments[intentID]
	if !ok {
		return models.ErrNotFound
	}
	p.Status = models.PaymentStatusFailed
	m.failed = append(m.failed, intentID)
	return nil
}

// mockVerifier returns a canned event or rejects the signature
type mockVerifier struct {
	event  *payments.Event
	sigErr error
}

func (m *mockVerifier) ParseEvent(payload []byte, signatureHeader string) (*payments.Event, error) {
	if m.sigErr != nil {
		return nil, m.sigErr
	}
	return m.event, nil
}
