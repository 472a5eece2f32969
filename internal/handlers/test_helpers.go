package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/meridianinvest/platform/internal/auth"
	"github.com/meridianinvest/platform/internal/models"
	"github.com/meridianinvest/platform/internal/services"
	pkghttp "github.com/meridianinvest/platform/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds session claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID uuid.UUID, email string) *http.Request {
	claims := &auth.SessionClaims{
		UserID: userID.String(),
		Email:  email,
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc    func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.LoginResult, error)
	RegisterFunc func(ctx context.Context, email, password, name, ipAddress, userAgent string) (*models.User, error)
}

func (m *MockAuthService) Login(ctx context.Context, email, password, ipAddress, userAgent string) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, email, password, ipAddress, userAgent)
}

func (m *MockAuthService) Register(ctx context.Context, email, password, name, ipAddress, userAgent string) (*models.User, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, email, password, name, ipAddress, userAgent)
}

// MockPaymentService implements PaymentServiceInterface for testing
type MockPaymentService struct {
	CreateIntentFunc       func(ctx context.Context, userID uuid.UUID, productID, ipAddress string) (*services.IntentResponse, error)
	RecordCardEnteredFunc  func(ctx context.Context, userID uuid.UUID, intentID string) error
	VerifyCheckoutFunc     func(ctx context.Context, userID uuid.UUID, intentID, code string) error
	ConfirmFunc            func(ctx context.Context, userID uuid.UUID, intentID, paymentMethodID string) (*models.PaymentIntent, error)
	CreateCustomerFunc     func(ctx context.Context, userID uuid.UUID) (*models.Customer, error)
	ListPaymentMethodsFunc func(ctx context.Context, userID uuid.UUID) ([]models.PaymentMethod, error)
}

func (m *MockPaymentService) CreateIntent(ctx context.Context, userID uuid.UUID, productID, ipAddress string) (*services.IntentResponse, error) {
	if m.CreateIntentFunc == nil {
		return nil, models.ErrProviderConfig
	}
	return m.CreateIntentFunc(ctx, userID, productID, ipAddress)
}

func (m *MockPaymentService) RecordCardEntered(ctx context.Context, userID uuid.UUID, intentID string) error {
	if m.RecordCardEnteredFunc == nil {
		return nil
	}
	return m.RecordCardEnteredFunc(ctx, userID, intentID)
}

func (m *MockPaymentService) VerifyCheckout(ctx context.Context, userID uuid.UUID, intentID, code string) error {
	if m.VerifyCheckoutFunc == nil {
		return models.ErrVerificationInvalid
	}
	return m.VerifyCheckoutFunc(ctx, userID, intentID, code)
}

func (m *MockPaymentService) Confirm(ctx context.Context, userID uuid.UUID, intentID, paymentMethodID string) (*models.PaymentIntent, error) {
	if m.ConfirmFunc == nil {
		return nil, models.ErrIntentNotFound
	}
	return m.ConfirmFunc(ctx, userID, intentID, paymentMethodID)
}

func (m *MockPaymentService) CreateCustomer(ctx context.Context, userID uuid.UUID) (*models.Customer, error) {
	if m.CreateCustomerFunc == nil {
		return nil, models.ErrProviderConfig
	}
	return m.CreateCustomerFunc(ctx, userID)
}

func (m *MockPaymentService) ListPaymentMethods(ctx context.Context, userID uuid.UUID) ([]models.PaymentMethod, error) {
	if m.ListPaymentMethodsFunc == nil {
		return []models.PaymentMethod{}, nil
	}
	return m.ListPaymentMethodsFunc(ctx, userID)
}

// MockSecurityPipeline implements SecurityPipeline for testing
type MockSecurityPipeline struct {
	LogEventFunc     func(ctx context.Context, input services.EventInput) *models.SecurityEvent
	RecentEventsFunc func() []*models.SecurityEvent
}

func (m *MockSecurityPipeline) LogEvent(ctx context.Context, input services.EventInput) *models.SecurityEvent {
	if m.LogEventFunc == nil {
		return &models.SecurityEvent{ID: uuid.New(), EventType: input.EventType, Severity: input.Severity}
	}
	return m.LogEventFunc(ctx, input)
}

func (m *MockSecurityPipeline) RecentEvents() []*models.SecurityEvent {
	if m.RecentEventsFunc == nil {
		return []*models.SecurityEvent{}
	}
	return m.RecentEventsFunc()
}

// MockWebhookProcessor implements WebhookProcessor for testing
type MockWebhookProcessor struct {
	HandleDeliveryFunc func(ctx context.Context, payload []byte, signatureHeader string) error
}

func (m *MockWebhookProcessor) HandleDelivery(ctx context.Context, payload []byte, signatureHeader string) error {
	if m.HandleDeliveryFunc == nil {
		return nil
	}
	return m.HandleDeliveryFunc(ctx, payload, signatureHeader)
}
