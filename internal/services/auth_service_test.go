package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianinvest/platform/internal/auth"
	"github.com/meridianinvest/platform/internal/models"
	"github.com/meridianinvest/platform/internal/ratelimit"
	"github.com/meridianinvest/platform/internal/services"
	"github.com/meridianinvest/platform/pkg/security"
)

// mockUserStore keeps accounts keyed by email
type mockUserStore struct {
	byEmail map[string]*models.User
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{byEmail: make(map[string]*models.User)}
}

func (m *mockUserStore) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if _, ok := m.byEmail[user.Email]; ok {
		return nil, models.ErrConflict
	}
	u := *user
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	m.byEmail[u.Email] = &u
	return &u, nil
}

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, ok := m.byEmail[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	return u, nil
}

func (m *mockUserStore) seed(t *testing.T, email, password string) *models.User {
	t.Helper()
	hash, err := security.HashPassword(password)
	require.NoError(t, err)
	u := &models.User{ID: uuid.New(), Email: email, PasswordHash: hash, Name: "Seeded User"}
	m.byEmail[email] = u
	return u
}

func newAuthFixture(t *testing.T) (*services.AuthService, *mockUserStore, *mockSecurityLog) {
	t.Helper()
	users := newMockUserStore()
	sec := &mockSecurityLog{}
	tokens := auth.NewTokenManager("unit-test-jwt-secret-0123456789", time.Hour)
	limiters := ratelimit.NewRegistry(ratelimit.DefaultRules())
	svc := services.NewAuthService(users, tokens, limiters, sec, newTestLogger())
	return svc, users, sec
}

func TestAuthServiceRegister_CreatesAccount(t *testing.T) {
	svc, users, _ := newAuthFixture(t)

	user, err := svc.Register(context.Background(), "New.Investor@Example.com", "Str0ng&Secure!Pass", "Ada", "203.0.113.7", "go-test")

	require.NoError(t, err)
	assert.Equal(t, "new.investor@example.com", user.Email)
	assert.NotEmpty(t, user.PasswordHash)
	assert.Contains(t, users.byEmail, "new.investor@example.com")
}

func TestAuthServiceRegister_RejectsWeakPassword(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	_, err := svc.Register(context.Background(), "a@example.com", "short", "Ada", "", "")
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = svc.Register(context.Background(), "a@example.com", "Password123!ExtraLong", "Ada", "", "")
	assert.ErrorIs(t, err, models.ErrBadRequest, "common substrings are rejected")
}

func TestAuthServiceRegister_RejectsInvalidEmail(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	_, err := svc.Register(context.Background(), "not an email", "Str0ng&Secure!Pass", "Ada", "", "")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestAuthServiceRegister_DuplicateEmail(t *testing.T) {
	svc, users, _ := newAuthFixture(t)
	users.seed(t, "taken@example.com", "Str0ng&Secure!Pass")

	_, err := svc.Register(context.Background(), "taken@example.com", "Str0ng&Secure!Pass", "Ada", "", "")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestAuthServiceLogin_Success(t *testing.T) {
	svc, users, sec := newAuthFixture(t)
	seeded := users.seed(t, "investor@example.com", "Str0ng&Secure!Pass")

	result, err := svc.Login(context.Background(), "investor@example.com", "Str0ng&Secure!Pass", "203.0.113.7", "go-test")

	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, seeded.ID, result.User.ID)

	require.NotEmpty(t, sec.inputs)
	assert.Equal(t, models.EventLoginAttempt, sec.inputs[len(sec.inputs)-1].EventType)
}

func TestAuthServiceLogin_WrongPasswordLogsFailedLogin(t *testing.T) {
	svc, users, sec := newAuthFixture(t)
	users.seed(t, "investor@example.com", "Str0ng&Secure!Pass")

	_, err := svc.Login(context.Background(), "investor@example.com", "wrong-password", "203.0.113.7", "go-test")

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	require.NotEmpty(t, sec.inputs)
	last := sec.inputs[len(sec.inputs)-1]
	assert.Equal(t, models.EventFailedLogin, last.EventType)
	assert.Equal(t, models.SeverityMedium, last.Severity)
}

func TestAuthServiceLogin_UnknownEmailIndistinguishable(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), "nobody@example.com", "whatever-password", "", "")

	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestAuthServiceLogin_RateLimitedAfterFiveAttempts(t *testing.T) {
	svc, users, _ := newAuthFixture(t)
	users.seed(t, "investor@example.com", "Str0ng&Secure!Pass")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Login(ctx, "investor@example.com", "wrong-password", "", "")
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	}

	// Sixth attempt is blocked even with the right password.
	_, err := svc.Login(ctx, "investor@example.com", "Str0ng&Secure!Pass", "", "")
	require.ErrorIs(t, err, models.ErrRateLimitExceeded)

	var rateErr *services.RateLimitedError
	require.ErrorAs(t, err, &rateErr)
	assert.Greater(t, rateErr.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, rateErr.RetryAfter, 15*time.Minute)
}

func TestAuthServiceLogin_SuccessResetsWindow(t *testing.T) {
	svc, users, _ := newAuthFixture(t)
	users.seed(t, "investor@example.com", "Str0ng&Secure!Pass")
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := svc.Login(ctx, "investor@example.com", "wrong-password", "", "")
		require.ErrorIs(t, err, models.ErrUnauthorized)
	}

	_, err := svc.Login(ctx, "investor@example.com", "Str0ng&Secure!Pass", "", "")
	require.NoError(t, err)

	// The clean login cleared the counter: more room to fail again.
	for i := 0; i < 5; i++ {
		_, err := svc.Login(ctx, "investor@example.com", "wrong-password", "", "")
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	}
}

func TestAuthServiceLogin_LimiterIsPerAccount(t *testing.T) {
	svc, users, _ := newAuthFixture(t)
	users.seed(t, "alice@example.com", "Str0ng&Secure!Pass")
	users.seed(t, "bob@example.com", "Str0ng&Secure!Pass")
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, _ = svc.Login(ctx, "alice@example.com", "wrong-password", "", "")
	}

	_, err := svc.Login(ctx, "bob@example.com", "Str0ng&Secure!Pass", "", "")
	assert.NoError(t, err, "one account's lockout must not affect another")
}
