package integration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/meridianinvest/platform/internal/database"
	"github.com/meridianinvest/platform/internal/models"
	"github.com/meridianinvest/platform/internal/repositories"
	"github.com/meridianinvest/platform/pkg/security"
)

// TestDB manages PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("meridian"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         &database.DB{Pool: pool},
	}, nil
}

// runMigrations executes all goose migrations
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir, err := filepath.Abs("../../migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}

	goose.SetLogger(log.New(io.Discard, "", 0))

	// Goose needs a database/sql connection; use the pgx stdlib adapter
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"verification_codes",
		"checkout_sessions",
		"transactions",
		"investments",
		"payments",
		"audit_logs",
		"security_events",
		"products",
		"users",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// InitializeRepositories creates all repository instances from the database wrapper
func InitializeRepositories(db *database.DB) (
	*repositories.UserRepository,
	*repositories.ProductRepository,
	*repositories.SecurityEventRepository,
	*repositories.AuditLogRepository,
	*repositories.CheckoutRepository,
	*repositories.VerificationRepository,
	*repositories.PaymentRepository,
) {
	return repositories.NewUserRepository(db),
		repositories.NewProductRepository(db),
		repositories.NewSecurityEventRepository(db),
		repositories.NewAuditLogRepository(db),
		repositories.NewCheckoutRepository(db),
		repositories.NewVerificationRepository(db),
		repositories.NewPaymentRepository(db)
}

// SeedUser inserts a test user with hashed password
func SeedUser(ctx context.Context, pool *pgxpool.Pool, email, password string) (*models.User, error) {
	hashedPassword, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO users (email, password_hash, name)
		VALUES ($1, $2, $3)
		RETURNING id, email, password_hash, name, customer_id, created_at, updated_at
	`

	var user models.User
	err = pool.QueryRow(ctx, query, email, hashedPassword, "Test User").Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name,
		&user.CustomerID, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return &user, nil
}

// SeedProduct inserts a catalog product
func SeedProduct(ctx context.Context, pool *pgxpool.Pool, id, name string, price float64, active bool) (*models.Product, error) {
	query := `
		INSERT INTO products (id, name, description, price, currency, active)
		VALUES ($1, $2, $3, $4, 'usd', $5)
		RETURNING id, name, description, price, currency, active, created_at
	`

	var product models.Product
	err := pool.QueryRow(ctx, query, id, name, name+" package", price, active).Scan(
		&product.ID, &product.Name, &product.Description, &product.Price,
		&product.Currency, &product.Active, &product.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert product: %w", err)
	}

	return &product, nil
}

// SeedCheckoutSession inserts a checkout session in the given state
func SeedCheckoutSession(ctx context.Context, pool *pgxpool.Pool, userID uuid.UUID, productID, intentID string, amountCents int64, state models.CheckoutState) (*models.CheckoutSession, error) {
	query := `
		INSERT INTO checkout_sessions (user_id, product_id, provider_intent_id, amount_cents, currency, state, verified)
		VALUES ($1, $2, $3, $4, 'usd', $5, false)
		RETURNING id, user_id, product_id, provider_intent_id, amount_cents, currency,
			state, verified, failure_message, created_at, updated_at
	`

	var s models.CheckoutSession
	err := pool.QueryRow(ctx, query, userID, productID, intentID, amountCents, state).Scan(
		&s.ID, &s.UserID, &s.ProductID, &s.ProviderIntentID, &s.AmountCents,
		&s.Currency, &s.State, &s.Verified, &s.FailureMessage, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert checkout session: %w", err)
	}

	return &s, nil
}

// sha256Hash computes SHA256 hash of input string
func sha256Hash(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}
