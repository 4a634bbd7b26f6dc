package testutil

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/rsm/retail-backend/pkg/database"
	"github.com/rsm/retail-backend/pkg/logger"
)

var (
	// Global test container (shared across all integration tests)
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// IntegrationTestsEnabled reports whether integration tests should run.
// They need Docker, so they are opt-in via RETAIL_INTEGRATION_TEST=1.
func IntegrationTestsEnabled() bool {
	return os.Getenv("RETAIL_INTEGRATION_TEST") == "1"
}

// SkipUnlessIntegration skips the test unless integration tests are enabled
func SkipUnlessIntegration(t *testing.T) {
	t.Helper()
	if !IntegrationTestsEnabled() {
		t.Skip("integration tests disabled, set RETAIL_INTEGRATION_TEST=1 to run")
	}
}

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Container *PostgresContainer
	RawDB     *sqlx.DB
	DB        *database.DB
	Logger    *logger.Logger
}

// NewIntegrationSuite creates a new integration test suite backed by a
// shared container with the inventory schema applied.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    if !testutil.IntegrationTestsEnabled() {
//	        os.Exit(m.Run())
//	    }
//	    ctx := context.Background()
//	    suite, err := testutil.NewIntegrationSuite(ctx)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    code := m.Run()
//	    testutil.TerminateContainer(ctx)
//	    os.Exit(code)
//	}
func NewIntegrationSuite(ctx context.Context) (*IntegrationSuite, error) {
	container, db, err := getOrCreateContainer(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.New("test", "test")
	wrappedDB, err := database.NewWithDSN(container.DSN, log)
	if err != nil {
		return nil, err
	}

	if err := container.ApplyInventorySchema(ctx, db); err != nil {
		return nil, err
	}

	return &IntegrationSuite{
		Container: container,
		RawDB:     db,
		DB:        wrappedDB,
		Logger:    log,
	}, nil
}

// getOrCreateContainer returns the shared test container
func getOrCreateContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
	})

	return globalContainer, globalDB, containerErr
}

// Reset truncates all inventory tables between tests
func (s *IntegrationSuite) Reset(t *testing.T, ctx context.Context) {
	t.Helper()
	_, err := s.RawDB.ExecContext(ctx, `
		TRUNCATE inventory_audits, inventory_alerts, inventory_lots,
			inventory_accounts, products RESTART IDENTITY CASCADE
	`)
	if err != nil {
		t.Fatalf("failed to reset test database: %v", err)
	}
}

// SeedProduct inserts a product and returns its ID
func (s *IntegrationSuite) SeedProduct(t *testing.T, ctx context.Context, code, name string) int64 {
	t.Helper()
	var id int64
	err := s.RawDB.QueryRowxContext(ctx,
		`INSERT INTO products (code, name) VALUES ($1, $2) RETURNING id`, code, name,
	).Scan(&id)
	if err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	return id
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		globalContainer.Terminate(ctx)
	}
}
