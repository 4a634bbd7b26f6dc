// Package testutil provides testing utilities for the retail backend
// services: a PostgreSQL testcontainer, sqlmock helpers and fixtures.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// PostgresContainerConfig configures the test PostgreSQL container
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string // Optional: defaults to postgres:15-alpine
}

// DefaultPostgresConfig returns sensible defaults for test containers
func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "retail_test",
		Username: "test",
		Password: "test",
		Image:    "postgres:15-alpine",
	}
}

// NewPostgresContainer creates a new PostgreSQL test container.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    container, err := testutil.NewPostgresContainer(ctx, testutil.DefaultPostgresConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer container.Terminate(ctx)
//
//	    code := m.Run()
//	    os.Exit(code)
//	}
func NewPostgresContainer(ctx context.Context, cfg PostgresContainerConfig) (*PostgresContainer, error) {
	if cfg.Image == "" {
		cfg.Image = "postgres:15-alpine"
	}
	if cfg.Database == "" {
		cfg.Database = "retail_test"
	}
	if cfg.Username == "" {
		cfg.Username = "test"
	}
	if cfg.Password == "" {
		cfg.Password = "test"
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
	}, nil
}

// Connect returns a sqlx.DB connection to the container
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.PostgresContainer.Terminate(ctx)
}

// ApplyInventorySchema creates the inventory ledger schema. Mirrors
// migrations/001_inventory.sql.
func (c *PostgresContainer) ApplyInventorySchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, inventorySchema); err != nil {
		return fmt.Errorf("failed to create inventory schema: %w", err)
	}
	return nil
}

const inventorySchema = `
	CREATE TABLE IF NOT EXISTS products (
		id          BIGSERIAL PRIMARY KEY,
		code        VARCHAR(100) NOT NULL UNIQUE,
		name        VARCHAR(200) NOT NULL,
		unit        VARCHAR(50),
		created_date TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS inventory_accounts (
		id                  BIGSERIAL PRIMARY KEY,
		product_id          BIGINT NOT NULL REFERENCES products(id),
		branch_id           BIGINT,
		warehouse_id        BIGINT,
		on_hand             INTEGER NOT NULL DEFAULT 0,
		reserved            INTEGER NOT NULL DEFAULT 0,
		min_threshold       INTEGER,
		expiry_warning_days INTEGER,
		last_updated        TIMESTAMPTZ NOT NULL DEFAULT NOW(),

		CONSTRAINT chk_account_on_hand_non_negative  CHECK (on_hand >= 0),
		CONSTRAINT chk_account_reserved_non_negative CHECK (reserved >= 0),
		CONSTRAINT chk_account_reserved_within_on_hand CHECK (reserved <= on_hand),
		CONSTRAINT chk_account_location_present CHECK (branch_id IS NOT NULL OR warehouse_id IS NOT NULL)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS uq_inventory_accounts_account_key
		ON inventory_accounts (product_id, COALESCE(branch_id, 0), COALESCE(warehouse_id, 0));

	CREATE TABLE IF NOT EXISTS inventory_lots (
		id           BIGSERIAL PRIMARY KEY,
		product_id   BIGINT NOT NULL REFERENCES products(id),
		branch_id    BIGINT,
		warehouse_id BIGINT,
		lot_code     VARCHAR(50),
		expired_date DATE,
		on_hand      INTEGER NOT NULL DEFAULT 0,
		last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW(),

		CONSTRAINT chk_lot_on_hand_non_negative CHECK (on_hand >= 0),
		CONSTRAINT chk_lot_location_present CHECK (branch_id IS NOT NULL OR warehouse_id IS NOT NULL)
	);

	CREATE INDEX IF NOT EXISTS idx_inventory_lots_expiry
		ON inventory_lots (expired_date) WHERE on_hand > 0;
	CREATE INDEX IF NOT EXISTS idx_inventory_lots_key
		ON inventory_lots (product_id, COALESCE(branch_id, 0), COALESCE(warehouse_id, 0));

	CREATE TABLE IF NOT EXISTS inventory_alerts (
		id           BIGSERIAL PRIMARY KEY,
		alert_type   VARCHAR(50) NOT NULL,
		product_id   BIGINT NOT NULL REFERENCES products(id),
		branch_id    BIGINT,
		warehouse_id BIGINT,
		lot_id       BIGINT REFERENCES inventory_lots(id),
		message      VARCHAR(500) NOT NULL,
		quantity     INTEGER,
		expired_date DATE,
		created_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		is_read      BOOLEAN NOT NULL DEFAULT FALSE,
		resolved_date TIMESTAMPTZ,

		CONSTRAINT chk_alert_type CHECK (alert_type IN ('LOW_STOCK', 'NEAR_EXPIRY', 'EXPIRED'))
	);

	CREATE UNIQUE INDEX IF NOT EXISTS uq_inventory_alerts_open_alert
		ON inventory_alerts (alert_type, product_id, COALESCE(branch_id, 0), COALESCE(warehouse_id, 0))
		WHERE resolved_date IS NULL;

	CREATE INDEX IF NOT EXISTS idx_inventory_alerts_open
		ON inventory_alerts (created_date) WHERE resolved_date IS NULL;

	CREATE TABLE IF NOT EXISTS inventory_audits (
		id          BIGSERIAL PRIMARY KEY,
		branch_id   BIGINT NOT NULL,
		product_id  BIGINT NOT NULL REFERENCES products(id),
		system_qty  INTEGER NOT NULL,
		counted_qty INTEGER NOT NULL,
		scan_time   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		scanned_by  VARCHAR(100)
	);
`
