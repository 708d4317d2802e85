// Package testenv starts throwaway Postgres and Kafka containers for
// integration tests.
package testenv

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/joao-fontenele/shopledger/migrations"
)

// SetupPostgres starts Postgres with the shop schema applied and returns an
// open pool. The container and pool are released when the test ends.
func SetupPostgres(ctx context.Context, t *testing.T) *sql.DB {
	t.Helper()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("shop"),
		postgres.WithUsername("shop"),
		postgres.WithPassword("shop"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	if err := migrations.Up(connStr); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open database connection: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// SetupKafka starts a single-node Kafka and returns its broker addresses.
func SetupKafka(ctx context.Context, t *testing.T) []string {
	t.Helper()

	container, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.8.0",
		kafka.WithClusterID("test-cluster"),
	)
	if err != nil {
		t.Fatalf("failed to start kafka container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	if err != nil {
		t.Fatalf("failed to get kafka brokers: %v", err)
	}

	return brokers
}

// ResetShop empties carts, orders and wishlists and reloads the given
// products, so tests sharing one container start from a known catalog.
func ResetShop(ctx context.Context, t *testing.T, db *sql.DB, products ...Product) {
	t.Helper()

	if _, err := db.ExecContext(ctx, `TRUNCATE support_messages, wishlist_items, order_items, orders, cart_items, carts, products`); err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}

	for _, p := range products {
		_, err := db.ExecContext(ctx, `
			INSERT INTO products (id, name, description, price, discount_percentage, discounted_price, stock)
			VALUES ($1, $2, '', $3, 0, $3, $4)
		`, p.ID, p.Name, p.Price, p.Stock)
		if err != nil {
			t.Fatalf("failed to insert product %s: %v", p.ID, err)
		}
	}
}

// Product is a full-price catalog row for ResetShop.
type Product struct {
	ID    string
	Name  string
	Price string
	Stock int
}
