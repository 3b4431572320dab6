package storage

import (
	"context"
	"fmt"

	"github.com/aluiziolira/go-scrape-shop/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createProductsTable = `CREATE TABLE IF NOT EXISTS products (
	title TEXT PRIMARY KEY,
	price DOUBLE PRECISION NOT NULL,
	image_path TEXT NOT NULL DEFAULT '',
	position BIGINT NOT NULL
)`
	selectProducts = `SELECT title, price, image_path FROM products ORDER BY position`
	deleteProducts = `DELETE FROM products`
)

var productColumns = []string{"title", "price", "image_path", "position"}

// pgxConn is the subset of *pgxpool.Pool the store needs.
type pgxConn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// PostgresStore keeps the record set in the products table. Save replaces the
// whole snapshot inside one transaction.
type PostgresStore struct {
	db pgxConn
}

// OpenPostgres connects to dsn and makes sure the products table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(db pgxConn) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the products table when missing.
func (ps *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := ps.db.Exec(ctx, createProductsTable); err != nil {
		return fmt.Errorf("create products table: %w", err)
	}
	return nil
}

// Load reads every stored product in saved order.
func (ps *PostgresStore) Load(ctx context.Context) ([]models.Product, error) {
	rows, err := ps.db.Query(ctx, selectProducts)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Product, error) {
		var p models.Product
		err := row.Scan(&p.Title, &p.Price, &p.ImagePath)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}
	return products, nil
}

// Save replaces the table contents with products.
func (ps *PostgresStore) Save(ctx context.Context, products []models.Product) error {
	tx, err := ps.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if _, err := tx.Exec(ctx, deleteProducts); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("clear products: %w", err)
	}

	if len(products) > 0 {
		rows := make([][]any, 0, len(products))
		for i, p := range products {
			rows = append(rows, []any{p.Title, p.Price, p.ImagePath, int64(i)})
		}
		copied, err := tx.CopyFrom(ctx, pgx.Identifier{"products"}, productColumns, pgx.CopyFromRows(rows))
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("copy products: %w", err)
		}
		if copied != int64(len(products)) {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("copy products: wrote %d of %d rows", copied, len(products))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (ps *PostgresStore) Close() error {
	ps.db.Close()
	return nil
}
