package postgres

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

// Migrator applies the embedded schema with goose over a database/sql
// handle borrowed from the pool.
type Migrator struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewMigrator(pool *pgxpool.Pool, logger *slog.Logger) (*Migrator, error) {
	const op = "postgres.NewMigrator"

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("%s: set dialect: %w", op, err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Migrator{
		db:     stdlib.OpenDBFromPool(pool),
		logger: logger,
	}, nil
}

func (m *Migrator) Up(ctx context.Context) error {
	const op = "postgres.Migrator.Up"

	if err := goose.UpContext(ctx, m.db, migrationsDir); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	version, err := goose.GetDBVersionContext(ctx, m.db)
	if err != nil {
		return fmt.Errorf("%s: version: %w", op, err)
	}

	m.logger.Info("migrations applied", "version", version)

	return nil
}

// Close releases the sql.DB wrapper. The pool stays open.
func (m *Migrator) Close() error {
	return m.db.Close()
}

// Migrations exposes the embedded schema files.
func Migrations() fs.FS {
	return migrations
}
