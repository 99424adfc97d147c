package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"CommentInbox/internal/config"
	"CommentInbox/internal/ports"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	credentialsTable = "page_credentials"
	activeSlot       = 1
)

//go:embed migrations/*.sql
var migrations embed.FS

// CredentialStore persists the selected page id and its access token in one row.
type CredentialStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	logger  *slog.Logger
}

var _ ports.CredentialStore = (*CredentialStore)(nil)

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*CredentialStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "credentials", "driver", cfg.Driver)

	builder := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	switch cfg.Driver {
	case DriverSQLite:
		if err := ensureDir(cfg.DSN); err != nil {
			return nil, err
		}
	case DriverPostgres:
		builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrateUp(db, cfg.Driver); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Debug("credential store ready")

	return &CredentialStore{db: db, builder: builder, logger: logger}, nil
}

func ensureDir(dsn string) error {
	dir := filepath.Dir(dsn)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create database directory %s: %w", dir, err)
	}
	return nil
}

func migrateUp(db *sql.DB, driver string) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	var target database.Driver
	switch driver {
	case DriverPostgres:
		target, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		target, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	}
	if err != nil {
		return fmt.Errorf("init migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, driver, target)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// PageID returns the stored page id, or "" when nothing was selected.
func (s *CredentialStore) PageID(ctx context.Context) (string, error) {
	return s.column(ctx, "page_id")
}

// PageToken returns the stored page access token, or "" after logout.
func (s *CredentialStore) PageToken(ctx context.Context) (string, error) {
	return s.column(ctx, "page_token")
}

func (s *CredentialStore) column(ctx context.Context, name string) (string, error) {
	query, args, err := s.builder.
		Select(name).
		From(credentialsTable).
		Where(sq.Eq{"slot": activeSlot}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build select: %w", err)
	}

	var value string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query %s: %w", name, err)
	}
	return value, nil
}

// SavePageData replaces the stored page id and token.
func (s *CredentialStore) SavePageData(ctx context.Context, pageID, token string) error {
	query, args, err := s.builder.
		Insert(credentialsTable).
		Columns("slot", "page_id", "page_token").
		Values(activeSlot, pageID, token).
		Suffix("ON CONFLICT (slot) DO UPDATE SET page_id = excluded.page_id, page_token = excluded.page_token, updated_at = CURRENT_TIMESTAMP").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save page data: %w", err)
	}
	s.logger.Info("page selected", "page_id", pageID)
	return nil
}

// ClearToken forgets the selected page and its token.
func (s *CredentialStore) ClearToken(ctx context.Context) error {
	query, args, err := s.builder.
		Delete(credentialsTable).
		Where(sq.Eq{"slot": activeSlot}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	s.logger.Info("page credentials cleared")
	return nil
}

// Close releases the database handle.
func (s *CredentialStore) Close() error {
	return s.db.Close()
}
