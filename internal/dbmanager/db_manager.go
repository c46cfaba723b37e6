package dbmanager

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DBManager owns the pgx pool. Setup steps chain and record the first
// failure; check Error() after the chain.
type DBManager struct {
	log  *slog.Logger
	pool *pgxpool.Pool
	dsn  string
	err  error
}

func New(dsn string, log *slog.Logger) *DBManager {
	return &DBManager{
		log: log,
		dsn: dsn,
	}
}

func (m *DBManager) Connect(ctx context.Context) *DBManager {
	if m.err != nil {
		return m
	}

	cfg, err := pgxpool.ParseConfig(m.dsn)
	if err != nil {
		m.err = fmt.Errorf("failed to parse DSN: %w", err)
		return m
	}
	cfg.MinConns = 1
	cfg.MaxConns = 10
	cfg.ConnConfig.Tracer = &queryTracer{m.log}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		m.err = fmt.Errorf("failed to init pgxpool: %w", err)
		return m
	}

	m.pool = pool
	return m
}

func (m *DBManager) ApplyMigrations(_ context.Context) *DBManager {
	if m.err != nil {
		return m
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		m.err = fmt.Errorf("failed to open embedded migrations: %w", err)
		return m
	}

	// the migrate pgx/v5 driver registers itself under the pgx5 scheme
	dsn := m.dsn
	if rest, found := strings.CutPrefix(dsn, "postgres://"); found {
		dsn = "pgx5://" + rest
	} else if rest, found = strings.CutPrefix(dsn, "postgresql://"); found {
		dsn = "pgx5://" + rest
	}

	migrator, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		m.err = fmt.Errorf("failed to construct migrator: %w", err)
		return m
	}
	defer func() {
		srcErr, dbErr := migrator.Close()
		if srcErr != nil || dbErr != nil {
			m.log.LogAttrs(context.TODO(),
				slog.LevelError,
				"failed to close migrator",
				slog.Any("source_error", srcErr),
				slog.Any("db_error", dbErr),
			)
		}
	}()

	if err = migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		m.err = fmt.Errorf("failed to apply migrations: %w", err)
		return m
	}
	return m
}

func (m *DBManager) Ping(ctx context.Context) *DBManager {
	if m.err != nil {
		return m
	}
	if err := m.pool.Ping(ctx); err != nil {
		m.err = fmt.Errorf("failed to ping the DB: %w", err)
	}
	return m
}

// Healthy is the liveness probe: unlike the chainable Ping it does not latch
// a failure into the manager.
func (m *DBManager) Healthy(ctx context.Context) error {
	if m.pool == nil {
		return errors.New("DB is not connected")
	}
	if err := m.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping the DB: %w", err)
	}
	return nil
}

func (m *DBManager) Error() error {
	return m.err
}

func (m *DBManager) GetPool(_ context.Context) (*pgxpool.Pool, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.pool == nil {
		return nil, errors.New("DB is not connected")
	}
	return m.pool, nil
}

func (m *DBManager) Close() {
	if m.pool == nil {
		return
	}

	m.pool.Close()
	m.log.LogAttrs(context.TODO(),
		slog.LevelInfo,
		"connection to DB closed",
	)
}
