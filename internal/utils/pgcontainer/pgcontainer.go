package pgcontainer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"github.com/talx-hub/credit-ledger/internal/model"
)

const (
	pgImage      = "postgres"
	pgTag        = "16-alpine"
	pgUser       = "tester"
	pgPassword   = "tester"
	pgDB         = "ledger_test"
	startTimeout = 60 * time.Second
)

type PGContainer struct {
	log      *slog.Logger
	pool     *dockertest.Pool
	resource *dockertest.Resource
	dsn      string
}

func New(log *slog.Logger) *PGContainer {
	return &PGContainer{log: log}
}

func (c *PGContainer) GetDSN() string {
	return c.dsn
}

func (c *PGContainer) RunContainer() error {
	pool, err := dockertest.NewPool("")
	if err != nil {
		return fmt.Errorf("failed to construct docker pool: %w", err)
	}
	if err = pool.Client.Ping(); err != nil {
		return fmt.Errorf("failed to connect to docker: %w", err)
	}
	c.pool = pool

	resource, err := pool.RunWithOptions(
		&dockertest.RunOptions{
			Repository: pgImage,
			Tag:        pgTag,
			Env: []string{
				"POSTGRES_USER=" + pgUser,
				"POSTGRES_PASSWORD=" + pgPassword,
				"POSTGRES_DB=" + pgDB,
				"listen_addresses = '*'",
			},
		},
		func(config *docker.HostConfig) {
			config.AutoRemove = true
			config.RestartPolicy = docker.RestartPolicy{Name: "no"}
		})
	if err != nil {
		return fmt.Errorf("failed to start postgres container: %w", err)
	}
	c.resource = resource

	hostAndPort := resource.GetHostPort("5432/tcp")
	c.dsn = fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		pgUser, pgPassword, hostAndPort, pgDB)

	c.pool.MaxWait = startTimeout
	if err = pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), model.DefaultQueryTimeout)
		defer cancel()

		conn, err := pgx.Connect(ctx, c.dsn)
		if err != nil {
			return fmt.Errorf("postgres not ready: %w", err)
		}
		defer func() { _ = conn.Close(ctx) }()
		return conn.Ping(ctx)
	}); err != nil {
		return fmt.Errorf("failed to await postgres readiness: %w", err)
	}

	c.log.LogAttrs(context.TODO(),
		slog.LevelInfo,
		"test postgres container is up",
		slog.String("dsn", c.dsn),
	)
	return nil
}

func (c *PGContainer) Close() {
	if c.pool == nil || c.resource == nil {
		return
	}
	if err := c.pool.Purge(c.resource); err != nil {
		c.log.LogAttrs(context.TODO(),
			slog.LevelError,
			"failed to purge test postgres container",
			slog.Any(model.KeyLoggerError, err),
		)
	}
}
