package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"logi-track/internal/config"
)

const pgUniqueViolation = "23505"

type PostgresProvider struct {
	*SQLProvider
}

func NewPostgresProvider(cfg *config.Storage) (*PostgresProvider, error) {
	if cfg.Postgres.DSN == "" {
		return nil, errors.New("storage.postgres.dsn is not set")
	}

	provider, err := NewSQLProvider(cfg, "pgx", cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConn > 0 {
		provider.db.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	provider.isUniqueViolation = func(err error) bool {
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
	}

	return &PostgresProvider{SQLProvider: provider}, nil
}
