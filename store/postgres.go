// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

// OpenPostgres connects a pgx pool, migrates, and serves queries through it
func OpenPostgres(ctx context.Context, dsn string) (*SQL, error) {
	if dsn == "" {
		return nil, errors.New("postgres store: empty dsn")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := Migrate(ctx, db, goose.DialectPostgres); err != nil {
		_ = db.Close()
		pool.Close()
		return nil, err
	}
	return &SQL{
		db:       db,
		numbered: true,
		close: func() error {
			err := db.Close()
			pool.Close()
			return err
		},
	}, nil
}
