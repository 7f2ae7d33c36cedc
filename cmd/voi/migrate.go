// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package main

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/munsheeriocod/voi-ai/config"
	"github.com/munsheeriocod/voi-ai/store"
)

// newMigrateCommand applies the embedded schema; opening a SQL store migrates it
func newMigrateCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the sqlite or postgres store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				st  *store.SQL
				err error
			)
			switch cfg.Store.Driver {
			case "sqlite":
				st, err = store.OpenSQLite(cmd.Context(), cfg.Store.DSN)
			case "postgres":
				st, err = store.OpenPostgres(cmd.Context(), cfg.Store.DSN)
			default:
				return errors.Errorf("store driver %q has no migrations", cfg.Store.Driver)
			}
			if err != nil {
				return err
			}
			log.Info().Str("driver", cfg.Store.Driver).Msg("schema is up to date")
			return st.Close()
		},
	}
}
