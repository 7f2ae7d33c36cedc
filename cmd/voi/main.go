// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/munsheeriocod/voi-ai/config"
	"github.com/munsheeriocod/voi-ai/logging"
)

type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:           "voi",
		Short:         "Voice feedback and sales calls over Twilio",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			if flags.logLevel != "" {
				loaded.Logging.Level = flags.logLevel
			}
			if flags.logFormat != "" {
				loaded.Logging.Format = flags.logFormat
			}
			if _, err := logging.Setup(loaded.Logging.Level, loaded.Logging.Format); err != nil {
				return err
			}
			*cfg = loaded
			return nil
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML config file (environment variables override it)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "trace, debug, info, warn or error")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "console or json")

	root.AddCommand(
		newServeCommand(cfg),
		newCallCommand(cfg),
		newMigrateCommand(cfg),
		newSimulateCommand(cfg),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("voi failed")
		stop()
		os.Exit(1)
	}
}
