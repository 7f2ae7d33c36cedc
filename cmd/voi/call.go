// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package main

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/munsheeriocod/voi-ai/config"
	"github.com/munsheeriocod/voi-ai/model"
)

func newCallCommand(cfg *config.Config) *cobra.Command {
	var name, country string
	cmd := &cobra.Command{
		Use:   "call <number>",
		Short: "Place one outbound feedback call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if cfg.Twilio.AccountSID == "" || cfg.Twilio.AuthToken == "" {
				return errors.New("twilio account sid and auth token are required")
			}
			st, err := openStore(ctx, cfg.Store)
			if err != nil {
				return err
			}
			defer closeQuietly("store", st)

			initiator, err := newInitiator(*cfg, st)
			if err != nil {
				return err
			}
			var contact *model.Contact
			if name != "" || country != "" {
				contact = &model.Contact{PhoneNumber: args[0], Name: name, Country: country}
			}
			res, err := initiator.Initiate(ctx, args[0], contact)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name used in the greeting")
	cmd.Flags().StringVar(&country, "country", "", "country for national numbers (india or usa)")
	return cmd
}
