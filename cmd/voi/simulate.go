// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/munsheeriocod/voi-ai/config"
	"github.com/munsheeriocod/voi-ai/dialog"
	"github.com/munsheeriocod/voi-ai/simulate"
)

func newSimulateCommand(cfg *config.Config) *cobra.Command {
	var (
		target  string
		from    string
		to      string
		script  []string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play a scripted caller against a running service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []simulate.Option{simulate.WithTarget(target)}
			if cfg.Server.ValidateSignatures {
				opts = append(opts, simulate.WithAuthToken(cfg.Twilio.AuthToken))
			}
			runner := simulate.NewRunner(simulate.NewHTTPClient(timeout), cfg.Server.PublicURL, opts...)
			tr, err := runner.Run(cmd.Context(), simulate.Call{
				From:           from,
				To:             to,
				Direction:      "outbound-api",
				URL:            cfg.Server.PublicURL + dialog.GreetingPath,
				StatusCallback: cfg.Server.PublicURL + "/voice/status",
			}, script)
			if tr != nil {
				out := cmd.OutOrStdout()
				for _, e := range tr.Events {
					fmt.Fprintf(out, "%s %-16s %v\n", e.At.Format(time.TimeOnly), e.Kind, e.Detail)
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&target, "target", "http://localhost:8080", "where to send requests addressed to the public URL")
	cmd.Flags().StringVar(&from, "from", "+15550001111", "caller id of the simulated call")
	cmd.Flags().StringVar(&to, "to", "+14155550100", "number being called")
	cmd.Flags().StringArrayVar(&script, "say", nil, "caller answer for the next gather; repeat, empty for silence")
	cmd.Flags().DurationVar(&timeout, "timeout", 20*time.Second, "per request timeout")
	return cmd
}
