// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package main

import (
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/munsheeriocod/voi-ai/compose"
	"github.com/munsheeriocod/voi-ai/config"
	"github.com/munsheeriocod/voi-ai/dialog"
	"github.com/munsheeriocod/voi-ai/events"
	"github.com/munsheeriocod/voi-ai/lifecycle"
	"github.com/munsheeriocod/voi-ai/retrieval"
	"github.com/munsheeriocod/voi-ai/server"
)

func newServeCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the Twilio voice webhooks and the call API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, *cfg)
		},
	}
}

func serve(cmd *cobra.Command, cfg config.Config) error {
	ctx := cmd.Context()
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeQuietly("store", st)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = newRedis(cfg.Redis)
		defer closeQuietly("redis", rdb)
	}

	clips, err := newClips(ctx, cfg, rdb)
	if err != nil {
		return err
	}
	gateway := newGateway(cfg, clips)

	oa := newOpenAI(cfg.OpenAI)
	index, err := retrieval.NewPineconeIndex(ctx, retrieval.PineconeConfig{
		APIKey:    cfg.Pinecone.APIKey,
		Host:      cfg.Pinecone.IndexHost,
		Name:      cfg.Pinecone.IndexName,
		Namespace: cfg.Pinecone.Namespace,
	})
	if err != nil {
		return err
	}
	defer closeQuietly("pinecone", index)
	retriever := retrieval.NewRetriever(
		retrieval.NewOpenAIEmbedder(oa, cfg.OpenAI.EmbeddingModel),
		index,
		retrieval.WithTimeout(cfg.Dialog.RetrievalTimeout),
	)
	composer := compose.NewComposer(
		compose.NewOpenAICompleter(oa, cfg.OpenAI.ChatModel),
		compose.WithCompany(cfg.Dialog.Company),
		compose.WithSampling(cfg.OpenAI.MaxTokens, cfg.OpenAI.Temperature),
		compose.WithTimeout(cfg.Dialog.ComposeTimeout),
	)

	bus, err := newBus(cfg.Events, rdb)
	if err != nil {
		return err
	}
	defer closeQuietly("events", bus)
	tracker := lifecycle.NewTracker(st, lifecycle.WithPublisher(bus))

	initiator, err := newInitiator(cfg, st)
	if err != nil {
		return err
	}

	orch := dialog.NewOrchestrator(composer,
		dialog.WithRetriever(retriever),
		dialog.WithVoice(gateway),
		dialog.WithContacts(st),
		dialog.WithBaseURL(cfg.Server.PublicURL),
		dialog.WithPolicy(dialogPolicy(cfg)),
	)
	srv := server.New(server.Config{
		PublicURL:          cfg.Server.PublicURL,
		AuthToken:          cfg.Twilio.AuthToken,
		ValidateSignatures: cfg.Server.ValidateSignatures,
		APIToken:           cfg.Server.APIToken,
	}, orch,
		server.WithTracker(tracker),
		server.WithInitiator(initiator),
		server.WithClips(clips),
		server.WithLogger(log.Logger),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownGrace)
	})
	g.Go(func() error {
		return events.LogTerminal(gctx, bus)
	})
	if cfg.Speech.Prewarm {
		g.Go(func() error {
			gateway.Prewarm(gctx, dialog.FixedPhrases(cfg.Dialog.Company))
			return nil
		})
	}
	return g.Wait()
}

// dialogPolicy maps the dialog config onto a Policy. A configured zero
// reprompt bound disables reprompts.
func dialogPolicy(cfg config.Config) dialog.Policy {
	reprompts := cfg.Dialog.MaxReprompts
	if reprompts == 0 {
		reprompts = dialog.NoReprompts
	}
	return dialog.Policy{
		Company:      cfg.Dialog.Company,
		MaxReprompts: reprompts,
		MaxTurns:     cfg.Dialog.MaxTurns,
		ContextK:     cfg.Dialog.ContextK,
		NativeVoice:  cfg.Speech.NativeVoice,
		Language:     cfg.Speech.Language,
	}
}
