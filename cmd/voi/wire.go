// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package main

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"github.com/twilio/twilio-go"

	"github.com/munsheeriocod/voi-ai/config"
	"github.com/munsheeriocod/voi-ai/dialer"
	"github.com/munsheeriocod/voi-ai/events"
	"github.com/munsheeriocod/voi-ai/speech"
	"github.com/munsheeriocod/voi-ai/store"
)

func openStore(ctx context.Context, cfg config.Store) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		return store.OpenSQLite(ctx, cfg.DSN)
	case "postgres":
		return store.OpenPostgres(ctx, cfg.DSN)
	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "load aws config")
		}
		return store.NewDynamoDB(dynamodb.NewFromConfig(awsCfg), cfg.CallsTable, cfg.ContactsTable), nil
	default:
		return nil, errors.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func newRedis(cfg config.Redis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func newClips(ctx context.Context, cfg config.Config, rdb redis.UniversalClient) (speech.ClipStore, error) {
	switch cfg.Speech.Clips {
	case "memory":
		return speech.NewMemoryClips(cfg.Server.PublicURL, 0), nil
	case "redis":
		return speech.NewRedisClips(rdb, cfg.Server.PublicURL, cfg.Speech.ClipTTL), nil
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "load aws config")
		}
		return speech.NewS3Clips(s3.NewFromConfig(awsCfg), cfg.Speech.S3Bucket, cfg.Speech.S3Prefix, cfg.Speech.ClipTTL), nil
	default:
		return nil, errors.Errorf("unknown clip store %q", cfg.Speech.Clips)
	}
}

func newGateway(cfg config.Config, clips speech.ClipStore) *speech.Gateway {
	var synth speech.Synthesizer
	if cfg.ElevenLabs.APIKey != "" {
		synth = speech.NewElevenLabs(cfg.ElevenLabs.APIKey).WithModel(cfg.ElevenLabs.ModelID)
	} else {
		log.Warn().Msg("no elevenlabs key, every turn uses the native voice")
	}
	return speech.NewGateway(synth, clips,
		speech.WithVoice(cfg.ElevenLabs.VoiceID),
		speech.WithSynthesisTimeout(cfg.Speech.SynthesisTimeout),
		speech.WithPhraseCacheTTL(cfg.Speech.ClipTTL/2),
	)
}

func newOpenAI(cfg config.OpenAI) *openai.Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(oc)
}

func newBus(cfg config.Events, rdb redis.UniversalClient) (*events.Bus, error) {
	if cfg.Backend == "redis" {
		return events.NewRedis(rdb, events.RedisConfig{
			ConsumerGroup: cfg.ConsumerGroup,
			Consumer:      cfg.Consumer,
		}, log.Logger)
	}
	return events.NewInProcess(log.Logger), nil
}

func newInitiator(cfg config.Config, st store.Store) (*dialer.Initiator, error) {
	tc := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.Twilio.AccountSID,
		Password: cfg.Twilio.AuthToken,
	})
	return dialer.New(tc.Api, dialer.Config{
		BaseURL:        cfg.Server.PublicURL,
		From:           cfg.Twilio.FromNumber,
		DefaultCountry: cfg.Twilio.DefaultCountry,
	}, st, dialer.WithContacts(st))
}

func closeQuietly(name string, c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Str("component", name).Msg("close failed")
	}
}
