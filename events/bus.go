// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

// Package events fans call lifecycle transitions out over watermill, either
// in process or through Redis streams shared by every replica.
package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/munsheeriocod/voi-ai/model"
)

// TopicCallStatus carries a JSON CallRecord after every applied transition
const TopicCallStatus = "call.status"

// Bus publishes and subscribes call events
type Bus struct {
	pub message.Publisher
	sub message.Subscriber
}

// NewInProcess returns a bus backed by a go channel. Events published while
// nobody is subscribed are dropped.
func NewInProcess(logger zerolog.Logger) *Bus {
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, NewWatermillLogger(logger))
	return &Bus{pub: ch, sub: ch}
}

// RedisConfig names the consumer group that shares the stream
type RedisConfig struct {
	ConsumerGroup string
	Consumer      string
}

// NewRedis returns a bus backed by Redis streams
func NewRedis(client redis.UniversalClient, cfg RedisConfig, logger zerolog.Logger) (*Bus, error) {
	wlog := NewWatermillLogger(logger)
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, wlog)
	if err != nil {
		return nil, errors.Wrap(err, "redis stream publisher")
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: cfg.ConsumerGroup,
		Consumer:      cfg.Consumer,
	}, wlog)
	if err != nil {
		_ = pub.Close()
		return nil, errors.Wrap(err, "redis stream subscriber")
	}
	return &Bus{pub: pub, sub: sub}, nil
}

// PublishCall emits rec on TopicCallStatus
func (b *Bus) PublishCall(ctx context.Context, rec model.CallRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal call event")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("call_sid", rec.CallID.String())
	msg.Metadata.Set("status", string(rec.Status))
	msg.SetContext(ctx)
	if err := b.pub.Publish(TopicCallStatus, msg); err != nil {
		return errors.Wrap(err, "publish call event")
	}
	return nil
}

// Subscribe streams call events until ctx is done
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	msgs, err := b.sub.Subscribe(ctx, TopicCallStatus)
	if err != nil {
		return nil, errors.Wrap(err, "subscribe call events")
	}
	return msgs, nil
}

// DecodeCall reads the CallRecord carried by msg
func DecodeCall(msg *message.Message) (model.CallRecord, error) {
	var rec model.CallRecord
	if err := json.Unmarshal(msg.Payload, &rec); err != nil {
		return rec, errors.Wrap(err, "decode call event")
	}
	return rec, nil
}

func (b *Bus) Close() error {
	perr := b.pub.Close()
	serr := b.sub.Close()
	if perr != nil {
		return perr
	}
	return serr
}

// LogTerminal consumes call events and logs every call that reached a final
// status. It returns when ctx is cancelled or the subscription closes.
func LogTerminal(ctx context.Context, bus *Bus) error {
	msgs, err := bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	logger := zerolog.Ctx(ctx)
	for msg := range msgs {
		rec, err := DecodeCall(msg)
		if err != nil {
			logger.Error().Err(err).Str("message_uuid", msg.UUID).Msg("dropping malformed call event")
			msg.Ack()
			continue
		}
		if rec.Status.IsTerminal() {
			logger.Info().
				Str("call_sid", rec.CallID.String()).
				Str("status", string(rec.Status)).
				Int("duration", rec.Duration).
				Str("destination", rec.DestinationNumber).
				Msg("call finished")
		}
		msg.Ack()
	}
	return nil
}
