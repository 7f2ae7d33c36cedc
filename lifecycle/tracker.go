// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

// Package lifecycle records provider status callbacks against call records.
package lifecycle

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/munsheeriocod/voi-ai/clock"
	"github.com/munsheeriocod/voi-ai/model"
	"github.com/munsheeriocod/voi-ai/store"
)

// Outcome describes what a status callback did to the stored record
type Outcome int

const (
	Applied Outcome = iota
	// Stale updates were older than (or a replay of) what is stored
	Stale
	// NotFound updates reference a call this service never recorded
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Stale:
		return "stale"
	case NotFound:
		return "not-found"
	default:
		return "unknown"
	}
}

var statusTable = map[string]model.CallStatus{
	"queued":      model.CallInitiated,
	"initiated":   model.CallInitiated,
	"ringing":     model.CallRinging,
	"answered":    model.CallInProgress,
	"in-progress": model.CallInProgress,
	"completed":   model.CallCompleted,
	"busy":        model.CallBusy,
	"failed":      model.CallFailed,
	"no-answer":   model.CallNoAnswer,
	"canceled":    model.CallCanceled,
	"cancelled":   model.CallCanceled,
}

// MapStatus translates a provider status into the internal vocabulary.
// Statuses outside the table are kept verbatim.
func MapStatus(provider string) model.CallStatus {
	key := strings.ToLower(strings.TrimSpace(provider))
	if s, ok := statusTable[key]; ok {
		return s
	}
	return model.CallStatus(provider)
}

// Publisher is notified of every applied transition
type Publisher interface {
	PublishCall(ctx context.Context, rec model.CallRecord) error
}

// Tracker applies status updates. It is independent of the conversation
// loop and tolerates duplicated and reordered callbacks.
type Tracker struct {
	calls store.CallStore
	pub   Publisher
	clock clock.Clock
}

type Option func(*Tracker)

func WithPublisher(p Publisher) Option {
	return func(t *Tracker) {
		t.pub = p
	}
}

func WithClock(c clock.Clock) Option {
	return func(t *Tracker) {
		t.clock = c
	}
}

func NewTracker(calls store.CallStore, opts ...Option) *Tracker {
	t := &Tracker{calls: calls, clock: clock.NewAutoClock()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordStatus applies u. An update without a timestamp is stamped with the
// tracker's clock. Unknown calls are reported as NotFound, not as an error.
func (t *Tracker) RecordStatus(ctx context.Context, u model.StatusUpdate) (Outcome, error) {
	logger := zerolog.Ctx(ctx).With().
		Str("call_sid", u.CallID.String()).
		Str("status", string(u.Status)).
		Logger()

	if u.CallID == "" {
		return Stale, errors.New("status update without call id")
	}
	if u.At.IsZero() {
		u.At = t.clock.Now()
	}

	applied, err := t.calls.ApplyStatus(ctx, u)
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn().Msg("status callback for unknown call")
		return NotFound, nil
	}
	if err != nil {
		return Stale, errors.Wrapf(err, "apply status to %s", u.CallID)
	}
	if !applied {
		logger.Debug().Time("event_at", u.At).Msg("ignored stale status callback")
		return Stale, nil
	}

	logger.Info().Time("event_at", u.At).Msg("call status updated")
	if t.pub != nil {
		rec, err := t.calls.GetCall(ctx, u.CallID)
		if err != nil {
			logger.Error().Err(err).Msg("reload call for publish")
			return Applied, nil
		}
		if err := t.pub.PublishCall(ctx, rec); err != nil {
			logger.Error().Err(err).Msg("publish call status")
		}
	}
	return Applied, nil
}

var timestampLayouts = []string{time.RFC1123Z, time.RFC1123, time.RFC3339}

// ParseCallback reads a Twilio status callback form. The event time comes
// from Timestamp when present and parseable, else it is left zero.
func ParseCallback(form url.Values) (model.StatusUpdate, error) {
	u := model.StatusUpdate{
		CallID:       model.SID(strings.TrimSpace(form.Get("CallSid"))),
		Status:       MapStatus(form.Get("CallStatus")),
		RecordingURL: strings.TrimSpace(form.Get("RecordingUrl")),
		ErrorCode:    strings.TrimSpace(form.Get("ErrorCode")),
	}
	if u.CallID == "" {
		return u, errors.New("missing CallSid")
	}
	if u.Status == "" {
		return u, errors.New("missing CallStatus")
	}
	if d, err := strconv.Atoi(strings.TrimSpace(form.Get("CallDuration"))); err == nil && d > 0 {
		u.Duration = d
	}
	if ts := strings.TrimSpace(form.Get("Timestamp")); ts != "" {
		for _, layout := range timestampLayouts {
			if at, err := time.Parse(layout, ts); err == nil {
				u.At = at.UTC()
				break
			}
		}
	}
	return u, nil
}
