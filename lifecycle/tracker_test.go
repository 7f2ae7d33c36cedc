// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package lifecycle_test

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munsheeriocod/voi-ai/clock"
	"github.com/munsheeriocod/voi-ai/lifecycle"
	"github.com/munsheeriocod/voi-ai/model"
	"github.com/munsheeriocod/voi-ai/store"
)

type recordingPublisher struct {
	mu   sync.Mutex
	recs []model.CallRecord
}

func (p *recordingPublisher) PublishCall(_ context.Context, rec model.CallRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
	return nil
}

func TestMapStatus(t *testing.T) {
	cases := map[string]model.CallStatus{
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
		"Completed":   model.CallCompleted,
		"on-hold":     model.CallStatus("on-hold"),
	}
	for in, want := range cases {
		assert.Equal(t, want, lifecycle.MapStatus(in), in)
	}
}

func newTracker(t *testing.T) (*lifecycle.Tracker, *store.Memory, *recordingPublisher, *clock.ManualClock) {
	t.Helper()
	mem := store.NewMemory()
	pub := &recordingPublisher{}
	clk := clock.NewManualClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	_, err := mem.CreateCall(context.Background(), model.CallRecord{
		CallID:    "CA1",
		Status:    model.CallInitiated,
		CreatedAt: clk.Now(),
	})
	require.NoError(t, err)
	return lifecycle.NewTracker(mem, lifecycle.WithPublisher(pub), lifecycle.WithClock(clk)), mem, pub, clk
}

func TestRecordStatusIdempotent(t *testing.T) {
	tr, mem, pub, clk := newTracker(t)
	ctx := context.Background()

	u := model.StatusUpdate{CallID: "CA1", Status: model.CallCompleted, At: clk.Now().Add(time.Minute), Duration: 42}
	out, err := tr.RecordStatus(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Applied, out)

	out, err = tr.RecordStatus(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Stale, out)

	rec, err := mem.GetCall(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, model.CallCompleted, rec.Status)
	require.Len(t, pub.recs, 1)
	assert.Equal(t, model.CallCompleted, pub.recs[0].Status)
}

func TestRecordStatusMonotonic(t *testing.T) {
	tr, mem, _, clk := newTracker(t)
	ctx := context.Background()

	late := model.StatusUpdate{CallID: "CA1", Status: model.CallCompleted, At: clk.Now().Add(10 * time.Second)}
	early := model.StatusUpdate{CallID: "CA1", Status: model.CallRinging, At: clk.Now().Add(2 * time.Second)}

	_, err := tr.RecordStatus(ctx, late)
	require.NoError(t, err)
	out, err := tr.RecordStatus(ctx, early)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Stale, out)

	rec, err := mem.GetCall(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, model.CallCompleted, rec.Status)
}

func TestRecordStatusUnknownCall(t *testing.T) {
	tr, _, pub, _ := newTracker(t)
	out, err := tr.RecordStatus(context.Background(), model.StatusUpdate{CallID: "CA-nope", Status: model.CallRinging})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.NotFound, out)
	assert.Empty(t, pub.recs)
}

func TestRecordStatusUsesClockWhenUnstamped(t *testing.T) {
	tr, mem, _, clk := newTracker(t)
	ctx := context.Background()
	clk.Advance(3 * time.Second)

	out, err := tr.RecordStatus(ctx, model.StatusUpdate{CallID: "CA1", Status: model.CallRinging})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Applied, out)

	rec, err := mem.GetCall(ctx, "CA1")
	require.NoError(t, err)
	assert.True(t, rec.UpdatedAt.Equal(clk.Now()))
}

func TestParseCallback(t *testing.T) {
	form := url.Values{
		"CallSid":      {"CA123"},
		"CallStatus":   {"completed"},
		"CallDuration": {"61"},
		"Timestamp":    {"Sat, 01 Mar 2025 12:01:05 +0000"},
		"RecordingUrl": {"https://api.twilio.com/rec/RE9"},
	}
	u, err := lifecycle.ParseCallback(form)
	require.NoError(t, err)
	assert.Equal(t, model.SID("CA123"), u.CallID)
	assert.Equal(t, model.CallCompleted, u.Status)
	assert.Equal(t, 61, u.Duration)
	assert.Equal(t, "https://api.twilio.com/rec/RE9", u.RecordingURL)
	assert.True(t, u.At.Equal(time.Date(2025, 3, 1, 12, 1, 5, 0, time.UTC)))

	u, err = lifecycle.ParseCallback(url.Values{"CallSid": {"CA1"}, "CallStatus": {"ringing"}, "Timestamp": {"garbage"}})
	require.NoError(t, err)
	assert.True(t, u.At.IsZero())

	_, err = lifecycle.ParseCallback(url.Values{"CallStatus": {"ringing"}})
	assert.Error(t, err)
}
