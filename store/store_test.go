// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munsheeriocod/voi-ai/model"
	"github.com/munsheeriocod/voi-ai/store"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func backends(t *testing.T) map[string]store.Store {
	t.Helper()
	sqlite, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "voi.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]store.Store{
		"memory":   store.NewMemory(),
		"sqlite":   sqlite,
		"dynamodb": store.NewDynamoDB(newFakeDynamo(), "calls", "contacts"),
	}
}

func newCall(id model.SID) model.CallRecord {
	return model.CallRecord{
		CallID:            id,
		DestinationNumber: "+919876543210",
		CustomerReference: "Priya",
		Status:            model.CallInitiated,
		CreatedAt:         t0,
	}
}

func TestCreateCallIsInsertIfAbsent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			created, err := s.CreateCall(ctx, newCall("CA100"))
			require.NoError(t, err)
			assert.True(t, created)

			dup := newCall("CA100")
			dup.DestinationNumber = "+10000000000"
			created, err = s.CreateCall(ctx, dup)
			require.NoError(t, err)
			assert.False(t, created)

			got, err := s.GetCall(ctx, "CA100")
			require.NoError(t, err)
			assert.Equal(t, newCall("CA100"), got)
		})
	}
}

func TestApplyStatusReplayIsNoop(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.CreateCall(ctx, newCall("CA1"))
			require.NoError(t, err)

			u := model.StatusUpdate{CallID: "CA1", Status: model.CallCompleted, At: t0.Add(30 * time.Second), Duration: 27}
			applied, err := s.ApplyStatus(ctx, u)
			require.NoError(t, err)
			assert.True(t, applied)

			applied, err = s.ApplyStatus(ctx, u)
			require.NoError(t, err)
			assert.False(t, applied)

			got, err := s.GetCall(ctx, "CA1")
			require.NoError(t, err)
			assert.Equal(t, model.CallCompleted, got.Status)
			assert.Equal(t, 27, got.Duration)
			assert.True(t, got.UpdatedAt.Equal(u.At))
		})
	}
}

func TestApplyStatusOrderIndependent(t *testing.T) {
	ringing := model.StatusUpdate{Status: model.CallRinging, At: t0.Add(2 * time.Second)}
	answered := model.StatusUpdate{Status: model.CallInProgress, At: t0.Add(5 * time.Second)}

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			orders := map[model.SID][]model.StatusUpdate{
				"CA-inorder":  {ringing, answered},
				"CA-reversed": {answered, ringing},
			}
			for id, updates := range orders {
				_, err := s.CreateCall(ctx, newCall(id))
				require.NoError(t, err)
				for _, u := range updates {
					u.CallID = id
					_, err := s.ApplyStatus(ctx, u)
					require.NoError(t, err)
				}
				got, err := s.GetCall(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, model.CallInProgress, got.Status, string(id))
			}
		})
	}
}

func TestApplyStatusSameSecondAdvances(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.CreateCall(ctx, newCall("CA2"))
			require.NoError(t, err)

			at := t0.Add(time.Second)
			for _, st := range []model.CallStatus{model.CallInitiated, model.CallRinging, model.CallInitiated} {
				_, err := s.ApplyStatus(ctx, model.StatusUpdate{CallID: "CA2", Status: st, At: at})
				require.NoError(t, err)
			}
			got, err := s.GetCall(ctx, "CA2")
			require.NoError(t, err)
			assert.Equal(t, model.CallRinging, got.Status)
		})
	}
}

func TestApplyStatusMergesExtras(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.CreateCall(ctx, newCall("CA3"))
			require.NoError(t, err)

			_, err = s.ApplyStatus(ctx, model.StatusUpdate{CallID: "CA3", Status: model.CallFailed, At: t0.Add(time.Second), ErrorCode: "13224", RecordingURL: "https://api.twilio.com/rec/RE1"})
			require.NoError(t, err)
			_, err = s.ApplyStatus(ctx, model.StatusUpdate{CallID: "CA3", Status: "carrier-weird", At: t0.Add(2 * time.Second)})
			require.NoError(t, err)

			got, err := s.GetCall(ctx, "CA3")
			require.NoError(t, err)
			assert.Equal(t, model.CallStatus("carrier-weird"), got.Status)
			assert.Equal(t, "13224", got.ErrorCode)
			assert.Equal(t, "https://api.twilio.com/rec/RE1", got.RecordingURL)
		})
	}
}

func TestUnknownCall(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.ApplyStatus(ctx, model.StatusUpdate{CallID: "CA404", Status: model.CallRinging, At: t0})
			assert.ErrorIs(t, err, store.ErrNotFound)

			_, err = s.GetCall(ctx, "CA404")
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestContacts(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := model.Contact{ID: "c1", PhoneNumber: "9876543210", Name: "Priya", Country: "india", Plan: "basic"}
			require.NoError(t, s.PutContact(ctx, c))

			got, err := s.ContactByPhone(ctx, "+91 98765 43210")
			require.NoError(t, err)
			assert.Equal(t, c, got)

			c.Name = "Priya S"
			require.NoError(t, s.PutContact(ctx, c))
			got, err = s.ContactByPhone(ctx, "9876543210")
			require.NoError(t, err)
			assert.Equal(t, "Priya S", got.Name)

			_, err = s.ContactByPhone(ctx, "+15550000000")
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}
