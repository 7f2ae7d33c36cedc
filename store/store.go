// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

// Package store persists call records and looks up contacts.
//
// Every backend applies status updates with the same guard: an update lands
// only when the record accepts it (model.CallRecord.Accepts), so duplicated or
// reordered provider callbacks converge on the newest status.
package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/munsheeriocod/voi-ai/model"
)

// ErrNotFound is returned when a call or contact does not exist
var ErrNotFound = errors.New("not found")

// CallStore persists call records
type CallStore interface {
	// CreateCall inserts rec unless a record with the same id exists. It
	// reports whether the record was inserted.
	CreateCall(ctx context.Context, rec model.CallRecord) (bool, error)
	// ApplyStatus applies u when the stored record accepts it and reports
	// whether it did. Unknown calls yield ErrNotFound.
	ApplyStatus(ctx context.Context, u model.StatusUpdate) (bool, error)
	GetCall(ctx context.Context, id model.SID) (model.CallRecord, error)
}

// ContactDirectory resolves a phone number to a known contact
type ContactDirectory interface {
	ContactByPhone(ctx context.Context, phone string) (model.Contact, error)
}

// Store is a complete persistence backend
type Store interface {
	CallStore
	ContactDirectory
	PutContact(ctx context.Context, c model.Contact) error
	Close() error
}

func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
