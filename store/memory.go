// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package store

import (
	"context"
	"sync"

	"github.com/munsheeriocod/voi-ai/model"
)

// Memory is an in-process Store for development and tests
type Memory struct {
	mu       sync.Mutex
	calls    map[model.SID]model.CallRecord
	contacts map[string]model.Contact
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		calls:    make(map[model.SID]model.CallRecord),
		contacts: make(map[string]model.Contact),
	}
}

func (m *Memory) CreateCall(_ context.Context, rec model.CallRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.calls[rec.CallID]; ok {
		return false, nil
	}
	m.calls[rec.CallID] = rec
	return true, nil
}

func (m *Memory) ApplyStatus(_ context.Context, u model.StatusUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.calls[u.CallID]
	if !ok {
		return false, ErrNotFound
	}
	if !rec.Accepts(u) {
		return false, nil
	}
	rec.Status = u.Status
	rec.UpdatedAt = u.At
	if u.Duration > 0 {
		rec.Duration = u.Duration
	}
	if u.RecordingURL != "" {
		rec.RecordingURL = u.RecordingURL
	}
	if u.ErrorCode != "" {
		rec.ErrorCode = u.ErrorCode
	}
	m.calls[u.CallID] = rec
	return true, nil
}

func (m *Memory) GetCall(_ context.Context, id model.SID) (model.CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.calls[id]
	if !ok {
		return model.CallRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) PutContact(_ context.Context, c model.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[model.PhoneKey(c.PhoneNumber)] = c
	return nil
}

func (m *Memory) ContactByPhone(_ context.Context, phone string) (model.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[model.PhoneKey(phone)]
	if !ok {
		return model.Contact{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) Close() error {
	return nil
}
