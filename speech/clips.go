// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package speech

import (
	"context"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrClipNotFound is returned for unknown or expired clips
var ErrClipNotFound = errors.New("clip not found")

// AudioPath is the route prefix clips are served under
const AudioPath = "/audio/"

// ClipStore keeps synthesized audio where the telephony provider can fetch it
type ClipStore interface {
	// Put stores audio and returns the URL Twilio should <Play>
	Put(ctx context.Context, audio []byte) (string, error)
	Get(ctx context.Context, id string) ([]byte, error)
}

// Pinner is a ClipStore that can exempt a clip from eviction
type Pinner interface {
	Pin(url string)
}

func clipURL(baseURL, id string) string {
	return strings.TrimRight(baseURL, "/") + AudioPath + id
}

// MemoryClips holds clips in process. Oldest unpinned clips are evicted past maxClips.
type MemoryClips struct {
	baseURL  string
	maxClips int

	mu    sync.Mutex
	clips map[string][]byte
	order []string
}

var (
	_ ClipStore = (*MemoryClips)(nil)
	_ Pinner    = (*MemoryClips)(nil)
)

func NewMemoryClips(baseURL string, maxClips int) *MemoryClips {
	if maxClips <= 0 {
		maxClips = 512
	}
	return &MemoryClips{
		baseURL:  baseURL,
		maxClips: maxClips,
		clips:    make(map[string][]byte),
	}
}

func (m *MemoryClips) Put(_ context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("empty clip")
	}
	id := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.clips[id] = audio
	m.order = append(m.order, id)
	for len(m.order) > m.maxClips {
		delete(m.clips, m.order[0])
		m.order = m.order[1:]
	}
	return clipURL(m.baseURL, id), nil
}

// Pin keeps the clip behind url until the process exits. Pinned clips do not
// count toward maxClips.
func (m *MemoryClips) Pin(url string) {
	id := path.Base(url)

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, o := range m.order {
		if o == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

func (m *MemoryClips) Get(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	audio, ok := m.clips[id]
	if !ok {
		return nil, ErrClipNotFound
	}
	return audio, nil
}
