// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

// Package retrieval finds knowledge-base passages relevant to a caller utterance.
package retrieval

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/munsheeriocod/voi-ai/model"
)

// RelevanceThreshold is the minimum score (exclusive) a match needs to be used
// as grounding context.
const RelevanceThreshold = 0.7

// DefaultTimeout bounds one embed+query round trip
const DefaultTimeout = 5 * time.Second

// Embedder turns text into a vector in the same space the index was built with
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Match is one nearest neighbour returned by an Index
type Match struct {
	ID    string
	Score float32
	Text  string
}

// Index is a vector similarity index
type Index interface {
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
}

// Retriever embeds a query and returns the best scoring passages above
// RelevanceThreshold.
type Retriever struct {
	embedder  Embedder
	index     Index
	timeout   time.Duration
	threshold float64
}

// Option configures a Retriever
type Option func(*Retriever)

// WithTimeout overrides DefaultTimeout
func WithTimeout(d time.Duration) Option {
	return func(r *Retriever) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithThreshold overrides RelevanceThreshold
func WithThreshold(score float64) Option {
	return func(r *Retriever) {
		r.threshold = score
	}
}

func NewRetriever(embedder Embedder, index Index, opts ...Option) *Retriever {
	r := &Retriever{
		embedder:  embedder,
		index:     index,
		timeout:   DefaultTimeout,
		threshold: RelevanceThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns at most k context items, highest relevance first. It asks
// the index for 2k neighbours so that filtering still leaves enough survivors.
// Zero results is a valid answer.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]model.ContextItem, error) {
	if k <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}

	matches, err := r.index.Query(ctx, vec, 2*k)
	if err != nil {
		return nil, errors.Wrap(err, "query index")
	}

	items := make([]model.ContextItem, 0, k)
	for _, m := range matches {
		score := float64(m.Score)
		if score <= r.threshold || strings.TrimSpace(m.Text) == "" {
			continue
		}
		items = append(items, model.ContextItem{Text: m.Text, RelevanceScore: score})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].RelevanceScore > items[j].RelevanceScore
	})
	if len(items) > k {
		items = items[:k]
	}

	zerolog.Ctx(ctx).Debug().
		Int("candidates", len(matches)).
		Int("kept", len(items)).
		Msg("retrieved context")
	return items, nil
}
