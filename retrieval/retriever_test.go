// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package retrieval_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munsheeriocod/voi-ai/model"
	"github.com/munsheeriocod/voi-ai/retrieval"
)

type fakeEmbedder struct {
	err   error
	calls []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeIndex struct {
	matches []retrieval.Match
	err     error
	topK    int
}

func (f *fakeIndex) Query(_ context.Context, _ []float32, topK int) ([]retrieval.Match, error) {
	f.topK = topK
	if f.err != nil {
		return nil, f.err
	}
	if len(f.matches) > topK {
		return f.matches[:topK], nil
	}
	return f.matches, nil
}

func TestRetrieveFiltersAndTruncates(t *testing.T) {
	idx := &fakeIndex{matches: []retrieval.Match{
		{ID: "a", Score: 0.72, Text: "Premium adds bulk SMS."},
		{ID: "b", Score: 0.95, Text: "Premium includes priority support."},
		{ID: "c", Score: 0.7, Text: "exactly at threshold"},
		{ID: "d", Score: 0.81, Text: "Onboarding takes a day."},
		{ID: "e", Score: 0.2, Text: "noise"},
		{ID: "f", Score: 0.99, Text: "beyond 2k"},
	}}
	r := retrieval.NewRetriever(&fakeEmbedder{}, idx)

	items, err := r.Retrieve(context.Background(), "what does premium include", 2)
	require.NoError(t, err)

	assert.Equal(t, 4, idx.topK)
	assert.Equal(t, []model.ContextItem{
		{Text: "Premium includes priority support.", RelevanceScore: float64(float32(0.95))},
		{Text: "Onboarding takes a day.", RelevanceScore: float64(float32(0.81))},
	}, items)
	for _, it := range items {
		assert.Greater(t, it.RelevanceScore, retrieval.RelevanceThreshold)
	}
}

func TestRetrieveNoSurvivors(t *testing.T) {
	idx := &fakeIndex{matches: []retrieval.Match{{ID: "a", Score: 0.4, Text: "weak"}}}
	r := retrieval.NewRetriever(&fakeEmbedder{}, idx)

	items, err := r.Retrieve(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRetrieveErrors(t *testing.T) {
	r := retrieval.NewRetriever(&fakeEmbedder{err: errors.New("rate limited")}, &fakeIndex{})
	_, err := r.Retrieve(context.Background(), "q", 3)
	assert.ErrorContains(t, err, "embed query")

	r = retrieval.NewRetriever(&fakeEmbedder{}, &fakeIndex{err: errors.New("unavailable")})
	_, err = r.Retrieve(context.Background(), "q", 3)
	assert.ErrorContains(t, err, "query index")
}

func TestRetrieveSkipsBlankQuery(t *testing.T) {
	emb := &fakeEmbedder{}
	r := retrieval.NewRetriever(emb, &fakeIndex{})

	items, err := r.Retrieve(context.Background(), "   ", 3)
	require.NoError(t, err)
	assert.Nil(t, items)

	items, err = r.Retrieve(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Nil(t, items)
	assert.Empty(t, emb.calls)
}

func TestOpenAIEmbedder(t *testing.T) {
	var got openai.EmbeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":0,"embedding":[0.25,-0.5,1]}],
			"usage":{"prompt_tokens":3,"total_tokens":3}}`))
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	emb := retrieval.NewOpenAIEmbedder(openai.NewClientWithConfig(cfg), "")

	vec, err := emb.Embed(context.Background(), "how does setup work")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 1}, vec)
	assert.Equal(t, openai.SmallEmbedding3, got.Model)
}
