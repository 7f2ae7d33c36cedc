// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

// Package speech turns reply text into something the caller can hear: a
// synthesized clip when the primary provider cooperates, the telephony
// provider's built-in voice otherwise.
package speech

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultNativeVoice is the Twilio <Say> voice used on fallback
	DefaultNativeVoice = "Polly.Amy"
	DefaultLanguage    = "en-US"
	DefaultTimeout     = 6 * time.Second
)

// Synthesizer converts text to encoded audio
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// IsQuotaError reports whether err looks like exhausted provider quota or credits
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") || strings.Contains(msg, "credits")
}

// Speech is what a turn plays: a clip URL, or text for the native voice when URL is empty
type Speech struct {
	URL  string
	Text string
}

// Native reports whether the telephony provider's own voice must speak Text
func (s Speech) Native() bool {
	return s.URL == ""
}

type cachedClip struct {
	url string
	at  time.Time
}

// Gateway wraps a Synthesizer and a ClipStore. Neither failure ever surfaces
// to the caller; it degrades to native speech.
type Gateway struct {
	synth    Synthesizer
	clips    ClipStore
	voice    string
	timeout  time.Duration
	cacheTTL time.Duration
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cachedClip
}

type GatewayOption func(*Gateway)

func WithVoice(voice string) GatewayOption {
	return func(g *Gateway) {
		g.voice = voice
	}
}

func WithSynthesisTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithPhraseCacheTTL bounds how long a prewarmed clip URL is reused. It must
// stay below the clip store's own retention.
func WithPhraseCacheTTL(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.cacheTTL = d
	}
}

// NewGateway returns a gateway. A nil synth or clips yields native speech only.
func NewGateway(synth Synthesizer, clips ClipStore, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		synth:    synth,
		clips:    clips,
		timeout:  DefaultTimeout,
		cacheTTL: 30 * time.Minute,
		now:      time.Now,
		cache:    make(map[string]cachedClip),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Synthesize returns audio for text, or nil on any failure
func (g *Gateway) Synthesize(ctx context.Context, text string) []byte {
	if g.synth == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	logger := zerolog.Ctx(ctx)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	audio, err := g.synth.Synthesize(ctx, text, g.voice)
	switch {
	case err != nil && IsQuotaError(err):
		logger.Warn().Err(err).Msg("synthesis quota exhausted, using native voice")
		return nil
	case err != nil:
		logger.Error().Err(err).Msg("synthesis failed, using native voice")
		return nil
	case len(audio) == 0:
		logger.Warn().Msg("synthesis returned no audio, using native voice")
		return nil
	}
	return audio
}

// Speak resolves text into a playable clip, falling back to native speech
func (g *Gateway) Speak(ctx context.Context, text string) Speech {
	fallback := Speech{Text: text}
	if g.synth == nil || g.clips == nil {
		return fallback
	}
	if u, ok := g.cached(text); ok {
		return Speech{URL: u, Text: text}
	}

	audio := g.Synthesize(ctx, text)
	if audio == nil {
		return fallback
	}
	u, err := g.clips.Put(ctx, audio)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("storing clip failed, using native voice")
		return fallback
	}
	return Speech{URL: u, Text: text}
}

// Prewarm synthesizes fixed phrases ahead of calls so their turns skip the
// provider round trip. Phrases that fail are simply left uncached. Stores that
// evict keep prewarmed clips pinned for as long as the cache hands them out.
func (g *Gateway) Prewarm(ctx context.Context, phrases []string) {
	if g.synth == nil || g.clips == nil || g.cacheTTL <= 0 {
		return
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for _, p := range phrases {
		p := p
		eg.Go(func() error {
			s := g.Speak(ctx, p)
			if !s.Native() {
				if pinner, ok := g.clips.(Pinner); ok {
					pinner.Pin(s.URL)
				}
				g.remember(p, s.URL)
			}
			return nil
		})
	}
	_ = eg.Wait()
}

func (g *Gateway) cached(text string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.cache[text]
	if !ok {
		return "", false
	}
	if g.now().Sub(c.at) > g.cacheTTL {
		delete(g.cache, text)
		return "", false
	}
	return c.url, true
}

func (g *Gateway) remember(text, url string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache[text] = cachedClip{url: url, at: g.now()}
}
