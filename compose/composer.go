// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

// Package compose turns a caller utterance and retrieved context into the
// spoken sales reply.
package compose

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/weaviate/tiktoken-go"

	"github.com/munsheeriocod/voi-ai/model"
	"github.com/munsheeriocod/voi-ai/retrieval"
	"github.com/munsheeriocod/voi-ai/session"
)

const (
	// Disclaimer prefixes replies that had no grounding context
	Disclaimer = "While I don't have specific information about that in our knowledge base, I can tell you that our premium version offers comprehensive solutions for all your business needs. "
	// Apology replaces the reply when the language model is unavailable
	Apology = "I apologize, but I'm having trouble generating a response right now. However, I can tell you about our premium version's features that might help you."
)

const (
	DefaultCompany       = "Easify"
	DefaultMaxTokens     = 150
	DefaultTemperature   = 0.2
	DefaultTimeout       = 8 * time.Second
	DefaultContextBudget = 1500
)

// Completion is one prompt sent to a language model
type Completion struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// Completer produces text for a Completion
type Completer interface {
	Complete(ctx context.Context, c Completion) (string, error)
}

// Composer builds grounded prompts and never fails: model errors collapse to Apology.
type Composer struct {
	completer     Completer
	company       string
	maxTokens     int
	temperature   float32
	timeout       time.Duration
	contextBudget int
	encoder       *tiktoken.Tiktoken
}

type Option func(*Composer)

func WithCompany(name string) Option {
	return func(c *Composer) {
		if name != "" {
			c.company = name
		}
	}
}

func WithSampling(maxTokens int, temperature float32) Option {
	return func(c *Composer) {
		if maxTokens > 0 {
			c.maxTokens = maxTokens
		}
		c.temperature = temperature
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Composer) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithContextBudget caps the tokens spent on context passages. Zero disables the cap.
func WithContextBudget(tokens int) Option {
	return func(c *Composer) {
		c.contextBudget = tokens
	}
}

func NewComposer(completer Completer, opts ...Option) *Composer {
	c := &Composer{
		completer:     completer,
		company:       DefaultCompany,
		maxTokens:     DefaultMaxTokens,
		temperature:   DefaultTemperature,
		timeout:       DefaultTimeout,
		contextBudget: DefaultContextBudget,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.contextBudget > 0 {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Warn().Err(err).Msg("token encoder unavailable, context budget disabled")
		} else {
			c.encoder = enc
		}
	}
	return c
}

// Company is the product name used in prompts
func (c *Composer) Company() string {
	return c.company
}

// Compose returns the reply to speak. Without usable context the reply
// starts with Disclaimer; on model failure it is exactly Apology.
func (c *Composer) Compose(ctx context.Context, utterance string, items []model.ContextItem, branch session.Branch) string {
	logger := zerolog.Ctx(ctx)

	grounded := usable(items)
	grounded = c.trim(grounded)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := c.completer.Complete(ctx, Completion{
		System:      c.systemPrompt(),
		Prompt:      c.userPrompt(utterance, grounded, branch),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		logger.Error().Err(err).Str("branch", string(branch)).Msg("reply generation failed")
		return Apology
	}

	if len(grounded) == 0 {
		return Disclaimer + text
	}
	return text
}

func usable(items []model.ContextItem) []model.ContextItem {
	out := make([]model.ContextItem, 0, len(items))
	for _, it := range items {
		if it.RelevanceScore > retrieval.RelevanceThreshold && strings.TrimSpace(it.Text) != "" {
			out = append(out, it)
		}
	}
	return out
}

// trim drops trailing (least relevant) passages once the token budget is
// spent. A single oversized first passage is cut to fit.
func (c *Composer) trim(items []model.ContextItem) []model.ContextItem {
	if c.encoder == nil || c.contextBudget <= 0 {
		return items
	}
	remaining := c.contextBudget
	out := make([]model.ContextItem, 0, len(items))
	for _, it := range items {
		tokens := c.encoder.Encode(it.Text, nil, nil)
		if len(tokens) <= remaining {
			out = append(out, it)
			remaining -= len(tokens)
			continue
		}
		if len(out) == 0 {
			it.Text = c.encoder.Decode(tokens[:remaining])
			out = append(out, it)
		}
		break
	}
	return out
}

func (c *Composer) systemPrompt() string {
	return fmt.Sprintf("You are a sales-focused assistant for %s, focused on addressing customer concerns while promoting premium features.", c.company)
}

var framing = map[session.Branch]string{
	session.BranchFeatureQuery:    "The caller asked about how something works. Explain it clearly before connecting it to premium.",
	session.BranchFavoriteFeature: "The caller named a feature they like. Show how the premium version takes that feature further.",
	session.BranchConcern:         "The caller described a problem. Acknowledge it and explain how the premium version resolves it.",
	session.BranchBusinessNeeds:   "The caller described what their business needs. Recommend the premium capabilities that match.",
	session.BranchFinalOffer:      "The caller is replying to the 30% discount offer. Answer briefly and warmly, then thank them.",
}

func (c *Composer) userPrompt(utterance string, items []model.ContextItem, branch session.Branch) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a sales-focused assistant for %s. Use the following context to address customer questions and concerns while promoting our premium version.\n", c.company)
	b.WriteString("Always maintain a positive, solution-oriented approach and highlight the value proposition.\n\n")
	if f, ok := framing[branch]; ok {
		b.WriteString(f)
		b.WriteString("\n\n")
	}

	b.WriteString("Context:\n")
	b.WriteString(FormatContext(items))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "User Question: %s\n\n", utterance)
	b.WriteString(`Instructions:
1. If the context contains relevant information, use it to provide a specific answer
2. Always connect the answer to the value of our premium version
3. Address any doubts or concerns using specific information from the context
4. Highlight how premium features solve common problems
5. Keep responses concise and focused on value, two or three spoken sentences
6. Use the exact information from the context when available
7. Always end with a soft call to action about premium features

Answer:`)
	return b.String()
}

// FormatContext renders passages as numbered prompt lines
func FormatContext(items []model.ContextItem) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("Context %d (Relevance: %.2f): %s", i+1, it.RelevanceScore, it.Text)
	}
	return strings.Join(lines, "\n")
}
