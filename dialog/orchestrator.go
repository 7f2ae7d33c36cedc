// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

// Package dialog is the per-turn state machine of a sales call. Each callback
// from the telephony provider is handled on its own: the conversation state
// arrives encoded in the callback URL and the next state is encoded into the
// URLs of the returned TwiML.
package dialog

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/munsheeriocod/voi-ai/compose"
	"github.com/munsheeriocod/voi-ai/intent"
	"github.com/munsheeriocod/voi-ai/model"
	"github.com/munsheeriocod/voi-ai/session"
	"github.com/munsheeriocod/voi-ai/speech"
	"github.com/munsheeriocod/voi-ai/store"
	"github.com/munsheeriocod/voi-ai/twiml"
)

// Callback paths, relative to the public base URL
const (
	GreetingPath   = "/voice/greeting"
	TurnPath       = "/voice/turn"
	FinalOfferPath = "/voice/final-offer"
)

// Retriever finds knowledge base passages for an utterance
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]model.ContextItem, error)
}

// Composer writes the spoken reply to an utterance
type Composer interface {
	Compose(ctx context.Context, utterance string, items []model.ContextItem, branch session.Branch) string
}

// Voice resolves text into playable audio or native speech
type Voice interface {
	Speak(ctx context.Context, text string) speech.Speech
}

// Policy bounds the conversation
type Policy struct {
	Company string
	// MaxReprompts is how many times an empty turn is answered with a
	// clarifying prompt before moving to the final offer. NoReprompts sends
	// the first empty turn straight to the final offer.
	MaxReprompts int
	// MaxTurns is how many substantive utterances are answered before the
	// final offer
	MaxTurns    int
	ContextK    int
	NativeVoice string
	Language    string
}

// NoReprompts disables clarifying prompts
const NoReprompts = -1

// DefaultPolicy is used for any zero field of a supplied Policy
var DefaultPolicy = Policy{
	Company:      compose.DefaultCompany,
	MaxReprompts: 2,
	MaxTurns:     6,
	ContextK:     3,
	NativeVoice:  speech.DefaultNativeVoice,
	Language:     speech.DefaultLanguage,
}

// GreetingRequest is the entry callback of a call
type GreetingRequest struct {
	State     session.State
	CallSID   string
	From      string
	To        string
	Direction string
}

// TurnRequest is a callback carrying (possibly empty) caller speech
type TurnRequest struct {
	State     session.State
	CallSID   string
	Utterance string
}

// Orchestrator builds the TwiML for every state of the call
type Orchestrator struct {
	composer   Composer
	classifier intent.Classifier
	retriever  Retriever
	voice      Voice
	contacts   store.ContactDirectory
	baseURL    string
	policy     Policy
}

// Option configures the orchestrator
type Option func(*Orchestrator)

func WithClassifier(c intent.Classifier) Option {
	return func(o *Orchestrator) {
		o.classifier = c
	}
}

func WithRetriever(r Retriever) Option {
	return func(o *Orchestrator) {
		o.retriever = r
	}
}

// WithVoice sets the audio gateway. Without one every line uses native speech.
func WithVoice(v Voice) Option {
	return func(o *Orchestrator) {
		o.voice = v
	}
}

func WithContacts(d store.ContactDirectory) Option {
	return func(o *Orchestrator) {
		o.contacts = d
	}
}

// WithBaseURL makes callback URLs absolute. Without it they are root relative.
func WithBaseURL(base string) Option {
	return func(o *Orchestrator) {
		o.baseURL = strings.TrimRight(base, "/")
	}
}

func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) {
		o.policy = mergePolicy(p)
	}
}

// NewOrchestrator returns an orchestrator replying through composer
func NewOrchestrator(composer Composer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		composer:   composer,
		classifier: intent.NewKeywordClassifier(intent.Lexicon{}),
		policy:     DefaultPolicy,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func mergePolicy(p Policy) Policy {
	d := DefaultPolicy
	if p.Company != "" {
		d.Company = p.Company
	}
	if p.MaxReprompts != 0 {
		d.MaxReprompts = max(p.MaxReprompts, 0)
	}
	if p.MaxTurns > 0 {
		d.MaxTurns = p.MaxTurns
	}
	if p.ContextK > 0 {
		d.ContextK = p.ContextK
	}
	if p.NativeVoice != "" {
		d.NativeVoice = p.NativeVoice
	}
	if p.Language != "" {
		d.Language = p.Language
	}
	return d
}

// Greeting opens the call and listens for the first answer
func (o *Orchestrator) Greeting(ctx context.Context, req GreetingRequest) (resp *twiml.Response) {
	st := req.State
	defer o.rescue(ctx, st, &resp)

	if st.CallerName == "" {
		st.CallerName = o.lookupName(ctx, req)
	}
	logger := zerolog.Ctx(ctx)
	logger.Info().Str("call_sid", req.CallSID).Bool("known_caller", st.CallerName != "").Msg("greeting caller")

	next := session.New(st.CallerName)
	return twiml.NewResponse(
		o.gather(ctx, next, greeting(o.policy.Company, st.CallerName)),
		o.redirect(TurnPath, next),
	)
}

// lookupName finds the display name of the other party. A failed lookup
// only costs personalization.
func (o *Orchestrator) lookupName(ctx context.Context, req GreetingRequest) string {
	if o.contacts == nil {
		return ""
	}
	number := req.From
	if strings.HasPrefix(req.Direction, "outbound") {
		number = req.To
	}
	if strings.TrimSpace(number) == "" {
		return ""
	}
	c, err := o.contacts.ContactByPhone(ctx, number)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("contact lookup failed")
		}
		return ""
	}
	return strings.TrimSpace(c.Name)
}

// Turn handles one callback carrying the caller's answer
func (o *Orchestrator) Turn(ctx context.Context, req TurnRequest) (resp *twiml.Response) {
	st := req.State
	defer o.rescue(ctx, st, &resp)

	logger := zerolog.Ctx(ctx).With().
		Str("call_sid", req.CallSID).
		Str("branch", string(st.Branch)).
		Int("turn", st.Turn).
		Logger()
	ctx = logger.WithContext(ctx)

	utterance := strings.TrimSpace(req.Utterance)
	switch {
	case utterance == "":
		return o.noSpeech(ctx, st)
	case st.Branch == session.BranchFinalOffer:
		return o.closeOut(ctx, st, utterance)
	case st.FirstTurn:
		return o.dispatch(ctx, st, utterance)
	case st.Turn >= o.policy.MaxTurns:
		logger.Info().Msg("turn limit reached")
		return o.FinalOffer(ctx, st)
	default:
		return o.continueBranch(ctx, st, utterance)
	}
}

// FinalOffer pitches the time-boxed discount and listens one last time
func (o *Orchestrator) FinalOffer(ctx context.Context, st session.State) (resp *twiml.Response) {
	defer o.rescue(ctx, st, &resp)
	return twiml.NewResponse(
		o.gather(ctx, st.FinalOffer(), finalOffer(st.CallerName)),
		&twiml.Hangup{},
	)
}

func (o *Orchestrator) noSpeech(ctx context.Context, st session.State) *twiml.Response {
	if st.Branch == session.BranchFinalOffer {
		return twiml.NewResponse(
			o.speak(ctx, goodbye(o.policy.Company, st.CallerName)),
			&twiml.Hangup{},
		)
	}
	if st.Reprompts >= o.policy.MaxReprompts {
		zerolog.Ctx(ctx).Info().Int("reprompts", st.Reprompts).Msg("no speech after reprompts")
		return o.FinalOffer(ctx, st)
	}
	next := st.Reprompt()
	return twiml.NewResponse(
		o.gather(ctx, next, clarify(o.policy.Company, st.CallerName)),
		o.redirect(TurnPath, next),
	)
}

func (o *Orchestrator) dispatch(ctx context.Context, st session.State, utterance string) *twiml.Response {
	in := o.classifier.Classify(utterance)
	zerolog.Ctx(ctx).Info().Str("intent", string(in)).Msg("classified first answer")

	var (
		branch session.Branch
		text   string
	)
	switch in {
	case intent.FeatureQuery:
		branch = session.BranchFeatureQuery
		text = o.reply(ctx, utterance, branch)
	case intent.Positive:
		branch = session.BranchFavoriteFeature
		text = question(in, o.policy.Company, st.CallerName)
	case intent.Negative:
		branch = session.BranchConcern
		text = question(in, o.policy.Company, st.CallerName)
	default:
		branch = session.BranchBusinessNeeds
		text = question(in, o.policy.Company, st.CallerName)
	}

	next := st.Advance(branch)
	return twiml.NewResponse(
		o.branchGather(ctx, next, text),
		o.redirect(FinalOfferPath, next),
	)
}

func (o *Orchestrator) continueBranch(ctx context.Context, st session.State, utterance string) *twiml.Response {
	text := o.reply(ctx, utterance, st.Branch) + " " + followUp(st.Branch, st.CallerName)
	next := st.Advance(st.Branch)
	return twiml.NewResponse(
		o.branchGather(ctx, next, text),
		o.redirect(FinalOfferPath, next),
	)
}

func (o *Orchestrator) closeOut(ctx context.Context, st session.State, utterance string) *twiml.Response {
	text := o.reply(ctx, utterance, session.BranchFinalOffer) + " " + closing
	return twiml.NewResponse(
		o.speak(ctx, text),
		&twiml.Hangup{},
	)
}

// reply retrieves context for utterance and composes the answer. Retrieval
// failures leave the composer without context.
func (o *Orchestrator) reply(ctx context.Context, utterance string, branch session.Branch) string {
	var items []model.ContextItem
	if o.retriever != nil {
		var err error
		items, err = o.retriever.Retrieve(ctx, utterance, o.policy.ContextK)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("retrieval failed, replying without context")
			items = nil
		}
	}
	if o.composer == nil {
		return compose.Apology
	}
	return o.composer.Compose(ctx, utterance, items, branch)
}

// rescue turns a panic while building any state into the apology plus the
// final offer gather.
func (o *Orchestrator) rescue(ctx context.Context, st session.State, resp **twiml.Response) {
	r := recover()
	if r == nil {
		return
	}
	zerolog.Ctx(ctx).Error().
		Err(errors.New(fmt.Sprint(r))).
		Str("branch", string(st.Branch)).
		Msg("turn failed, falling back to offer")
	*resp = o.errorResponse(st)
}

// errorResponse uses native speech only; the audio path may be what failed
func (o *Orchestrator) errorResponse(st session.State) *twiml.Response {
	g := o.gatherShell(st.FinalOffer())
	g.Children = []twiml.Node{o.say(errorOffer(st.CallerName))}
	return twiml.NewResponse(g, &twiml.Hangup{})
}

func (o *Orchestrator) gather(ctx context.Context, next session.State, text string) *twiml.Gather {
	g := o.gatherShell(next)
	g.Children = []twiml.Node{o.speak(ctx, text)}
	return g
}

// branchGather lets a silent gather fall through to the redirect after it
func (o *Orchestrator) branchGather(ctx context.Context, next session.State, text string) *twiml.Gather {
	g := o.gather(ctx, next, text)
	g.ActionOnEmptyResult = false
	return g
}

func (o *Orchestrator) gatherShell(next session.State) *twiml.Gather {
	return &twiml.Gather{
		Input:               "speech",
		Action:              session.URL(o.baseURL, TurnPath, next),
		Method:              "POST",
		SpeechTimeout:       "auto",
		SpeechModel:         "phone_call",
		Language:            o.policy.Language,
		Enhanced:            true,
		BargeIn:             true,
		ActionOnEmptyResult: true,
	}
}

func (o *Orchestrator) redirect(path string, next session.State) *twiml.Redirect {
	return &twiml.Redirect{URL: session.URL(o.baseURL, path, next), Method: "POST"}
}

func (o *Orchestrator) speak(ctx context.Context, text string) twiml.Node {
	if o.voice == nil {
		return o.say(text)
	}
	s := o.voice.Speak(ctx, text)
	if s.Native() {
		return o.say(s.Text)
	}
	return &twiml.Play{URL: s.URL}
}

func (o *Orchestrator) say(text string) *twiml.Say {
	return &twiml.Say{Text: text, Voice: o.policy.NativeVoice, Language: o.policy.Language}
}
