// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

// Package simulate plays the caller's side of a call against the voice
// webhooks: it fetches TwiML, answers each gather from a script, follows
// redirects and reports status callbacks, recording what the caller heard.
package simulate

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/munsheeriocod/voi-ai/clock"
	"github.com/munsheeriocod/voi-ai/model"
	"github.com/munsheeriocod/voi-ai/twiml"
)

// ErrTooManyRequests stops a conversation that keeps redirecting
var ErrTooManyRequests = errors.New("simulated call exceeded its request budget")

const apiVersion = "2010-04-01"

// Call describes the simulated call
type Call struct {
	SID       model.SID
	From      string
	To        string
	Direction string
	// URL is the first TwiML document, usually the greeting
	URL string
	// StatusCallback receives in-progress and completed events when set
	StatusCallback string
}

// Event is one step of the transcript
type Event struct {
	At     time.Time
	Kind   string
	Detail map[string]any
}

// Transcript is what happened on the call
type Transcript struct {
	CallSID  model.SID
	Events   []Event
	Duration time.Duration
	// HungUp is set when the service ended the call with <Hangup>
	HungUp bool
}

// Heard returns every Say text and Play URL in order
func (t *Transcript) Heard() []string {
	var out []string
	for _, e := range t.Events {
		switch e.Kind {
		case "twiml.say":
			out = append(out, e.Detail["text"].(string))
		case "twiml.play":
			out = append(out, e.Detail["url"].(string))
		}
	}
	return out
}

type advancer interface {
	Advance(d time.Duration)
}

type Runner struct {
	client      WebhookClient
	clock       clock.Clock
	publicURL   string
	target      string
	authToken   string
	turnLength  time.Duration
	maxRequests int
}

type Option func(*Runner)

// WithClock sets the clock; a manual clock is advanced by the turn length
// at every gather
func WithClock(c clock.Clock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithTarget sends requests for the public base URL to target instead
func WithTarget(target string) Option {
	return func(r *Runner) {
		r.target = strings.TrimRight(target, "/")
	}
}

// WithAuthToken signs every webhook with X-Twilio-Signature
func WithAuthToken(token string) Option {
	return func(r *Runner) {
		r.authToken = token
	}
}

func WithTurnLength(d time.Duration) Option {
	return func(r *Runner) {
		r.turnLength = d
	}
}

func WithMaxRequests(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxRequests = n
		}
	}
}

// NewRunner creates a runner for a service reachable at publicURL
func NewRunner(client WebhookClient, publicURL string, opts ...Option) *Runner {
	r := &Runner{
		client:      client,
		clock:       clock.NewAutoClock(),
		publicURL:   strings.TrimRight(publicURL, "/"),
		turnLength:  5 * time.Second,
		maxRequests: 32,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run plays script against the call. Each entry answers one gather; an empty
// entry is silence. When the script runs out the caller hangs up.
func (r *Runner) Run(ctx context.Context, call Call, script []string) (*Transcript, error) {
	if call.SID == "" {
		call.SID = model.SID("CA" + strings.ReplaceAll(uuid.NewString(), "-", ""))
	}
	if call.Direction == "" {
		call.Direction = "outbound-api"
	}
	logger := zerolog.Ctx(ctx).With().Str("call_sid", call.SID.String()).Logger()

	t := &Transcript{CallSID: call.SID}
	started := r.clock.Now()
	r.reportStatus(ctx, t, call, "in-progress", started)

	next, form := call.URL, url.Values{}
	var runErr error
	for requests := 0; next != ""; requests++ {
		if requests >= r.maxRequests {
			runErr = ErrTooManyRequests
			break
		}
		resp, err := r.fetch(ctx, t, call, next, form)
		if err != nil {
			runErr = err
			break
		}
		next, form, err = r.execute(ctx, t, resp, &script)
		if err != nil {
			runErr = err
			break
		}
	}

	ended := r.clock.Now()
	t.Duration = ended.Sub(started)
	status := "completed"
	if runErr != nil {
		status = "failed"
		logger.Warn().Err(runErr).Msg("simulated call failed")
	}
	r.reportStatus(ctx, t, call, status, ended)
	return t, runErr
}

// execute walks one TwiML document and returns the next URL to fetch, with
// its extra form fields. An empty URL ends the call.
func (r *Runner) execute(ctx context.Context, t *Transcript, resp *twiml.Response, script *[]string) (string, url.Values, error) {
	for _, node := range resp.Children {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		switch n := node.(type) {
		case *twiml.Say, *twiml.Play, *twiml.Pause:
			if err := r.present(ctx, t, n); err != nil {
				return "", nil, err
			}
		case *twiml.Gather:
			for _, child := range n.Children {
				if err := r.present(ctx, t, child); err != nil {
					return "", nil, err
				}
			}
			r.elapse()
			if len(*script) == 0 {
				r.addEvent(t, "caller.hangup", nil)
				return "", nil, nil
			}
			answer := strings.TrimSpace((*script)[0])
			*script = (*script)[1:]
			if answer == "" {
				r.addEvent(t, "gather.timeout", map[string]any{"action": n.Action})
				if !n.ActionOnEmptyResult {
					continue
				}
				return n.Action, url.Values{}, nil
			}
			r.addEvent(t, "gather.speech", map[string]any{"speech": answer, "action": n.Action})
			return n.Action, url.Values{
				"SpeechResult": {answer},
				"Confidence":   {"0.92"},
			}, nil
		case *twiml.Redirect:
			r.addEvent(t, "twiml.redirect", map[string]any{"url": n.URL})
			return n.URL, url.Values{}, nil
		case *twiml.Hangup:
			r.addEvent(t, "twiml.hangup", nil)
			t.HungUp = true
			return "", nil, nil
		default:
			r.addEvent(t, "twiml.unknown", map[string]any{"type": node})
		}
	}
	// running off the end of a document hangs up
	return "", nil, nil
}

func (r *Runner) present(ctx context.Context, t *Transcript, node twiml.Node) error {
	switch n := node.(type) {
	case *twiml.Say:
		r.addEvent(t, "twiml.say", map[string]any{"text": n.Text, "voice": n.Voice})
	case *twiml.Play:
		r.addEvent(t, "twiml.play", map[string]any{"url": n.URL})
		status, _, err := r.client.GET(ctx, r.rewrite(n.URL))
		if err != nil {
			return errors.Wrapf(err, "fetch play url %s", n.URL)
		}
		if status < 200 || status >= 300 {
			return errors.Errorf("play url %s returned status %d", n.URL, status)
		}
	case *twiml.Pause:
		r.addEvent(t, "twiml.pause", map[string]any{"length": n.Length.Seconds()})
	}
	return nil
}

func (r *Runner) fetch(ctx context.Context, t *Transcript, call Call, target string, extra url.Values) (*twiml.Response, error) {
	form := url.Values{
		"CallSid":    {call.SID.String()},
		"From":       {call.From},
		"To":         {call.To},
		"Direction":  {call.Direction},
		"CallStatus": {"in-progress"},
		"ApiVersion": {apiVersion},
	}
	for k, v := range extra {
		form[k] = v
	}
	r.addEvent(t, "webhook.request", map[string]any{"url": target})

	status, body, err := r.client.POST(ctx, r.rewrite(target), form, r.sign(target, form))
	if err != nil {
		return nil, errors.Wrapf(err, "webhook %s", target)
	}
	if status != http.StatusOK {
		return nil, errors.Errorf("webhook %s returned status %d", target, status)
	}
	resp, err := twiml.Parse(body)
	if err != nil {
		return nil, errors.Wrapf(err, "parse twiml from %s", target)
	}
	return resp, nil
}

func (r *Runner) reportStatus(ctx context.Context, t *Transcript, call Call, status string, at time.Time) {
	if call.StatusCallback == "" {
		return
	}
	form := url.Values{
		"CallSid":    {call.SID.String()},
		"CallStatus": {status},
		"Timestamp":  {at.UTC().Format(time.RFC1123Z)},
		"ApiVersion": {apiVersion},
	}
	if status == "completed" {
		form.Set("CallDuration", strconv.Itoa(int(t.Duration/time.Second)))
	}
	code, _, err := r.client.POST(ctx, r.rewrite(call.StatusCallback), form, r.sign(call.StatusCallback, form))
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("status", status).Msg("status callback failed")
		return
	}
	r.addEvent(t, "status.callback", map[string]any{"status": status, "code": code})
}

// sign computes the X-Twilio-Signature Twilio would send for a form POST
func (r *Runner) sign(target string, form url.Values) http.Header {
	if r.authToken == "" {
		return nil
	}
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, []byte(r.authToken))
	mac.Write([]byte(target))
	for _, k := range keys {
		mac.Write([]byte(k + form.Get(k)))
	}
	h := http.Header{}
	h.Set("X-Twilio-Signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	return h
}

func (r *Runner) rewrite(target string) string {
	if r.target == "" || r.publicURL == "" {
		return target
	}
	if rest, ok := strings.CutPrefix(target, r.publicURL); ok {
		return r.target + rest
	}
	return target
}

func (r *Runner) elapse() {
	if a, ok := r.clock.(advancer); ok {
		a.Advance(r.turnLength)
	}
}

func (r *Runner) addEvent(t *Transcript, kind string, detail map[string]any) {
	t.Events = append(t.Events, Event{At: r.clock.Now(), Kind: kind, Detail: detail})
}
