// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

// Package dialer places outbound sales calls through the Twilio REST API and
// records them as initiated.
package dialer

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go/client"
	twilioopenapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/munsheeriocod/voi-ai/clock"
	"github.com/munsheeriocod/voi-ai/config"
	"github.com/munsheeriocod/voi-ai/model"
	"github.com/munsheeriocod/voi-ai/session"
	"github.com/munsheeriocod/voi-ai/store"
)

// Paths the initiated call calls back on, relative to the public base URL
const (
	GreetingPath = "/voice/greeting"
	StatusPath   = "/voice/status"
)

// StatusEvents is the full subscription list sent with every call
var StatusEvents = []string{"initiated", "ringing", "answered", "completed"}

// CallCreator is the slice of the Twilio REST client the dialer uses.
// *twilio.RestClient's Api service satisfies it.
type CallCreator interface {
	CreateCall(params *twilioopenapi.CreateCallParams) (*twilioopenapi.ApiV2010Call, error)
}

// Config holds what every outbound call shares
type Config struct {
	// BaseURL is the public https address Twilio calls back on
	BaseURL string
	// From is the provisioned caller id
	From string
	// DefaultCountry applies to contacts without a country
	DefaultCountry string
	// DisableRecording turns off call recording
	DisableRecording bool
}

// Result describes an accepted outbound call
type Result struct {
	CallID      model.SID `json:"sid"`
	Status      string    `json:"status"`
	To          string    `json:"to"`
	GreetingURL string    `json:"webhook_url"`
}

// Initiator places calls
type Initiator struct {
	api      CallCreator
	cfg      Config
	calls    store.CallStore
	contacts store.ContactDirectory
	clock    clock.Clock
}

// Option configures an Initiator
type Option func(*Initiator)

// WithContacts resolves destinations to contacts when the caller passes none
func WithContacts(d store.ContactDirectory) Option {
	return func(i *Initiator) {
		i.contacts = d
	}
}

// WithClock sets the clock used for CreatedAt
func WithClock(c clock.Clock) Option {
	return func(i *Initiator) {
		i.clock = c
	}
}

// New returns an Initiator. It fails when cfg.BaseURL is not a public https
// URL.
func New(api CallCreator, cfg Config, calls store.CallStore, opts ...Option) (*Initiator, error) {
	if api == nil {
		return nil, errors.New("call creator is required")
	}
	u, err := config.ValidatePublicURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	cfg.BaseURL = u.String()
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("from number is required")
	}

	i := &Initiator{
		api:   api,
		cfg:   cfg,
		calls: calls,
		clock: clock.NewAutoClock(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Initiate calls destination. contact may be nil, in which case the contact
// directory (if any) is consulted by phone number.
func (i *Initiator) Initiate(ctx context.Context, destination string, contact *model.Contact) (*Result, error) {
	logger := zerolog.Ctx(ctx)
	if strings.TrimSpace(destination) == "" {
		return nil, errors.New("destination number is required")
	}

	if contact == nil && i.contacts != nil {
		c, err := i.contacts.ContactByPhone(ctx, destination)
		switch {
		case err == nil:
			contact = &c
		case errors.Is(err, store.ErrNotFound):
		default:
			logger.Warn().Err(err).Msg("contact lookup failed, calling without contact")
		}
	}

	country := i.cfg.DefaultCountry
	name := ""
	if contact != nil {
		if contact.Country != "" {
			country = contact.Country
		}
		name = strings.TrimSpace(contact.Name)
	}
	to := NormalizeNumber(destination, country)
	greeting := session.URL(i.cfg.BaseURL, GreetingPath, session.New(name))

	params := &twilioopenapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(i.cfg.From)
	params.SetUrl(greeting)
	params.SetMethod("POST")
	params.SetStatusCallback(strings.TrimRight(i.cfg.BaseURL, "/") + StatusPath)
	params.SetStatusCallbackEvent(StatusEvents)
	params.SetStatusCallbackMethod("POST")
	params.SetRecord(!i.cfg.DisableRecording)

	logger.Info().Str("to", to).Str("url", greeting).Msg("placing outbound call")
	call, err := i.api.CreateCall(params)
	if err != nil {
		var restErr *client.TwilioRestError
		if errors.As(err, &restErr) {
			logger.Error().Int("twilio_code", restErr.Code).Str("to", to).Msg(restErr.Message)
			return nil, errors.Wrapf(err, "create call to %s (twilio %d)", to, restErr.Code)
		}
		logger.Error().Err(err).Str("to", to).Msg("create call failed")
		return nil, errors.Wrapf(err, "create call to %s", to)
	}
	if call == nil || call.Sid == nil || *call.Sid == "" {
		return nil, errors.Errorf("create call to %s: no call sid returned", to)
	}

	res := &Result{
		CallID:      model.SID(*call.Sid),
		Status:      string(model.CallInitiated),
		To:          to,
		GreetingURL: greeting,
	}
	if call.Status != nil && *call.Status != "" {
		res.Status = *call.Status
	}

	if i.calls != nil {
		rec := model.CallRecord{
			CallID:            res.CallID,
			DestinationNumber: to,
			Status:            model.CallInitiated,
			CreatedAt:         i.clock.Now(),
		}
		if contact != nil {
			rec.CustomerReference = contact.ID
		}
		// the call is already ringing; a lost record only costs lifecycle tracking
		if _, err := i.calls.CreateCall(ctx, rec); err != nil {
			logger.Error().Err(err).Str("call_sid", res.CallID.String()).Msg("persisting initiated call failed")
		}
	}

	logger.Info().Str("call_sid", res.CallID.String()).Str("to", to).Msg("outbound call created")
	return res, nil
}
