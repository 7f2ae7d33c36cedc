// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package simulate

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/twilio/twilio-go/client"
	twilioopenapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/munsheeriocod/voi-ai/model"
)

const (
	errorCodeMissingParameter = 21201
	errorCodeInvalidTo        = 21211
)

// Carrier stands in for the Twilio calls API. CreateCall queues the call and
// Connect answers every queued call with a scripted caller.
type Carrier struct {
	runner *Runner

	mu      sync.Mutex
	script  []string
	scripts map[string][]string
	pending []Call
}

// NewCarrier answers calls with script unless a number has its own
func NewCarrier(runner *Runner, script []string) *Carrier {
	return &Carrier{
		runner:  runner,
		script:  script,
		scripts: make(map[string][]string),
	}
}

// Script sets what the caller at number says
func (c *Carrier) Script(number string, script []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[number] = script
}

func (c *Carrier) CreateCall(params *twilioopenapi.CreateCallParams) (*twilioopenapi.ApiV2010Call, error) {
	if params == nil || params.To == nil || params.Url == nil || params.From == nil {
		return nil, restError(errorCodeMissingParameter, "To, From and Url are required")
	}
	to := strings.TrimSpace(*params.To)
	if !strings.HasPrefix(to, "+") || len(to) < 8 {
		return nil, restError(errorCodeInvalidTo, "The 'To' number "+to+" is not a valid phone number.")
	}

	call := Call{
		SID:       model.SID("CA" + strings.ReplaceAll(uuid.NewString(), "-", "")),
		From:      *params.From,
		To:        to,
		Direction: "outbound-api",
		URL:       *params.Url,
	}
	if params.StatusCallback != nil {
		call.StatusCallback = *params.StatusCallback
	}

	c.mu.Lock()
	c.pending = append(c.pending, call)
	c.mu.Unlock()

	sid, status, direction := call.SID.String(), "queued", call.Direction
	return &twilioopenapi.ApiV2010Call{
		Sid:       &sid,
		Status:    &status,
		To:        &call.To,
		From:      &call.From,
		Direction: &direction,
	}, nil
}

// Connect runs the queued calls in order and returns their transcripts
func (c *Carrier) Connect(ctx context.Context) ([]*Transcript, error) {
	c.mu.Lock()
	calls := c.pending
	c.pending = nil
	c.mu.Unlock()

	out := make([]*Transcript, 0, len(calls))
	for _, call := range calls {
		tr, err := c.runner.Run(ctx, call, c.scriptFor(call.To))
		if tr != nil {
			out = append(out, tr)
		}
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (c *Carrier) scriptFor(number string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	script, ok := c.scripts[number]
	if !ok {
		script = c.script
	}
	return append([]string(nil), script...)
}

func restError(code int, msg string) *client.TwilioRestError {
	return &client.TwilioRestError{
		Code:    code,
		Message: msg,
		Status:  400,
	}
}
