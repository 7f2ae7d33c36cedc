// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package simulate_test

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twilio/twilio-go/client"

	"github.com/munsheeriocod/voi-ai/dialer"
	"github.com/munsheeriocod/voi-ai/model"
	"github.com/munsheeriocod/voi-ai/simulate"
)

func TestOutboundCallEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	carrier := simulate.NewCarrier(h.runner(), []string{"Honestly this is terrible", "billing", ""})

	d, err := dialer.New(carrier, dialer.Config{BaseURL: publicURL, From: "+15550001111", DefaultCountry: "usa"}, h.mem,
		dialer.WithClock(h.clock),
		dialer.WithContacts(h.mem),
	)
	require.NoError(t, err)

	res, err := d.Initiate(ctx, "4155550100", &model.Contact{Name: "Dana", Country: "usa"})
	require.NoError(t, err)
	assert.Equal(t, "+14155550100", res.To)
	assert.Equal(t, "queued", res.Status)

	transcripts, err := carrier.Connect(ctx)
	require.NoError(t, err)
	require.Len(t, transcripts, 1)
	tr := transcripts[0]
	assert.Equal(t, res.CallID, tr.CallSID)

	heard := tr.Heard()
	require.Len(t, heard, 4)
	assert.True(t, strings.HasPrefix(heard[0], "Hey Dana,"), heard[0])
	assert.Contains(t, heard[1], "I understand you're having some issues")
	assert.Contains(t, heard[2], "30%")
	assert.Contains(t, heard[3], "Have a great day")
	assert.True(t, tr.HungUp)

	rec, err := h.mem.GetCall(ctx, res.CallID)
	require.NoError(t, err)
	assert.Equal(t, model.CallCompleted, rec.Status)
	assert.Equal(t, 15, rec.Duration)
}

func TestCarrierRejectsBadNumber(t *testing.T) {
	h := newHarness(t)
	carrier := simulate.NewCarrier(h.runner(), nil)
	d, err := dialer.New(carrier, dialer.Config{BaseURL: publicURL, From: "+15550001111"}, h.mem)
	require.NoError(t, err)

	_, err = d.Initiate(context.Background(), "12345", nil)
	require.Error(t, err)
	var restErr *client.TwilioRestError
	require.True(t, errors.As(err, &restErr))
	assert.Equal(t, 21211, restErr.Code)

	transcripts, err := carrier.Connect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, transcripts)
}
