// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package twiml

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestRenderRoundTrip(t *testing.T) {
	resp := NewResponse(
		&Gather{
			Input:               "speech",
			Action:              "https://voice.example.com/voice/turn?branch=concern&caller_name=Ana+Lima&is_first_response=false",
			Method:              "POST",
			SpeechTimeout:       "auto",
			SpeechModel:         "phone_call",
			Language:            "en-US",
			Enhanced:            true,
			BargeIn:             true,
			ActionOnEmptyResult: true,
			Children: []Node{
				&Say{Text: "Tell me more & I'll <help>.", Voice: "Polly.Amy", Language: "en-US"},
			},
		},
		&Pause{Length: 2 * time.Second},
		&Play{URL: "https://voice.example.com/audio/123"},
		&Redirect{URL: "https://voice.example.com/voice/final-offer", Method: "POST"},
		&Hangup{},
	)

	out, err := Render(resp)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if !strings.Contains(string(out), "<Response>") {
		t.Fatalf("Expected a Response document, got %s", out)
	}

	parsed, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse error: %v\n%s", err, out)
	}
	if !reflect.DeepEqual(parsed.Children, resp.Children) {
		t.Errorf("Round trip mismatch\n got: %#v\nwant: %#v", parsed.Children, resp.Children)
	}
}

func TestRenderRejectsNil(t *testing.T) {
	if _, err := Render(nil); err == nil {
		t.Error("Expected error for nil response")
	}
}
