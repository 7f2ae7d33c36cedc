// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package twiml

import "time"

// Node is the interface for all TwiML AST nodes
type Node interface {
	isNode()
}

// Response is the root TwiML element
type Response struct {
	Children []Node
}

func (Response) isNode() {}

// NewResponse returns a Response holding nodes in order
func NewResponse(nodes ...Node) *Response {
	return &Response{Children: nodes}
}

// Say outputs text-to-speech in the telephony provider's own voice
type Say struct {
	Text     string
	Voice    string
	Language string
	Loop     int
}

func (Say) isNode() {}

// Play plays an audio file
type Play struct {
	URL  string
	Loop int
}

func (Play) isNode() {}

// Pause waits for a specified duration
type Pause struct {
	Length time.Duration
}

func (Pause) isNode() {}

// Gather collects caller input. The sales flow only ever gathers speech.
type Gather struct {
	Input               string // "dtmf", "speech", "dtmf speech"
	Action              string
	Method              string // "POST" or "GET"
	Timeout             string // seconds, default 5
	SpeechTimeout       string // "auto" or seconds
	SpeechModel         string // "phone_call", "default", ...
	Language            string
	Hints               string
	Enhanced            bool
	BargeIn             bool
	ActionOnEmptyResult bool
	Children            []Node // Nested verbs to execute while gathering
}

func (Gather) isNode() {}

// Redirect fetches new TwiML from a URL
type Redirect struct {
	URL    string
	Method string
}

func (Redirect) isNode() {}

// Hangup ends the call
type Hangup struct{}

func (Hangup) isNode() {}
