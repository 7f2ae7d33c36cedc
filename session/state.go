// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

// Package session carries conversation state between Twilio callbacks.
//
// Twilio keeps no memory between webhook invocations, so everything the next
// turn needs is encoded into the query string of the callback URL the current
// turn hands back (Gather action, Redirect target). Decoding never fails:
// missing or garbled fields fall back to the values of a fresh call.
package session

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Branch is the dialogue sub-path picked after the first substantive utterance
type Branch string

const (
	BranchNone            Branch = ""
	BranchFeatureQuery    Branch = "feature-query"
	BranchFavoriteFeature Branch = "favorite-feature"
	BranchConcern         Branch = "concern"
	BranchBusinessNeeds   Branch = "business-needs"
	BranchFinalOffer      Branch = "final-offer"
)

// Query keys
const (
	KeyBranch     = "branch"
	KeyCallerName = "caller_name"
	KeyFirstTurn  = "is_first_response"
	KeyTurn       = "turn"
	KeyReprompts  = "reprompts"

	// accepted on decode only, written by older deployments
	legacyKeyBranch     = "context"
	legacyKeyCallerName = "customer_name"
)

var legacyBranches = map[string]Branch{
	"feature_choice":   BranchFeatureQuery,
	"favorite_feature": BranchFavoriteFeature,
	"specific_concern": BranchConcern,
	"business_needs":   BranchBusinessNeeds,
	"final_offer":      BranchFinalOffer,
}

// ParseBranch maps a wire value onto a Branch. Unknown values yield BranchNone.
func ParseBranch(s string) Branch {
	s = strings.TrimSpace(strings.ToLower(s))
	switch b := Branch(s); b {
	case BranchFeatureQuery, BranchFavoriteFeature, BranchConcern, BranchBusinessNeeds, BranchFinalOffer:
		return b
	}
	if b, ok := legacyBranches[s]; ok {
		return b
	}
	return BranchNone
}

// State is the minimal discriminator a turn needs to resume the conversation
type State struct {
	Branch     Branch
	CallerName string
	FirstTurn  bool
	// Turn counts substantive caller utterances handled so far
	Turn int
	// Reprompts counts consecutive "didn't catch that" prompts
	Reprompts int
}

// New returns the state of a call that has not heard from the caller yet
func New(callerName string) State {
	return State{CallerName: callerName, FirstTurn: true}
}

// Advance returns the state for the turn after a substantive utterance
func (s State) Advance(branch Branch) State {
	return State{
		Branch:     branch,
		CallerName: s.CallerName,
		FirstTurn:  false,
		Turn:       s.Turn + 1,
	}
}

// Reprompt returns the state after asking the caller to repeat themselves
func (s State) Reprompt() State {
	s.Reprompts++
	return s
}

// FinalOffer returns the state that lands a reply in the final-offer branch
func (s State) FinalOffer() State {
	s.Branch = BranchFinalOffer
	s.FirstTurn = false
	s.Reprompts = 0
	return s
}

// Encode writes the state as query values. Zero-valued optional fields are omitted.
func Encode(s State) url.Values {
	v := url.Values{}
	v.Set(KeyFirstTurn, strconv.FormatBool(s.FirstTurn))
	if s.Branch != BranchNone {
		v.Set(KeyBranch, string(s.Branch))
	}
	if s.CallerName != "" {
		v.Set(KeyCallerName, s.CallerName)
	}
	if s.Turn > 0 {
		v.Set(KeyTurn, strconv.Itoa(s.Turn))
	}
	if s.Reprompts > 0 {
		v.Set(KeyReprompts, strconv.Itoa(s.Reprompts))
	}
	return v
}

// Query returns the encoded query string
func (s State) Query() string {
	return Encode(s).Encode()
}

// Decode reads state from query values, substituting defaults for anything
// missing or malformed.
func Decode(q url.Values) State {
	s := State{FirstTurn: true}

	if raw, ok := lookup(q, KeyFirstTurn); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(raw)); err == nil {
			s.FirstTurn = b
		}
	}

	if raw, ok := lookup(q, KeyBranch); ok {
		s.Branch = ParseBranch(raw)
	} else if raw, ok := lookup(q, legacyKeyBranch); ok {
		s.Branch = ParseBranch(raw)
	}

	if raw, ok := lookup(q, KeyCallerName); ok {
		s.CallerName = raw
	} else if raw, ok := lookup(q, legacyKeyCallerName); ok {
		s.CallerName = raw
	}

	s.Turn = nonNegative(q, KeyTurn)
	s.Reprompts = nonNegative(q, KeyReprompts)
	return s
}

// FromRequest decodes the state carried on an inbound callback URL
func FromRequest(r *http.Request) State {
	if r == nil || r.URL == nil {
		return Decode(nil)
	}
	return Decode(r.URL.Query())
}

// URL joins base and path and appends the encoded state
func URL(base, path string, s State) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/") + "?" + s.Query()
}

func lookup(q url.Values, key string) (string, bool) {
	if q == nil {
		return "", false
	}
	vs, ok := q[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

func nonNegative(q url.Values, key string) int {
	raw, ok := lookup(q, key)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
