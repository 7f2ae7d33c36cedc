// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package model

import (
	"strings"
	"time"
)

// SID is a Twilio-issued resource identifier (CA... for calls)
type SID string

func (s SID) String() string {
	return string(s)
}

// CallStatus is the internal lifecycle state of a call
type CallStatus string

const (
	CallInitiated  CallStatus = "initiated"
	CallRinging    CallStatus = "ringing"
	CallInProgress CallStatus = "in-progress"
	CallCompleted  CallStatus = "completed"
	CallBusy       CallStatus = "busy"
	CallFailed     CallStatus = "failed"
	CallNoAnswer   CallStatus = "no-answer"
	CallCanceled   CallStatus = "canceled"
)

// IsTerminal reports whether no further transitions are expected. Statuses
// outside the known vocabulary are passed through from the provider and are
// never considered terminal.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallCompleted, CallCanceled, CallFailed, CallNoAnswer, CallBusy:
		return true
	default:
		return false
	}
}

// IsKnown reports whether s belongs to the internal vocabulary
func (s CallStatus) IsKnown() bool {
	switch s {
	case CallInitiated, CallRinging, CallInProgress, CallCompleted, CallBusy, CallFailed, CallNoAnswer, CallCanceled:
		return true
	default:
		return false
	}
}

// Rank orders statuses along the call lifecycle. Unknown statuses rank lowest.
func (s CallStatus) Rank() int {
	switch s {
	case CallInitiated:
		return 1
	case CallRinging:
		return 2
	case CallInProgress:
		return 3
	case CallCompleted, CallBusy, CallFailed, CallNoAnswer, CallCanceled:
		return 4
	default:
		return 0
	}
}

// CallRecord is the persisted lifecycle of one call. UpdatedAt is the time of
// the last provider event applied to the record and stays zero until the
// first one arrives; it orders concurrent writers.
type CallRecord struct {
	CallID            SID        `json:"call_id"`
	DestinationNumber string     `json:"destination_number"`
	CustomerReference string     `json:"customer_reference,omitempty"`
	Status            CallStatus `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Duration          int        `json:"duration,omitempty"`
	RecordingURL      string     `json:"recording_url,omitempty"`
	ErrorCode         string     `json:"error_code,omitempty"`
}

// Accepts reports whether u should replace the status currently stored in
// r: a strictly later event wins, and for events stamped in the same instant
// (provider timestamps have one-second resolution) the one further along the
// lifecycle wins. A replayed update is never accepted twice.
func (r CallRecord) Accepts(u StatusUpdate) bool {
	if u.At.After(r.UpdatedAt) {
		return true
	}
	return u.At.Equal(r.UpdatedAt) && u.Status.Rank() > r.Status.Rank()
}

// StatusUpdate is one provider status event applied to a CallRecord
type StatusUpdate struct {
	CallID       SID
	Status       CallStatus
	At           time.Time
	Duration     int
	RecordingURL string
	ErrorCode    string
}

// Contact is a customer known to the (externally managed) contact directory
type Contact struct {
	ID          string `json:"id" dynamodbav:"id"`
	PhoneNumber string `json:"phone_number" dynamodbav:"phone_number"`
	Name        string `json:"name" dynamodbav:"name"`
	Email       string `json:"email,omitempty" dynamodbav:"email,omitempty"`
	Country     string `json:"country,omitempty" dynamodbav:"country,omitempty"`
	Plan        string `json:"plan,omitempty" dynamodbav:"plan,omitempty"`
}

// ContextItem is one retrieved knowledge-base chunk
type ContextItem struct {
	Text           string
	RelevanceScore float64
}

// PhoneKeyDigits is the national number length contacts are keyed on
const PhoneKeyDigits = 10

// PhoneKey reduces a phone number to the national digits used to key
// contacts, so "+91 98765-43210", "919876543210" and "9876543210" resolve to
// the same record.
func PhoneKey(number string) string {
	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > PhoneKeyDigits {
		digits = digits[len(digits)-PhoneKeyDigits:]
	}
	return digits
}
