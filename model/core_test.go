// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package model

import (
	"testing"
	"time"
)

func TestPhoneKey(t *testing.T) {
	cases := map[string]string{
		"+91 98765-43210":   "9876543210",
		"919876543210":      "9876543210",
		"9876543210":        "9876543210",
		"+1 (415) 555-0100": "4155550100",
		"555-0100":          "5550100",
		"":                  "",
	}
	for in, want := range cases {
		if got := PhoneKey(in); got != want {
			t.Errorf("PhoneKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCallRecordAccepts(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := CallRecord{CallID: "CA1", Status: CallRinging, UpdatedAt: t0}

	cases := []struct {
		name string
		u    StatusUpdate
		want bool
	}{
		{"later", StatusUpdate{Status: CallInitiated, At: t0.Add(time.Second)}, true},
		{"earlier", StatusUpdate{Status: CallCompleted, At: t0.Add(-time.Second)}, false},
		{"replay", StatusUpdate{Status: CallRinging, At: t0}, false},
		{"same instant further along", StatusUpdate{Status: CallInProgress, At: t0}, true},
		{"same instant behind", StatusUpdate{Status: CallInitiated, At: t0}, false},
	}
	for _, tc := range cases {
		if got := rec.Accepts(tc.u); got != tc.want {
			t.Errorf("%s: Accepts = %v, want %v", tc.name, got, tc.want)
		}
	}

	fresh := CallRecord{CallID: "CA2", Status: CallInitiated}
	if !fresh.Accepts(StatusUpdate{Status: CallInitiated, At: t0}) {
		t.Error("a record with no applied events should accept the first one")
	}
}

func TestCallStatusTerminal(t *testing.T) {
	for _, s := range []CallStatus{CallCompleted, CallBusy, CallFailed, CallNoAnswer, CallCanceled} {
		if !s.IsTerminal() || !s.IsKnown() {
			t.Errorf("%s should be a known terminal status", s)
		}
	}
	for _, s := range []CallStatus{CallInitiated, CallRinging, CallInProgress, "queued-by-carrier"} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	if CallStatus("mystery").IsKnown() {
		t.Error("unexpected known status")
	}
}
