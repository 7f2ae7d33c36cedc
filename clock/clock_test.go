// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package clock

import (
	"testing"
	"time"
)

func TestManualClockAdvance(t *testing.T) {
	c := NewManualClock(time.Time{})
	start := c.Now()
	if !start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected default start %v", start)
	}

	c.Advance(5 * time.Second)
	if got := c.Now().Sub(start); got != 5*time.Second {
		t.Errorf("Expected 5s elapsed, got %v", got)
	}

	// AdvanceTo never moves backwards
	c.AdvanceTo(start)
	if got := c.Now().Sub(start); got != 5*time.Second {
		t.Errorf("AdvanceTo moved clock backwards: %v", got)
	}
}
