package ticket

import (
	"testing"
	"time"
)

func TestNextSleepDefaultsWhenNoStockSeen(t *testing.T) {
	s := NewSchedule(800*time.Millisecond, 2100*time.Millisecond)
	now := time.Now()
	if got := s.NextSleep(now); got != s.DefaultSleep {
		t.Errorf("NextSleep with no stock seen = %v, want %v", got, s.DefaultSleep)
	}
}

func TestNextSleepFollowsLadderThenGoesStale(t *testing.T) {
	s := NewSchedule(800*time.Millisecond, 2100*time.Millisecond)
	base := time.Now()
	s.LastStockSeenAt = base

	// Within the first bucket (< 1s), sleep should be short (ladder[1]).
	got := s.NextSleep(base.Add(500 * time.Millisecond))
	if got <= 0 || got >= s.DefaultSleep {
		t.Errorf("NextSleep at 500ms = %v, want something shorter than default (%v) but positive", got, s.DefaultSleep)
	}

	// Past the ladder's outer window, reverts to DefaultSleep.
	got = s.NextSleep(base.Add(20 * time.Second))
	if got != s.DefaultSleep {
		t.Errorf("NextSleep well past stale window = %v, want %v", got, s.DefaultSleep)
	}
}

func TestHardControlOverridesLadder(t *testing.T) {
	s := NewSchedule(800*time.Millisecond, 2100*time.Millisecond)
	now := time.Now()
	s.LastStockSeenAt = now
	s.HardControlUntil = now.Add(90 * time.Second)

	if got := s.NextSleep(now); got != s.HardControlSleep {
		t.Errorf("NextSleep during hard control = %v, want %v", got, s.HardControlSleep)
	}
}

func TestInAvailableWindow(t *testing.T) {
	s := NewSchedule(800*time.Millisecond, 2100*time.Millisecond)
	now := time.Now()

	if s.InAvailableWindow(now) {
		t.Error("InAvailableWindow should be false before any stock sighting")
	}

	s.LastStockSeenAt = now
	if !s.InAvailableWindow(now) {
		t.Error("InAvailableWindow should be true immediately after a stock sighting")
	}
	if s.InAvailableWindow(now.Add(time.Minute)) {
		t.Error("InAvailableWindow should be false well past the ladder's outer window")
	}
}

func TestRefreshDue(t *testing.T) {
	s := NewSchedule(800*time.Millisecond, 2100*time.Millisecond)
	now := time.Now()

	if !s.RefreshDue(now) {
		t.Error("RefreshDue should be true before any create attempt")
	}

	s.LastCreateAttemptAt = now
	if s.RefreshDue(now.Add(time.Second)) {
		t.Error("RefreshDue should be false just after a create attempt")
	}
	if !s.RefreshDue(now.Add(3 * time.Second)) {
		t.Error("RefreshDue should be true after RefreshInterval elapses")
	}
}

func TestCountdownSleepTiers(t *testing.T) {
	cases := []struct {
		countdown time.Duration
		want      time.Duration
	}{
		{2 * time.Hour, 10 * time.Minute},
		{20 * time.Minute, time.Minute},
		{90 * time.Second, 5 * time.Second},
		{2 * time.Second, time.Second},
		{0, clockDriftPad},
		{-5 * time.Second, 0},
	}
	for _, c := range cases {
		if got := countdownSleep(c.countdown); got != c.want {
			t.Errorf("countdownSleep(%v) = %v, want %v", c.countdown, got, c.want)
		}
	}
}
