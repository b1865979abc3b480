package ticket

import "time"

// staleWindow is the outer edge of the available ladder: past this many
// seconds since stock was last seen, the ticker is considered stale and
// retry pacing reverts to DefaultSleep.
func (s Schedule) staleWindow() time.Duration {
	if len(s.availableLadder) == 0 {
		return 0
	}
	last := s.availableLadder[len(s.availableLadder)-1]
	return time.Duration(last.WindowSeconds * float64(time.Second))
}

// InAvailableWindow reports whether now falls within the available ladder's
// outer window since stock was last seen — the guard CreateOrder uses to
// decide whether to keep hammering rather than fall back to WaitForStock.
func (s Schedule) InAvailableWindow(now time.Time) bool {
	if s.LastStockSeenAt.IsZero() {
		return false
	}
	return now.Sub(s.LastStockSeenAt) < s.staleWindow()
}

// HardControlActive reports whether the ERR3 widened-sleep window is still
// in effect.
func (s Schedule) HardControlActive(now time.Time) bool {
	return !s.HardControlUntil.IsZero() && now.Before(s.HardControlUntil)
}

// NextSleep implements the §4.5/§5 pacing table: widened pacing during an
// active hard-control window, the available ladder while stock has been
// seen recently, or DefaultSleep otherwise. Pure function of the schedule
// and the current time so it can be unit-tested without sleeping.
func (s Schedule) NextSleep(now time.Time) time.Duration {
	if s.HardControlActive(now) {
		return s.HardControlSleep
	}

	if s.LastStockSeenAt.IsZero() || len(s.availableLadder) == 0 {
		return s.DefaultSleep
	}

	elapsed := now.Sub(s.LastStockSeenAt).Seconds()
	if elapsed >= s.staleWindow().Seconds() {
		return s.DefaultSleep
	}

	for i := 0; i < len(s.availableLadder)-1; i++ {
		start := s.availableLadder[i].WindowSeconds
		end := s.availableLadder[i+1].WindowSeconds
		if elapsed >= start && elapsed < end {
			return time.Duration(s.availableLadder[i+1].SleepSeconds * float64(time.Second))
		}
	}
	return s.DefaultSleep
}

// RefreshDue reports whether enough time has passed since the last create
// attempt to force a liveness-probe create even without confirmed stock.
func (s Schedule) RefreshDue(now time.Time) bool {
	if s.LastCreateAttemptAt.IsZero() {
		return true
	}
	return now.Sub(s.LastCreateAttemptAt) >= s.RefreshInterval
}

// countdownSleep returns the WaitForSale coarse-tier nap for a given
// countdown-to-sale-start, per spec.md §4.3. The final sliver sleeps the
// exact remainder plus a small pad for clock drift towards the vendor's
// clock (spec.md §9 "Timing precision").
const clockDriftPad = 3 * time.Millisecond

func countdownSleep(countdown time.Duration) time.Duration {
	switch {
	case countdown >= time.Hour:
		return 10 * time.Minute
	case countdown >= 10*time.Minute:
		return time.Minute
	case countdown >= time.Minute:
		return 5 * time.Second
	case countdown > time.Second:
		return time.Second
	default:
		if countdown < 0 {
			return 0
		}
		return countdown + clockDriftPad
	}
}
