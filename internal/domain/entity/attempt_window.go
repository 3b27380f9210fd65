package entity

import "time"

// AttemptPolicy bounds how many codes may be requested before a temporary lockout.
type AttemptPolicy struct {
	MaxAttempts int
	Lockout     time.Duration
}

// AttemptOutcome is the result of registering one send attempt.
type AttemptOutcome int

const (
	// AttemptAllowed: the attempt was counted and the send may proceed.
	AttemptAllowed AttemptOutcome = iota
	// AttemptTripped: this attempt pushed the counter past the limit and opened a lockout.
	AttemptTripped
	// AttemptRejected: a lockout was already active; nothing was counted.
	AttemptRejected
)

// AttemptWindow is the resend counter state for one account.
type AttemptWindow struct {
	Count        int
	BlockedUntil *time.Time
}

// Blocked reports whether a lockout is active at now.
func (w AttemptWindow) Blocked(now time.Time) bool {
	return w.BlockedUntil != nil && now.Before(*w.BlockedUntil)
}

// RetryAfter is the time left on an active lockout, zero otherwise.
func (w AttemptWindow) RetryAfter(now time.Time) time.Duration {
	if !w.Blocked(now) {
		return 0
	}
	return w.BlockedUntil.Sub(now)
}

// Healed drops an elapsed lockout together with its counter.
func (w AttemptWindow) Healed(now time.Time) AttemptWindow {
	if w.BlockedUntil != nil && !now.Before(*w.BlockedUntil) {
		return AttemptWindow{}
	}
	return w
}

// Next registers one attempt at now. Stores call it while holding whatever lock makes
// the read and the write of the window a single unit.
func (w AttemptWindow) Next(now time.Time, policy AttemptPolicy) (AttemptWindow, AttemptOutcome) {
	w = w.Healed(now)
	if w.Blocked(now) {
		return w, AttemptRejected
	}

	w.Count++
	if w.Count > policy.MaxAttempts {
		until := now.Add(policy.Lockout)
		w.BlockedUntil = &until
		return w, AttemptTripped
	}
	return w, AttemptAllowed
}

// Remaining is how many more attempts fit before the lockout trips.
func (w AttemptWindow) Remaining(now time.Time, policy AttemptPolicy) int {
	w = w.Healed(now)
	if w.Blocked(now) {
		return 0
	}
	left := policy.MaxAttempts - w.Count
	if left < 0 {
		return 0
	}
	return left
}
