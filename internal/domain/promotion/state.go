package promotion

import "time"

// State is the implicit lifecycle state of a promotion, derived from its
// timestamps and counters rather than stored. Every caller (validation,
// admin listing, reporting) derives it through StateAt so the boundary
// conditions are decided in exactly one place.
type State string

const (
	// StatePending means the promotion's start time is still in the future.
	StatePending State = "pending"
	// StateActive means the promotion is inside its time window and under
	// its usage cap.
	StateActive State = "active"
	// StateExpired means the promotion's expiry time has passed.
	StateExpired State = "expired"
	// StateExhausted means the promotion's total usage limit is reached.
	StateExhausted State = "exhausted"
)

// StateAt derives the promotion's lifecycle state at the given instant.
//
// Boundaries: now == StartsAt is active, now == ExpiresAt is expired, and
// UsedCount == UsageLimit is exhausted. The time window is checked before
// exhaustion, matching the order validation reports failures in.
func (p *Promotion) StateAt(now time.Time) State {
	if now.Before(p.StartsAt) {
		return StatePending
	}
	if p.ExpiresAt != nil && !now.Before(*p.ExpiresAt) {
		return StateExpired
	}
	if p.UsageLimit > 0 && p.UsedCount >= p.UsageLimit {
		return StateExhausted
	}
	return StateActive
}
