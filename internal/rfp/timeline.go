package rfp

import "time"

// ClampEpsilon is where T1 is re-anchored when the requested failure time is
// too close to the scenario epoch for the full preparation window.
const ClampEpsilon = 100 * time.Millisecond

// Timeline holds the four markers of one predicted failure.
//
//	T1 = T0 - Tc - 2*dT   start masking and buffering
//	T2 = T0 - dT          flush buffered updates, trigger convergence
//	T0                    physical failure instant (observational)
//	T3 = T0 + dT          resume normal detection
//
// The invariant T1 <= T2 <= T0 <= T3 always holds.
type Timeline struct {
	T0 time.Time
	T1 time.Time
	T2 time.Time
	T3 time.Time
}

// DeriveMarkers computes the timeline for a physical failure at t0, given the
// protocol convergence time tc and safety margin dt, both measured against
// the scenario epoch.
//
// If the naive T1 would land at or before the epoch, the whole timeline is
// re-anchored: T1 is pinned at epoch+ClampEpsilon and T2, T3, T0 are
// re-derived forward from it, preserving the relative spacing. The effective
// failure instant then shifts later than requested. This is a deliberate
// clamping policy, not an error; callers that want rejection must validate
// t0 upstream. DeriveMarkers is pure and never fails.
func DeriveMarkers(epoch, t0 time.Time, tc, dt time.Duration) Timeline {
	t1 := t0.Add(-tc - 2*dt)
	if !t1.After(epoch) {
		t1 = epoch.Add(ClampEpsilon)
		t2 := t1.Add(tc + dt)
		t3 := t2.Add(2 * dt)
		return Timeline{
			T0: t3.Add(-dt),
			T1: t1,
			T2: t2,
			T3: t3,
		}
	}
	return Timeline{
		T0: t0,
		T1: t1,
		T2: t0.Add(-dt),
		T3: t0.Add(dt),
	}
}

// Contains reports whether now falls inside the masking window [T1, T3].
func (tl Timeline) Contains(now time.Time) bool {
	return !now.Before(tl.T1) && !now.After(tl.T3)
}
