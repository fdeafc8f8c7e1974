package session

import (
	"math/rand"
	"time"
)

// Delay returns the wait before reconnect attempt n (1-based). The first
// attempt waits InitialDelay; later attempts grow by Multiplier up to
// MaxDelay. Jitter keeps the upper half of the delay fixed and randomizes
// the lower half, so a jittered delay never exceeds MaxDelay.
func (b BackoffConfig) Delay(n int, rng *rand.Rand) time.Duration {
	if b.InitialDelay <= 0 {
		return 0
	}
	if n <= 1 {
		return b.InitialDelay
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(b.InitialDelay)
	for i := 1; i < n; i++ {
		d *= mult
		if b.MaxDelay > 0 && d >= float64(b.MaxDelay) {
			d = float64(b.MaxDelay)
			break
		}
	}
	out := time.Duration(d)
	if !b.Jitter || rng == nil {
		return out
	}
	half := out / 2
	return half + time.Duration(rng.Int63n(int64(half)+1))
}
