package infrastructure

import (
	"math"
	"math/rand"
	"time"
)

// backoffWithJitter grows min by factor^attempt, caps it at max and adds up to
// max-min of jitter without exceeding max.
func backoffWithJitter(attempt int, factor float64, min, max time.Duration, rng *rand.Rand) time.Duration {
	backoff := float64(min) * math.Pow(factor, float64(attempt))
	if backoff > float64(max) {
		backoff = float64(max)
	}

	base := time.Duration(backoff)
	if max <= min {
		return base
	}

	jitterWindow := max - min
	jitter := time.Duration(rng.Int63n(int64(jitterWindow) + 1))
	result := base + jitter
	if result > max {
		return max
	}

	return result
}

type jitterBounds struct {
	factor float64
	min    time.Duration
	max    time.Duration
}

func resolveJitterBounds(factor float64, min, max time.Duration, defFactor float64, defMin, defMax time.Duration) jitterBounds {
	if factor < 1 {
		factor = defFactor
	}
	if min <= 0 {
		min = defMin
	}
	if max <= 0 {
		max = defMax
	}
	if max < min {
		max = min
	}

	return jitterBounds{factor: factor, min: min, max: max}
}
