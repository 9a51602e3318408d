package retry

import (
	"math"
	"math/rand"
	"time"

	"golang.org/x/exp/constraints"
)

// Strategy returns how long to wait before retry number attempt+1, or true
// when no further retry is allowed.
type Strategy interface {
	Sleep(attempt uint) (time.Duration, bool)
}

type Never struct{}

func (Never) Sleep(uint) (time.Duration, bool) {
	return 0, true
}

// Jitter picks a delay in [0, n). It receives n > 0.
type Jitter func(n int64) int64

// NoJitter waits the full computed delay.
func NoJitter(n int64) int64 {
	return n
}

// ExponentialBackOff doubles Base on every attempt up to Max and stops after
// MaxRetries retries. The delay is passed through Jitter, rand.Int63n by default.
type ExponentialBackOff struct {
	Base       time.Duration
	Max        time.Duration
	MaxRetries uint
	Jitter     Jitter
}

func (b ExponentialBackOff) Sleep(attempt uint) (time.Duration, bool) {
	if attempt >= b.MaxRetries {
		return 0, true
	}

	ceiling := int64(b.Max)
	delay := ceiling
	if attempt < 63 {
		if d, ok := mulInt64(1<<attempt, int64(b.Base)); ok {
			delay = clamp(d, 0, ceiling)
		}
	}
	if delay <= 0 {
		return 0, false
	}
	return time.Duration(b.jitter()(delay)), false
}

func (b ExponentialBackOff) jitter() Jitter {
	if b.Jitter == nil {
		return rand.Int63n
	}
	return b.Jitter
}

func clamp[T constraints.Integer](v, lo, hi T) T {
	return max(lo, min(v, hi))
}

func mulInt64(l, r int64) (int64, bool) {
	if l == 0 || r == 0 {
		return 0, true
	}
	if l > math.MaxInt64/r {
		return 0, false
	}
	return l * r, true
}
