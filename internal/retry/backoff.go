// Package retry computes exponential backoff with full jitter for a
// component that retries a transient failure locally before surfacing it
// to its caller (the directory task's attempt loop, C6).
package retry

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// Config bounds a backoff sequence.
type Config struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
}

// Delay computes the backoff window for the given 1-indexed attempt and
// returns a uniformly random duration in [0, window). Formula:
// random(0, min(max_delay, base_delay * 2^(attempt-1))).
func Delay(attempt int, cfg Config) time.Duration {
	backoff := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	if backoff > float64(cfg.MaxDelay) {
		backoff = float64(cfg.MaxDelay)
	}

	maxJitter := int64(backoff)
	if maxJitter <= 0 {
		return cfg.BaseDelay
	}

	jitter, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
	if err != nil {
		return cfg.BaseDelay
	}
	return time.Duration(jitter.Int64())
}
