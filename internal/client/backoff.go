package client

import (
	"math/rand/v2"
	"time"
)

// jitterFraction spreads each delay by up to ±20%.
const jitterFraction = 0.2

// backoff produces exponentially growing delays between push-channel
// reconnect attempts: initial, 2×initial, ... capped at max.
type backoff struct {
	initial time.Duration
	max     time.Duration
	next    time.Duration

	// jitter maps a delay onto the delay actually waited. Tests replace it
	// to get deterministic values.
	jitter func(time.Duration) time.Duration
}

func newBackoff(initial, maxDelay time.Duration) *backoff {
	return &backoff{
		initial: initial,
		max:     maxDelay,
		next:    initial,
		jitter:  jitter,
	}
}

// Next returns the delay to wait before the next attempt and doubles the one
// after it.
func (b *backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return b.jitter(d)
}

// Reset starts the sequence over from the initial delay.
func (b *backoff) Reset() {
	b.next = b.initial
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	spread := float64(d) * jitterFraction
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
