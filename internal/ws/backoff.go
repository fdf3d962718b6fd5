package ws

import "time"

// Backoff yields min(Max, Base·2^attempt) and counts attempts.
type Backoff struct {
	Base    time.Duration
	Max     time.Duration
	attempt int
}

func NewBackoff(base, max time.Duration) *Backoff {
	return &Backoff{Base: base, Max: max}
}

// Next returns the delay for the current attempt and advances the counter.
func (b *Backoff) Next() time.Duration {
	d := b.Delay(b.attempt)
	b.attempt++
	return d
}

// Delay is the delay for attempt n without touching the counter.
func (b *Backoff) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	if b.Base <= 0 {
		return 0
	}
	// Past 62 shifts the product overflows; it is over Max long before.
	if n > 62 || b.Base > b.Max>>uint(n) {
		return b.Max
	}
	d := b.Base << uint(n)
	if d > b.Max {
		d = b.Max
	}
	return d
}

// Attempt is the number of delays handed out since the last Reset.
func (b *Backoff) Attempt() int {
	return b.attempt
}

func (b *Backoff) Reset() {
	b.attempt = 0
}
