package main

import (
	"math/rand/v2"
	"time"
)

const jitterWindow = 250 * time.Millisecond

// pacer spaces out polls: a fixed interval while healthy, doubling up to
// a ceiling while batches keep failing.
type pacer struct {
	base    time.Duration
	ceiling time.Duration
	current time.Duration
}

func newPacer(base, ceiling time.Duration) *pacer {
	return &pacer{base: base, ceiling: ceiling, current: base}
}

func (p *pacer) reset() {
	p.current = p.base
}

func (p *pacer) idle() time.Duration {
	return jitter(p.base)
}

func (p *pacer) failure() time.Duration {
	p.current *= 2
	if p.current > p.ceiling {
		p.current = p.ceiling
	}
	return jitter(p.current)
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}
