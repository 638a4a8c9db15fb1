package feed

import "time"

// Backoff is a capped exponential reconnect schedule.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration // upper bound of the random delay added to each attempt
}

// Delay returns min(Base*2^(attempt-1), Max) without jitter. attempt starts at 1.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		if b.Max > 0 && d >= b.Max {
			break
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// Next is Delay plus a jitter in [0, Jitter) drawn from rnd.
func (b Backoff) Next(attempt int, rnd func(int64) int64) time.Duration {
	return b.Delay(attempt) + jitter(b.Jitter, rnd)
}

func jitter(limit time.Duration, rnd func(int64) int64) time.Duration {
	if limit <= 0 || rnd == nil {
		return 0
	}
	return time.Duration(rnd(int64(limit)))
}
