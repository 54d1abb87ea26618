package connection

import (
	"math/rand"
	"time"
)

// BackoffPolicy computes the wait before a reconnect attempt.
// attempt starts at 1 for the first retry after a drop.
type BackoffPolicy interface {
	Delay(attempt int) time.Duration
}

// FixedDelay waits the same interval between every attempt. This is
// the default policy; the observable reconnect contract (one retry a
// fixed interval after an unsolicited close) depends on it.
type FixedDelay struct {
	Wait time.Duration
}

func (f FixedDelay) Delay(int) time.Duration {
	return f.Wait
}

// ExponentialBackoff doubles the wait per attempt up to Max, with
// optional jitter of ±50% to spread reconnect storms after an outage.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter bool
}

func (e ExponentialBackoff) Delay(attempt int) time.Duration {
	wait := e.Base
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= e.Max {
			wait = e.Max
			break
		}
	}
	if e.Jitter && wait > 0 {
		wait = wait/2 + time.Duration(rand.Int63n(int64(wait)))
	}
	if e.Max > 0 && wait > e.Max {
		wait = e.Max
	}
	return wait
}
