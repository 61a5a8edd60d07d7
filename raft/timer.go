package raft

import (
	"sync"
	"time"
)

// electionTimer fires once per arming, after a duration drawn afresh from
// [low, high) every time it is reset. Each arming has a generation; a fire
// whose generation is no longer current is stale and must be ignored by
// the receiver.
type electionTimer struct {
	mu sync.Mutex

	low, high time.Duration

	timer *time.Timer
	gen   uint64

	C chan uint64
}

func newElectionTimer(low, high time.Duration) *electionTimer {
	return &electionTimer{
		low:  low,
		high: high,
		C:    make(chan uint64, 1),
	}
}

// Reset re-arms the timer and returns the chosen timeout.
func (t *electionTimer) Reset() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	d := RandomTimeout(t.low, t.high)
	t.timer = time.AfterFunc(d, func() { t.fire(gen) })
	return d
}

// Stop disarms the timer. Fires already queued become stale.
func (t *electionTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// current reports whether gen belongs to the live arming.
func (t *electionTimer) current(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.timer != nil && gen == t.gen
}

func (t *electionTimer) fire(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.gen {
		return
	}
	select {
	case t.C <- gen:
	default:
		// drop the stale queued generation and keep the live one
		select {
		case <-t.C:
		default:
		}
		t.C <- gen
	}
}
