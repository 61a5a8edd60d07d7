package raft

import (
	"testing"
	"time"
)

func TestRandomTimeout(t *testing.T) {
	low, high := 150*time.Millisecond, 300*time.Millisecond
	for i := 0; i < 1000; i++ {
		d := RandomTimeout(low, high)
		if d < low || d >= high {
			t.Fatalf("RandomTimeout = %v, want [%v, %v)", d, low, high)
		}
	}
	if d := RandomTimeout(low, low); d != low {
		t.Errorf("empty range: got %v, want %v", d, low)
	}
}

func TestElectionTimerFires(t *testing.T) {
	timer := newElectionTimer(10*time.Millisecond, 20*time.Millisecond)
	timer.Reset()

	select {
	case gen := <-timer.C:
		if !timer.current(gen) {
			t.Errorf("fired generation %d is not current", gen)
		}
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestElectionTimerResetInvalidatesOldFire(t *testing.T) {
	timer := newElectionTimer(5*time.Millisecond, 6*time.Millisecond)
	timer.Reset()
	old := <-timer.C

	timer.Reset()
	if timer.current(old) {
		t.Errorf("generation %d still current after Reset", old)
	}
}

func TestElectionTimerStop(t *testing.T) {
	timer := newElectionTimer(10*time.Millisecond, 20*time.Millisecond)
	timer.Reset()
	timer.Stop()

	select {
	case gen := <-timer.C:
		if timer.current(gen) {
			t.Errorf("stopped timer fired a current generation %d", gen)
		}
	case <-time.After(50 * time.Millisecond):
	}
}
