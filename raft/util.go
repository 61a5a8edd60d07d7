package raft

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	rndMu sync.Mutex
	rnd   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func Min(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func Max(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// RandomTimeout returns a duration in [low, high). A degenerate range
// returns low.
func RandomTimeout(low, high time.Duration) time.Duration {
	if high <= low {
		return low
	}
	rndMu.Lock()
	extra := time.Duration(rnd.Int63n(int64(high - low)))
	rndMu.Unlock()
	return low + extra
}

// RandomID returns a non-zero server id derived from a random UUID.
func RandomID() ServerID {
	for {
		if id := ServerID(uuid.New().ID()); id != NoneID {
			return id
		}
	}
}
