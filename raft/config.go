package raft

import (
	"fmt"
	"time"

	"RelayRaft/raft/wire"
)

type Configuration struct {
	Me Server

	// Cluster holds every voting server. Me is added if missing.
	Cluster Cluster

	ElectionTimeoutMin, ElectionTimeoutMax time.Duration
	HeartbeatInterval                      time.Duration

	// MaxEntriesPerMessage caps an AppendEntries batch (1..255).
	MaxEntriesPerMessage int

	DialTimeout, HandshakeTimeout time.Duration

	// OutboxSize bounds the packets queued for one peer.
	OutboxSize int
}

const (
	DefaultElectionTimeoutMin = 300 * time.Millisecond
	DefaultElectionTimeoutMax = 600 * time.Millisecond
	DefaultHeartbeatInterval  = 100 * time.Millisecond
	DefaultMaxEntries         = 64
	DefaultDialTimeout        = time.Second
	DefaultHandshakeTimeout   = time.Second
	DefaultOutboxSize         = 256
)

func NewConfiguration(me Server, c Cluster) *Configuration {
	return &Configuration{
		Me:                   me,
		Cluster:              c,
		ElectionTimeoutMin:   DefaultElectionTimeoutMin,
		ElectionTimeoutMax:   DefaultElectionTimeoutMax,
		HeartbeatInterval:    DefaultHeartbeatInterval,
		MaxEntriesPerMessage: DefaultMaxEntries,
		DialTimeout:          DefaultDialTimeout,
		HandshakeTimeout:     DefaultHandshakeTimeout,
		OutboxSize:           DefaultOutboxSize,
	}
}

// Validate checks c and adds Me to the cluster when it is absent.
func (c *Configuration) Validate() error {
	if c.Me.ServerID == NoneID {
		return fmt.Errorf("%w: server id must be non-zero", ErrInvalidConfig)
	}

	seen := make(map[ServerID]bool, len(c.Cluster))
	for _, s := range c.Cluster {
		if s.ServerID == NoneID {
			return fmt.Errorf("%w: cluster contains id 0", ErrInvalidConfig)
		}
		if seen[s.ServerID] {
			return fmt.Errorf("%w: duplicate server id %d", ErrInvalidConfig, s.ServerID)
		}
		seen[s.ServerID] = true
		if s.ServerID != c.Me.ServerID && s.ServerAddress == NoneAddress {
			return fmt.Errorf("%w: server %d has no address", ErrInvalidConfig, s.ServerID)
		}
	}
	if !seen[c.Me.ServerID] {
		c.Cluster = append(c.Cluster, c.Me)
	}

	if c.ElectionTimeoutMin <= 0 || c.ElectionTimeoutMax <= c.ElectionTimeoutMin {
		return fmt.Errorf("%w: election timeout range [%v, %v) is empty",
			ErrInvalidConfig, c.ElectionTimeoutMin, c.ElectionTimeoutMax)
	}
	if c.HeartbeatInterval <= 0 || c.HeartbeatInterval >= c.ElectionTimeoutMin {
		return fmt.Errorf("%w: heartbeat %v must be shorter than election timeout %v",
			ErrInvalidConfig, c.HeartbeatInterval, c.ElectionTimeoutMin)
	}
	if c.MaxEntriesPerMessage < 1 || c.MaxEntriesPerMessage > wire.MaxEntries {
		return fmt.Errorf("%w: batch size %d outside 1..%d",
			ErrInvalidConfig, c.MaxEntriesPerMessage, wire.MaxEntries)
	}
	if c.DialTimeout <= 0 || c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: dial and handshake timeouts must be positive", ErrInvalidConfig)
	}
	if c.OutboxSize < 1 {
		return fmt.Errorf("%w: outbox size must be positive", ErrInvalidConfig)
	}
	return nil
}
