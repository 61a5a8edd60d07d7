package raft

import (
	"errors"
	"fmt"

	"RelayRaft/raft/wire"
)

var (
	// ErrNotLeader is returned when a proposal reaches a node that is not the leader.
	ErrNotLeader = errors.New("raft: not the leader")

	// ErrNodeStopped is returned by operations on a stopped node.
	ErrNodeStopped = errors.New("raft: node stopped")

	// ErrNotFound is returned when a log index is beyond the end of the log.
	ErrNotFound = errors.New("raft: log index not found")

	// ErrStaleTerm is returned when a vote is recorded for a term older than the current one.
	ErrStaleTerm = errors.New("raft: stale term")

	// ErrNonContiguous is returned when appended entries do not follow the log.
	ErrNonContiguous = errors.New("raft: entries are not contiguous")

	// ErrUnknownPeer is returned when a handshake names a server outside the cluster.
	ErrUnknownPeer = errors.New("raft: unknown peer")

	// ErrInvalidConfig is returned when a configuration is rejected.
	ErrInvalidConfig = errors.New("raft: invalid configuration")

	// ErrCommandTooLarge is returned when a proposed command cannot fit in
	// one wire entry.
	ErrCommandTooLarge = wire.ErrCommandTooLarge

	// ErrTransportClosed is returned when the transport has been shut down.
	ErrTransportClosed = errors.New("raft: transport closed")
)

// InvariantError reports a broken consensus invariant. It is never
// recovered from: the node halts.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return "raft: invariant violated: " + e.Reason
}

func invariant(format string, args ...interface{}) error {
	return &InvariantError{Reason: fmt.Sprintf(format, args...)}
}
