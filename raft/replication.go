package raft

import (
	"errors"
	"fmt"

	"RelayRaft/raft/wire"
)

// appendEntriesFor builds the next AppendEntries for id from its
// nextIndex. ok is false unless the node leads.
func (n *Node) appendEntriesFor(id ServerID) (ae wire.AppendEntries, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	l, isLeader := n.st.role.(*leaderRole)
	if !isLeader {
		return wire.AppendEntries{}, false
	}
	pr, found := l.progress[id]
	if !found {
		return wire.AppendEntries{}, false
	}

	log := n.st.log()
	if pr.nextIndex == 0 || pr.nextIndex > log.LastIndex()+1 {
		pr.nextIndex = log.LastIndex() + 1
	}

	prevLogIndex := pr.nextIndex - 1
	prevLogTerm, err := log.TermAt(prevLogIndex)
	if err != nil {
		n.fatal(err)
	}
	entries, err := log.Slice(pr.nextIndex, n.config.MaxEntriesPerMessage)
	if err != nil {
		n.fatal(err)
	}

	return wire.AppendEntries{
		Term:         n.st.currentTerm(),
		LeaderID:     uint32(n.me()),
		PrevLogIndex: prevLogIndex,
		PrevLogTerm:  prevLogTerm,
		LeaderCommit: n.st.volatile.commitIndex,
		Entries:      entries,
	}, true
}

// handleAppendEntries runs with mu held and with the node already moved
// to req.Term if that term was newer.
func (n *Node) handleAppendEntries(p *Peer, req wire.AppendEntries) wire.Packet {
	resp := wire.AppendEntriesResult{Term: n.st.currentTerm(), Success: false}

	if req.Term < n.st.currentTerm() {
		n.logger.Debugf("term %d: reject stale AppendEntries from %d for term %d",
			n.st.currentTerm(), req.LeaderID, req.Term)
		return resp
	}

	if ServerID(req.LeaderID) != p.ServerID {
		n.logger.Warningf("AppendEntries on stream of %d names leader %d, reject",
			p.ServerID, req.LeaderID)
		return resp
	}

	if n.st.getState() == Leader {
		n.logger.Errorf("term %d: second leader %d in the same term, reject",
			n.st.currentTerm(), req.LeaderID)
		return resp
	}

	n.becomeFollower(p.ServerID)
	n.timer.Reset()

	log := n.st.log()
	if req.PrevLogIndex > 0 && !log.Matches(req.PrevLogIndex, req.PrevLogTerm) {
		resp.ConflictIndex = n.conflictHint(req.PrevLogIndex)
		n.logger.Debugf("term %d: log mismatch at %d (term %d), hint %d",
			n.st.currentTerm(), req.PrevLogIndex, req.PrevLogTerm, resp.ConflictIndex)
		return resp
	}

	conflict, err := log.Conflict(req.PrevLogIndex, req.Entries)
	if err != nil {
		n.fatal(err)
	}
	if conflict != 0 {
		if conflict <= n.st.volatile.commitIndex {
			n.fatal(invariant("leader %d overwrites committed index %d (commit %d)",
				req.LeaderID, conflict, n.st.volatile.commitIndex))
		}
		n.logger.Infof("term %d: clearing log suffix from %d to %d",
			n.st.currentTerm(), conflict, log.LastIndex())
	}

	last, err := log.Append(req.PrevLogIndex, req.Entries)
	if errors.Is(err, ErrNonContiguous) {
		n.logger.Warningf("malformed AppendEntries from %d: %v", req.LeaderID, err)
		return resp
	}
	if err != nil {
		n.fatal(err)
	}

	if req.LeaderCommit > n.st.volatile.commitIndex {
		n.setCommitIndex(Min(req.LeaderCommit, last))
	}

	resp.Success = true
	resp.MatchIndex = last
	return resp
}

// conflictHint returns where the leader should resume after a failed
// consistency check at prevLogIndex: just past our log if it is short,
// otherwise the first index of the conflicting term.
func (n *Node) conflictHint(prevLogIndex uint32) uint32 {
	log := n.st.log()
	if prevLogIndex > log.LastIndex() {
		return log.LastIndex() + 1
	}

	term, err := log.TermAt(prevLogIndex)
	if err != nil {
		n.fatal(err)
	}
	floor := n.st.volatile.commitIndex + 1
	index := prevLogIndex
	for index > floor {
		t, err := log.TermAt(index - 1)
		if err != nil {
			n.fatal(err)
		}
		if t != term {
			break
		}
		index--
	}
	return index
}

// handleAppendEntriesResult updates the sender's progress and the commit
// index. Results from older terms, or received after stepping down, are
// dropped.
func (n *Node) handleAppendEntriesResult(p *Peer, resp wire.AppendEntriesResult) {
	l, ok := n.st.role.(*leaderRole)
	if !ok {
		n.logger.Debugf("term %d: %v ignores AppendEntries result from %d",
			n.st.currentTerm(), n.st.getState(), p.ServerID)
		return
	}
	if resp.Term < n.st.currentTerm() {
		n.logger.Debugf("term %d: ignore stale AppendEntries result for term %d from %d",
			n.st.currentTerm(), resp.Term, p.ServerID)
		return
	}
	pr, found := l.progress[p.ServerID]
	if !found {
		return
	}

	log := n.st.log()
	if resp.Success {
		if resp.MatchIndex > log.LastIndex() {
			n.logger.Warningf("peer %d claims match %d past our last index %d",
				p.ServerID, resp.MatchIndex, log.LastIndex())
			return
		}
		if resp.MatchIndex > pr.matchIndex {
			pr.matchIndex = resp.MatchIndex
		}
		pr.nextIndex = pr.matchIndex + 1
		n.advanceCommit()

		if pr.nextIndex <= log.LastIndex() {
			p.kickReplication()
		}
		return
	}

	next := pr.nextIndex - 1
	if resp.ConflictIndex != 0 && resp.ConflictIndex < pr.nextIndex {
		next = resp.ConflictIndex
	}
	next = Max(next, pr.matchIndex+1)
	next = Max(next, 1)
	next = Min(next, pr.nextIndex)
	n.logger.Debugf("term %d: peer %d rejected, next index %d",
		n.st.currentTerm(), p.ServerID, next)

	// retrying the same prefix waits for the heartbeat
	if next == pr.nextIndex {
		return
	}
	pr.nextIndex = next
	p.kickReplication()
}

// advanceCommit moves the commit index to the highest index stored on a
// quorum, counting only entries of the current term.
func (n *Node) advanceCommit() {
	l, ok := n.st.role.(*leaderRole)
	if !ok {
		return
	}

	log := n.st.log()
	term := n.st.currentTerm()
	quorum := n.cluster.quorum()
	for index := log.LastIndex(); index > n.st.volatile.commitIndex; index-- {
		t, err := log.TermAt(index)
		if err != nil {
			n.fatal(err)
		}
		if t < term {
			// older terms are committed only by a later entry of this term
			return
		}
		if t == term && l.matchCount(index)+1 >= quorum {
			n.setCommitIndex(index)
			return
		}
	}
}

// propose appends command at the leader.
func (n *Node) propose(command []byte) (index, term uint32, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(command) > wire.MaxCommandSize {
		return 0, 0, fmt.Errorf("%w: %d bytes, limit %d", ErrCommandTooLarge, len(command), wire.MaxCommandSize)
	}

	switch n.st.getState() {
	case Leader:
	case Shutdown:
		return 0, 0, ErrNodeStopped
	default:
		return 0, 0, ErrNotLeader
	}

	log := n.st.log()
	term = n.st.currentTerm()
	entry := Entry{Index: log.LastIndex() + 1, Term: term, Command: command}
	if _, err := log.Append(log.LastIndex(), []Entry{entry}); err != nil {
		n.fatal(err)
	}
	n.advanceCommit()

	for _, p := range n.peerList {
		p.kickReplication()
	}
	return entry.Index, term, nil
}
