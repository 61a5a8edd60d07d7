package raft

import "RelayRaft/raft/wire"

// handleRequestVote runs with mu held and with the node already moved to
// req.Term if that term was newer.
func (n *Node) handleRequestVote(p *Peer, req wire.RequestVote) wire.Packet {
	resp := wire.RequestVoteResult{Term: n.st.currentTerm(), VoteGranted: false}

	if req.Term < n.st.currentTerm() {
		n.logger.Debugf("term %d: reject stale vote request from %d for term %d",
			n.st.currentTerm(), req.CandidateID, req.Term)
		return resp
	}

	if ServerID(req.CandidateID) != p.ServerID {
		n.logger.Warningf("vote request on stream of %d names candidate %d, reject",
			p.ServerID, req.CandidateID)
		return resp
	}

	// a candidate or leader of this term has already voted for itself
	if n.st.getState() != Follower {
		n.logger.Debugf("term %d: %v rejects vote request from %d",
			n.st.currentTerm(), n.st.getState(), req.CandidateID)
		return resp
	}

	if voted := n.st.persistent.VotedFor(); voted != NoneID && voted != p.ServerID {
		n.logger.Debugf("term %d: already voted for %d, reject %d",
			n.st.currentTerm(), voted, req.CandidateID)
		return resp
	}

	log := n.st.log()
	if !log.UpToDate(req.LastLogIndex, req.LastLogTerm) {
		n.logger.Infof("term %d: reject %d, log (%d, %d) behind ours (%d, %d)",
			n.st.currentTerm(), req.CandidateID,
			req.LastLogIndex, req.LastLogTerm, log.LastIndex(), log.LastTerm())
		return resp
	}

	if err := n.st.persistent.SetVotedFor(req.Term, p.ServerID); err != nil {
		n.fatal(err)
	}
	n.timer.Reset()
	n.logger.Infof("term %d: vote for %d", n.st.currentTerm(), p.ServerID)

	resp.VoteGranted = true
	return resp
}

// handleRequestVoteResult counts a vote for the running candidacy. Results
// for any other term or role are dropped.
func (n *Node) handleRequestVoteResult(p *Peer, resp wire.RequestVoteResult) {
	c, ok := n.st.role.(*candidateRole)
	if !ok {
		n.logger.Debugf("term %d: %v ignores vote result from %d",
			n.st.currentTerm(), n.st.getState(), p.ServerID)
		return
	}
	if resp.Term != c.term {
		n.logger.Debugf("term %d: ignore vote result for term %d from %d",
			c.term, resp.Term, p.ServerID)
		return
	}
	if !resp.VoteGranted {
		return
	}

	c.votes[p.ServerID] = true
	n.logger.Debugf("term %d: vote from %d, %d/%d",
		c.term, p.ServerID, c.granted(), n.cluster.quorum())

	if c.granted() >= n.cluster.quorum() {
		n.logger.Infof("term %d: won election with %d votes", c.term, c.granted())
		n.becomeLeader()
	}
}
