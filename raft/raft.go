package raft

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"RelayRaft/raft/wire"
)

// Node is one member of a raft cluster. All consensus state lives in
// serverState behind mu; the per-peer reader and writer goroutines and the
// election timer goroutine only touch it through methods that take mu.
type Node struct {
	mu sync.Mutex
	st serverState

	config  *Configuration
	cluster Cluster
	peers   map[ServerID]*Peer
	// peerList is peers ordered by id.
	peerList []*Peer

	logger Logger
	trans  Transport
	timer  *electionTimer

	applyCh  chan<- ApplyMsg
	commitCh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce, stopOnce sync.Once
}

func (n *Node) me() ServerID {
	return n.st.me()
}

// fatal halts the node on a broken invariant or a failed durable write.
func (n *Node) fatal(err error) {
	n.logger.Errorf("halting: %v", err)
	panic(err)
}

func (n *Node) peerIDs() []ServerID {
	ids := make([]ServerID, 0, len(n.peerList))
	for _, p := range n.peerList {
		ids = append(ids, p.ServerID)
	}
	return ids
}

// ---------------------
//    role transitions
// ---------------------

// The transition methods run with mu held.

func (n *Node) becomeFollower(leaderID ServerID) {
	prev := n.st.getState()
	if f, ok := n.st.role.(*followerRole); ok {
		if leaderID != NoneID && f.leaderID != leaderID {
			n.logger.Infof("term %d: following leader %d", n.st.currentTerm(), leaderID)
		}
		f.leaderID = leaderID
		return
	}

	n.st.role = &followerRole{leaderID: leaderID}
	n.logger.Infof("term %d: %v -> Follower (leader %d)", n.st.currentTerm(), prev, leaderID)
	n.timer.Reset()
}

// stepDown adopts a newer term and falls back to Follower.
func (n *Node) stepDown(term uint32) {
	if err := n.st.persistent.SetTerm(term); err != nil {
		n.fatal(err)
	}
	n.becomeFollower(NoneID)
}

// becomeCandidate starts a new election and returns the RequestVote to
// broadcast. ok is false when the node won on its own vote.
func (n *Node) becomeCandidate() (rv wire.RequestVote, ok bool) {
	prev := n.st.getState()
	term := n.st.currentTerm() + 1
	if err := n.st.persistent.SetVotedFor(term, n.me()); err != nil {
		n.fatal(err)
	}

	c := &candidateRole{term: term, votes: map[ServerID]bool{n.me(): true}}
	n.st.role = c
	timeout := n.timer.Reset()
	n.logger.Infof("term %d: %v -> Candidate, election timeout %v", term, prev, timeout)

	if c.granted() >= n.cluster.quorum() {
		n.becomeLeader()
		return wire.RequestVote{}, false
	}

	log := n.st.log()
	return wire.RequestVote{
		Term:         term,
		CandidateID:  uint32(n.me()),
		LastLogIndex: log.LastIndex(),
		LastLogTerm:  log.LastTerm(),
	}, true
}

func (n *Node) becomeLeader() {
	n.st.role = newLeaderRole(n.peerIDs(), n.st.log().LastIndex())
	n.timer.Stop()
	n.logger.Infof("term %d: Candidate -> Leader", n.st.currentTerm())

	// assert authority before any client work
	for _, p := range n.peerList {
		p.kickReplication()
	}
	n.advanceCommit()
}

func (n *Node) setCommitIndex(index uint32) {
	if index <= n.st.volatile.commitIndex {
		return
	}
	if last := n.st.log().LastIndex(); index > last {
		n.fatal(invariant("commit index %d past last log index %d", index, last))
	}
	n.st.volatile.commitIndex = index
	n.logger.Debugf("term %d: commit index %d", n.st.currentTerm(), index)
	n.notifyCommit()
}

// ------------------
//    packet intake
// ------------------

// handle applies pkt from p to the node and returns the reply to send, if
// any. A packet carrying a newer term moves the node to that term before
// it is looked at.
func (n *Node) handle(p *Peer, pkt wire.Packet) wire.Packet {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.st.getState() == Shutdown {
		return nil
	}

	if term := wire.TermOf(pkt); term > n.st.currentTerm() {
		n.logger.Infof("term %d: saw term %d in %v from %d, become Follower",
			n.st.currentTerm(), term, pkt.Tag(), p.ServerID)
		n.stepDown(term)
	}

	switch m := pkt.(type) {
	case wire.Handshake:
		return nil
	case wire.RequestVote:
		return n.handleRequestVote(p, m)
	case wire.RequestVoteResult:
		n.handleRequestVoteResult(p, m)
		return nil
	case wire.AppendEntries:
		return n.handleAppendEntries(p, m)
	case wire.AppendEntriesResult:
		n.handleAppendEntriesResult(p, m)
		return nil
	default:
		n.logger.Warningf("ignoring %T from %d", pkt, p.ServerID)
		return nil
	}
}

// readLoop feeds every packet decoded from c to the node until the stream
// fails. Replies go through the peer's outbox so the reader never blocks
// on the network.
func (n *Node) readLoop(p *Peer, c *conn) {
	defer n.wg.Done()
	defer p.detach(c)

	for {
		pkt, err := c.dec.Decode()
		if err != nil {
			switch {
			case errors.Is(err, wire.ErrProtocol):
				p.logger.Warningf("dropping stream: %v", err)
			case c.closed(), errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				p.logger.Debugf("stream closed: %v", err)
			default:
				p.logger.Warningf("stream failed: %v", err)
			}
			return
		}

		p.logger.Debugf("recv %v term %d", pkt.Tag(), wire.TermOf(pkt))
		if reply := n.handle(p, pkt); reply != nil {
			p.Send(reply)
		}
	}
}

// runPeer is the single writer for p: queued packets, heartbeats and
// replication retries all leave through it.
func (n *Node) runPeer(p *Peer) {
	defer n.wg.Done()

	ticker := time.NewTicker(n.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case pkt := <-p.outbox:
			n.deliver(p, pkt)
		case <-p.kick:
			n.replicate(p)
		case <-ticker.C:
			n.replicate(p)
		}
	}
}

func (n *Node) replicate(p *Peer) {
	if ae, ok := n.appendEntriesFor(p.ServerID); ok {
		n.deliver(p, ae)
	}
}

func (n *Node) deliver(p *Peer, pkt wire.Packet) {
	c, err := n.connection(p)
	if err != nil {
		p.logger.Debugf("cannot reach peer, dropping %v: %v", pkt.Tag(), err)
		return
	}

	c.SetWriteDeadline(time.Now().Add(n.config.DialTimeout))
	if err := c.enc.Encode(pkt); err != nil {
		p.logger.Warningf("send %v failed: %v", pkt.Tag(), err)
		p.detach(c)
		return
	}
	p.logger.Debugf("sent %v term %d", pkt.Tag(), wire.TermOf(pkt))
}

// connection returns p's stream, dialing and handshaking a new one if
// there is none.
func (n *Node) connection(p *Peer) (*conn, error) {
	if c := p.current(); c != nil {
		return c, nil
	}

	ctx, cancel := context.WithTimeout(n.ctx, n.config.DialTimeout)
	defer cancel()
	raw, err := n.trans.Dial(ctx, p.ServerAddress)
	if err != nil {
		return nil, err
	}

	c := newConn(raw, true)
	c.SetDeadline(time.Now().Add(n.config.HandshakeTimeout))
	if err := c.enc.Encode(n.handshake()); err != nil {
		c.Close()
		return nil, err
	}
	hs, err := readHandshake(c)
	if err != nil {
		c.Close()
		return nil, err
	}
	if ServerID(hs.ID) != p.ServerID {
		c.Close()
		return nil, ErrUnknownPeer
	}
	c.SetDeadline(time.Time{})

	n.handle(p, hs)
	if !p.attach(c) {
		c.Close()
		if c := p.current(); c != nil {
			return c, nil
		}
		return nil, net.ErrClosed
	}
	p.logger.Infof("connected to %v", p.ServerAddress)

	n.wg.Add(1)
	go n.readLoop(p, c)
	return c, nil
}

// serveConn handshakes an accepted stream and hands it to its peer.
func (n *Node) serveConn(raw net.Conn) {
	defer n.wg.Done()

	c := newConn(raw, false)
	c.SetDeadline(time.Now().Add(n.config.HandshakeTimeout))
	hs, err := readHandshake(c)
	if err != nil {
		n.logger.Warningf("inbound handshake from %v failed: %v", raw.RemoteAddr(), err)
		c.Close()
		return
	}

	p, ok := n.peers[ServerID(hs.ID)]
	if !ok {
		n.logger.Warningf("inbound handshake from %v: %v %d", raw.RemoteAddr(), ErrUnknownPeer, hs.ID)
		c.Close()
		return
	}
	if !p.acceptable(c) {
		p.logger.Debugf("keeping existing stream, dropping inbound duplicate")
		c.Close()
		return
	}
	if err := c.enc.Encode(n.handshake()); err != nil {
		p.logger.Warningf("inbound handshake reply failed: %v", err)
		c.Close()
		return
	}
	c.SetDeadline(time.Time{})

	n.handle(p, hs)
	if !p.attach(c) {
		c.Close()
		return
	}
	p.logger.Infof("accepted stream from %v", raw.RemoteAddr())

	n.wg.Add(1)
	go n.readLoop(p, c)
}

func (n *Node) acceptLoop() {
	defer n.wg.Done()

	for {
		raw, err := n.trans.Accept()
		if err != nil {
			select {
			case <-n.ctx.Done():
				return
			default:
			}
			if errors.Is(err, ErrTransportClosed) || errors.Is(err, net.ErrClosed) {
				return
			}
			n.logger.Warningf("accept failed: %v", err)
			time.Sleep(n.config.HeartbeatInterval)
			continue
		}
		n.wg.Add(1)
		go n.serveConn(raw)
	}
}

func (n *Node) handshake() wire.Handshake {
	n.mu.Lock()
	defer n.mu.Unlock()

	return wire.Handshake{Term: n.st.currentTerm(), ID: uint32(n.me())}
}

func readHandshake(c *conn) (wire.Handshake, error) {
	pkt, err := c.dec.Decode()
	if err != nil {
		return wire.Handshake{}, err
	}
	hs, ok := pkt.(wire.Handshake)
	if !ok {
		return wire.Handshake{}, &wire.ProtocolError{Reason: "expected Handshake, got " + pkt.Tag().String()}
	}
	return hs, nil
}

// runElectionTimer turns timer fires into elections.
func (n *Node) runElectionTimer() {
	defer n.wg.Done()

	for {
		select {
		case <-n.ctx.Done():
			return
		case gen := <-n.timer.C:
			n.electionTimeout(gen)
		}
	}
}

func (n *Node) electionTimeout(gen uint64) {
	n.mu.Lock()
	if !n.timer.current(gen) {
		n.mu.Unlock()
		return
	}
	switch n.st.getState() {
	case Follower, Candidate:
	default:
		n.mu.Unlock()
		return
	}

	n.logger.Infof("term %d: election timeout", n.st.currentTerm())
	rv, ok := n.becomeCandidate()
	n.mu.Unlock()

	if !ok {
		return
	}
	for _, p := range n.peerList {
		p.Send(rv)
	}
}
