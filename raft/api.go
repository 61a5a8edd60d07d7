package raft

import (
	"context"
	"fmt"
)

// NewNode builds a node from c and the state already held by the stores.
// Committed entries are sent to applyCh once the node is started; a nil
// applyCh discards them.
func NewNode(
	c *Configuration, logger Logger, trans Transport,
	entryStore EntryStore, persistStore PersistStore,
	applyCh chan<- ApplyMsg) (*Node, error) {

	if err := c.Validate(); err != nil {
		return nil, err
	}

	persistent, err := NewPersistentState(persistStore, entryStore)
	if err != nil {
		return nil, fmt.Errorf("load persistent state: %w", err)
	}

	logger = logger.WithField("node", c.Me.ServerID)
	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		st: serverState{
			myself:     c.Me,
			persistent: persistent,
			role:       &followerRole{leaderID: NoneID},
		},
		config:   c,
		cluster:  c.Cluster,
		peers:    make(map[ServerID]*Peer),
		logger:   logger,
		trans:    trans,
		timer:    newElectionTimer(c.ElectionTimeoutMin, c.ElectionTimeoutMax),
		applyCh:  applyCh,
		commitCh: make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}

	for _, s := range c.Cluster.without(c.Me.ServerID) {
		p := newPeer(c.Me.ServerID, s, c.OutboxSize, logger)
		n.peers[s.ServerID] = p
		n.peerList = append(n.peerList, p)
	}

	logger.Infof("loaded term %d, voted for %d, last log (%d, %d), cluster %v",
		persistent.CurrentTerm(), persistent.VotedFor(),
		persistent.Log().LastIndex(), persistent.Log().LastTerm(), c.Cluster)
	return n, nil
}

// Start arms the election timer and launches the node's goroutines.
func (n *Node) Start() {
	n.startOnce.Do(func() {
		n.mu.Lock()
		timeout := n.timer.Reset()
		n.mu.Unlock()
		n.logger.Infof("started as Follower on %v, election timeout %v", n.trans.Addr(), timeout)

		n.wg.Add(3 + len(n.peerList))
		go n.acceptLoop()
		go n.runElectionTimer()
		go n.runFSM()
		for _, p := range n.peerList {
			go n.runPeer(p)
		}
	})
}

// Stop moves the node to Shutdown, closes every stream and waits for its
// goroutines to exit. The stores are left as they are.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		n.mu.Lock()
		n.st.role = &shutdownRole{}
		n.mu.Unlock()

		n.cancel()
		n.timer.Stop()
		if err := n.trans.Close(); err != nil {
			n.logger.Warningf("close transport: %v", err)
		}
		for _, p := range n.peerList {
			p.close()
		}
		n.wg.Wait()
		n.logger.Infof("stopped")
	})
}

// Propose appends command to the log of the leader and returns the index
// and term it was placed at. It does not wait for the entry to commit; the
// entry reaches applyCh if and when it does.
func (n *Node) Propose(command []byte) (index, term uint32, err error) {
	return n.propose(command)
}

func (n *Node) ID() ServerID {
	return n.me()
}

func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.st.getState()
}

func (n *Node) Term() uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.st.currentTerm()
}

// LeaderID returns the leader known for the current term, or NoneID.
func (n *Node) LeaderID() ServerID {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.st.leaderID()
}

func (n *Node) IsLeader() bool {
	return n.State() == Leader
}

func (n *Node) CommitIndex() uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.st.volatile.CommitIndex()
}

// PeerStatus describes one remote server as seen from this node.
// NextIndex and MatchIndex are only set on a leader.
type PeerStatus struct {
	ID         ServerID
	Address    ServerAddress
	Connected  bool
	NextIndex  uint32
	MatchIndex uint32
}

// Status is a point-in-time snapshot of a node.
type Status struct {
	ID           ServerID
	Address      ServerAddress
	State        State
	Term         uint32
	VotedFor     ServerID
	LeaderID     ServerID
	CommitIndex  uint32
	LastApplied  uint32
	LastLogIndex uint32
	LastLogTerm  uint32
	Peers        []PeerStatus
}

func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()

	log := n.st.log()
	s := Status{
		ID:           n.me(),
		Address:      n.st.myself.ServerAddress,
		State:        n.st.getState(),
		Term:         n.st.currentTerm(),
		VotedFor:     n.st.persistent.VotedFor(),
		LeaderID:     n.st.leaderID(),
		CommitIndex:  n.st.volatile.CommitIndex(),
		LastApplied:  n.st.volatile.LastApplied(),
		LastLogIndex: log.LastIndex(),
		LastLogTerm:  log.LastTerm(),
	}

	l, leading := n.st.role.(*leaderRole)
	for _, p := range n.peerList {
		ps := PeerStatus{ID: p.ServerID, Address: p.ServerAddress, Connected: p.Alive()}
		if leading {
			if pr, ok := l.progress[p.ServerID]; ok {
				ps.NextIndex, ps.MatchIndex = pr.nextIndex, pr.matchIndex
			}
		}
		s.Peers = append(s.Peers, ps)
	}
	return s
}
