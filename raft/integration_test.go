package raft

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// liveCluster runs started nodes over an InMemoryNetwork and records what
// each of them applies.
type liveCluster struct {
	t       *testing.T
	network *InMemoryNetwork
	config  func(c *Configuration)

	nodes   map[ServerID]*Node
	stores  map[ServerID]*testStores
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	applied map[ServerID][]ApplyMsg
}

type testStores struct {
	entries *InMemoryEntryStore
	persist *InMemoryPersistStore
}

func fastConfig(c *Configuration) {
	c.ElectionTimeoutMin = 60 * time.Millisecond
	c.ElectionTimeoutMax = 120 * time.Millisecond
	c.HeartbeatInterval = 15 * time.Millisecond
	c.DialTimeout = 200 * time.Millisecond
	c.HandshakeTimeout = 200 * time.Millisecond
}

func newLiveCluster(t *testing.T, size int) *liveCluster {
	c := &liveCluster{
		t:       t,
		network: NewInMemoryNetwork(),
		config:  fastConfig,
		nodes:   make(map[ServerID]*Node),
		stores:  make(map[ServerID]*testStores),
		done:    make(chan struct{}),
		applied: make(map[ServerID][]ApplyMsg),
	}
	for id := ServerID(1); id <= ServerID(size); id++ {
		c.stores[id] = &testStores{NewInMemoryEntryStore(), NewInMemoryPersistStore()}
		c.start(id, size)
	}
	t.Cleanup(c.stop)
	return c
}

func (c *liveCluster) start(id ServerID, size int) {
	c.t.Helper()

	cfg := NewConfiguration(Server{id, testAddr(id)}, testCluster(size))
	c.config(cfg)
	applyCh := make(chan ApplyMsg, 64)
	n, err := NewNode(cfg, NewDiscardLogger(), c.network.NewTransport(testAddr(id)),
		c.stores[id].entries, c.stores[id].persist, applyCh)
	if err != nil {
		c.t.Fatal(err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case msg := <-applyCh:
				c.mu.Lock()
				c.applied[id] = append(c.applied[id], msg)
				c.mu.Unlock()
			case <-c.done:
				return
			}
		}
	}()

	c.mu.Lock()
	c.nodes[id] = n
	c.mu.Unlock()
	n.Start()
}

func (c *liveCluster) stop() {
	for _, n := range c.nodes {
		n.Stop()
	}
	close(c.done)
	c.wg.Wait()
}

func (c *liveCluster) appliedBy(id ServerID) []ApplyMsg {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]ApplyMsg(nil), c.applied[id]...)
}

// leader returns the single leader of the highest term among the nodes in
// ids, or nil.
func (c *liveCluster) leader(ids ...ServerID) *Node {
	var found *Node
	for _, id := range ids {
		n := c.nodes[id]
		if !n.IsLeader() {
			continue
		}
		if found == nil || n.Term() > found.Term() {
			found = n
		}
	}
	return found
}

func (c *liveCluster) ids() []ServerID {
	ids := make([]ServerID, 0, len(c.nodes))
	for id := ServerID(1); id <= ServerID(len(c.nodes)); id++ {
		ids = append(ids, id)
	}
	return ids
}

// checkElectionSafety fails the test if two nodes lead the same term.
func (c *liveCluster) checkElectionSafety() {
	c.t.Helper()

	leaders := make(map[uint32]ServerID)
	for _, id := range c.ids() {
		st := c.nodes[id].Status()
		if st.State != Leader {
			continue
		}
		if other, ok := leaders[st.Term]; ok {
			c.t.Fatalf("nodes %d and %d both lead term %d", other, id, st.Term)
		}
		leaders[st.Term] = id
	}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out after %v waiting for %s", timeout, what)
}

func (c *liveCluster) waitForLeader(ids ...ServerID) *Node {
	c.t.Helper()

	var leader *Node
	waitFor(c.t, 3*time.Second, "a leader", func() bool {
		c.checkElectionSafety()
		leader = c.leader(ids...)
		if leader == nil {
			return false
		}
		// every node in ids follows it
		for _, id := range ids {
			if c.nodes[id].LeaderID() != leader.ID() || c.nodes[id].Term() != leader.Term() {
				return false
			}
		}
		return true
	})
	return leader
}

// waitForApplied waits until every node in ids applied exactly want, in
// order.
func (c *liveCluster) waitForApplied(want []string, ids ...ServerID) {
	c.t.Helper()

	waitFor(c.t, 3*time.Second, fmt.Sprintf("%d applied commands", len(want)), func() bool {
		for _, id := range ids {
			if len(c.appliedBy(id)) < len(want) {
				return false
			}
		}
		return true
	})
	for _, id := range ids {
		got := c.appliedBy(id)
		if len(got) != len(want) {
			c.t.Errorf("node %d applied %d entries, want %d", id, len(got), len(want))
			continue
		}
		for i, msg := range got {
			if msg.Index != uint32(i+1) || string(msg.Command) != want[i] {
				c.t.Errorf("node %d apply #%d = {%d %d %q}, want {%d %q}",
					id, i, msg.Index, msg.Term, msg.Command, i+1, want[i])
			}
		}
	}
}

func TestClusterElectsOneLeader(t *testing.T) {
	c := newLiveCluster(t, 3)
	leader := c.waitForLeader(c.ids()...)

	for _, id := range c.ids() {
		n := c.nodes[id]
		if n.Term() != leader.Term() {
			t.Errorf("node %d at term %d, leader at %d", id, n.Term(), leader.Term())
		}
		if n.CommitIndex() != 0 {
			t.Errorf("node %d commit index %d on an empty log", id, n.CommitIndex())
		}
	}

	waitFor(t, time.Second, "leader streams to every peer", func() bool {
		for _, p := range leader.Status().Peers {
			if !p.Connected {
				return false
			}
		}
		return true
	})
}

func TestClusterReplicatesAndApplies(t *testing.T) {
	c := newLiveCluster(t, 3)
	leader := c.waitForLeader(c.ids()...)

	var want []string
	for i := 0; i < 20; i++ {
		cmd := fmt.Sprintf("cmd-%d", i)
		index, term, err := leader.Propose([]byte(cmd))
		if err != nil {
			t.Fatalf("Propose(%s): %v", cmd, err)
		}
		if index != uint32(i+1) || term != leader.Term() {
			t.Fatalf("Propose(%s) = %d, %d", cmd, index, term)
		}
		want = append(want, cmd)
	}
	c.waitForApplied(want, c.ids()...)

	for _, id := range c.ids() {
		if ci := c.nodes[id].CommitIndex(); ci != 20 {
			t.Errorf("node %d commit index %d, want 20", id, ci)
		}
	}

	follower := c.nodes[leader.ID()%3+1]
	if _, _, err := follower.Propose([]byte("x")); err != ErrNotLeader {
		t.Errorf("follower Propose error = %v, want ErrNotLeader", err)
	}
}

func TestClusterLeaderPartition(t *testing.T) {
	c := newLiveCluster(t, 3)
	old := c.waitForLeader(c.ids()...)
	oldTerm := old.Term()

	if _, _, err := old.Propose([]byte("before")); err != nil {
		t.Fatal(err)
	}
	c.waitForApplied([]string{"before"}, c.ids()...)

	c.network.Isolate(testAddr(old.ID()))

	// the stale leader keeps accepting proposals it can never commit
	if _, _, err := old.Propose([]byte("lost")); err != nil {
		t.Fatal(err)
	}

	var rest []ServerID
	for _, id := range c.ids() {
		if id != old.ID() {
			rest = append(rest, id)
		}
	}
	leader := c.waitForLeader(rest...)
	if leader.Term() <= oldTerm {
		t.Fatalf("new leader term %d, old %d", leader.Term(), oldTerm)
	}
	if _, _, err := leader.Propose([]byte("after")); err != nil {
		t.Fatal(err)
	}
	c.waitForApplied([]string{"before", "after"}, rest...)

	c.network.Rejoin(testAddr(old.ID()))
	waitFor(t, 3*time.Second, "old leader to step down", func() bool {
		c.checkElectionSafety()
		return !old.IsLeader() && old.Term() >= leader.Term()
	})
	c.waitForApplied([]string{"before", "after"}, c.ids()...)

	final := c.waitForLeader(c.ids()...)
	st := final.Status()
	for _, id := range c.ids() {
		other := c.nodes[id].Status()
		if other.LastLogIndex != st.LastLogIndex || other.LastLogTerm != st.LastLogTerm {
			t.Errorf("node %d log ends at (%d, %d), leader at (%d, %d)",
				id, other.LastLogIndex, other.LastLogTerm, st.LastLogIndex, st.LastLogTerm)
		}
	}
}

func TestClusterFollowerRestart(t *testing.T) {
	c := newLiveCluster(t, 3)
	leader := c.waitForLeader(c.ids()...)

	if _, _, err := leader.Propose([]byte("one")); err != nil {
		t.Fatal(err)
	}
	c.waitForApplied([]string{"one"}, c.ids()...)

	id := leader.ID()%3 + 1
	c.nodes[id].Stop()
	term := c.nodes[id].Term()

	if _, _, err := leader.Propose([]byte("two")); err != nil {
		t.Fatal(err)
	}

	// the restarted node recovers its term and log from the stores and
	// applies everything again from index 1
	c.mu.Lock()
	c.applied[id] = nil
	c.mu.Unlock()
	c.start(id, 3)
	if got := c.nodes[id].Term(); got < term {
		t.Errorf("restarted at term %d, was %d", got, term)
	}
	c.waitForApplied([]string{"one", "two"}, c.ids()...)
}

func TestSingleNodeCommitsAlone(t *testing.T) {
	c := newLiveCluster(t, 1)
	leader := c.waitForLeader(1)

	if _, _, err := leader.Propose([]byte("solo")); err != nil {
		t.Fatal(err)
	}
	c.waitForApplied([]string{"solo"}, 1)
}
