package raft

type State uint32

const (
	Candidate State = iota + 1

	Follower

	Leader

	Shutdown
)

func (s State) String() string {
	switch s {
	case Candidate:
		return "Candidate"
	case Follower:
		return "Follower"
	case Leader:
		return "Leader"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// role is the data owned by the active State. Exactly one is installed on
// a node at a time.
type role interface {
	state() State
}

type followerRole struct {
	// leaderID is the leader recognised for the current term, NoneID if unknown.
	leaderID ServerID
}

type candidateRole struct {
	term  uint32
	votes map[ServerID]bool
}

type leaderRole struct {
	progress map[ServerID]*progress
}

type shutdownRole struct{}

func (*followerRole) state() State  { return Follower }
func (*candidateRole) state() State { return Candidate }
func (*leaderRole) state() State    { return Leader }
func (*shutdownRole) state() State  { return Shutdown }

// granted counts the votes collected, self included.
func (c *candidateRole) granted() int {
	return len(c.votes)
}

// progress is the leader's view of one follower's log.
type progress struct {
	nextIndex  uint32
	matchIndex uint32
}

func newLeaderRole(peers []ServerID, lastIndex uint32) *leaderRole {
	l := &leaderRole{progress: make(map[ServerID]*progress, len(peers))}
	for _, id := range peers {
		l.progress[id] = &progress{nextIndex: lastIndex + 1, matchIndex: 0}
	}
	return l
}

// matchCount returns how many followers hold index.
func (l *leaderRole) matchCount(index uint32) int {
	cnt := 0
	for _, p := range l.progress {
		if p.matchIndex >= index {
			cnt++
		}
	}
	return cnt
}

// VolatileState is rebuilt after every restart.
type VolatileState struct {
	commitIndex uint32
	lastApplied uint32
}

func (v *VolatileState) CommitIndex() uint32 {
	return v.commitIndex
}

func (v *VolatileState) LastApplied() uint32 {
	return v.lastApplied
}

// serverState is everything the node mutates, guarded by Node.mu.
type serverState struct {
	myself Server

	persistent *PersistentState
	volatile   VolatileState

	role role
}

func (s *serverState) me() ServerID {
	return s.myself.ServerID
}

func (s *serverState) getState() State {
	return s.role.state()
}

func (s *serverState) currentTerm() uint32 {
	return s.persistent.CurrentTerm()
}

func (s *serverState) log() *Log {
	return s.persistent.Log()
}

func (s *serverState) leaderID() ServerID {
	switch r := s.role.(type) {
	case *followerRole:
		return r.leaderID
	case *leaderRole:
		return s.me()
	default:
		return NoneID
	}
}
