// Package wire implements the binary protocol spoken between raft nodes.
//
// Every packet is framed as
//
//	[version:1][tag:2][fixed fields][variable section][EOT:1]
//
// with all integers big-endian. Request tags are positive and the matching
// result carries the negated tag, so a result can be paired with the
// request kind without a correlation id.
package wire

import "fmt"

// Version is the protocol version written at the head of every packet.
const Version byte = 0x01

// Framing sentinels.
const (
	ACK byte = 0x06 // boolean true
	NAK byte = 0x15 // boolean false
	RS  byte = 0x1E // closes every AppendEntries entry
	EOT byte = 0x04 // closes every packet
)

// MaxEntries is the largest entry batch an AppendEntries can carry.
const MaxEntries = 255

// MaxCommandSize bounds a single entry payload on the wire.
const MaxCommandSize = 16 << 20

// Tag identifies the packet variant on the wire.
type Tag int16

const (
	TagHandshake           Tag = 1
	TagRequestVote         Tag = 2
	TagRequestVoteResult   Tag = -TagRequestVote
	TagAppendEntries       Tag = 3
	TagAppendEntriesResult Tag = -TagAppendEntries
)

// IsResult reports whether t tags a response.
func (t Tag) IsResult() bool {
	return t < 0
}

// Request returns the request tag a result answers.
func (t Tag) Request() Tag {
	if t < 0 {
		return -t
	}
	return t
}

func (t Tag) String() string {
	switch t {
	case TagHandshake:
		return "Handshake"
	case TagRequestVote:
		return "RequestVote"
	case TagRequestVoteResult:
		return "RequestVoteResult"
	case TagAppendEntries:
		return "AppendEntries"
	case TagAppendEntriesResult:
		return "AppendEntriesResult"
	default:
		return fmt.Sprintf("Tag(%d)", int16(t))
	}
}

// Packet is one of Handshake, RequestVote, RequestVoteResult,
// AppendEntries or AppendEntriesResult. The set is closed.
type Packet interface {
	Tag() Tag
	packet()
}

// Entry is a single replicated log record.
type Entry struct {
	Index   uint32
	Term    uint32
	Command []byte
}

func (e Entry) String() string {
	return fmt.Sprintf("Entry{Index: %d, Term: %d, Len: %d}",
		e.Index, e.Term, len(e.Command))
}

// Handshake opens every connection and names the sender.
type Handshake struct {
	Term uint32
	ID   uint32
}

type RequestVote struct {
	Term         uint32
	CandidateID  uint32
	LastLogIndex uint32
	LastLogTerm  uint32
}

type RequestVoteResult struct {
	Term        uint32
	VoteGranted bool
}

type AppendEntries struct {
	Term         uint32
	LeaderID     uint32
	PrevLogIndex uint32
	PrevLogTerm  uint32
	LeaderCommit uint32
	Entries      []Entry
}

// AppendEntriesResult answers an AppendEntries. On success MatchIndex is
// the last index the follower now shares with the leader; on failure
// ConflictIndex hints where the leader should resume.
type AppendEntriesResult struct {
	Term          uint32
	Success       bool
	MatchIndex    uint32
	ConflictIndex uint32
}

func (Handshake) Tag() Tag           { return TagHandshake }
func (RequestVote) Tag() Tag         { return TagRequestVote }
func (RequestVoteResult) Tag() Tag   { return TagRequestVoteResult }
func (AppendEntries) Tag() Tag       { return TagAppendEntries }
func (AppendEntriesResult) Tag() Tag { return TagAppendEntriesResult }

func (Handshake) packet()           {}
func (RequestVote) packet()         {}
func (RequestVoteResult) packet()   {}
func (AppendEntries) packet()       {}
func (AppendEntriesResult) packet() {}

// TermOf returns the term carried by p.
func TermOf(p Packet) uint32 {
	switch m := p.(type) {
	case Handshake:
		return m.Term
	case RequestVote:
		return m.Term
	case RequestVoteResult:
		return m.Term
	case AppendEntries:
		return m.Term
	case AppendEntriesResult:
		return m.Term
	default:
		return 0
	}
}
