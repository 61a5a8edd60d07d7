package raft

import (
	"strconv"
	"sync"
)

// PersistStore durably records the node's term and vote.
type PersistStore interface {
	SetUint64(key []byte, val uint64) error

	// GetUint64 returns the uint64 value for key, or 0 if key was not found.
	GetUint64(key []byte) (uint64, error)
}

var (
	keyCurrentTerm = []byte("CurrentTerm")
	keyVotedFor    = []byte("VotedFor")
)

type InMemoryPersistStore struct {
	mu sync.RWMutex

	maps map[string]string
}

func NewInMemoryPersistStore() *InMemoryPersistStore {
	return &InMemoryPersistStore{
		maps: make(map[string]string),
	}
}

func (s *InMemoryPersistStore) SetUint64(key []byte, val uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maps[string(key)] = strconv.FormatUint(val, 10)
	return nil
}

func (s *InMemoryPersistStore) GetUint64(key []byte) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.maps[string(key)]
	if !ok {
		return 0, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

// PersistentState is the durable part of a server: current term, the vote
// cast in that term and the log. Every mutation reaches the stores before
// the call returns.
type PersistentState struct {
	currentTerm uint32
	votedFor    ServerID

	log   *Log
	store PersistStore
}

// NewPersistentState loads the state previously recorded in store and entries.
func NewPersistentState(store PersistStore, entries EntryStore) (*PersistentState, error) {
	term, err := store.GetUint64(keyCurrentTerm)
	if err != nil {
		return nil, err
	}
	voted, err := store.GetUint64(keyVotedFor)
	if err != nil {
		return nil, err
	}
	log, err := NewLog(entries)
	if err != nil {
		return nil, err
	}
	return &PersistentState{
		currentTerm: uint32(term),
		votedFor:    ServerID(voted),
		log:         log,
		store:       store,
	}, nil
}

func (s *PersistentState) CurrentTerm() uint32 {
	return s.currentTerm
}

func (s *PersistentState) VotedFor() ServerID {
	return s.votedFor
}

func (s *PersistentState) Log() *Log {
	return s.log
}

// SetTerm advances the current term and clears the vote. Setting the
// current term again is a no-op; moving backwards is an invariant error.
func (s *PersistentState) SetTerm(term uint32) error {
	if term < s.currentTerm {
		return invariant("current term %d cannot move back to %d", s.currentTerm, term)
	}
	if term == s.currentTerm {
		return nil
	}
	// term first: a crash in between leaves a stale vote, never a reused one
	if err := s.store.SetUint64(keyCurrentTerm, uint64(term)); err != nil {
		return err
	}
	if err := s.store.SetUint64(keyVotedFor, uint64(NoneID)); err != nil {
		return err
	}
	s.currentTerm = term
	s.votedFor = NoneID
	return nil
}

// SetVotedFor records a vote for id in term, advancing the term first if
// needed. It fails with ErrStaleTerm when term is behind the current term.
func (s *PersistentState) SetVotedFor(term uint32, id ServerID) error {
	if term < s.currentTerm {
		return ErrStaleTerm
	}
	if err := s.SetTerm(term); err != nil {
		return err
	}
	if err := s.store.SetUint64(keyVotedFor, uint64(id)); err != nil {
		return err
	}
	s.votedFor = id
	return nil
}
