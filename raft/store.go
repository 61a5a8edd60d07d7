package raft

import (
	"fmt"
	"sync"

	"RelayRaft/raft/wire"
)

// Entry is a log record: index, creating term and opaque command.
type Entry = wire.Entry

// EntryStore is used to provide an interface for storing
// and retrieving log entries in a durable fashion.
type EntryStore interface {
	// LastIndex returns the last Entry's Index. 0 for no entries.
	LastIndex() (uint32, error)

	// GetEntry gets a log entry at a given index, or ErrNotFound.
	GetEntry(index uint32) (*Entry, error)

	// StoreEntries appends entries directly after the last stored one.
	StoreEntries(entries []Entry) error

	// DeleteFrom deletes every entry whose index is >= min.
	DeleteFrom(min uint32) error
}

type InMemoryEntryStore struct {
	mu sync.RWMutex

	entries []Entry
}

func NewInMemoryEntryStore() *InMemoryEntryStore {
	return &InMemoryEntryStore{
		// index 0 is a sentinel so that entries[i].Index == i
		entries: []Entry{{Index: 0, Term: 0}},
	}
}

func (s *InMemoryEntryStore) LastIndex() (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.entries[len(s.entries)-1].Index, nil
}

func (s *InMemoryEntryStore) GetEntry(index uint32) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index == 0 || int(index) >= len(s.entries) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, index)
	}
	e := s.entries[index]
	return &e, nil
}

func (s *InMemoryEntryStore) StoreEntries(entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := uint32(len(s.entries))
	for i, e := range entries {
		if e.Index != next+uint32(i) {
			return fmt.Errorf("%w: got index %d, want %d",
				ErrNonContiguous, e.Index, next+uint32(i))
		}
	}
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *InMemoryEntryStore) DeleteFrom(min uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if min == 0 {
		return fmt.Errorf("illegal index of min: %v", min)
	}
	if int(min) < len(s.entries) {
		s.entries = s.entries[:min]
	}
	return nil
}
