package raft

import (
	"errors"
	"fmt"
)

// Log is the 1-based, gap-free sequence of entries held by an EntryStore.
// It caches the last index and term; it is not safe for concurrent use and
// relies on the node's lock.
type Log struct {
	store EntryStore

	lastIndex uint32
	lastTerm  uint32
}

func NewLog(store EntryStore) (*Log, error) {
	l := &Log{store: store}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) reload() error {
	index, err := l.store.LastIndex()
	if err != nil {
		return err
	}
	l.lastIndex, l.lastTerm = index, 0
	if index == 0 {
		return nil
	}
	entry, err := l.store.GetEntry(index)
	if err != nil {
		return err
	}
	l.lastTerm = entry.Term
	return nil
}

func (l *Log) LastIndex() uint32 {
	return l.lastIndex
}

func (l *Log) LastTerm() uint32 {
	return l.lastTerm
}

// TermAt returns the term of the entry at index. Index 0 has term 0;
// indexes past the end return ErrNotFound.
func (l *Log) TermAt(index uint32) (uint32, error) {
	if index == 0 {
		return 0, nil
	}
	if index > l.lastIndex {
		return 0, fmt.Errorf("%w: %d > last index %d", ErrNotFound, index, l.lastIndex)
	}
	if index == l.lastIndex {
		return l.lastTerm, nil
	}
	entry, err := l.store.GetEntry(index)
	if err != nil {
		return 0, err
	}
	return entry.Term, nil
}

// Matches reports whether the entry at index carries term.
func (l *Log) Matches(index, term uint32) bool {
	t, err := l.TermAt(index)
	return err == nil && t == term
}

// UpToDate reports whether a log ending at (lastIndex, lastTerm) is at
// least as up-to-date as this one.
func (l *Log) UpToDate(lastIndex, lastTerm uint32) bool {
	if lastTerm != l.lastTerm {
		return lastTerm > l.lastTerm
	}
	return lastIndex >= l.lastIndex
}

func (l *Log) Entry(index uint32) (Entry, error) {
	if index == 0 || index > l.lastIndex {
		return Entry{}, fmt.Errorf("%w: %d", ErrNotFound, index)
	}
	entry, err := l.store.GetEntry(index)
	if err != nil {
		return Entry{}, err
	}
	return *entry, nil
}

// Slice returns at most max entries starting at from.
func (l *Log) Slice(from uint32, max int) ([]Entry, error) {
	if from == 0 {
		from = 1
	}
	if from > l.lastIndex || max <= 0 {
		return nil, nil
	}
	n := l.lastIndex - from + 1
	if n > uint32(max) {
		n = uint32(max)
	}
	entries := make([]Entry, 0, n)
	for i := from; i < from+n; i++ {
		entry, err := l.store.GetEntry(i)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Conflict returns the first index at which entries, placed after
// afterIndex, disagree in term with the existing log. 0 means no existing
// entry would be replaced.
func (l *Log) Conflict(afterIndex uint32, entries []Entry) (uint32, error) {
	for i, e := range entries {
		index := afterIndex + 1 + uint32(i)
		if index > l.lastIndex {
			return 0, nil
		}
		term, err := l.TermAt(index)
		if err != nil {
			return 0, err
		}
		if term != e.Term {
			return index, nil
		}
	}
	return 0, nil
}

// Append places entries after afterIndex. Entries already present with the
// same term are kept; the first entry whose term differs truncates the
// suffix from its index before the remainder is appended. It returns the
// index of the last supplied entry.
func (l *Log) Append(afterIndex uint32, entries []Entry) (uint32, error) {
	if afterIndex > l.lastIndex {
		return 0, fmt.Errorf("%w: append after %d, last index %d",
			ErrNonContiguous, afterIndex, l.lastIndex)
	}
	for i, e := range entries {
		if want := afterIndex + 1 + uint32(i); e.Index != want {
			return 0, fmt.Errorf("%w: entry index %d, want %d", ErrNonContiguous, e.Index, want)
		}
	}

	conflict, err := l.Conflict(afterIndex, entries)
	if err != nil {
		return 0, err
	}

	// first entry not yet in the log
	pos := len(entries)
	if conflict != 0 {
		if err := l.TruncateFrom(conflict); err != nil {
			return 0, err
		}
		pos = int(conflict - afterIndex - 1)
	} else if end := afterIndex + uint32(len(entries)); end > l.lastIndex {
		pos = int(l.lastIndex - afterIndex)
	}

	if pos < len(entries) {
		fresh := entries[pos:]
		if err := l.store.StoreEntries(fresh); err != nil {
			return 0, err
		}
		last := fresh[len(fresh)-1]
		l.lastIndex, l.lastTerm = last.Index, last.Term
	}
	return afterIndex + uint32(len(entries)), nil
}

// TruncateFrom deletes the suffix starting at index. The prefix is never
// touched.
func (l *Log) TruncateFrom(index uint32) error {
	if index == 0 {
		return errors.New("raft: cannot truncate from index 0")
	}
	if index > l.lastIndex {
		return nil
	}
	if err := l.store.DeleteFrom(index); err != nil {
		return err
	}
	return l.reload()
}
