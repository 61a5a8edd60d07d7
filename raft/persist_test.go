package raft

import (
	"errors"
	"testing"
)

func TestInMemoryPersistStore(t *testing.T) {
	s := NewInMemoryPersistStore()

	if v, err := s.GetUint64([]byte("missing")); err != nil || v != 0 {
		t.Errorf("missing key: %d, %v, want 0, nil", v, err)
	}
	if err := s.SetUint64([]byte("k"), 42); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.GetUint64([]byte("k")); v != 42 {
		t.Errorf("GetUint64 = %d, want 42", v)
	}
}

func TestPersistentStateTerm(t *testing.T) {
	ps, err := NewPersistentState(NewInMemoryPersistStore(), NewInMemoryEntryStore())
	if err != nil {
		t.Fatal(err)
	}

	if err := ps.SetVotedFor(1, 7); err != nil {
		t.Fatal(err)
	}
	if ps.CurrentTerm() != 1 || ps.VotedFor() != 7 {
		t.Errorf("after vote: term %d voted %d, want 1, 7", ps.CurrentTerm(), ps.VotedFor())
	}

	// same term keeps the vote
	if err := ps.SetTerm(1); err != nil {
		t.Fatal(err)
	}
	if ps.VotedFor() != 7 {
		t.Errorf("SetTerm(current) cleared the vote")
	}

	if err := ps.SetTerm(3); err != nil {
		t.Fatal(err)
	}
	if ps.CurrentTerm() != 3 || ps.VotedFor() != NoneID {
		t.Errorf("after SetTerm(3): term %d voted %d, want 3, none", ps.CurrentTerm(), ps.VotedFor())
	}

	var inv *InvariantError
	if err := ps.SetTerm(2); !errors.As(err, &inv) {
		t.Errorf("SetTerm backwards: %v, want InvariantError", err)
	}
	if err := ps.SetVotedFor(2, 7); !errors.Is(err, ErrStaleTerm) {
		t.Errorf("SetVotedFor stale term: %v, want ErrStaleTerm", err)
	}
	if ps.CurrentTerm() != 3 {
		t.Errorf("term moved to %d", ps.CurrentTerm())
	}
}

func TestPersistentStateReload(t *testing.T) {
	store, entries := NewInMemoryPersistStore(), NewInMemoryEntryStore()
	ps, err := NewPersistentState(store, entries)
	if err != nil {
		t.Fatal(err)
	}
	if err := ps.SetVotedFor(5, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := ps.Log().Append(0, entriesWithTerms(4, 5)); err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewPersistentState(store, entries)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.CurrentTerm() != 5 || reloaded.VotedFor() != 2 {
		t.Errorf("reloaded term %d voted %d, want 5, 2", reloaded.CurrentTerm(), reloaded.VotedFor())
	}
	if reloaded.Log().LastIndex() != 2 || reloaded.Log().LastTerm() != 5 {
		t.Errorf("reloaded log last (%d, %d), want (2, 5)",
			reloaded.Log().LastIndex(), reloaded.Log().LastTerm())
	}
}
