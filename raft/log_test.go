package raft

import (
	"errors"
	"testing"
)

// entriesWithTerms builds entries 1..len(terms) with the given terms.
func entriesWithTerms(terms ...uint32) []Entry {
	entries := make([]Entry, len(terms))
	for i, term := range terms {
		entries[i] = Entry{Index: uint32(i + 1), Term: term, Command: []byte{byte(i + 1)}}
	}
	return entries
}

func newTestLog(t *testing.T, terms ...uint32) *Log {
	t.Helper()
	store := NewInMemoryEntryStore()
	if len(terms) > 0 {
		if err := store.StoreEntries(entriesWithTerms(terms...)); err != nil {
			t.Fatal(err)
		}
	}
	l, err := NewLog(store)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func logTerms(t *testing.T, l *Log) []uint32 {
	t.Helper()
	var terms []uint32
	for i := uint32(1); i <= l.LastIndex(); i++ {
		term, err := l.TermAt(i)
		if err != nil {
			t.Fatal(err)
		}
		terms = append(terms, term)
	}
	return terms
}

func equalTerms(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLogEmpty(t *testing.T) {
	l := newTestLog(t)

	if l.LastIndex() != 0 || l.LastTerm() != 0 {
		t.Errorf("empty log: last (%d, %d), want (0, 0)", l.LastIndex(), l.LastTerm())
	}
	if term, err := l.TermAt(0); err != nil || term != 0 {
		t.Errorf("TermAt(0) = %d, %v, want 0, nil", term, err)
	}
	if _, err := l.TermAt(1); !errors.Is(err, ErrNotFound) {
		t.Errorf("TermAt(1) error = %v, want ErrNotFound", err)
	}
	if !l.Matches(0, 0) {
		t.Error("index 0 must match term 0")
	}
}

func TestLogReloadsFromStore(t *testing.T) {
	l := newTestLog(t, 1, 1, 2)

	if l.LastIndex() != 3 || l.LastTerm() != 2 {
		t.Errorf("last (%d, %d), want (3, 2)", l.LastIndex(), l.LastTerm())
	}
	e, err := l.Entry(2)
	if err != nil {
		t.Fatal(err)
	}
	if e.Index != 2 || e.Term != 1 || len(e.Command) != 1 || e.Command[0] != 2 {
		t.Errorf("Entry(2) = %+v", e)
	}
}

func TestLogUpToDate(t *testing.T) {
	l := newTestLog(t, 1, 2, 2)

	cases := []struct {
		index, term uint32
		want        bool
	}{
		{3, 2, true},
		{4, 2, true},
		{2, 2, false},
		{1, 3, true},
		{10, 1, false},
		{0, 0, false},
	}
	for _, c := range cases {
		if got := l.UpToDate(c.index, c.term); got != c.want {
			t.Errorf("UpToDate(%d, %d) = %v, want %v", c.index, c.term, got, c.want)
		}
	}
}

func TestLogAppend(t *testing.T) {
	cases := []struct {
		name     string
		existing []uint32
		after    uint32
		entries  []uint32 // terms of entries placed after `after`
		want     []uint32
		last     uint32
	}{
		{"append to empty", nil, 0, []uint32{1, 1}, []uint32{1, 1}, 2},
		{"append at end", []uint32{1}, 1, []uint32{1, 2}, []uint32{1, 1, 2}, 3},
		{"duplicate is no-op", []uint32{1, 1, 2}, 1, []uint32{1}, []uint32{1, 1, 2}, 2},
		{"stale prefix keeps suffix", []uint32{1, 1, 2}, 0, []uint32{1, 1}, []uint32{1, 1, 2}, 2},
		{"conflict truncates", []uint32{1, 1, 2, 2}, 1, []uint32{1, 3}, []uint32{1, 1, 3}, 3},
		{"partial overlap extends", []uint32{1, 1}, 1, []uint32{1, 2, 2}, []uint32{1, 1, 2, 2}, 4},
		{"empty heartbeat", []uint32{1, 2}, 1, nil, []uint32{1, 2}, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			l := newTestLog(t, c.existing...)
			entries := make([]Entry, len(c.entries))
			for i, term := range c.entries {
				entries[i] = Entry{Index: c.after + 1 + uint32(i), Term: term}
			}

			last, err := l.Append(c.after, entries)
			if err != nil {
				t.Fatal(err)
			}
			if last != c.last {
				t.Errorf("Append returned %d, want %d", last, c.last)
			}
			if got := logTerms(t, l); !equalTerms(got, c.want) {
				t.Errorf("log terms %v, want %v", got, c.want)
			}
			if l.LastTerm() != c.want[len(c.want)-1] {
				t.Errorf("cached last term %d, want %d", l.LastTerm(), c.want[len(c.want)-1])
			}
		})
	}
}

func TestLogAppendRejectsGaps(t *testing.T) {
	l := newTestLog(t, 1)

	if _, err := l.Append(3, []Entry{{Index: 4, Term: 1}}); !errors.Is(err, ErrNonContiguous) {
		t.Errorf("append past end: %v, want ErrNonContiguous", err)
	}
	if _, err := l.Append(1, []Entry{{Index: 3, Term: 1}}); !errors.Is(err, ErrNonContiguous) {
		t.Errorf("misnumbered entry: %v, want ErrNonContiguous", err)
	}
	if l.LastIndex() != 1 {
		t.Errorf("log changed by rejected append: last index %d", l.LastIndex())
	}
}

func TestLogConflict(t *testing.T) {
	l := newTestLog(t, 1, 1, 2)

	conflict, err := l.Conflict(1, []Entry{{Index: 2, Term: 1}, {Index: 3, Term: 3}})
	if err != nil {
		t.Fatal(err)
	}
	if conflict != 3 {
		t.Errorf("Conflict = %d, want 3", conflict)
	}
	if conflict, _ := l.Conflict(3, []Entry{{Index: 4, Term: 3}}); conflict != 0 {
		t.Errorf("Conflict past end = %d, want 0", conflict)
	}
}

func TestLogSlice(t *testing.T) {
	l := newTestLog(t, 1, 1, 2, 2, 3)

	entries, err := l.Slice(2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 || entries[0].Index != 2 || entries[2].Index != 4 {
		t.Errorf("Slice(2, 3) = %+v", entries)
	}
	if entries, _ := l.Slice(6, 3); entries != nil {
		t.Errorf("Slice past end = %+v, want nil", entries)
	}
	if entries, _ := l.Slice(4, 10); len(entries) != 2 {
		t.Errorf("Slice(4, 10) returned %d entries, want 2", len(entries))
	}
}

func TestLogTruncateFrom(t *testing.T) {
	l := newTestLog(t, 1, 1, 2, 2)

	if err := l.TruncateFrom(3); err != nil {
		t.Fatal(err)
	}
	if l.LastIndex() != 2 || l.LastTerm() != 1 {
		t.Errorf("after truncate: last (%d, %d), want (2, 1)", l.LastIndex(), l.LastTerm())
	}
	if err := l.TruncateFrom(0); err == nil {
		t.Error("truncating from index 0 must fail")
	}
	if err := l.TruncateFrom(9); err != nil || l.LastIndex() != 2 {
		t.Errorf("truncate past end: %v, last index %d", err, l.LastIndex())
	}
}
