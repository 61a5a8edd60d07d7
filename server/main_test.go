package main

import (
	"testing"

	"RelayRaft/raft"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		raw     string
		want    raft.ServerID
		wantErr bool
	}{
		{"7", 7, false},
		{"0", raft.NoneID, false},
		{"4294967295", 4294967295, false},
		{"4294967296", 0, true},
		{"4294967297", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := parseID(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseID(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseID(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
