package admin

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"RelayRaft/raft"
)

// StatusSource is what the admin service reports on. *raft.Node satisfies it.
type StatusSource interface {
	Status() raft.Status
}

func encodeStatus(s raft.Status) (*structpb.Struct, error) {
	peers := make([]interface{}, 0, len(s.Peers))
	for _, p := range s.Peers {
		peers = append(peers, map[string]interface{}{
			"id":          uint32(p.ID),
			"address":     string(p.Address),
			"connected":   p.Connected,
			"next_index":  p.NextIndex,
			"match_index": p.MatchIndex,
		})
	}
	return structpb.NewStruct(map[string]interface{}{
		"id":             uint32(s.ID),
		"address":        string(s.Address),
		"state":          s.State.String(),
		"term":           s.Term,
		"voted_for":      uint32(s.VotedFor),
		"leader_id":      uint32(s.LeaderID),
		"commit_index":   s.CommitIndex,
		"last_applied":   s.LastApplied,
		"last_log_index": s.LastLogIndex,
		"last_log_term":  s.LastLogTerm,
		"peers":          peers,
	})
}

func decodeStatus(pb *structpb.Struct) (raft.Status, error) {
	m := pb.AsMap()
	state, err := parseState(stringField(m, "state"))
	if err != nil {
		return raft.Status{}, err
	}
	s := raft.Status{
		ID:           raft.ServerID(uintField(m, "id")),
		Address:      raft.ServerAddress(stringField(m, "address")),
		State:        state,
		Term:         uintField(m, "term"),
		VotedFor:     raft.ServerID(uintField(m, "voted_for")),
		LeaderID:     raft.ServerID(uintField(m, "leader_id")),
		CommitIndex:  uintField(m, "commit_index"),
		LastApplied:  uintField(m, "last_applied"),
		LastLogIndex: uintField(m, "last_log_index"),
		LastLogTerm:  uintField(m, "last_log_term"),
	}
	peers, _ := m["peers"].([]interface{})
	for _, raw := range peers {
		p, ok := raw.(map[string]interface{})
		if !ok {
			return raft.Status{}, fmt.Errorf("admin: malformed peer entry %v", raw)
		}
		connected, _ := p["connected"].(bool)
		s.Peers = append(s.Peers, raft.PeerStatus{
			ID:         raft.ServerID(uintField(p, "id")),
			Address:    raft.ServerAddress(stringField(p, "address")),
			Connected:  connected,
			NextIndex:  uintField(p, "next_index"),
			MatchIndex: uintField(p, "match_index"),
		})
	}
	return s, nil
}

func parseState(name string) (raft.State, error) {
	for _, s := range []raft.State{raft.Candidate, raft.Follower, raft.Leader, raft.Shutdown} {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("admin: unknown state %q", name)
}

// numbers travel as float64 in a Struct
func uintField(m map[string]interface{}, key string) uint32 {
	f, _ := m[key].(float64)
	return uint32(f)
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
