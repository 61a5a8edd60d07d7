package raft

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ServerID is a stable cluster-wide identity, independent of the address.
type ServerID uint32

// ServerAddress is where a server accepts raft connections.
type ServerAddress string

const (
	NoneID      ServerID      = 0
	NoneAddress ServerAddress = ""
)

type Server struct {
	ServerID
	ServerAddress
}

func (s Server) String() string {
	return fmt.Sprintf("Server{ ID: %v, Address: %v }",
		s.ServerID, s.ServerAddress)
}

// Cluster lists every voting server, including the local one.
type Cluster []Server

// ParseCluster parses "id=address,id=address".
func ParseCluster(raw string) (Cluster, error) {
	var c Cluster
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 || kv[1] == "" {
			return nil, fmt.Errorf("%w: malformed server %q", ErrInvalidConfig, part)
		}
		id, err := strconv.ParseUint(kv[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: server id %q: %v", ErrInvalidConfig, kv[0], err)
		}
		c = append(c, Server{ServerID(id), ServerAddress(kv[1])})
	}
	return c, nil
}

func (c Cluster) size() int {
	return len(c)
}

// Quorum returns the strict majority of a cluster of size servers.
func Quorum(size int) int {
	return size/2 + 1
}

func (c Cluster) quorum() int {
	return Quorum(c.size())
}

// without returns the servers other than id, ordered by id.
func (c Cluster) without(id ServerID) Cluster {
	others := make(Cluster, 0, len(c))
	for _, s := range c {
		if s.ServerID != id {
			others = append(others, s)
		}
	}
	sort.Slice(others, func(i, j int) bool {
		return others[i].ServerID < others[j].ServerID
	})
	return others
}
