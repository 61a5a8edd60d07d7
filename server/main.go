package main

import (
	"flag"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"RelayRaft/admin"
	"RelayRaft/raft"
)

func main() {
	id := flag.String("id", "0", "server id, 0 picks a random one")
	listen := flag.String("listen", "127.0.0.1:7651", "raft listen address")
	peers := flag.String("peers", "", "other servers as id=address,id=address")
	adminAddr := flag.String("admin", "", "admin gRPC listen address, empty to disable")
	electionMin := flag.Duration("election-min", raft.DefaultElectionTimeoutMin, "minimum election timeout")
	electionMax := flag.Duration("election-max", raft.DefaultElectionTimeoutMax, "maximum election timeout")
	heartbeat := flag.Duration("heartbeat", raft.DefaultHeartbeatInterval, "leader heartbeat interval")
	batch := flag.Int("batch", raft.DefaultMaxEntries, "max entries per AppendEntries")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("bad -log-level: %v", err)
	}
	logger := raft.NewLogrusLogger(os.Stdout, level)

	me, err := parseID(*id)
	if err != nil {
		logger.Fatalf("bad -id: %v", err)
	}
	if me == raft.NoneID {
		me = raft.RandomID()
		logger.Infof("no -id given, using %d", me)
	}

	cluster, err := raft.ParseCluster(*peers)
	if err != nil {
		logger.Fatalf("bad -peers: %v", err)
	}

	trans, err := raft.NewTCPTransport(raft.ServerAddress(*listen), nil)
	if err != nil {
		logger.Fatalf("failed to listen on %s: %v", *listen, err)
	}

	configuration := raft.NewConfiguration(raft.Server{
		ServerID:      me,
		ServerAddress: trans.Addr(),
	}, cluster)
	configuration.ElectionTimeoutMin = *electionMin
	configuration.ElectionTimeoutMax = *electionMax
	configuration.HeartbeatInterval = *heartbeat
	configuration.MaxEntriesPerMessage = *batch

	apply := make(chan raft.ApplyMsg, 64)
	node, err := raft.NewNode(configuration, logger, trans,
		raft.NewInMemoryEntryStore(), raft.NewInMemoryPersistStore(), apply)
	if err != nil {
		logger.Fatalf("failed to create node: %v", err)
	}

	go func() {
		for msg := range apply {
			logger.Infof("apply index %d term %d: %d bytes", msg.Index, msg.Term, len(msg.Command))
		}
	}()

	var adminServer *admin.Server
	if *adminAddr != "" {
		l, err := net.Listen("tcp", *adminAddr)
		if err != nil {
			logger.Fatalf("failed to listen on %s: %v", *adminAddr, err)
		}
		adminServer = admin.NewServer(node, logger.WithField("component", "admin"))
		go func() {
			if err := adminServer.Serve(l); err != nil {
				logger.Errorf("admin service stopped: %v", err)
			}
		}()
	}

	node.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Infof("received %v, shutting down", s)

	if adminServer != nil {
		adminServer.Stop()
	}
	stopped := make(chan struct{})
	go func() {
		node.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		logger.Warningf("node did not stop in time")
	}
}

// parseID reads a server id; ids are 32 bits on the wire.
func parseID(raw string) (raft.ServerID, error) {
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return raft.NoneID, err
	}
	return raft.ServerID(v), nil
}
