package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"RelayRaft/admin"
	"RelayRaft/raft"
)

func main() {
	addrs := flag.String("admin", "127.0.0.1:9651", "admin addresses, comma separated")
	timeout := flag.Duration("timeout", 2*time.Second, "per node request timeout")
	verbose := flag.Bool("v", false, "show peer progress")
	flag.Parse()

	logger := raft.NewLogrusLogger(os.Stderr, logrus.WarnLevel)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADMIN\tID\tSTATE\tTERM\tLEADER\tCOMMIT\tAPPLIED\tLAST LOG")

	failed := false
	for _, addr := range strings.Split(*addrs, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		st, err := query(addr, *timeout)
		if err != nil {
			logger.Errorf("%s: %v", addr, err)
			fmt.Fprintf(w, "%s\t-\tunreachable\t-\t-\t-\t-\t-\n", addr)
			failed = true
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%v\t%d\t%d\t%d\t%d\t(%d, %d)\n",
			addr, st.ID, st.State, st.Term, st.LeaderID,
			st.CommitIndex, st.LastApplied, st.LastLogIndex, st.LastLogTerm)
		if *verbose {
			for _, p := range st.Peers {
				fmt.Fprintf(w, "  peer %d\t%s\tconnected=%v\tnext=%d\tmatch=%d\t\t\t\n",
					p.ID, p.Address, p.Connected, p.NextIndex, p.MatchIndex)
			}
		}
	}
	w.Flush()

	if failed {
		os.Exit(1)
	}
}

func query(addr string, timeout time.Duration) (raft.Status, error) {
	client, err := admin.NewClient(addr)
	if err != nil {
		return raft.Status{}, err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return client.Status(ctx)
}
