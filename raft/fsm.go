package raft

// ApplyMsg carries one committed entry to the application, in log order.
type ApplyMsg struct {
	Index   uint32
	Term    uint32
	Command []byte
}

func (n *Node) notifyCommit() {
	select {
	case n.commitCh <- struct{}{}:
	default:
	}
}

// runFSM delivers every committed entry to applyCh exactly once and in
// index order.
func (n *Node) runFSM() {
	defer n.wg.Done()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-n.commitCh:
		}

		for {
			entries, err := n.pendingApply()
			if err != nil {
				n.fatal(err)
			}
			if len(entries) == 0 {
				break
			}
			for _, entry := range entries {
				if !n.apply(entry) {
					return
				}
			}
		}
	}
}

// pendingApply returns the committed entries not yet applied, at most one
// message batch at a time.
func (n *Node) pendingApply() ([]Entry, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	v := &n.st.volatile
	if v.lastApplied >= v.commitIndex {
		return nil, nil
	}
	entries, err := n.st.log().Slice(v.lastApplied+1, n.config.MaxEntriesPerMessage)
	if err != nil {
		return nil, err
	}
	if max := v.commitIndex - v.lastApplied; uint32(len(entries)) > max {
		entries = entries[:max]
	}
	return entries, nil
}

func (n *Node) apply(entry Entry) bool {
	if n.applyCh != nil {
		select {
		case n.applyCh <- ApplyMsg{Index: entry.Index, Term: entry.Term, Command: entry.Command}:
		case <-n.ctx.Done():
			return false
		}
	}

	n.mu.Lock()
	n.st.volatile.lastApplied = entry.Index
	n.mu.Unlock()

	n.logger.Debugf("applied index %d term %d", entry.Index, entry.Term)
	return true
}
