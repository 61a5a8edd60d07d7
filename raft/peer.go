package raft

import (
	"net"
	"sync"

	"RelayRaft/raft/wire"
)

// conn is a handshaken stream to one peer.
type conn struct {
	net.Conn

	dec *wire.Decoder
	enc *wire.Encoder

	// outbound is true when the local server dialed it.
	outbound bool

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(c net.Conn, outbound bool) *conn {
	return &conn{
		Conn:     c,
		dec:      wire.NewDecoder(c),
		enc:      wire.NewEncoder(c),
		outbound: outbound,
		done:     make(chan struct{}),
	}
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.Conn.Close()
	})
	return err
}

func (c *conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Peer is the local handle of one remote server. Between any two servers
// at most one stream is kept: when both dial each other, the stream dialed
// by the lower id wins.
type Peer struct {
	Server

	self   ServerID
	logger Logger

	mu       sync.Mutex
	conn     *conn
	shutdown bool

	outbox chan wire.Packet
	kick   chan struct{}
}

func newPeer(self ServerID, s Server, outboxSize int, logger Logger) *Peer {
	return &Peer{
		Server: s,
		self:   self,
		logger: logger.WithField("peer", s.ServerID),
		outbox: make(chan wire.Packet, outboxSize),
		kick:   make(chan struct{}, 1),
	}
}

// Send queues pkt for the peer's writer. It never blocks; a full outbox
// drops the packet, which the protocol tolerates as loss.
func (p *Peer) Send(pkt wire.Packet) bool {
	select {
	case p.outbox <- pkt:
		return true
	default:
		p.logger.Warningf("outbox full, dropping %v", pkt.Tag())
		return false
	}
}

// kickReplication asks the writer to build an AppendEntries now instead of
// waiting for the next heartbeat.
func (p *Peer) kickReplication() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Alive reports whether a handshaken stream is attached.
func (p *Peer) Alive() bool {
	return p.current() != nil
}

func (p *Peer) current() *conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.closed() {
		return nil
	}
	return p.conn
}

// preferred reports whether c was dialed by the lower of the two ids.
func (p *Peer) preferred(c *conn) bool {
	dialer := p.ServerID
	if c.outbound {
		dialer = p.self
	}
	lower := p.self
	if p.ServerID < lower {
		lower = p.ServerID
	}
	return dialer == lower
}

// acceptable reports whether attach would currently take c.
func (p *Peer) acceptable(c *conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.acceptableLocked(c)
}

func (p *Peer) acceptableLocked(c *conn) bool {
	if p.shutdown {
		return false
	}
	if p.conn == nil || p.conn.closed() {
		return true
	}
	return p.preferred(c) || !p.preferred(p.conn)
}

// attach makes c the peer's stream, closing the one it replaces. It
// returns false, leaving c untouched, when the existing stream wins.
func (p *Peer) attach(c *conn) bool {
	p.mu.Lock()
	if !p.acceptableLocked(c) {
		p.mu.Unlock()
		return false
	}
	old := p.conn
	p.conn = c
	p.mu.Unlock()

	if old != nil {
		p.logger.Debugf("replacing stream (outbound: %v) with stream (outbound: %v)",
			old.outbound, c.outbound)
		old.Close()
	}
	return true
}

// detach closes c and forgets it if it is still the peer's stream.
func (p *Peer) detach(c *conn) {
	p.mu.Lock()
	if p.conn == c {
		p.conn = nil
	}
	p.mu.Unlock()

	c.Close()
}

func (p *Peer) close() {
	p.mu.Lock()
	p.shutdown = true
	c := p.conn
	p.conn = nil
	p.mu.Unlock()

	if c != nil {
		c.Close()
	}
}
