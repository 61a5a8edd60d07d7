package raft

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
)

// Transport supplies ordered byte streams between servers. Connection
// identity is established above it by the handshake.
type Transport interface {
	// Dial opens a stream to address.
	Dial(ctx context.Context, address ServerAddress) (net.Conn, error)

	// Accept blocks until a remote server opens a stream, or the
	// transport is closed.
	Accept() (net.Conn, error)

	// Addr returns the address remote servers dial.
	Addr() ServerAddress

	Close() error
}

// TCPTransport is a Transport over TCP, optionally wrapped in TLS.
type TCPTransport struct {
	listener net.Listener
	dialer   net.Dialer
	tls      *tls.Config
}

// NewTCPTransport listens on address. A non-nil tlsConfig wraps both the
// listener and dialed connections.
func NewTCPTransport(address ServerAddress, tlsConfig *tls.Config) (*TCPTransport, error) {
	l, err := net.Listen("tcp", string(address))
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		l = tls.NewListener(l, tlsConfig)
	}
	return &TCPTransport{listener: l, tls: tlsConfig}, nil
}

func (t *TCPTransport) Dial(ctx context.Context, address ServerAddress) (net.Conn, error) {
	if t.tls != nil {
		d := tls.Dialer{NetDialer: &t.dialer, Config: t.tls}
		return d.DialContext(ctx, "tcp", string(address))
	}
	return t.dialer.DialContext(ctx, "tcp", string(address))
}

func (t *TCPTransport) Accept() (net.Conn, error) {
	return t.listener.Accept()
}

func (t *TCPTransport) Addr() ServerAddress {
	return ServerAddress(t.listener.Addr().String())
}

func (t *TCPTransport) Close() error {
	return t.listener.Close()
}

// InMemoryNetwork connects InMemoryTransports with net.Pipe. Servers can
// be cut off and rejoined to simulate partitions.
type InMemoryNetwork struct {
	mu sync.Mutex

	transports map[ServerAddress]*InMemoryTransport
	isolated   map[ServerAddress]bool
}

func NewInMemoryNetwork() *InMemoryNetwork {
	return &InMemoryNetwork{
		transports: make(map[ServerAddress]*InMemoryTransport),
		isolated:   make(map[ServerAddress]bool),
	}
}

// NewTransport registers a transport reachable at address.
func (n *InMemoryNetwork) NewTransport(address ServerAddress) *InMemoryTransport {
	t := &InMemoryTransport{
		address: address,
		network: n,
		acceptc: make(chan net.Conn),
		closed:  make(chan struct{}),
		conns:   make(map[net.Conn]ServerAddress),
	}
	n.mu.Lock()
	n.transports[address] = t
	n.mu.Unlock()
	return t
}

// Isolate drops every stream of address and refuses new ones until Rejoin.
func (n *InMemoryNetwork) Isolate(address ServerAddress) {
	n.mu.Lock()
	n.isolated[address] = true
	var all []*InMemoryTransport
	for _, t := range n.transports {
		all = append(all, t)
	}
	n.mu.Unlock()

	for _, t := range all {
		if t.address == address {
			t.dropAll()
		} else {
			t.dropTo(address)
		}
	}
}

func (n *InMemoryNetwork) Rejoin(address ServerAddress) {
	n.mu.Lock()
	delete(n.isolated, address)
	n.mu.Unlock()
}

func (n *InMemoryNetwork) route(from, to ServerAddress) (*InMemoryTransport, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.isolated[from] || n.isolated[to] {
		return nil, false
	}
	t, ok := n.transports[to]
	return t, ok
}

type InMemoryTransport struct {
	address ServerAddress
	network *InMemoryNetwork

	acceptc chan net.Conn

	mu        sync.Mutex
	conns     map[net.Conn]ServerAddress // stream -> remote address
	closed    chan struct{}
	closeOnce sync.Once
}

func (t *InMemoryTransport) Dial(ctx context.Context, address ServerAddress) (net.Conn, error) {
	remote, ok := t.network.route(t.address, address)
	if !ok {
		return nil, &net.OpError{Op: "dial", Net: "pipe", Err: errUnreachable}
	}

	a, b := net.Pipe()
	peer := remote.track(b, t.address)
	local := t.track(a, address)

	var err error
	select {
	case remote.acceptc <- peer:
		return local, nil
	case <-remote.closed:
		err = &net.OpError{Op: "dial", Net: "pipe", Err: ErrTransportClosed}
	case <-t.closed:
		err = ErrTransportClosed
	case <-ctx.Done():
		err = ctx.Err()
	}
	local.Close()
	peer.Close()
	return nil, err
}

func (t *InMemoryTransport) Accept() (net.Conn, error) {
	select {
	case c := <-t.acceptc:
		return c, nil
	case <-t.closed:
		return nil, ErrTransportClosed
	}
}

func (t *InMemoryTransport) Addr() ServerAddress {
	return t.address
}

func (t *InMemoryTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.dropAll()
	})
	return nil
}

// track registers c until it is closed and returns the handle to use.
func (t *InMemoryTransport) track(c net.Conn, remote ServerAddress) net.Conn {
	tc := &trackedConn{Conn: c, owner: t}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.conns[tc] = remote
	return tc
}

func (t *InMemoryTransport) untrack(c net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.conns, c)
}

func (t *InMemoryTransport) tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.conns)
}

func (t *InMemoryTransport) dropAll() {
	t.mu.Lock()

	conns := t.conns
	t.conns = make(map[net.Conn]ServerAddress)
	t.mu.Unlock()

	for c := range conns {
		c.Close()
	}
}

func (t *InMemoryTransport) dropTo(remote ServerAddress) {
	t.mu.Lock()
	var drop []net.Conn
	for c, addr := range t.conns {
		if addr == remote {
			drop = append(drop, c)
		}
	}
	t.mu.Unlock()

	for _, c := range drop {
		c.Close()
	}
}

// trackedConn leaves its transport's table when closed.
type trackedConn struct {
	net.Conn
	owner *InMemoryTransport
	once  sync.Once
}

func (c *trackedConn) Close() error {
	c.once.Do(func() { c.owner.untrack(c) })
	return c.Conn.Close()
}

type unreachableError struct{}

func (unreachableError) Error() string   { return "network unreachable" }
func (unreachableError) Timeout() bool   { return false }
func (unreachableError) Temporary() bool { return true }

var errUnreachable error = unreachableError{}
