// Package channel is a thin abstraction over a bound UDP socket: send and
// receive whole frames to/from a peer, with a blocking-with-timeout
// receive. It carries no ordering guarantee — callers must tolerate
// arbitrary reorder, loss and duplication, exactly as the unreliable
// substrate spec treats it.
package channel

import (
	"fmt"
	"net"
	"time"

	"rudpfile/pkg/frame"
)

// Channel wraps a *net.UDPConn bound to a local address and, once a peer
// has been learned, transmits frame.Size datagrams to/from it.
type Channel struct {
	conn *net.UDPConn
	peer *net.UDPAddr

	// inbox, when non-nil, is read instead of conn: a Listener
	// demultiplexing several peers off one shared socket routes each
	// peer's datagrams into its own connection's inbox and this Channel
	// only ever reads from there, never touching the shared conn's read
	// side directly.
	inbox <-chan frame.Frame

	// pending holds a datagram read by WaitReadable so that the Recv
	// call that follows it (every caller in this protocol always pairs
	// the two) returns it rather than blocking on a second read and
	// silently discarding the first.
	pending    *frame.Frame
	pendingSrc *net.UDPAddr

	// injector, when set, mutates every outbound frame before it
	// reaches the socket: the artificial loss/corruption substrate
	// sits here rather than in the state machines, which stay
	// ignorant of whether the wire underneath them is lossy.
	injector Injector
}

// Injector is the subset of lossy.Injector a Channel needs: decide
// whether and how a frame reaches the wire.
type Injector interface {
	Apply(f frame.Frame) (out frame.Frame, ok bool)
}

// SetInjector installs inj on c; every subsequent Send passes through it
// first. A nil Injector (the default) sends frames unmodified.
func (c *Channel) SetInjector(inj Injector) {
	c.injector = inj
}

// Listen opens a UDP socket on addr (host:port, or ":0" for an ephemeral
// port) with no peer yet bound; the first datagram received learns the
// peer via LearnPeer.
func Listen(addr string) (*Channel, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("channel: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("channel: listen %q: %w", addr, err)
	}
	return &Channel{conn: conn}, nil
}

// Dial opens a UDP socket already connected to peer, for the receiver
// side which knows its sender's address up front.
func Dial(peerAddr string) (*Channel, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", peerAddr)
	if err != nil {
		return nil, fmt.Errorf("channel: resolve %q: %w", peerAddr, err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("channel: dial %q: %w", peerAddr, err)
	}
	return &Channel{conn: conn, peer: udpAddr}, nil
}

// NewRouted adapts an already-bound *net.UDPConn (used by a Listener that
// demultiplexes several peers off one socket) together with the specific
// peer this Channel speaks to and the inbox the Listener routes that
// peer's datagrams into. Send still goes straight to the shared conn;
// Recv and WaitReadable read only from inbox.
func NewRouted(conn *net.UDPConn, peer *net.UDPAddr, inbox <-chan frame.Frame) *Channel {
	return &Channel{conn: conn, peer: peer, inbox: inbox}
}

// Peer returns the bound peer address, or nil if none has been learned
// yet.
func (c *Channel) Peer() *net.UDPAddr {
	return c.peer
}

// LocalAddr returns the local socket address, useful when Listen was
// given an ephemeral port.
func (c *Channel) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// LearnPeer records addr as the peer to Send to, used once by the sender
// side on the first handshake datagram from a new client.
func (c *Channel) LearnPeer(addr *net.UDPAddr) {
	c.peer = addr
}

// Send transmits f's 1407 octets to the bound peer. A fatal OS error is
// returned for the caller to abort on; the lossy substrate between here
// and the peer may still drop, corrupt or forward it without this call
// observing anything.
func (c *Channel) Send(f frame.Frame) error {
	if c.peer == nil {
		return fmt.Errorf("channel: send with no peer bound")
	}
	if c.injector != nil {
		out, ok := c.injector.Apply(f)
		if !ok {
			return nil
		}
		f = out
	}
	var err error
	if c.conn.RemoteAddr() != nil {
		// A Dial'ed socket is already connected and refuses WriteToUDP.
		_, err = c.conn.Write(f[:])
	} else {
		_, err = c.conn.WriteToUDP(f[:], c.peer)
	}
	if err != nil {
		return fmt.Errorf("channel: send to %s: %w", c.peer, err)
	}
	return nil
}

// Recv blocks until a datagram arrives, decodes it into a Frame and
// returns the source address. A datagram shorter than frame.Size (never
// produced by this protocol's own peers, but possible from a stray
// sender) is reported as an error rather than silently zero-padded.
func (c *Channel) Recv() (frame.Frame, *net.UDPAddr, error) {
	if c.pending != nil {
		f, addr := *c.pending, c.pendingSrc
		c.pending, c.pendingSrc = nil, nil
		return f, addr, nil
	}
	if c.inbox != nil {
		f := <-c.inbox
		return f, c.peer, nil
	}
	return c.readOne()
}

func (c *Channel) readOne() (frame.Frame, *net.UDPAddr, error) {
	var buf [frame.Size]byte
	n, addr, err := c.conn.ReadFromUDP(buf[:])
	if err != nil {
		return frame.Frame{}, nil, err
	}
	if n != frame.Size {
		return frame.Frame{}, addr, fmt.Errorf("channel: short datagram: %d bytes, want %d", n, frame.Size)
	}
	return frame.Frame(buf), addr, nil
}

// WaitReadable blocks until a datagram arrives or timeout elapses,
// returning true if one is ready. A timeout of 0 polls: on an inbox it
// does not block, on a socket it waits at most one millisecond.
// Any datagram observed here is cached and handed back by the very next
// Recv call rather than being read (and discarded) twice.
func (c *Channel) WaitReadable(timeout time.Duration) (bool, error) {
	if c.inbox != nil {
		select {
		case f := <-c.inbox:
			c.pending, c.pendingSrc = &f, c.peer
			return true, nil
		case <-time.After(timeout):
			return false, nil
		}
	}

	// A read deadline at or before now fails the read without looking at
	// the socket, so a zero-timeout poll gets a one-millisecond deadline.
	if timeout < time.Millisecond {
		timeout = time.Millisecond
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return false, fmt.Errorf("channel: set read deadline: %w", err)
	}
	defer c.conn.SetReadDeadline(time.Time{})

	f, addr, err := c.readOne()
	if err == nil {
		c.pending, c.pendingSrc = &f, addr
		return true, nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return false, nil
	}
	return false, err
}

// Close releases the underlying socket.
func (c *Channel) Close() error {
	return c.conn.Close()
}
