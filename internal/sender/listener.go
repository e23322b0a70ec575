package sender

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"rudpfile/internal/audit"
	"rudpfile/internal/channel"
	"rudpfile/internal/lossy"
	"rudpfile/pkg/frame"
	"rudpfile/pkg/logger"
)

// Listener binds one UDP socket and demultiplexes inbound datagrams by
// source address, spawning one goroutine per new peer — the redesign of
// spec's "process-per-connection" model onto cooperative tasks (spec §9).
// Each connection goroutine owns its ConnectionContext exclusively; the
// listener goroutine itself only routes datagrams and reaps finished
// connections.
type Listener struct {
	conn   *net.UDPConn
	ledger *audit.Ledger // nil disables audit logging

	// errorRate, when > 0, gives every connection its own Injector
	// (math/rand.Rand is not safe for concurrent use, so one shared
	// Injector could not serve many connection goroutines at once).
	// seedCounter makes each of those per-connection injectors
	// reproducibly distinct without needing wall-clock time; it starts
	// from lossSeed so a configured seed makes a whole run reproducible.
	errorRate   float64
	lossSeed    int64
	seedCounter int64

	mu    sync.Mutex
	conns map[string]chan frame.Frame
	wg    sync.WaitGroup
}

// NewListener binds addr (":PORT" or "host:PORT"). errorRate configures
// artificial loss/corruption on every connection this listener accepts;
// 0 disables it. The first connection's injector is seeded lossSeed+1,
// and each subsequent connection's injector one past the last.
func NewListener(addr string, ledger *audit.Ledger, errorRate float64, lossSeed int64) (*Listener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("sender: resolve listen addr %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("sender: bind %q: %w", addr, err)
	}
	return &Listener{
		conn:        conn,
		ledger:      ledger,
		errorRate:   errorRate,
		lossSeed:    lossSeed,
		seedCounter: lossSeed,
		conns:       make(map[string]chan frame.Frame),
	}, nil
}

// Addr returns the socket's local address, useful when addr was ":0".
func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Serve reads datagrams until the socket is closed, routing each to its
// peer's connection goroutine, spawning one on first contact. It returns
// nil once the socket is closed by Close.
func (l *Listener) Serve() error {
	buf := make([]byte, frame.Size)
	for {
		n, addr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("sender: listener read: %w", err)
		}
		if n != frame.Size {
			logger.Warn("sender: dropping short datagram", "n", n, "peer", addr)
			continue
		}
		var f frame.Frame
		copy(f[:], buf[:n])
		l.route(addr, f)
	}
}

func (l *Listener) route(addr *net.UDPAddr, f frame.Frame) {
	key := addr.String()

	l.mu.Lock()
	inbox, exists := l.conns[key]
	if !exists {
		inbox = make(chan frame.Frame, 4)
		l.conns[key] = inbox
		l.wg.Add(1)
		go l.handleConnection(addr, inbox)
	}
	l.mu.Unlock()

	select {
	case inbox <- f:
	default:
		logger.Warn("sender: connection inbox full, dropping frame", "peer", addr)
	}
}

// handleConnection is the per-peer goroutine body: the first frame
// delivered to inbox is always the handshake (route only creates an
// inbox on first contact from an address), from which it builds a
// ConnectionContext and then runs the state machine to completion.
func (l *Listener) handleConnection(addr *net.UDPAddr, inbox chan frame.Frame) {
	defer l.wg.Done()
	defer func() {
		l.mu.Lock()
		delete(l.conns, addr.String())
		l.mu.Unlock()
	}()

	handshake := <-inbox
	ch := channel.NewRouted(l.conn, addr, inbox)
	if l.errorRate > 0 {
		seed := atomic.AddInt64(&l.seedCounter, 1)
		inj, err := lossy.New(l.errorRate, seed)
		if err != nil {
			logger.Error("sender: injector setup failed", "err", err)
		} else {
			ch.SetInjector(inj)
		}
	}

	cc, err := Accept(ch, handshake)
	if err != nil {
		logger.Error("sender: handshake rejected", "peer", addr, "err", err)
		return
	}

	outcome := cc.Run()

	if l.ledger != nil {
		l.ledger.Record(audit.Entry{
			Peer:     addr.String(),
			Filename: cc.filename,
			Outcome:  outcome.String(),
		})
	}
}

// Close stops accepting new datagrams and waits for in-flight
// connections to reach Done.
func (l *Listener) Close() error {
	err := l.conn.Close()
	l.wg.Wait()
	return err
}

