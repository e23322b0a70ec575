// Package sender implements the sender-side state machine: handshake
// responder, window-open data pumping, window-closed retransmission, and
// EOF drain, as specified for a single connection.
package sender

import (
	"fmt"
	"os"

	"rudpfile/internal/channel"
	"rudpfile/internal/fileio"
	"rudpfile/internal/rdt"
	"rudpfile/internal/window"
	"rudpfile/pkg/frame"
	"rudpfile/pkg/logger"
)

// State is one of the five states spec's sender state machine can be in.
type State int

const (
	SetupWait State = iota
	SendData
	WindowClosed
	RecvAck
	Done
)

func (s State) String() string {
	switch s {
	case SetupWait:
		return "SETUP_WAIT"
	case SendData:
		return "SEND_DATA"
	case WindowClosed:
		return "WINDOW_CLOSED"
	case RecvAck:
		return "RECV_ACK"
	case Done:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Outcome records why a ConnectionContext reached Done, for the caller
// (the Listener) to log and hand to the audit ledger.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeCompleted
	OutcomeAbandoned
	OutcomeFileMissing
	OutcomeFatalError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeAbandoned:
		return "abandoned"
	case OutcomeFileMissing:
		return "file-missing"
	case OutcomeFatalError:
		return "fatal-error"
	default:
		return "unknown"
	}
}

// ConnectionContext is the per-peer record spec's data model describes:
// the channel, window, occupancy (implicit in Window.Count), next_seq,
// file handle, negotiated W/B, and retry counter.
type ConnectionContext struct {
	ch       *channel.Channel
	win      *window.Window
	nextSeq  uint32
	src      *fileio.Source
	w        uint16
	b        uint16
	filename string
	retries  int
	state    State
	outcome  Outcome
}

// Accept performs the SETUP_WAIT transition: it decodes the handshake
// frame already read from ch, opens the requested file, and replies with
// FILE_OK or FILE_MISSING. It returns a ConnectionContext ready to Run in
// SendData, or already in Done if the file does not exist.
func Accept(ch *channel.Channel, handshake frame.Frame) (*ConnectionContext, error) {
	seq, flag, payload := frame.Decode(handshake)
	if flag != frame.Filename || seq != 1 {
		return nil, fmt.Errorf("sender: expected handshake frame (seq 1, flag FILENAME), got seq=%d flag=%d", seq, flag)
	}
	w, b, filename, err := frame.ParseHandshakePayload(payload)
	if err != nil {
		return nil, err
	}

	cc := &ConnectionContext{
		ch:       ch,
		win:      window.New(int(w)),
		nextSeq:  frame.FirstDataSeq,
		w:        w,
		b:        b,
		filename: filename,
	}

	src, err := fileio.OpenSource(filename)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("file missing, refusing transfer", "filename", filename, "peer", ch.Peer())
			if sendErr := ch.Send(frame.Encode(1, frame.FileMissing, nil)); sendErr != nil {
				return nil, sendErr
			}
			cc.state = Done
			cc.outcome = OutcomeFileMissing
			return cc, nil
		}
		return nil, fmt.Errorf("sender: open %q: %w", filename, err)
	}
	cc.src = src

	info, err := src.Stat()
	if err != nil {
		return nil, fmt.Errorf("sender: stat %q: %w", filename, err)
	}
	sizePayload := make([]byte, 8)
	frame.PutUint64(sizePayload, uint64(info.Size()))
	if err := ch.Send(frame.Encode(1, frame.FileOK, sizePayload)); err != nil {
		return nil, err
	}
	cc.state = SendData
	logger.Info("handshake accepted", "filename", filename, "w", w, "b", b, "peer", ch.Peer())
	return cc, nil
}

// Run drives the state machine to Done and returns the outcome. It
// blocks the calling goroutine for the lifetime of the connection.
func (cc *ConnectionContext) Run() Outcome {
	for cc.state != Done {
		switch cc.state {
		case SendData:
			cc.stepSendData()
		case WindowClosed:
			cc.stepWindowClosed()
		case RecvAck:
			cc.stepRecvAck()
		default:
			logger.Error("sender: unexpected state in Run", "state", cc.state)
			cc.state = Done
		}
	}
	if cc.src != nil {
		cc.src.Close()
	}
	if cc.outcome == OutcomeUnknown {
		cc.outcome = OutcomeCompleted
	}
	logger.Info("connection done", "peer", cc.ch.Peer(), "filename", cc.filename, "outcome", cc.outcome)
	return cc.outcome
}

func (cc *ConnectionContext) stepSendData() {
	if ready, err := cc.ch.WaitReadable(0); err == nil && ready {
		cc.state = RecvAck
		return
	}

	if cc.win.Count() == cc.win.Cap() {
		cc.state = WindowClosed
		return
	}

	buf := make([]byte, cc.b)
	n, ok, err := cc.src.ReadChunk(buf)
	if err != nil {
		logger.Error("sender: read source failed", "err", err)
		cc.outcome = OutcomeFatalError
		cc.state = Done
		return
	}
	if !ok {
		f := frame.Encode(cc.nextSeq, frame.EOF, nil)
		cc.win.Save(f)
		if err := cc.ch.Send(f); err != nil {
			logger.Error("sender: send EOF failed", "err", err)
		}
		cc.state = WindowClosed
		return
	}

	f := frame.Encode(cc.nextSeq, frame.Data, buf[:n])
	cc.win.Save(f)
	if err := cc.ch.Send(f); err != nil {
		logger.Error("sender: send DATA failed", "err", err, "seq", cc.nextSeq)
	}
	cc.nextSeq++

	if ready, err := cc.ch.WaitReadable(0); err == nil && ready {
		cc.state = RecvAck
	}
}

func (cc *ConnectionContext) stepRecvAck() {
	f, _, err := cc.ch.Recv()
	if err != nil {
		logger.Warn("sender: recv failed", "err", err)
		cc.state = WindowClosed
		return
	}
	if !frame.Verify(f) {
		cc.state = WindowClosed
		return
	}

	_, flag, payload := frame.Decode(f)
	switch flag {
	case frame.RR:
		n := frame.Uint32(payload)
		cc.win.DeleteLE(n - 1)
		cc.state = SendData
	case frame.SREJ:
		s := frame.Uint32(payload)
		cc.win.DeleteLE(s - 1)
		cc.state = WindowClosed
	case frame.EOFAck:
		cc.state = Done
	default:
		logger.Warn("sender: unexpected ack flag, abandoning connection", "flag", flag)
		cc.outcome = OutcomeFatalError
		cc.state = Done
	}
}

func (cc *ConnectionContext) stepWindowClosed() {
	if cc.win.Count() == 0 {
		cc.state = SendData
		return
	}

	ready, err := cc.ch.WaitReadable(rdt.ShortTime)
	if err != nil {
		logger.Error("sender: wait readable failed", "err", err)
		cc.outcome = OutcomeFatalError
		cc.state = Done
		return
	}
	if ready {
		cc.retries = 0
		cc.state = RecvAck
		return
	}

	cc.retries++
	if cc.retries > rdt.MaxTries {
		logger.Warn("sender: peer presumed down, abandoning", "peer", cc.ch.Peer(), "retries", cc.retries)
		cc.outcome = OutcomeAbandoned
		cc.state = Done
		return
	}
	cc.retransmitBurst()
}

// retransmitBurst resends every frame still held in the window, lowest
// seq first, abandoning early if an ack shows up mid-burst (spec
// §4.4.1): acks observed mid-burst may immediately collapse the window,
// so there is no point finishing a burst against frames that are already
// acknowledged.
func (cc *ConnectionContext) retransmitBurst() {
	scratch := cc.win.Clone()
	for {
		f, seq, ok := scratch.LowestUnacked()
		if !ok {
			break
		}
		if err := cc.ch.Send(f); err != nil {
			logger.Error("sender: retransmit failed", "err", err, "seq", seq)
		}
		scratch.Zero(seq)

		if ready, err := cc.ch.WaitReadable(0); err == nil && ready {
			cc.state = RecvAck
			return
		}
	}
	cc.state = WindowClosed
}
