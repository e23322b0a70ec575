// Package receiver implements the receiver-side state machine: handshake
// initiator, in-order delivery with SREJ-on-gap, and EOF handling.
package receiver

import (
	"rudpfile/internal/channel"
	"rudpfile/internal/fileio"
	"rudpfile/internal/rdt"
	"rudpfile/pkg/frame"
	"rudpfile/pkg/logger"
)

// State is one of the four states spec's receiver state machine can be
// in.
type State int

const (
	Filename State = iota
	FileStatus
	RecvData
	Done
)

func (s State) String() string {
	switch s {
	case Filename:
		return "FILENAME"
	case FileStatus:
		return "FILE_STATUS"
	case RecvData:
		return "RECV_DATA"
	case Done:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Outcome records why a Receiver reached Done.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeCompleted
	OutcomeFileMissing
	OutcomeHandshakeTimedOut
	OutcomeSenderGone
	OutcomeSinkFailed
	OutcomeFatalError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFileMissing:
		return "file-missing"
	case OutcomeHandshakeTimedOut:
		return "handshake-timed-out"
	case OutcomeSenderGone:
		return "sender-gone"
	case OutcomeSinkFailed:
		return "sink-failed"
	case OutcomeFatalError:
		return "fatal-error"
	default:
		return "unknown"
	}
}

// Receiver drives the client side of a single file transfer over ch.
type Receiver struct {
	ch           *channel.Channel
	w            uint16
	b            uint16
	filename     string
	outputPath   string
	sink         *fileio.Sink
	expectedSeq  uint32
	ownSeq       uint32
	handshakeTry int
	fileSize     uint64
	bytesWritten uint64
	state        State
	outcome      Outcome
}

// New builds a Receiver ready to run the handshake against ch, requesting
// filename with window size w and chunk size b, writing to outputPath.
func New(ch *channel.Channel, outputPath, filename string, w, b uint16) *Receiver {
	return &Receiver{
		ch:         ch,
		w:          w,
		b:          b,
		filename:   filename,
		outputPath: outputPath,
		ownSeq:     1,
		state:      Filename,
	}
}

// Run drives the state machine to Done and returns the outcome.
func (r *Receiver) Run() Outcome {
	for r.state != Done {
		switch r.state {
		case Filename:
			r.stepFilename()
		case FileStatus:
			r.stepFileStatus()
		case RecvData:
			r.stepRecvData()
		default:
			logger.Error("receiver: unexpected state in Run", "state", r.state)
			r.state = Done
		}
	}
	if r.sink != nil {
		r.sink.Close()
	}
	if r.outcome == OutcomeUnknown {
		r.outcome = OutcomeCompleted
	}
	logger.Info("receiver done", "filename", r.filename, "outcome", r.outcome)
	return r.outcome
}

func (r *Receiver) stepFilename() {
	payload, err := frame.EncodeHandshakePayload(r.w, r.b, r.filename)
	if err != nil {
		logger.Error("receiver: bad handshake payload", "err", err)
		r.outcome = OutcomeFatalError
		r.state = Done
		return
	}
	f := frame.Encode(1, frame.Filename, payload)
	if err := r.ch.Send(f); err != nil {
		logger.Error("receiver: send handshake failed", "err", err)
		r.outcome = OutcomeFatalError
		r.state = Done
		return
	}

	ready, err := r.ch.WaitReadable(rdt.ShortTime)
	if err != nil {
		logger.Error("receiver: wait readable failed", "err", err)
		r.outcome = OutcomeFatalError
		r.state = Done
		return
	}
	if !ready {
		r.handshakeTry++
		if r.handshakeTry >= rdt.MaxTries {
			logger.Warn("receiver: handshake abandoned, no reply from sender", "tries", r.handshakeTry)
			r.outcome = OutcomeHandshakeTimedOut
			r.state = Done
		}
		return
	}

	got, _, err := r.ch.Recv()
	if err != nil {
		logger.Warn("receiver: recv failed during handshake", "err", err)
		return
	}
	if !frame.Verify(got) {
		return
	}
	_, flag, payload := frame.Decode(got)
	switch flag {
	case frame.FileOK:
		if len(payload) >= 8 {
			r.fileSize = frame.Uint64(payload)
		}
		r.state = FileStatus
	case frame.FileMissing:
		logger.Warn("receiver: sender reports file missing", "filename", r.filename)
		r.outcome = OutcomeFileMissing
		r.state = Done
	}
}

func (r *Receiver) stepFileStatus() {
	sink, err := fileio.CreateSink(r.outputPath)
	if err != nil {
		logger.Error("receiver: create output file failed", "path", r.outputPath, "err", err)
		r.outcome = OutcomeSinkFailed
		r.state = Done
		return
	}
	r.sink = sink
	r.expectedSeq = frame.FirstDataSeq
	r.state = RecvData
}

func (r *Receiver) stepRecvData() {
	ready, err := r.ch.WaitReadable(rdt.LongTime)
	if err != nil {
		logger.Error("receiver: wait readable failed", "err", err)
		r.outcome = OutcomeFatalError
		r.state = Done
		return
	}
	if !ready {
		logger.Warn("receiver: sender presumed gone", "filename", r.filename)
		r.outcome = OutcomeSenderGone
		r.state = Done
		return
	}

	f, _, err := r.ch.Recv()
	if err != nil {
		logger.Warn("receiver: recv failed", "err", err)
		return
	}
	if !frame.Verify(f) {
		return
	}

	seq, flag, payload := frame.Decode(f)
	r.ownSeq++

	if flag == frame.EOF {
		r.sendAck(frame.EOFAck, r.expectedSeq)
		r.state = Done
		return
	}

	if seq == r.expectedSeq {
		n := uint64(r.b)
		if remaining := r.fileSize - r.bytesWritten; remaining < n {
			n = remaining
		}
		if err := r.sink.WriteChunk(payload[:n]); err != nil {
			logger.Error("receiver: write failed", "err", err)
			r.outcome = OutcomeSinkFailed
			r.state = Done
			return
		}
		r.bytesWritten += n
		r.expectedSeq++
		r.sendAck(frame.RR, r.expectedSeq)
		return
	}

	r.sendAck(frame.SREJ, r.expectedSeq)
}

func (r *Receiver) sendAck(flag byte, n uint32) {
	payload := make([]byte, 4)
	frame.PutUint32(payload, n)
	f := frame.Encode(r.ownSeq, flag, payload)
	if err := r.ch.Send(f); err != nil {
		logger.Warn("receiver: send ack failed", "flag", flag, "err", err)
	}
}
