package sender

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rudpfile/internal/channel"
	"rudpfile/internal/rdt"
	"rudpfile/pkg/frame"
)

func dialPair(t *testing.T) (srv, cli *channel.Channel) {
	t.Helper()
	srv, err := channel.Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	cli, err = channel.Dial(srv.LocalAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() { cli.Close() })

	return srv, cli
}

func writeTempFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.bin")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func handshakeFrame(t *testing.T, w, b uint16, filename string) frame.Frame {
	t.Helper()
	payload, err := frame.EncodeHandshakePayload(w, b, filename)
	require.NoError(t, err)
	return frame.Encode(1, frame.Filename, payload)
}

func TestAcceptFileMissingRepliesAndTerminates(t *testing.T) {
	srv, cli := dialPair(t)

	hs := handshakeFrame(t, 4, 8, filepath.Join(t.TempDir(), "does-not-exist.bin"))
	require.NoError(t, cli.Send(hs))
	got, addr, err := srv.Recv()
	require.NoError(t, err)
	srv.LearnPeer(addr)

	cc, err := Accept(srv, got)
	require.NoError(t, err)
	require.Equal(t, Done, cc.state)
	require.Equal(t, OutcomeFileMissing, cc.outcome)

	reply, _, err := cli.Recv()
	require.NoError(t, err)
	_, flag, _ := frame.Decode(reply)
	require.Equal(t, frame.FileMissing, flag)
}

func TestAcceptFileOkStartsSendData(t *testing.T) {
	srv, cli := dialPair(t)
	path := writeTempFile(t, "hello world")

	hs := handshakeFrame(t, 4, 8, path)
	require.NoError(t, cli.Send(hs))
	got, addr, err := srv.Recv()
	require.NoError(t, err)
	srv.LearnPeer(addr)

	cc, err := Accept(srv, got)
	require.NoError(t, err)
	require.Equal(t, SendData, cc.state)
	defer cc.src.Close()

	reply, _, err := cli.Recv()
	require.NoError(t, err)
	_, flag, _ := frame.Decode(reply)
	require.Equal(t, frame.FileOK, flag)
}

func TestRunDeliversWholeFileAndRespectsRROffByOne(t *testing.T) {
	srv, cli := dialPair(t)
	path := writeTempFile(t, "0123456789ABCDEF")

	hs := handshakeFrame(t, 4, 4, path)
	require.NoError(t, cli.Send(hs))
	got, addr, err := srv.Recv()
	require.NoError(t, err)
	srv.LearnPeer(addr)

	cc, err := Accept(srv, got)
	require.NoError(t, err)

	done := make(chan Outcome, 1)
	go func() { done <- cc.Run() }()

	// sender-side FILE_OK reply was already sent by Accept; drain it.
	reply, _, err := cli.Recv()
	require.NoError(t, err)
	_, flag, _ := frame.Decode(reply)
	require.Equal(t, frame.FileOK, flag)

	var collected []byte
	for {
		f, _, err := cli.Recv()
		require.NoError(t, err)
		require.True(t, frame.Verify(f))
		seq, flag, payload := frame.Decode(f)
		if flag == frame.EOF {
			ack := frame.Encode(seq, frame.EOFAck, nil)
			require.NoError(t, cli.Send(ack))
			break
		}
		require.Equal(t, frame.Data, flag)
		collected = append(collected, payload[:4]...)
		// RR(n) means "next expected is n": acking seq advances
		// expectation to seq+1, which the sender must interpret as
		// "everything <= seq may be freed", not "everything <= seq+1".
		ackPayload := make([]byte, 4)
		frame.PutUint32(ackPayload, seq+1)
		require.NoError(t, cli.Send(frame.Encode(seq, frame.RR, ackPayload)))
	}

	outcome := <-done
	require.Equal(t, OutcomeCompleted, outcome)
	require.Equal(t, "0123456789ABCDEF", string(collected))
}

func TestRunAbandonsAfterMaxRetries(t *testing.T) {
	oldShort, oldMax := rdt.ShortTime, rdt.MaxTries
	rdt.ShortTime, rdt.MaxTries = 20*time.Millisecond, 3
	t.Cleanup(func() { rdt.ShortTime, rdt.MaxTries = oldShort, oldMax })

	srv, cli := dialPair(t)
	path := writeTempFile(t, "x")

	hs := handshakeFrame(t, 1, 4, path)
	require.NoError(t, cli.Send(hs))
	got, addr, err := srv.Recv()
	require.NoError(t, err)
	srv.LearnPeer(addr)

	cc, err := Accept(srv, got)
	require.NoError(t, err)

	done := make(chan Outcome, 1)
	go func() { done <- cc.Run() }()

	// Drain FILE_OK and the single DATA frame, then go silent: the
	// sender must give up instead of retransmitting forever.
	_, _, err = cli.Recv()
	require.NoError(t, err)
	_, _, err = cli.Recv()
	require.NoError(t, err)

	outcome := <-done
	require.Equal(t, OutcomeAbandoned, outcome)
}
