package receiver

import (
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"rudpfile/internal/channel"
	"rudpfile/pkg/frame"
)

// dialPair opens two Channels talking directly to each other over
// loopback UDP, standing in for the sender side without pulling in the
// full ConnectionContext machinery.
func dialPair(t *testing.T) (client, peer *channel.Channel, peerAddr *net.UDPAddr) {
	t.Helper()
	srv, err := channel.Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	cli, err := channel.Dial(srv.LocalAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() { cli.Close() })

	return cli, srv, nil
}

func TestReceiverHappyPath(t *testing.T) {
	cli, srv, _ := dialPair(t)

	dir := t.TempDir()
	out := filepath.Join(dir, "received.bin")

	var wg sync.WaitGroup
	wg.Add(1)
	var outcome Outcome
	go func() {
		defer wg.Done()
		r := New(cli, out, "remote.bin", 4, 8)
		outcome = r.Run()
	}()

	// Handshake.
	hs, addr, err := srv.Recv()
	require.NoError(t, err)
	require.True(t, frame.Verify(hs))
	seq, flag, payload := frame.Decode(hs)
	require.Equal(t, uint32(1), seq)
	require.Equal(t, frame.Filename, flag)
	w, b, filename, err := frame.ParseHandshakePayload(payload)
	require.NoError(t, err)
	require.Equal(t, uint16(4), w)
	require.Equal(t, uint16(8), b)
	require.Equal(t, "remote.bin", filename)
	srv.LearnPeer(addr)
	sizePayload := make([]byte, 8)
	frame.PutUint64(sizePayload, 16)
	require.NoError(t, srv.Send(frame.Encode(1, frame.FileOK, sizePayload)))

	// First data frame, in order.
	chunk1 := []byte("ABCDEFGH")
	require.NoError(t, srv.Send(frame.Encode(2, frame.Data, chunk1)))
	ack, _, err := srv.Recv()
	require.NoError(t, err)
	_, aflag, apayload := frame.Decode(ack)
	require.Equal(t, frame.RR, aflag)
	require.Equal(t, uint32(3), frame.Uint32(apayload))

	// Second data frame.
	chunk2 := []byte("IJKLMNOP")
	require.NoError(t, srv.Send(frame.Encode(3, frame.Data, chunk2)))
	ack, _, err = srv.Recv()
	require.NoError(t, err)
	_, aflag, apayload = frame.Decode(ack)
	require.Equal(t, frame.RR, aflag)
	require.Equal(t, uint32(4), frame.Uint32(apayload))

	// EOF.
	require.NoError(t, srv.Send(frame.Encode(4, frame.EOF, nil)))
	ack, _, err = srv.Recv()
	require.NoError(t, err)
	_, aflag, _ = frame.Decode(ack)
	require.Equal(t, frame.EOFAck, aflag)

	wg.Wait()
	require.Equal(t, OutcomeCompleted, outcome)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "ABCDEFGHIJKLMNOP", string(got))
}

func TestReceiverFileMissing(t *testing.T) {
	cli, srv, _ := dialPair(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "received.bin")

	var wg sync.WaitGroup
	wg.Add(1)
	var outcome Outcome
	go func() {
		defer wg.Done()
		r := New(cli, out, "gone.bin", 4, 8)
		outcome = r.Run()
	}()

	hs, addr, err := srv.Recv()
	require.NoError(t, err)
	_, flag, _ := frame.Decode(hs)
	require.Equal(t, frame.Filename, flag)
	srv.LearnPeer(addr)
	require.NoError(t, srv.Send(frame.Encode(1, frame.FileMissing, nil)))

	wg.Wait()
	require.Equal(t, OutcomeFileMissing, outcome)
	_, err = os.Stat(out)
	require.True(t, os.IsNotExist(err))
}

func TestReceiverSrejOnGap(t *testing.T) {
	cli, srv, _ := dialPair(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "received.bin")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r := New(cli, out, "remote.bin", 4, 4)
		r.Run()
	}()

	hs, addr, err := srv.Recv()
	require.NoError(t, err)
	_, _, _ = frame.Decode(hs)
	srv.LearnPeer(addr)
	require.NoError(t, srv.Send(frame.Encode(1, frame.FileOK, nil)))

	// Send seq 3 ahead of expected seq 2: receiver must SREJ for 2, not
	// accept out of order.
	require.NoError(t, srv.Send(frame.Encode(3, frame.Data, []byte("ZZZZ"))))
	ack, _, err := srv.Recv()
	require.NoError(t, err)
	_, aflag, apayload := frame.Decode(ack)
	require.Equal(t, frame.SREJ, aflag)
	require.Equal(t, uint32(2), frame.Uint32(apayload))

	require.NoError(t, srv.Send(frame.Encode(4, frame.EOF, nil)))
	srv.Recv()
	wg.Wait()
}
