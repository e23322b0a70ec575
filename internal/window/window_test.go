package window

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rudpfile/pkg/frame"
)

func TestSaveCountLowestUnacked(t *testing.T) {
	w := New(4)
	seqs := []uint32{2, 3, 4, 5}
	for _, s := range seqs {
		w.Save(frame.Encode(s, frame.Data, nil))
	}
	require.Equal(t, 4, w.Count())

	_, lowest, ok := w.LowestUnacked()
	require.True(t, ok)
	require.Equal(t, uint32(2), lowest)
}

func TestDeleteLEMonotonicity(t *testing.T) {
	w := New(8)
	seqs := []uint32{2, 3, 4, 5, 6}
	for _, s := range seqs {
		w.Save(frame.Encode(s, frame.Data, nil))
	}

	w.DeleteLE(3)
	require.Equal(t, 3, w.Count())
	_, lowest, ok := w.LowestUnacked()
	require.True(t, ok)
	require.Equal(t, uint32(4), lowest)

	w.DeleteLE(6)
	require.Equal(t, 0, w.Count())
	_, _, ok = w.LowestUnacked()
	require.False(t, ok)
}

func TestLowestUnackedEmptyWindow(t *testing.T) {
	w := New(2)
	_, _, ok := w.LowestUnacked()
	require.False(t, ok)
}

func TestCloneIsIndependent(t *testing.T) {
	w := New(4)
	w.Save(frame.Encode(2, frame.Data, nil))
	w.Save(frame.Encode(3, frame.Data, nil))

	clone := w.Clone()
	clone.Zero(2)

	require.Equal(t, 1, clone.Count())
	require.Equal(t, 2, w.Count(), "zeroing the clone must not affect the original window")
}

func TestSavePanicsWhenFull(t *testing.T) {
	w := New(1)
	w.Save(frame.Encode(2, frame.Data, nil))
	require.Panics(t, func() {
		w.Save(frame.Encode(3, frame.Data, nil))
	})
}
