// Package window implements the sender's retransmission store: a
// fixed-capacity, seq-keyed buffer of frames transmitted but not yet
// cumulatively acknowledged.
package window

import "rudpfile/pkg/frame"

type slot struct {
	occupied bool
	seq      uint32
	f        frame.Frame
}

// Window is the sender's fixed-capacity retransmission buffer. It is not
// safe for concurrent use; each ConnectionContext owns one exclusively.
type Window struct {
	slots []slot
}

// New allocates a Window with capacity cap, matching the handshake's
// negotiated W.
func New(cap int) *Window {
	return &Window{slots: make([]slot, cap)}
}

// Cap returns the window's negotiated capacity.
func (w *Window) Cap() int {
	return len(w.slots)
}

// Save stores f in the first empty slot. The caller must ensure the
// window is not already full (Count() < Cap()); a sender that is
// window-closed must never call Save.
func (w *Window) Save(f frame.Frame) {
	seq, _, _ := frame.Decode(f)
	for i := range w.slots {
		if !w.slots[i].occupied {
			w.slots[i] = slot{occupied: true, seq: seq, f: f}
			return
		}
	}
	panic("window: Save called with no free slot")
}

// DeleteLE empties every slot whose seq is <= n, implementing the
// cumulative-ack semantics of RR(n+1) or an implicit SREJ(n+1) ack.
func (w *Window) DeleteLE(n uint32) {
	for i := range w.slots {
		if w.slots[i].occupied && w.slots[i].seq <= n {
			w.slots[i] = slot{}
		}
	}
}

// LowestUnacked returns the non-empty slot holding the minimum seq. ok is
// false if the window is empty.
func (w *Window) LowestUnacked() (f frame.Frame, seq uint32, ok bool) {
	found := false
	var lowest uint32
	var lowestFrame frame.Frame
	for i := range w.slots {
		if !w.slots[i].occupied {
			continue
		}
		if !found || w.slots[i].seq < lowest {
			found = true
			lowest = w.slots[i].seq
			lowestFrame = w.slots[i].f
		}
	}
	return lowestFrame, lowest, found
}

// Count returns the number of occupied slots.
func (w *Window) Count() int {
	n := 0
	for i := range w.slots {
		if w.slots[i].occupied {
			n++
		}
	}
	return n
}

// Clone returns an independent copy of w, for a retransmission burst (spec
// §4.4.1) to drain via repeated LowestUnacked/Zero calls without
// disturbing the real window, which still needs to accept new acks
// concurrently with the burst being sent.
func (w *Window) Clone() *Window {
	clone := New(len(w.slots))
	copy(clone.slots, w.slots)
	return clone
}

// Zero empties the slot holding seq, if any. Used against a Clone() while
// draining a retransmission burst in ascending-seq order.
func (w *Window) Zero(seq uint32) {
	for i := range w.slots {
		if w.slots[i].occupied && w.slots[i].seq == seq {
			w.slots[i] = slot{}
			return
		}
	}
}
