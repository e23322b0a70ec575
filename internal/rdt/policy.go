// Package rdt holds the timing and retry constants shared by the sender
// and receiver state machines, so the two independently-running sides
// cannot drift out of sync on how long "short" and "long" mean.
package rdt

import "time"

// These are vars, not consts, so tests can shrink them to keep a
// deliberately-abandoned connection test fast without changing the
// production defaults.
var (
	// ShortTime is the sender's per-ack wait in WindowClosed and the
	// receiver's per-handshake-retry wait in Filename.
	ShortTime = 1 * time.Second

	// LongTime is the receiver's per-data wait in RecvData.
	LongTime = 10 * time.Second

	// MaxTries bounds the receiver's handshake retry count and the
	// sender's consecutive short-timeout count in WindowClosed before
	// declaring the peer down.
	MaxTries = 10
)
