// Package lossy implements the artificial loss/corruption injector spec
// treats as an external collaborator: it never fragments, and for each
// frame it independently decides to drop, corrupt, or forward.
package lossy

import (
	"fmt"
	"math/rand"

	"rudpfile/pkg/frame"
)

// Injector corrupts or drops frames with probability Rate before they
// would otherwise reach the wire. A Channel consults it on every Send once
// installed with Channel.SetInjector.
type Injector struct {
	Rate float64
	rng  *rand.Rand
}

// New builds an Injector with the given loss/corruption rate, rejecting
// rates outside [0, 1) as spec's parameter bounds require.
func New(rate float64, seed int64) (*Injector, error) {
	if rate < 0 || rate >= 1 {
		return nil, fmt.Errorf("lossy: error_rate %v out of bounds [0, 1)", rate)
	}
	return &Injector{Rate: rate, rng: rand.New(rand.NewSource(seed))}, nil
}

// Apply decides the fate of f: unchanged, corrupted (single bit flip), or
// dropped (ok=false, meaning the caller should not transmit it). Loss and
// corruption are each given half of Rate's probability mass.
func (inj *Injector) Apply(f frame.Frame) (out frame.Frame, ok bool) {
	if inj.rng.Float64() >= inj.Rate {
		return f, true
	}
	if inj.rng.Float64() < 0.5 {
		return f, false
	}
	byteIdx := inj.rng.Intn(frame.Size)
	bit := inj.rng.Intn(8)
	f[byteIdx] ^= 1 << uint(bit)
	return f, true
}
