package dispatch

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

// spreadRand is a package-level PRNG seeded from crypto/rand, shared by
// every RandomSpread call. math/rand/v2's generators are not safe for
// concurrent use, so access is serialized; the Dispatcher's event loop
// is itself single-threaded, but tests may call RandomSpread from
// multiple goroutines.
var (
	spreadMu   sync.Mutex
	spreadRand = rand.New(rand.NewPCG(seedUint64(), seedUint64()))
)

func seedUint64() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		// crypto/rand failing is effectively unrecoverable for anything
		// that wants unbiased randomness; fall back to a fixed seed
		// rather than panic the daemon over spread jitter.
		return 0x9e3779b97f4a7c15
	}
	return binary.LittleEndian.Uint64(b[:])
}

// RandomSpread returns a uniformly distributed integer in [0, max]
// inclusive. max == 0 always returns 0. rand/v2's Int64N performs
// rejection sampling internally, so no bucket bias is introduced by a modulo.
func RandomSpread(max uint32) uint32 {
	if max == 0 {
		return 0
	}
	spreadMu.Lock()
	defer spreadMu.Unlock()
	return uint32(spreadRand.Int64N(int64(max) + 1))
}
