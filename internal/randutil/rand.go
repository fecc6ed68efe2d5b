// Package randutil centralises RNG construction for the match engine.
// Seeded runs must be reproducible; unseeded runs must be unpredictable.
package randutil

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mathrand "math/rand/v2"
)

const (
	goldenRatio64 = 0x9e3779b97f4a7c15
)

// New returns a *rand.Rand seeded deterministically from the provided int64.
// The helper centralises how we derive the two 64-bit seeds required by rand/v2
// so that all call sites get reproducible sequences.
func New(seed int64) *mathrand.Rand {
	u := uint64(seed)
	return mathrand.New(mathrand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// CryptoSeed draws a random int64 from the OS CSPRNG. Used when no
// explicit seed is configured: the drawn seed can still be recorded so a
// run stays replayable. A broken entropy source halts the process rather
// than dealing predictable shuffles.
func CryptoSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("system CSPRNG unavailable: %v", err))
	}
	return int64(binary.LittleEndian.Uint64(buf[:]))
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
