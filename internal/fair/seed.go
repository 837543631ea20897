// Package fair implements the commit-reveal primitives behind the dice game:
// seed generation, server seed commitments, roll derivation and verification.
package fair

import (
	"crypto/rand"
	"fmt"
)

const (
	ServerSeedLength = 64
	ClientSeedLength = 32

	seedAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// Largest multiple of len(seedAlphabet) that fits in a byte; bytes at or
	// above it are rejected so every character stays equally likely.
	seedByteLimit = 256 - 256%len(seedAlphabet)
)

// SeedGenerator produces server and client seeds.
type SeedGenerator interface {
	NewServerSeed() string
	NewClientSeed() string
}

// CryptoSeedGenerator draws seeds from crypto/rand.
type CryptoSeedGenerator struct{}

func (CryptoSeedGenerator) NewServerSeed() string {
	return randomSeed(ServerSeedLength)
}

func (CryptoSeedGenerator) NewClientSeed() string {
	return randomSeed(ClientSeedLength)
}

func randomSeed(n int) string {
	out := make([]byte, 0, n)
	buf := make([]byte, n+n/4)

	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			panic(fmt.Sprintf("fair: read entropy: %v", err))
		}
		for _, b := range buf {
			if int(b) >= seedByteLimit {
				continue
			}
			out = append(out, seedAlphabet[int(b)%len(seedAlphabet)])
			if len(out) == n {
				break
			}
		}
	}

	return string(out)
}

// IsSeed reports whether s only uses the seed alphabet.
func IsSeed(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
