package fair

import (
	"crypto/sha256"
	"encoding/hex"
)

// Commit returns the lowercase hex SHA-256 of a server seed. It is published
// before the seed is used and checked against the seed once revealed.
func Commit(serverSeed string) string {
	sum := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(sum[:])
}
