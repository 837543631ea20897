package fair

import (
	"crypto/subtle"

	"provably-fair-dice/internal/models"
)

// Verify checks that serverSeed hashes to the published commitment and that
// the roll it derives is a valid die face.
func Verify(serverSeed, clientSeed string, nonce int64, commitment string) bool {
	if !commitmentMatches(serverSeed, commitment) {
		return false
	}

	roll := Roll(serverSeed, clientSeed, nonce)
	return roll >= 1 && roll <= DieFaces
}

// VerifyRecord re-derives a history entry and also requires the recorded roll
// and result to match.
func VerifyRecord(record models.RollRecord) bool {
	if !Verify(record.ServerSeed, record.ClientSeed, record.Nonce, record.HashedServerSeed) {
		return false
	}

	roll := Roll(record.ServerSeed, record.ClientSeed, record.Nonce)
	return roll == record.Roll && ResultOf(roll) == record.Result
}

// commitmentMatches compares byte for byte: a commitment is published as
// lowercase hex and any other rendering does not verify.
func commitmentMatches(serverSeed, commitment string) bool {
	return subtle.ConstantTimeCompare([]byte(Commit(serverSeed)), []byte(commitment)) == 1
}
