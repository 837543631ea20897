package fair

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"

	"provably-fair-dice/internal/models"
)

const (
	DieFaces     = 6
	WinThreshold = 4
	// WinChance is the percentage of faces that win.
	WinChance = 50
	// Multiplier is the gross payout on a win.
	Multiplier = 2.0
)

func rollMessage(serverSeed, clientSeed string, nonce int64) string {
	return serverSeed + "-" + clientSeed + "-" + strconv.FormatInt(nonce, 10)
}

// RollHash is the hex digest a roll is derived from.
func RollHash(serverSeed, clientSeed string, nonce int64) string {
	sum := sha256.Sum256([]byte(rollMessage(serverSeed, clientSeed, nonce)))
	return hex.EncodeToString(sum[:])
}

// Roll maps (serverSeed, clientSeed, nonce) to a die face in 1..6 using the
// first 8 hex characters of SHA-256("serverSeed-clientSeed-nonce").
func Roll(serverSeed, clientSeed string, nonce int64) int {
	sum := sha256.Sum256([]byte(rollMessage(serverSeed, clientSeed, nonce)))
	// The first 4 bytes are the first 8 hex characters.
	v := binary.BigEndian.Uint32(sum[:4])
	return int(v%DieFaces) + 1
}

func IsWin(roll int) bool {
	return roll >= WinThreshold
}

func ResultOf(roll int) models.RollResult {
	if IsWin(roll) {
		return models.ResultWin
	}
	return models.ResultLose
}

// Settle applies the payout rule: a win adds the bet, a loss removes it.
func Settle(balance, bet float64, roll int) (models.RollResult, float64) {
	if IsWin(roll) {
		return models.ResultWin, balance + bet
	}
	return models.ResultLose, balance - bet
}
