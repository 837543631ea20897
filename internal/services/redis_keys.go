package services

import "time"

const (
	KeyLedgerState = "dice:ledger:%s"
	KeyRateLimit   = "ratelimit:%s:%s"

	DefaultRateLimitBets = 30 // Max 30 bets per minute
	RateLimitWindow      = time.Minute

	// Upper bound for a single best-effort snapshot write.
	SnapshotWriteTimeout = 3 * time.Second

	// Upper bound for restoring a ledger on first use.
	SnapshotLoadTimeout = 3 * time.Second
)
