package services

// LedgerError is returned for rejected ledger operations. None of them change state.
type LedgerError string

func (e LedgerError) Error() string {
	return string(e)
}

const (
	ErrInvalidBet         LedgerError = "invalid bet amount"
	ErrConcurrentBet      LedgerError = "a bet is already settling"
	ErrRollInProgress     LedgerError = "operation not allowed while a roll is settling"
	ErrInvalidClientSeed  LedgerError = "invalid client seed"
	ErrInvalidAdjustMode  LedgerError = "invalid bet adjustment mode"
	ErrSnapshotNotFound   LedgerError = "ledger snapshot not found"
	ErrNilConfig          LedgerError = "config cannot be nil"
	ErrNilSeedGenerator   LedgerError = "seed generator cannot be nil"
	ErrEmptyPlayerID      LedgerError = "player id cannot be empty"
	ErrInvalidStartingBal LedgerError = "starting balance must be positive"
)
