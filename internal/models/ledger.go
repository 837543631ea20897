package models

// MaxHistory caps the number of roll records kept per ledger.
const MaxHistory = 50

// RollRecord is created once at settlement and never mutated afterwards.
type RollRecord struct {
	Roll             int        `json:"roll"`
	BetAmount        float64    `json:"bet_amount"`
	Result           RollResult `json:"result"`
	ServerSeed       string     `json:"server_seed"`
	ClientSeed       string     `json:"client_seed"`
	Nonce            int64      `json:"nonce"`
	HashedServerSeed string     `json:"hashed_server_seed"`
	SettledAt        int64      `json:"settled_at"`
}

// LedgerState is the persisted snapshot of a round ledger. ServerSeed is secret
// until the roll that used it settles.
type LedgerState struct {
	Balance       float64      `json:"balance"`
	BetAmount     float64      `json:"bet_amount"`
	IsRolling     bool         `json:"is_rolling"`
	LastRoll      int          `json:"last_roll,omitempty"`
	LastResult    RollResult   `json:"last_result,omitempty"`
	ServerSeed    string       `json:"server_seed"`
	ClientSeed    string       `json:"client_seed"`
	Nonce         int64        `json:"nonce"`
	PreviousRolls []RollRecord `json:"previous_rolls"`
}

func (s *LedgerState) Clone() *LedgerState {
	if s == nil {
		return nil
	}
	c := *s
	c.PreviousRolls = append([]RollRecord(nil), s.PreviousRolls...)
	return &c
}

// PublicState is what the player may see while a server seed is still live.
type PublicState struct {
	Balance        float64    `json:"balance"`
	BetAmount      float64    `json:"bet_amount"`
	IsRolling      bool       `json:"is_rolling"`
	LastRoll       int        `json:"last_roll,omitempty"`
	LastResult     RollResult `json:"last_result,omitempty"`
	ServerSeedHash string     `json:"server_seed_hash"`
	ClientSeed     string     `json:"client_seed"`
	Nonce          int64      `json:"nonce"`
	HistoryLength  int        `json:"history_length"`
	// Version increases with every state change; older updates can be dropped.
	Version uint64 `json:"version"`
}

// PendingRound describes an accepted bet that has not settled yet.
type PendingRound struct {
	Commitment string  `json:"commitment"`
	ClientSeed string  `json:"client_seed"`
	Nonce      int64   `json:"nonce"`
	BetAmount  float64 `json:"bet_amount"`
}
