package models

type RollResult string

const (
	ResultWin  RollResult = "win"
	ResultLose RollResult = "lose"
)

type AdjustMode string

const (
	AdjustHalf   AdjustMode = "half"
	AdjustDouble AdjustMode = "double"
	AdjustMax    AdjustMode = "max"
	AdjustSet    AdjustMode = "set"
)

// BetRequest places a bet. A nil Amount bets the ledger's current bet amount.
type BetRequest struct {
	Amount *float64 `json:"amount"`
}

type AdjustBetRequest struct {
	Mode  AdjustMode `json:"mode" binding:"required"`
	Value float64    `json:"value"`
}

// ClientSeedRequest replaces the client seed. An empty ClientSeed rotates to a fresh one.
type ClientSeedRequest struct {
	ClientSeed string `json:"client_seed"`
}

type VerifyRequest struct {
	ServerSeed string `json:"server_seed" binding:"required"`
	ClientSeed string `json:"client_seed" binding:"required"`
	Nonce      int64  `json:"nonce" binding:"min=0"`
	Commitment string `json:"commitment" binding:"required"`
}

type VerifyResponse struct {
	Valid               bool       `json:"valid"`
	CommitmentMatches   bool       `json:"commitment_matches"`
	CalculatedHash      string     `json:"calculated_hash"`
	Roll                int        `json:"roll"`
	Result              RollResult `json:"result"`
	ServerSeed          string     `json:"server_seed"`
	ClientSeed          string     `json:"client_seed"`
	Nonce               int64      `json:"nonce"`
	PublishedCommitment string     `json:"published_commitment"`
}
