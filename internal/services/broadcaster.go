package services

import "provably-fair-dice/internal/models"

// Broadcaster pushes ledger changes to connected presentation clients.
type Broadcaster interface {
	BroadcastStateUpdate(playerID string, state *models.PublicState)
	BroadcastRollSettled(playerID string, record *models.RollRecord)
}

// RollListener is told that a roll settled, with no payload. The wallet
// display uses it to refresh its own balance.
type RollListener interface {
	OnRoll()
}
