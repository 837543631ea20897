package models

type LedgerEventType string

const (
	EventStateChanged LedgerEventType = "STATE_UPDATE"
	EventRollSettled  LedgerEventType = "ROLL_SETTLED"
)

type LedgerEvent struct {
	Type     LedgerEventType `json:"type"`
	PlayerID string          `json:"player_id"`
	State    *PublicState    `json:"state,omitempty"`
	Record   *RollRecord     `json:"record,omitempty"`
}
