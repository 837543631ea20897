package models

import (
	"github.com/google/uuid"
)

func GeneratePlayerID() string {
	return "player_" + uuid.NewString()
}

func GenerateSessionID() string {
	return uuid.NewString()
}

// HistoryResult tallies wins and losses over a slice of records.
func HistoryResult(records []RollRecord) (wins, losses int) {
	for _, r := range records {
		if r.Result == ResultWin {
			wins++
		} else {
			losses++
		}
	}
	return wins, losses
}
