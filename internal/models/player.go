package models

import (
	"crypto/rand"
	"encoding/hex"
)

// PlayerRecord is the persistent rating state for a single player.
//
// Rating, Deviation and Volatility are the three Glicko-2 quantities; the
// win/loss/draw counters are incremented exactly once per committed match
// involving this player. Version is the optimistic-concurrency counter used
// by the stores and is never exposed over the wire.
type PlayerRecord struct {
	ID         string  `json:"id"`
	Rating     float64 `json:"rating"`
	Deviation  float64 `json:"deviation"`
	Volatility float64 `json:"volatility"`

	Wins   int `json:"wins"`
	Losses int `json:"losses"`
	Draws  int `json:"draws"`

	Version int64 `json:"-"`
}

// NewPlayerID generates a fresh player identifier of the form
// "player_<24 hex chars>" (96 bits of randomness).
func NewPlayerID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return "player_" + hex.EncodeToString(buf)
}
