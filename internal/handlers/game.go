// internal/handlers/game.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ladderworks/challenge-api/internal/processor"
)

// GameResultHandler serves POST /game. The body is
// {id?, date, participants: [a, b], outcome: {winner?, loser?}}; a committed
// result answers 204, a rejection maps through the error taxonomy.
func (a *API) GameResultHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var res processor.GameResult
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if _, err := a.Processor.ProcessResult(r.Context(), res); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
