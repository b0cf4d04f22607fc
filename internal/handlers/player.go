// internal/handlers/player.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ladderworks/challenge-api/internal/models"
	"github.com/ladderworks/challenge-api/internal/processor"
	"github.com/ladderworks/challenge-api/internal/rating"
	"github.com/ladderworks/challenge-api/internal/store"
)

// DefaultTopLimit is used when /top is called without a usable limit.
const DefaultTopLimit = 10

// storeTimeout bounds store calls made directly from read handlers.
const storeTimeout = 5 * time.Second

// LeaderboardCache is the optional read-through cache for /top responses.
type LeaderboardCache interface {
	GetTop(ctx context.Context, n int) ([]models.PlayerRecord, bool)
	SetTop(ctx context.Context, n int, players []models.PlayerRecord)
}

// API bundles the collaborators the HTTP handlers need.
type API struct {
	Store     store.Store
	Processor *processor.Processor
	Params    rating.Params
	Logger    *logrus.Logger

	// Cache may be nil; /top then always hits the store.
	Cache LeaderboardCache

	// Feed may be nil; /feed then returns 404.
	Feed *FeedHub
}

// writeJSON encodes v with the JSON content type.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to write response", http.StatusInternalServerError)
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var verr *processor.ValidationError
	var pce *processor.PartialCommitError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Reason, http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "player not found", http.StatusNotFound)
	case errors.Is(err, store.ErrDuplicateID):
		http.Error(w, "id already exists", http.StatusConflict)
	case errors.Is(err, store.ErrConflict):
		http.Error(w, "concurrent update, retry", http.StatusConflict)
	case errors.Is(err, store.ErrTimeout):
		http.Error(w, "store unavailable, retry later", http.StatusServiceUnavailable)
	case errors.As(err, &pce):
		http.Error(w, "internal error, result partially applied", http.StatusInternalServerError)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// GetPlayerHandler serves GET /player/{id}.
func (a *API) GetPlayerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/player/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "missing or malformed player id (/player/{id})", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	p, err := a.Store.GetPlayer(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, p)
}

// TopHandler serves GET /top/{limit}. An omitted or unparsable limit
// defaults to 10; an explicit non-positive limit returns an empty list.
func (a *API) TopHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/top"), "/")
	limit := DefaultTopLimit
	if raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	if a.Cache != nil {
		if players, ok := a.Cache.GetTop(ctx, limit); ok {
			writeJSON(w, players)
			return
		}
	}

	players, err := a.Store.TopPlayers(ctx, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if a.Cache != nil {
		a.Cache.SetTop(ctx, limit, players)
	}
	writeJSON(w, players)
}

// CreatePlayerHandler serves POST /create/{id?}. The new player starts at
// the configured defaults; a duplicate id is a 400 per the API contract.
func (a *API) CreatePlayerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/create"), "/")
	if strings.Contains(id, "/") {
		http.Error(w, "malformed player id (/create/{id})", http.StatusBadRequest)
		return
	}

	player := &models.PlayerRecord{
		ID:         id,
		Rating:     a.Params.DefaultRating,
		Deviation:  a.Params.DefaultDeviation,
		Volatility: a.Params.DefaultVolatility,
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	if err := a.Store.CreatePlayer(ctx, player); err != nil {
		if errors.Is(err, store.ErrDuplicateID) {
			http.Error(w, "player id already exists", http.StatusBadRequest)
			return
		}
		writeError(w, err)
		return
	}

	a.Logger.WithField("player", player.ID).Info("created player")
	w.WriteHeader(http.StatusNoContent)
}
