// Package store defines the durable player and match repositories and their
// error taxonomy. Two backends exist: a Postgres store (postgres.go) for
// deployment and an embedded bolt store (bolt.go) for local use and tests.
package store

import (
	"context"
	"errors"

	"github.com/ladderworks/challenge-api/internal/models"
)

var (
	// ErrNotFound means the referenced player or match does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateID means a create collided with an existing identifier.
	ErrDuplicateID = errors.New("store: duplicate id")
	// ErrConflict means an optimistic version check failed; the caller
	// should re-read and retry.
	ErrConflict = errors.New("store: version conflict")
	// ErrTimeout means the backing store did not answer within the bound.
	ErrTimeout = errors.New("store: timeout")
)

// PlayerFields is a partial update of a player record. Nil fields are left
// untouched. ExpectedVersion, when set, makes the update conditional on the
// stored version matching; a mismatch yields ErrConflict.
type PlayerFields struct {
	Rating     *float64
	Deviation  *float64
	Volatility *float64
	Wins       *int
	Losses     *int
	Draws      *int

	ExpectedVersion *int64
}

// PlayerUpdate pairs a player id with the fields to apply, used for the
// atomic two-player commit.
type PlayerUpdate struct {
	ID     string
	Fields PlayerFields
}

// PlayerStore is the durable repository of player records.
type PlayerStore interface {
	// GetPlayer returns the record for id, or ErrNotFound.
	GetPlayer(ctx context.Context, id string) (*models.PlayerRecord, error)
	// TopPlayers returns up to n records ordered by rating descending,
	// ties broken by id ascending. n <= 0 returns an empty slice.
	TopPlayers(ctx context.Context, n int) ([]models.PlayerRecord, error)
	// CreatePlayer inserts a new record, or returns ErrDuplicateID.
	CreatePlayer(ctx context.Context, p *models.PlayerRecord) error
	// UpdatePlayer applies a partial update to an existing record.
	UpdatePlayer(ctx context.Context, id string, fields PlayerFields) error
}

// MatchStore is the append-only match log.
type MatchStore interface {
	// AppendMatch records a completed match, or returns ErrDuplicateID.
	// There is no update or delete.
	AppendMatch(ctx context.Context, m *models.MatchRecord) error
}

// Store is a full backend.
type Store interface {
	PlayerStore
	MatchStore
	Close() error
}

// ResultCommitter is implemented by backends that can apply both player
// updates and the match append in a single atomic transaction. The
// processor prefers this path; without it a mid-sequence failure surfaces
// as a partial commit.
type ResultCommitter interface {
	CommitResult(ctx context.Context, a, b PlayerUpdate, m *models.MatchRecord) error
}

// Float64 returns a pointer to v, for building PlayerFields literals.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }
