package store

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"

	"github.com/ladderworks/challenge-api/internal/models"
)

var (
	playersBucket = []byte("players")
	matchesBucket = []byte("matches")
)

// BoltStore implements Store and ResultCommitter on an embedded bolt file.
// It serves local development and the test suite; the file is created on
// open if missing.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(playersBucket); err != nil {
			return errors.Wrap(err, "unable to create players bucket")
		}
		_, err := tx.CreateBucketIfNotExists(matchesBucket)
		return errors.Wrap(err, "unable to create matches bucket")
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying file.
func (s *BoltStore) Close() error {
	return errors.Wrap(s.db.Close(), "unable to close database")
}

// ctxErr maps a context cancellation/deadline to the store taxonomy. Bolt
// calls are local and fast, so the check runs once per operation.
func ctxErr(ctx context.Context) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return errors.Wrap(ErrTimeout, "context deadline")
	case context.Canceled:
		return ctx.Err()
	default:
		return nil
	}
}

func (s *BoltStore) GetPlayer(ctx context.Context, id string) (*models.PlayerRecord, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	var p models.PlayerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return getPlayerTx(tx, id, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// boltPlayer is the storage shape of a player record. The wire type hides
// the version field from JSON, the stored copy must keep it.
type boltPlayer struct {
	models.PlayerRecord
	Version int64 `json:"version"`
}

func getPlayerTx(tx *bolt.Tx, id string, p *models.PlayerRecord) error {
	raw := tx.Bucket(playersBucket).Get([]byte(id))
	if raw == nil {
		return errors.Wrapf(ErrNotFound, "player %s", id)
	}
	var bp boltPlayer
	if err := json.Unmarshal(raw, &bp); err != nil {
		return errors.Wrap(err, "unable to unmarshal player")
	}
	*p = bp.PlayerRecord
	p.Version = bp.Version
	return nil
}

func putPlayerTx(tx *bolt.Tx, p *models.PlayerRecord) error {
	data, err := json.Marshal(boltPlayer{PlayerRecord: *p, Version: p.Version})
	if err != nil {
		return errors.Wrap(err, "unable to marshal player")
	}
	return errors.Wrap(tx.Bucket(playersBucket).Put([]byte(p.ID), data), "unable to put player")
}

func (s *BoltStore) TopPlayers(ctx context.Context, n int) ([]models.PlayerRecord, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if n <= 0 {
		return []models.PlayerRecord{}, nil
	}

	players := []models.PlayerRecord{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(playersBucket).ForEach(func(k, v []byte) error {
			var bp boltPlayer
			if err := json.Unmarshal(v, &bp); err != nil {
				return errors.Wrap(err, "unable to unmarshal player")
			}
			p := bp.PlayerRecord
			p.Version = bp.Version
			players = append(players, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(players, func(i, j int) bool {
		if players[i].Rating != players[j].Rating {
			return players[i].Rating > players[j].Rating
		}
		return players[i].ID < players[j].ID
	})
	if len(players) > n {
		players = players[:n]
	}
	return players, nil
}

func (s *BoltStore) CreatePlayer(ctx context.Context, p *models.PlayerRecord) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = models.NewPlayerID()
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(playersBucket).Get([]byte(p.ID)) != nil {
			return errors.Wrapf(ErrDuplicateID, "player %s", p.ID)
		}
		return putPlayerTx(tx, p)
	})
}

func (s *BoltStore) UpdatePlayer(ctx context.Context, id string, fields PlayerFields) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return updatePlayerBoltTx(tx, id, fields)
	})
}

func updatePlayerBoltTx(tx *bolt.Tx, id string, fields PlayerFields) error {
	var p models.PlayerRecord
	if err := getPlayerTx(tx, id, &p); err != nil {
		return err
	}
	if fields.ExpectedVersion != nil && p.Version != *fields.ExpectedVersion {
		return errors.Wrapf(ErrConflict, "player %s at version %d, expected %d", id, p.Version, *fields.ExpectedVersion)
	}

	if fields.Rating != nil {
		p.Rating = *fields.Rating
	}
	if fields.Deviation != nil {
		p.Deviation = *fields.Deviation
	}
	if fields.Volatility != nil {
		p.Volatility = *fields.Volatility
	}
	if fields.Wins != nil {
		p.Wins = *fields.Wins
	}
	if fields.Losses != nil {
		p.Losses = *fields.Losses
	}
	if fields.Draws != nil {
		p.Draws = *fields.Draws
	}
	p.Version++

	return putPlayerTx(tx, &p)
}

func (s *BoltStore) AppendMatch(ctx context.Context, m *models.MatchRecord) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = models.NewMatchID()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return appendMatchBoltTx(tx, m)
	})
}

func appendMatchBoltTx(tx *bolt.Tx, m *models.MatchRecord) error {
	b := tx.Bucket(matchesBucket)
	if b.Get([]byte(m.ID)) != nil {
		return errors.Wrapf(ErrDuplicateID, "match %s", m.ID)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "unable to marshal match")
	}
	return errors.Wrap(b.Put([]byte(m.ID), data), "unable to put match")
}

// CommitResult applies both player updates and the match append inside a
// single bolt write transaction.
func (s *BoltStore) CommitResult(ctx context.Context, a, b PlayerUpdate, m *models.MatchRecord) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = models.NewMatchID()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := updatePlayerBoltTx(tx, a.ID, a.Fields); err != nil {
			return err
		}
		if err := updatePlayerBoltTx(tx, b.ID, b.Fields); err != nil {
			return err
		}
		return appendMatchBoltTx(tx, m)
	})
}
