package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ladderworks/challenge-api/internal/models"
)

// PostgresStore implements Store and ResultCommitter on a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database described by connStr, verifies
// the connection and ensures the schema exists.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id          TEXT PRIMARY KEY,
			rating      DOUBLE PRECISION NOT NULL,
			deviation   DOUBLE PRECISION NOT NULL,
			volatility  DOUBLE PRECISION NOT NULL,
			wins        INTEGER NOT NULL DEFAULT 0,
			losses      INTEGER NOT NULL DEFAULT 0,
			draws       INTEGER NOT NULL DEFAULT 0,
			version     BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS matches (
			id        TEXT PRIMARY KEY,
			date      TEXT NOT NULL,
			player_a  TEXT NOT NULL,
			player_b  TEXT NOT NULL,
			winner    TEXT,
			loser     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS players_rating_idx ON players (rating DESC, id ASC)`,
	}
	for _, q := range ddl {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", mapPgErr(err))
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetPlayer(ctx context.Context, id string) (*models.PlayerRecord, error) {
	var p models.PlayerRecord
	q := `
	SELECT id, rating, deviation, volatility, wins, losses, draws, version
	FROM players
	WHERE id=$1
	`
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&p.ID, &p.Rating, &p.Deviation, &p.Volatility,
		&p.Wins, &p.Losses, &p.Draws, &p.Version,
	)
	if err != nil {
		return nil, mapPgErr(err)
	}
	return &p, nil
}

func (s *PostgresStore) TopPlayers(ctx context.Context, n int) ([]models.PlayerRecord, error) {
	if n <= 0 {
		return []models.PlayerRecord{}, nil
	}
	q := `
	SELECT id, rating, deviation, volatility, wins, losses, draws, version
	FROM players
	ORDER BY rating DESC, id ASC
	LIMIT $1
	`
	rows, err := s.pool.Query(ctx, q, n)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()

	players := []models.PlayerRecord{}
	for rows.Next() {
		var p models.PlayerRecord
		if err := rows.Scan(
			&p.ID, &p.Rating, &p.Deviation, &p.Volatility,
			&p.Wins, &p.Losses, &p.Draws, &p.Version,
		); err != nil {
			return nil, mapPgErr(err)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgErr(err)
	}
	return players, nil
}

func (s *PostgresStore) CreatePlayer(ctx context.Context, p *models.PlayerRecord) error {
	if p.ID == "" {
		p.ID = models.NewPlayerID()
	}

	q := `INSERT INTO players (id, rating, deviation, volatility, wins, losses, draws, version)
	      VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q,
			p.ID, p.Rating, p.Deviation, p.Volatility,
			p.Wins, p.Losses, p.Draws, p.Version,
		)
		return execErr
	})
	if err != nil {
		return mapPgErr(err)
	}
	return nil
}

func (s *PostgresStore) UpdatePlayer(ctx context.Context, id string, fields PlayerFields) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return updatePlayerTx(ctx, tx, id, fields)
	})
	if err != nil {
		return mapPgErr(err)
	}
	return nil
}

// updatePlayerTx builds the partial UPDATE inside tx. Unset fields are not
// touched; the version column always advances by one so concurrent writers
// can be detected.
func updatePlayerTx(ctx context.Context, tx pgx.Tx, id string, fields PlayerFields) error {
	set := []string{"version = version + 1"}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if fields.Rating != nil {
		set = append(set, "rating = "+arg(*fields.Rating))
	}
	if fields.Deviation != nil {
		set = append(set, "deviation = "+arg(*fields.Deviation))
	}
	if fields.Volatility != nil {
		set = append(set, "volatility = "+arg(*fields.Volatility))
	}
	if fields.Wins != nil {
		set = append(set, "wins = "+arg(*fields.Wins))
	}
	if fields.Losses != nil {
		set = append(set, "losses = "+arg(*fields.Losses))
	}
	if fields.Draws != nil {
		set = append(set, "draws = "+arg(*fields.Draws))
	}

	q := "UPDATE players SET " + strings.Join(set, ", ") + " WHERE id = " + arg(id)
	if fields.ExpectedVersion != nil {
		q += " AND version = " + arg(*fields.ExpectedVersion)
	}

	tag, err := tx.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a lost version race.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM players WHERE id=$1)`, id).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrConflict
		}
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AppendMatch(ctx context.Context, m *models.MatchRecord) error {
	if m.ID == "" {
		m.ID = models.NewMatchID()
	}
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return appendMatchTx(ctx, tx, m)
	})
	if err != nil {
		return mapPgErr(err)
	}
	return nil
}

func appendMatchTx(ctx context.Context, tx pgx.Tx, m *models.MatchRecord) error {
	var winner, loser *string
	if !m.Outcome.IsDraw() {
		winner = &m.Outcome.Winner
		loser = &m.Outcome.Loser
	}
	q := `INSERT INTO matches (id, date, player_a, player_b, winner, loser)
	      VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := tx.Exec(ctx, q, m.ID, m.Date, m.Participants[0], m.Participants[1], winner, loser)
	return err
}

// CommitResult applies both player updates and the match append in one
// transaction; any failure rolls the whole result back.
func (s *PostgresStore) CommitResult(ctx context.Context, a, b PlayerUpdate, m *models.MatchRecord) error {
	if m.ID == "" {
		m.ID = models.NewMatchID()
	}
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := updatePlayerTx(ctx, tx, a.ID, a.Fields); err != nil {
			return err
		}
		if err := updatePlayerTx(ctx, tx, b.ID, b.Fields); err != nil {
			return err
		}
		return appendMatchTx(ctx, tx, m)
	})
	if err != nil {
		return mapPgErr(err)
	}
	return nil
}

// mapPgErr translates driver errors into the store taxonomy.
func mapPgErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrDuplicateID) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %v", ErrDuplicateID, err)
	}
	return err
}
