package processor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladderworks/challenge-api/internal/models"
	"github.com/ladderworks/challenge-api/internal/rating"
	"github.com/ladderworks/challenge-api/internal/store"
)

func newTestProcessor(t *testing.T, opts ...Option) (*Processor, *store.BoltStore) {
	t.Helper()
	s, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(s, rating.DefaultParams(), time.Second, logger, opts...), s
}

func createPlayers(t *testing.T, s *store.BoltStore, ids ...string) {
	t.Helper()
	for _, id := range ids {
		p := &models.PlayerRecord{ID: id, Rating: 1500, Deviation: 200, Volatility: 0.06}
		require.NoError(t, s.CreatePlayer(context.Background(), p))
	}
}

func TestProcessDecisiveResult(t *testing.T) {
	p, s := newTestProcessor(t)
	ctx := context.Background()
	createPlayers(t, s, "alice", "bob")

	match, err := p.ProcessResult(ctx, GameResult{
		Date:         "2022-08-07",
		Participants: []string{"alice", "bob"},
		Outcome:      models.Outcome{Winner: "alice", Loser: "bob"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, match.ID)

	alice, err := s.GetPlayer(ctx, "alice")
	require.NoError(t, err)
	bob, err := s.GetPlayer(ctx, "bob")
	require.NoError(t, err)

	assert.Greater(t, alice.Rating, 1500.0)
	assert.Less(t, bob.Rating, 1500.0)
	assert.Less(t, alice.Deviation, 200.0)
	assert.Less(t, bob.Deviation, 200.0)

	// exactly one counter moved per player
	assert.Equal(t, 1, alice.Wins)
	assert.Zero(t, alice.Losses+alice.Draws)
	assert.Equal(t, 1, bob.Losses)
	assert.Zero(t, bob.Wins+bob.Draws)
}

func TestProcessDraw(t *testing.T) {
	p, s := newTestProcessor(t)
	ctx := context.Background()
	createPlayers(t, s, "alice", "bob")

	_, err := p.ProcessResult(ctx, GameResult{
		Date:         "2022-08-07",
		Participants: []string{"alice", "bob"},
	})
	require.NoError(t, err)

	for _, id := range []string{"alice", "bob"} {
		got, err := s.GetPlayer(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Draws, id)
		assert.Zero(t, got.Wins+got.Losses, id)
		assert.InDelta(t, 1500.0, got.Rating, 1e-9, id)
	}
}

func TestWinnerOrderIndependent(t *testing.T) {
	p, s := newTestProcessor(t)
	ctx := context.Background()
	createPlayers(t, s, "alice", "bob")

	// bob listed first but alice wins: score is derived per player, not
	// from participant order.
	_, err := p.ProcessResult(ctx, GameResult{
		Participants: []string{"bob", "alice"},
		Outcome:      models.Outcome{Winner: "alice", Loser: "bob"},
	})
	require.NoError(t, err)

	alice, err := s.GetPlayer(ctx, "alice")
	require.NoError(t, err)
	assert.Greater(t, alice.Rating, 1500.0)
	assert.Equal(t, 1, alice.Wins)
}

func TestValidationFailures(t *testing.T) {
	p, s := newTestProcessor(t)
	createPlayers(t, s, "alice", "bob")

	cases := []struct {
		name string
		res  GameResult
	}{
		{"one participant", GameResult{Participants: []string{"alice"}}},
		{"three participants", GameResult{Participants: []string{"alice", "bob", "carol"}}},
		{"same participant twice", GameResult{Participants: []string{"alice", "alice"}}},
		{"empty id", GameResult{Participants: []string{"alice", ""}}},
		{"winner equals loser", GameResult{
			Participants: []string{"alice", "bob"},
			Outcome:      models.Outcome{Winner: "alice", Loser: "alice"},
		}},
		{"winner not a participant", GameResult{
			Participants: []string{"alice", "bob"},
			Outcome:      models.Outcome{Winner: "carol", Loser: "bob"},
		}},
		{"half-specified outcome", GameResult{
			Participants: []string{"alice", "bob"},
			Outcome:      models.Outcome{Winner: "alice"},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.ProcessResult(context.Background(), tc.res)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestMissingPlayerLeavesNoMatch(t *testing.T) {
	p, s := newTestProcessor(t)
	ctx := context.Background()
	createPlayers(t, s, "alice")

	_, err := p.ProcessResult(ctx, GameResult{
		ID:           "m-missing",
		Participants: []string{"alice", "ghost"},
		Outcome:      models.Outcome{Winner: "alice", Loser: "ghost"},
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	// No partial write: alice untouched, no match appended.
	alice, err := s.GetPlayer(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1500.0, alice.Rating)
	assert.Zero(t, alice.Wins)
	assert.NoError(t, s.AppendMatch(ctx, &models.MatchRecord{
		ID:           "m-missing",
		Participants: []string{"alice", "ghost"},
	}))
}

func TestCounterInvariantAcrossMatches(t *testing.T) {
	p, s := newTestProcessor(t)
	ctx := context.Background()
	createPlayers(t, s, "alice", "bob")

	results := []models.Outcome{
		{Winner: "alice", Loser: "bob"},
		{Winner: "bob", Loser: "alice"},
		{},
	}
	for _, o := range results {
		_, err := p.ProcessResult(ctx, GameResult{
			Participants: []string{"alice", "bob"},
			Outcome:      o,
		})
		require.NoError(t, err)
	}

	for _, id := range []string{"alice", "bob"} {
		got, err := s.GetPlayer(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, len(results), got.Wins+got.Losses+got.Draws, id)
	}
}

func TestPublisherNotifiedOnCommit(t *testing.T) {
	var events []RatingUpdateEvent
	pub := publisherFunc(func(ev RatingUpdateEvent) { events = append(events, ev) })

	p, s := newTestProcessor(t, WithPublisher(pub))
	createPlayers(t, s, "alice", "bob")

	match, err := p.ProcessResult(context.Background(), GameResult{
		Participants: []string{"alice", "bob"},
		Outcome:      models.Outcome{Winner: "alice", Loser: "bob"},
	})
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, match.ID, events[0].MatchID)
	require.Len(t, events[0].Players, 2)
	assert.Greater(t, events[0].Players[0].Rating, 1500.0)
}

type publisherFunc func(RatingUpdateEvent)

func (f publisherFunc) PublishRatingUpdate(ev RatingUpdateEvent) { f(ev) }

// flakyStore drops the atomic-commit capability and fails writes on demand
// to exercise the sequential persistence path.
type flakyStore struct {
	store.Store
	failSecondUpdate bool
	failAppend       bool
	updates          int
}

var errStoreDown = errors.New("store down")

func (f *flakyStore) UpdatePlayer(ctx context.Context, id string, fields store.PlayerFields) error {
	f.updates++
	if f.failSecondUpdate && f.updates == 2 {
		return errStoreDown
	}
	return f.Store.UpdatePlayer(ctx, id, fields)
}

func (f *flakyStore) AppendMatch(ctx context.Context, m *models.MatchRecord) error {
	if f.failAppend {
		return errStoreDown
	}
	return f.Store.AppendMatch(ctx, m)
}

func TestPartialCommitSurfaced(t *testing.T) {
	bs, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })

	fs := &flakyStore{Store: bs, failSecondUpdate: true}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	p := New(fs, rating.DefaultParams(), time.Second, logger)

	ctx := context.Background()
	createPlayers(t, bs, "alice", "bob")

	_, err = p.ProcessResult(ctx, GameResult{
		Participants: []string{"alice", "bob"},
		Outcome:      models.Outcome{Winner: "alice", Loser: "bob"},
	})

	var pce *PartialCommitError
	require.ErrorAs(t, err, &pce)
	assert.Equal(t, "alice", pce.PlayerA)
	assert.Equal(t, "bob", pce.PlayerB)
	assert.ErrorIs(t, err, errStoreDown)

	// The first player's write really did land; that is what makes this a
	// partial commit rather than a rejection.
	alice, err := bs.GetPlayer(ctx, "alice")
	require.NoError(t, err)
	assert.Greater(t, alice.Rating, 1500.0)
}

func TestPartialCommitOnMatchAppend(t *testing.T) {
	bs, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })

	fs := &flakyStore{Store: bs, failAppend: true}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	p := New(fs, rating.DefaultParams(), time.Second, logger)

	createPlayers(t, bs, "alice", "bob")

	_, err = p.ProcessResult(context.Background(), GameResult{
		Participants: []string{"alice", "bob"},
		Outcome:      models.Outcome{Winner: "alice", Loser: "bob"},
	})

	var pce *PartialCommitError
	require.ErrorAs(t, err, &pce)
	assert.Equal(t, "append match", pce.FailedStep)
}
