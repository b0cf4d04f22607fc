// Package processor orchestrates one game-result submission: validate the
// request, load both players, run the rating update and commit the new
// player state together with the match record.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ladderworks/challenge-api/internal/models"
	"github.com/ladderworks/challenge-api/internal/rating"
	"github.com/ladderworks/challenge-api/internal/store"
)

// ValidationError rejects a malformed submission. Always recoverable by the
// caller fixing the request.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid game result: " + e.Reason
}

// PartialCommitError reports a mid-transaction failure that left the stores
// inconsistent: one player's update landed and a later write failed. It is
// never folded into a clean rejection; the processor logs it with enough
// detail to reconcile by hand before returning it.
type PartialCommitError struct {
	MatchID    string
	PlayerA    string
	PlayerB    string
	FailedStep string
	Err        error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("partial commit of match %s (players %s, %s) at step %s: %v",
		e.MatchID, e.PlayerA, e.PlayerB, e.FailedStep, e.Err)
}

func (e *PartialCommitError) Unwrap() error { return e.Err }

// GameResult is one inbound outcome submission.
type GameResult struct {
	ID           string         `json:"id,omitempty"`
	Date         string         `json:"date"`
	Participants []string       `json:"participants"`
	Outcome      models.Outcome `json:"outcome"`
}

// RatingChange is the post-commit state of one participant, published to
// feed subscribers.
type RatingChange struct {
	ID        string  `json:"id"`
	Rating    float64 `json:"rating"`
	Deviation float64 `json:"deviation"`
}

// RatingUpdateEvent is broadcast after every committed result.
type RatingUpdateEvent struct {
	MatchID string         `json:"match_id"`
	Players []RatingChange `json:"players"`
}

// Publisher receives committed rating updates. Implementations must not
// block; the processor calls it on the request goroutine.
type Publisher interface {
	PublishRatingUpdate(ev RatingUpdateEvent)
}

// Invalidator drops any cached leaderboard state after a commit.
type Invalidator interface {
	InvalidateLeaderboard(ctx context.Context)
}

// Processor runs the result pipeline. It keeps no mutable state between
// invocations; concurrent submissions only interact through the store,
// where the per-player version checks serialize overlapping updates.
type Processor struct {
	store   store.Store
	params  rating.Params
	timeout time.Duration
	log     *logrus.Logger

	publisher   Publisher
	invalidator Invalidator
}

// Option configures optional collaborators.
type Option func(*Processor)

// WithPublisher attaches a feed publisher notified on every commit.
func WithPublisher(pub Publisher) Option {
	return func(p *Processor) { p.publisher = pub }
}

// WithInvalidator attaches a leaderboard-cache invalidator.
func WithInvalidator(inv Invalidator) Option {
	return func(p *Processor) { p.invalidator = inv }
}

// New builds a Processor. timeout bounds every store operation; zero means
// a 5 second default.
func New(s store.Store, params rating.Params, timeout time.Duration, logger *logrus.Logger, opts ...Option) *Processor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	p := &Processor{store: s, params: params, timeout: timeout, log: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessResult runs one submission to Committed or Rejected. On success
// the returned match record carries the (possibly generated) match id.
func (p *Processor) ProcessResult(ctx context.Context, res GameResult) (*models.MatchRecord, error) {
	if err := validate(res); err != nil {
		return nil, err
	}
	idA, idB := res.Participants[0], res.Participants[1]

	playerA, err := p.loadPlayer(ctx, idA)
	if err != nil {
		return nil, err
	}
	playerB, err := p.loadPlayer(ctx, idB)
	if err != nil {
		return nil, err
	}

	score := scoreFor(idA, res.Outcome)
	newA, newB := rating.ComputeUpdate(
		rating.Rating{Rating: playerA.Rating, Deviation: playerA.Deviation, Volatility: playerA.Volatility},
		rating.Rating{Rating: playerB.Rating, Deviation: playerB.Deviation, Volatility: playerB.Volatility},
		score,
		p.params,
	)

	updateA := store.PlayerUpdate{ID: idA, Fields: ratingFields(newA, playerA, score)}
	updateB := store.PlayerUpdate{ID: idB, Fields: ratingFields(newB, playerB, 1.0-score)}

	match := &models.MatchRecord{
		ID:           res.ID,
		Date:         res.Date,
		Participants: []string{idA, idB},
		Outcome:      res.Outcome,
	}

	if err := p.persist(ctx, updateA, updateB, match); err != nil {
		return nil, err
	}

	p.log.WithFields(logrus.Fields{
		"match":    match.ID,
		"player_a": idA,
		"player_b": idB,
		"score":    score,
	}).Info("game result committed")

	if p.invalidator != nil {
		p.invalidator.InvalidateLeaderboard(ctx)
	}
	if p.publisher != nil {
		p.publisher.PublishRatingUpdate(RatingUpdateEvent{
			MatchID: match.ID,
			Players: []RatingChange{
				{ID: idA, Rating: newA.Rating, Deviation: newA.Deviation},
				{ID: idB, Rating: newB.Rating, Deviation: newB.Deviation},
			},
		})
	}
	return match, nil
}

// validate enforces the submission rules: exactly two distinct
// participants; a decisive outcome must name a distinct permutation of
// them; a half-specified outcome is malformed.
func validate(res GameResult) error {
	if len(res.Participants) != 2 {
		return &ValidationError{Reason: "exactly two participants required"}
	}
	a, b := res.Participants[0], res.Participants[1]
	if a == "" || b == "" {
		return &ValidationError{Reason: "participant ids must be non-empty"}
	}
	if a == b {
		return &ValidationError{Reason: "participants must be distinct"}
	}

	o := res.Outcome
	if o.IsDraw() {
		return nil
	}
	if o.Winner == "" || o.Loser == "" {
		return &ValidationError{Reason: "outcome must name both winner and loser, or neither for a draw"}
	}
	if o.Winner == o.Loser {
		return &ValidationError{Reason: "winner and loser must be distinct"}
	}
	if !isParticipant(o.Winner, a, b) || !isParticipant(o.Loser, a, b) {
		return &ValidationError{Reason: "winner and loser must both be participants"}
	}
	return nil
}

func isParticipant(id, a, b string) bool {
	return id == a || id == b
}

// scoreFor derives player A's score: 1 for a win, 0 for a loss, 0.5 for a
// draw.
func scoreFor(idA string, o models.Outcome) float64 {
	switch {
	case o.IsDraw():
		return 0.5
	case o.Winner == idA:
		return 1.0
	default:
		return 0.0
	}
}

// ratingFields builds the partial update for one player: the three rating
// quantities, exactly one incremented counter, and the version the record
// was read at so a concurrent update is detected at commit.
func ratingFields(updated rating.Rating, prev *models.PlayerRecord, score float64) store.PlayerFields {
	fields := store.PlayerFields{
		Rating:          store.Float64(updated.Rating),
		Deviation:       store.Float64(updated.Deviation),
		Volatility:      store.Float64(updated.Volatility),
		ExpectedVersion: store.Int64(prev.Version),
	}
	switch score {
	case 1.0:
		fields.Wins = store.Int(prev.Wins + 1)
	case 0.0:
		fields.Losses = store.Int(prev.Losses + 1)
	default:
		fields.Draws = store.Int(prev.Draws + 1)
	}
	return fields
}

func (p *Processor) loadPlayer(ctx context.Context, id string) (*models.PlayerRecord, error) {
	opCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.store.GetPlayer(opCtx, id)
}

// persist commits both player updates and the match record. Backends that
// implement store.ResultCommitter get a single atomic transaction; the
// sequential fallback wraps any failure after the first write in a
// PartialCommitError.
func (p *Processor) persist(ctx context.Context, a, b store.PlayerUpdate, m *models.MatchRecord) error {
	// Outcomes are not revocable: a caller disconnect must not abort a
	// commit already in flight. The timeout still bounds the write.
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if committer, ok := p.store.(store.ResultCommitter); ok {
		return committer.CommitResult(opCtx, a, b, m)
	}

	if err := p.store.UpdatePlayer(opCtx, a.ID, a.Fields); err != nil {
		// Nothing written yet; a clean rejection.
		return err
	}
	if err := p.store.UpdatePlayer(opCtx, b.ID, b.Fields); err != nil {
		return p.partialCommit(a.ID, b.ID, m, "update second player", err)
	}
	if err := p.store.AppendMatch(opCtx, m); err != nil {
		return p.partialCommit(a.ID, b.ID, m, "append match", err)
	}
	return nil
}

func (p *Processor) partialCommit(idA, idB string, m *models.MatchRecord, step string, err error) error {
	pce := &PartialCommitError{
		MatchID:    m.ID,
		PlayerA:    idA,
		PlayerB:    idB,
		FailedStep: step,
		Err:        err,
	}
	p.log.WithFields(logrus.Fields{
		"match":    pce.MatchID,
		"player_a": pce.PlayerA,
		"player_b": pce.PlayerB,
		"step":     pce.FailedStep,
		"error":    err,
	}).Error("partial commit, stores need manual reconciliation")
	return pce
}
