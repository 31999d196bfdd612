// Package vote records users' votes on feature requests and keeps each
// request's upvote/downvote counters equal to the number of matching vote
// rows.
package vote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/emilythestrangee/uservoice/backend/internal/models"
	"github.com/emilythestrangee/uservoice/backend/internal/store"
)

var (
	ErrInvalidVote   = errors.New("vote: value must be 0, 1 or 2")
	ErrMissingTarget = errors.New("vote: feature request id is required")
	// ErrCounterWrite means the vote row was written but the counters could
	// not be; the storage transaction is rolled back.
	ErrCounterWrite = errors.New("vote: failed to adjust counters")
)

// Delta is the change to a feature request's counters caused by one vote.
type Delta struct {
	Up   int
	Down int
}

// Tally computes the counter change for a user moving from prev to next.
func Tally(prev, next models.VoteValue) Delta {
	return Delta{
		Up:   step(prev, next, models.VoteUp),
		Down: step(prev, next, models.VoteDown),
	}
}

func step(prev, next, counted models.VoteValue) int {
	switch {
	case next == counted && prev != counted:
		return 1
	case next != counted && prev == counted:
		return -1
	}
	return 0
}

type Engine struct {
	store  store.VoteStore
	logger *slog.Logger
}

func NewEngine(s store.VoteStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: s, logger: logger}
}

// CastVote sets userID's vote on requestID to next. VoteNone removes the
// vote. Casting the same vote twice leaves the counters unchanged.
//
// The storage layer serializes concurrent votes on the same request. When it
// reports store.ErrConflict the whole call can be retried.
func (e *Engine) CastVote(ctx context.Context, userID uint64, requestID uuid.UUID, next models.VoteValue) error {
	if !next.Valid() {
		return ErrInvalidVote
	}
	if requestID == uuid.Nil {
		return ErrMissingTarget
	}

	err := e.store.WithVoteLock(ctx, requestID, func(tx store.VoteTx) error {
		prev, err := tx.GetVote(ctx, userID, requestID)
		if err != nil {
			return fmt.Errorf("vote: read previous vote: %w", err)
		}

		if next == models.VoteNone {
			err = tx.DeleteVote(ctx, userID, requestID)
		} else {
			err = tx.PutVote(ctx, models.UserVote{UserID: userID, FeatureRequestID: requestID, Vote: next})
		}
		if err != nil {
			return fmt.Errorf("vote: write vote row: %w", err)
		}

		delta := Tally(prev, next)
		if delta == (Delta{}) {
			return nil
		}
		if err := tx.AdjustCounters(ctx, requestID, delta.Up, delta.Down); err != nil {
			return fmt.Errorf("%w: %w", ErrCounterWrite, err)
		}
		return nil
	})
	if err != nil {
		e.logger.Error("failed to cast vote",
			"user_id", userID,
			"feature_request_id", requestID,
			"vote", next.String(),
			"error", err,
		)
		return err
	}
	return nil
}
