// Package store declares the storage capability the feature request and
// voting components are built against. Backends live in internal/database
// (Postgres) and internal/store/sqlite.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/emilythestrangee/uservoice/backend/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a transient serialization failure. Callers retry
	// the whole read-modify-write operation.
	ErrConflict = errors.New("storage conflict")
)

type Store interface {
	UserStore
	FeatureRequestStore
	VoteStore
	Close() error
}

type UserStore interface {
	UpsertUser(ctx context.Context, user *models.User) error
}

type FeatureRequestStore interface {
	CreateFeatureRequest(ctx context.Context, request *models.FeatureRequest) error
	GetFeatureRequest(ctx context.Context, id uuid.UUID) (models.FeatureRequest, error)
	// ListFeatureRequests returns every request with its Creator populated.
	ListFeatureRequests(ctx context.Context) ([]models.FeatureRequest, error)
}

type VoteStore interface {
	// ListUserVotes returns the user's votes on the given requests in a
	// single query. Requests without a vote are absent from the map.
	ListUserVotes(ctx context.Context, userID uint64, requestIDs []uuid.UUID) (map[uuid.UUID]models.VoteValue, error)
	// WithVoteLock runs fn in a transaction that holds the write lock for
	// the feature request. It returns ErrNotFound when the request does not
	// exist. Any error returned by fn rolls the transaction back.
	WithVoteLock(ctx context.Context, requestID uuid.UUID, fn func(tx VoteTx) error) error
}

// VoteTx is the transactional view handed to WithVoteLock callbacks.
type VoteTx interface {
	GetVote(ctx context.Context, userID uint64, requestID uuid.UUID) (models.VoteValue, error)
	PutVote(ctx context.Context, vote models.UserVote) error
	DeleteVote(ctx context.Context, userID uint64, requestID uuid.UUID) error
	AdjustCounters(ctx context.Context, requestID uuid.UUID, upDelta, downDelta int) error
}
