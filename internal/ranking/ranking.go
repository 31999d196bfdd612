// Package ranking orders the feature request board.
package ranking

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/emilythestrangee/uservoice/backend/internal/models"
)

type Source interface {
	ListFeatureRequests(ctx context.Context) ([]models.FeatureRequest, error)
	ListUserVotes(ctx context.Context, userID uint64, requestIDs []uuid.UUID) (map[uuid.UUID]models.VoteValue, error)
}

type Producer struct {
	source Source
}

func NewProducer(source Source) *Producer {
	return &Producer{source: source}
}

// Rank returns every feature request with its creator and the viewer's own
// vote, best first. The viewer's votes are loaded in one batch.
func (p *Producer) Rank(ctx context.Context, viewerID uint64) ([]models.RankedRequest, error) {
	requests, err := p.source.ListFeatureRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("ranking: list feature requests: %w", err)
	}

	ids := make([]uuid.UUID, len(requests))
	for i, r := range requests {
		ids[i] = r.ID
	}
	votes, err := p.source.ListUserVotes(ctx, viewerID, ids)
	if err != nil {
		return nil, fmt.Errorf("ranking: list votes of %d: %w", viewerID, err)
	}

	ranked := make([]models.RankedRequest, len(requests))
	for i, r := range requests {
		creator := r.Creator
		creator.OwnedApps = []uint32{}
		r.Creator = models.User{}
		ranked[i] = models.RankedRequest{
			Request:  r,
			Creator:  creator,
			UserVote: votes[r.ID],
		}
	}
	Sort(ranked)
	return ranked, nil
}

// Sort orders by weight, then by net votes, both descending. Entries equal
// on both keep their input order.
func Sort(entries []models.RankedRequest) {
	slices.SortStableFunc(entries, func(a, b models.RankedRequest) int {
		if c := cmp.Compare(b.Request.Weight, a.Request.Weight); c != 0 {
			return c
		}
		return cmp.Compare(b.Request.Score(), a.Request.Score())
	})
}
