// Package storetest is a conformance suite run against every store.Store
// backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/uservoice/backend/internal/feature"
	"github.com/emilythestrangee/uservoice/backend/internal/models"
	"github.com/emilythestrangee/uservoice/backend/internal/store"
	"github.com/emilythestrangee/uservoice/backend/internal/vote"
)

// Run executes the suite. newStore must return an empty store; it is called
// once per subtest.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("UpsertUser", func(t *testing.T) { testUpsertUser(t, newStore(t)) })
	t.Run("GetFeatureRequest", func(t *testing.T) { testGetFeatureRequest(t, newStore(t)) })
	t.Run("EscapedTitleAtLimit", func(t *testing.T) { testEscapedTitleAtLimit(t, newStore(t)) })
	t.Run("ListFeatureRequests", func(t *testing.T) { testListFeatureRequests(t, newStore(t)) })
	t.Run("ListUserVotes", func(t *testing.T) { testListUserVotes(t, newStore(t)) })
	t.Run("VoteLockMissingRequest", func(t *testing.T) { testVoteLockMissing(t, newStore(t)) })
	t.Run("VoteLockRollback", func(t *testing.T) { testVoteLockRollback(t, newStore(t)) })
	t.Run("ConcurrentVotes", func(t *testing.T) { testConcurrentVotes(t, newStore(t)) })
}

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func NewUser(id uint64) *models.User {
	return &models.User{
		ID:         id,
		Name:       fmt.Sprintf("player-%d", id),
		Level:      10,
		Avatar:     "https://avatars.example/a.jpg",
		PlayTime:   3600,
		Weight:     6,
		ProfileURL: fmt.Sprintf("https://steamcommunity.com/profiles/%d/", id),
	}
}

// NewRequest inserts a creator and a feature request owned by them.
func NewRequest(t *testing.T, s store.Store, creator *models.User, weight int, created time.Time) models.FeatureRequest {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertUser(ctx, creator))
	r := models.FeatureRequest{
		ID:          uuid.New(),
		Title:       "Request " + created.Format(time.RFC3339),
		Description: "Some description",
		CreatedAt:   created,
		UpdatedAt:   created,
		CreatorID:   creator.ID,
		Status:      models.StatusPending,
		Weight:      weight,
	}
	require.NoError(t, s.CreateFeatureRequest(ctx, &r))
	return r
}

func testUpsertUser(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := NewUser(76561197960287930)
	r := NewRequest(t, s, u, u.Weight, epoch)

	u.Name = "renamed"
	u.Weight = 40
	require.NoError(t, s.UpsertUser(ctx, u))

	got, err := s.GetFeatureRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.Creator.ID)
	assert.Equal(t, "renamed", got.Creator.Name)
	assert.Equal(t, 40, got.Creator.Weight)
	// The request keeps the weight it was created with.
	assert.Equal(t, 6, got.Weight)
}

func testGetFeatureRequest(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := NewUser(76561197960287931)
	want := NewRequest(t, s, u, 12, epoch)

	got, err := s.GetFeatureRequest(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, want.Description, got.Description)
	assert.Equal(t, want.CreatorID, got.CreatorID)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, 12, got.Weight)
	assert.Zero(t, got.Upvotes)
	assert.Zero(t, got.Downvotes)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created %v, want %v", got.CreatedAt, want.CreatedAt)
	assert.Equal(t, u.Name, got.Creator.Name)
	assert.Equal(t, u.ProfileURL, got.Creator.ProfileURL)

	_, err = s.GetFeatureRequest(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// A title at the input limit grows when its markup is escaped; the stored
// column must hold the escaped form.
func testEscapedTitleAtLimit(t *testing.T, s store.Store) {
	ctx := context.Background()
	title := strings.Repeat("a", feature.MaxTitleLength-4) + "'s &"
	require.Equal(t, feature.MaxTitleLength, len([]rune(title)))

	created, err := feature.NewService(s, nil).Create(ctx, *NewUser(76561197960287937), models.CreateFeatureRequest{
		Title:       title,
		Description: "Tom's & Jerry's <b>request</b>",
	})
	require.NoError(t, err)
	assert.Greater(t, len([]rune(created.Title)), feature.MaxTitleLength)

	got, err := s.GetFeatureRequest(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Title, got.Title)
	assert.Equal(t, created.Description, got.Description)
}

func testListFeatureRequests(t *testing.T, s store.Store) {
	ctx := context.Background()

	list, err := s.ListFeatureRequests(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	alice, bob := NewUser(76561197960287932), NewUser(76561197960287933)
	first := NewRequest(t, s, alice, 5, epoch)
	second := NewRequest(t, s, bob, 50, epoch.Add(time.Minute))

	list, err = s.ListFeatureRequests(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	byID := map[uuid.UUID]models.FeatureRequest{list[0].ID: list[0], list[1].ID: list[1]}
	assert.Equal(t, alice.Name, byID[first.ID].Creator.Name)
	assert.Equal(t, bob.Name, byID[second.ID].Creator.Name)
}

func testListUserVotes(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := NewUser(76561197960287934)
	a := NewRequest(t, s, u, 1, epoch)
	b := NewRequest(t, s, u, 1, epoch.Add(time.Second))
	c := NewRequest(t, s, u, 1, epoch.Add(2*time.Second))

	votes, err := s.ListUserVotes(ctx, u.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, votes)

	engine := vote.NewEngine(s, nil)
	require.NoError(t, engine.CastVote(ctx, u.ID, a.ID, models.VoteUp))
	require.NoError(t, engine.CastVote(ctx, u.ID, b.ID, models.VoteDown))
	require.NoError(t, engine.CastVote(ctx, 42, c.ID, models.VoteUp))

	votes, err = s.ListUserVotes(ctx, u.ID, []uuid.UUID{a.ID, b.ID, c.ID})
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]models.VoteValue{
		a.ID: models.VoteUp,
		b.ID: models.VoteDown,
	}, votes)

	require.NoError(t, engine.CastVote(ctx, u.ID, a.ID, models.VoteNone))
	votes, err = s.ListUserVotes(ctx, u.ID, []uuid.UUID{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]models.VoteValue{b.ID: models.VoteDown}, votes)

	got, err := s.GetFeatureRequest(ctx, a.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Upvotes)
	assert.Zero(t, got.Downvotes)
}

func testVoteLockMissing(t *testing.T, s store.Store) {
	called := false
	err := s.WithVoteLock(context.Background(), uuid.New(), func(store.VoteTx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.False(t, called)
}

func testVoteLockRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := NewUser(76561197960287935)
	r := NewRequest(t, s, u, 1, epoch)

	boom := errors.New("boom")
	err := s.WithVoteLock(ctx, r.ID, func(tx store.VoteTx) error {
		if err := tx.PutVote(ctx, models.UserVote{UserID: u.ID, FeatureRequestID: r.ID, Vote: models.VoteUp}); err != nil {
			return err
		}
		if err := tx.AdjustCounters(ctx, r.ID, 1, 0); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	votes, err := s.ListUserVotes(ctx, u.ID, []uuid.UUID{r.ID})
	require.NoError(t, err)
	assert.Empty(t, votes)
	got, err := s.GetFeatureRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Upvotes)
}

func testConcurrentVotes(t *testing.T, s store.Store) {
	ctx := context.Background()
	creator := NewUser(76561197960287936)
	r := NewRequest(t, s, creator, 1, epoch)
	engine := vote.NewEngine(s, nil)

	const voters = 20
	var wg sync.WaitGroup
	errs := make(chan error, voters*2)
	for i := range voters {
		wg.Add(1)
		go func(userID uint64) {
			defer wg.Done()
			// Every voter sends the same first vote twice at once.
			var inner sync.WaitGroup
			for range 2 {
				inner.Add(1)
				go func() {
					defer inner.Done()
					errs <- castWithRetry(ctx, engine, userID, r.ID, models.VoteUp)
				}()
			}
			inner.Wait()
		}(uint64(1000 + i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.GetFeatureRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, voters, got.Upvotes)
	assert.Zero(t, got.Downvotes)
}

func castWithRetry(ctx context.Context, e *vote.Engine, userID uint64, requestID uuid.UUID, v models.VoteValue) error {
	var err error
	for range 5 {
		err = e.CastVote(ctx, userID, requestID, v)
		if !errors.Is(err, store.ErrConflict) {
			return err
		}
	}
	return err
}
