package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/uservoice/backend/internal/feature"
	"github.com/emilythestrangee/uservoice/backend/internal/middleware"
	"github.com/emilythestrangee/uservoice/backend/internal/models"
	"github.com/emilythestrangee/uservoice/backend/internal/ranking"
	"github.com/emilythestrangee/uservoice/backend/internal/store"
	"github.com/emilythestrangee/uservoice/backend/internal/vote"
)

// maxVoteAttempts bounds retries of a vote that lost a serialization race.
const maxVoteAttempts = 3

type FeatureRequestHandler struct {
	service *feature.Service
	votes   *vote.Engine
	ranking *ranking.Producer
	logger  *slog.Logger
}

func NewFeatureRequestHandler(service *feature.Service, votes *vote.Engine, producer *ranking.Producer, logger *slog.Logger) *FeatureRequestHandler {
	return &FeatureRequestHandler{service: service, votes: votes, ranking: producer, logger: logger}
}

// List returns the ranked board with the caller's own votes.
func (h *FeatureRequestHandler) List(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	ranked, err := h.ranking.Rank(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to rank feature requests", "user_id", user.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch feature requests"})
		return
	}
	if ranked == nil {
		ranked = []models.RankedRequest{}
	}

	c.JSON(http.StatusOK, ranked)
}

// Create stores a new feature request owned by the caller.
func (h *FeatureRequestHandler) Create(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var input models.CreateFeatureRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	request, err := h.service.Create(c.Request.Context(), user, input)
	switch {
	case errors.Is(err, feature.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create feature request"})
		return
	}

	c.JSON(http.StatusCreated, request)
}

// Vote sets, switches or clears the caller's vote on a feature request.
func (h *FeatureRequestHandler) Vote(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var input models.VoteRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var err error
	for attempt := 1; attempt <= maxVoteAttempts; attempt++ {
		err = h.votes.CastVote(c.Request.Context(), user.ID, input.FeatureRequestID, input.Vote)
		if !errors.Is(err, store.ErrConflict) {
			break
		}
		h.logger.Warn("vote conflict, retrying", "user_id", user.ID, "attempt", attempt)
	}

	switch {
	case errors.Is(err, vote.ErrInvalidVote), errors.Is(err, vote.ErrMissingTarget):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Feature request not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to vote"})
	default:
		c.Status(http.StatusNoContent)
	}
}
