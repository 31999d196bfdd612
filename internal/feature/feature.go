// Package feature creates feature requests on behalf of authenticated users.
package feature

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/emilythestrangee/uservoice/backend/internal/models"
	"github.com/emilythestrangee/uservoice/backend/internal/store"
)

const (
	MaxTitleLength       = 75
	MaxDescriptionLength = 560

	// LineBreak replaces newlines in stored descriptions.
	LineBreak = "</br>"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInternal        = errors.New("internal error")
)

var newlines = strings.NewReplacer("\r\n", LineBreak, "\r", LineBreak, "\n", LineBreak)

// Validate checks the user-supplied fields of a new request.
func Validate(input models.CreateFeatureRequest) error {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	switch {
	case title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidArgument)
	case description == "":
		return fmt.Errorf("%w: description is required", ErrInvalidArgument)
	case utf8.RuneCountInString(title) > MaxTitleLength:
		return fmt.Errorf("%w: title is too long", ErrInvalidArgument)
	case utf8.RuneCountInString(description) > MaxDescriptionLength:
		return fmt.Errorf("%w: description is too long", ErrInvalidArgument)
	}
	return nil
}

// Sanitizer strips all markup except <b>, <i> and <u>.
type Sanitizer struct {
	policy *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	policy := bluemonday.NewPolicy()
	policy.AllowElements("b", "i", "u")
	return &Sanitizer{policy: policy}
}

func (s *Sanitizer) Title(title string) string {
	return s.policy.Sanitize(strings.TrimSpace(title))
}

// Description sanitizes first so the inserted line breaks survive.
func (s *Sanitizer) Description(description string) string {
	return newlines.Replace(s.policy.Sanitize(strings.TrimSpace(description)))
}

type Store interface {
	store.UserStore
	CreateFeatureRequest(ctx context.Context, request *models.FeatureRequest) error
}

type Service struct {
	store     Store
	sanitizer *Sanitizer
	now       func() time.Time
	logger    *slog.Logger
}

func NewService(s Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, sanitizer: NewSanitizer(), now: time.Now, logger: logger}
}

// Create stores a new request by creator. The creator's profile row is
// refreshed from the token identity on every creation.
func (s *Service) Create(ctx context.Context, creator models.User, input models.CreateFeatureRequest) (models.FeatureRequest, error) {
	if err := Validate(input); err != nil {
		return models.FeatureRequest{}, err
	}

	profile := creator
	if err := s.store.UpsertUser(ctx, &profile); err != nil {
		s.logger.Error("failed to upsert user", "user_id", creator.ID, "error", err)
		return models.FeatureRequest{}, fmt.Errorf("%w: failed to create feature request", ErrInternal)
	}

	now := s.now().UTC()
	request := models.FeatureRequest{
		ID:          uuid.New(),
		Title:       s.sanitizer.Title(input.Title),
		Description: s.sanitizer.Description(input.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatorID:   creator.ID,
		Status:      models.StatusNone,
		Weight:      creator.Weight,
	}
	if err := s.store.CreateFeatureRequest(ctx, &request); err != nil {
		s.logger.Error("failed to create feature request", "user_id", creator.ID, "error", err)
		return models.FeatureRequest{}, fmt.Errorf("%w: failed to create feature request", ErrInternal)
	}

	s.logger.Info("feature request created", "id", request.ID, "user_id", creator.ID, "weight", request.Weight)
	return request, nil
}
