package handlers

import (
	"log/slog"
	"time"

	"github.com/emilythestrangee/uservoice/backend/internal/feature"
	"github.com/emilythestrangee/uservoice/backend/internal/openid"
	"github.com/emilythestrangee/uservoice/backend/internal/ranking"
	"github.com/emilythestrangee/uservoice/backend/internal/store"
	"github.com/emilythestrangee/uservoice/backend/internal/token"
	"github.com/emilythestrangee/uservoice/backend/internal/vote"
)

// Handler combines all handler types
type Handler struct {
	Auth           *AuthHandler
	FeatureRequest *FeatureRequestHandler
}

// Options carries everything the handlers need from the server.
type Options struct {
	Store    store.Store
	Verifier *openid.Verifier
	Tokens   *token.Codec
	// TokenTTL is the lifetime of issued session tokens. Defaults to
	// token.LoginTTL.
	TokenTTL time.Duration
	// Realm is the frontend origin the login callback redirects back to.
	Realm  string
	Logger *slog.Logger
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TokenTTL == 0 {
		opts.TokenTTL = token.LoginTTL
	}

	return &Handler{
		Auth: NewAuthHandler(opts.Verifier, opts.Tokens, opts.TokenTTL, opts.Realm, opts.Logger),
		FeatureRequest: NewFeatureRequestHandler(
			feature.NewService(opts.Store, opts.Logger),
			vote.NewEngine(opts.Store, opts.Logger),
			ranking.NewProducer(opts.Store),
			opts.Logger,
		),
	}
}
