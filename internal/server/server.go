package server

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/uservoice/backend/internal/config"
	"github.com/emilythestrangee/uservoice/backend/internal/database"
	"github.com/emilythestrangee/uservoice/backend/internal/handlers"
	"github.com/emilythestrangee/uservoice/backend/internal/middleware"
	"github.com/emilythestrangee/uservoice/backend/internal/openid"
	"github.com/emilythestrangee/uservoice/backend/internal/relay"
	"github.com/emilythestrangee/uservoice/backend/internal/steam"
	"github.com/emilythestrangee/uservoice/backend/internal/store"
	"github.com/emilythestrangee/uservoice/backend/internal/store/sqlite"
	"github.com/emilythestrangee/uservoice/backend/internal/token"
)

const relayPath = "/relay/openid"

type healthChecker interface {
	Health() map[string]string
}

type Server struct {
	cfg     config.Config
	db      store.Store
	tokens  *token.Codec
	handler *handlers.Handler
	relay   *relay.Handler
}

// New wires the handlers on top of an open store. Outbound calls to Steam
// and the relay go through httpClient.
func New(cfg config.Config, db store.Store, httpClient *http.Client, logger *slog.Logger) *Server {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}

	providerURL := cfg.OpenIDProviderURL
	if providerURL == "" {
		providerURL = openid.DefaultProviderURL
	}

	var checker openid.Checker = relay.NewForwarder(providerURL, httpClient)
	if cfg.RelayURL != "" {
		checker = relay.NewClient(cfg.RelayURL, cfg.RelayAccessToken, httpClient)
	}

	resolver := steam.NewResolver(
		steam.NewClient(cfg.SteamAPIURL, cfg.SteamAPIKey, httpClient),
		cfg.Catalogue,
		logger,
	)
	verifier := openid.New(openid.Config{
		Realm:       cfg.Realm,
		ReturnTo:    cfg.ReturnTo,
		ProviderURL: providerURL,
	}, checker, resolver, logger)
	tokens := token.New([]byte(cfg.AuthSecret), token.WithLogger(logger))

	s := &Server{
		cfg:    cfg,
		db:     db,
		tokens: tokens,
		handler: handlers.NewHandler(handlers.Options{
			Store:    db,
			Verifier: verifier,
			Tokens:   tokens,
			TokenTTL: cfg.TokenTTL,
			Realm:    cfg.Realm,
			Logger:   logger,
		}),
	}
	if cfg.RelayAccessTokenHash != "" {
		s.relay = relay.NewHandler(relay.NewForwarder(providerURL, httpClient), []byte(cfg.RelayAccessTokenHash), logger)
	}
	return s
}

// NewServer opens the configured store and creates the HTTP server. The
// returned closer releases the store.
func NewServer(cfg config.Config, logger *slog.Logger) (*http.Server, io.Closer, error) {
	db, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	s := New(cfg, db, nil, logger)

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Printf("🚀 Server starting on port %s\n", cfg.Port)
	fmt.Println("📝 Press Ctrl+C to stop the server")

	return server, db, nil
}

func openStore(cfg config.Config) (store.Store, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Printf("✅ SQLite database opened at %s", cfg.SQLitePath)
		return db, nil
	default:
		return database.New(cfg.Postgres)
	}
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	r := gin.Default()

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.Use(middleware.AuthMiddleware(s.tokens))

	// Health check endpoint
	r.GET("/health", s.healthHandler)

	// Steam sign-in (public)
	r.GET("/auth/steam", s.handler.Auth.SteamLogin)
	r.GET("/auth/steam/verify", s.handler.Auth.SteamCallback)

	if s.relay != nil {
		s.relay.Register(r, relayPath)
	}

	// Protected routes (authentication required)
	api := r.Group("/api")
	api.Use(middleware.RequireAuth())
	{
		api.GET("/me", s.handler.Auth.GetMe)

		api.GET("/feature-requests", s.handler.FeatureRequest.List)
		api.POST("/feature-requests", s.handler.FeatureRequest.Create)
		api.POST("/feature-requests/vote", s.handler.FeatureRequest.Vote)
	}

	return r
}

func (s *Server) healthHandler(c *gin.Context) {
	checker, ok := s.db.(healthChecker)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	stats := checker.Health()
	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, stats)
}
