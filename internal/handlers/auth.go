package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/uservoice/backend/internal/middleware"
	"github.com/emilythestrangee/uservoice/backend/internal/openid"
	"github.com/emilythestrangee/uservoice/backend/internal/token"
)

type AuthHandler struct {
	verifier *openid.Verifier
	tokens   *token.Codec
	ttl      time.Duration
	realm    string
	logger   *slog.Logger
}

func NewAuthHandler(verifier *openid.Verifier, tokens *token.Codec, ttl time.Duration, realm string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{verifier: verifier, tokens: tokens, ttl: ttl, realm: realm, logger: logger}
}

// SteamLogin sends the browser to the Steam sign-in page.
func (h *AuthHandler) SteamLogin(c *gin.Context) {
	c.Redirect(http.StatusFound, h.verifier.BeginLogin())
}

// SteamCallback verifies the assertion Steam redirected back with and hands
// the frontend either a session token or an error code.
func (h *AuthHandler) SteamCallback(c *gin.Context) {
	user, err := h.verifier.CompleteLogin(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		code := openid.CodeOf(err)
		h.logger.Warn("steam login failed", "code", code.String(), "error", err)
		h.redirect(c, url.Values{"error": {strconv.Itoa(int(code))}})
		return
	}

	tokenString, err := h.tokens.Issue(user, h.ttl)
	if err != nil {
		h.logger.Error("failed to issue token", "user_id", user.ID, "error", err)
		h.redirect(c, url.Values{"error": {strconv.Itoa(int(openid.CodeInternalError))}})
		return
	}

	h.logger.Info("steam login", "user_id", user.ID, "weight", user.Weight)
	h.redirect(c, url.Values{"token": {tokenString}})
}

func (h *AuthHandler) redirect(c *gin.Context, query url.Values) {
	c.Redirect(http.StatusMovedPermanently, h.realm+"?"+query.Encode())
}

// GetMe returns the current authenticated user
func (h *AuthHandler) GetMe(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	c.JSON(http.StatusOK, user)
}
