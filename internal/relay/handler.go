package relay

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type forwarder interface {
	Forward(ctx context.Context, body []byte) (int, error)
}

// Handler is the relay endpoint. Only holders of the access token whose
// bcrypt hash it was configured with may use it.
type Handler struct {
	forwarder forwarder
	tokenHash []byte
	logger    *slog.Logger
}

func NewHandler(f forwarder, accessTokenHash []byte, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{forwarder: f, tokenHash: accessTokenHash, logger: logger}
}

// Register mounts the handler for every method so that non-POST requests
// get a 405 instead of gin's 404.
func (h *Handler) Register(r gin.IRoutes, path string) {
	r.Any(path, h.Relay)
}

func (h *Handler) Relay(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.String(http.StatusMethodNotAllowed, "Method not allowed!")
		return
	}

	if !h.authorized(c.GetHeader("Authorization")) {
		c.String(http.StatusUnauthorized, "Unauthorized")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.String(http.StatusBadRequest, "Bad Request")
		return
	}

	status, err := h.forwarder.Forward(c.Request.Context(), body)
	if err != nil {
		h.logger.Error("relay forward failed", "error", err)
		c.String(http.StatusInternalServerError, "Internal Server Error")
		return
	}
	c.Status(status)
}

func (h *Handler) authorized(header string) bool {
	parts := strings.Fields(header)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return false
	}
	return bcrypt.CompareHashAndPassword(h.tokenHash, []byte(parts[1])) == nil
}
