// Package token issues and verifies the stateless session token handed to
// the browser after a successful Steam login.
//
// A token is a compact JWS: base64(header).base64(payload).base64(signature)
// where the signature is HMAC-SHA256 over the first two segments. The payload
// carries the absolute expiry and the user identity. Verification is a pure
// function of the secret, the token and the current time: there is no session
// store and no revocation list.
package token

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/emilythestrangee/uservoice/backend/internal/models"
)

// LoginTTL is the lifetime of tokens issued by the Steam callback.
const LoginTTL = 7 * 24 * time.Hour

const bearerScheme = "Bearer"

var (
	ErrNoSecret   = errors.New("token: signing secret is not configured")
	ErrInvalidTTL = errors.New("token: ttl must be positive")
)

// Claims is the token payload: "exp" in unix seconds and the identity under "data".
type Claims struct {
	Data models.User `json:"data"`
	jwt.RegisteredClaims
}

type Codec struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
	logger *slog.Logger
}

type Option func(*Codec)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Codec) { c.logger = logger }
}

func New(secret []byte, opts ...Option) *Codec {
	c := &Codec{
		secret: secret,
		now:    time.Now,
		logger: slog.Default(),
		// HS256 is the only accepted scheme. Expiry is checked by Verify
		// with whole-second truncation, so jwt's own claim validation is off.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
			jwt.WithStrictDecoding(),
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Issue signs a token for user that expires ttl from now.
func (c *Codec) Issue(user models.User, ttl time.Duration) (string, error) {
	if len(c.secret) == 0 {
		return "", ErrNoSecret
	}
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}
	claims := Claims{
		Data: user,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(c.now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify returns the identity carried by tokenString. Any malformed,
// forged or expired token yields false; it never returns an error.
func (c *Codec) Verify(tokenString string) (models.User, bool) {
	if len(c.secret) == 0 {
		c.logger.Debug("token secret is not configured")
		return models.User{}, false
	}
	if strings.Count(tokenString, ".") != 2 {
		c.logger.Debug("token does not have three segments")
		return models.User{}, false
	}

	var claims Claims
	_, err := c.parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		c.logger.Debug("token rejected", "error", err)
		return models.User{}, false
	}
	if claims.ExpiresAt == nil {
		c.logger.Debug("token has no expiry")
		return models.User{}, false
	}
	if expired(claims.ExpiresAt.Time, c.now()) {
		c.logger.Debug("token has expired", "user_id", claims.Data.ID, "exp", claims.ExpiresAt.Unix())
		return models.User{}, false
	}
	return claims.Data, true
}

// Authenticate resolves an Authorization header value of the form
// "Bearer <token>".
func (c *Codec) Authenticate(authorization string) (models.User, bool) {
	parts := strings.Fields(authorization)
	if len(parts) != 2 || parts[0] != bearerScheme {
		c.logger.Debug("invalid authorization header format", "parts", len(parts))
		return models.User{}, false
	}
	return c.Verify(parts[1])
}

// expired compares at whole-second resolution: a token expiring in the
// current second is still valid.
func expired(expiresAt, now time.Time) bool {
	return expiresAt.Unix() < now.Unix()
}
