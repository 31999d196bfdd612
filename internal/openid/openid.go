// Package openid drives the Steam OpenID 2.0 login: it builds the
// redirect to Steam, validates the callback and has Steam confirm the
// assertion before resolving the user's identity.
package openid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/emilythestrangee/uservoice/backend/internal/models"
	"github.com/emilythestrangee/uservoice/backend/internal/steam"
)

const (
	// DefaultProviderURL is Steam's OpenID endpoint. It is both the login
	// page and the op_endpoint Steam asserts in callbacks.
	DefaultProviderURL = "https://steamcommunity.com/openid/login"

	Namespace        = "http://specs.openid.net/auth/2.0"
	identifierSelect = "http://specs.openid.net/auth/2.0/identifier_select"

	modeSetup     = "checkid_setup"
	modeIDRes     = "id_res"
	modeCheckAuth = "check_authentication"
)

var steamIDPattern = regexp.MustCompile(`/id/(7656119[0-9]{10})/?$`)

// Checker asks the provider to confirm an assertion (check_authentication).
// Implementations return 204 when the provider confirmed it; every other
// status, and every error, means the assertion is not valid.
type Checker interface {
	CheckAuthentication(ctx context.Context, form url.Values) (int, error)
}

// ProfileResolver turns a verified Steam id into a full identity.
type ProfileResolver interface {
	Resolve(ctx context.Context, steamID uint64) (models.User, error)
}

type Config struct {
	// Realm is the application root. Callbacks must return below it and
	// login results are redirected to it.
	Realm string
	// ReturnTo is the callback path appended to Realm.
	ReturnTo    string
	ProviderURL string
}

type Verifier struct {
	cfg      Config
	checker  Checker
	resolver ProfileResolver
	logger   *slog.Logger
}

func New(cfg Config, checker Checker, resolver ProfileResolver, logger *slog.Logger) *Verifier {
	if cfg.ProviderURL == "" {
		cfg.ProviderURL = DefaultProviderURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{cfg: cfg, checker: checker, resolver: resolver, logger: logger}
}

// BeginLogin returns the Steam URL the browser is redirected to.
func (v *Verifier) BeginLogin() string {
	params := url.Values{
		"openid.ns":         {Namespace},
		"openid.mode":       {modeSetup},
		"openid.return_to":  {v.cfg.Realm + v.cfg.ReturnTo},
		"openid.realm":      {v.cfg.Realm},
		"openid.identity":   {identifierSelect},
		"openid.claimed_id": {identifierSelect},
	}
	return v.cfg.ProviderURL + "?" + params.Encode()
}

// CompleteLogin validates the callback parameters Steam redirected the user
// back with. Errors are *LoginError values carrying the redirect code.
func (v *Verifier) CompleteLogin(ctx context.Context, params url.Values) (models.User, error) {
	if params.Get("openid.mode") != modeIDRes {
		return models.User{}, loginError(CodeInternalError, "unexpected openid.mode %q", params.Get("openid.mode"))
	}

	if params.Get("openid.claimed_id") != params.Get("openid.identity") ||
		params.Get("openid.op_endpoint") != v.cfg.ProviderURL ||
		params.Get("openid.ns") != Namespace ||
		!strings.HasPrefix(params.Get("openid.return_to"), v.cfg.Realm) {
		return models.User{}, loginError(CodeInternalError, "callback parameters do not match this realm")
	}

	match := steamIDPattern.FindStringSubmatch(params.Get("openid.identity"))
	if match == nil {
		return models.User{}, loginError(CodeAuthFailed, "identity %q is not a steam id", params.Get("openid.identity"))
	}
	steamID, err := strconv.ParseUint(match[1], 10, 64)
	if err != nil {
		return models.User{}, &LoginError{Code: CodeAuthFailed, Err: err}
	}

	form := make(url.Values, len(params))
	for key, values := range params {
		form[key] = append([]string(nil), values...)
	}
	form.Set("openid.mode", modeCheckAuth)

	status, err := v.checker.CheckAuthentication(ctx, form)
	if err != nil {
		v.logger.Error("check_authentication failed", "steam_id", steamID, "error", err)
		return models.User{}, &LoginError{Code: CodeAuthFailed, Err: fmt.Errorf("check_authentication: %w", err)}
	}
	if status != http.StatusNoContent {
		v.logger.Warn("steam rejected the assertion", "steam_id", steamID, "status", status)
		return models.User{}, loginError(CodeAuthFailed, "check_authentication returned status %d", status)
	}

	user, err := v.resolver.Resolve(ctx, steamID)
	if err != nil {
		switch {
		case errors.Is(err, steam.ErrNoOwnership):
			return models.User{}, &LoginError{Code: CodeNoOwnership, Err: err}
		case errors.Is(err, steam.ErrMissingRequiredDLCs):
			return models.User{}, &LoginError{Code: CodeMissingRequiredDLCs, Err: err}
		default:
			return models.User{}, &LoginError{Code: CodeSteamError, Err: err}
		}
	}
	return user, nil
}
